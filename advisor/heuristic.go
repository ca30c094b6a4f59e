package advisor

import (
	"context"
	"fmt"

	"github.com/frain-dev/tether/internal/pkg/telemetry"
)

const (
	// Endpoints below this success rate get told to slow down.
	degradedSuccessRate = 0.8

	// Latency, in milliseconds, above which an endpoint is considered
	// saturated.
	saturatedLatencyMs = 500

	// Queue depth above which buffered work is piling up faster than the
	// connection drains it.
	congestedQueueDepth = 1_000
)

// HeuristicAdvisor applies fixed thresholds to a snapshot. It is the
// built-in advisor; swap in a remote implementation via the Advisor
// interface when smarter analysis is available.
type HeuristicAdvisor struct{}

func NewHeuristicAdvisor() *HeuristicAdvisor {
	return &HeuristicAdvisor{}
}

func (a *HeuristicAdvisor) Advise(_ context.Context, snap telemetry.Snapshot) (*Recommendation, error) {
	rec := &Recommendation{Endpoint: snap.Endpoint, Action: ActionNone}

	if snap.SampleCount == 0 {
		rec.Reason = "no samples yet"
		return rec, nil
	}

	switch {
	case snap.SuccessRate < degradedSuccessRate:
		rec.Action = ActionBackOff
		rec.Score = degradedSuccessRate - snap.SuccessRate
		rec.Reason = fmt.Sprintf("success rate %.2f below %.2f", snap.SuccessRate, degradedSuccessRate)

	case snap.AvgLatency > saturatedLatencyMs:
		rec.Action = ActionBackOff
		rec.Score = (snap.AvgLatency - saturatedLatencyMs) / saturatedLatencyMs
		rec.Reason = fmt.Sprintf("average latency %.0fms above %dms", snap.AvgLatency, saturatedLatencyMs)

	case snap.QueueDepth > congestedQueueDepth:
		rec.Action = ActionBackOff
		rec.Score = float64(snap.QueueDepth-congestedQueueDepth) / congestedQueueDepth
		rec.Reason = fmt.Sprintf("queue depth %d above %d", snap.QueueDepth, congestedQueueDepth)

	case snap.SuccessRate == 1 && snap.AvgLatency < saturatedLatencyMs/10 && snap.QueueDepth == 0:
		rec.Action = ActionSpeedUp
		rec.Reason = "endpoint healthy with headroom"
	}

	return rec, nil
}

var _ Advisor = (*HeuristicAdvisor)(nil)
