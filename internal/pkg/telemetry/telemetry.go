package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/frain-dev/tether"
	"github.com/frain-dev/tether/pkg/clock"
)

// Metric names one sample stream per endpoint.
type Metric string

const (
	// MetricLatency holds connect/delivery durations in milliseconds.
	MetricLatency Metric = "latency"

	// MetricThroughput counts delivered frames; each sample is a count.
	MetricThroughput Metric = "throughput"

	// MetricError holds 1 for a failed operation, 0 for a successful one.
	MetricError Metric = "error"
)

type Sample struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a point-in-time read-only aggregate for one endpoint.
// Immutable once produced.
type Snapshot struct {
	Endpoint          string    `json:"endpoint"`
	AvgLatency        float64   `json:"avg_latency"`
	SuccessRate       float64   `json:"success_rate"`
	ActiveConnections int       `json:"active_connections"`
	QueueDepth        int       `json:"queue_depth"`
	SampleCount       int       `json:"sample_count"`
	TakenAt           time.Time `json:"taken_at"`
}

// GaugeSource supplies the instantaneous values a snapshot needs that are
// not ring-derived. The supervisor implements it.
type GaugeSource interface {
	ActiveConnections(endpoint string) int
	QueueDepth(endpoint string) int
}

// Aggregator keeps one bounded ring per (endpoint, metric) pair. Recording
// takes only the ring's own lock, so a snapshot reader never blocks an
// in-flight writer on another ring.
type Aggregator struct {
	windowSize int
	clock      clock.Clock

	mu        sync.RWMutex
	rings     map[string]*ring
	endpoints map[string]struct{}

	sourceMu sync.RWMutex
	source   GaugeSource
}

func NewAggregator(windowSize int, cl clock.Clock) *Aggregator {
	if windowSize <= 0 {
		windowSize = tether.DefaultTelemetryWindow
	}

	if cl == nil {
		cl = clock.NewRealClock()
	}

	return &Aggregator{
		windowSize: windowSize,
		clock:      cl,
		rings:      make(map[string]*ring),
		endpoints:  make(map[string]struct{}),
	}
}

// SetSource wires the gauge source after construction; the supervisor and
// the aggregator reference each other.
func (a *Aggregator) SetSource(s GaugeSource) {
	a.sourceMu.Lock()
	a.source = s
	a.sourceMu.Unlock()
}

// Record appends one sample. Fire-and-forget: it never blocks on readers of
// other rings and does no I/O.
func (a *Aggregator) Record(endpoint string, metric Metric, value float64) {
	r := a.ringFor(endpoint, metric)
	r.add(Sample{Value: value, Timestamp: a.clock.Now()})
}

// Snapshot computes the aggregate view for one endpoint from its rings.
func (a *Aggregator) Snapshot(endpoint string) Snapshot {
	s := Snapshot{
		Endpoint: endpoint,
		TakenAt:  a.clock.Now(),
	}

	latencies := a.samples(endpoint, MetricLatency)
	if len(latencies) > 0 {
		var sum float64
		for _, smp := range latencies {
			sum += smp.Value
		}
		s.AvgLatency = sum / float64(len(latencies))
	}

	errs := a.samples(endpoint, MetricError)
	if len(errs) > 0 {
		var failures float64
		for _, smp := range errs {
			if smp.Value > 0 {
				failures++
			}
		}
		s.SuccessRate = 1 - failures/float64(len(errs))
	} else {
		s.SuccessRate = 1
	}

	s.SampleCount = len(latencies) + len(errs) + len(a.samples(endpoint, MetricThroughput))

	a.sourceMu.RLock()
	src := a.source
	a.sourceMu.RUnlock()

	if src != nil {
		s.ActiveConnections = src.ActiveConnections(endpoint)
		s.QueueDepth = src.QueueDepth(endpoint)
	}

	return s
}

// SnapshotAll returns one snapshot per endpoint ever recorded against.
// Snapshots are eventually consistent with concurrent Record calls.
func (a *Aggregator) SnapshotAll() map[string]Snapshot {
	a.mu.RLock()
	names := make([]string, 0, len(a.endpoints))
	for name := range a.endpoints {
		names = append(names, name)
	}
	a.mu.RUnlock()

	out := make(map[string]Snapshot, len(names))
	for _, name := range names {
		out[name] = a.Snapshot(name)
	}

	return out
}

// Samples returns the retained window for one (endpoint, metric) pair in
// chronological order.
func (a *Aggregator) Samples(endpoint string, metric Metric) []Sample {
	return a.samples(endpoint, metric)
}

func (a *Aggregator) samples(endpoint string, metric Metric) []Sample {
	a.mu.RLock()
	r, ok := a.rings[ringKey(endpoint, metric)]
	a.mu.RUnlock()

	if !ok {
		return nil
	}

	return r.list()
}

func (a *Aggregator) ringFor(endpoint string, metric Metric) *ring {
	key := ringKey(endpoint, metric)

	a.mu.RLock()
	r, ok := a.rings[key]
	a.mu.RUnlock()
	if ok {
		return r
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if r, ok = a.rings[key]; ok {
		return r
	}

	r = newRing(a.windowSize)
	a.rings[key] = r
	a.endpoints[endpoint] = struct{}{}

	return r
}

func ringKey(endpoint string, metric Metric) string {
	return fmt.Sprintf("%s:%s", endpoint, metric)
}
