package advisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/frain-dev/tether/internal/pkg/telemetry"
	"github.com/stretchr/testify/require"
)

type stubAdvisor struct {
	rec   *Recommendation
	err   error
	delay time.Duration
}

func (s *stubAdvisor) Advise(ctx context.Context, snap telemetry.Snapshot) (*Recommendation, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return s.rec, s.err
}

func TestClient_PassesThroughRecommendation(t *testing.T) {
	want := &Recommendation{Endpoint: "metrics", Action: ActionBackOff, Reason: "remote says so"}
	c := NewClient(&stubAdvisor{rec: want})

	got := c.Advise(context.Background(), telemetry.Snapshot{Endpoint: "metrics"})
	require.Equal(t, want, got)
}

func TestClient_TimeoutFallsBackToNoop(t *testing.T) {
	c := NewClient(
		&stubAdvisor{rec: &Recommendation{Action: ActionBackOff}, delay: time.Second},
		TimeoutOption(20*time.Millisecond),
	)

	start := time.Now()
	got := c.Advise(context.Background(), telemetry.Snapshot{Endpoint: "metrics"})

	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.Equal(t, ActionNone, got.Action)
	require.Equal(t, "metrics", got.Endpoint)
}

func TestClient_ErrorFallsBackToNoop(t *testing.T) {
	c := NewClient(&stubAdvisor{err: errors.New("model unavailable")})

	got := c.Advise(context.Background(), telemetry.Snapshot{Endpoint: "metrics"})
	require.Equal(t, ActionNone, got.Action)
}

func TestClient_NilAdvisorDefaultsToNoop(t *testing.T) {
	c := NewClient(nil)

	got := c.Advise(context.Background(), telemetry.Snapshot{Endpoint: "metrics"})
	require.Equal(t, ActionNone, got.Action)
	require.Equal(t, "metrics", got.Endpoint)
}

func TestHeuristicAdvisor(t *testing.T) {
	tests := []struct {
		name string
		snap telemetry.Snapshot
		want Action
	}{
		{
			name: "no samples",
			snap: telemetry.Snapshot{Endpoint: "metrics"},
			want: ActionNone,
		},
		{
			name: "degraded success rate",
			snap: telemetry.Snapshot{Endpoint: "metrics", SuccessRate: 0.5, SampleCount: 40},
			want: ActionBackOff,
		},
		{
			name: "saturated latency",
			snap: telemetry.Snapshot{Endpoint: "metrics", SuccessRate: 0.95, AvgLatency: 900, SampleCount: 40},
			want: ActionBackOff,
		},
		{
			name: "congested queue",
			snap: telemetry.Snapshot{Endpoint: "metrics", SuccessRate: 0.95, AvgLatency: 100, QueueDepth: 5_000, SampleCount: 40},
			want: ActionBackOff,
		},
		{
			name: "healthy with headroom",
			snap: telemetry.Snapshot{Endpoint: "metrics", SuccessRate: 1, AvgLatency: 12, SampleCount: 40},
			want: ActionSpeedUp,
		},
		{
			name: "healthy but busy",
			snap: telemetry.Snapshot{Endpoint: "metrics", SuccessRate: 0.9, AvgLatency: 200, QueueDepth: 10, SampleCount: 40},
			want: ActionNone,
		},
	}

	a := NewHeuristicAdvisor()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := a.Advise(context.Background(), tc.snap)
			require.NoError(t, err)
			require.Equal(t, tc.want, rec.Action)
			require.Equal(t, "metrics", rec.Endpoint)
		})
	}
}
