package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/frain-dev/tether/pkg/clock"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	conns int
	depth int
}

func (f *fakeSource) ActiveConnections(string) int { return f.conns }
func (f *fakeSource) QueueDepth(string) int        { return f.depth }

func TestAggregator_RingKeepsMostRecentSamples(t *testing.T) {
	testClock := clock.NewSimulatedClock(time.Now())
	agg := NewAggregator(100, testClock)

	for i := 0; i < 150; i++ {
		agg.Record("metrics", MetricLatency, float64(i))
		testClock.AdvanceTime(time.Millisecond)
	}

	samples := agg.Samples("metrics", MetricLatency)
	require.Len(t, samples, 100)

	// exactly the 100 most recent, oldest first
	require.Equal(t, float64(50), samples[0].Value)
	require.Equal(t, float64(149), samples[99].Value)

	for i := 1; i < len(samples); i++ {
		require.True(t, samples[i].Timestamp.After(samples[i-1].Timestamp))
	}
}

func TestAggregator_SnapshotAggregates(t *testing.T) {
	testClock := clock.NewSimulatedClock(time.Now())
	agg := NewAggregator(100, testClock)
	agg.SetSource(&fakeSource{conns: 1, depth: 7})

	agg.Record("alerts", MetricLatency, 10)
	agg.Record("alerts", MetricLatency, 30)
	agg.Record("alerts", MetricError, 0)
	agg.Record("alerts", MetricError, 0)
	agg.Record("alerts", MetricError, 1)
	agg.Record("alerts", MetricError, 0)

	s := agg.Snapshot("alerts")
	require.Equal(t, "alerts", s.Endpoint)
	require.Equal(t, float64(20), s.AvgLatency)
	require.Equal(t, 0.75, s.SuccessRate)
	require.Equal(t, 1, s.ActiveConnections)
	require.Equal(t, 7, s.QueueDepth)
	require.Equal(t, testClock.Now(), s.TakenAt)
}

func TestAggregator_SnapshotWithNoSamples(t *testing.T) {
	agg := NewAggregator(100, clock.NewRealClock())

	s := agg.Snapshot("dashboard")
	require.Equal(t, float64(0), s.AvgLatency)
	require.Equal(t, float64(1), s.SuccessRate)
	require.Equal(t, 0, s.SampleCount)
}

func TestAggregator_SnapshotAll(t *testing.T) {
	agg := NewAggregator(100, clock.NewRealClock())

	agg.Record("dashboard", MetricLatency, 5)
	agg.Record("alerts", MetricError, 1)
	agg.Record("metrics", MetricThroughput, 1)

	all := agg.SnapshotAll()
	require.Len(t, all, 3)
	require.Contains(t, all, "dashboard")
	require.Contains(t, all, "alerts")
	require.Contains(t, all, "metrics")
}

func TestAggregator_ConcurrentRecordAndSnapshot(t *testing.T) {
	agg := NewAggregator(100, clock.NewRealClock())

	var writers sync.WaitGroup
	stop := make(chan struct{})
	readerDone := make(chan struct{})

	for i := 0; i < 4; i++ {
		writers.Add(1)
		go func() {
			defer writers.Done()
			for j := 0; j < 500; j++ {
				agg.Record("metrics", MetricLatency, float64(j))
				agg.Record("alerts", MetricError, float64(j%2))
			}
		}()
	}

	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
				_ = agg.SnapshotAll()
			}
		}
	}()

	writers.Wait()
	close(stop)
	<-readerDone

	samples := agg.Samples("metrics", MetricLatency)
	require.Len(t, samples, 100)
}
