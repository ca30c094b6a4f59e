package circuit_breaker

import (
	"os"
	"testing"
	"time"

	"github.com/frain-dev/tether/pkg/clock"
	"github.com/frain-dev/tether/pkg/log"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(t *testing.T, cfg *Config) (*Breaker, *clock.SimulatedClock) {
	t.Helper()

	testClock := clock.NewSimulatedClock(time.Now())

	opts := []BreakerOption{
		ClockOption(testClock),
		LoggerOption(log.NewLogger(os.Stdout)),
	}
	if cfg != nil {
		opts = append(opts, ConfigOption(cfg))
	}

	b, err := NewBreaker("endpoint-1", opts...)
	require.NoError(t, err)

	return b, testClock
}

func TestNewBreaker_Validation(t *testing.T) {
	_, err := NewBreaker("endpoint-1", LoggerOption(log.NewLogger(os.Stdout)))
	require.ErrorIs(t, err, ErrClockMustNotBeNil)

	_, err = NewBreaker("endpoint-1", ClockOption(clock.NewRealClock()))
	require.ErrorIs(t, err, ErrLoggerMustNotBeNil)

	_, err = NewBreaker("endpoint-1",
		ClockOption(clock.NewRealClock()),
		LoggerOption(log.NewLogger(os.Stdout)),
		ConfigOption(&Config{FailureThreshold: 0, ResetTimeout: time.Second}),
	)
	require.ErrorIs(t, err, ErrInvalidFailureThreshold)

	_, err = NewBreaker("endpoint-1",
		ClockOption(clock.NewRealClock()),
		LoggerOption(log.NewLogger(os.Stdout)),
		ConfigOption(&Config{FailureThreshold: 1}),
	)
	require.ErrorIs(t, err, ErrInvalidResetTimeout)
}

func TestBreaker_TripsAtExactlyThreshold(t *testing.T) {
	b, _ := newTestBreaker(t, nil)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		require.Equal(t, StateClosed, b.State(), "breaker must stay closed after %d failures", i+1)
		require.True(t, b.CanAttempt())
	}

	// fifth consecutive failure trips it
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())
	require.False(t, b.CanAttempt())
}

func TestBreaker_SuccessClearsConsecutiveCount(t *testing.T) {
	b, _ := newTestBreaker(t, nil)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	require.Equal(t, uint64(0), b.ConsecutiveFailures())

	// failures after a success start counting from zero again
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	require.Equal(t, StateClosed, b.State())

	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())
}

func TestBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	cfg := &Config{FailureThreshold: 2, ResetTimeout: 30 * time.Second}
	b, testClock := newTestBreaker(t, cfg)

	b.RecordFailure()
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())
	require.False(t, b.CanAttempt())

	testClock.AdvanceTime(29 * time.Second)
	require.False(t, b.CanAttempt())

	testClock.AdvanceTime(time.Second)
	require.Equal(t, StateHalfOpen, b.State())
	require.True(t, b.CanAttempt())

	// CanAttempt is an idempotent read; asking again must not change anything
	require.True(t, b.CanAttempt())
	require.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	cfg := &Config{FailureThreshold: 2, ResetTimeout: 30 * time.Second}
	b, testClock := newTestBreaker(t, cfg)

	b.RecordFailure()
	b.RecordFailure()
	firstDeadline := b.WillResetAt()

	testClock.AdvanceTime(30 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	// a single failed probe reopens with a freshly computed deadline
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())
	require.False(t, b.CanAttempt())
	require.Equal(t, testClock.Now().Add(cfg.ResetTimeout), b.WillResetAt())
	require.True(t, b.WillResetAt().After(firstDeadline))
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	cfg := &Config{FailureThreshold: 2, ResetTimeout: 30 * time.Second}
	b, testClock := newTestBreaker(t, cfg)

	b.RecordFailure()
	b.RecordFailure()

	testClock.AdvanceTime(31 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	b.RecordSuccess()
	require.Equal(t, StateClosed, b.State())
	require.True(t, b.CanAttempt())
	require.Equal(t, uint64(0), b.ConsecutiveFailures())
	require.True(t, b.WillResetAt().IsZero())
}

func TestState_String(t *testing.T) {
	require.Equal(t, "closed", StateClosed.String())
	require.Equal(t, "half-open", StateHalfOpen.String())
	require.Equal(t, "open", StateOpen.String())
}
