package circuit_breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/frain-dev/tether/pkg/clock"
	"github.com/frain-dev/tether/pkg/log"
)

var (
	// ErrClockMustNotBeNil is returned when a nil clock is passed to NewBreaker
	ErrClockMustNotBeNil = errors.New("[circuit breaker] clock must not be nil")

	// ErrConfigMustNotBeNil is returned when a nil config is passed to NewBreaker
	ErrConfigMustNotBeNil = errors.New("[circuit breaker] config must not be nil")

	// ErrLoggerMustNotBeNil is returned when a nil logger is passed to NewBreaker
	ErrLoggerMustNotBeNil = errors.New("[circuit breaker] logger must not be nil")
)

// State represents a state of a Breaker.
type State int

// These are the states of a Breaker.
const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown state: %d", s)
	}
}

type BreakerOption func(b *Breaker) error

// Breaker is a per-endpoint fault-tolerance state machine. It trips open
// after a configured number of consecutive failures, allows a single probe
// once the reset timeout elapses, and closes again on the first success.
//
// The breaker is deliberately jitter-free; randomized delays belong to the
// reconnection scheduler so the breaker stays deterministic under a
// simulated clock.
type Breaker struct {
	key    string
	config *Config
	clock  clock.Clock
	logger *log.Logger

	mu                  sync.Mutex
	state               State
	consecutiveFailures uint64
	lastFailureAt       time.Time
	willResetAt         time.Time
}

func NewBreaker(key string, options ...BreakerOption) (*Breaker, error) {
	b := &Breaker{key: key, state: StateClosed}

	for _, opt := range options {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	if b.clock == nil {
		return nil, ErrClockMustNotBeNil
	}

	if b.logger == nil {
		return nil, ErrLoggerMustNotBeNil
	}

	if b.config == nil {
		b.config = DefaultConfig()
	}

	if err := b.config.Validate(); err != nil {
		return nil, err
	}

	return b, nil
}

func ClockOption(c clock.Clock) BreakerOption {
	return func(b *Breaker) error {
		if c == nil {
			return ErrClockMustNotBeNil
		}

		b.clock = c
		return nil
	}
}

func ConfigOption(config *Config) BreakerOption {
	return func(b *Breaker) error {
		if config == nil {
			return ErrConfigMustNotBeNil
		}

		if err := config.Validate(); err != nil {
			return err
		}

		b.config = config
		return nil
	}
}

func LoggerOption(logger *log.Logger) BreakerOption {
	return func(b *Breaker) error {
		if logger == nil {
			return ErrLoggerMustNotBeNil
		}

		b.logger = logger
		return nil
	}
}

// RecordSuccess resets the breaker. A success while half-open closes it; a
// success while closed clears the consecutive failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.effectiveState()
	b.state = StateClosed
	b.consecutiveFailures = 0
	b.willResetAt = time.Time{}

	if prev != StateClosed {
		b.logger.WithFields(log.Fields{"key": b.key}).Info("circuit breaker reset")
	}

	updateStateMetric(b.key, StateClosed)
	breakerOutcomes.WithLabelValues(b.key, "success").Inc()
}

// RecordFailure counts one failed attempt. A failure while half-open reopens
// the breaker immediately with a fresh reset deadline.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	b.consecutiveFailures++
	b.lastFailureAt = now

	switch b.effectiveState() {
	case StateHalfOpen:
		b.trip(now)
	case StateClosed:
		if b.consecutiveFailures >= b.config.FailureThreshold {
			b.trip(now)
		}
	case StateOpen:
		// already open; the reset deadline stands
	}

	updateStateMetric(b.key, b.effectiveState())
	breakerOutcomes.WithLabelValues(b.key, "failure").Inc()
}

// CanAttempt reports whether a connection attempt is currently permitted.
// It never mutates state, so polling it while the breaker is open is safe.
func (b *Breaker) CanAttempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.effectiveState() {
	case StateClosed, StateHalfOpen:
		return true
	default:
		return false
	}
}

// State returns the breaker's effective state: an open breaker whose reset
// timeout has elapsed reads as half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.effectiveState()
}

func (b *Breaker) ConsecutiveFailures() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.consecutiveFailures
}

func (b *Breaker) LastFailureAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.lastFailureAt
}

// WillResetAt returns the earliest time at which an open breaker permits a
// half-open probe. Zero when the breaker is closed.
func (b *Breaker) WillResetAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.willResetAt
}

// effectiveState assumes b.mu is held.
func (b *Breaker) effectiveState() State {
	if b.state == StateOpen && !b.clock.Now().Before(b.willResetAt) {
		return StateHalfOpen
	}

	return b.state
}

// trip assumes b.mu is held.
func (b *Breaker) trip(now time.Time) {
	b.state = StateOpen
	b.willResetAt = now.Add(b.config.ResetTimeout)

	b.logger.WithFields(log.Fields{
		"key":                  b.key,
		"consecutive_failures": b.consecutiveFailures,
		"will_reset_at":        b.willResetAt,
	}).Warn("circuit breaker tripped")
}
