package backoff

import (
	"math/rand"
	"time"

	"github.com/frain-dev/tether"
)

// JitterFn maps a pre-jitter delay to the jitter to add on top of it.
type JitterFn func(delay time.Duration) time.Duration

// Strategy computes reconnection delays: the base delay doubles with each
// attempt up to a cap, then a small random jitter is added so a fleet of
// clients does not reconnect in lockstep.
type Strategy struct {
	baseDelay time.Duration
	maxDelay  time.Duration
	jitterFn  JitterFn
}

func NewStrategy(baseDelay, maxDelay time.Duration) *Strategy {
	return NewStrategyWithJitter(baseDelay, maxDelay, defaultJitter)
}

func NewStrategyWithJitter(baseDelay, maxDelay time.Duration, jitterFn JitterFn) *Strategy {
	if baseDelay <= 0 {
		baseDelay = tether.DefaultBaseDelay
	}

	if maxDelay <= 0 {
		maxDelay = tether.DefaultMaxDelay
	}

	return &Strategy{
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		jitterFn:  jitterFn,
	}
}

// NextDuration is how long we should wait before the next attempt.
func (s *Strategy) NextDuration(attempts uint64) time.Duration {
	d := s.BaseDuration(attempts)
	return d + s.jitterFn(d)
}

// BaseDuration is the pre-jitter delay for a given attempt number:
// min(baseDelay * 2^attempts, maxDelay).
func (s *Strategy) BaseDuration(attempts uint64) time.Duration {
	// past 32 doublings any sane base delay has long exceeded the cap
	if attempts > 32 {
		return s.maxDelay
	}

	d := s.baseDelay << attempts
	if d <= 0 || d > s.maxDelay {
		return s.maxDelay
	}

	return d
}

// defaultJitter draws uniformly from [0, delay/10).
func defaultJitter(delay time.Duration) time.Duration {
	tenth := int64(delay / 10)
	if tenth <= 0 {
		return 0
	}

	return time.Duration(rand.Int63n(tenth))
}
