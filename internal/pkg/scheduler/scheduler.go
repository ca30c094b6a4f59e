package scheduler

import (
	"sync"
	"time"

	"github.com/frain-dev/tether/backoff"
	"github.com/frain-dev/tether/pkg/log"
)

// CancelFn disarms a pending retry timer. Safe to call more than once and
// after the timer has fired.
type CancelFn func()

type pendingTimer struct {
	timer      *time.Timer
	generation uint64
}

// Scheduler owns at most one pending reconnect timer per endpoint. Arming a
// new timer for an endpoint disarms any prior one, so a reconnect can never
// race a duplicate of itself.
type Scheduler struct {
	strategy *backoff.Strategy
	logger   log.StdLogger

	mu          sync.Mutex
	pending     map[string]*pendingTimer
	generations map[string]uint64
	stopped     bool
}

func New(strategy *backoff.Strategy, logger log.StdLogger) *Scheduler {
	return &Scheduler{
		strategy:    strategy,
		logger:      logger,
		pending:     make(map[string]*pendingTimer),
		generations: make(map[string]uint64),
	}
}

// Delay returns the backoff delay the strategy computes for attemptNumber.
func (s *Scheduler) Delay(attemptNumber uint64) time.Duration {
	return s.strategy.NextDuration(attemptNumber)
}

// ScheduleRetry arms a timer that invokes fn after the backoff delay for
// attemptNumber. The returned CancelFn disarms it.
func (s *Scheduler) ScheduleRetry(endpoint string, attemptNumber uint64, fn func()) CancelFn {
	return s.ScheduleRetryIn(endpoint, s.strategy.NextDuration(attemptNumber), fn)
}

// ScheduleRetryIn arms a timer with an explicit delay, for callers that need
// to stretch the backoff delay past some other deadline.
func (s *Scheduler) ScheduleRetryIn(endpoint string, delay time.Duration, fn func()) CancelFn {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return func() {}
	}

	s.cancelLocked(endpoint)

	s.generations[endpoint]++
	gen := s.generations[endpoint]

	t := time.AfterFunc(delay, func() {
		if !s.claim(endpoint, gen) {
			return
		}
		fn()
	})

	s.pending[endpoint] = &pendingTimer{timer: t, generation: gen}

	s.logger.WithFields(log.Fields{
		"endpoint": endpoint,
		"delay":    delay.String(),
	}).Debug("reconnect timer armed")

	return func() { s.cancel(endpoint, gen) }
}

// Cancel disarms any pending timer for the endpoint.
func (s *Scheduler) Cancel(endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(endpoint)
}

// Pending reports whether the endpoint currently has an armed timer.
func (s *Scheduler) Pending(endpoint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.pending[endpoint]
	return ok
}

// Stop disarms all timers; the scheduler accepts no further work.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for endpoint := range s.pending {
		s.cancelLocked(endpoint)
	}
}

// claim transfers ownership of a fired timer to its callback; it loses if
// the timer was rearmed or cancelled between firing and running.
func (s *Scheduler) claim(endpoint string, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[endpoint]
	if !ok || p.generation != generation || s.stopped {
		return false
	}

	delete(s.pending, endpoint)
	return true
}

func (s *Scheduler) cancel(endpoint string, generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[endpoint]
	if !ok || p.generation != generation {
		return
	}

	p.timer.Stop()
	delete(s.pending, endpoint)
}

// cancelLocked assumes s.mu is held.
func (s *Scheduler) cancelLocked(endpoint string) {
	if p, ok := s.pending[endpoint]; ok {
		p.timer.Stop()
		delete(s.pending, endpoint)
	}
}
