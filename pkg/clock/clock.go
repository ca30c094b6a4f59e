// Package clock abstracts time for components that make timing decisions,
// so tests can drive them deterministically.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

// NewRealClock returns a Clock backed by time.Now.
func NewRealClock() Clock { return &realTimeClock{} }

type realTimeClock struct{}

func (*realTimeClock) Now() time.Time { return time.Now() }

// SimulatedClock only advances when told to. Safe for concurrent use.
type SimulatedClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewSimulatedClock(t time.Time) *SimulatedClock {
	return &SimulatedClock{t: t}
}

func (c *SimulatedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *SimulatedClock) SetTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *SimulatedClock) AdvanceTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
