package telemetry

import "sync"

// ring is a fixed-capacity sample buffer; insertion overwrites the oldest
// entry once full.
type ring struct {
	mu      sync.Mutex
	samples []Sample
	next    int
	full    bool
}

func newRing(capacity int) *ring {
	return &ring{samples: make([]Sample, capacity)}
}

func (r *ring) add(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples[r.next] = s
	r.next++

	if r.next == len(r.samples) {
		r.next = 0
		r.full = true
	}
}

// list returns retained samples oldest first.
func (r *ring) list() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]Sample, r.next)
		copy(out, r.samples[:r.next])
		return out
	}

	out := make([]Sample, 0, len(r.samples))
	out = append(out, r.samples[r.next:]...)
	out = append(out, r.samples[:r.next]...)

	return out
}
