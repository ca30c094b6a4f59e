package memqueue

import (
	"sync"

	"github.com/frain-dev/tether"
	"github.com/frain-dev/tether/queue"
)

type Options struct {
	// Capacity bounds the total number of messages across all tiers.
	Capacity int

	// ReservedSlots holds back part of the capacity for critical and high
	// priority messages. Zero disables the reservation.
	ReservedSlots int

	// MaxRetries is the number of MarkFailed calls a message survives
	// before it is removed as permanently failed.
	MaxRetries uint64

	// OnEvict is invoked with messages dropped to admit newer ones.
	OnEvict queue.Callback

	// OnPermanentFailure is invoked with messages that exhausted their
	// retries or were discarded.
	OnPermanentFailure queue.Callback
}

// MemQueue is an in-memory Queuer holding one FIFO bucket per priority
// tier. All operations take the queue mutex; callbacks run outside it so
// they may call back into the queue.
type MemQueue struct {
	mu      sync.Mutex
	opts    Options
	buckets [4][]*tether.Message
	index   map[string]*tether.Message
}

func NewMemQueue(opts Options) *MemQueue {
	if opts.Capacity <= 0 {
		opts.Capacity = tether.DefaultQueueCapacity
	}

	if opts.MaxRetries == 0 {
		opts.MaxRetries = tether.DefaultMaxRetries
	}

	return &MemQueue{
		opts:  opts,
		index: make(map[string]*tether.Message),
	}
}

func (q *MemQueue) Enqueue(msg *tether.Message) (string, error) {
	var evicted *tether.Message

	q.mu.Lock()

	rank := msg.Priority.Rank()

	if q.opts.ReservedSlots > 0 && rank > tether.PriorityHigh.Rank() {
		if len(q.index) >= q.opts.Capacity-q.opts.ReservedSlots {
			q.mu.Unlock()
			return "", queue.ErrReservedCapacity
		}
	}

	if len(q.index) >= q.opts.Capacity {
		evicted = q.evictLocked(msg.Priority)
		if evicted == nil {
			q.mu.Unlock()
			return "", queue.ErrQueueFull
		}
	}

	msg.Status = tether.StatusPending
	q.buckets[rank] = append(q.buckets[rank], msg)
	q.index[msg.UID] = msg

	q.mu.Unlock()

	if evicted != nil && q.opts.OnEvict != nil {
		q.opts.OnEvict(evicted)
	}

	return msg.UID, nil
}

func (q *MemQueue) PeekNext() *tether.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	for rank := range q.buckets {
		for _, msg := range q.buckets[rank] {
			if msg.Status == tether.StatusPending {
				msg.Status = tether.StatusInFlight
				return msg
			}
		}
	}

	return nil
}

func (q *MemQueue) MarkDelivered(uid string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	msg, ok := q.index[uid]
	if !ok {
		return queue.ErrMsgNotFound
	}

	q.removeLocked(msg)
	msg.Status = tether.StatusDelivered

	return nil
}

func (q *MemQueue) MarkFailed(uid string) error {
	q.mu.Lock()

	msg, ok := q.index[uid]
	if !ok {
		q.mu.Unlock()
		return queue.ErrMsgNotFound
	}

	msg.RetryCount++

	if msg.RetryCount > q.opts.MaxRetries {
		q.removeLocked(msg)
		msg.Status = tether.StatusFailedPermanent
		q.mu.Unlock()

		if q.opts.OnPermanentFailure != nil {
			q.opts.OnPermanentFailure(msg)
		}
		return nil
	}

	// back to the tail of its own tier
	rank := msg.Priority.Rank()
	q.buckets[rank] = removeFromBucket(q.buckets[rank], msg.UID)
	q.buckets[rank] = append(q.buckets[rank], msg)
	msg.Status = tether.StatusPending

	q.mu.Unlock()
	return nil
}

func (q *MemQueue) Discard(uid string) error {
	q.mu.Lock()

	msg, ok := q.index[uid]
	if !ok {
		q.mu.Unlock()
		return queue.ErrMsgNotFound
	}

	q.removeLocked(msg)
	msg.Status = tether.StatusFailedPermanent
	q.mu.Unlock()

	if q.opts.OnPermanentFailure != nil {
		q.opts.OnPermanentFailure(msg)
	}

	return nil
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.index)
}

func (q *MemQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for rank := range q.buckets {
		q.buckets[rank] = nil
	}
	q.index = make(map[string]*tether.Message)

	return nil
}

// evictLocked picks the message to drop so the incoming one can be
// admitted: the oldest pending low, then the oldest pending normal. A
// critical arrival may additionally displace the oldest pending high.
// Critical messages are never evicted; the caller rejects the incoming
// message instead. Assumes q.mu is held.
func (q *MemQueue) evictLocked(incoming tether.Priority) *tether.Message {
	droppable := []tether.Priority{tether.PriorityLow, tether.PriorityNormal}
	if incoming == tether.PriorityCritical {
		droppable = append(droppable, tether.PriorityHigh)
	}

	for _, tier := range droppable {
		for _, msg := range q.buckets[tier.Rank()] {
			if msg.Status != tether.StatusPending {
				continue
			}

			q.removeLocked(msg)
			msg.Status = tether.StatusFailedPermanent
			return msg
		}
	}

	return nil
}

// removeLocked assumes q.mu is held.
func (q *MemQueue) removeLocked(msg *tether.Message) {
	rank := msg.Priority.Rank()
	q.buckets[rank] = removeFromBucket(q.buckets[rank], msg.UID)
	delete(q.index, msg.UID)
}

func removeFromBucket(bucket []*tether.Message, uid string) []*tether.Message {
	for i, m := range bucket {
		if m.UID == uid {
			return append(bucket[:i], bucket[i+1:]...)
		}
	}

	return bucket
}

var _ queue.Queuer = (*MemQueue)(nil)
