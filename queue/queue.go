package queue

import (
	"errors"
	"io"

	"github.com/frain-dev/tether"
)

var (
	// ErrQueueFull signals backpressure: the queue is at capacity and no
	// lower-priority message could be evicted to admit the new one.
	ErrQueueFull = errors.New("queue is full, message rejected")

	// ErrReservedCapacity is returned when a normal or low priority message
	// is refused because the remaining slots are reserved for critical and
	// high priority traffic.
	ErrReservedCapacity = errors.New("remaining capacity is reserved for high priority messages")

	// ErrMsgNotFound is returned for operations on an unknown message id.
	ErrMsgNotFound = errors.New("message not found in queue")
)

// Callback receives a message the queue is done with: evicted under
// backpressure or failed permanently after exhausting its retries.
type Callback func(msg *tether.Message)

// Queuer is a bounded per-endpoint buffer with strict priority ordering:
// buckets are scanned critical first, FIFO within each tier.
type Queuer interface {
	io.Closer

	// Enqueue admits a message and returns its id. It may evict the oldest
	// droppable lower-priority message to make room; a critical message is
	// never evicted silently.
	Enqueue(msg *tether.Message) (string, error)

	// PeekNext returns the highest-priority pending message and marks it
	// in-flight, or nil when nothing is pending.
	PeekNext() *tether.Message

	// MarkDelivered removes a delivered message.
	MarkDelivered(uid string) error

	// MarkFailed re-enqueues a message at the tail of its own tier, or
	// removes it permanently once its retries are exhausted.
	MarkFailed(uid string) error

	// Discard removes a message without retrying, for failures that no
	// amount of retrying will fix.
	Discard(uid string) error

	Len() int
}
