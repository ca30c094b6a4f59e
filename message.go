package tether

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Priority governs delivery and eviction order of queued messages.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Tiers lists all priorities from most to least urgent. Queue buckets are
// scanned in this order.
var Tiers = []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}

func IsValidPriority(s string) bool {
	switch Priority(s) {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Rank returns the bucket index of a priority; critical is 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	default:
		return 3
	}
}

func (p Priority) String() string {
	return string(p)
}

type MessageStatus string

const (
	StatusPending         MessageStatus = "pending"
	StatusInFlight        MessageStatus = "in-flight"
	StatusDelivered       MessageStatus = "delivered"
	StatusFailedPermanent MessageStatus = "failed-permanent"
)

// Message is the envelope for one outbound payload queued against an
// endpoint. RetryCount only ever grows until the status becomes terminal.
type Message struct {
	UID        string          `json:"uid"`
	Endpoint   string          `json:"endpoint"`
	Payload    json.RawMessage `json:"payload"`
	Priority   Priority        `json:"priority"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RetryCount uint64          `json:"retry_count"`
	Status     MessageStatus   `json:"status"`
}

func NewMessage(endpoint string, payload []byte, priority Priority, now time.Time) *Message {
	return &Message{
		UID:        ulid.Make().String(),
		Endpoint:   endpoint,
		Payload:    payload,
		Priority:   priority,
		EnqueuedAt: now,
		Status:     StatusPending,
	}
}
