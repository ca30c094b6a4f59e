package models

import (
	"encoding/json"
	"errors"

	"github.com/frain-dev/tether"
)

// SendMessage is the request body for publishing a message to an endpoint.
type SendMessage struct {
	// Payload is an arbitrary JSON document forwarded verbatim.
	Payload json.RawMessage `json:"payload"`

	// Priority is one of critical, high, normal, low. Defaults to normal.
	Priority string `json:"priority"`
}

func (s *SendMessage) Validate() error {
	if len(s.Payload) == 0 {
		return errors.New("payload is required")
	}

	if s.Priority == "" {
		s.Priority = string(tether.PriorityNormal)
	}

	if !tether.IsValidPriority(s.Priority) {
		return errors.New("priority must be one of critical, high, normal, low")
	}

	return nil
}

// SendMessageResponse reports what happened to a published message.
type SendMessageResponse struct {
	Outcome string `json:"outcome"`
}
