package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Frame is the unit of exchange on a connection. Every inbound frame
// carries a type, an opaque payload and the sender's timestamp.
type Frame struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// ConnectionError wraps transient transport failures: timeouts, resets,
// DNS errors, dropped connections. Safe to retry.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError is a fatal, non-retryable rejection by the remote side:
// malformed request, policy violation, rejected handshake. Retrying the
// same message cannot succeed.
type ProtocolError struct {
	Code   int
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error (code %d): %s", e.Code, e.Reason)
}

// IsRetryable reports whether an error is worth retrying. Unknown errors
// count as retryable; only a definite protocol rejection is fatal.
func IsRetryable(err error) bool {
	var pe *ProtocolError
	return !errors.As(err, &pe)
}

// Conn is a single live, message-framed, bidirectional connection.
type Conn interface {
	// ReadFrame blocks until a frame arrives or the connection fails.
	ReadFrame() (*Frame, error)

	// WriteFrame sends one frame.
	WriteFrame(f *Frame) error

	Close() error
}

// Dialer opens connections; the supervisor owns what it returns.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}
