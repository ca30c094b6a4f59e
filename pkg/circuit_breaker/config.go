package circuit_breaker

import (
	"errors"
	"time"

	"github.com/frain-dev/tether"
)

var (
	ErrInvalidFailureThreshold = errors.New("[circuit breaker] failure threshold must be greater than zero")
	ErrInvalidResetTimeout     = errors.New("[circuit breaker] reset timeout must be greater than zero")
)

// Config holds the tunables of a single breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures after which
	// the breaker trips from closed to open.
	FailureThreshold uint64 `json:"failure_threshold"`

	// ResetTimeout is how long the breaker stays open before permitting
	// a half-open probe.
	ResetTimeout time.Duration `json:"reset_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: tether.DefaultFailureThreshold,
		ResetTimeout:     tether.DefaultResetTimeout,
	}
}

func (c *Config) Validate() error {
	if c.FailureThreshold == 0 {
		return ErrInvalidFailureThreshold
	}

	if c.ResetTimeout <= 0 {
		return ErrInvalidResetTimeout
	}

	return nil
}
