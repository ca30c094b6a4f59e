package tether

import "time"

// Version is the current release, set at build time via ldflags.
var Version = "0.1.0"

const (
	// DefaultFailureThreshold is the number of consecutive connection
	// failures after which an endpoint's circuit breaker trips open.
	DefaultFailureThreshold uint64 = 5

	// DefaultResetTimeout is how long a tripped breaker stays open before
	// permitting a half-open probe.
	DefaultResetTimeout = 60 * time.Second

	DefaultBaseDelay       = 1 * time.Second
	DefaultMaxDelay        = 30 * time.Second
	DefaultStableThreshold = 30 * time.Second

	DefaultQueueCapacity          = 10_000
	DefaultMaxRetries      uint64 = 3

	// DefaultTelemetryWindow is the number of samples retained per
	// (endpoint, metric) ring.
	DefaultTelemetryWindow = 100

	DefaultAdvisorTimeout = 5 * time.Second
)
