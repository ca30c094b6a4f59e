package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/frain-dev/tether"
	"github.com/kelseyhightower/envconfig"
)

var cfgSingleton atomic.Value

var (
	ErrNoEndpoints        = errors.New("at least one endpoint must be configured")
	ErrConfigNotLoaded    = errors.New("call LoadConfig before accessing the configuration")
	ErrDuplicateEndpoints = errors.New("endpoint names must be unique")
)

type LoggerConfiguration struct {
	Level string `json:"level" envconfig:"TETHER_LOG_LEVEL"`
}

type ServerConfiguration struct {
	Port uint32 `json:"port" envconfig:"TETHER_API_PORT"`
}

type AdvisorConfiguration struct {
	// Timeout bounds a single Advise call, in seconds.
	Timeout uint64 `json:"timeout" envconfig:"TETHER_ADVISOR_TIMEOUT"`
}

// EndpointConfiguration describes one logical stream target. Zero values are
// replaced with package defaults at load time.
type EndpointConfiguration struct {
	Name string `json:"name"`
	URL  string `json:"url"`

	// Breaker settings.
	FailureThreshold uint64 `json:"failure_threshold"`
	ResetTimeout     uint64 `json:"reset_timeout"` // seconds

	// Reconnection backoff settings, in seconds.
	BaseDelay       uint64 `json:"base_delay"`
	MaxDelay        uint64 `json:"max_delay"`
	StableThreshold uint64 `json:"stable_threshold"`

	// Queue settings.
	QueueCapacity int    `json:"queue_capacity"`
	ReservedSlots int    `json:"reserved_slots"`
	MaxRetries    uint64 `json:"max_retries"`
}

func (e *EndpointConfiguration) ResetTimeoutDuration() time.Duration {
	return time.Duration(e.ResetTimeout) * time.Second
}

func (e *EndpointConfiguration) BaseDelayDuration() time.Duration {
	return time.Duration(e.BaseDelay) * time.Second
}

func (e *EndpointConfiguration) MaxDelayDuration() time.Duration {
	return time.Duration(e.MaxDelay) * time.Second
}

func (e *EndpointConfiguration) StableThresholdDuration() time.Duration {
	return time.Duration(e.StableThreshold) * time.Second
}

type Configuration struct {
	Logger    LoggerConfiguration     `json:"logger"`
	Server    ServerConfiguration     `json:"server"`
	Advisor   AdvisorConfiguration    `json:"advisor"`
	Endpoints []EndpointConfiguration `json:"endpoints"`
}

// LoadConfig reads the JSON config file at p, applies env var overrides and
// defaults, validates the result and stores it in the package singleton.
func LoadConfig(p string) error {
	c := &Configuration{}

	if _, err := os.Stat(p); err == nil {
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := json.NewDecoder(f).Decode(c); err != nil {
			return fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	// env vars take precedence over the config file
	if err := envconfig.Process("tether", c); err != nil {
		return err
	}

	ensureDefaults(c)

	if err := c.Validate(); err != nil {
		return err
	}

	cfgSingleton.Store(c)
	return nil
}

// Get fetches the application configuration. LoadConfig must have been
// called previously for this to work.
func Get() (Configuration, error) {
	c, ok := cfgSingleton.Load().(*Configuration)
	if !ok {
		return Configuration{}, ErrConfigNotLoaded
	}

	return *c, nil
}

// Override replaces the stored configuration; used in tests.
func Override(c *Configuration) {
	ensureDefaults(c)
	cfgSingleton.Store(c)
}

func ensureDefaults(c *Configuration) {
	if c.Logger.Level == "" {
		c.Logger.Level = "error"
	}

	if c.Server.Port == 0 {
		c.Server.Port = 5030
	}

	if c.Advisor.Timeout == 0 {
		c.Advisor.Timeout = uint64(tether.DefaultAdvisorTimeout / time.Second)
	}

	for i := range c.Endpoints {
		e := &c.Endpoints[i]

		if e.FailureThreshold == 0 {
			e.FailureThreshold = tether.DefaultFailureThreshold
		}

		if e.ResetTimeout == 0 {
			e.ResetTimeout = uint64(tether.DefaultResetTimeout / time.Second)
		}

		if e.BaseDelay == 0 {
			e.BaseDelay = uint64(tether.DefaultBaseDelay / time.Second)
		}

		if e.MaxDelay == 0 {
			e.MaxDelay = uint64(tether.DefaultMaxDelay / time.Second)
		}

		if e.StableThreshold == 0 {
			e.StableThreshold = uint64(tether.DefaultStableThreshold / time.Second)
		}

		if e.QueueCapacity == 0 {
			e.QueueCapacity = tether.DefaultQueueCapacity
		}

		if e.MaxRetries == 0 {
			e.MaxRetries = tether.DefaultMaxRetries
		}
	}
}

func (c *Configuration) Validate() error {
	if len(c.Endpoints) == 0 {
		return ErrNoEndpoints
	}

	seen := make(map[string]struct{}, len(c.Endpoints))
	for i := range c.Endpoints {
		e := &c.Endpoints[i]

		if e.Name == "" {
			return fmt.Errorf("endpoint at index %d has no name", i)
		}

		if _, ok := seen[e.Name]; ok {
			return ErrDuplicateEndpoints
		}
		seen[e.Name] = struct{}{}

		if e.URL == "" {
			return fmt.Errorf("endpoint %s has no url", e.Name)
		}

		if e.ReservedSlots < 0 || e.ReservedSlots >= e.QueueCapacity {
			return fmt.Errorf("endpoint %s: reserved slots must be within queue capacity", e.Name)
		}
	}

	return nil
}
