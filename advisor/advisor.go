// Package advisor turns telemetry snapshots into tuning recommendations.
// Advice is strictly best-effort: a slow or failing advisor degrades to a
// no-op recommendation and never stalls the connection path.
package advisor

import (
	"context"
	"os"
	"time"

	"github.com/frain-dev/tether"
	"github.com/frain-dev/tether/internal/pkg/telemetry"
	"github.com/frain-dev/tether/pkg/log"
)

// Action is the adjustment an advisor suggests for an endpoint.
type Action string

const (
	// ActionNone means the endpoint looks healthy; change nothing.
	ActionNone Action = "none"

	// ActionBackOff suggests slowing down: widen backoff, shed low
	// priority traffic.
	ActionBackOff Action = "back_off"

	// ActionSpeedUp suggests the endpoint has headroom and retry delays
	// can be tightened.
	ActionSpeedUp Action = "speed_up"
)

// Recommendation is the advisor's verdict for a single endpoint.
type Recommendation struct {
	Endpoint string  `json:"endpoint"`
	Action   Action  `json:"action"`
	Reason   string  `json:"reason"`
	Score    float64 `json:"score"`
}

// Advisor analyses one endpoint's telemetry snapshot. Implementations may
// be arbitrarily slow or remote; the Client enforces the deadline.
type Advisor interface {
	Advise(ctx context.Context, snap telemetry.Snapshot) (*Recommendation, error)
}

// NoopAdvisor always recommends no change. It is the fallback when no real
// advisor is configured.
type NoopAdvisor struct{}

func (NoopAdvisor) Advise(_ context.Context, snap telemetry.Snapshot) (*Recommendation, error) {
	return &Recommendation{Endpoint: snap.Endpoint, Action: ActionNone}, nil
}

type ClientOption func(c *Client)

func TimeoutOption(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func LoggerOption(l *log.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client wraps an Advisor with a hard deadline and a no-op fallback. The
// wrapped advisor runs on its own goroutine so a hung implementation
// cannot block the caller past the timeout.
type Client struct {
	advisor Advisor
	timeout time.Duration
	logger  *log.Logger
}

func NewClient(a Advisor, opts ...ClientOption) *Client {
	c := &Client{
		advisor: a,
		timeout: tether.DefaultAdvisorTimeout,
		logger:  log.NewLogger(os.Stdout),
	}

	if c.advisor == nil {
		c.advisor = NoopAdvisor{}
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type adviseResult struct {
	rec *Recommendation
	err error
}

// Advise asks the wrapped advisor for a recommendation. Any failure, late
// answer included, is logged and replaced with a no-op recommendation so
// callers never have to handle advisor errors.
func (c *Client) Advise(ctx context.Context, snap telemetry.Snapshot) *Recommendation {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ch := make(chan adviseResult, 1)
	go func() {
		rec, err := c.advisor.Advise(ctx, snap)
		ch <- adviseResult{rec: rec, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			c.logger.WithError(res.err).WithFields(log.Fields{"endpoint": snap.Endpoint}).Warn("advisor failed, applying no-op recommendation")
			return &Recommendation{Endpoint: snap.Endpoint, Action: ActionNone}
		}

		if res.rec == nil {
			return &Recommendation{Endpoint: snap.Endpoint, Action: ActionNone}
		}

		return res.rec
	case <-ctx.Done():
		c.logger.WithError(ctx.Err()).WithFields(log.Fields{"endpoint": snap.Endpoint}).Warn("advisor timed out, applying no-op recommendation")
		return &Recommendation{Endpoint: snap.Endpoint, Action: ActionNone}
	}
}

var _ Advisor = NoopAdvisor{}
