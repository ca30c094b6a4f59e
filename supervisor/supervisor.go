// Package supervisor maintains one resilient, long-lived connection per
// configured endpoint. Each endpoint composes its own circuit breaker,
// bounded priority queue, reconnect scheduler and telemetry stream, so a
// failing endpoint never interferes with a healthy one.
package supervisor

import (
	"context"
	"os"

	"github.com/frain-dev/tether"
	"github.com/frain-dev/tether/backoff"
	"github.com/frain-dev/tether/config"
	"github.com/frain-dev/tether/internal/pkg/scheduler"
	"github.com/frain-dev/tether/internal/pkg/telemetry"
	"github.com/frain-dev/tether/internal/pkg/transport"
	"github.com/frain-dev/tether/pkg/circuit_breaker"
	"github.com/frain-dev/tether/pkg/clock"
	"github.com/frain-dev/tether/pkg/log"
	"github.com/frain-dev/tether/queue"
	"github.com/frain-dev/tether/queue/memqueue"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// ErrEndpointNotFound is returned for operations against an endpoint
	// that was not configured at startup.
	ErrEndpointNotFound = errors.New("[supervisor] endpoint not found")

	// ErrRetryDeferred signals that the circuit breaker refused the
	// attempt; a retry becomes possible once the breaker's reset timeout
	// elapses. The caller is not blocked waiting for it.
	ErrRetryDeferred = errors.New("[supervisor] circuit breaker open, retry deferred")

	// ErrInvalidPriority is returned by Send for an unknown priority tier.
	ErrInvalidPriority = errors.New("[supervisor] invalid message priority")
)

// SendOutcome tells a Send caller what happened to the message.
type SendOutcome string

const (
	// OutcomeSent means the message went over the wire immediately.
	OutcomeSent SendOutcome = "sent"

	// OutcomeQueued means the message is buffered and will be flushed on
	// the next successful connect.
	OutcomeQueued SendOutcome = "queued"

	// OutcomeRejected means the message was not accepted: fatal remote
	// rejection or queue backpressure. The error carries the reason.
	OutcomeRejected SendOutcome = "rejected"
)

// Status is a read-only view of one endpoint, derived on demand; there is
// no second writable copy of this state anywhere.
type Status struct {
	Endpoint            string          `json:"endpoint"`
	State               ConnectionState `json:"state"`
	BreakerState        string          `json:"breaker_state"`
	ConsecutiveFailures uint64          `json:"consecutive_failures"`
	QueueDepth          int             `json:"queue_depth"`
	RetryPending        bool            `json:"retry_pending"`
	ConnectedAt         string          `json:"connected_at,omitempty"`
	LastActivityAt      string          `json:"last_activity_at,omitempty"`
}

type Option func(s *Supervisor)

func WithDialer(d transport.Dialer) Option {
	return func(s *Supervisor) { s.dialer = d }
}

func WithClock(c clock.Clock) Option {
	return func(s *Supervisor) { s.clock = c }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Supervisor) { s.logger = l }
}

func WithTelemetry(agg *telemetry.Aggregator) Option {
	return func(s *Supervisor) { s.telemetry = agg }
}

// WithFailureCallback registers fn to receive messages that failed
// permanently: evicted under backpressure or out of retries.
func WithFailureCallback(fn queue.Callback) Option {
	return func(s *Supervisor) { s.failureFn = fn }
}

type Supervisor struct {
	dialer    transport.Dialer
	clock     clock.Clock
	logger    *log.Logger
	telemetry *telemetry.Aggregator
	failureFn queue.Callback

	// endpoints is built once at construction and read-only afterwards;
	// all mutable state lives inside each endpoint.
	endpoints map[string]*endpoint
}

func New(cfg config.Configuration, opts ...Option) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Supervisor{
		endpoints: make(map[string]*endpoint, len(cfg.Endpoints)),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.clock == nil {
		s.clock = clock.NewRealClock()
	}

	if s.logger == nil {
		s.logger = log.NewLogger(os.Stdout)
		s.logger.SetLevel(log.ParseLevel(cfg.Logger.Level))
	}

	if s.dialer == nil {
		s.dialer = transport.NewWsDialer()
	}

	if s.telemetry == nil {
		s.telemetry = telemetry.NewAggregator(tether.DefaultTelemetryWindow, s.clock)
	}

	s.telemetry.SetSource(s)

	for _, ec := range cfg.Endpoints {
		ep, err := s.buildEndpoint(ec)
		if err != nil {
			return nil, err
		}
		s.endpoints[ec.Name] = ep
	}

	return s, nil
}

func (s *Supervisor) buildEndpoint(ec config.EndpointConfiguration) (*endpoint, error) {
	breaker, err := circuit_breaker.NewBreaker(ec.Name,
		circuit_breaker.ClockOption(s.clock),
		circuit_breaker.LoggerOption(s.logger),
		circuit_breaker.ConfigOption(&circuit_breaker.Config{
			FailureThreshold: ec.FailureThreshold,
			ResetTimeout:     ec.ResetTimeoutDuration(),
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build breaker for endpoint %s", ec.Name)
	}

	name := ec.Name
	q := memqueue.NewMemQueue(memqueue.Options{
		Capacity:      ec.QueueCapacity,
		ReservedSlots: ec.ReservedSlots,
		MaxRetries:    ec.MaxRetries,
		OnEvict: func(msg *tether.Message) {
			s.logger.WithFields(log.Fields{
				"endpoint": name,
				"msg_id":   msg.UID,
				"priority": msg.Priority,
			}).Warn("message evicted under backpressure")

			if s.failureFn != nil {
				s.failureFn(msg)
			}
		},
		OnPermanentFailure: func(msg *tether.Message) {
			s.logger.WithFields(log.Fields{
				"endpoint": name,
				"msg_id":   msg.UID,
				"retries":  msg.RetryCount,
			}).Error("message failed permanently")

			if s.failureFn != nil {
				s.failureFn(msg)
			}
		},
	})

	strategy := backoff.NewStrategy(ec.BaseDelayDuration(), ec.MaxDelayDuration())

	return &endpoint{
		name:    ec.Name,
		cfg:     ec,
		breaker: breaker,
		queue:   q,
		sched:   scheduler.New(strategy, s.logger),
		state:   StateClosed,
		subs:    make(map[string]Handler),
	}, nil
}

// Connect opens the endpoint's connection if the breaker permits it. It is
// a no-op when the connection is already open or being opened. When the
// breaker refuses, ErrRetryDeferred is returned immediately; there is no
// blocking wait.
func (s *Supervisor) Connect(ctx context.Context, name string) error {
	ep, ok := s.endpoints[name]
	if !ok {
		return ErrEndpointNotFound
	}

	return s.connect(ctx, ep)
}

// ConnectAll attempts every configured endpoint. Failures are isolated:
// one endpoint's error never stops the others' attempts.
func (s *Supervisor) ConnectAll(ctx context.Context) {
	for name := range s.endpoints {
		if err := s.Connect(ctx, name); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{"endpoint": name}).Error("initial connect failed")
		}
	}
}

// Disconnect closes the endpoint's connection deliberately; no reconnect
// is scheduled.
func (s *Supervisor) Disconnect(name string) error {
	ep, ok := s.endpoints[name]
	if !ok {
		return ErrEndpointNotFound
	}

	ep.sched.Cancel(name)

	ep.mu.Lock()
	ep.dialGen++ // an in-flight dial must not resurrect the connection
	conn := ep.conn
	if conn == nil {
		ep.state = StateClosed
		ep.mu.Unlock()
		return nil
	}

	ep.state = StateClosing
	ep.conn = nil
	ep.readGen++ // orphan the read loop so it won't schedule a reconnect
	ep.mu.Unlock()

	err := conn.Close()

	ep.mu.Lock()
	ep.state = StateClosed
	ep.attempts = 0
	ep.mu.Unlock()

	s.logger.WithFields(log.Fields{"endpoint": name}).Info("connection closed")
	return err
}

// Send transmits a payload at the given priority. Fatal protocol errors
// surface synchronously and are never retried; transient failures leave
// the message queued for the next successful connect.
func (s *Supervisor) Send(ctx context.Context, name string, payload []byte, priority tether.Priority) (SendOutcome, error) {
	ep, ok := s.endpoints[name]
	if !ok {
		return OutcomeRejected, ErrEndpointNotFound
	}

	if !tether.IsValidPriority(string(priority)) {
		return OutcomeRejected, ErrInvalidPriority
	}

	msg := tether.NewMessage(name, payload, priority, s.clock.Now())

	ep.mu.Lock()
	conn := ep.conn
	open := ep.state == StateOpen
	ep.mu.Unlock()

	if open && conn != nil {
		err := s.writeMessage(ep, conn, msg)
		if err == nil {
			msg.Status = tether.StatusDelivered
			return OutcomeSent, nil
		}

		if !transport.IsRetryable(err) {
			return OutcomeRejected, err
		}
		// transient write failure; fall through and queue it
	}

	if _, err := ep.queue.Enqueue(msg); err != nil {
		return OutcomeRejected, err
	}

	return OutcomeQueued, nil
}

// Subscribe registers a handler for delivered inbound frames and returns
// a token for Unsubscribe.
func (s *Supervisor) Subscribe(name string, h Handler) (string, error) {
	ep, ok := s.endpoints[name]
	if !ok {
		return "", ErrEndpointNotFound
	}

	token := uuid.NewString()

	ep.mu.Lock()
	ep.subs[token] = h
	ep.mu.Unlock()

	return token, nil
}

func (s *Supervisor) Unsubscribe(name, token string) {
	ep, ok := s.endpoints[name]
	if !ok {
		return
	}

	ep.mu.Lock()
	delete(ep.subs, token)
	ep.mu.Unlock()
}

// Status returns the derived view of one endpoint.
func (s *Supervisor) Status(name string) (Status, error) {
	ep, ok := s.endpoints[name]
	if !ok {
		return Status{}, ErrEndpointNotFound
	}

	return s.statusOf(ep), nil
}

// StatusAll returns the derived view of every endpoint.
func (s *Supervisor) StatusAll() map[string]Status {
	out := make(map[string]Status, len(s.endpoints))
	for name, ep := range s.endpoints {
		out[name] = s.statusOf(ep)
	}

	return out
}

func (s *Supervisor) statusOf(ep *endpoint) Status {
	ep.mu.Lock()
	st := Status{
		Endpoint:            ep.name,
		State:               ep.state,
		ConsecutiveFailures: ep.breaker.ConsecutiveFailures(),
		RetryPending:        ep.sched.Pending(ep.name),
	}
	if !ep.connectedAt.IsZero() {
		st.ConnectedAt = ep.connectedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	if !ep.lastActivityAt.IsZero() {
		st.LastActivityAt = ep.lastActivityAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	ep.mu.Unlock()

	st.BreakerState = ep.breaker.State().String()
	st.QueueDepth = ep.queue.Len()

	return st
}

// Telemetry returns the endpoint's current snapshot.
func (s *Supervisor) Telemetry(name string) (telemetry.Snapshot, error) {
	if _, ok := s.endpoints[name]; !ok {
		return telemetry.Snapshot{}, ErrEndpointNotFound
	}

	return s.telemetry.Snapshot(name), nil
}

// TelemetryAll returns a snapshot per configured endpoint.
func (s *Supervisor) TelemetryAll() map[string]telemetry.Snapshot {
	out := make(map[string]telemetry.Snapshot, len(s.endpoints))
	for name := range s.endpoints {
		out[name] = s.telemetry.Snapshot(name)
	}

	return out
}

// Aggregator exposes the underlying telemetry aggregator, e.g. for wiring
// the Prometheus collector.
func (s *Supervisor) Aggregator() *telemetry.Aggregator {
	return s.telemetry
}

// ActiveConnections implements telemetry.GaugeSource.
func (s *Supervisor) ActiveConnections(name string) int {
	ep, ok := s.endpoints[name]
	if !ok {
		return 0
	}

	ep.mu.Lock()
	defer ep.mu.Unlock()

	if ep.state == StateOpen {
		return 1
	}
	return 0
}

// QueueDepth implements telemetry.GaugeSource.
func (s *Supervisor) QueueDepth(name string) int {
	ep, ok := s.endpoints[name]
	if !ok {
		return 0
	}

	return ep.queue.Len()
}

// Close shuts down every endpoint: timers disarmed, connections closed,
// queues released.
func (s *Supervisor) Close() error {
	var firstErr error

	for name, ep := range s.endpoints {
		ep.sched.Stop()

		if err := s.Disconnect(name); err != nil && firstErr == nil {
			firstErr = err
		}

		if err := ep.queue.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

var _ telemetry.GaugeSource = (*Supervisor)(nil)
