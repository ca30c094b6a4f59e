package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/frain-dev/tether"
	"github.com/frain-dev/tether/config"
	"github.com/frain-dev/tether/internal/pkg/scheduler"
	"github.com/frain-dev/tether/internal/pkg/telemetry"
	"github.com/frain-dev/tether/internal/pkg/transport"
	"github.com/frain-dev/tether/pkg/circuit_breaker"
	"github.com/frain-dev/tether/pkg/log"
	"github.com/frain-dev/tether/queue"
)

// ConnectionState is the lifecycle state of an endpoint's connection.
type ConnectionState string

const (
	StateClosed     ConnectionState = "closed"
	StateConnecting ConnectionState = "connecting"
	StateOpen       ConnectionState = "open"
	StateClosing    ConnectionState = "closing"
)

// Handler receives delivered inbound frames for a subscribed endpoint.
type Handler func(endpoint string, f *transport.Frame)

// endpoint owns all mutable state for one stream target. Its breaker,
// queue and scheduler are private to it, so endpoints never contend with
// each other; network I/O always happens outside ep.mu.
type endpoint struct {
	name    string
	cfg     config.EndpointConfiguration
	breaker *circuit_breaker.Breaker
	queue   queue.Queuer
	sched   *scheduler.Scheduler

	mu             sync.Mutex
	state          ConnectionState
	conn           transport.Conn
	connectedAt    time.Time
	lastActivityAt time.Time
	attempts       uint64
	readGen        uint64
	dialGen        uint64
	subs           map[string]Handler
}

func (s *Supervisor) connect(ctx context.Context, ep *endpoint) error {
	ep.mu.Lock()
	if ep.state == StateOpen || ep.state == StateConnecting {
		ep.mu.Unlock()
		return nil
	}

	if !ep.breaker.CanAttempt() {
		ep.mu.Unlock()
		return ErrRetryDeferred
	}

	ep.state = StateConnecting
	ep.dialGen++
	dialGen := ep.dialGen
	ep.mu.Unlock()

	start := s.clock.Now()
	conn, err := s.dialer.Dial(ctx, ep.cfg.URL)
	if err != nil {
		s.onConnectFailure(ep, dialGen, err)
		return err
	}

	latency := s.clock.Now().Sub(start)

	now := s.clock.Now()
	ep.mu.Lock()
	if ep.dialGen != dialGen {
		// a deliberate Disconnect (or a newer dial) superseded this one
		ep.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	ep.conn = conn
	ep.state = StateOpen
	ep.connectedAt = now
	ep.lastActivityAt = now
	ep.readGen++
	gen := ep.readGen
	ep.mu.Unlock()

	s.telemetry.Record(ep.name, telemetry.MetricLatency, float64(latency.Milliseconds()))
	s.telemetry.Record(ep.name, telemetry.MetricError, 0)

	ep.breaker.RecordSuccess()
	ep.sched.Cancel(ep.name)

	s.logger.WithFields(log.Fields{"endpoint": ep.name}).Info("connection open")

	go s.readLoop(ep, conn, gen)

	s.flush(ep, conn)
	return nil
}

func (s *Supervisor) onConnectFailure(ep *endpoint, dialGen uint64, err error) {
	ep.mu.Lock()
	if ep.dialGen != dialGen {
		// a deliberate Disconnect superseded this dial; its failure is moot
		ep.mu.Unlock()
		return
	}
	ep.state = StateClosed
	attempt := ep.attempts
	ep.attempts++
	ep.mu.Unlock()

	s.telemetry.Record(ep.name, telemetry.MetricError, 1)
	ep.breaker.RecordFailure()

	s.logger.WithError(err).WithFields(log.Fields{
		"endpoint": ep.name,
		"attempt":  attempt,
	}).Error("connection attempt failed")

	if transport.IsRetryable(err) {
		s.armRetry(ep, attempt)
	}
}

// armRetry schedules the next connection attempt. While the breaker is open
// the backoff delay is stretched to its reset deadline, so the timer fires
// when the half-open probe is permitted instead of burning an attempt the
// breaker would refuse.
func (s *Supervisor) armRetry(ep *endpoint, attempt uint64) {
	delay := ep.sched.Delay(attempt)
	if until := ep.breaker.WillResetAt().Sub(s.clock.Now()); until > delay {
		delay = until
	}

	ep.sched.ScheduleRetryIn(ep.name, delay, func() {
		if err := s.Connect(context.Background(), ep.name); err != nil {
			s.logger.WithError(err).WithFields(log.Fields{"endpoint": ep.name}).Debug("scheduled reconnect failed")
		}
	})
}

// readLoop pumps inbound frames to subscribers until the connection fails.
// gen ties the loop to the connection it was started for; a stale loop
// must not trigger reconnection for its successor.
func (s *Supervisor) readLoop(ep *endpoint, conn transport.Conn, gen uint64) {
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			s.onConnectionLost(ep, conn, gen, err)
			return
		}

		now := s.clock.Now()
		ep.mu.Lock()
		if ep.readGen != gen {
			ep.mu.Unlock()
			return
		}
		ep.lastActivityAt = now
		subs := make([]Handler, 0, len(ep.subs))
		for _, h := range ep.subs {
			subs = append(subs, h)
		}
		ep.mu.Unlock()

		s.telemetry.Record(ep.name, telemetry.MetricThroughput, 1)

		for _, h := range subs {
			h(ep.name, f)
		}
	}
}

func (s *Supervisor) onConnectionLost(ep *endpoint, conn transport.Conn, gen uint64, err error) {
	now := s.clock.Now()

	ep.mu.Lock()
	if ep.readGen != gen {
		// deliberate disconnect or superseded connection
		ep.mu.Unlock()
		return
	}

	ep.readGen++
	ep.conn = nil
	ep.state = StateClosed

	// a connection that stayed up long enough starts its backoff over
	if now.Sub(ep.connectedAt) >= ep.cfg.StableThresholdDuration() {
		ep.attempts = 0
	}

	attempt := ep.attempts
	ep.attempts++
	ep.mu.Unlock()

	_ = conn.Close()

	s.telemetry.Record(ep.name, telemetry.MetricError, 1)
	s.logger.WithError(err).WithFields(log.Fields{"endpoint": ep.name}).Warn("connection lost")

	if transport.IsRetryable(err) {
		s.armRetry(ep, attempt)
		return
	}

	s.logger.WithFields(log.Fields{"endpoint": ep.name}).Error("connection closed by protocol rejection; not reconnecting")
}

// flush drains the endpoint's queue in priority order until it is empty or
// the transport gives out.
func (s *Supervisor) flush(ep *endpoint, conn transport.Conn) {
	for {
		msg := ep.queue.PeekNext()
		if msg == nil {
			return
		}

		err := s.writeMessage(ep, conn, msg)
		if err == nil {
			if mErr := ep.queue.MarkDelivered(msg.UID); mErr != nil {
				s.logger.WithError(mErr).WithFields(log.Fields{"endpoint": ep.name, "msg_id": msg.UID}).Error("failed to mark message delivered")
			}
			continue
		}

		if !transport.IsRetryable(err) {
			s.logger.WithError(err).WithFields(log.Fields{"endpoint": ep.name, "msg_id": msg.UID}).Error("message rejected by remote; discarding")
			_ = ep.queue.Discard(msg.UID)
			continue
		}

		// transport capacity exhausted; the message goes back to its tier
		// and the next successful connect resumes the drain
		_ = ep.queue.MarkFailed(msg.UID)
		return
	}
}

func (s *Supervisor) writeMessage(ep *endpoint, conn transport.Conn, msg *tether.Message) error {
	start := s.clock.Now()

	err := conn.WriteFrame(&transport.Frame{
		Type:      "message",
		Payload:   msg.Payload,
		Timestamp: start,
	})
	if err != nil {
		s.telemetry.Record(ep.name, telemetry.MetricError, 1)
		return err
	}

	s.telemetry.Record(ep.name, telemetry.MetricLatency, float64(s.clock.Now().Sub(start).Milliseconds()))
	s.telemetry.Record(ep.name, telemetry.MetricThroughput, 1)
	s.telemetry.Record(ep.name, telemetry.MetricError, 0)

	ep.mu.Lock()
	ep.lastActivityAt = s.clock.Now()
	ep.mu.Unlock()

	return nil
}
