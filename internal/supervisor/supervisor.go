// Package supervisor owns the bot's outer loop. It is the only place that
// decides between retrying a failed poll cycle in place and tearing the
// session down for a full reconnect.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kasbot/internal/config"
	"kasbot/internal/logging"
	"kasbot/internal/metrics"
	"kasbot/internal/poller"
	"kasbot/internal/retry"
	"kasbot/internal/session"
)

// Connector establishes and releases sessions. *session.Controller
// implements it.
type Connector interface {
	Connect(ctx context.Context) (*session.Session, error)
	Cleanup() error
}

// Cycler runs poll cycles. *poller.Poller implements it.
type Cycler interface {
	Cycle(ctx context.Context, sess *session.Session) (poller.Stats, error)
	Reset()
}

// Config holds supervisor settings.
type Config struct {
	Interval time.Duration
	Backoff  retry.Policy
}

// ConfigFrom maps the application config onto supervisor settings.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Interval: cfg.Poller.GetInterval(),
		Backoff: retry.Policy{
			Base:   cfg.Supervisor.GetBackoffBase(),
			Jitter: cfg.Supervisor.GetBackoffJitter(),
			Cap:    cfg.Supervisor.GetBackoffCap(),
		},
	}
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithSleep replaces the wait between cycles and backoff sleeps.
func WithSleep(fn retry.SleepFunc) Option {
	return func(s *Supervisor) { s.sleep = fn }
}

// WithMetrics attaches collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// Supervisor drives a Connector and a Cycler.
type Supervisor struct {
	cfg     Config
	conn    Connector
	cycler  Cycler
	sleep   retry.SleepFunc
	metrics *metrics.Metrics
}

// New creates a supervisor.
func New(cfg Config, conn Connector, cycler Cycler, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:    cfg,
		conn:   conn,
		cycler: cycler,
		sleep:  retry.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run connects and polls until ctx ends or a connect fails. The session is
// released on every exit path.
func (s *Supervisor) Run(ctx context.Context) (err error) {
	defer func() {
		if cerr := s.conn.Cleanup(); cerr != nil {
			logging.SupervisorWarn("cleanup on exit: %v", cerr)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.SupervisorError("supervisor stopped: %v", err)
		} else {
			logging.Supervisor("supervisor stopped")
		}
	}()

	sess, err := s.conn.Connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("connect: %w", err)
	}
	s.cycler.Reset()
	logging.Supervisor("session %s connected, polling every %v", sess.ID, s.cfg.Interval)

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stats, cerr := s.cycler.Cycle(ctx, sess)
		switch {
		case cerr == nil:
			failures = 0
			if stats.Conversations > 0 {
				logging.Supervisor("cycle: %d conversations, %d processed, %d skipped, %d failed in %v",
					stats.Conversations, stats.Processed, stats.Skipped, stats.Failed, stats.Duration)
			}
			if err := s.sleep(ctx, s.cfg.Interval); err != nil {
				return err
			}

		case ctx.Err() != nil:
			return ctx.Err()

		case errors.Is(cerr, session.ErrSessionDead):
			next, err := s.reconnect(ctx, sess, cerr)
			if err != nil {
				return err
			}
			sess = next
			failures = 0

		default:
			delay := s.cfg.Backoff.Exponential(failures)
			failures++
			logging.SupervisorWarn("cycle failed (%d in a row), retrying in %v: %v", failures, delay, cerr)
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
}

// reconnect releases the dead session exactly once and connects a new one.
func (s *Supervisor) reconnect(ctx context.Context, dead *session.Session, cause error) (*session.Session, error) {
	logging.SupervisorWarn("session %s is dead, reconnecting: %v", dead.ID, cause)
	logging.AuditWithSession(dead.ID).Log(logging.AuditEvent{
		EventType: logging.AuditSessionDead,
		Error:     cause.Error(),
	})

	if err := s.conn.Cleanup(); err != nil {
		logging.SupervisorWarn("cleanup of dead session reported: %v", err)
	}
	s.cycler.Reset()
	s.metrics.Reconnect()

	next, err := s.conn.Connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reconnect: %w", err)
	}
	logging.AuditWithSession(next.ID).Log(logging.AuditEvent{
		EventType: logging.AuditReconnect,
		Success:   true,
		Target:    next.WorkDir,
	})
	logging.Supervisor("session %s connected after reconnect", next.ID)
	return next, nil
}
