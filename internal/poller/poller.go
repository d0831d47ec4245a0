// Package poller scans the chat client for unread conversations and hands
// the newest incoming message of each to a Handler, strictly in order.
//
// Two failure counters are kept. The cycle counter is reset at the start of
// every cycle and after every successfully extracted message; reaching
// MaxConsecutiveErrors declares the session dead. The session counter
// accumulates every failure until Reset is called on reconnect; reaching
// MaxSessionErrors (when non-zero) also declares the session dead.
package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kasbot/internal/browser"
	"kasbot/internal/config"
	"kasbot/internal/logging"
	"kasbot/internal/metrics"
	"kasbot/internal/retry"
	"kasbot/internal/session"
)

// IncomingMessage is the newest message of one unread conversation. Empty
// Text means there was nothing to process.
type IncomingMessage struct {
	Text         string
	Conversation browser.Element
	ObservedAt   time.Time
}

// Handler consumes extracted messages. Returning an error that matches
// session.ErrSessionDead aborts the cycle.
type Handler interface {
	HandleMessage(ctx context.Context, sess *session.Session, msg IncomingMessage) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, sess *session.Session, msg IncomingMessage) error

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(ctx context.Context, sess *session.Session, msg IncomingMessage) error {
	return f(ctx, sess, msg)
}

// TransientLookupError means the unread lookup kept failing within a cycle.
type TransientLookupError struct {
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *TransientLookupError) Error() string {
	return fmt.Sprintf("unread lookup failed after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As compatibility.
func (e *TransientLookupError) Unwrap() error { return e.Err }

// Config holds the poller's settings.
type Config struct {
	UnreadSelectors   []string
	IncomingSelectors []string

	LookupRetries    int
	LookupRetryDelay time.Duration
	ClickAttempts    int
	ClickRetryDelay  time.Duration
	SettleDelay      time.Duration

	MaxConsecutiveErrors int
	MaxSessionErrors     int
}

// ConfigFrom maps the application config onto poller settings.
func ConfigFrom(cfg *config.Config) Config {
	p := cfg.Poller
	return Config{
		UnreadSelectors:      cfg.Selectors.Unread,
		IncomingSelectors:    cfg.Selectors.Incoming,
		LookupRetries:        p.LookupRetries,
		LookupRetryDelay:     p.GetLookupRetryDelay(),
		ClickAttempts:        p.ClickAttempts,
		ClickRetryDelay:      p.GetClickRetryDelay(),
		SettleDelay:          p.GetSettleDelay(),
		MaxConsecutiveErrors: p.MaxConsecutiveErrors,
		MaxSessionErrors:     p.MaxSessionErrors,
	}
}

// Stats summarizes one cycle.
type Stats struct {
	Conversations int
	Processed     int
	Skipped       int
	Failed        int
	Duration      time.Duration
}

// Option customizes a Poller.
type Option func(*Poller)

// WithSleep replaces the fixed-delay sleep.
func WithSleep(fn retry.SleepFunc) Option {
	return func(p *Poller) { p.sleep = fn }
}

// WithMetrics attaches collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

// WithClock replaces time.Now for ObservedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// Poller runs poll cycles. It is driven by a single goroutine and is not safe
// for concurrent use.
type Poller struct {
	cfg     Config
	handler Handler
	sleep   retry.SleepFunc
	metrics *metrics.Metrics
	now     func() time.Time

	cycleErrors   int
	sessionErrors int
}

// New creates a poller delivering messages to h.
func New(cfg Config, h Handler, opts ...Option) *Poller {
	if cfg.LookupRetries < 1 {
		cfg.LookupRetries = 1
	}
	if cfg.ClickAttempts < 1 {
		cfg.ClickAttempts = 1
	}
	if cfg.MaxConsecutiveErrors < 1 {
		cfg.MaxConsecutiveErrors = 5
	}
	p := &Poller{
		cfg:     cfg,
		handler: h,
		sleep:   retry.Sleep,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Reset clears both failure counters. The supervisor calls it on reconnect.
func (p *Poller) Reset() {
	p.cycleErrors = 0
	p.sessionErrors = 0
	p.metrics.SetSessionErrors(0)
}

// SessionErrors returns the failures accumulated since the last Reset.
func (p *Poller) SessionErrors() int {
	return p.sessionErrors
}

// Cycle runs one poll cycle against sess.
func (p *Poller) Cycle(ctx context.Context, sess *session.Session) (stats Stats, err error) {
	start := time.Now()
	defer func() {
		stats.Duration = time.Since(start)
		p.metrics.ObserveCycle(cycleResult(err), stats.Duration)
	}()

	p.cycleErrors = 0

	drv, err := sess.Driver()
	if err != nil {
		return stats, err
	}

	actx, cancel := sess.ActionContext(ctx)
	alive := drv.Alive(actx)
	cancel()
	if !alive {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		logging.PollerError("liveness probe failed")
		return stats, session.Dead("driver is not responsive", nil)
	}

	unread, err := p.findUnread(ctx, sess, drv)
	if err != nil {
		return stats, err
	}
	if len(unread) == 0 {
		return stats, nil
	}
	logging.PollerDebug("found %d unread conversations", len(unread))

	for i, conv := range unread {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Conversations++

		msg, err := p.extract(ctx, sess, drv, conv)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			logging.PollerWarn("conversation %d/%d: %v", i+1, len(unread), err)
			if dead := p.recordFailure(err); dead != nil {
				return stats, dead
			}
			continue
		}
		if msg.Text == "" {
			stats.Skipped++
			logging.PollerDebug("conversation %d/%d has no text, skipping", i+1, len(unread))
			continue
		}

		p.cycleErrors = 0
		stats.Processed++
		p.metrics.MessageProcessed()

		if err := p.handler.HandleMessage(ctx, sess, msg); err != nil {
			if errors.Is(err, session.ErrSessionDead) {
				return stats, err
			}
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			logging.PollerWarn("handler failed for conversation %d/%d: %v", i+1, len(unread), err)
		}
	}
	return stats, nil
}

// findUnread looks up unread conversations, retrying with a fixed delay.
func (p *Poller) findUnread(ctx context.Context, sess *session.Session, drv browser.Driver) ([]browser.Element, error) {
	for attempt := 1; ; attempt++ {
		actx, cancel := sess.ActionContext(ctx)
		els, err := drv.FindElements(actx, p.cfg.UnreadSelectors)
		cancel()
		if err == nil {
			return els, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if dead := p.recordFailure(err); dead != nil {
			return nil, dead
		}
		if attempt >= p.cfg.LookupRetries {
			return nil, &TransientLookupError{Attempts: attempt, Err: err}
		}
		logging.PollerWarn("unread lookup attempt %d/%d failed: %v", attempt, p.cfg.LookupRetries, err)
		if err := p.sleep(ctx, p.cfg.LookupRetryDelay); err != nil {
			return nil, err
		}
	}
}

// extract opens conv and reads its last incoming message.
func (p *Poller) extract(ctx context.Context, sess *session.Session, drv browser.Driver, conv browser.Element) (IncomingMessage, error) {
	var err error
	for attempt := 1; attempt <= p.cfg.ClickAttempts; attempt++ {
		actx, cancel := sess.ActionContext(ctx)
		err = drv.Click(actx, conv)
		cancel()
		if err == nil {
			break
		}
		logging.PollerDebug("click attempt %d/%d failed: %v", attempt, p.cfg.ClickAttempts, err)
		if attempt < p.cfg.ClickAttempts {
			if serr := p.sleep(ctx, p.cfg.ClickRetryDelay); serr != nil {
				return IncomingMessage{}, serr
			}
		}
	}
	if err != nil {
		return IncomingMessage{}, fmt.Errorf("open conversation after %d attempts: %w", p.cfg.ClickAttempts, err)
	}

	if err := p.sleep(ctx, p.cfg.SettleDelay); err != nil {
		return IncomingMessage{}, err
	}

	actx, cancel := sess.ActionContext(ctx)
	defer cancel()
	msgs, err := drv.FindElements(actx, p.cfg.IncomingSelectors)
	if err != nil {
		return IncomingMessage{}, fmt.Errorf("find incoming messages: %w", err)
	}
	if len(msgs) == 0 {
		return IncomingMessage{Conversation: conv, ObservedAt: p.now()}, nil
	}
	text, err := drv.Text(actx, msgs[len(msgs)-1])
	if err != nil {
		return IncomingMessage{}, fmt.Errorf("read last message: %w", err)
	}
	return IncomingMessage{
		Text:         strings.TrimSpace(text),
		Conversation: conv,
		ObservedAt:   p.now(),
	}, nil
}

// recordFailure bumps both counters and returns a dead-session error once a
// threshold is reached.
func (p *Poller) recordFailure(cause error) error {
	p.cycleErrors++
	p.sessionErrors++
	p.metrics.SetSessionErrors(p.sessionErrors)

	if p.cycleErrors >= p.cfg.MaxConsecutiveErrors {
		logging.PollerError("%d consecutive errors, declaring session dead", p.cycleErrors)
		return session.Dead(fmt.Sprintf("%d consecutive errors", p.cycleErrors), cause)
	}
	if p.cfg.MaxSessionErrors > 0 && p.sessionErrors >= p.cfg.MaxSessionErrors {
		logging.PollerError("%d errors this session, declaring session dead", p.sessionErrors)
		return session.Dead(fmt.Sprintf("%d errors this session", p.sessionErrors), cause)
	}
	return nil
}

func cycleResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, session.ErrSessionDead):
		return "dead"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
