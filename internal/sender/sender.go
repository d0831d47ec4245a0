// Package sender delivers replies into the open conversation.
package sender

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kasbot/internal/browser"
	"kasbot/internal/config"
	"kasbot/internal/logging"
	"kasbot/internal/retry"
	"kasbot/internal/session"
)

const confirmPoll = 200 * time.Millisecond

// errNotConfirmed means a submit went through but the input did not clear in time.
var errNotConfirmed = errors.New("message input not cleared")

// SendFailureError reports a reply that could not be delivered.
type SendFailureError struct {
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *SendFailureError) Error() string {
	return fmt.Sprintf("reply not delivered after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As compatibility.
func (e *SendFailureError) Unwrap() error { return e.Err }

// Config holds sender settings.
type Config struct {
	InputSelectors      []string
	SendButtonSelectors []string
	Attempts            int
	RetryDelay          time.Duration
	ConfirmTimeout      time.Duration
}

// ConfigFrom maps the application config onto sender settings.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		InputSelectors:      cfg.Selectors.Input,
		SendButtonSelectors: cfg.Selectors.SendButton,
		Attempts:            cfg.Sender.Attempts,
		RetryDelay:          cfg.Sender.GetRetryDelay(),
		ConfirmTimeout:      cfg.Sender.GetConfirmTimeout(),
	}
}

// Option customizes a Sender.
type Option func(*Sender)

// WithSleep replaces the delay between attempts and confirmation polls.
func WithSleep(fn retry.SleepFunc) Option {
	return func(s *Sender) { s.sleep = fn }
}

// Sender types replies into the chat client's message input.
type Sender struct {
	cfg   Config
	sleep retry.SleepFunc
}

// New creates a Sender.
func New(cfg Config, opts ...Option) *Sender {
	if cfg.Attempts < 1 {
		cfg.Attempts = 3
	}
	s := &Sender{cfg: cfg, sleep: retry.Sleep}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers text in the currently open conversation.
func (s *Sender) Send(ctx context.Context, sess *session.Session, text string) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.Attempts; attempt++ {
		drv, err := sess.Driver()
		if err != nil {
			return err
		}

		lastErr = s.attempt(ctx, sess, drv, text, errors.Is(lastErr, errNotConfirmed))
		if lastErr == nil {
			logging.SenderDebug("reply delivered on attempt %d (%d chars)", attempt, len(text))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(lastErr, session.ErrSessionDead) {
			return lastErr
		}

		logging.SenderWarn("send attempt %d/%d failed: %v", attempt, s.cfg.Attempts, lastErr)
		if attempt < s.cfg.Attempts {
			if err := s.sleep(ctx, s.cfg.RetryDelay); err != nil {
				return err
			}
		}
	}
	return &SendFailureError{Attempts: s.cfg.Attempts, Err: lastErr}
}

// attempt types and submits text. When the previous attempt submitted but
// timed out waiting for the input to clear, an input that has cleared since
// means the message went out late and is not typed again.
func (s *Sender) attempt(ctx context.Context, sess *session.Session, drv browser.Driver, text string, submitted bool) error {
	actx, cancel := sess.ActionContext(ctx)
	defer cancel()

	input, err := drv.FindElement(actx, s.cfg.InputSelectors)
	if err != nil {
		return fmt.Errorf("find message input: %w", err)
	}
	if submitted {
		remaining, err := drv.Text(actx, input)
		if err == nil && strings.TrimSpace(remaining) == "" {
			logging.SenderDebug("previous submit cleared the input late, not retyping")
			return nil
		}
	}
	if err := drv.ClearText(actx, input); err != nil {
		return fmt.Errorf("clear message input: %w", err)
	}
	if err := drv.TypeText(actx, input, text); err != nil {
		return fmt.Errorf("type reply: %w", err)
	}

	if err := s.submit(actx, drv, input); err != nil {
		return err
	}
	return s.confirm(ctx, sess, drv, input)
}

// submit clicks the send button, or presses Enter when there is none.
func (s *Sender) submit(ctx context.Context, drv browser.Driver, input browser.Element) error {
	if len(s.cfg.SendButtonSelectors) > 0 {
		btn, err := drv.FindElement(ctx, s.cfg.SendButtonSelectors)
		switch {
		case err == nil:
			if err := drv.Click(ctx, btn); err != nil {
				return fmt.Errorf("click send button: %w", err)
			}
			return nil
		case !errors.Is(err, browser.ErrNotFound):
			return fmt.Errorf("find send button: %w", err)
		}
	}
	if err := drv.TypeText(ctx, input, "\n"); err != nil {
		return fmt.Errorf("press enter: %w", err)
	}
	return nil
}

// confirm waits for the input to empty, which is how the client shows a
// message left the compose box.
func (s *Sender) confirm(ctx context.Context, sess *session.Session, drv browser.Driver, input browser.Element) error {
	deadline := time.Now().Add(s.cfg.ConfirmTimeout)
	for {
		actx, cancel := sess.ActionContext(ctx)
		remaining, err := drv.Text(actx, input)
		cancel()
		if err != nil {
			return fmt.Errorf("read message input: %w", err)
		}
		if strings.TrimSpace(remaining) == "" {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w within %s", errNotConfirmed, s.cfg.ConfirmTimeout)
		}
		if err := s.sleep(ctx, confirmPoll); err != nil {
			return err
		}
	}
}
