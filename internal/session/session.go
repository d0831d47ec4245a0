package session

import (
	"context"
	"time"

	"kasbot/internal/browser"
)

// Session is a handle to an authenticated session. It borrows the
// controller's driver and stops handing it out once the session is no
// longer the controller's authenticated one.
type Session struct {
	ID           string
	WorkDir      string
	ArtifactPath string
	CreatedAt    time.Time

	ctrl     *Controller
	driver   browser.Driver
	actionTO time.Duration
}

// Driver returns the driver while the session is Authenticated and
// ErrSessionDead otherwise.
func (s *Session) Driver() (browser.Driver, error) {
	if s == nil || s.ctrl == nil {
		return nil, ErrSessionDead
	}
	s.ctrl.mu.Lock()
	defer s.ctrl.mu.Unlock()
	if s.ctrl.state != StateAuthenticated || s.ctrl.current != s {
		return nil, ErrSessionDead
	}
	return s.driver, nil
}

// Alive reports whether the session is still the authenticated one.
func (s *Session) Alive() bool {
	_, err := s.Driver()
	return err == nil
}

// ActionContext bounds ctx by the per-action driver timeout.
func (s *Session) ActionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s == nil {
		return context.WithCancel(ctx)
	}
	return withTimeout(ctx, s.actionTO)
}
