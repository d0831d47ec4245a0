// Package sessiontest connects session controllers to fake drivers.
package sessiontest

import (
	"context"
	"testing"
	"time"

	"kasbot/internal/browser"
	"kasbot/internal/browser/browsertest"
	"kasbot/internal/session"
)

// LoggedInSelector is the only login indicator used by Connect.
const LoggedInSelector = "#sessiontest-logged-in"

// Config returns controller settings suited to fake drivers.
func Config(t testing.TB) session.Config {
	t.Helper()
	return session.Config{
		URL:               "https://chat.example.test",
		WorkRoot:          t.TempDir(),
		ConnectTimeout:    time.Second,
		AuthTimeout:       time.Second,
		AuthPollInterval:  time.Millisecond,
		ActionTimeout:     time.Second,
		MaxAttempts:       1,
		AuthCodeSelectors: []string{"#sessiontest-code"},
		LoggedInSelectors: []string{LoggedInSelector},
	}
}

// Connect authenticates a controller backed by drv. drv reports the login
// indicator immediately; its other FindElement behaviour is preserved.
// Call counters on drv are reset once the session is up.
func Connect(t testing.TB, drv *browsertest.Driver) (*session.Controller, *session.Session) {
	t.Helper()

	orig := drv.FindElementFunc
	drv.FindElementFunc = func(ctx context.Context, sels []string) (browser.Element, error) {
		if len(sels) > 0 && sels[0] == LoggedInSelector {
			return &browsertest.Element{Name: "logged-in", Sel: LoggedInSelector}, nil
		}
		if orig != nil {
			return orig(ctx, sels)
		}
		return nil, browser.ErrNotFound
	}

	ctrl := session.NewController(Config(t),
		session.WithLauncher(func(context.Context, browser.Options) (browser.Driver, error) { return drv, nil }),
		session.WithReaper(nil),
	)
	sess, err := ctrl.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect fake session: %v", err)
	}
	t.Cleanup(func() { _ = ctrl.Cleanup() })
	drv.ResetCalls()
	return ctrl, sess
}
