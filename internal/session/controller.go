// Package session owns the lifecycle of the single authenticated chat
// session: launching the browser, publishing the login code, waiting for the
// user to scan it and tearing everything down again.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kasbot/internal/browser"
	"kasbot/internal/config"
	"kasbot/internal/logging"
	"kasbot/internal/metrics"
	"kasbot/internal/retry"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// DefaultArtifactName is the login code file name inside the working area.
const DefaultArtifactName = "auth_code.png"

// Config holds the controller's settings.
type Config struct {
	URL      string
	Browser  browser.Options
	WorkRoot string

	ConnectTimeout   time.Duration
	AuthTimeout      time.Duration
	AuthPollInterval time.Duration
	ActionTimeout    time.Duration
	ReapTimeout      time.Duration

	// ArtifactPath overrides <workdir>/auth_code.png.
	ArtifactPath string

	MaxAttempts int
	Backoff     retry.Policy

	AuthCodeSelectors []string
	LoggedInSelectors []string
}

// ConfigFrom maps the application config onto controller settings.
func ConfigFrom(cfg *config.Config) Config {
	s := cfg.Session
	return Config{
		URL: cfg.Bot.URL,
		Browser: browser.Options{
			Bin:       cfg.Browser.Bin,
			Headless:  cfg.Browser.Headless,
			NoSandbox: cfg.Browser.NoSandbox,
			UserAgent: cfg.Browser.UserAgent,

			CloseTimeout: s.GetActionTimeout(),
		},
		WorkRoot:         cfg.Browser.WorkRoot,
		ConnectTimeout:   s.GetConnectTimeout(),
		AuthTimeout:      s.GetAuthTimeout(),
		AuthPollInterval: s.GetAuthPollInterval(),
		ActionTimeout:    s.GetActionTimeout(),
		ReapTimeout:      5 * time.Second,
		ArtifactPath:     s.ArtifactPath,
		MaxAttempts:      s.MaxAttempts,
		Backoff: retry.Policy{
			Base:   s.GetRetryBase(),
			Jitter: s.GetRetryJitter(),
			Cap:    s.GetRetryCap(),
		},
		AuthCodeSelectors: cfg.Selectors.AuthCode,
		LoggedInSelectors: cfg.Selectors.LoggedIn,
	}
}

// Option customizes a Controller.
type Option func(*Controller)

// WithLauncher replaces the browser launcher.
func WithLauncher(fn browser.LaunchFunc) Option {
	return func(c *Controller) { c.launch = fn }
}

// WithReaper replaces the orphan process reaper. Nil disables reaping.
func WithReaper(fn Reaper) Option {
	return func(c *Controller) { c.reap = fn }
}

// WithSleep replaces the backoff sleep between connect attempts.
func WithSleep(fn retry.SleepFunc) Option {
	return func(c *Controller) { c.sleep = fn }
}

// WithArtifactHook registers a callback run when a login code is ready.
func WithArtifactHook(fn func(path string)) Option {
	return func(c *Controller) { c.onArtifact = fn }
}

// WithMetrics attaches collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller is the single owner of the browser session.
type Controller struct {
	cfg        Config
	launch     browser.LaunchFunc
	reap       Reaper
	sleep      retry.SleepFunc
	onArtifact func(path string)
	metrics    *metrics.Metrics
	now        func() time.Time

	mu      sync.Mutex
	state   State
	driver  browser.Driver
	workDir string
	current *Session
}

// NewController creates a controller in the Uninitialized state.
func NewController(cfg Config, opts ...Option) *Controller {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = filepath.Join(os.TempDir(), "kasbot")
	}
	c := &Controller{
		cfg:    cfg,
		launch: browser.Launch,
		reap:   KillOrphans,
		sleep:  retry.Sleep,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.metrics.SetSessionState(int(s))
}

// Connect establishes an authenticated session, retrying retryable failures
// with linear backoff. Every failed attempt is cleaned up before returning.
func (c *Controller) Connect(ctx context.Context) (*Session, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sess, err := c.connectOnce(ctx)
		if err == nil {
			c.metrics.ConnectAttempt("ok")
			return sess, nil
		}
		c.metrics.ConnectAttempt("failed")

		if cerr := c.Cleanup(); cerr != nil {
			logging.SessionWarn("cleanup after failed connect: %v", cerr)
		}

		var initErr *InitializationError
		if errors.As(err, &initErr) {
			logging.SessionError("browser unavailable, not retrying: %v", err)
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		logging.Audit().Log(logging.AuditEvent{
			EventType: logging.AuditConnectFailed,
			Error:     err.Error(),
			Fields:    map[string]interface{}{"attempt": attempt},
		})
		if attempt == c.cfg.MaxAttempts {
			break
		}

		delay := c.cfg.Backoff.Linear(attempt)
		logging.SessionWarn("connect attempt %d/%d failed: %v; retrying in %v", attempt, c.cfg.MaxAttempts, err, delay)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrConnectExhausted, c.cfg.MaxAttempts, lastErr)
}

func (c *Controller) connectOnce(ctx context.Context) (*Session, error) {
	if err := c.Cleanup(); err != nil {
		logging.SessionWarn("stale session cleanup: %v", err)
	}
	c.setState(StateConnecting)

	workDir, err := c.allocateWorkDir()
	if err != nil {
		c.setState(StateDead)
		return nil, &InitializationError{Err: err}
	}
	logging.SessionDebug("allocated working area %s", workDir)

	opts := c.cfg.Browser
	opts.ProfileDir = filepath.Join(workDir, "profile")
	drv, err := c.launch(ctx, opts)
	if err != nil {
		if errors.Is(err, browser.ErrNoBrowser) {
			return nil, &InitializationError{Err: err}
		}
		return nil, &ConnectionError{URL: c.cfg.URL, Err: err}
	}
	c.mu.Lock()
	c.driver = drv
	c.mu.Unlock()

	openCtx, cancel := withTimeout(ctx, c.cfg.ConnectTimeout)
	err = drv.Open(openCtx, c.cfg.URL)
	cancel()
	if err != nil {
		return nil, &ConnectionError{URL: c.cfg.URL, Err: err}
	}

	artifact := c.artifactPath(workDir)
	if err := c.awaitAuth(ctx, drv, artifact); err != nil {
		return nil, err
	}

	sess := &Session{
		ID:           uuid.NewString(),
		WorkDir:      workDir,
		ArtifactPath: artifact,
		CreatedAt:    c.now(),
		ctrl:         c,
		driver:       drv,
		actionTO:     c.cfg.ActionTimeout,
	}
	c.mu.Lock()
	c.current = sess
	c.mu.Unlock()
	c.setState(StateAuthenticated)

	logging.Session("session %s authenticated", sess.ID)
	logging.AuditWithSession(sess.ID).SessionStarted(workDir)
	return sess, nil
}

// allocateWorkDir creates session-<timestamp>-<8 hex> under the work root.
func (c *Controller) allocateWorkDir() (string, error) {
	name := fmt.Sprintf("session-%s-%s",
		c.now().Format("20060102-150405.000000"),
		uuid.NewString()[:8])
	dir := filepath.Join(c.cfg.WorkRoot, name)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create working area: %w", err)
	}
	c.mu.Lock()
	c.workDir = dir
	c.mu.Unlock()
	return dir, nil
}

func (c *Controller) artifactPath(workDir string) string {
	if c.cfg.ArtifactPath != "" {
		return c.cfg.ArtifactPath
	}
	return filepath.Join(workDir, DefaultArtifactName)
}

// awaitAuth polls for a logged-in indicator, publishing the login code each
// time it changes, until the auth deadline.
func (c *Controller) awaitAuth(ctx context.Context, drv browser.Driver, artifact string) error {
	c.setState(StateAwaitingAuth)
	authCtx, cancel := withTimeout(ctx, c.cfg.AuthTimeout)
	defer cancel()

	var published []byte
	for {
		if el, err := c.find(authCtx, drv, c.cfg.LoggedInSelectors); err == nil {
			logging.Session("login detected via %s", el.Selector())
			return nil
		} else if !errors.Is(err, browser.ErrNotFound) {
			logging.SessionDebug("login probe: %v", err)
		}

		if img, err := c.captureCode(authCtx, drv); err == nil && len(img) > 0 && !bytes.Equal(img, published) {
			if err := c.publishArtifact(artifact, img); err != nil {
				return err
			}
			published = img
		} else if err != nil && !errors.Is(err, browser.ErrNotFound) {
			logging.SessionDebug("login code probe: %v", err)
		}

		if err := retry.Sleep(authCtx, c.cfg.AuthPollInterval); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &AuthTimeoutError{Timeout: c.cfg.AuthTimeout}
		}
	}
}

func (c *Controller) find(ctx context.Context, drv browser.Driver, selectors []string) (browser.Element, error) {
	actx, cancel := withTimeout(ctx, c.cfg.ActionTimeout)
	defer cancel()
	return drv.FindElement(actx, selectors)
}

func (c *Controller) captureCode(ctx context.Context, drv browser.Driver) ([]byte, error) {
	el, err := c.find(ctx, drv, c.cfg.AuthCodeSelectors)
	if err != nil {
		return nil, err
	}
	actx, cancel := withTimeout(ctx, c.cfg.ActionTimeout)
	defer cancel()
	return drv.CaptureElementImage(actx, el)
}

// publishArtifact writes img atomically and reports readiness only once the
// file is confirmed non-empty.
func (c *Controller) publishArtifact(path string, img []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, img, 0600); err != nil {
		return fmt.Errorf("write login code: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish login code: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("verify login code: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("login code at %s is empty", path)
	}

	logging.Session("login code ready, scan it from %s", path)
	logging.Audit().Log(logging.AuditEvent{EventType: logging.AuditAuthArtifact, Target: path, Success: true})
	if c.onArtifact != nil {
		c.onArtifact(path)
	}
	return nil
}

// Cleanup releases the driver, kills orphaned browser processes and removes
// the working area. Calling it with nothing left to release is a no-op.
func (c *Controller) Cleanup() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.driver == nil && c.workDir == "" {
		return nil
	}

	var result *multierror.Error
	if c.driver != nil {
		if err := c.driver.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close driver: %w", err))
		}
		c.driver = nil
	}
	if c.workDir != "" {
		if c.reap != nil {
			timeout := c.cfg.ReapTimeout
			if timeout <= 0 {
				timeout = 5 * time.Second
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			if err := c.reap(ctx, c.workDir); err != nil {
				result = multierror.Append(result, fmt.Errorf("reap processes: %w", err))
			}
			cancel()
		}
		if err := os.RemoveAll(c.workDir); err != nil {
			result = multierror.Append(result, fmt.Errorf("remove working area: %w", err))
		}
		logging.SessionDebug("released working area %s", c.workDir)
		c.workDir = ""
	}

	sessionID := ""
	if c.current != nil {
		sessionID = c.current.ID
	}
	c.current = nil
	c.state = StateDead
	c.metrics.SetSessionState(int(StateDead))

	err := result.ErrorOrNil()
	logging.AuditWithSession(sessionID).SessionEnded(err)
	return err
}

// withTimeout bounds ctx by d; a non-positive d leaves ctx unbounded.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
