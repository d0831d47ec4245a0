package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"kasbot/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/hashicorp/go-multierror"
)

// DefaultCloseTimeout bounds each DevTools call made by Close when
// Options.CloseTimeout is unset.
const DefaultCloseTimeout = 5 * time.Second

// RodDriver drives a locally launched Chromium through the DevTools protocol.
type RodDriver struct {
	mu       sync.Mutex
	opts     Options
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	closed   bool
}

type rodElement struct {
	selector string
	el       *rod.Element
}

func (e *rodElement) Selector() string { return e.selector }

// Launch starts a browser with opts and opens a blank page.
func Launch(ctx context.Context, opts Options) (Driver, error) {
	d, err := LaunchRod(ctx, opts)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// LaunchRod is Launch returning the concrete driver.
func LaunchRod(ctx context.Context, opts Options) (*RodDriver, error) {
	bin, err := resolveBin(opts.Bin)
	if err != nil {
		return nil, err
	}

	l := launcher.New().
		Context(ctx).
		Bin(bin).
		Headless(opts.Headless).
		NoSandbox(opts.NoSandbox).
		Set(flags.Flag("disable-dev-shm-usage")).
		Set(flags.Flag("disable-notifications"))
	if opts.ProfileDir != "" {
		l = l.UserDataDir(opts.ProfileDir)
	}
	if opts.UserAgent != "" {
		l = l.Set(flags.Flag("user-agent"), opts.UserAgent)
	}

	controlURL, err := l.Launch()
	if err != nil {
		l.Kill()
		return nil, fmt.Errorf("launch browser %s: %w", bin, err)
	}
	logging.BrowserDebug("browser launched: bin=%s pid=%d profile=%s", bin, l.PID(), opts.ProfileDir)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("create page: %w", err)
	}

	return &RodDriver{opts: opts, launcher: l, browser: b, page: page}, nil
}

func resolveBin(bin string) (string, error) {
	if bin == "" {
		path, ok := launcher.LookPath()
		if !ok {
			return "", fmt.Errorf("%w: set browser.bin or install chromium", ErrNoBrowser)
		}
		return path, nil
	}
	if _, err := os.Stat(bin); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNoBrowser, bin, err)
	}
	return bin, nil
}

func (d *RodDriver) currentPage() (*rod.Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.page == nil {
		return nil, ErrClosed
	}
	return d.page, nil
}

func unwrap(el Element) (*rod.Element, error) {
	re, ok := el.(*rodElement)
	if !ok || re == nil || re.el == nil {
		return nil, ErrForeignElement
	}
	return re.el, nil
}

// Open navigates the page to url and waits for the load event.
func (d *RodDriver) Open(ctx context.Context, url string) error {
	page, err := d.currentPage()
	if err != nil {
		return err
	}
	p := page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return classifyNavigation(err)
	}
	if err := p.WaitLoad(); err != nil {
		return classifyNavigation(err)
	}
	return nil
}

// classifyNavigation tags timeouts and net::ERR_* failures with ErrNetwork.
func classifyNavigation(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "net::ERR") {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return fmt.Errorf("navigate: %w", err)
}

// FindElement returns the first element matching the first matching candidate.
func (d *RodDriver) FindElement(ctx context.Context, selectors []string) (Element, error) {
	page, err := d.currentPage()
	if err != nil {
		return nil, err
	}
	p := page.Context(ctx)
	for _, sel := range selectors {
		has, el, err := p.Has(sel)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", sel, err)
		}
		if has {
			return &rodElement{selector: sel, el: el}, nil
		}
	}
	return nil, ErrNotFound
}

// FindElements returns every match of the first candidate that matches.
func (d *RodDriver) FindElements(ctx context.Context, selectors []string) ([]Element, error) {
	page, err := d.currentPage()
	if err != nil {
		return nil, err
	}
	p := page.Context(ctx)
	for _, sel := range selectors {
		els, err := p.Elements(sel)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", sel, err)
		}
		if len(els) == 0 {
			continue
		}
		out := make([]Element, 0, len(els))
		for _, el := range els {
			out = append(out, &rodElement{selector: sel, el: el})
		}
		return out, nil
	}
	return nil, nil
}

// Click left-clicks el.
func (d *RodDriver) Click(ctx context.Context, el Element) error {
	re, err := unwrap(el)
	if err != nil {
		return err
	}
	return re.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

// TypeText inserts text into el. Newlines are sent as Enter key presses.
func (d *RodDriver) TypeText(ctx context.Context, el Element, text string) error {
	re, err := unwrap(el)
	if err != nil {
		return err
	}
	page, err := d.currentPage()
	if err != nil {
		return err
	}
	e := re.Context(ctx)
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			if err := page.Keyboard.Type(input.Enter); err != nil {
				return fmt.Errorf("press enter: %w", err)
			}
		}
		if line == "" {
			continue
		}
		if err := e.Input(line); err != nil {
			return fmt.Errorf("input: %w", err)
		}
	}
	return nil
}

// ClearText selects the content of el and deletes it.
func (d *RodDriver) ClearText(ctx context.Context, el Element) error {
	re, err := unwrap(el)
	if err != nil {
		return err
	}
	page, err := d.currentPage()
	if err != nil {
		return err
	}
	e := re.Context(ctx)
	if err := e.Focus(); err != nil {
		return fmt.Errorf("focus: %w", err)
	}
	if err := e.SelectAllText(); err != nil {
		return fmt.Errorf("select: %w", err)
	}
	return page.Keyboard.Type(input.Backspace)
}

// Text returns the visible text of el.
func (d *RodDriver) Text(ctx context.Context, el Element) (string, error) {
	re, err := unwrap(el)
	if err != nil {
		return "", err
	}
	return re.Context(ctx).Text()
}

// CaptureElementImage returns a PNG screenshot of el.
func (d *RodDriver) CaptureElementImage(ctx context.Context, el Element) ([]byte, error) {
	re, err := unwrap(el)
	if err != nil {
		return nil, err
	}
	return re.Context(ctx).Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
}

// Alive reports whether the browser and page still answer.
func (d *RodDriver) Alive(ctx context.Context) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	b, page := d.browser, d.page
	d.mu.Unlock()

	if _, err := b.Context(ctx).Version(); err != nil {
		logging.BrowserDebug("liveness probe failed: %v", err)
		return false
	}
	if _, err := page.Context(ctx).Info(); err != nil {
		logging.BrowserDebug("page probe failed: %v", err)
		return false
	}
	return true
}

// PID returns the browser process id.
func (d *RodDriver) PID() int {
	return d.launcher.PID()
}

// Close shuts the browser down and kills its process. Further calls are no-ops.
func (d *RodDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	timeout := d.opts.CloseTimeout
	if timeout <= 0 {
		timeout = DefaultCloseTimeout
	}

	var result *multierror.Error
	if d.page != nil {
		if err := d.page.Timeout(timeout).Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close page: %w", err))
		}
	}
	if d.browser != nil {
		if err := d.browser.Timeout(timeout).Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close browser: %w", err))
		}
	}
	if d.launcher != nil {
		d.launcher.Kill()
	}
	d.page, d.browser = nil, nil
	return result.ErrorOrNil()
}
