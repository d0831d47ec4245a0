// Package browser defines the automation surface the bot drives the chat
// client through, and a go-rod implementation of it.
//
// Selectors are always passed as an ordered candidate list; the first
// candidate that matches wins and later candidates are not consulted.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by FindElement when no candidate matches.
	ErrNotFound = errors.New("element not found")
	// ErrNoBrowser means no compatible browser binary could be located.
	ErrNoBrowser = errors.New("no compatible browser binary")
	// ErrNetwork marks navigation failures caused by the network.
	ErrNetwork = errors.New("network failure")
	// ErrClosed is returned by operations on a closed driver.
	ErrClosed = errors.New("driver closed")
	// ErrForeignElement is returned when an element from another driver is used.
	ErrForeignElement = errors.New("element does not belong to this driver")
)

// Element is an opaque handle to a node on the current page. It is only
// valid for the driver that produced it.
type Element interface {
	// Selector returns the candidate that matched this element.
	Selector() string
}

// Driver is the capability set the session, poller and sender need.
type Driver interface {
	Open(ctx context.Context, url string) error
	FindElement(ctx context.Context, selectors []string) (Element, error)
	// FindElements returns the matches of the first candidate that matches
	// anything. No match is an empty result, not an error.
	FindElements(ctx context.Context, selectors []string) ([]Element, error)
	Click(ctx context.Context, el Element) error
	TypeText(ctx context.Context, el Element, text string) error
	ClearText(ctx context.Context, el Element) error
	Text(ctx context.Context, el Element) (string, error)
	CaptureElementImage(ctx context.Context, el Element) ([]byte, error)
	// Alive is a cheap liveness probe.
	Alive(ctx context.Context) bool
	Close() error
}

// Options configures a driver launch.
type Options struct {
	Bin        string
	Headless   bool
	NoSandbox  bool
	ProfileDir string
	UserAgent  string
	// CloseTimeout bounds each DevTools call made by Close. The browser
	// process is killed afterwards either way.
	CloseTimeout time.Duration
}

// LaunchFunc starts a driver. The session controller takes one so tests can
// substitute a fake.
type LaunchFunc func(ctx context.Context, opts Options) (Driver, error)
