// Package browsertest provides a scriptable browser.Driver for tests.
package browsertest

import (
	"context"
	"sync"

	"kasbot/internal/browser"
)

// PNG is a minimal valid PNG signature used as the default capture result.
var PNG = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

// Element is a fake element identified by Name.
type Element struct {
	Name string
	Sel  string
}

// Selector implements browser.Element.
func (e *Element) Selector() string { return e.Sel }

// NewElements builds one element per name, all matched by sel.
func NewElements(sel string, names ...string) []browser.Element {
	out := make([]browser.Element, 0, len(names))
	for _, n := range names {
		out = append(out, &Element{Name: n, Sel: sel})
	}
	return out
}

// Name returns the fake name of el, or "" for foreign elements.
func Name(el browser.Element) string {
	if e, ok := el.(*Element); ok {
		return e.Name
	}
	return ""
}

// Driver is a fake driver. Nil funcs fall back to benign defaults:
// nothing is found, every action succeeds and the driver is alive.
type Driver struct {
	OpenFunc         func(ctx context.Context, url string) error
	FindElementFunc  func(ctx context.Context, selectors []string) (browser.Element, error)
	FindElementsFunc func(ctx context.Context, selectors []string) ([]browser.Element, error)
	ClickFunc        func(ctx context.Context, el browser.Element) error
	TypeTextFunc     func(ctx context.Context, el browser.Element, text string) error
	ClearTextFunc    func(ctx context.Context, el browser.Element) error
	TextFunc         func(ctx context.Context, el browser.Element) (string, error)
	CaptureFunc      func(ctx context.Context, el browser.Element) ([]byte, error)
	AliveFunc        func(ctx context.Context) bool
	CloseFunc        func() error

	mu     sync.Mutex
	calls  map[string]int
	typed  []string
	opened []string
}

var _ browser.Driver = (*Driver)(nil)

func (d *Driver) record(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.calls == nil {
		d.calls = make(map[string]int)
	}
	d.calls[name]++
}

// Calls returns how many times the named method was invoked.
func (d *Driver) Calls(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[name]
}

// ResetCalls clears call counters and recorded input.
func (d *Driver) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
	d.typed = nil
	d.opened = nil
}

// Typed returns every text passed to TypeText, in order.
func (d *Driver) Typed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.typed...)
}

// Opened returns every URL passed to Open, in order.
func (d *Driver) Opened() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.opened...)
}

func (d *Driver) Open(ctx context.Context, url string) error {
	d.record("Open")
	d.mu.Lock()
	d.opened = append(d.opened, url)
	d.mu.Unlock()
	if d.OpenFunc != nil {
		return d.OpenFunc(ctx, url)
	}
	return nil
}

func (d *Driver) FindElement(ctx context.Context, selectors []string) (browser.Element, error) {
	d.record("FindElement")
	if d.FindElementFunc != nil {
		return d.FindElementFunc(ctx, selectors)
	}
	return nil, browser.ErrNotFound
}

func (d *Driver) FindElements(ctx context.Context, selectors []string) ([]browser.Element, error) {
	d.record("FindElements")
	if d.FindElementsFunc != nil {
		return d.FindElementsFunc(ctx, selectors)
	}
	return nil, nil
}

func (d *Driver) Click(ctx context.Context, el browser.Element) error {
	d.record("Click")
	if d.ClickFunc != nil {
		return d.ClickFunc(ctx, el)
	}
	return nil
}

func (d *Driver) TypeText(ctx context.Context, el browser.Element, text string) error {
	d.record("TypeText")
	d.mu.Lock()
	d.typed = append(d.typed, text)
	d.mu.Unlock()
	if d.TypeTextFunc != nil {
		return d.TypeTextFunc(ctx, el, text)
	}
	return nil
}

func (d *Driver) ClearText(ctx context.Context, el browser.Element) error {
	d.record("ClearText")
	if d.ClearTextFunc != nil {
		return d.ClearTextFunc(ctx, el)
	}
	return nil
}

func (d *Driver) Text(ctx context.Context, el browser.Element) (string, error) {
	d.record("Text")
	if d.TextFunc != nil {
		return d.TextFunc(ctx, el)
	}
	return "", nil
}

func (d *Driver) CaptureElementImage(ctx context.Context, el browser.Element) ([]byte, error) {
	d.record("CaptureElementImage")
	if d.CaptureFunc != nil {
		return d.CaptureFunc(ctx, el)
	}
	return PNG, nil
}

func (d *Driver) Alive(ctx context.Context) bool {
	d.record("Alive")
	if d.AliveFunc != nil {
		return d.AliveFunc(ctx)
	}
	return true
}

func (d *Driver) Close() error {
	d.record("Close")
	if d.CloseFunc != nil {
		return d.CloseFunc()
	}
	return nil
}

// Match returns a FindElement func that resolves the first selector present in
// found, honouring candidate order.
func Match(found map[string]browser.Element) func(context.Context, []string) (browser.Element, error) {
	return func(_ context.Context, selectors []string) (browser.Element, error) {
		for _, sel := range selectors {
			if el, ok := found[sel]; ok {
				return el, nil
			}
		}
		return nil, browser.ErrNotFound
	}
}
