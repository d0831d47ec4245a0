package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kasbot/internal/browser"
	"kasbot/internal/browser/browsertest"
	"kasbot/internal/session"
	"kasbot/internal/session/sessiontest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	unreadSel   = "span.unread"
	incomingSel = "div.message-in"
)

func testConfig() Config {
	return Config{
		UnreadSelectors:      []string{unreadSel},
		IncomingSelectors:    []string{incomingSel},
		LookupRetries:        3,
		LookupRetryDelay:     2 * time.Second,
		ClickAttempts:        1,
		ClickRetryDelay:      time.Second,
		SettleDelay:          time.Second,
		MaxConsecutiveErrors: 5,
		MaxSessionErrors:     0,
	}
}

// chat scripts a fake client: each named conversation shows text[name] as its
// newest incoming message once clicked.
type chat struct {
	mu       sync.Mutex
	unread   []string
	text     map[string]string
	failOpen map[string]bool
	current  string
	clicked  []string
}

func (c *chat) driver() *browsertest.Driver {
	d := &browsertest.Driver{}
	d.FindElementsFunc = func(_ context.Context, sels []string) ([]browser.Element, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		switch sels[0] {
		case unreadSel:
			return browsertest.NewElements(unreadSel, c.unread...), nil
		case incomingSel:
			if _, ok := c.text[c.current]; !ok {
				return nil, nil
			}
			return browsertest.NewElements(incomingSel, "older", c.current), nil
		}
		return nil, nil
	}
	d.ClickFunc = func(_ context.Context, el browser.Element) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		name := browsertest.Name(el)
		c.clicked = append(c.clicked, name)
		if c.failOpen[name] {
			return errors.New("element detached")
		}
		c.current = name
		return nil
	}
	d.TextFunc = func(_ context.Context, el browser.Element) (string, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		name := browsertest.Name(el)
		if name == "older" {
			return "stale", nil
		}
		return c.text[name], nil
	}
	return d
}

type sleeps struct {
	mu sync.Mutex
	d  []time.Duration
}

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d = append(s.d, d)
	return nil
}

func (s *sleeps) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.d {
		if v == d {
			n++
		}
	}
	return n
}

type collector struct {
	texts []string
	err   func(text string) error
}

func (c *collector) HandleMessage(_ context.Context, _ *session.Session, msg IncomingMessage) error {
	c.texts = append(c.texts, msg.Text)
	if c.err != nil {
		return c.err(msg.Text)
	}
	return nil
}

func newPoller(cfg Config, h Handler, s *sleeps) *Poller {
	return New(cfg, h, WithSleep(s.sleep))
}

func TestCycle_ProcessesConversationsInOrder(t *testing.T) {
	c := &chat{
		unread: []string{"ani", "budi", "citra"},
		text:   map[string]string{"ani": "saldo", "budi": " bayar 50000 makan ", "citra": "laporan"},
	}
	_, sess := sessiontest.Connect(t, c.driver())
	h := &collector{}
	s := &sleeps{}

	stats, err := newPoller(testConfig(), h, s).Cycle(context.Background(), sess)
	require.NoError(t, err)

	assert.Equal(t, []string{"saldo", "bayar 50000 makan", "laporan"}, h.texts)
	assert.Equal(t, []string{"ani", "budi", "citra"}, c.clicked)
	assert.Equal(t, 3, stats.Processed)
	assert.Equal(t, 3, stats.Conversations)
	assert.Equal(t, 3, s.count(time.Second), "settle delay after each open")
}

func TestCycle_NoUnreadEndsCycle(t *testing.T) {
	c := &chat{}
	drv := c.driver()
	_, sess := sessiontest.Connect(t, drv)
	h := &collector{}

	stats, err := newPoller(testConfig(), h, &sleeps{}).Cycle(context.Background(), sess)
	require.NoError(t, err)
	assert.Empty(t, h.texts)
	assert.Zero(t, stats.Conversations)
	assert.Equal(t, 0, drv.Calls("Click"))
}

func TestCycle_EmptyTextIsSkipped(t *testing.T) {
	c := &chat{
		unread: []string{"ani", "budi", "citra"},
		text:   map[string]string{"ani": "   ", "citra": "saldo"},
	}
	_, sess := sessiontest.Connect(t, c.driver())
	h := &collector{}

	stats, err := newPoller(testConfig(), h, &sleeps{}).Cycle(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, []string{"saldo"}, h.texts)
	assert.Equal(t, 2, stats.Skipped, "blank text and no incoming messages are both skipped")
	assert.Zero(t, stats.Failed)
}

func TestCycle_DeadSessionFailsFast(t *testing.T) {
	drv := (&chat{}).driver()
	ctrl, sess := sessiontest.Connect(t, drv)
	require.NoError(t, ctrl.Cleanup())
	drv.ResetCalls()

	_, err := newPoller(testConfig(), &collector{}, &sleeps{}).Cycle(context.Background(), sess)
	require.ErrorIs(t, err, session.ErrSessionDead)
	assert.Equal(t, 0, drv.Calls("Alive"))
	assert.Equal(t, 0, drv.Calls("FindElements"))
}

func TestCycle_LivenessFailureIsDead(t *testing.T) {
	drv := (&chat{unread: []string{"ani"}}).driver()
	drv.AliveFunc = func(context.Context) bool { return false }
	_, sess := sessiontest.Connect(t, drv)

	_, err := newPoller(testConfig(), &collector{}, &sleeps{}).Cycle(context.Background(), sess)
	var dead *session.DeadError
	require.ErrorAs(t, err, &dead)
	assert.ErrorIs(t, err, session.ErrSessionDead)
	assert.Equal(t, 0, drv.Calls("FindElements"), "rest of the cycle is skipped")
}

func TestCycle_FiveConsecutiveFailuresKillSession(t *testing.T) {
	names := []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7"}
	fail := map[string]bool{}
	for _, n := range names {
		fail[n] = true
	}
	c := &chat{unread: names, text: map[string]string{}, failOpen: fail}
	_, sess := sessiontest.Connect(t, c.driver())
	h := &collector{}

	stats, err := newPoller(testConfig(), h, &sleeps{}).Cycle(context.Background(), sess)
	require.ErrorIs(t, err, session.ErrSessionDead)
	assert.Equal(t, []string{"c1", "c2", "c3", "c4", "c5"}, c.clicked, "no conversation after the fifth failure is opened")
	assert.Equal(t, 5, stats.Failed)
	assert.Empty(t, h.texts)
}

func TestCycle_SuccessResetsCycleCounter(t *testing.T) {
	c := &chat{
		unread:   []string{"f1", "f2", "f3", "f4", "ok", "f5", "f6", "f7", "f8"},
		text:     map[string]string{"ok": "saldo"},
		failOpen: map[string]bool{"f1": true, "f2": true, "f3": true, "f4": true, "f5": true, "f6": true, "f7": true, "f8": true},
	}
	_, sess := sessiontest.Connect(t, c.driver())
	h := &collector{}
	p := newPoller(testConfig(), h, &sleeps{})

	stats, err := p.Cycle(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, []string{"saldo"}, h.texts)
	assert.Equal(t, 8, stats.Failed)
	assert.Equal(t, 8, p.SessionErrors())
}

func TestCycle_ClickRetriedBeforeCountingFailure(t *testing.T) {
	attempts := 0
	c := &chat{unread: []string{"ani"}, text: map[string]string{"ani": "saldo"}}
	drv := c.driver()
	click := drv.ClickFunc
	drv.ClickFunc = func(ctx context.Context, el browser.Element) error {
		attempts++
		if attempts < 3 {
			return errors.New("not clickable yet")
		}
		return click(ctx, el)
	}
	_, sess := sessiontest.Connect(t, drv)
	h := &collector{}
	s := &sleeps{}
	cfg := testConfig()
	cfg.ClickAttempts = 3
	cfg.ClickRetryDelay = 500 * time.Millisecond

	p := newPoller(cfg, h, s)
	_, err := p.Cycle(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, []string{"saldo"}, h.texts)
	assert.Equal(t, 2, s.count(500*time.Millisecond))
	assert.Zero(t, p.SessionErrors())
}

func TestCycle_LookupRetriedThenTransient(t *testing.T) {
	drv := &browsertest.Driver{}
	lookupErr := errors.New("selector timed out")
	drv.FindElementsFunc = func(context.Context, []string) ([]browser.Element, error) {
		return nil, lookupErr
	}
	_, sess := sessiontest.Connect(t, drv)
	s := &sleeps{}

	_, err := newPoller(testConfig(), &collector{}, s).Cycle(context.Background(), sess)
	var transient *TransientLookupError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, 3, transient.Attempts)
	assert.ErrorIs(t, err, lookupErr)
	assert.NotErrorIs(t, err, session.ErrSessionDead)
	assert.Equal(t, 3, drv.Calls("FindElements"))
	assert.Equal(t, 2, s.count(2*time.Second))
}

func TestCycle_LookupRecovers(t *testing.T) {
	c := &chat{unread: []string{"ani"}, text: map[string]string{"ani": "saldo"}}
	drv := c.driver()
	find := drv.FindElementsFunc
	failures := 0
	drv.FindElementsFunc = func(ctx context.Context, sels []string) ([]browser.Element, error) {
		if sels[0] == unreadSel && failures < 2 {
			failures++
			return nil, errors.New("flaky")
		}
		return find(ctx, sels)
	}
	_, sess := sessiontest.Connect(t, drv)
	h := &collector{}

	_, err := newPoller(testConfig(), h, &sleeps{}).Cycle(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, []string{"saldo"}, h.texts)
}

func TestCycle_LookupThresholdBeatsRetries(t *testing.T) {
	drv := &browsertest.Driver{}
	drv.FindElementsFunc = func(context.Context, []string) ([]browser.Element, error) {
		return nil, errors.New("selector timed out")
	}
	_, sess := sessiontest.Connect(t, drv)
	cfg := testConfig()
	cfg.MaxConsecutiveErrors = 2

	_, err := newPoller(cfg, &collector{}, &sleeps{}).Cycle(context.Background(), sess)
	require.ErrorIs(t, err, session.ErrSessionDead)
	assert.Equal(t, 2, drv.Calls("FindElements"))
}

func TestCycle_SessionCounterSpansCyclesUntilReset(t *testing.T) {
	c := &chat{
		unread:   []string{"bad", "bad2"},
		text:     map[string]string{},
		failOpen: map[string]bool{"bad": true, "bad2": true},
	}
	_, sess := sessiontest.Connect(t, c.driver())
	cfg := testConfig()
	cfg.MaxSessionErrors = 5
	p := newPoller(cfg, &collector{}, &sleeps{})
	ctx := context.Background()

	_, err := p.Cycle(ctx, sess)
	require.NoError(t, err)
	_, err = p.Cycle(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 4, p.SessionErrors())

	_, err = p.Cycle(ctx, sess)
	require.ErrorIs(t, err, session.ErrSessionDead)

	p.Reset()
	assert.Zero(t, p.SessionErrors())
	_, err = p.Cycle(ctx, sess)
	require.NoError(t, err)
}

func TestCycle_HandlerErrors(t *testing.T) {
	c := &chat{
		unread: []string{"ani", "budi", "citra"},
		text:   map[string]string{"ani": "one", "budi": "two", "citra": "three"},
	}
	_, sess := sessiontest.Connect(t, c.driver())

	t.Run("ordinary errors are logged only", func(t *testing.T) {
		h := &collector{err: func(string) error { return errors.New("reply dropped") }}
		_, err := newPoller(testConfig(), h, &sleeps{}).Cycle(context.Background(), sess)
		require.NoError(t, err)
		assert.Len(t, h.texts, 3)
	})

	t.Run("dead session aborts", func(t *testing.T) {
		h := &collector{err: func(text string) error {
			if text == "two" {
				return session.Dead("input vanished", nil)
			}
			return nil
		}}
		_, err := newPoller(testConfig(), h, &sleeps{}).Cycle(context.Background(), sess)
		require.ErrorIs(t, err, session.ErrSessionDead)
		assert.Equal(t, []string{"one", "two"}, h.texts)
	})
}

func TestCycle_ContextCancelled(t *testing.T) {
	c := &chat{unread: []string{"ani", "budi"}, text: map[string]string{"ani": "one", "budi": "two"}}
	_, sess := sessiontest.Connect(t, c.driver())
	ctx, cancel := context.WithCancel(context.Background())

	h := HandlerFunc(func(context.Context, *session.Session, IncomingMessage) error {
		cancel()
		return nil
	})
	_, err := newPoller(testConfig(), h, &sleeps{}).Cycle(ctx, sess)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"ani"}, c.clicked)
}
