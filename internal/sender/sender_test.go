package sender

import (
	"context"
	"errors"
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
	inputSel = "div[contenteditable='true']"
	sendSel  = "button[aria-label='Send']"
)

func testConfig() Config {
	return Config{
		InputSelectors:      []string{inputSel},
		SendButtonSelectors: []string{sendSel},
		Attempts:            3,
		RetryDelay:          2 * time.Second,
		ConfirmTimeout:      0,
	}
}

func chatDriver() *browsertest.Driver {
	d := &browsertest.Driver{}
	d.FindElementFunc = browsertest.Match(map[string]browser.Element{
		inputSel: &browsertest.Element{Name: "input", Sel: inputSel},
		sendSel:  &browsertest.Element{Name: "send", Sel: sendSel},
	})
	return d
}

type sleepLog struct{ d []time.Duration }

func (s *sleepLog) sleep(_ context.Context, d time.Duration) error {
	s.d = append(s.d, d)
	return nil
}

func TestSend_Delivers(t *testing.T) {
	drv := chatDriver()
	_, sess := sessiontest.Connect(t, drv)
	sl := &sleepLog{}

	err := New(testConfig(), WithSleep(sl.sleep)).Send(context.Background(), sess, "💰 Saldo Anda: Rp 0")
	require.NoError(t, err)

	assert.Equal(t, []string{"💰 Saldo Anda: Rp 0"}, drv.Typed())
	assert.Equal(t, 1, drv.Calls("ClearText"))
	assert.Equal(t, 1, drv.Calls("Click"))
	assert.Empty(t, sl.d)
}

func TestSend_PressesEnterWithoutButton(t *testing.T) {
	drv := &browsertest.Driver{}
	drv.FindElementFunc = browsertest.Match(map[string]browser.Element{
		inputSel: &browsertest.Element{Name: "input", Sel: inputSel},
	})
	_, sess := sessiontest.Connect(t, drv)

	err := New(testConfig()).Send(context.Background(), sess, "halo")
	require.NoError(t, err)
	assert.Equal(t, []string{"halo", "\n"}, drv.Typed())
	assert.Equal(t, 0, drv.Calls("Click"))
}

func TestSend_SucceedsOnSecondAttempt(t *testing.T) {
	drv := chatDriver()
	clicks := 0
	drv.ClickFunc = func(context.Context, browser.Element) error {
		clicks++
		if clicks == 1 {
			return errors.New("button not interactable")
		}
		return nil
	}
	_, sess := sessiontest.Connect(t, drv)
	sl := &sleepLog{}

	err := New(testConfig(), WithSleep(sl.sleep)).Send(context.Background(), sess, "ok")
	require.NoError(t, err)
	assert.Equal(t, 2, drv.Calls("ClearText"), "no third attempt")
	assert.Equal(t, []time.Duration{2 * time.Second}, sl.d)
}

func TestSend_GivesUpAfterThreeAttempts(t *testing.T) {
	drv := chatDriver()
	drv.TextFunc = func(context.Context, browser.Element) (string, error) {
		return "still here", nil
	}
	_, sess := sessiontest.Connect(t, drv)
	sl := &sleepLog{}

	err := New(testConfig(), WithSleep(sl.sleep)).Send(context.Background(), sess, "ok")
	var sendErr *SendFailureError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, 3, sendErr.Attempts)
	assert.Contains(t, sendErr.Error(), "not cleared")
	assert.Equal(t, 3, drv.Calls("ClearText"))
	assert.Len(t, sl.d, 2)
	assert.NotErrorIs(t, err, session.ErrSessionDead)
}

func TestSend_LateClearIsNotRetyped(t *testing.T) {
	drv := chatDriver()
	reads := 0
	drv.TextFunc = func(context.Context, browser.Element) (string, error) {
		reads++
		if reads == 1 {
			return "ok", nil
		}
		return "", nil
	}
	_, sess := sessiontest.Connect(t, drv)
	sl := &sleepLog{}

	err := New(testConfig(), WithSleep(sl.sleep)).Send(context.Background(), sess, "ok")
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, drv.Typed(), "reply typed once")
	assert.Equal(t, 1, drv.Calls("ClearText"))
	assert.Equal(t, 1, drv.Calls("Click"))
	assert.Equal(t, []time.Duration{2 * time.Second}, sl.d)
}

func TestSend_WaitsForInputToClear(t *testing.T) {
	drv := chatDriver()
	reads := 0
	drv.TextFunc = func(context.Context, browser.Element) (string, error) {
		reads++
		if reads < 3 {
			return "ok", nil
		}
		return "", nil
	}
	_, sess := sessiontest.Connect(t, drv)
	sl := &sleepLog{}
	cfg := testConfig()
	cfg.ConfirmTimeout = time.Minute

	err := New(cfg, WithSleep(sl.sleep)).Send(context.Background(), sess, "ok")
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{confirmPoll, confirmPoll}, sl.d)
	assert.Equal(t, 1, drv.Calls("ClearText"))
}

func TestSend_MissingInputRetries(t *testing.T) {
	drv := &browsertest.Driver{}
	_, sess := sessiontest.Connect(t, drv)

	err := New(testConfig(), WithSleep((&sleepLog{}).sleep)).Send(context.Background(), sess, "ok")
	var sendErr *SendFailureError
	require.ErrorAs(t, err, &sendErr)
	assert.ErrorIs(t, err, browser.ErrNotFound)
	assert.Empty(t, drv.Typed())
}

func TestSend_DeadSessionNotRetried(t *testing.T) {
	drv := chatDriver()
	ctrl, sess := sessiontest.Connect(t, drv)
	require.NoError(t, ctrl.Cleanup())
	drv.ResetCalls()
	sl := &sleepLog{}

	err := New(testConfig(), WithSleep(sl.sleep)).Send(context.Background(), sess, "ok")
	require.ErrorIs(t, err, session.ErrSessionDead)
	assert.Equal(t, 0, drv.Calls("FindElement"))
	assert.Empty(t, sl.d)
}

func TestSend_Cancelled(t *testing.T) {
	drv := chatDriver()
	_, sess := sessiontest.Connect(t, drv)
	ctx, cancel := context.WithCancel(context.Background())
	drv.ClickFunc = func(context.Context, browser.Element) error {
		cancel()
		return errors.New("interrupted")
	}

	err := New(testConfig()).Send(ctx, sess, "ok")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, drv.Calls("ClearText"))
}
