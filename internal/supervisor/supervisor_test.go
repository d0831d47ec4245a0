package supervisor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"kasbot/internal/poller"
	"kasbot/internal/retry"
	"kasbot/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeConnector struct {
	events     []string
	connects   int
	connectErr map[int]error
	cleanupErr error
}

func (f *fakeConnector) Connect(context.Context) (*session.Session, error) {
	f.connects++
	f.events = append(f.events, "connect")
	if err := f.connectErr[f.connects]; err != nil {
		return nil, err
	}
	return &session.Session{ID: fmt.Sprintf("s%d", f.connects)}, nil
}

func (f *fakeConnector) Cleanup() error {
	f.events = append(f.events, "cleanup")
	return f.cleanupErr
}

// fakeCycler replays results, then cancels the run.
type fakeCycler struct {
	results   []error
	seen      []string
	resets    int
	cancel    context.CancelFunc
	connector *fakeConnector
}

func (f *fakeCycler) Cycle(ctx context.Context, sess *session.Session) (poller.Stats, error) {
	f.seen = append(f.seen, sess.ID)
	if len(f.results) == 0 {
		f.cancel()
		return poller.Stats{}, ctx.Err()
	}
	err := f.results[0]
	f.results = f.results[1:]
	if f.connector != nil {
		f.connector.events = append(f.connector.events, "cycle")
	}
	return poller.Stats{Conversations: 1, Processed: 1}, err
}

func (f *fakeCycler) Reset() { f.resets++ }

type sleeps struct{ d []time.Duration }

func (s *sleeps) sleep(ctx context.Context, d time.Duration) error {
	s.d = append(s.d, d)
	return ctx.Err()
}

func testConfig() Config {
	return Config{
		Interval: 2 * time.Second,
		Backoff:  retry.Policy{Base: 2 * time.Second, Jitter: 2 * time.Second, Cap: 30 * time.Second, Rand: func() float64 { return 0 }},
	}
}

func run(t *testing.T, conn *fakeConnector, results ...error) (*fakeCycler, *sleeps, error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cyc := &fakeCycler{results: results, cancel: cancel, connector: conn}
	sl := &sleeps{}
	err := New(testConfig(), conn, cyc, WithSleep(sl.sleep)).Run(ctx)
	return cyc, sl, err
}

func TestRun_DeadSessionReconnectsWithOneCleanup(t *testing.T) {
	conn := &fakeConnector{}
	cyc, _, err := run(t, conn, nil, session.Dead("liveness probe failed", nil), nil)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []string{"connect", "cycle", "cycle", "cleanup", "connect", "cycle", "cleanup"}, conn.events)
	assert.Equal(t, []string{"s1", "s1", "s2", "s2"}, cyc.seen)
	assert.Equal(t, 2, cyc.resets, "counters reset on first connect and on reconnect")
}

func TestRun_CleanupErrorIsSwallowed(t *testing.T) {
	conn := &fakeConnector{cleanupErr: errors.New("kill: no such process")}
	_, _, err := run(t, conn, session.Dead("5 consecutive errors", nil), session.Dead("again", nil))
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []string{
		"connect", "cycle", "cleanup",
		"connect", "cycle", "cleanup",
		"connect", "cleanup",
	}, conn.events)
}

func TestRun_TransientErrorsBackOffExponentially(t *testing.T) {
	conn := &fakeConnector{}
	lookup := &poller.TransientLookupError{Attempts: 3, Err: errors.New("timeout")}
	cyc, sl, err := run(t, conn, lookup, lookup, lookup, lookup, lookup, nil, lookup)
	require.ErrorIs(t, err, context.Canceled)

	want := []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second,
		2 * time.Second, // poll interval after the successful cycle
		2 * time.Second, // counter was reset by the success
	}
	assert.Equal(t, want, sl.d)
	assert.Equal(t, 1, conn.connects, "transient errors never reconnect")
	assert.Equal(t, 1, cyc.resets)
}

func TestRun_ConnectFailureIsFatal(t *testing.T) {
	boom := &session.InitializationError{Err: errors.New("no chromium")}
	conn := &fakeConnector{connectErr: map[int]error{1: boom}}
	cyc, _, err := run(t, conn)

	var initErr *session.InitializationError
	require.ErrorAs(t, err, &initErr)
	assert.Empty(t, cyc.seen)
	assert.Equal(t, []string{"connect", "cleanup"}, conn.events, "cleanup still runs")
}

func TestRun_ReconnectFailureIsFatal(t *testing.T) {
	conn := &fakeConnector{connectErr: map[int]error{2: session.ErrConnectExhausted}}
	_, _, err := run(t, conn, session.Dead("gone", nil))

	require.ErrorIs(t, err, session.ErrConnectExhausted)
	assert.Equal(t, []string{"connect", "cycle", "cleanup", "connect", "cleanup"}, conn.events)
}

func TestRun_CancelledDuringConnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	conn := &fakeConnector{connectErr: map[int]error{1: context.Canceled}}
	cyc := &fakeCycler{cancel: cancel}

	err := New(testConfig(), conn, cyc).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"connect", "cleanup"}, conn.events)
}

func TestRun_RealSleepStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	conn := &fakeConnector{}
	cyc := &fakeCycler{results: []error{nil}, cancel: cancel}
	cfg := testConfig()
	cfg.Interval = time.Hour

	start := time.Now()
	err := New(cfg, conn, cyc).Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
