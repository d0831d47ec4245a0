package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	SetBase(zap.New(core))
	SetCategories(nil)
	t.Cleanup(func() {
		SetCategories(nil)
		CloseAll()
	})
	return logs
}

// TestAllCategoriesLog checks every category writes through its named logger.
func TestAllCategoriesLog(t *testing.T) {
	logs := observe(t)

	for _, cat := range Categories() {
		Get(cat).Info("hello from %s", cat)
	}

	entries := logs.All()
	require.Len(t, entries, len(Categories()))
	for i, cat := range Categories() {
		assert.Equal(t, string(cat), entries[i].LoggerName)
		assert.Equal(t, "hello from "+string(cat), entries[i].Message)
	}
}

func TestConvenienceFunctions(t *testing.T) {
	logs := observe(t)

	Boot("boot %d", 1)
	SessionWarn("session %d", 2)
	PollerError("poller %d", 3)
	DispatchDebug("dispatch %d", 4)

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[3].Level)
	assert.Equal(t, "dispatch 4", entries[3].Message)
}

// TestCategoryToggle checks disabled categories are silenced while the rest log.
func TestCategoryToggle(t *testing.T) {
	logs := observe(t)
	SetCategories(map[string]bool{"poller": false, "session": true})

	assert.False(t, IsCategoryEnabled(CategoryPoller))
	assert.True(t, IsCategoryEnabled(CategorySession))
	assert.True(t, IsCategoryEnabled(CategoryLedger), "missing toggles default to enabled")

	Poller("should not appear")
	Session("should appear")
	Ledger("should also appear")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "session", entries[0].LoggerName)
	assert.Equal(t, "ledger", entries[1].LoggerName)
}

func TestWithAddsContext(t *testing.T) {
	logs := observe(t)

	Get(CategorySession).With("session_id", "abc").Info("connected")

	entries := logs.FilterField(zap.String("session_id", "abc")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "connected", entries[0].Message)
}

func TestTimerLogging(t *testing.T) {
	logs := observe(t)

	timer := StartTimer(CategoryLedger, "slow query")
	time.Sleep(5 * time.Millisecond)
	elapsed := timer.StopWithThreshold(time.Millisecond)

	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.True(t, strings.HasPrefix(warnings[0].Message, "slow query took"))

	StartTimer(CategoryLedger, "fast query").Stop()
	assert.Equal(t, 1, logs.FilterMessageSnippet("fast query completed").Len())
}

func TestAuditEvents(t *testing.T) {
	logs := observe(t)

	audit := AuditWithSession("session-1")
	audit.SessionStarted("/tmp/work")
	audit.CommandDispatched("expense", true, 12*time.Millisecond)
	audit.ReplyResult(errors.New("not confirmed"))

	entries := logs.FilterField(zap.String("session", "session-1")).All()
	require.Len(t, entries, 3)
	assert.Equal(t, "audit", entries[0].LoggerName)
	assert.Equal(t, string(AuditSessionStart), entries[0].Message)
	assert.Equal(t, "expense", entries[1].ContextMap()["command"])
	assert.Equal(t, "not confirmed", entries[2].ContextMap()["error"])
	assert.Equal(t, false, entries[2].ContextMap()["success"])
}

func TestAuditDisabled(t *testing.T) {
	logs := observe(t)
	SetCategories(map[string]bool{"audit": false})

	Audit().Log(AuditEvent{EventType: AuditReconnect})

	assert.Equal(t, 0, logs.Len())
}

func TestInitializeWritesFile(t *testing.T) {
	t.Cleanup(CloseAll)
	path := filepath.Join(t.TempDir(), "logs", "kasbot.log")

	require.NoError(t, Initialize(Options{Level: "debug", Format: "json", File: path}))
	Supervisor("supervisor up")
	_ = Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "supervisor up")
	assert.Contains(t, string(data), `"logger":"supervisor"`)
}

func TestInitializeRejectsBadLevel(t *testing.T) {
	t.Cleanup(CloseAll)
	err := Initialize(Options{Level: "chatty"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}
