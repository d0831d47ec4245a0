// Package logging provides config-driven categorized logging for kasbot.
// Each subsystem logs through its own category so noisy areas (the poller,
// the browser driver) can be silenced without losing supervisor output.
//
// Loggers are backed by zap. Until Initialize is called every category
// writes to a no-op logger, which keeps package tests quiet.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a logging category
type Category string

const (
	CategoryBoot       Category = "boot"       // process startup, config loading
	CategorySession    Category = "session"    // connect, auth handshake, cleanup
	CategoryBrowser    Category = "browser"    // driver launch and low-level actions
	CategoryPoller     Category = "poller"     // unread scan, extraction, error counters
	CategoryDispatch   Category = "dispatch"   // translation and command handlers
	CategorySender     Category = "sender"     // reply delivery and confirmation
	CategorySupervisor Category = "supervisor" // reconnect and backoff decisions
	CategoryLedger     Category = "ledger"     // sqlite persistence
	CategoryLocale     Category = "locale"     // dictionary loading and reloads
	CategoryDashboard  Category = "dashboard"  // read-only HTTP API
	CategoryAudit      Category = "audit"      // structured bot event trail
)

// Categories lists every known category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryBoot, CategorySession, CategoryBrowser, CategoryPoller,
		CategoryDispatch, CategorySender, CategorySupervisor, CategoryLedger,
		CategoryLocale, CategoryDashboard, CategoryAudit,
	}
}

// Options configures the logging backend.
type Options struct {
	Level      string          // debug, info, warn, error
	Format     string          // json or console
	File       string          // optional log file, appended to stderr output
	Categories map[string]bool // per-category toggles; missing entries are enabled
}

// Logger wraps a zap logger scoped to one category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	opts    Options
	loggers = make(map[Category]*Logger)
)

// Initialize builds the zap backend from opts. It may be called again to
// reconfigure; cached category loggers are discarded.
func Initialize(o Options) error {
	var cfg zap.Config
	switch strings.ToLower(o.Format) {
	case "console", "text":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	level := zapcore.InfoLevel
	if o.Level != "" {
		parsed, err := zapcore.ParseLevel(o.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", o.Level, err)
		}
		level = parsed
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if o.File != "" {
		if err := os.MkdirAll(filepath.Dir(o.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		cfg.OutputPaths = append(cfg.OutputPaths, o.File)
	}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	old := base
	base = l
	opts = o
	loggers = make(map[Category]*Logger)
	mu.Unlock()

	_ = old.Sync()
	return nil
}

// SetBase installs an already built zap logger, replacing the current backend.
// Category toggles from the last Initialize call still apply.
func SetBase(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	base = l
	loggers = make(map[Category]*Logger)
	mu.Unlock()
}

// SetCategories replaces the per-category toggles.
func SetCategories(toggles map[string]bool) {
	mu.Lock()
	opts.Categories = toggles
	loggers = make(map[Category]*Logger)
	mu.Unlock()
}

// Base returns the underlying zap logger.
func Base() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// IsCategoryEnabled checks if a category is enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabled(category)
}

func categoryEnabled(category Category) bool {
	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns the logger for a category, creating it on first use.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	z := zap.NewNop()
	if categoryEnabled(category) {
		z = base.Named(string(category))
	}
	l := &Logger{category: category, sugar: z.Sugar()}
	loggers[category] = l
	return l
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an info message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With returns a logger carrying structured key/value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Category returns the logger's category.
func (l *Logger) Category() Category {
	return l.category
}

// Zap exposes the structured logger for callers that want typed fields.
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

// Sync flushes buffered log entries.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return base.Sync()
}

// CloseAll flushes the backend and resets to a no-op logger.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	_ = base.Sync()
	base = zap.NewNop()
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

// Boot logs to the boot category.
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootDebug logs debug to the boot category.
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

// BootWarn logs a warning to the boot category.
func BootWarn(format string, args ...interface{}) { Get(CategoryBoot).Warn(format, args...) }

// BootError logs an error to the boot category.
func BootError(format string, args ...interface{}) { Get(CategoryBoot).Error(format, args...) }

// Session logs to the session category.
func Session(format string, args ...interface{}) { Get(CategorySession).Info(format, args...) }

// SessionDebug logs debug to the session category.
func SessionDebug(format string, args ...interface{}) { Get(CategorySession).Debug(format, args...) }

// SessionWarn logs a warning to the session category.
func SessionWarn(format string, args ...interface{}) { Get(CategorySession).Warn(format, args...) }

// SessionError logs an error to the session category.
func SessionError(format string, args ...interface{}) { Get(CategorySession).Error(format, args...) }

// Browser logs to the browser category.
func Browser(format string, args ...interface{}) { Get(CategoryBrowser).Info(format, args...) }

// BrowserDebug logs debug to the browser category.
func BrowserDebug(format string, args ...interface{}) { Get(CategoryBrowser).Debug(format, args...) }

// BrowserWarn logs a warning to the browser category.
func BrowserWarn(format string, args ...interface{}) { Get(CategoryBrowser).Warn(format, args...) }

// BrowserError logs an error to the browser category.
func BrowserError(format string, args ...interface{}) { Get(CategoryBrowser).Error(format, args...) }

// Poller logs to the poller category.
func Poller(format string, args ...interface{}) { Get(CategoryPoller).Info(format, args...) }

// PollerDebug logs debug to the poller category.
func PollerDebug(format string, args ...interface{}) { Get(CategoryPoller).Debug(format, args...) }

// PollerWarn logs a warning to the poller category.
func PollerWarn(format string, args ...interface{}) { Get(CategoryPoller).Warn(format, args...) }

// PollerError logs an error to the poller category.
func PollerError(format string, args ...interface{}) { Get(CategoryPoller).Error(format, args...) }

// Dispatch logs to the dispatch category.
func Dispatch(format string, args ...interface{}) { Get(CategoryDispatch).Info(format, args...) }

// DispatchDebug logs debug to the dispatch category.
func DispatchDebug(format string, args ...interface{}) { Get(CategoryDispatch).Debug(format, args...) }

// DispatchWarn logs a warning to the dispatch category.
func DispatchWarn(format string, args ...interface{}) { Get(CategoryDispatch).Warn(format, args...) }

// DispatchError logs an error to the dispatch category.
func DispatchError(format string, args ...interface{}) { Get(CategoryDispatch).Error(format, args...) }

// Sender logs to the sender category.
func Sender(format string, args ...interface{}) { Get(CategorySender).Info(format, args...) }

// SenderDebug logs debug to the sender category.
func SenderDebug(format string, args ...interface{}) { Get(CategorySender).Debug(format, args...) }

// SenderWarn logs a warning to the sender category.
func SenderWarn(format string, args ...interface{}) { Get(CategorySender).Warn(format, args...) }

// Supervisor logs to the supervisor category.
func Supervisor(format string, args ...interface{}) { Get(CategorySupervisor).Info(format, args...) }

// SupervisorWarn logs a warning to the supervisor category.
func SupervisorWarn(format string, args ...interface{}) { Get(CategorySupervisor).Warn(format, args...) }

// SupervisorError logs an error to the supervisor category.
func SupervisorError(format string, args ...interface{}) {
	Get(CategorySupervisor).Error(format, args...)
}

// Ledger logs to the ledger category.
func Ledger(format string, args ...interface{}) { Get(CategoryLedger).Info(format, args...) }

// LedgerDebug logs debug to the ledger category.
func LedgerDebug(format string, args ...interface{}) { Get(CategoryLedger).Debug(format, args...) }

// LedgerError logs an error to the ledger category.
func LedgerError(format string, args ...interface{}) { Get(CategoryLedger).Error(format, args...) }

// Locale logs to the locale category.
func Locale(format string, args ...interface{}) { Get(CategoryLocale).Info(format, args...) }

// LocaleWarn logs a warning to the locale category.
func LocaleWarn(format string, args ...interface{}) { Get(CategoryLocale).Warn(format, args...) }

// Dashboard logs to the dashboard category.
func Dashboard(format string, args ...interface{}) { Get(CategoryDashboard).Info(format, args...) }

// DashboardError logs an error to the dashboard category.
func DashboardError(format string, args ...interface{}) { Get(CategoryDashboard).Error(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if the duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
