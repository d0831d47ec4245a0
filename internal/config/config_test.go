package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "kasbot" {
		t.Errorf("expected Name=kasbot, got %s", cfg.Name)
	}
	if cfg.Session.MaxAttempts != 3 {
		t.Errorf("expected MaxAttempts=3, got %d", cfg.Session.MaxAttempts)
	}
	if cfg.Poller.MaxConsecutiveErrors != 5 {
		t.Errorf("expected MaxConsecutiveErrors=5, got %d", cfg.Poller.MaxConsecutiveErrors)
	}
	if cfg.Sender.Attempts != 3 {
		t.Errorf("expected sender Attempts=3, got %d", cfg.Sender.Attempts)
	}
	require.NoError(t, cfg.Validate())
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("KASBOT_DB", "")
	t.Setenv("KASBOT_DASHBOARD_ADDR", "")

	path := filepath.Join(t.TempDir(), "nested", "kasbot.yaml")

	cfg := DefaultConfig()
	cfg.Ledger.DatabasePath = "/var/lib/kasbot/ledger.db"
	cfg.Poller.MaxSessionErrors = 0
	cfg.Selectors.Unread = []string{"span.unread", "span[aria-label='UNREAD']"}

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/kasbot/ledger.db", loaded.Ledger.DatabasePath)
	assert.Equal(t, 0, loaded.Poller.MaxSessionErrors)
	assert.Equal(t, []string{"span.unread", "span[aria-label='UNREAD']"}, loaded.Selectors.Unread)
}

func TestConfig_LoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Bot.URL, cfg.Bot.URL)
}

func TestConfig_LoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kasbot.yaml")
	content := "poller:\n  interval: 10s\nsender:\n  attempts: 5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Poller.GetInterval())
	assert.Equal(t, 5, cfg.Sender.Attempts)
	assert.Equal(t, 5, cfg.Poller.MaxConsecutiveErrors)
	assert.Equal(t, "2s", cfg.Sender.RetryDelay)
}

func TestConfig_LoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kasbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("poller: [unclosed"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestConfig_DurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.AuthTimeout = "soon"
	cfg.Session.RetryBase = ""
	cfg.Supervisor.BackoffCap = "-1s"
	cfg.Sender.ConfirmTimeout = "750ms"

	assert.Equal(t, 180*time.Second, cfg.Session.GetAuthTimeout())
	assert.Equal(t, 5*time.Second, cfg.Session.GetRetryBase())
	assert.Equal(t, 30*time.Second, cfg.Supervisor.GetBackoffCap())
	assert.Equal(t, 750*time.Millisecond, cfg.Sender.GetConfirmTimeout())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing url", func(c *Config) { c.Bot.URL = "" }, "bot.url"},
		{"disabled bot without url", func(c *Config) { c.Bot.Enabled = false; c.Bot.URL = "" }, ""},
		{"missing database", func(c *Config) { c.Ledger.DatabasePath = "" }, "ledger.database_path"},
		{"missing dashboard addr", func(c *Config) { c.Dashboard.Addr = "" }, "dashboard.addr"},
		{"zero attempts", func(c *Config) { c.Session.MaxAttempts = 0 }, "session.max_attempts"},
		{"zero sender attempts", func(c *Config) { c.Sender.Attempts = 0 }, "sender.attempts"},
		{"zero threshold", func(c *Config) { c.Poller.MaxConsecutiveErrors = 0 }, "poller.max_consecutive_errors"},
		{"negative session cap", func(c *Config) { c.Poller.MaxSessionErrors = -1 }, "poller.max_session_errors"},
		{"empty unread selectors", func(c *Config) { c.Selectors.Unread = nil }, "selectors.unread"},
		{"no send button is allowed", func(c *Config) { c.Selectors.SendButton = nil }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoggingConfig_IsCategoryEnabled(t *testing.T) {
	c := LoggingConfig{Categories: map[string]bool{"poller": false}}
	assert.False(t, c.IsCategoryEnabled("poller"))
	assert.True(t, c.IsCategoryEnabled("session"))

	opts := c.Options()
	assert.Equal(t, c.Categories, opts.Categories)
}
