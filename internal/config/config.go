package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all kasbot configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Chat client and browser
	Bot     BotConfig     `yaml:"bot"`
	Browser BrowserConfig `yaml:"browser"`

	// Session lifecycle and polling loop
	Session    SessionConfig    `yaml:"session"`
	Poller     PollerConfig     `yaml:"poller"`
	Sender     SenderConfig     `yaml:"sender"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Selectors  SelectorsConfig  `yaml:"selectors"`

	// Persistence and surfaces
	Ledger    LedgerConfig    `yaml:"ledger"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Locale    LocaleConfig    `yaml:"locale"`

	Logging LoggingConfig `yaml:"logging"`
}

// LedgerConfig configures the SQLite ledger.
type LedgerConfig struct {
	DatabasePath string `yaml:"database_path"`
	BusyTimeout  string `yaml:"busy_timeout"`
}

// DashboardConfig configures the read-only HTTP API.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	// ShutdownTimeout bounds graceful shutdown of the HTTP server.
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// LocaleConfig configures the command dictionary.
type LocaleConfig struct {
	// File optionally overrides the embedded dictionary.
	File  string `yaml:"file"`
	Watch bool   `yaml:"watch"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "kasbot",
		Version: "0.3.0",

		Bot: BotConfig{
			Enabled: true,
			URL:     "https://web.whatsapp.com",
		},
		Browser: DefaultBrowserConfig(),

		Session:    DefaultSessionConfig(),
		Poller:     DefaultPollerConfig(),
		Sender:     DefaultSenderConfig(),
		Supervisor: DefaultSupervisorConfig(),
		Selectors:  DefaultSelectors(),

		Ledger: LedgerConfig{
			DatabasePath: "kasbot.db",
			BusyTimeout:  "5s",
		},
		Dashboard: DashboardConfig{
			Enabled:         true,
			Addr:            "127.0.0.1:5000",
			ShutdownTimeout: "5s",
		},
		Locale: LocaleConfig{
			Watch: true,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("KASBOT_DB"); path != "" {
		c.Ledger.DatabasePath = path
	}
	if bin := os.Getenv("KASBOT_BROWSER_BIN"); bin != "" {
		c.Browser.Bin = bin
	}
	if v := os.Getenv("KASBOT_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
	if v := os.Getenv("KASBOT_BOT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Bot.Enabled = b
		}
	}
	if addr := os.Getenv("KASBOT_DASHBOARD_ADDR"); addr != "" {
		c.Dashboard.Addr = addr
	}
	if level := os.Getenv("KASBOT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if file := os.Getenv("KASBOT_LOCALE_FILE"); file != "" {
		c.Locale.File = file
	}
}

// GetBusyTimeout returns the SQLite busy timeout.
func (c *Config) GetBusyTimeout() time.Duration {
	return parseDuration(c.Ledger.BusyTimeout, 5*time.Second)
}

// GetShutdownTimeout returns the dashboard shutdown timeout.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Dashboard.ShutdownTimeout, 5*time.Second)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Bot.Enabled && c.Bot.URL == "" {
		return fmt.Errorf("bot.url is required when the bot is enabled")
	}
	if c.Ledger.DatabasePath == "" {
		return fmt.Errorf("ledger.database_path is required")
	}
	if c.Dashboard.Enabled && c.Dashboard.Addr == "" {
		return fmt.Errorf("dashboard.addr is required when the dashboard is enabled")
	}
	if c.Session.MaxAttempts < 1 {
		return fmt.Errorf("session.max_attempts must be at least 1, got %d", c.Session.MaxAttempts)
	}
	if c.Sender.Attempts < 1 {
		return fmt.Errorf("sender.attempts must be at least 1, got %d", c.Sender.Attempts)
	}
	if c.Poller.MaxConsecutiveErrors < 1 {
		return fmt.Errorf("poller.max_consecutive_errors must be at least 1, got %d", c.Poller.MaxConsecutiveErrors)
	}
	if c.Poller.MaxSessionErrors < 0 {
		return fmt.Errorf("poller.max_session_errors must not be negative, got %d", c.Poller.MaxSessionErrors)
	}
	if err := c.Selectors.Validate(); err != nil {
		return err
	}
	return nil
}

// parseDuration parses s, falling back to def when s is empty or invalid.
func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}
