package config

import (
	"os"
	"path/filepath"
	"time"
)

// BotConfig configures the chat client the bot drives.
type BotConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// BrowserConfig configures the automated browser.
type BrowserConfig struct {
	Bin       string `yaml:"bin"` // empty uses the launcher's lookup
	Headless  bool   `yaml:"headless"`
	NoSandbox bool   `yaml:"no_sandbox"`
	// WorkRoot is the parent of per-session profile directories.
	WorkRoot  string `yaml:"work_root"`
	UserAgent string `yaml:"user_agent"`
}

// DefaultBrowserConfig returns the browser defaults.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:  true,
		NoSandbox: true,
		WorkRoot:  filepath.Join(os.TempDir(), "kasbot"),
	}
}

// SessionConfig configures connect and authentication.
type SessionConfig struct {
	ConnectTimeout   string `yaml:"connect_timeout"`
	AuthTimeout      string `yaml:"auth_timeout"`
	AuthPollInterval string `yaml:"auth_poll_interval"`
	ActionTimeout    string `yaml:"action_timeout"`
	// ArtifactPath is where the login code image is written.
	// Empty means <workdir>/auth_code.png.
	ArtifactPath string `yaml:"artifact_path"`
	MaxAttempts  int    `yaml:"max_attempts"`
	RetryBase    string `yaml:"retry_base"`
	RetryJitter  string `yaml:"retry_jitter"`
	RetryCap     string `yaml:"retry_cap"`
}

// DefaultSessionConfig returns the session defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ConnectTimeout:   "120s",
		AuthTimeout:      "180s",
		AuthPollInterval: "2s",
		ActionTimeout:    "30s",
		MaxAttempts:      3,
		RetryBase:        "5s",
		RetryJitter:      "2s",
		RetryCap:         "30s",
	}
}

// GetConnectTimeout returns the page load bound.
func (s SessionConfig) GetConnectTimeout() time.Duration {
	return parseDuration(s.ConnectTimeout, 120*time.Second)
}

// GetAuthTimeout returns the login deadline.
func (s SessionConfig) GetAuthTimeout() time.Duration {
	return parseDuration(s.AuthTimeout, 180*time.Second)
}

// GetAuthPollInterval returns the login indicator poll interval.
func (s SessionConfig) GetAuthPollInterval() time.Duration {
	return parseDuration(s.AuthPollInterval, 2*time.Second)
}

// GetActionTimeout returns the per-action driver bound.
func (s SessionConfig) GetActionTimeout() time.Duration {
	return parseDuration(s.ActionTimeout, 30*time.Second)
}

// GetRetryBase returns the linear connect backoff step.
func (s SessionConfig) GetRetryBase() time.Duration {
	return parseDuration(s.RetryBase, 5*time.Second)
}

// GetRetryJitter returns the upper bound of connect backoff jitter.
func (s SessionConfig) GetRetryJitter() time.Duration {
	return parseDuration(s.RetryJitter, 2*time.Second)
}

// GetRetryCap returns the connect backoff ceiling.
func (s SessionConfig) GetRetryCap() time.Duration {
	return parseDuration(s.RetryCap, 30*time.Second)
}

// PollerConfig configures the unread scan.
type PollerConfig struct {
	Interval             string `yaml:"interval"`
	SettleDelay          string `yaml:"settle_delay"`
	LookupRetries        int    `yaml:"lookup_retries"`
	LookupRetryDelay     string `yaml:"lookup_retry_delay"`
	ClickAttempts        int    `yaml:"click_attempts"`
	ClickRetryDelay      string `yaml:"click_retry_delay"`
	MaxConsecutiveErrors int    `yaml:"max_consecutive_errors"`
	// MaxSessionErrors caps failures across cycles of one session; 0 disables.
	MaxSessionErrors int `yaml:"max_session_errors"`
}

// DefaultPollerConfig returns the poller defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:             "2s",
		SettleDelay:          "1s",
		LookupRetries:        3,
		LookupRetryDelay:     "2s",
		ClickAttempts:        3,
		ClickRetryDelay:      "1s",
		MaxConsecutiveErrors: 5,
		MaxSessionErrors:     50,
	}
}

// GetInterval returns the pause between cycles.
func (p PollerConfig) GetInterval() time.Duration {
	return parseDuration(p.Interval, 2*time.Second)
}

// GetSettleDelay returns the wait after opening a conversation.
func (p PollerConfig) GetSettleDelay() time.Duration {
	return parseDuration(p.SettleDelay, time.Second)
}

// GetLookupRetryDelay returns the fixed delay between unread lookups.
func (p PollerConfig) GetLookupRetryDelay() time.Duration {
	return parseDuration(p.LookupRetryDelay, 2*time.Second)
}

// GetClickRetryDelay returns the fixed delay between click attempts.
func (p PollerConfig) GetClickRetryDelay() time.Duration {
	return parseDuration(p.ClickRetryDelay, time.Second)
}

// SenderConfig configures reply delivery.
type SenderConfig struct {
	Attempts       int    `yaml:"attempts"`
	RetryDelay     string `yaml:"retry_delay"`
	ConfirmTimeout string `yaml:"confirm_timeout"`
}

// DefaultSenderConfig returns the sender defaults.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		Attempts:       3,
		RetryDelay:     "2s",
		ConfirmTimeout: "3s",
	}
}

// GetRetryDelay returns the fixed delay between send attempts.
func (s SenderConfig) GetRetryDelay() time.Duration {
	return parseDuration(s.RetryDelay, 2*time.Second)
}

// GetConfirmTimeout returns how long to wait for the input to clear.
func (s SenderConfig) GetConfirmTimeout() time.Duration {
	return parseDuration(s.ConfirmTimeout, 3*time.Second)
}

// SupervisorConfig configures in-place retry backoff.
type SupervisorConfig struct {
	BackoffBase   string `yaml:"backoff_base"`
	BackoffJitter string `yaml:"backoff_jitter"`
	BackoffCap    string `yaml:"backoff_cap"`
}

// DefaultSupervisorConfig returns the supervisor defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		BackoffBase:   "2s",
		BackoffJitter: "2s",
		BackoffCap:    "30s",
	}
}

// GetBackoffBase returns the exponential backoff base.
func (s SupervisorConfig) GetBackoffBase() time.Duration {
	return parseDuration(s.BackoffBase, 2*time.Second)
}

// GetBackoffJitter returns the upper bound of backoff jitter.
func (s SupervisorConfig) GetBackoffJitter() time.Duration {
	return parseDuration(s.BackoffJitter, 2*time.Second)
}

// GetBackoffCap returns the backoff ceiling.
func (s SupervisorConfig) GetBackoffCap() time.Duration {
	return parseDuration(s.BackoffCap, 30*time.Second)
}
