// Package config provides configuration loading and defaults for ccrpc.
//
// Configuration is loaded from config.toml in the data directory. Every
// field has a default, so a missing file or a file that sets only a few keys
// yields a complete [Config].
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
)

// DefaultDiscordAppID is the Discord application registered for Claude Code
// presence.
const DefaultDiscordAppID = "1330919293709324449"

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Discord holds Discord connection and asset settings.
	Discord DiscordConfig `toml:"discord"`
	// Display holds presence text settings.
	Display DisplayConfig `toml:"display"`
	// Behavior holds daemon timing settings.
	Behavior BehaviorConfig `toml:"behavior"`
	// Privacy holds project-hiding and suppression settings.
	Privacy PrivacyConfig `toml:"privacy"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
	// Update holds the optional new-version check.
	Update UpdateConfig `toml:"update"`
}

// DiscordConfig holds Discord connection settings.
type DiscordConfig struct {
	// AppID is the Discord application ID for Rich Presence.
	AppID string `toml:"app_id"`
	// LargeImage is the asset key of the large image.
	LargeImage string `toml:"large_image"`
	// LargeText is the tooltip of the large image.
	LargeText string `toml:"large_text"`
}

// DisplayConfig holds presence text settings.
type DisplayConfig struct {
	// State is the bottom line template; {project} is replaced.
	State string `toml:"state"`
	// DefaultLabel is the top line when the tool is empty or unknown.
	DefaultLabel string `toml:"default_label"`
	// DefaultProject is shown when the session has no project name.
	DefaultProject string `toml:"default_project"`
	// Tools adds or overrides tool name to label mappings.
	Tools map[string]string `toml:"tools,omitempty"`
}

// BehaviorConfig holds daemon timing settings.
type BehaviorConfig struct {
	// PollIntervalSeconds is the delay between state polls.
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	// ReconnectIntervalSeconds is the delay after a failed Discord connect.
	ReconnectIntervalSeconds int `toml:"reconnect_interval_seconds"`
	// IdleTimeoutMinutes is how long a session may go without updates
	// before the daemon clears it.
	IdleTimeoutMinutes int `toml:"idle_timeout_minutes"`
	// IdleBackoffSeconds is the delay after an idle clear.
	IdleBackoffSeconds int `toml:"idle_backoff_seconds"`
	// ErrorBackoffSeconds is the delay after an unexpected loop failure.
	ErrorBackoffSeconds int `toml:"error_backoff_seconds"`
	// WatchState wakes the daemon early when state.json changes.
	WatchState bool `toml:"watch_state"`
}

// PrivacyOverride applies privacy settings to projects matching a glob pattern.
type PrivacyOverride struct {
	// Pattern is a doublestar glob matched against the working directory.
	Pattern string `toml:"pattern"`
	// HideProjectName replaces the project name with HiddenText when true.
	HideProjectName bool `toml:"hide_project_name"`
	// HiddenText is the replacement text shown when HideProjectName is true.
	HiddenText string `toml:"hidden_text"`
}

// PrivacyConfig holds privacy settings.
type PrivacyConfig struct {
	// HideProjectName replaces every project name with HiddenProjectText.
	HideProjectName bool `toml:"hide_project_name"`
	// HiddenProjectText is the generic text shown when HideProjectName is true.
	HiddenProjectText string `toml:"hidden_project_text"`
	// Ignore lists doublestar globs for directories that never start a session.
	Ignore []string `toml:"ignore"`
	// Overrides provides per-project privacy settings matched by glob pattern.
	Overrides []PrivacyOverride `toml:"overrides"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// UpdateConfig holds the new-version check settings.
type UpdateConfig struct {
	// Check enables the check at daemon startup.
	Check bool `toml:"check"`
	// ManifestURL points at a JSON object whose "." key is the latest version.
	ManifestURL string `toml:"manifest_url,omitempty"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Discord: DiscordConfig{
			AppID:      DefaultDiscordAppID,
			LargeImage: "claude",
			LargeText:  "Claude Code",
		},
		Display: DisplayConfig{
			State:          "on {project}",
			DefaultLabel:   "Working",
			DefaultProject: "Claude Code",
			Tools:          map[string]string{},
		},
		Behavior: BehaviorConfig{
			PollIntervalSeconds:      1,
			ReconnectIntervalSeconds: 5,
			IdleTimeoutMinutes:       15,
			IdleBackoffSeconds:       5,
			ErrorBackoffSeconds:      5,
			WatchState:               true,
		},
		Privacy: PrivacyConfig{
			HiddenProjectText: "a project",
			Ignore:            []string{},
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 5,
		},
	}
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses the configuration file at path over the defaults.
// If the file doesn't exist, returns DefaultConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Discord.AppID) == "" {
		return fmt.Errorf("discord.app_id must not be empty")
	}

	positive := []struct {
		name string
		val  int
	}{
		{"poll_interval_seconds", c.Behavior.PollIntervalSeconds},
		{"reconnect_interval_seconds", c.Behavior.ReconnectIntervalSeconds},
		{"idle_timeout_minutes", c.Behavior.IdleTimeoutMinutes},
		{"idle_backoff_seconds", c.Behavior.IdleBackoffSeconds},
		{"error_backoff_seconds", c.Behavior.ErrorBackoffSeconds},
	}
	for _, p := range positive {
		if p.val <= 0 {
			return fmt.Errorf("%s must be > 0, got %d", p.name, p.val)
		}
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}
	if c.Log.MaxSizeMB < 0 {
		return fmt.Errorf("log.max_size_mb must be >= 0, got %d", c.Log.MaxSizeMB)
	}

	for _, pattern := range c.Privacy.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid privacy.ignore pattern %q", pattern)
		}
	}
	for _, o := range c.Privacy.Overrides {
		if !doublestar.ValidatePattern(o.Pattern) {
			return fmt.Errorf("invalid privacy.overrides pattern %q", o.Pattern)
		}
	}

	if c.Update.Check && c.Update.ManifestURL == "" {
		return fmt.Errorf("update.manifest_url is required when update.check is true")
	}
	return nil
}

// ///////////////////////////////////////////////
// Durations
// ///////////////////////////////////////////////

// PollInterval returns the delay between state polls.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Behavior.PollIntervalSeconds) * time.Second
}

// ReconnectInterval returns the delay after a failed connect.
func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.Behavior.ReconnectIntervalSeconds) * time.Second
}

// IdleTimeout returns the session idle threshold.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Behavior.IdleTimeoutMinutes) * time.Minute
}

// IdleBackoff returns the delay after an idle clear.
func (c *Config) IdleBackoff() time.Duration {
	return time.Duration(c.Behavior.IdleBackoffSeconds) * time.Second
}

// ErrorBackoff returns the delay after an unexpected loop failure.
func (c *Config) ErrorBackoff() time.Duration {
	return time.Duration(c.Behavior.ErrorBackoffSeconds) * time.Second
}

// ///////////////////////////////////////////////
// Formatting Helpers
// ///////////////////////////////////////////////

// FormatState templates {project} into the display state string.
func (c *Config) FormatState(project string) string {
	return strings.ReplaceAll(c.Display.State, "{project}", project)
}

// ///////////////////////////////////////////////
// Privacy Helpers
// ///////////////////////////////////////////////

// IsIgnored reports whether cwd matches any of the configured ignore patterns.
func (c *Config) IsIgnored(cwd string) bool {
	if cwd == "" {
		return false
	}
	for _, pattern := range c.Privacy.Ignore {
		matched, err := doublestar.PathMatch(pattern, cwd)
		if err != nil {
			slog.Warn("invalid glob pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// ProjectName returns the display name for a project, respecting privacy settings.
// Per-project overrides are checked first, then the global setting.
func (c *Config) ProjectName(realName, cwd string) string {
	for _, o := range c.Privacy.Overrides {
		matched, err := doublestar.PathMatch(o.Pattern, cwd)
		if err != nil {
			slog.Warn("invalid glob pattern", "pattern", o.Pattern, "error", err)
			continue
		}
		if matched && o.HideProjectName {
			return o.HiddenText
		}
	}
	if c.Privacy.HideProjectName {
		return c.Privacy.HiddenProjectText
	}
	return realName
}
