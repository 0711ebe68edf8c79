// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// =============================================================================
// CONFIG TYPES
// =============================================================================

// Config is the complete chuli configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Session SessionConfig `toml:"session"`
	Scroll  ScrollConfig  `toml:"scroll"`
	Gesture GestureConfig `toml:"gesture"`
	Stream  StreamConfig  `toml:"stream"`
	Storage StorageConfig `toml:"storage"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
	UI      UIConfig      `toml:"ui"`
}

// ServerConfig describes the chat backend.
type ServerConfig struct {
	BaseURL     string  `toml:"base_url"`
	Token       string  `toml:"token"`
	TimeoutSecs int     `toml:"timeout_secs"`
	RateLimit   float64 `toml:"rate_limit"` // requests per second, 0 = unlimited
	Burst       int     `toml:"burst"`
}

// SessionConfig selects the transcript and how it pages.
type SessionConfig struct {
	ID        string `toml:"id"`
	PageSize  int    `toml:"page_size"`
	Reconcile bool   `toml:"reconcile"`
}

// ScrollConfig holds scroll anchor thresholds, in terminal lines.
type ScrollConfig struct {
	NearTopLines    int `toml:"near_top_lines"`
	NearBottomLines int `toml:"near_bottom_lines"`
	FollowBudgetMs  int `toml:"follow_budget_ms"`
	LocatorMs       int `toml:"locator_ms"`
}

// GestureConfig holds swipe row geometry, in terminal cells.
type GestureConfig struct {
	ActionWidth  int     `toml:"action_width"`
	SnapFraction float64 `toml:"snap_fraction"`
	AxisLock     int     `toml:"axis_lock"`
}

// StreamConfig controls reply streaming.
type StreamConfig struct {
	FallbackText string `toml:"fallback_text"`
}

// StorageConfig locates local state.
type StorageConfig struct {
	DataDir          string `toml:"data_dir"`
	BlobDB           string `toml:"blob_db"`
	BlobCacheTTLSecs int    `toml:"blob_cache_ttl_secs"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Console    bool   `toml:"console"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// UIConfig controls the terminal front-end.
type UIConfig struct {
	Markdown       bool `toml:"markdown"`
	ShowTimestamps bool `toml:"show_timestamps"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:     "http://localhost:8000",
			TimeoutSecs: 30,
			RateLimit:   5,
			Burst:       10,
		},
		Session: SessionConfig{
			ID:        "default",
			PageSize:  30,
			Reconcile: true,
		},
		Scroll: ScrollConfig{
			NearTopLines:    2,
			NearBottomLines: 3,
			FollowBudgetMs:  1500,
			LocatorMs:       2000,
		},
		Gesture: GestureConfig{
			ActionWidth:  10,
			SnapFraction: 0.5,
			AxisLock:     2,
		},
		Stream: StreamConfig{
			FallbackText: "(no reply received, please send again)",
		},
		Storage: StorageConfig{
			BlobDB:           "blobs.db",
			BlobCacheTTLSecs: 600,
		},
		Log: LogConfig{
			Level:      "info",
			File:       "chuli.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		UI: UIConfig{
			Markdown:       true,
			ShowTimestamps: true,
		},
	}
}

// fillDefaults replaces zero values left by a partial config file.
func fillDefaults(cfg *Config) {
	def := Default()

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = def.Server.BaseURL
	}
	if cfg.Server.TimeoutSecs <= 0 {
		cfg.Server.TimeoutSecs = def.Server.TimeoutSecs
	}
	if cfg.Server.Burst <= 0 {
		cfg.Server.Burst = def.Server.Burst
	}
	if cfg.Session.ID == "" {
		cfg.Session.ID = def.Session.ID
	}
	if cfg.Session.PageSize <= 0 {
		cfg.Session.PageSize = def.Session.PageSize
	}
	if cfg.Scroll.FollowBudgetMs <= 0 {
		cfg.Scroll.FollowBudgetMs = def.Scroll.FollowBudgetMs
	}
	if cfg.Scroll.LocatorMs <= 0 {
		cfg.Scroll.LocatorMs = def.Scroll.LocatorMs
	}
	if cfg.Gesture.ActionWidth <= 0 {
		cfg.Gesture.ActionWidth = def.Gesture.ActionWidth
	}
	if cfg.Gesture.SnapFraction <= 0 {
		cfg.Gesture.SnapFraction = def.Gesture.SnapFraction
	}
	if cfg.Gesture.AxisLock <= 0 {
		cfg.Gesture.AxisLock = def.Gesture.AxisLock
	}
	if cfg.Stream.FallbackText == "" {
		cfg.Stream.FallbackText = def.Stream.FallbackText
	}
	if cfg.Storage.BlobDB == "" {
		cfg.Storage.BlobDB = def.Storage.BlobDB
	}
	if cfg.Storage.BlobCacheTTLSecs <= 0 {
		cfg.Storage.BlobCacheTTLSecs = def.Storage.BlobCacheTTLSecs
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.File == "" {
		cfg.Log.File = def.Log.File
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = def.Log.MaxSizeMB
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the chuli configuration directory (~/.chuli).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".chuli"), nil
}

// ConfigPath returns the path of the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DataDir returns the directory for local state, defaulting to ~/.chuli.
func (c *Config) DataDir() (string, error) {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir, nil
	}
	return ConfigDir()
}

// resolve joins a relative file name onto the data directory.
func (c *Config) resolve(name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// BlobDBPath returns the absolute path of the blob database.
func (c *Config) BlobDBPath() (string, error) {
	return c.resolve(c.Storage.BlobDB)
}

// LogFilePath returns the absolute path of the log file.
func (c *Config) LogFilePath() (string, error) {
	return c.resolve(c.Log.File)
}

// Timeout returns the HTTP timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Server.TimeoutSecs) * time.Second
}

// FollowBudget returns the bottom-follow loop budget.
func (c *Config) FollowBudget() time.Duration {
	return time.Duration(c.Scroll.FollowBudgetMs) * time.Millisecond
}

// LocatorDuration returns how long the jump locator stays visible.
func (c *Config) LocatorDuration() time.Duration {
	return time.Duration(c.Scroll.LocatorMs) * time.Millisecond
}

// BlobCacheTTL returns the blob cache entry lifetime.
func (c *Config) BlobCacheTTL() time.Duration {
	return time.Duration(c.Storage.BlobCacheTTLSecs) * time.Second
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads ~/.chuli/config.toml if present, then applies .env files and
// environment overrides. A missing config file is not an error.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit config file path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	LoadDotEnv(filepath.Dir(path))
	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads .env from the working directory and from dirs, without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(dirs ...string) {
	candidates := []string{".env"}
	for _, dir := range dirs {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_ = godotenv.Load(path)
	}
}

// Save writes cfg to path with owner-only permissions.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# chuli configuration file")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies CHULI_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CHULI_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("CHULI_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("CHULI_SESSION"); v != "" {
		c.Session.ID = v
	}
	if v := os.Getenv("CHULI_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("CHULI_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CHULI_METRICS_ADDR"); v != "" {
		c.Metrics.ListenAddr = v
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for values the client cannot use.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if u, err := url.Parse(c.Server.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "server.base_url",
			Message: fmt.Sprintf("invalid URL %q, must be http(s)://host", c.Server.BaseURL),
		})
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, ValidationError{Field: "server.rate_limit", Message: "must not be negative"})
	}
	if c.Session.PageSize > 500 {
		errs = append(errs, ValidationError{Field: "session.page_size", Message: "must be at most 500"})
	}
	if c.Scroll.NearTopLines < 0 || c.Scroll.NearBottomLines < 0 {
		errs = append(errs, ValidationError{Field: "scroll", Message: "thresholds must not be negative"})
	}
	if c.Gesture.SnapFraction >= 1 {
		errs = append(errs, ValidationError{Field: "gesture.snap_fraction", Message: "must be below 1"})
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level %q, must be one of: debug, info, warn, error", c.Log.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
