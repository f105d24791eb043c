package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "buchat"
	// DataDirEnv overrides the data directory.
	DataDirEnv = "BUCHAT_DATA_DIR"
	// configFileName is the persisted configuration file.
	configFileName = "config.yaml"
)

// Defaults applied by normalizeDefaults.
const (
	DefaultAPIBaseURL         = "http://localhost:3000/api"
	DefaultPollInterval       = 2 * time.Second
	DefaultTypingPollInterval = 2 * time.Second
	DefaultPageLimit          = 50
	DefaultCacheCapacity      = 500
	DefaultMessagesTTL        = 60 * time.Second
	DefaultConversationsTTL   = 30 * time.Second
	DefaultRequestTimeout     = 15 * time.Second
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "console"
)

// ClientConfig contains persistent client settings.
type ClientConfig struct {
	ClientID     string `yaml:"client_id"`
	UserID       string `yaml:"user_id"`
	APIBaseURL   string `yaml:"api_base_url"`
	AuthToken    string `yaml:"auth_token,omitempty"`
	MediaBaseURL string `yaml:"media_base_url,omitempty"`

	PollInterval       time.Duration `yaml:"poll_interval"`
	TypingPollInterval time.Duration `yaml:"typing_poll_interval"`
	PageLimit          int           `yaml:"page_limit"`
	CacheCapacity      int           `yaml:"cache_capacity"`
	MessagesTTL        time.Duration `yaml:"messages_ttl"`
	ConversationsTTL   time.Duration `yaml:"conversations_ttl"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`

	QueuePersistence bool   `yaml:"queue_persistence"`
	RedisAddr        string `yaml:"redis_addr,omitempty"`
	MetricsAddr      string `yaml:"metrics_addr,omitempty"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If BUCHAT_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv(DataDirEnv); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.yaml for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// EnsureDataDirectories creates the app data directory if needed.
func EnsureDataDirectories(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create directory %q: %w", dataDir, err)
	}
	return nil
}

// Load reads and unmarshals config.yaml from disk.
func Load(path string) (*ClientConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg ClientConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Save marshals and writes config.yaml to disk.
func Save(path string, cfg *ClientConfig) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate ensures directories and config exist, then returns both.
// Environment overrides are applied to the returned value only; they are
// never written back to disk.
func LoadOrCreate() (*ClientConfig, string, error) {
	LoadDotEnv()

	dataDir, err := ResolveDataDir()
	if err != nil {
		return nil, "", err
	}
	if err := EnsureDataDirectories(dataDir); err != nil {
		return nil, "", err
	}

	cfgPath := ConfigPath(dataDir)
	cfg, err := Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}

		cfg = defaultConfig()
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	} else if normalizeDefaults(cfg) {
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, "", err
	}
	return cfg, cfgPath, nil
}

func defaultConfig() *ClientConfig {
	cfg := &ClientConfig{QueuePersistence: true}
	normalizeDefaults(cfg)
	return cfg
}

func normalizeDefaults(cfg *ClientConfig) bool {
	updated := false

	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
		updated = true
	}

	trimmed := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if trimmed == "" {
		trimmed = DefaultAPIBaseURL
	}
	if cfg.APIBaseURL != trimmed {
		cfg.APIBaseURL = trimmed
		updated = true
	}

	updated = defaultDuration(&cfg.PollInterval, DefaultPollInterval) || updated
	updated = defaultDuration(&cfg.TypingPollInterval, DefaultTypingPollInterval) || updated
	updated = defaultDuration(&cfg.MessagesTTL, DefaultMessagesTTL) || updated
	updated = defaultDuration(&cfg.ConversationsTTL, DefaultConversationsTTL) || updated
	updated = defaultDuration(&cfg.RequestTimeout, DefaultRequestTimeout) || updated

	if cfg.PageLimit <= 0 {
		cfg.PageLimit = DefaultPageLimit
		updated = true
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = DefaultCacheCapacity
		updated = true
	}

	level := normalizeLogLevel(cfg.LogLevel)
	if cfg.LogLevel != level {
		cfg.LogLevel = level
		updated = true
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		cfg.LogFormat = DefaultLogFormat
		updated = true
	}

	return updated
}

func defaultDuration(value *time.Duration, fallback time.Duration) bool {
	if *value > 0 {
		return false
	}
	*value = fallback
	return true
}

func normalizeLogLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug", "info", "warn", "error":
		return strings.ToLower(strings.TrimSpace(level))
	default:
		return DefaultLogLevel
	}
}
