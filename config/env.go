package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads .env files with priority: .env.local > .env.
// godotenv.Load never overwrites variables that are already set, so the
// process environment always wins. It returns the files actually loaded.
func LoadDotEnv() []string {
	candidates := []string{".env.local", ".env"}
	var loaded []string
	for _, f := range candidates {
		if _, err := os.Stat(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	if len(loaded) > 0 {
		_ = godotenv.Load(loaded...)
	}
	return loaded
}

// ApplyEnv overlays BUCHAT_* environment variables onto cfg.
func ApplyEnv(cfg *ClientConfig) error {
	overrides := map[string]*string{
		"BUCHAT_USER_ID":        &cfg.UserID,
		"BUCHAT_API_BASE_URL":   &cfg.APIBaseURL,
		"BUCHAT_AUTH_TOKEN":     &cfg.AuthToken,
		"BUCHAT_MEDIA_BASE_URL": &cfg.MediaBaseURL,
		"BUCHAT_REDIS_ADDR":     &cfg.RedisAddr,
		"BUCHAT_METRICS_ADDR":   &cfg.MetricsAddr,
		"BUCHAT_LOG_LEVEL":      &cfg.LogLevel,
		"BUCHAT_LOG_FORMAT":     &cfg.LogFormat,
	}
	for key, target := range overrides {
		if value, ok := os.LookupEnv(key); ok {
			*target = value
		}
	}

	durations := map[string]*time.Duration{
		"BUCHAT_POLL_INTERVAL":   &cfg.PollInterval,
		"BUCHAT_REQUEST_TIMEOUT": &cfg.RequestTimeout,
	}
	for key, target := range durations {
		value, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			return fmt.Errorf("parse %s=%q: invalid duration", key, value)
		}
		*target = parsed
	}

	if value, ok := os.LookupEnv("BUCHAT_PAGE_LIMIT"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return fmt.Errorf("parse BUCHAT_PAGE_LIMIT=%q: invalid limit", value)
		}
		cfg.PageLimit = parsed
	}
	if value, ok := os.LookupEnv("BUCHAT_QUEUE_PERSISTENCE"); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("parse BUCHAT_QUEUE_PERSISTENCE=%q: %w", value, err)
		}
		cfg.QueuePersistence = parsed
	}

	return nil
}
