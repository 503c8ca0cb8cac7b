package meilisearch

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	URL         string
	APIKey      string
	IndexPrefix string
	TaskTimeout time.Duration
	HTTPTimeout time.Duration
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL         ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL         ConfigErrorCode = "invalid_url"
	ConfigErrorInvalidTaskTimeout ConfigErrorCode = "invalid_task_timeout"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid meilisearch config"
	}
	switch e.Code {
	case ConfigErrorMissingURL:
		return "MEILISEARCH_URL is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf(
			"invalid MEILISEARCH_URL=%q; expected absolute URL like http://meilisearch:7700",
			e.Value,
		)
	case ConfigErrorInvalidTaskTimeout:
		return fmt.Sprintf(
			"invalid MEILISEARCH_TASK_TIMEOUT_SECONDS=%q; expected positive integer",
			e.Value,
		)
	default:
		return "invalid meilisearch config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Enabled reports whether MEILISEARCH_URL is set at all; search features are
// skipped when it is not.
func Enabled() bool {
	return strings.TrimSpace(os.Getenv("MEILISEARCH_URL")) != ""
}

func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		URL:         strings.TrimSpace(os.Getenv("MEILISEARCH_URL")),
		APIKey:      strings.TrimSpace(os.Getenv("MEILISEARCH_API_KEY")),
		IndexPrefix: strings.TrimSpace(os.Getenv("MEILISEARCH_INDEX_PREFIX")),
		TaskTimeout: 60 * time.Second,
		HTTPTimeout: 10 * time.Second,
	}
	if raw := strings.TrimSpace(os.Getenv("MEILISEARCH_TASK_TIMEOUT_SECONDS")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, &ConfigError{Code: ConfigErrorInvalidTaskTimeout, Value: raw, Cause: err}
		}
		cfg.TaskTimeout = time.Duration(n) * time.Second
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if cfg.URL == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return &ConfigError{
			Code:  ConfigErrorInvalidURL,
			Value: cfg.URL,
			Cause: err,
		}
	}
	if cfg.TaskTimeout < 0 {
		return &ConfigError{Code: ConfigErrorInvalidTaskTimeout, Value: cfg.TaskTimeout.String()}
	}
	return nil
}

// IndexName applies the configured prefix to a logical index name.
func (c Config) IndexName(name string) string {
	if c.IndexPrefix == "" {
		return name
	}
	return c.IndexPrefix + name
}
