package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingAPIKeys = errors.New("GOOGLE_API_KEYS is required")
	ErrMissingDB      = errors.New("DATABASE_URL is required for the postgres quota store")
	ErrMissingRedis   = errors.New("REDIS_ADDR is required for the redis quota store")
	ErrInvalidStore   = errors.New("invalid quota store type")
)

type Config struct {
	Credentials CredentialConfig
	Models      ModelConfig
	Quota       QuotaConfig
	Policy      PolicyConfig
	Store       StoreConfig
	Log         LogConfig
	Metrics     MetricsConfig
}

// CredentialConfig carries the raw API keys. Keys are secrets: nothing in
// this struct is ever logged directly, the credential package masks them.
type CredentialConfig struct {
	Keys []string
}

type ModelConfig struct {
	// Candidates in preference order, cheapest first.
	Candidates []string
}

type QuotaConfig struct {
	PerMinute int
	PerDay    int
}

type PolicyConfig struct {
	MaxAttempts      int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	WaitThreshold    time.Duration
	RequestTimeout   time.Duration
	SmoothRPS        float64
	BatchConcurrency int
}

// StoreConfig selects where quota counters live. "memory" is per-process;
// "redis" and "postgres" share counters between processes using one key.
type StoreConfig struct {
	Type        string
	RedisAddr   string
	RedisPrefix string
	DatabaseURL string
}

type LogConfig struct {
	Level string
}

type MetricsConfig struct {
	Addr string
}

func Load() (*Config, error) {
	cfg := &Config{
		Credentials: CredentialConfig{
			Keys: splitList(os.Getenv("GOOGLE_API_KEYS")),
		},
		Models: ModelConfig{
			Candidates: splitList(getEnvOrDefault("GEMINI_MODELS",
				"models/gemini-2.5-flash,models/gemini-2.5-pro")),
		},
		Quota: QuotaConfig{
			PerMinute: getEnvIntOrDefault("QUOTA_PER_MINUTE", 15),
			PerDay:    getEnvIntOrDefault("QUOTA_PER_DAY", 1500),
		},
		Policy: PolicyConfig{
			MaxAttempts:      getEnvIntOrDefault("MAX_ATTEMPTS", 3),
			BackoffBase:      time.Duration(getEnvIntOrDefault("BACKOFF_BASE_SEC", 2)) * time.Second,
			BackoffCap:       time.Duration(getEnvIntOrDefault("BACKOFF_CAP_SEC", 30)) * time.Second,
			WaitThreshold:    time.Duration(getEnvIntOrDefault("WAIT_THRESHOLD_SEC", 60)) * time.Second,
			RequestTimeout:   time.Duration(getEnvIntOrDefault("REQUEST_TIMEOUT_SEC", 60)) * time.Second,
			SmoothRPS:        getEnvFloatOrDefault("SMOOTH_RPS", 0),
			BatchConcurrency: getEnvIntOrDefault("BATCH_CONCURRENCY", 3),
		},
		Store: StoreConfig{
			Type:        getEnvOrDefault("QUOTA_STORE", "memory"),
			RedisAddr:   os.Getenv("REDIS_ADDR"),
			RedisPrefix: getEnvOrDefault("REDIS_PREFIX", "genclient:quota"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		Log: LogConfig{
			Level: getEnvOrDefault("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Addr: os.Getenv("METRICS_ADDR"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Credentials.Keys) == 0 {
		return ErrMissingAPIKeys
	}

	switch c.Store.Type {
	case "memory":
	case "redis":
		if c.Store.RedisAddr == "" {
			return ErrMissingRedis
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return ErrMissingDB
		}
	default:
		return ErrInvalidStore
	}

	return nil
}

// splitList parses a comma-separated env value, dropping empty entries.
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
