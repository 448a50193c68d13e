// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type WebhookCfg struct {
	Enabled      bool
	Secret       string
	Timeout      time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	FailureLimit int
}

type InfluxCfg struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

type Config struct {
	Addr           string
	LogLevel       string
	RedisAddr      string
	BlocksPath     string
	Influx         InfluxCfg
	IdempotencyTTL time.Duration
	FeatureTTL     time.Duration
	CacheOpTimeout time.Duration
	FeatureLRUSize int
	Webhook        WebhookCfg
}

func FromEnv() Config {
	return Config{
		Addr:       getenv("ADDR", ":8080"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		RedisAddr:  getenv("REDIS_ADDR", "localhost:6379"),
		BlocksPath: getenv("BLOCKS_PATH", "blocks.json"),
		Influx: InfluxCfg{
			URL:    getenv("INFLUX_URL", "http://localhost:8086"),
			Token:  getenv("INFLUX_TOKEN", ""),
			Org:    getenv("INFLUX_ORG", "agrisense"),
			Bucket: getenv("INFLUX_BUCKET", "telemetry"),
		},
		IdempotencyTTL: getduration("IDEMPOTENCY_TTL", 24*time.Hour),
		FeatureTTL:     getduration("FEATURE_CACHE_TTL", 6*time.Hour),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		FeatureLRUSize: getint("FEATURE_LRU_SIZE", 1024),
		Webhook: WebhookCfg{
			Enabled:      getbool("WEBHOOKS_ENABLED", true),
			Secret:       getenv("WEBHOOK_SECRET", "dev-webhook-secret-change-in-production"),
			Timeout:      getduration("WEBHOOK_TIMEOUT", 10*time.Second),
			MaxAttempts:  getint("WEBHOOK_MAX_ATTEMPTS", 3),
			BackoffBase:  getduration("WEBHOOK_BACKOFF_BASE", time.Second),
			BackoffCap:   getduration("WEBHOOK_BACKOFF_CAP", 10*time.Second),
			FailureLimit: getint("WEBHOOK_FAILURE_LIMIT", 10),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
