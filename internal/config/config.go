// Package config loads and validates crashkeep's configuration from
// the process environment. Every key from the ingest/digest spec's
// configuration table (§6) is read here; optional keys fall back to
// the documented defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration. Read once at startup;
// changes require a restart.
type Config struct {
	DatabaseURL            string
	DatabasePoolSize       int32
	DatabasePoolTimeoutSecs int

	ListenAddr string // CRASH_CACHE_HOST:CRASH_CACHE_PORT

	MaxCompressedPayloadBytes   int64
	MaxUncompressedPayloadBytes int64

	WorkerIntervalSecs     int
	WorkerReportsBatchSize int
	MaxConcurrentCompressions int

	RateLimitGlobalPerSec     float64
	RateLimitPerIPPerSec      float64
	RateLimitPerProjectPerSec float64
	RateLimitBurstMultiplier  float64

	AnalyticsFlushIntervalSecs int
	AnalyticsRetentionDays    int
	AnalyticsBufferSize       int

	AdminKey   string
	LogLevel   string
	MetricsEnabled bool
}

// Load reads configuration from the environment. Required keys missing
// entirely cause an error; optional keys use the defaults noted below.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.DatabaseURL, err = requireEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}

	cfg.DatabasePoolSize = int32(envInt("DATABASE_POOL_SIZE", 30))
	cfg.DatabasePoolTimeoutSecs = envInt("DATABASE_POOL_TIMEOUT_SECS", 20)

	host := envString("CRASH_CACHE_HOST", "0.0.0.0")
	port := envString("CRASH_CACHE_PORT", "3000")
	cfg.ListenAddr = host + ":" + port

	cfg.MaxCompressedPayloadBytes, err = envByteSize("MAX_COMPRESSED_PAYLOAD_BYTES", 50*1024)
	if err != nil {
		return nil, err
	}
	cfg.MaxUncompressedPayloadBytes, err = envByteSize("MAX_UNCOMPRESSED_PAYLOAD_BYTES", 200*1024)
	if err != nil {
		return nil, err
	}

	cfg.WorkerIntervalSecs = envInt("WORKER_INTERVAL_SECS", 60)
	cfg.WorkerReportsBatchSize = envInt("WORKER_REPORTS_BATCH_SIZE", 100)
	cfg.MaxConcurrentCompressions = envInt("MAX_CONCURRENT_COMPRESSIONS", 12)

	cfg.RateLimitGlobalPerSec = envFloat("RATE_LIMIT_REQUESTS_PER_SEC", 800)
	cfg.RateLimitPerIPPerSec = envFloat("RATE_LIMIT_PER_IP_PER_SEC", 30)
	cfg.RateLimitPerProjectPerSec = envFloat("RATE_LIMIT_PER_PROJECT_PER_SEC", 500)
	cfg.RateLimitBurstMultiplier = envFloat("RATE_LIMIT_BURST_MULTIPLIER", 2)

	cfg.AnalyticsFlushIntervalSecs = envInt("ANALYTICS_FLUSH_INTERVAL_SECS", 10)
	cfg.AnalyticsRetentionDays = envInt("ANALYTICS_RETENTION_DAYS", 30)
	cfg.AnalyticsBufferSize = envInt("ANALYTICS_BUFFER_SIZE", 20000)

	cfg.AdminKey, err = requireEnv("ADMIN_KEY")
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = envString("LOG_LEVEL", "info")
	cfg.MetricsEnabled = envBool("METRICS_ENABLED", true)

	return cfg, nil
}

func requireEnv(key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", fmt.Errorf("config: missing required environment variable %s", key)
	}
	return v, nil
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := parseIntExpr(v)
	if err != nil {
		return fallback
	}
	return int(n)
}

func envFloat(key string, fallback float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fallback
	}
	return f
}

// envByteSize parses a byte-size config value, accepting either a
// plain integer or a "*"-joined product expression such as
// "50 * 1024" (ported from the original Rust settings loader's
// parse_multiplication, which supports 2- or 3-term products).
func envByteSize(key string, fallback int64) (int64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := parseIntExpr(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

// parseIntExpr parses either a bare integer literal or a "*"-separated
// product of integer literals (any number of factors).
func parseIntExpr(raw string) (int64, error) {
	v := strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, nil
	}

	if !strings.Contains(v, "*") {
		return 0, fmt.Errorf("invalid integer literal %q", raw)
	}

	parts := strings.Split(v, "*")
	var product int64 = 1
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid product expression %q: %w", raw, err)
		}
		product *= n
	}
	return product, nil
}
