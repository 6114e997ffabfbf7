package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

// JobPolicy is the retry surface of one task type.
type JobPolicy struct {
	MaxRetry int
	Backoff  time.Duration
	Timeout  time.Duration
}

type Config struct {
	PostgresURI string
	RedisURI    string
	HTTPAddr    string
	FrontendURL string
	SecretKey   string
	CookieName  string
	SentryDSN   string
	Environment string
	R2          R2

	TiktokClientKey    string
	TiktokClientSecret string
	GoogleClientID     string
	GoogleClientSecret string

	SchedulerInterval time.Duration
	SweepInterval     time.Duration
	StaleClaimAfter   time.Duration
	BatchLimit        int

	SchedulerJob JobPolicy
	PublishJob   JobPolicy
	// RetryWindow bounds the wall-clock time across every retry of one post.
	RetryWindow time.Duration
	DedupWindow time.Duration

	TargetTimeout     time.Duration
	TargetConcurrency int
	WorkerConcurrency int
	PlatformRateLimit int
	MixedPolicy       string

	TokenRefreshInterval time.Duration
	// TokenRefreshAhead is how long before expiry a token is renewed.
	TokenRefreshAhead time.Duration
}

func LoadConfig() *Config {
	return &Config{
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", "localhost:6379"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":3000"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		SecretKey:   getEnv("SECRET_KEY", ""),
		CookieName:  getEnv("COOKIE_NAME", ""),
		SentryDSN:   getEnv("SENTRY_DSN", ""),
		Environment: getEnv("APP_ENV", "development"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},

		TiktokClientKey:    getEnv("TIKTOK_CLIENT_KEY", ""),
		TiktokClientSecret: getEnv("TIKTOK_CLIENT_SECRET", ""),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),

		SchedulerInterval: getDuration("SCHEDULER_INTERVAL", time.Minute),
		SweepInterval:     getDuration("SWEEP_INTERVAL", 5*time.Minute),
		StaleClaimAfter:   getDuration("STALE_CLAIM_AFTER", 15*time.Minute),
		BatchLimit:        getInt("SCHEDULER_BATCH_LIMIT", 100),

		SchedulerJob: JobPolicy{
			MaxRetry: getInt("SCHEDULER_MAX_RETRY", 3),
			Backoff:  getDuration("SCHEDULER_BACKOFF", 30*time.Second),
			Timeout:  getDuration("SCHEDULER_TIMEOUT", 120*time.Second),
		},
		PublishJob: JobPolicy{
			MaxRetry: getInt("PUBLISH_MAX_RETRY", 1),
			Backoff:  getDuration("PUBLISH_BACKOFF", 10*time.Second),
			Timeout:  getDuration("PUBLISH_TIMEOUT", 180*time.Second),
		},
		RetryWindow: getDuration("PUBLISH_RETRY_WINDOW", 5*time.Minute),
		DedupWindow: getDuration("PUBLISH_DEDUP_WINDOW", 24*time.Hour),

		TargetTimeout:     getDuration("TARGET_TIMEOUT", 60*time.Second),
		TargetConcurrency: getInt("TARGET_CONCURRENCY", 10),
		WorkerConcurrency: getInt("WORKER_CONCURRENCY", 10),
		PlatformRateLimit: getInt("PLATFORM_RATE_LIMIT", 5),
		MixedPolicy:       getEnv("AGGREGATION_MIXED_POLICY", "best_effort"),

		TokenRefreshInterval: getDuration("TOKEN_REFRESH_INTERVAL", 10*time.Minute),
		TokenRefreshAhead:    getDuration("TOKEN_REFRESH_AHEAD", 30*time.Minute),
	}
}

// Validate reports settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.PostgresURI == "" {
		return fmt.Errorf("POSTGRES_URI is required")
	}
	if c.BatchLimit <= 0 {
		return fmt.Errorf("SCHEDULER_BATCH_LIMIT must be positive, got %d", c.BatchLimit)
	}
	if c.PublishJob.MaxRetry < 0 || c.SchedulerJob.MaxRetry < 0 {
		return fmt.Errorf("max retry must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"TARGET_TIMEOUT":       c.TargetTimeout,
		"PUBLISH_TIMEOUT":      c.PublishJob.Timeout,
		"PUBLISH_RETRY_WINDOW": c.RetryWindow,
		"SCHEDULER_TIMEOUT":    c.SchedulerJob.Timeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.StaleClaimAfter <= c.RetryWindow+c.PublishJob.Timeout {
		return fmt.Errorf("STALE_CLAIM_AFTER (%s) must exceed the retry window plus the publish timeout (%s)",
			c.StaleClaimAfter, c.RetryWindow+c.PublishJob.Timeout)
	}
	if c.SchedulerInterval < time.Second || c.SweepInterval < time.Second {
		return fmt.Errorf("scheduler and sweep intervals must be at least 1s")
	}
	if c.TargetConcurrency <= 0 {
		return fmt.Errorf("TARGET_CONCURRENCY must be positive, got %d", c.TargetConcurrency)
	}
	if c.TokenRefreshInterval < time.Second {
		return fmt.Errorf("TOKEN_REFRESH_INTERVAL must be at least 1s")
	}
	// A token must not be able to expire between two refresh runs.
	if c.TokenRefreshAhead <= c.TokenRefreshInterval {
		return fmt.Errorf("TOKEN_REFRESH_AHEAD (%s) must exceed TOKEN_REFRESH_INTERVAL (%s)",
			c.TokenRefreshAhead, c.TokenRefreshInterval)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid integer, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return n
}
