package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Application base URL (checkout redirects)
	BaseURL string

	// Identity provider (Clerk)
	ClerkIssuer        string // JWKS issuer; tokens are rejected when empty
	ClerkWebhookSecret string // svix signing secret; webhooks return 503 when empty
	ClerkPlanClaim     string // session token claim carrying plan flags

	// Stripe top-ups
	// In development, billing routes report not found if the key is empty.
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeTopUpPriceID  string
	TopUpMinutes        int64

	// Analysis cache
	CacheProvider   string // "memory" or "redis"
	RedisURL        string
	CacheTTL        time.Duration
	CacheMaxEntries int

	// Webhook payload archive
	ArchiveProvider  string // "local" or "r2"
	LocalArchivePath string

	// R2 Storage (production)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string

	// Worker Configuration
	WorkerEnabled      bool
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerJobTimeout   time.Duration

	// AI Provider Configuration
	AIProvider       string // "anthropic" or "mock"
	AnthropicAPIKey  string
	AnthropicModel   string
	AIMaxRetries     int
	AIRetryBaseDelay time.Duration
	AIRequestTimeout time.Duration

	// Interview sessions
	SessionStaleAfter    time.Duration
	SessionSweepInterval time.Duration

	// Per-user API rate limit
	APIRateLimit  int
	APIRateWindow time.Duration

	// Admin access control (coupon creation)
	AdminEmails []string

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		ClerkIssuer:        getEnv("CLERK_ISSUER", ""),
		ClerkWebhookSecret: getEnv("CLERK_WEBHOOK_SECRET", ""),
		ClerkPlanClaim:     getEnv("CLERK_PLAN_CLAIM", "pla"),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeTopUpPriceID:  getEnv("STRIPE_TOPUP_PRICE_ID", ""),
		TopUpMinutes:        int64(getEnvInt("TOPUP_MINUTES", 30)),

		CacheProvider:   getEnv("CACHE_PROVIDER", "memory"),
		RedisURL:        getEnv("REDIS_URL", ""),
		CacheTTL:        getEnvDuration("CACHE_TTL", time.Hour),
		CacheMaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 1000),

		ArchiveProvider:  getEnv("ARCHIVE_PROVIDER", "local"),
		LocalArchivePath: getEnv("LOCAL_ARCHIVE_PATH", "./archive"),

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),

		// Worker defaults
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		WorkerJobTimeout:   getEnvDuration("WORKER_JOB_TIMEOUT", 5*time.Minute),

		// AI provider defaults
		AIProvider:       getEnv("AI_PROVIDER", "mock"),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:   getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		AIMaxRetries:     getEnvInt("AI_MAX_RETRIES", 3),
		AIRetryBaseDelay: getEnvDuration("AI_RETRY_BASE_DELAY", 1*time.Second),
		AIRequestTimeout: getEnvDuration("AI_REQUEST_TIMEOUT", 150*time.Second),

		SessionStaleAfter:    getEnvDuration("SESSION_STALE_AFTER", 3*time.Minute),
		SessionSweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", time.Minute),

		APIRateLimit:  getEnvInt("API_RATE_LIMIT", 120),
		APIRateWindow: getEnvDuration("API_RATE_WINDOW", time.Minute),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Parse admin emails from comma-separated environment variable
	for _, email := range strings.Split(getEnv("ADMIN_EMAILS", ""), ",") {
		if trimmed := strings.TrimSpace(strings.ToLower(email)); trimmed != "" {
			cfg.AdminEmails = append(cfg.AdminEmails, trimmed)
		}
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.ClerkIssuer == "" && !cfg.IsDevelopment() {
		return fmt.Errorf("CLERK_ISSUER is required when ENV is %q", cfg.Env)
	}

	switch cfg.CacheProvider {
	case "memory":
		if cfg.CacheMaxEntries < 1 {
			return fmt.Errorf("CACHE_MAX_ENTRIES must be at least 1, got %d", cfg.CacheMaxEntries)
		}
	case "redis":
		if cfg.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when CACHE_PROVIDER is 'redis'")
		}
	default:
		return fmt.Errorf("CACHE_PROVIDER must be either 'memory' or 'redis', got: %s", cfg.CacheProvider)
	}

	// Validate archive configuration
	if cfg.ArchiveProvider == "r2" {
		if cfg.R2AccountID == "" {
			return fmt.Errorf("R2_ACCOUNT_ID is required when ARCHIVE_PROVIDER is 'r2'")
		}
		if cfg.R2AccessKeyID == "" {
			return fmt.Errorf("R2_ACCESS_KEY_ID is required when ARCHIVE_PROVIDER is 'r2'")
		}
		if cfg.R2SecretAccessKey == "" {
			return fmt.Errorf("R2_SECRET_ACCESS_KEY is required when ARCHIVE_PROVIDER is 'r2'")
		}
		if cfg.R2BucketName == "" {
			return fmt.Errorf("R2_BUCKET_NAME is required when ARCHIVE_PROVIDER is 'r2'")
		}
	} else if cfg.ArchiveProvider != "local" {
		return fmt.Errorf("ARCHIVE_PROVIDER must be either 'local' or 'r2', got: %s", cfg.ArchiveProvider)
	}

	// Validate AI provider configuration
	if cfg.AIProvider == "anthropic" {
		if cfg.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is 'anthropic'")
		}
	} else if cfg.AIProvider != "mock" {
		return fmt.Errorf("AI_PROVIDER must be either 'anthropic' or 'mock', got: %s", cfg.AIProvider)
	}

	if cfg.AIRequestTimeout < time.Second {
		return fmt.Errorf("AI_REQUEST_TIMEOUT must be at least 1s, got %v", cfg.AIRequestTimeout)
	}

	if cfg.StripeSecretKey != "" && cfg.StripeTopUpPriceID == "" {
		return fmt.Errorf("STRIPE_TOPUP_PRICE_ID is required when STRIPE_SECRET_KEY is set")
	}
	if cfg.TopUpMinutes < 1 {
		return fmt.Errorf("TOPUP_MINUTES must be positive, got %d", cfg.TopUpMinutes)
	}

	if cfg.SessionStaleAfter <= 0 {
		return fmt.Errorf("SESSION_STALE_AFTER must be positive, got %v", cfg.SessionStaleAfter)
	}
	if cfg.SessionSweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be positive, got %v", cfg.SessionSweepInterval)
	}

	if cfg.APIRateLimit < 1 {
		return fmt.Errorf("API_RATE_LIMIT must be at least 1, got %d", cfg.APIRateLimit)
	}
	if cfg.APIRateWindow < time.Second {
		return fmt.Errorf("API_RATE_WINDOW must be at least 1s, got %v", cfg.APIRateWindow)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
