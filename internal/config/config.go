package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDynamo = "dynamodb"
	StoreSQL    = "sql"
)

type Config struct {
	// Application
	AppName string
	AppEnv  string
	AppURL  string
	Port    string

	// Store: "dynamodb" (single table) or "sql"
	StoreBackend string

	// SQL store (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// DynamoDB
	DynamoTable              string
	DynamoEndpoint           string // Optional: local DynamoDB
	DynamoDeletionProtection bool

	// AWS
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// Storage (S3-compatible: MinIO, AWS S3, Cloudflare R2, etc.)
	S3Bucket        string
	S3Prefix        string
	S3Endpoint      string // Optional: for S3-compatible services, uses path-style addressing
	S3PresignExpiry time.Duration

	// Artifacts
	ArtifactBaseURL  string // Optional: public CDN in front of the bucket
	ArtifactMinBytes int64
	ArtifactMaxBytes int64

	// Security
	JWTSecret  string
	APIKeyTTL  time.Duration
	MaxAPIKeys int

	// Rate limits (a limit of 0 disables the limiter)
	AuthRateLimit   int
	AuthRateWindow  time.Duration
	WriteRateLimit  int
	WriteRateWindow time.Duration

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GitHubClientID     string
	GitHubClientSecret string

	// Cognito bearer tokens (disabled when COGNITO_JWKS_URL is empty)
	CognitoJWKSURL string
	CognitoIssuer  string

	// Email
	EmailFrom    string
	ResendAPIKey string

	// Observability (optional)
	SentryDSN string
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	appEnv := envRequired("APP_ENV") // Required: 'development', 'test' or 'production'

	cfg := &Config{
		// Application
		AppName: envString("APP_NAME", "RoboList"),
		AppEnv:  appEnv,
		AppURL:  envRequired("APP_URL"), // Required: base URL for email links and OAuth redirects
		Port:    envString("PORT", "8090"),

		StoreBackend: envString("STORE_BACKEND", StoreDynamo),

		// SQL store
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/robolist.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"),

		// DynamoDB
		DynamoTable:              envString("DYNAMO_TABLE", "www-"+appEnv),
		DynamoEndpoint:           envString("DYNAMO_ENDPOINT", ""),
		DynamoDeletionProtection: envBool("DYNAMO_DELETION_PROTECTION", false),

		// AWS (static credentials when set, default chain otherwise)
		AWSRegion:          envString("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     envString("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: envString("AWS_SECRET_ACCESS_KEY", ""),

		// Storage
		S3Bucket:        envString("S3_BUCKET", "kscale-www-"+appEnv),
		S3Prefix:        envString("S3_PREFIX", ""),
		S3Endpoint:      envString("S3_ENDPOINT", ""),
		S3PresignExpiry: envDuration("S3_PRESIGN_EXPIRY", time.Hour),

		// Artifacts
		ArtifactBaseURL:  envString("ARTIFACT_BASE_URL", ""),
		ArtifactMinBytes: envInt64("ARTIFACT_MIN_BYTES", 16),
		ArtifactMaxBytes: envInt64("ARTIFACT_MAX_BYTES", 1536*1536*25),

		// Security
		JWTSecret:  envRequired("JWT_SECRET"),
		APIKeyTTL:  envDuration("API_KEY_TTL", 90*24*time.Hour), // 90 days
		MaxAPIKeys: int(envInt64("MAX_API_KEYS", 10)),

		// Rate limits: auth routes per client IP, writes per user
		AuthRateLimit:   int(envInt64("AUTH_RATE_LIMIT", 10)),
		AuthRateWindow:  envDuration("AUTH_RATE_WINDOW", 15*time.Minute),
		WriteRateLimit:  int(envInt64("WRITE_RATE_LIMIT", 120)),
		WriteRateWindow: envDuration("WRITE_RATE_WINDOW", time.Minute),

		// OAuth
		GoogleClientID:     envString("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: envString("GOOGLE_CLIENT_SECRET", ""),
		GitHubClientID:     envString("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret: envString("GITHUB_CLIENT_SECRET", ""),

		// Cognito
		CognitoJWKSURL: envString("COGNITO_JWKS_URL", ""),
		CognitoIssuer:  envString("COGNITO_ISSUER", ""),

		// Email (RESEND_API_KEY optional in development, required in production)
		EmailFrom:    envString("EMAIL_FROM", "noreply@example.com"),
		ResendAPIKey: envString("RESEND_API_KEY", ""),

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),
	}

	// Production: validate required services
	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// validateProduction ensures all required services are configured for production deployments.
// Development allows some services (like email and object storage) to use fallback modes.
func validateProduction(cfg *Config) {
	if cfg.ResendAPIKey == "" {
		slog.Error("production deployment requires RESEND_API_KEY",
			"hint", "set APP_ENV=development for local testing with email log mode")
		os.Exit(1)
	}
	if cfg.StoreBackend != StoreDynamo && cfg.StoreBackend != StoreSQL {
		slog.Error("unknown STORE_BACKEND", "value", cfg.StoreBackend)
		os.Exit(1)
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("config invalid integer, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsTest() bool {
	return c.AppEnv == "test"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Trusted reports whether error details may be returned to clients unredacted.
func (c *Config) Trusted() bool {
	return c.IsDevelopment() || c.IsTest()
}

// HasS3 reports whether object storage is configured explicitly.
func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" || c.AWSAccessKeyID != "" || c.IsProduction()
}
