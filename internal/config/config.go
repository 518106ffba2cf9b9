package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	NotifyProviderRelay    = "relay"
	NotifyProviderSES      = "ses"
	NotifyProviderSendGrid = "sendgrid"
	NotifyProviderStub     = "stub"

	RateLimitBackendMemory   = "memory"
	RateLimitBackendRedis    = "redis"
	RateLimitBackendDynamoDB = "dynamodb"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// CSRF
	CSRFSecret string
	CSRFTTL    time.Duration

	// Notification relay
	NotifyProvider         string
	NotificationRecipients []string
	SiteBaseURL            string
	RelayTimeout           time.Duration
	NotifyFromName         string
	SESFromEmail           string
	SendGridAPIKey         string
	SendGridFromEmail      string

	// Rate limiting
	RateLimitMax       int
	RateLimitWindow    time.Duration
	RateLimitBackend   string
	RateLimitTable     string
	TrustXForwardedFor bool
	RedisAddr          string
	RedisPassword      string
	RedisTLS           bool

	// Identity proxy
	IdentityUpstreamURL   string
	IdentityAllowedOrigin string
	IdentityTimeout       time.Duration
	IdentityRPS           float64
	IdentityBurst         int

	CORSAllowedOrigins []string
	AdminJWTSecret     string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		CSRFSecret: getEnv("CSRF_SECRET", ""),
		CSRFTTL:    getEnvAsDuration("CSRF_TTL", 2*time.Hour),

		NotifyProvider:         strings.ToLower(strings.TrimSpace(getEnv("NOTIFY_PROVIDER", NotifyProviderRelay))),
		NotificationRecipients: getEnvAsList("NOTIFICATION_RECIPIENTS", []string{"info@ridgelinepa.com"}),
		SiteBaseURL:            getEnv("SITE_BASE_URL", ""),
		RelayTimeout:           getEnvAsDuration("RELAY_TIMEOUT", 8*time.Second),
		NotifyFromName:         getEnv("NOTIFY_FROM_NAME", "Ridgeline Website"),
		SESFromEmail:           getEnv("SES_FROM_EMAIL", ""),
		SendGridAPIKey:         getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:      getEnv("SENDGRID_FROM_EMAIL", ""),

		RateLimitMax:       getEnvAsInt("RATE_LIMIT_MAX", 100),
		RateLimitWindow:    getEnvAsDuration("RATE_LIMIT_WINDOW", time.Hour),
		RateLimitBackend:   strings.ToLower(strings.TrimSpace(getEnv("RATE_LIMIT_BACKEND", RateLimitBackendMemory))),
		RateLimitTable:     getEnv("RATE_LIMIT_TABLE", "rate_limits"),
		TrustXForwardedFor: getEnvAsBool("TRUST_X_FORWARDED_FOR", false),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),

		IdentityUpstreamURL:   getEnv("IDENTITY_UPSTREAM_URL", "https://ridgelinepa.netlify.app/.netlify/identity"),
		IdentityAllowedOrigin: getEnv("IDENTITY_ALLOWED_ORIGIN", "https://www.ridgelinepa.com"),
		IdentityTimeout:       getEnvAsDuration("IDENTITY_TIMEOUT", 10*time.Second),
		IdentityRPS:           getEnvAsFloat("IDENTITY_RPS", 5),
		IdentityBurst:         getEnvAsInt("IDENTITY_BURST", 20),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"https://www.ridgelinepa.com", "https://ridgelinepa.com"}),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.NotifyProvider {
	case NotifyProviderRelay, NotifyProviderStub:
	case NotifyProviderSES:
		if c.SESFromEmail == "" {
			errs = append(errs, errors.New("SES_FROM_EMAIL is required when NOTIFY_PROVIDER=ses"))
		}
	case NotifyProviderSendGrid:
		if c.SendGridAPIKey == "" || c.SendGridFromEmail == "" {
			errs = append(errs, errors.New("SENDGRID_API_KEY and SENDGRID_FROM_EMAIL are required when NOTIFY_PROVIDER=sendgrid"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown NOTIFY_PROVIDER %q", c.NotifyProvider))
	}

	switch c.RateLimitBackend {
	case RateLimitBackendMemory, RateLimitBackendDynamoDB:
	case RateLimitBackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required when RATE_LIMIT_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimitBackend))
	}

	if c.RateLimitMax <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX must be > 0"))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be > 0"))
	}
	if c.CSRFTTL <= 0 {
		errs = append(errs, errors.New("CSRF_TTL must be > 0"))
	}
	if c.IsProduction() && c.CSRFSecret == "" {
		errs = append(errs, errors.New("CSRF_SECRET is required in production"))
	}
	if c.IdentityRPS <= 0 || c.IdentityBurst <= 0 {
		errs = append(errs, errors.New("IDENTITY_RPS and IDENTITY_BURST must be > 0"))
	}
	return errors.Join(errs...)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blank entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
