package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"crm-dashboard/internal/apiclient"
	"crm-dashboard/internal/tokenstore"
)

// FallbackSecret verifies access tokens outside production when none is configured
const FallbackSecret = "fallback-secret"

var (
	ErrWeakSecret     = errors.New("JWT_ACCESS_SECRET must be set to a strong random value in production")
	ErrInvalidBaseURL = errors.New("API_BASE_URL must be an absolute http(s) URL")
)

// Config holds application configuration
type Config struct {
	Port              string
	APIBaseURL        string
	JWTAccessSecret   string
	AllowedOrigins    string
	Environment       string // development, staging, production
	CookieDomain      string
	RequestTimeout    time.Duration
	OpenAPIValidation bool
	OpenAPISpecPath   string
	LoginRateLimit    float64
	LoginRateBurst    int
	TokenFile         string
	LogLevel          string
	LogFormat         string
}

// Load reads .env (if present) and the environment, then validates
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		APIBaseURL:        getEnv("API_BASE_URL", "http://localhost:5000/api"),
		JWTAccessSecret:   getEnv("JWT_ACCESS_SECRET", ""),
		AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		CookieDomain:      getEnv("COOKIE_DOMAIN", ""),
		RequestTimeout:    getDuration("REQUEST_TIMEOUT", 10*time.Second),
		OpenAPIValidation: getBool("OPENAPI_VALIDATION", false),
		OpenAPISpecPath:   getEnv("OPENAPI_SPEC_PATH", "artifacts/openapi.yaml"),
		LoginRateLimit:    getFloat("LOGIN_RATE_LIMIT", 5),
		LoginRateBurst:    getInt("LOGIN_RATE_BURST", 10),
		TokenFile:         getEnv("TOKEN_FILE", defaultTokenFile()),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for security and correctness
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w (got %q)", ErrInvalidBaseURL, c.APIBaseURL)
	}

	if c.IsProduction() {
		if c.JWTAccessSecret == "" || c.JWTAccessSecret == FallbackSecret {
			return ErrWeakSecret
		}
		if len(c.JWTAccessSecret) < 32 {
			return fmt.Errorf("%w: at least 32 characters required (got %d)", ErrWeakSecret, len(c.JWTAccessSecret))
		}
		if u.Scheme != "https" {
			slog.Warn("API_BASE_URL is not HTTPS in production", slog.String("url", c.APIBaseURL))
		}
	} else if c.JWTAccessSecret == "" {
		c.JWTAccessSecret = FallbackSecret
		slog.Warn("using fallback JWT_ACCESS_SECRET outside production")
	}

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == ""
}

// CookieOptions are the token cookie attributes for this environment
func (c *Config) CookieOptions() tokenstore.CookieOptions {
	return tokenstore.CookieOptions{
		Secure: c.IsProduction(),
		Domain: c.CookieDomain,
	}
}

// APIClient returns the CRM API client configuration
func (c *Config) APIClient(userAgent string) apiclient.Config {
	return apiclient.Config{
		BaseURL:   c.APIBaseURL,
		Timeout:   c.RequestTimeout,
		UserAgent: userAgent,
		Policy:    apiclient.DefaultRetryPolicy(),
	}
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "crmctl", "cookies.json")
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
		slog.Warn("invalid duration, using default", slog.String("key", key), slog.String("value", value))
		return defaultValue
	}
	return d
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("invalid boolean, using default", slog.String("key", key), slog.String("value", value))
		return defaultValue
	}
	return b
}

func getFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f <= 0 {
		slog.Warn("invalid number, using default", slog.String("key", key), slog.String("value", value))
		return defaultValue
	}
	return f
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		slog.Warn("invalid integer, using default", slog.String("key", key), slog.String("value", value))
		return defaultValue
	}
	return n
}
