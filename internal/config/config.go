// Package config manages application configuration
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string
	LogFormat   string // "text" or "json"

	// Storage
	StoreDriver   string // sqlite, leveldb, mongo or memory
	DatabaseURL   string // sqlite file or leveldb directory
	MongoURI      string
	MongoDatabase string
	StoreTimeout  time.Duration

	// Security
	SecretKey  string // For JWT signing
	BcryptCost int

	// Session settings
	SessionDuration time.Duration

	// Password reset
	ResetTTL             time.Duration
	ResetURLBase         string
	ResetPurgeSchedule   string
	ForgotPasswordStrict bool // report unknown emails instead of answering success-shaped

	// Market data
	MarketProvider   string // coingecko or mock
	CoinGeckoBaseURL string
	CoinGeckoAPIKey  string
	MarketTimeout    time.Duration
	MarketCacheTTL   time.Duration
	PollInterval     time.Duration
	PollSymbols      []string
	UpstreamRate     float64
	UpstreamBurst    float64
	WSReadLimit      int64

	// Redis (optional, enables the shared upstream rate limiter)
	RedisAddr     string
	RedisPassword string

	// SMTP
	SMTPHost  string
	SMTPPort  int
	SMTPUser  string
	SMTPPass  string
	FromEmail string
}

// Load reads configuration from environment variables with sensible defaults
func Load() *Config {
	bindSecrets()

	return &Config{
		Port:        getEnv("COINWATCH_PORT", "8080"),
		Environment: getEnv("COINWATCH_ENV", "development"),
		LogLevel:    getEnv("COINWATCH_LOG_LEVEL", "info"),
		LogFormat:   getEnv("COINWATCH_LOG_FORMAT", "text"),

		StoreDriver:   getEnv("COINWATCH_STORE", "sqlite"),
		DatabaseURL:   getEnv("COINWATCH_DATABASE_URL", "coinwatch.db"),
		MongoURI:      getSecret("mongo_uri", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("COINWATCH_MONGO_DATABASE", "coinwatch"),
		StoreTimeout:  getDurationEnv("COINWATCH_STORE_TIMEOUT", 3*time.Second),

		SecretKey:  getSecret("secret_key", "dev-secret-key-change-in-production"),
		BcryptCost: getIntEnv("COINWATCH_BCRYPT_COST", 10),

		SessionDuration: getDurationEnv("COINWATCH_SESSION_DURATION", 7*24*time.Hour),

		ResetTTL:             getDurationEnv("COINWATCH_RESET_TTL", 15*time.Minute),
		ResetURLBase:         getEnv("COINWATCH_RESET_URL_BASE", "http://localhost:5173/reset-password/"),
		ResetPurgeSchedule:   getEnv("COINWATCH_RESET_PURGE_SCHEDULE", "@every 1m"),
		ForgotPasswordStrict: getBoolEnv("COINWATCH_FORGOT_PASSWORD_STRICT", false),

		MarketProvider:   getEnv("COINWATCH_MARKET_PROVIDER", "coingecko"),
		CoinGeckoBaseURL: getEnv("COINWATCH_COINGECKO_BASE", "https://api.coingecko.com/api/v3"),
		CoinGeckoAPIKey:  getSecret("coingecko_api_key", ""),
		MarketTimeout:    getDurationEnv("COINWATCH_MARKET_TIMEOUT", 8*time.Second),
		MarketCacheTTL:   getDurationEnv("COINWATCH_MARKET_CACHE_TTL", 30*time.Second),
		PollInterval:     getDurationEnv("COINWATCH_POLL_INTERVAL", 5*time.Second),
		PollSymbols:      getListEnv("COINWATCH_POLL_SYMBOLS", []string{"bitcoin", "ethereum"}),
		UpstreamRate:     getFloatEnv("COINWATCH_UPSTREAM_RATE", 0.5),
		UpstreamBurst:    getFloatEnv("COINWATCH_UPSTREAM_BURST", 5),
		WSReadLimit:      int64(getIntEnv("COINWATCH_WS_READ_LIMIT", 4096)),

		RedisAddr:     getEnv("COINWATCH_REDIS_ADDR", ""),
		RedisPassword: getSecret("redis_password", ""),

		SMTPHost:  getEnv("COINWATCH_SMTP_HOST", ""),
		SMTPPort:  getIntEnv("COINWATCH_SMTP_PORT", 587),
		SMTPUser:  getEnv("COINWATCH_SMTP_USER", ""),
		SMTPPass:  getSecret("smtp_pass", ""),
		FromEmail: getEnv("COINWATCH_SMTP_FROM", ""),
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// bindSecrets maps the secret-bearing keys onto their environment variables.
// Secrets are looked up through viper so they can also come from the
// unprefixed names used by container orchestrators.
func bindSecrets() {
	viper.AutomaticEnv()

	_ = viper.BindEnv("secret_key", "COINWATCH_SECRET_KEY", "JWT_SECRET")
	_ = viper.BindEnv("mongo_uri", "COINWATCH_MONGO_URI", "MONGO_URI")
	_ = viper.BindEnv("redis_password", "COINWATCH_REDIS_PASSWORD", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "COINWATCH_SMTP_PASS", "SMTP_PASS")
	_ = viper.BindEnv("coingecko_api_key", "COINWATCH_COINGECKO_API_KEY", "COINGECKO_API_KEY")
}

func getSecret(key, defaultValue string) string {
	if value := viper.GetString(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getListEnv parses a comma separated list, dropping blanks
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
