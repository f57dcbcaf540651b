package app

import (
	"os"
	"strconv"
	"time"
)

// Config is everything the service reads from the environment. Every field
// has a default that works for local development; production deployments
// override what they need.
type Config struct {
	Port int
	Env  string

	LogLevel  string
	LogFormat string

	DatabaseFile string

	// Signing key resolution order: the env pair wins, then the key store
	// directory, then a freshly generated pair.
	RSAPrivateKey   string
	RSAPublicKey    string
	RSAKeyStorePath string

	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	MaxActiveTokens int

	GoogleClientID string

	HousekeepingInterval time.Duration
	ShutdownGracePeriod  time.Duration
}

// LoadConfig reads configuration from the environment, applying defaults for
// anything unset.
func LoadConfig() Config {
	return Config{
		Port: getEnvIntOrDefault("PORT", 8080),
		Env:  getEnvOrDefault("ENV", "development"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),

		DatabaseFile: getEnvOrDefault("DATABASE_FILE", "identity.db"),

		RSAPrivateKey:   os.Getenv("RSA_PRIVATE_KEY"),
		RSAPublicKey:    os.Getenv("RSA_PUBLIC_KEY"),
		RSAKeyStorePath: getEnvOrDefault("RSA_KEY_STORE_PATH", "./keys"),

		Issuer:          getEnvOrDefault("ISSUER", "taskhive-identity"),
		AccessTokenTTL:  getEnvDurationOrDefault("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getEnvDurationOrDefault("REFRESH_TOKEN_TTL", 168*time.Hour),
		MaxActiveTokens: getEnvIntOrDefault("MAX_ACTIVE_REFRESH_TOKENS", 5),

		GoogleClientID: os.Getenv("GOOGLE_CLIENT_ID"),

		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDurationOrDefault(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
