package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads environment variables from .env files. A missing file is
// reported as an error; callers may ignore it and rely on the process
// environment and defaults. With no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// Settings is the service configuration read from the environment.
type Settings struct {
	Port      string
	LogLevel  string
	LogFormat string

	// FallbackLifetime replaces a minimumUpdatePeriod of zero.
	FallbackLifetime time.Duration
	MaxXLinkRounds   int

	FetchTimeout         time.Duration
	FetchRate            float64
	FetchBurst           int
	FetchHostConcurrency int
	FetchMaxBodyBytes    int64
}

// FromEnv reads Settings, using the defaults for unset or malformed values.
func FromEnv() Settings {
	return Settings{
		Port:                 GetEnv("PORT", "8080"),
		LogLevel:             GetEnv("LOG_LEVEL", "info"),
		LogFormat:            GetEnv("LOG_FORMAT", "json"),
		FallbackLifetime:     GetEnvDuration("FALLBACK_LIFETIME", 3*time.Second),
		MaxXLinkRounds:       GetEnvInt("MAX_XLINK_ROUNDS", 16),
		FetchTimeout:         GetEnvDuration("FETCH_TIMEOUT", 10*time.Second),
		FetchRate:            GetEnvFloat("FETCH_RATE", 20),
		FetchBurst:           GetEnvInt("FETCH_BURST", 10),
		FetchHostConcurrency: GetEnvInt("FETCH_HOST_CONCURRENCY", 4),
		FetchMaxBodyBytes:    int64(GetEnvInt("FETCH_MAX_BODY_BYTES", 16<<20)),
	}
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvFloat is GetEnvInt for floating-point values.
func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}

// GetEnvDuration parses values such as "3s" or "500ms". A bare number is
// taken as seconds.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return fallback
}
