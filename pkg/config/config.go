// Package config loads service configuration from environment variables
// and an optional sponsorship policy file.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port          string
	LogLevel      string
	DatabaseURL   string
	RedisURL      string
	WebhookSecret string

	AdminPrincipal      string
	ControllerPrincipal string
	NativeAsset         string

	SponsorPolicyPath string
	DailyQuota        int64
	QuotaResetPeriod  time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	admin := os.Getenv("ADMIN_PRINCIPAL")
	if admin == "" {
		admin = "operator"
	}

	controller := os.Getenv("CONTROLLER_PRINCIPAL")
	if controller == "" {
		controller = "task-controller"
	}

	asset := os.Getenv("NATIVE_ASSET")
	if asset == "" {
		asset = "NATIVE"
	}

	quota := envInt64("SPONSOR_DAILY_QUOTA", 1_000_000)

	reset := 24 * time.Hour
	if hours := envInt64("SPONSOR_RESET_HOURS", 0); hours > 0 {
		reset = time.Duration(hours) * time.Hour
	}

	return &Config{
		Port:                port,
		LogLevel:            logLevel,
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		WebhookSecret:       os.Getenv("WEBHOOK_SECRET"),
		AdminPrincipal:      admin,
		ControllerPrincipal: controller,
		NativeAsset:         asset,
		SponsorPolicyPath:   os.Getenv("SPONSOR_POLICY_PATH"),
		DailyQuota:          quota,
		QuotaResetPeriod:    reset,
	}
}

func envInt64(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
