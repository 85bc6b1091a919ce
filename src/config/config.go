package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port           string
	DatabasePath   string
	LogLevel       string
	PayoutDataPath string

	// FxFallbackRate is the documented fallback used by the FX lookup when no
	// rate exists on or before the requested date. The original books were
	// kept with EUR->USD 1.10, so that is the default.
	FxFallbackRate float64

	ReportCacheExpiration time.Duration
	ReportCacheCleanup    time.Duration

	RateLimitInterval time.Duration
	RateLimitBurst    int
}

var Cfg *AppConfig

func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", errEnv)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	Cfg = &AppConfig{
		Port:           getEnv("PORT", "8080"),
		DatabasePath:   getEnv("DATABASE_PATH", "./statka.db"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		PayoutDataPath: getEnv("PAYOUT_DATA_PATH", "data/payouts.json"),

		FxFallbackRate: getEnvAsFloat("FX_FALLBACK_RATE", 1.10),

		ReportCacheExpiration: getEnvAsDuration("REPORT_CACHE_EXPIRATION", 15*time.Minute),
		ReportCacheCleanup:    getEnvAsDuration("REPORT_CACHE_CLEANUP", 30*time.Minute),

		RateLimitInterval: getEnvAsDuration("RATE_LIMIT_INTERVAL", 100*time.Millisecond),
		RateLimitBurst:    getEnvAsInt("RATE_LIMIT_BURST", 30),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, PayoutDataPath=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.PayoutDataPath)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	log.Printf("Invalid float value for %s ('%s'), using default: %g", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
