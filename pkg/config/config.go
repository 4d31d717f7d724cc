package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the options core.
type Config struct {
	Port string

	// Env selects the logger profile ("development" or "production").
	Env string

	// Database
	DBPath string

	// Price oracle
	UseMockOracle  bool
	OracleBaseURL  string
	OracleCacheTTL time.Duration

	// Settlement sweep
	SweepInterval time.Duration

	// Trade settings cache
	SettingsCacheTTL time.Duration

	// Asset tier seed file (YAML); empty disables seeding.
	TierSeedPath string

	// Auth
	JWTSecret string

	// Bootstrap admin account; created on startup when both are set and the
	// email is not registered yet.
	AdminEmail    string
	AdminPassword string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	// Database path: prefer DB_PATH, then DATABASE_PATH for backward compatibility.
	dbPath := getEnv("DB_PATH", "")
	if dbPath == "" {
		dbPath = getEnv("DATABASE_PATH", "./data/options.db")
	}

	return &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("APP_ENV", "development"),
		DBPath:           dbPath,
		UseMockOracle:    getEnv("USE_MOCK_ORACLE", "true") == "true",
		OracleBaseURL:    getEnv("ORACLE_BASE_URL", "https://api.binance.com"),
		OracleCacheTTL:   getEnvDuration("ORACLE_CACHE_TTL", 2*time.Second),
		SweepInterval:    getEnvDuration("SWEEP_INTERVAL", 5*time.Second),
		SettingsCacheTTL: getEnvDuration("SETTINGS_CACHE_TTL", 5*time.Second),
		TierSeedPath:     getEnv("TIER_SEED_PATH", "./config/tiers.yaml"),
		JWTSecret:        getEnv("JWT_SECRET", "dev-secret"),
		AdminEmail:       os.Getenv("ADMIN_EMAIL"),
		AdminPassword:    os.Getenv("ADMIN_PASSWORD"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// Bare numbers are read as seconds.
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
