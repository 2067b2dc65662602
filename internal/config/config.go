package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL   string
	MigrationsDir string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Logging
	LogLevel  string
	LogFormat string

	// WebSocket
	AllowedOrigin     string
	SendBuffer        int
	MaxMessageBytes   int64
	EventsPerSecond   float64
	HistoryDefaultLen int
	HistoryMaxLen     int

	// Session reaper
	SessionStaleAfter   time.Duration
	SessionReapInterval time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	env := getEnvOrDefault("ENV", "development")
	defaultFormat := "json"
	if env == "development" {
		defaultFormat = "console"
	}

	cfg := &Config{
		Port:                getEnvOrDefault("PORT", "8080"),
		Env:                 env,
		DatabaseURL:         mustGetEnv("DATABASE_URL"),
		MigrationsDir:       getEnvOrDefault("MIGRATIONS_DIR", "migrations"),
		RedisURL:            mustGetEnv("REDIS_URL"),
		JWTSecret:           mustGetEnv("JWT_SECRET"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", defaultFormat),
		AllowedOrigin:       getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
		SendBuffer:          getEnvAsIntOrDefault("WS_SEND_BUFFER", 256),
		MaxMessageBytes:     int64(getEnvAsIntOrDefault("WS_MAX_MESSAGE_BYTES", 64*1024)),
		EventsPerSecond:     getEnvAsFloatOrDefault("WS_EVENTS_PER_SECOND", 20),
		HistoryDefaultLen:   getEnvAsIntOrDefault("HISTORY_DEFAULT_LIMIT", 50),
		HistoryMaxLen:       getEnvAsIntOrDefault("HISTORY_MAX_LIMIT", 200),
		SessionStaleAfter:   getEnvAsDurationOrDefault("SESSION_STALE_AFTER", 2*time.Hour),
		SessionReapInterval: getEnvAsDurationOrDefault("SESSION_REAP_INTERVAL", 10*time.Minute),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsFloatOrDefault(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f <= 0 {
		return defaultVal
	}
	return f
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
