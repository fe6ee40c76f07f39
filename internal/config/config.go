package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultBackendURL = "http://localhost:8000"

type Config struct {
	// Server
	Port string
	Env  string

	// Backend
	BackendURL        string
	BackendChatPath   string
	ProxyTimeout      time.Duration
	StreamReadTimeout time.Duration
	MaxBodyBytes      int64

	// Limits
	RateLimitPerMinute int

	// Redis (optional)
	RedisURL string

	// Transcript
	TranscriptTTL         time.Duration
	TranscriptMaxMessages int
	TranscriptWorkers     int

	// Logging
	LogLevel      string
	LogFormat     string
	LogDir        string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                  getEnvOrDefault("PORT", "8080"),
		Env:                   getEnvOrDefault("ENV", "development"),
		BackendURL:            backendURL(),
		BackendChatPath:       getEnvOrDefault("BACKEND_CHAT_PATH", "/chat"),
		ProxyTimeout:          getEnvAsDurationOrDefault("PROXY_TIMEOUT", 30*time.Second),
		StreamReadTimeout:     getEnvAsDurationOrDefault("STREAM_READ_TIMEOUT", 2*time.Minute),
		MaxBodyBytes:          int64(getEnvAsIntOrDefault("MAX_BODY_BYTES", 64*1024)),
		RateLimitPerMinute:    getEnvAsIntOrDefault("RATE_LIMIT_PER_MINUTE", 30),
		RedisURL:              getEnvOrDefault("REDIS_URL", ""),
		TranscriptTTL:         getEnvAsDurationOrDefault("TRANSCRIPT_TTL", 24*time.Hour),
		TranscriptMaxMessages: getEnvAsIntOrDefault("TRANSCRIPT_MAX_MESSAGES", 200),
		TranscriptWorkers:     getEnvAsIntOrDefault("TRANSCRIPT_WORKERS", 2),
		LogLevel:              getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:             getEnvOrDefault("LOG_FORMAT", "text"),
		LogDir:                getEnvOrDefault("LOG_DIR", ""),
		LogMaxSizeMB:          getEnvAsIntOrDefault("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups:         getEnvAsIntOrDefault("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays:         getEnvAsIntOrDefault("LOG_MAX_AGE_DAYS", 14),
		FrontendURL:           getEnvOrDefault("FRONTEND_URL", "http://localhost:3000"),
	}

	// Production must name its backend explicitly instead of falling back to localhost.
	if cfg.IsProduction() && os.Getenv("BACKEND_URL") == "" {
		cfg.BackendURL = strings.TrimRight(mustGetEnv("NEXT_PUBLIC_BACKEND_URL"), "/")
	}

	return cfg
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.BackendURL, "http://") && !strings.HasPrefix(c.BackendURL, "https://") {
		return fmt.Errorf("BACKEND_URL must be an http(s) URL, got %q", c.BackendURL)
	}
	if !strings.HasPrefix(c.BackendChatPath, "/") {
		return fmt.Errorf("BACKEND_CHAT_PATH must start with '/', got %q", c.BackendChatPath)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive")
	}
	if c.TranscriptWorkers <= 0 {
		return fmt.Errorf("TRANSCRIPT_WORKERS must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// backendURL prefers BACKEND_URL and falls back to the variable the
// Next.js frontend used, so existing deployments keep working.
func backendURL() string {
	if v := os.Getenv("BACKEND_URL"); v != "" {
		return strings.TrimRight(v, "/")
	}
	return strings.TrimRight(getEnvOrDefault("NEXT_PUBLIC_BACKEND_URL", DefaultBackendURL), "/")
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

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}
