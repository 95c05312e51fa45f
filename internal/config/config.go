package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process configuration, loaded from the environment.
type Config struct {
	HTTPAddr    string
	DatabaseURL string
	JWTSecret   string

	// SessionDir is the root directory for per-clinic WhatsApp credentials.
	SessionDir string

	// GeminiAPIKey is the fallback key used when a clinic has no key of its own.
	GeminiAPIKey string
	// GeminiModels is the ordered fallback chain for reply generation.
	GeminiModels []string

	LLMTimeout  time.Duration
	SendTimeout time.Duration
}

// Load reads configuration from the environment. A .env file is honored when
// present but its absence is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		SessionDir:   getEnv("WA_SESSION_DIR", "data/sessions"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModels: splitList(getEnv("GEMINI_MODELS", "gemini-2.0-flash,gemini-1.5-flash,gemini-1.5-flash-8b")),
		LLMTimeout:   getDuration("LLM_TIMEOUT_SECONDS", 60),
		SendTimeout:  getDuration("SEND_TIMEOUT_SECONDS", 30),
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallbackSeconds int) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return time.Duration(fallbackSeconds) * time.Second
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return time.Duration(fallbackSeconds) * time.Second
	}
	return time.Duration(seconds) * time.Second
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
