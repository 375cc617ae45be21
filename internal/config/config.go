package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	// WebSocket
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	// Transcription (Groq, OpenAI-compatible)
	GroqAPIKey         string
	GroqBaseURL        string
	TranscriptionModel string

	// LLM (Gemini through its OpenAI-compatible endpoint)
	GeminiAPIKey string
	LLMBaseURL   string
	LLMModel     string

	// Audio emotion batch jobs (Hume)
	HumeAPIKey       string
	HumeBaseURL      string
	HumePollAttempts int
	HumePollInterval time.Duration

	// Pipeline
	MinChunkBytes  int
	MaxUploadBytes int64
	VendorTimeout  time.Duration
	SessionTTL     time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:               getEnv("PORT", "8080"),
		AllowedOrigins:     strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:3000"), ","),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		GroqAPIKey:         os.Getenv("GROQ_API_KEY"),
		GroqBaseURL:        getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		TranscriptionModel: getEnv("TRANSCRIPTION_MODEL", "whisper-large-v3"),
		GeminiAPIKey:       os.Getenv("GOOGLE_GEMINI_API_KEY"),
		LLMBaseURL:         getEnv("LLM_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/"),
		LLMModel:           getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		HumeAPIKey:         os.Getenv("HUME_AI_API_KEY"),
		HumeBaseURL:        getEnv("HUME_BASE_URL", "https://api.hume.ai/v0/batch/jobs"),
	}

	var err error

	// Parse WebSocket timeouts
	if config.WSReadTimeout, err = getSeconds("WS_READ_TIMEOUT", "60"); err != nil {
		return nil, err
	}
	if config.WSWriteTimeout, err = getSeconds("WS_WRITE_TIMEOUT", "10"); err != nil {
		return nil, err
	}

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 512

	if config.HumePollAttempts, err = getInt("HUME_POLL_ATTEMPTS", "30"); err != nil {
		return nil, err
	}
	pollMs, err := getInt("HUME_POLL_INTERVAL_MS", "1000")
	if err != nil {
		return nil, err
	}
	config.HumePollInterval = time.Duration(pollMs) * time.Millisecond

	if config.MinChunkBytes, err = getInt("MIN_CHUNK_BYTES", "1000"); err != nil {
		return nil, err
	}
	uploadMB, err := getInt("MAX_UPLOAD_MB", "25")
	if err != nil {
		return nil, err
	}
	config.MaxUploadBytes = int64(uploadMB) << 20

	if config.VendorTimeout, err = getSeconds("VENDOR_TIMEOUT", "30"); err != nil {
		return nil, err
	}
	if config.SessionTTL, err = getSeconds("SESSION_TTL", "300"); err != nil {
		return nil, err
	}

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key, defaultValue string) (int, error) {
	n, err := strconv.Atoi(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getSeconds(key, defaultValue string) (time.Duration, error) {
	n, err := getInt(key, defaultValue)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}
