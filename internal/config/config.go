// Package config reads the server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Live transport implementations
const (
	TransportWebSocket = "websocket"
	TransportGenAI     = "genai"
)

// Frame source implementations
const (
	FrameSourceFFmpeg = "ffmpeg"
	FrameSourceStatic = "static"
	FrameSourceNone   = "none"
)

const (
	defaultPort        = "8080"
	defaultIdleTimeout = 10 * time.Minute
	defaultLiveModel   = "gemini-2.0-flash-live-001"
	defaultLiveVoice   = "Puck"
)

// Config is the full server configuration
type Config struct {
	Port string

	GeminiAPIKey string

	LiveTransport string
	LiveURL       string
	LiveModel     string
	LiveVoice     string

	AskModel       string
	AskMaxAttempts int

	TiersFile string

	SessionIdleTimeout time.Duration

	JWTSecret       string
	APISharedSecret string

	FrameSource string
	FFmpegPath  string
}

// Load reads .env when present and builds the config from the environment
func Load() (Config, error) {
	// A missing .env is fine, the process environment still applies.
	_ = godotenv.Load()

	config := NewConfigFromEnv()
	if err := ValidateConfig(config); err != nil {
		return Config{}, err
	}
	return config, nil
}

// NewConfigFromEnv creates a Config from environment variables
func NewConfigFromEnv() Config {
	config := Config{
		Port:               getEnv("PORT", defaultPort),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		LiveTransport:      getEnv("LIVE_TRANSPORT", TransportWebSocket),
		LiveURL:            os.Getenv("LIVE_URL"),
		LiveModel:          getEnv("LIVE_MODEL", defaultLiveModel),
		LiveVoice:          getEnv("LIVE_VOICE", defaultLiveVoice),
		AskModel:           os.Getenv("ASK_MODEL"),
		TiersFile:          os.Getenv("TIERS_FILE"),
		SessionIdleTimeout: defaultIdleTimeout,
		JWTSecret:          os.Getenv("JWT_SECRET"),
		APISharedSecret:    os.Getenv("API_SHARED_SECRET"),
		FrameSource:        getEnv("FRAME_SOURCE", FrameSourceFFmpeg),
		FFmpegPath:         os.Getenv("FFMPEG_PATH"),
	}

	if timeoutStr := os.Getenv("SESSION_IDLE_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil && timeout >= 0 {
			config.SessionIdleTimeout = timeout
		}
	}

	if attemptsStr := os.Getenv("ASK_MAX_ATTEMPTS"); attemptsStr != "" {
		if attempts, err := strconv.Atoi(attemptsStr); err == nil && attempts > 0 {
			config.AskMaxAttempts = attempts
		}
	}

	return config
}

// ValidateConfig validates the server configuration
func ValidateConfig(config Config) error {
	if config.Port == "" {
		return fmt.Errorf("port is required")
	}

	switch config.LiveTransport {
	case TransportWebSocket, TransportGenAI:
	default:
		return fmt.Errorf("unknown live transport %q, expected %s or %s", config.LiveTransport, TransportWebSocket, TransportGenAI)
	}

	switch config.FrameSource {
	case FrameSourceFFmpeg, FrameSourceStatic, FrameSourceNone:
	default:
		return fmt.Errorf("unknown frame source %q", config.FrameSource)
	}

	if config.GeminiAPIKey == "" && (config.LiveTransport == TransportGenAI || config.LiveURL == "") {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required unless LIVE_URL points at a websocket endpoint")
	}

	if config.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if config.APISharedSecret == "" {
		return fmt.Errorf("API_SHARED_SECRET environment variable is required")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
