package config

import (
	"testing"
	"time"
)

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LIVE_TRANSPORT", "genai")
	t.Setenv("SESSION_IDLE_TIMEOUT", "90s")
	t.Setenv("ASK_MAX_ATTEMPTS", "5")
	t.Setenv("FRAME_SOURCE", "")
	t.Setenv("LIVE_MODEL", "")

	config := NewConfigFromEnv()

	if config.Port != defaultPort {
		t.Errorf("Expected default port, got %q", config.Port)
	}
	if config.LiveTransport != TransportGenAI {
		t.Errorf("Expected genai transport, got %q", config.LiveTransport)
	}
	if config.SessionIdleTimeout != 90*time.Second {
		t.Errorf("Expected 90s idle timeout, got %v", config.SessionIdleTimeout)
	}
	if config.AskMaxAttempts != 5 {
		t.Errorf("Expected 5 attempts, got %d", config.AskMaxAttempts)
	}
	if config.FrameSource != FrameSourceFFmpeg {
		t.Errorf("Expected ffmpeg frame source, got %q", config.FrameSource)
	}
	if config.LiveModel != defaultLiveModel {
		t.Errorf("Expected default live model, got %q", config.LiveModel)
	}
}

func TestNewConfigFromEnvIgnoresBadValues(t *testing.T) {
	t.Setenv("SESSION_IDLE_TIMEOUT", "soon")
	t.Setenv("ASK_MAX_ATTEMPTS", "-2")

	config := NewConfigFromEnv()

	if config.SessionIdleTimeout != defaultIdleTimeout {
		t.Errorf("Expected default idle timeout, got %v", config.SessionIdleTimeout)
	}
	if config.AskMaxAttempts != 0 {
		t.Errorf("Expected attempts left unset, got %d", config.AskMaxAttempts)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := Config{
		Port:            "8080",
		GeminiAPIKey:    "key",
		LiveTransport:   TransportWebSocket,
		FrameSource:     FrameSourceNone,
		JWTSecret:       "jwt",
		APISharedSecret: "shared",
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing port", func(c *Config) { c.Port = "" }, true},
		{"unknown transport", func(c *Config) { c.LiveTransport = "grpc" }, true},
		{"unknown frame source", func(c *Config) { c.FrameSource = "camera" }, true},
		{"keyless custom endpoint", func(c *Config) { c.GeminiAPIKey = ""; c.LiveURL = "ws://localhost:9000" }, false},
		{"keyless default endpoint", func(c *Config) { c.GeminiAPIKey = "" }, true},
		{"keyless genai transport", func(c *Config) { c.GeminiAPIKey = ""; c.LiveTransport = TransportGenAI; c.LiveURL = "ws://x" }, true},
		{"missing jwt secret", func(c *Config) { c.JWTSecret = "" }, true},
		{"missing shared secret", func(c *Config) { c.APISharedSecret = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			if err := ValidateConfig(config); (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
