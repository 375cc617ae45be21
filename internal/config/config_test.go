package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default values",
			env:  map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != "8080" {
					t.Errorf("expected port 8080, got %s", cfg.Port)
				}
				if cfg.LogLevel != "info" {
					t.Errorf("expected log level info, got %s", cfg.LogLevel)
				}
				if cfg.MinChunkBytes != 1000 {
					t.Errorf("expected MinChunkBytes 1000, got %d", cfg.MinChunkBytes)
				}
				if cfg.HumePollAttempts != 30 {
					t.Errorf("expected 30 poll attempts, got %d", cfg.HumePollAttempts)
				}
				if cfg.HumePollInterval != time.Second {
					t.Errorf("expected 1s poll interval, got %v", cfg.HumePollInterval)
				}
				if cfg.TranscriptionModel != "whisper-large-v3" {
					t.Errorf("expected whisper-large-v3, got %s", cfg.TranscriptionModel)
				}
				if cfg.LLMModel != "gemini-2.5-flash" {
					t.Errorf("expected gemini-2.5-flash, got %s", cfg.LLMModel)
				}
				if cfg.MaxUploadBytes != 25<<20 {
					t.Errorf("expected 25MiB upload limit, got %d", cfg.MaxUploadBytes)
				}
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"PORT":                  "9000",
				"LOG_LEVEL":             "debug",
				"WS_READ_TIMEOUT":       "30",
				"ALLOWED_ORIGINS":       "http://example.com, http://test.com",
				"GEMINI_MODEL":          "gemini-2.0-flash",
				"GOOGLE_GEMINI_API_KEY": "g-key",
				"HUME_POLL_INTERVAL_MS": "250",
				"MIN_CHUNK_BYTES":       "2048",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Port != "9000" {
					t.Errorf("expected port 9000, got %s", cfg.Port)
				}
				if cfg.WSReadTimeout != 30*time.Second {
					t.Errorf("expected WSReadTimeout 30s, got %v", cfg.WSReadTimeout)
				}
				if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://test.com" {
					t.Errorf("expected 2 trimmed origins, got %v", cfg.AllowedOrigins)
				}
				if cfg.LLMModel != "gemini-2.0-flash" {
					t.Errorf("expected model override, got %s", cfg.LLMModel)
				}
				if cfg.GeminiAPIKey != "g-key" {
					t.Errorf("expected api key g-key, got %s", cfg.GeminiAPIKey)
				}
				if cfg.HumePollInterval != 250*time.Millisecond {
					t.Errorf("expected 250ms poll interval, got %v", cfg.HumePollInterval)
				}
				if cfg.MinChunkBytes != 2048 {
					t.Errorf("expected MinChunkBytes 2048, got %d", cfg.MinChunkBytes)
				}
			},
		},
		{
			name:    "invalid WS_READ_TIMEOUT",
			env:     map[string]string{"WS_READ_TIMEOUT": "invalid"},
			wantErr: true,
		},
		{
			name:    "invalid HUME_POLL_ATTEMPTS",
			env:     map[string]string{"HUME_POLL_ATTEMPTS": "many"},
			wantErr: true,
		},
		{
			name:    "invalid MIN_CHUNK_BYTES",
			env:     map[string]string{"MIN_CHUNK_BYTES": "1k"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			cfg, err := Load()

			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestWebSocketConstants(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.PongWait != cfg.WSReadTimeout {
		t.Errorf("PongWait (%v) should equal WSReadTimeout (%v)", cfg.PongWait, cfg.WSReadTimeout)
	}
	if cfg.PingPeriod >= cfg.PongWait {
		t.Errorf("PingPeriod (%v) should be less than PongWait (%v)", cfg.PingPeriod, cfg.PongWait)
	}
	if cfg.WriteWait != cfg.WSWriteTimeout {
		t.Errorf("WriteWait (%v) should equal WSWriteTimeout (%v)", cfg.WriteWait, cfg.WSWriteTimeout)
	}
}
