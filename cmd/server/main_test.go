package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/callmonitor/internal/api"
	"github.com/dennisdiepolder/monti/callmonitor/internal/cache"
	"github.com/dennisdiepolder/monti/callmonitor/internal/config"
	"github.com/dennisdiepolder/monti/callmonitor/internal/storage"
	"github.com/dennisdiepolder/monti/callmonitor/internal/websocket"
	"github.com/rs/zerolog"
)

func TestHealthHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	healthHandler(rec, req)

	// Check status code
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	// Check content type
	contentType := rec.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", contentType)
	}

	// Parse response body
	var response map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	// Check response fields
	if response["status"] != "ok" {
		t.Errorf("expected status ok, got %s", response["status"])
	}
	if response["service"] != "callmonitor" {
		t.Errorf("expected service callmonitor, got %s", response["service"])
	}
}

func TestHealthHandlerMethods(t *testing.T) {
	tests := []struct {
		method         string
		expectedStatus int
	}{
		{http.MethodGet, http.StatusOK},
		{http.MethodPost, http.StatusOK},    // Handler doesn't check method
		{http.MethodPut, http.StatusOK},     // Handler doesn't check method
		{http.MethodDelete, http.StatusOK},  // Handler doesn't check method
		{http.MethodOptions, http.StatusOK}, // Handler doesn't check method
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			rec := httptest.NewRecorder()

			healthHandler(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
		})
	}
}

func TestRouter(t *testing.T) {
	cfg := &config.Config{
		AllowedOrigins:   []string{"http://localhost:3000"},
		HumePollAttempts: 1,
		HumePollInterval: time.Millisecond,
		MinChunkBytes:    1000,
		MaxUploadBytes:   1 << 20,
		VendorTimeout:    time.Second,
		SessionTTL:       time.Minute,
		PongWait:         time.Minute,
		PingPeriod:       54 * time.Second,
		WriteWait:        10 * time.Second,
		MaxMessageSize:   512,
	}
	logger := zerolog.Nop()
	store := storage.NewMemoryStore()
	sessions := cache.NewSessionTracker()
	hub := websocket.NewHub(logger)
	coordinator := newCoordinator(cfg, store, sessions, hub)

	r := newRouter(cfg, logger,
		websocket.NewHandler(hub, cfg, logger),
		api.NewLiveHandler(coordinator, sessions, cfg.MaxUploadBytes, time.Second, logger),
		api.NewAnalyticsHandler(store, logger),
		api.NewCallsHandler(store, coordinator, logger),
	)

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
		bodyContains   string
	}{
		{"health", http.MethodGet, "/health", http.StatusOK, "callmonitor"},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK, "chunks_received_total"},
		{"calls", http.MethodGet, "/api/calls", http.StatusOK, "[]"},
		{"analytics", http.MethodGet, "/api/analytics", http.StatusOK, "totalCalls"},
		{"sessions", http.MethodGet, "/api/live/sessions", http.StatusOK, "[]"},
		{"missing call", http.MethodGet, "/api/calls/nope", http.StatusNotFound, "Not found"},
		{"live without audio", http.MethodPost, "/api/live", http.StatusBadRequest, "Missing audio or callId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()

			r.ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.bodyContains) {
				t.Errorf("expected body to contain %q, got %s", tt.bodyContains, rec.Body.String())
			}
		})
	}
}
