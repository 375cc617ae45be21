package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	allowedOrigins := []string{"http://localhost:3000", "http://dashboard.example.com"}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	corsHandler := CORS(allowedOrigins)(handler)

	tests := []struct {
		name           string
		origin         string
		method         string
		expectedOrigin string
	}{
		{
			name:           "dashboard origin",
			origin:         "http://localhost:3000",
			method:         http.MethodGet,
			expectedOrigin: "http://localhost:3000",
		},
		{
			name:           "second allowed origin",
			origin:         "http://dashboard.example.com",
			method:         http.MethodPost,
			expectedOrigin: "http://dashboard.example.com",
		},
		{
			name:   "disallowed origin",
			origin: "http://evil.com",
			method: http.MethodGet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/live", nil)
			req.Header.Set("Origin", tt.origin)

			rec := httptest.NewRecorder()
			corsHandler.ServeHTTP(rec, req)

			acao := rec.Header().Get("Access-Control-Allow-Origin")
			if acao != tt.expectedOrigin {
				t.Errorf("expected Access-Control-Allow-Origin %q, got %q", tt.expectedOrigin, acao)
			}
		})
	}
}

func TestCORSPreflightPatch(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight should not reach the handler")
	})
	corsHandler := CORS([]string{"http://localhost:3000"})(handler)

	req := httptest.NewRequest(http.MethodOptions, "/api/suggestions/abc", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec := httptest.NewRecorder()

	corsHandler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("expected allowed origin on preflight, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != http.MethodPatch {
		t.Errorf("expected PATCH to be allowed, got %q", got)
	}
}
