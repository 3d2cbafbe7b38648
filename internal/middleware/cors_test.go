package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"iris-triage/internal/config"
)

func testCORSConfig() config.CORSConfig {
	return config.CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"https://console.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "X-API-Key"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         600,
	}
}

func runCORS(cfg config.CORSConfig, method, origin string) *httptest.ResponseRecorder {
	handler := CORSMiddleware(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(method, "/api/v1/rules", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCORSAllowedOrigin(t *testing.T) {
	rec := runCORS(testCORSConfig(), http.MethodGet, "https://console.example.com")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://console.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-ID" {
		t.Errorf("Expose-Headers = %q", got)
	}
}

func TestCORSDisallowedOrigin(t *testing.T) {
	rec := runCORS(testCORSConfig(), http.MethodGet, "https://evil.example.com")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected request to pass through, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("expected no CORS headers for disallowed origin")
	}
}

func TestCORSWildcard(t *testing.T) {
	cfg := testCORSConfig()
	cfg.AllowedOrigins = []string{"*"}
	cfg.AllowCredentials = true

	rec := runCORS(cfg, http.MethodGet, "https://anything.example.com")

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	// Credentials must not be combined with a wildcard origin.
	if rec.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("expected no credentials header with wildcard origin")
	}
}

func TestCORSPreflight(t *testing.T) {
	rec := runCORS(testCORSConfig(), http.MethodOptions, "https://console.example.com")

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST" {
		t.Errorf("Allow-Methods = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Errorf("Max-Age = %q", got)
	}
}

func TestCORSNoOrigin(t *testing.T) {
	rec := runCORS(testCORSConfig(), http.MethodGet, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("expected no CORS headers without Origin")
	}
}

func TestCORSDisabled(t *testing.T) {
	cfg := testCORSConfig()
	cfg.Enabled = false

	rec := runCORS(cfg, http.MethodGet, "https://console.example.com")

	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("expected no CORS headers when disabled")
	}
}
