package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"iris-triage/internal/config"
)

func testRateLimitConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:       true,
		RequestsPerIP: 5,
		WindowSize:    time.Minute,
		BurstSize:     0,
		CleanupPeriod: time.Minute,
		ExemptPaths:   []string{"/healthz"},
		TrustProxy:    false,
	}
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(testRateLimitConfig(), nil)
	defer rl.Stop()

	for i := 0; i < 5; i++ {
		allowed, _, _ := rl.Allow("10.0.0.1")
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	allowed, remaining, _ := rl.Allow("10.0.0.1")
	if allowed {
		t.Error("6th request should be rejected")
	}
	if remaining != 0 {
		t.Errorf("expected 0 remaining, got %d", remaining)
	}

	// A different IP has its own budget.
	if allowed, _, _ := rl.Allow("10.0.0.2"); !allowed {
		t.Error("different IP should be allowed")
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	cfg := testRateLimitConfig()
	cfg.WindowSize = 50 * time.Millisecond
	rl := NewRateLimiter(cfg, nil)
	defer rl.Stop()

	for i := 0; i < 5; i++ {
		rl.Allow("10.0.0.1")
	}
	if allowed, _, _ := rl.Allow("10.0.0.1"); allowed {
		t.Fatal("expected limit hit")
	}

	time.Sleep(60 * time.Millisecond)

	if allowed, _, _ := rl.Allow("10.0.0.1"); !allowed {
		t.Error("expected allowance after window reset")
	}
}

func TestRateLimiterIsExempt(t *testing.T) {
	rl := NewRateLimiter(testRateLimitConfig(), nil)
	defer rl.Stop()

	if !rl.IsExempt("/healthz") {
		t.Error("expected /healthz exempt")
	}
	if rl.IsExempt("/api/v1/rules") {
		t.Error("expected /api/v1/rules not exempt")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := testRateLimitConfig()
	cfg.RequestsPerIP = 2

	handler := RateLimitMiddleware(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") == "" {
			t.Error("expected rate limit headers")
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429")
	}
}

func TestRateLimitMiddlewareExemptPath(t *testing.T) {
	cfg := testRateLimitConfig()
	cfg.RequestsPerIP = 1

	handler := RateLimitMiddleware(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("exempt request %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimitMiddlewareDisabled(t *testing.T) {
	cfg := testRateLimitConfig()
	cfg.Enabled = false
	cfg.RequestsPerIP = 1

	handler := RateLimitMiddleware(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 with limiter disabled, got %d", rec.Code)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		trustProxy bool
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "10.0.0.1:5000",
			want:       "10.0.0.1",
		},
		{
			name:       "xff ignored without trust",
			remoteAddr: "10.0.0.1:5000",
			xff:        "1.2.3.4",
			want:       "10.0.0.1",
		},
		{
			name:       "rightmost xff with trust",
			remoteAddr: "10.0.0.1:5000",
			xff:        "1.2.3.4, 5.6.7.8",
			trustProxy: true,
			want:       "5.6.7.8",
		},
		{
			name:       "x-real-ip with trust",
			remoteAddr: "10.0.0.1:5000",
			xri:        "9.9.9.9",
			trustProxy: true,
			want:       "9.9.9.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}

			if got := getClientIP(req, tt.trustProxy); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
