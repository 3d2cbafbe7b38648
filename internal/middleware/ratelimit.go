// Package middleware provides HTTP middleware for the triage API.
package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"iris-triage/internal/config"
)

// RateLimiter tracks request counts per client IP over a fixed window.
// Stale IP entries are reaped by a background goroutine.
type RateLimiter struct {
	cfg         config.RateLimitConfig
	exemptPaths map[string]bool
	logger      *slog.Logger

	mu      sync.RWMutex
	clients map[string]*ipWindow

	stop chan struct{}
}

// ipWindow is one client IP's budget for the current window.
type ipWindow struct {
	mu    sync.Mutex
	count int64
	reset time.Time
}

// NewRateLimiter builds a limiter and starts its reaper goroutine. Call
// Stop when the limiter is no longer needed.
func NewRateLimiter(cfg config.RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	exempt := make(map[string]bool, len(cfg.ExemptPaths))
	for _, path := range cfg.ExemptPaths {
		exempt[path] = true
	}

	rl := &RateLimiter{
		cfg:         cfg,
		exemptPaths: exempt,
		logger:      logger,
		clients:     make(map[string]*ipWindow),
		stop:        make(chan struct{}),
	}

	go rl.reapLoop()

	return rl
}

// Allow spends one request from ip's budget. It reports whether the
// request may proceed, how much budget remains, and when the window
// resets.
func (rl *RateLimiter) Allow(ip string) (bool, int, time.Time) {
	now := time.Now()

	rl.mu.Lock()
	win, ok := rl.clients[ip]
	if !ok {
		win = &ipWindow{reset: now.Add(rl.cfg.WindowSize)}
		rl.clients[ip] = win
	}
	rl.mu.Unlock()

	win.mu.Lock()
	defer win.mu.Unlock()

	if now.After(win.reset) {
		win.count = 0
		win.reset = now.Add(rl.cfg.WindowSize)
	}

	limit := int64(rl.cfg.RequestsPerIP + rl.cfg.BurstSize)
	if win.count >= limit {
		return false, 0, win.reset
	}

	win.count++
	remaining := max(limit-win.count, 0)
	return true, int(remaining), win.reset
}

// IsExempt reports whether a path bypasses rate limiting.
func (rl *RateLimiter) IsExempt(path string) bool {
	return rl.exemptPaths[path]
}

// Stop ends the reaper goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.stop)
}

func (rl *RateLimiter) reapLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.reap()
		case <-rl.stop:
			return
		}
	}
}

// reap drops IPs whose window expired more than one window ago, so an
// IP that just reset is never removed out from under a request.
func (rl *RateLimiter) reap() {
	cutoff := time.Now().Add(-2 * rl.cfg.WindowSize)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	reaped := 0
	for ip, win := range rl.clients {
		win.mu.Lock()
		expired := win.reset.Before(cutoff)
		win.mu.Unlock()
		if expired {
			delete(rl.clients, ip)
			reaped++
		}
	}

	if reaped > 0 {
		rl.logger.Debug("rate limiter reaped stale clients",
			"reaped", reaped, "tracked", len(rl.clients))
	}
}

// RateLimitMiddleware enforces the per-IP request budget. Every response
// carries the X-RateLimit headers; a spent budget gets 429 with
// Retry-After.
func RateLimitMiddleware(cfg config.RateLimitConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(cfg, logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || limiter.IsExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ip := getClientIP(r, cfg.TrustProxy)
			allowed, remaining, reset := limiter.Allow(ip)

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.RequestsPerIP+cfg.BurstSize))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", reset.Unix()))

			if !allowed {
				limiter.logger.Warn("rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path,
					"method", r.Method,
				)

				retryAfter := int(time.Until(reset).Seconds()) + 1
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"code":"RATE_LIMITED","message":"Too many requests. Please try again later.","retry_after":%d}`, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP resolves the client address for rate limiting. With
// trustProxy set, the rightmost X-Forwarded-For entry wins: it was
// appended by the proxy in front of us and cannot be spoofed by the
// client.
func getClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			for i := len(parts) - 1; i >= 0; i-- {
				if ip := strings.TrimSpace(parts[i]); ip != "" {
					return ip
				}
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
