package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"iris-triage/internal/config"
	"iris-triage/internal/logging"
)

// APIKeyMiddleware enforces static API-key authentication on all requests
// except the configured exempt paths. Keys are compared in constant time.
func APIKeyMiddleware(cfg config.AuthConfig, exemptPaths []string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	exempt := make(map[string]bool, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = true
	}

	header := cfg.APIKeyHeader
	if header == "" {
		header = "X-API-Key"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || exempt[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			presented := r.Header.Get(header)
			if presented != "" {
				for _, key := range cfg.APIKeys {
					if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) == 1 {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			logger.Warn("rejected unauthenticated request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"key", logging.MaskAPIKey(presented),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
		})
	}
}
