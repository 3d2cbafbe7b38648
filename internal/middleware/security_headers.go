package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
)

// SecurityHeadersConfig holds security headers configuration for the JSON API.
type SecurityHeadersConfig struct {
	// Enabled indicates if security headers are enabled.
	Enabled bool

	// HSTS (HTTP Strict Transport Security)
	HSTSEnabled           bool
	HSTSMaxAge            int // Max age in seconds
	HSTSIncludeSubdomains bool

	// ContentSecurityPolicy is served as-is. The API returns no markup,
	// so the default locks everything down.
	ContentSecurityPolicy string

	// FrameOptionsValue is DENY, SAMEORIGIN, or empty to omit the header.
	FrameOptionsValue string

	// ContentTypeOptionsEnabled adds X-Content-Type-Options: nosniff.
	ContentTypeOptionsEnabled bool

	// ReferrerPolicyValue controls the Referrer-Policy header; empty omits it.
	ReferrerPolicyValue string

	// CrossOriginResourcePolicyValue controls Cross-Origin-Resource-Policy.
	CrossOriginResourcePolicyValue string

	// CustomHeaders are additional headers set on every response.
	CustomHeaders map[string]string
}

// DefaultSecurityHeadersConfig returns production-ready security headers.
func DefaultSecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		Enabled:                        true,
		HSTSEnabled:                    true,
		HSTSMaxAge:                     31536000, // 1 year
		HSTSIncludeSubdomains:          true,
		ContentSecurityPolicy:          "default-src 'none'; frame-ancestors 'none'",
		FrameOptionsValue:              "DENY",
		ContentTypeOptionsEnabled:      true,
		ReferrerPolicyValue:            "strict-origin-when-cross-origin",
		CrossOriginResourcePolicyValue: "same-origin",
		CustomHeaders:                  make(map[string]string),
	}
}

// SecurityHeadersMiddleware returns a middleware that sets security headers.
func SecurityHeadersMiddleware(cfg SecurityHeadersConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	if !cfg.Enabled {
		logger.Info("security headers middleware disabled")
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	logger.Info("security headers middleware initialized",
		"hsts_enabled", cfg.HSTSEnabled,
		"frame_options", cfg.FrameOptionsValue)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.HSTSEnabled {
				hsts := fmt.Sprintf("max-age=%d", cfg.HSTSMaxAge)
				if cfg.HSTSIncludeSubdomains {
					hsts += "; includeSubDomains"
				}
				w.Header().Set("Strict-Transport-Security", hsts)
			}

			if cfg.ContentSecurityPolicy != "" {
				w.Header().Set("Content-Security-Policy", cfg.ContentSecurityPolicy)
			}

			if cfg.FrameOptionsValue != "" {
				w.Header().Set("X-Frame-Options", cfg.FrameOptionsValue)
			}

			if cfg.ContentTypeOptionsEnabled {
				w.Header().Set("X-Content-Type-Options", "nosniff")
			}

			if cfg.ReferrerPolicyValue != "" {
				w.Header().Set("Referrer-Policy", cfg.ReferrerPolicyValue)
			}

			if cfg.CrossOriginResourcePolicyValue != "" {
				w.Header().Set("Cross-Origin-Resource-Policy", cfg.CrossOriginResourcePolicyValue)
			}

			for key, value := range cfg.CustomHeaders {
				w.Header().Set(key, value)
			}

			next.ServeHTTP(w, r)
		})
	}
}
