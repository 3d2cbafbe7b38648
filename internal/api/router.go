package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"iris-triage/internal/config"
	"iris-triage/internal/middleware"
)

// NewRouter wires the triage handlers behind the shared middleware stack.
// The health endpoint stays outside authentication so load balancer
// checks work without credentials.
func NewRouter(s *Server, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeadersMiddleware(middleware.DefaultSecurityHeadersConfig(), s.logger))
	r.Use(middleware.CORSMiddleware(cfg.CORS, s.logger))
	r.Use(middleware.RateLimitMiddleware(cfg.RateLimit, s.logger))
	r.Use(middleware.APIKeyMiddleware(cfg.Auth, []string{"/healthz"}, s.logger))

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/rules", s.handleListRules)
		r.Get("/rules/{name}", s.handleGetRule)
		r.Put("/rules/{name}", s.handleUpsertRule)
		r.Delete("/rules/{name}", s.handleDeleteRule)
		r.Post("/rules/reload", s.handleReloadRules)

		r.Group(func(r chi.Router) {
			if cfg.Scanner.ScanTimeout > 0 {
				r.Use(chimw.Timeout(cfg.Scanner.ScanTimeout))
			}
			r.Post("/scan", s.handleScan)
			r.Post("/scan/batch", s.handleScanBatch)
		})

		r.Get("/findings/scan/{scanID}", s.handleFindingsByScan)
		r.Get("/findings/artifact/{artifactID}", s.handleFindingsByArtifact)
		r.Get("/assessments/{artifactID}", s.handleLatestAssessment)

		r.Post("/timeline", s.handleTimeline)
		r.Post("/reports", s.handleReport)
		r.Get("/reports/archived", s.handleFetchArchivedReport)
		r.Get("/reports/{caseID}/archived", s.handleListArchivedReports)

		r.Get("/quarantine", s.handleQuarantineStatus)
		r.Post("/quarantine/rescan", s.handleQuarantineRescan)

		r.Get("/custody/verify", s.handleCustodyVerify)
		r.Get("/custody/{artifactID}", s.handleCustodyHistory)
	})

	return r
}
