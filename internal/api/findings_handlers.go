package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"iris-triage/internal/schema"
	"iris-triage/internal/storage"
)

// handleFindingsByScan responds to GET /api/v1/findings/scan/{scanID}
// with the scan's stored findings ordered by rule name.
func (s *Server) handleFindingsByScan(w http.ResponseWriter, r *http.Request) {
	if s.findings == nil {
		writeError(w, http.StatusServiceUnavailable, "finding storage not configured")
		return
	}

	scanID, err := uuid.Parse(chi.URLParam(r, "scanID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "'scan_id' must be a UUID")
		return
	}

	findings, err := s.findings.ByScan(r.Context(), scanID)
	if err != nil {
		s.logger.Error("finding query failed", "scan_id", scanID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read findings")
		return
	}
	if findings == nil {
		findings = []schema.Finding{}
	}

	writeJSON(w, http.StatusOK, findings)
}

// handleFindingsByArtifact responds to GET
// /api/v1/findings/artifact/{artifactID}. An optional limit query
// parameter caps the result, newest first.
func (s *Server) handleFindingsByArtifact(w http.ResponseWriter, r *http.Request) {
	if s.findings == nil {
		writeError(w, http.StatusServiceUnavailable, "finding storage not configured")
		return
	}

	artifactID, err := uuid.Parse(chi.URLParam(r, "artifactID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "'artifact_id' must be a UUID")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "'limit' must be a non-negative integer")
			return
		}
	}

	findings, err := s.findings.ByArtifact(r.Context(), artifactID, limit)
	if err != nil {
		s.logger.Error("finding query failed", "artifact_id", artifactID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read findings")
		return
	}
	if findings == nil {
		findings = []schema.Finding{}
	}

	writeJSON(w, http.StatusOK, findings)
}

// handleLatestAssessment responds to GET
// /api/v1/assessments/{artifactID} with the artifact's most recent
// stored threat score.
func (s *Server) handleLatestAssessment(w http.ResponseWriter, r *http.Request) {
	if s.findings == nil {
		writeError(w, http.StatusServiceUnavailable, "finding storage not configured")
		return
	}

	artifactID, err := uuid.Parse(chi.URLParam(r, "artifactID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "'artifact_id' must be a UUID")
		return
	}

	assessment, err := s.findings.LatestAssessment(r.Context(), artifactID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		s.logger.Error("assessment query failed", "artifact_id", artifactID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read assessment")
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}
