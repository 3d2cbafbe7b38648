package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"iris-triage/internal/schema"
	"iris-triage/internal/score"
	"iris-triage/internal/storage/s3"
	"iris-triage/internal/timeline"
)

// TimelineRequest is the body of POST /api/v1/timeline: the case data to
// assemble into an investigation timeline.
type TimelineRequest struct {
	Artifacts []schema.Artifact `json:"artifacts,omitempty"`
	Evidence  []schema.Evidence `json:"evidence,omitempty"`
	Findings  []schema.Finding  `json:"findings,omitempty"`
}

// handleTimeline responds to POST /api/v1/timeline with the merged,
// ordered event sequence for the posted case data.
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	var req TimelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validateCaseData(req.Artifacts, req.Evidence, req.Findings); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events := timeline.Assemble(req.Artifacts, req.Evidence, req.Findings)
	writeJSON(w, http.StatusOK, events)
}

// ReportRequest is the body of POST /api/v1/reports.
type ReportRequest struct {
	CaseID    string            `json:"case_id"`
	ScanID    uuid.UUID         `json:"scan_id,omitempty"`
	Artifacts []schema.Artifact `json:"artifacts,omitempty"`
	Evidence  []schema.Evidence `json:"evidence,omitempty"`
	Findings  []schema.Finding  `json:"findings,omitempty"`

	// Archive requests that the report also be written to the archive
	// bucket.
	Archive bool `json:"archive,omitempty"`
}

// ReportResponse carries the assembled case report and, when archival was
// requested, where it landed.
type ReportResponse struct {
	Report      *s3.CaseReport `json:"report"`
	ArchivedKey string         `json:"archived_key,omitempty"`
}

// handleReport responds to POST /api/v1/reports: score, band, and
// timeline for the posted case data, assembled for the external
// renderer.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CaseID == "" {
		writeError(w, http.StatusBadRequest, "'case_id' is required")
		return
	}
	if req.Archive && s.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "report archive not configured")
		return
	}
	if err := s.validateCaseData(req.Artifacts, req.Evidence, req.Findings); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := score.Compute(req.Findings)
	report := &s3.CaseReport{
		ReportID:    uuid.New(),
		CaseID:      req.CaseID,
		ScanID:      req.ScanID,
		Score:       result.Score,
		Band:        string(result.Band),
		Findings:    req.Findings,
		Timeline:    timeline.Assemble(req.Artifacts, req.Evidence, req.Findings),
		GeneratedAt: time.Now(),
	}

	resp := ReportResponse{Report: report}

	if req.Archive {
		archived, err := s.archiver.Archive(r.Context(), report)
		if err != nil {
			s.logger.Error("report archival failed", "case_id", req.CaseID, "error", err)
			writeError(w, http.StatusBadGateway, "failed to archive report")
			return
		}
		resp.ArchivedKey = archived.Key
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleListArchivedReports responds to GET
// /api/v1/reports/{caseID}/archived with the archive keys stored for the
// case, ready to hand to the fetch endpoint.
func (s *Server) handleListArchivedReports(w http.ResponseWriter, r *http.Request) {
	if s.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "report archive not configured")
		return
	}

	caseID := chi.URLParam(r, "caseID")
	keys, err := s.archiver.ListReports(r.Context(), caseID)
	if err != nil {
		s.logger.Error("archived report listing failed", "case_id", caseID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to list archived reports")
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"keys": keys})
}

// handleFetchArchivedReport responds to GET /api/v1/reports/archived.
// The report key carries slashes, so it travels in the 'key' query
// parameter rather than the path.
func (s *Server) handleFetchArchivedReport(w http.ResponseWriter, r *http.Request) {
	if s.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "report archive not configured")
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "'key' query parameter is required")
		return
	}

	report, err := s.archiver.Fetch(r.Context(), key)
	if err != nil {
		s.logger.Error("archived report fetch failed", "key", key, "error", err)
		writeError(w, http.StatusBadGateway, "failed to fetch archived report")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// validateCaseData checks client-posted case records against the schema
// before they feed score, timeline, or report assembly.
func (s *Server) validateCaseData(artifacts []schema.Artifact, evidence []schema.Evidence, findings []schema.Finding) error {
	for i := range artifacts {
		if err := s.validator.ValidateArtifact(&artifacts[i]); err != nil {
			return err
		}
	}
	for i := range evidence {
		if err := s.validator.ValidateEvidence(&evidence[i]); err != nil {
			return err
		}
	}
	for i := range findings {
		if err := s.validator.ValidateFinding(&findings[i]); err != nil {
			return err
		}
	}
	return nil
}

// handleCustodyHistory responds to GET /api/v1/custody/{artifact_id}
// with the artifact's chain-of-custody records in chain order.
func (s *Server) handleCustodyHistory(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "custody ledger not configured")
		return
	}

	artifactID, err := uuid.Parse(chi.URLParam(r, "artifactID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "'artifact_id' must be a UUID")
		return
	}

	records, err := s.ledger.History(r.Context(), artifactID)
	if err != nil {
		s.logger.Error("custody history query failed", "artifact_id", artifactID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read custody history")
		return
	}

	writeJSON(w, http.StatusOK, records)
}

// handleCustodyVerify responds to GET /api/v1/custody/verify by walking
// the full hash chain.
func (s *Server) handleCustodyVerify(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "custody ledger not configured")
		return
	}

	brokenSeq, err := s.ledger.Verify(r.Context())
	if err != nil {
		s.logger.Error("custody verification failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to verify custody chain")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"intact":     brokenSeq == 0,
		"broken_seq": brokenSeq,
	})
}

// handleHealthz responds to GET /healthz. No authentication required.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
