package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"iris-triage/internal/scan"
	"iris-triage/internal/score"
)

// defaultRescanLimit bounds one rescan pass when the caller does not set
// a limit.
const defaultRescanLimit = 100

// QuarantineStatusResponse is the body of GET /api/v1/quarantine.
type QuarantineStatusResponse struct {
	Pending uint64 `json:"pending"`
}

// handleQuarantineStatus responds to GET /api/v1/quarantine with the
// number of artifacts still awaiting a rescan.
func (s *Server) handleQuarantineStatus(w http.ResponseWriter, r *http.Request) {
	if s.quarantine == nil {
		writeError(w, http.StatusServiceUnavailable, "quarantine not configured")
		return
	}

	pending, err := s.quarantine.Count(r.Context())
	if err != nil {
		s.logger.Error("quarantine count failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to count quarantine")
		return
	}

	writeJSON(w, http.StatusOK, QuarantineStatusResponse{Pending: pending})
}

// RescanRequest is the body of POST /api/v1/quarantine/rescan.
type RescanRequest struct {
	// Limit caps how many quarantined artifacts this pass retries.
	Limit int `json:"limit,omitempty"`
}

// RescanEntry is one quarantined artifact's rescan outcome.
type RescanEntry struct {
	QuarantineID uuid.UUID  `json:"quarantine_id"`
	ArtifactID   uuid.UUID  `json:"artifact_id"`
	Path         string     `json:"path"`
	Findings     int        `json:"findings"`
	Score        int        `json:"score"`
	Band         score.Band `json:"band,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// RescanResponse summarizes a rescan pass.
type RescanResponse struct {
	ScanID    uuid.UUID     `json:"scan_id"`
	Attempted int           `json:"attempted"`
	Rescanned int           `json:"rescanned"`
	Failed    int           `json:"failed"`
	Results   []RescanEntry `json:"results"`
}

// handleQuarantineRescan responds to POST /api/v1/quarantine/rescan by
// retrying quarantined artifacts against the current rule catalog.
// Artifacts that now scan cleanly are dispatched like any other scan and
// marked rescanned; artifacts that fail again have their attempt counter
// bumped and drop out of the pending set once it is exhausted.
func (s *Server) handleQuarantineRescan(w http.ResponseWriter, r *http.Request) {
	if s.quarantine == nil {
		writeError(w, http.StatusServiceUnavailable, "quarantine not configured")
		return
	}

	req := RescanRequest{Limit: defaultRescanLimit}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Limit <= 0 {
		req.Limit = defaultRescanLimit
	}

	pending, err := s.quarantine.GetPendingRescan(r.Context(), req.Limit)
	if err != nil {
		s.logger.Error("quarantine fetch failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read quarantine")
		return
	}

	scanID := uuid.New()
	catalog := s.rules.Snapshot()
	resp := RescanResponse{ScanID: scanID, Attempted: len(pending)}

	for _, q := range pending {
		artifact := artifactForPath(q.ArtifactPath, q.CaseID)
		artifact.ID = q.ArtifactID

		entry := RescanEntry{
			QuarantineID: q.QuarantineID,
			ArtifactID:   q.ArtifactID,
			Path:         q.ArtifactPath,
		}

		matched, err := s.engine.Scan(r.Context(), artifact, catalog)
		if err != nil {
			entry.Error = err.Error()
			resp.Failed++
			if aerr := s.quarantine.IncrementAttempt(r.Context(), q.QuarantineID); aerr != nil {
				s.logger.Error("quarantine attempt update failed",
					"quarantine_id", q.QuarantineID, "error", aerr)
			}
			resp.Results = append(resp.Results, entry)
			continue
		}

		findings := scan.Findings(scanID, artifact, matched, time.Now())
		result := score.Compute(findings)
		s.dispatch(r.Context(), scanID, artifact, findings, result)

		if merr := s.quarantine.MarkRescanned(r.Context(), q.QuarantineID, scanID); merr != nil {
			s.logger.Error("quarantine rescan mark failed",
				"quarantine_id", q.QuarantineID, "error", merr)
		}

		entry.Findings = len(findings)
		entry.Score = result.Score
		entry.Band = result.Band
		resp.Rescanned++
		resp.Results = append(resp.Results, entry)
	}

	s.logger.Info("quarantine rescan pass complete",
		"scan_id", scanID,
		"attempted", resp.Attempted,
		"rescanned", resp.Rescanned,
		"failed", resp.Failed,
	)

	writeJSON(w, http.StatusOK, resp)
}
