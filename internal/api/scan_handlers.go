package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"iris-triage/internal/custody"
	ierrors "iris-triage/internal/errors"
	"iris-triage/internal/kafka"
	"iris-triage/internal/scan"
	"iris-triage/internal/schema"
	"iris-triage/internal/score"
	"iris-triage/internal/storage"
)

// custodyActor is the recorded actor for ledger entries written by the
// service itself.
const custodyActor = "iris-triage"

// ScanRequest is the body of POST /api/v1/scan.
type ScanRequest struct {
	Path   string `json:"path"`
	CaseID string `json:"case_id,omitempty"`
}

// ScanResponse is one artifact's triage outcome.
type ScanResponse struct {
	ScanID   uuid.UUID        `json:"scan_id"`
	Artifact schema.Artifact  `json:"artifact"`
	Findings []schema.Finding `json:"findings"`
	Score    int              `json:"score"`
	Band     score.Band       `json:"band"`
}

// BatchScanRequest is the body of POST /api/v1/scan/batch.
type BatchScanRequest struct {
	Paths  []string `json:"paths"`
	CaseID string   `json:"case_id,omitempty"`
}

// BatchScanEntry is one artifact's outcome within a batch response.
type BatchScanEntry struct {
	Artifact schema.Artifact  `json:"artifact"`
	Findings []schema.Finding `json:"findings,omitempty"`
	Score    int              `json:"score"`
	Band     score.Band       `json:"band"`
	Error    string           `json:"error,omitempty"`
}

// BatchScanResponse summarizes a batch triage run.
type BatchScanResponse struct {
	ScanID     uuid.UUID        `json:"scan_id"`
	Results    []BatchScanEntry `json:"results"`
	DurationMS int64            `json:"duration_ms"`
}

// artifactForPath builds an artifact record for a filesystem path.
// Category routing comes from the extension; a stat failure leaves the
// timestamps zero and the scan surfaces the read error.
func artifactForPath(path, caseID string) schema.Artifact {
	artifact := schema.Artifact{
		ID:       uuid.New(),
		Name:     filepath.Base(path),
		Path:     path,
		Category: schema.CategoryForPath(path),
		CaseID:   caseID,
	}
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		artifact.SizeBytes = info.Size()
		artifact.CreatedAt = info.ModTime()
		artifact.ModifiedAt = info.ModTime()
	}
	return artifact
}

// handleScan responds to POST /api/v1/scan: one artifact, scanned
// against the current catalog snapshot, scored, and dispatched to the
// configured sinks.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "'path' is required")
		return
	}

	artifact := artifactForPath(req.Path, req.CaseID)
	catalog := s.rules.Snapshot()

	matched, err := s.engine.Scan(r.Context(), artifact, catalog)
	if err != nil {
		switch {
		case errors.Is(err, scan.ErrArtifactNotFound):
			writeError(w, http.StatusNotFound, "artifact not found")
		case errors.Is(err, context.Canceled):
			writeError(w, http.StatusServiceUnavailable, "scan cancelled")
		default:
			s.logger.Error("scan failed", "path", req.Path, "error", err)
			writeError(w, http.StatusInternalServerError, ierrors.SafeErrorMessage(err))
		}
		return
	}

	scanID := uuid.New()
	findings := scan.Findings(scanID, artifact, matched, time.Now())
	result := score.Compute(findings)

	s.dispatch(r.Context(), scanID, artifact, findings, result)

	writeJSON(w, http.StatusOK, ScanResponse{
		ScanID:   scanID,
		Artifact: artifact,
		Findings: findings,
		Score:    result.Score,
		Band:     result.Band,
	})
}

// handleScanBatch responds to POST /api/v1/scan/batch. Artifacts are
// scanned on the engine's worker pool; one artifact's failure never
// aborts the rest.
func (s *Server) handleScanBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, "'paths' must not be empty")
		return
	}

	artifacts := make([]schema.Artifact, len(req.Paths))
	for i, path := range req.Paths {
		artifacts[i] = artifactForPath(path, req.CaseID)
	}

	catalog := s.rules.Snapshot()
	batch := s.engine.ScanBatch(r.Context(), artifacts, catalog)

	entries := make([]BatchScanEntry, len(batch.Results))
	var quarantined []*storage.QuarantineEntry
	for i, res := range batch.Results {
		entry := BatchScanEntry{
			Artifact: res.Artifact,
			Findings: res.Findings,
		}
		if res.Err != nil {
			entry.Error = ierrors.SafeErrorMessage(res.Err)
			quarantined = append(quarantined, &storage.QuarantineEntry{
				ArtifactID:   res.Artifact.ID,
				ArtifactPath: res.Artifact.Path,
				CaseID:       res.Artifact.CaseID,
				ScanID:       batch.ScanID,
				Reason:       res.Err.Error(),
			})
		} else {
			sc := score.Compute(res.Findings)
			entry.Score = sc.Score
			entry.Band = sc.Band
			s.dispatch(r.Context(), batch.ScanID, res.Artifact, res.Findings, sc)
		}
		entries[i] = entry
	}

	if s.quarantine != nil && len(quarantined) > 0 {
		if err := s.quarantine.WriteBatch(r.Context(), quarantined); err != nil {
			s.logger.Error("quarantine write failed",
				"scan_id", batch.ScanID, "count", len(quarantined), "error", err)
		}
	}

	writeJSON(w, http.StatusOK, BatchScanResponse{
		ScanID:     batch.ScanID,
		Results:    entries,
		DurationMS: batch.Duration.Milliseconds(),
	})
}

// dispatch fans a completed scan out to the configured sinks. Sink
// failures are logged and do not fail the triage request; the scan
// result already belongs to the caller.
func (s *Server) dispatch(ctx context.Context, scanID uuid.UUID, artifact schema.Artifact, findings []schema.Finding, result score.Result) {
	if s.sink != nil && len(findings) > 0 {
		if err := s.sink.WriteAll(findings); err != nil {
			s.logger.Error("finding persistence failed", "scan_id", scanID, "error", err)
		}
	}

	if s.findings != nil {
		a := storage.Assessment{
			ScanID:     scanID,
			ArtifactID: artifact.ID,
			Score:      uint8(result.Score),
			Band:       string(result.Band),
			Findings:   uint32(len(findings)),
		}
		if err := s.findings.RecordAssessment(ctx, a); err != nil {
			s.logger.Error("assessment persistence failed", "scan_id", scanID, "error", err)
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishFindings(ctx, artifact.CaseID, findings); err != nil {
			s.logger.Error("finding publication failed", "scan_id", scanID, "error", err)
		}
		msg := kafka.AssessmentMessage{
			ScanID:     scanID,
			ArtifactID: artifact.ID,
			CaseID:     artifact.CaseID,
			Score:      result.Score,
			Band:       string(result.Band),
			Findings:   len(findings),
			AssessedAt: time.Now(),
		}
		if err := s.publisher.PublishAssessment(ctx, msg); err != nil {
			s.logger.Error("assessment publication failed", "scan_id", scanID, "error", err)
		}
	}

	if s.ledger != nil {
		_, err := s.ledger.Append(ctx, artifact.ID, custody.ActionScanned, custodyActor, scanID.String(), time.Now())
		if err != nil {
			s.logger.Error("custody record append failed", "artifact_id", artifact.ID, "error", err)
		}
	}
}
