package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"iris-triage/internal/schema"
)

// Assessment is a stored threat score for one artifact within one scan.
type Assessment struct {
	ScanID     uuid.UUID `json:"scan_id"`
	ArtifactID uuid.UUID `json:"artifact_id"`
	Score      uint8     `json:"score"`
	Band       string    `json:"band"`
	Findings   uint32    `json:"findings"`
	AssessedAt time.Time `json:"assessed_at"`
}

// FindingStore reads findings and records assessments. Writes of the
// findings themselves go through the BatchWriter.
type FindingStore struct {
	client *ClickHouseClient
}

// NewFindingStore creates a new FindingStore.
func NewFindingStore(client *ClickHouseClient) *FindingStore {
	return &FindingStore{client: client}
}

// ByScan returns a scan's findings ordered by rule name.
func (s *FindingStore) ByScan(ctx context.Context, scanID uuid.UUID) ([]schema.Finding, error) {
	query := `
		SELECT finding_id, scan_id, artifact_id, rule_id, rule_name, severity, tags, matched_at
		FROM findings
		WHERE scan_id = ?
		ORDER BY rule_name
	`
	return s.queryFindings(ctx, query, scanID)
}

// ByArtifact returns an artifact's findings across all scans, newest
// first, capped at limit.
func (s *FindingStore) ByArtifact(ctx context.Context, artifactID uuid.UUID, limit int) ([]schema.Finding, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT finding_id, scan_id, artifact_id, rule_id, rule_name, severity, tags, matched_at
		FROM findings
		WHERE artifact_id = ?
		ORDER BY matched_at DESC
		LIMIT ?
	`
	return s.queryFindings(ctx, query, artifactID, limit)
}

func (s *FindingStore) queryFindings(ctx context.Context, query string, args ...any) ([]schema.Finding, error) {
	rows, err := s.client.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapQuery("Query", "findings", err)
	}
	defer rows.Close()

	var findings []schema.Finding
	for rows.Next() {
		var (
			f   schema.Finding
			sev uint8
		)
		if err := rows.Scan(&f.ID, &f.ScanID, &f.ArtifactID,
			&f.RuleID, &f.RuleName, &sev, &f.Tags, &f.MatchedAt); err != nil {
			return nil, wrapQuery("Scan", "findings", err)
		}
		f.Severity = int(sev)
		findings = append(findings, f)
	}
	return findings, nil
}

// RecordAssessment stores a computed threat score.
func (s *FindingStore) RecordAssessment(ctx context.Context, a Assessment) error {
	if a.AssessedAt.IsZero() {
		a.AssessedAt = time.Now()
	}
	query := `
		INSERT INTO assessments (scan_id, artifact_id, score, band, findings, assessed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if err := s.client.Exec(ctx, query,
		a.ScanID, a.ArtifactID, a.Score, a.Band, a.Findings, a.AssessedAt); err != nil {
		return wrapQuery("Insert", "assessments", err)
	}
	return nil
}

// LatestAssessment returns an artifact's most recent assessment.
func (s *FindingStore) LatestAssessment(ctx context.Context, artifactID uuid.UUID) (Assessment, error) {
	query := `
		SELECT scan_id, artifact_id, score, band, findings, assessed_at
		FROM assessments
		WHERE artifact_id = ?
		ORDER BY assessed_at DESC
		LIMIT 1
	`
	rows, err := s.client.Query(ctx, query, artifactID)
	if err != nil {
		return Assessment{}, wrapQuery("Query", "assessments", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return Assessment{}, notFound("LatestAssessment", "assessments", artifactID.String())
	}
	var a Assessment
	if err := rows.Scan(&a.ScanID, &a.ArtifactID, &a.Score, &a.Band, &a.Findings, &a.AssessedAt); err != nil {
		return Assessment{}, wrapQuery("Scan", "assessments", err)
	}
	return a, nil
}
