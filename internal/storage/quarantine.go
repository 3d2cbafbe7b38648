package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QuarantineEntry represents an artifact a batch scan could not evaluate.
type QuarantineEntry struct {
	ArtifactID   uuid.UUID
	ArtifactPath string
	CaseID       string
	ScanID       uuid.UUID
	Reason       string
}

// QuarantineWriter records artifacts that failed to scan, so a later
// rescan pass can retry them once the underlying problem is fixed.
type QuarantineWriter struct {
	client *ClickHouseClient
}

// NewQuarantineWriter creates a new QuarantineWriter.
func NewQuarantineWriter(client *ClickHouseClient) *QuarantineWriter {
	return &QuarantineWriter{client: client}
}

// WriteBatch stores the quarantine entries from one batch scan.
func (qw *QuarantineWriter) WriteBatch(ctx context.Context, entries []*QuarantineEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch, err := qw.client.PrepareBatch(ctx, `
		INSERT INTO scan_quarantine (
			quarantine_id, artifact_id, artifact_path, case_id, scan_id, reason
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare quarantine batch: %w", err)
	}

	for _, entry := range entries {
		err := batch.Append(
			uuid.New(),
			entry.ArtifactID,
			entry.ArtifactPath,
			entry.CaseID,
			entry.ScanID,
			entry.Reason,
		)
		if err != nil {
			return fmt.Errorf("failed to append quarantine entry: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send quarantine batch: %w", err)
	}

	return nil
}

// QuarantinedArtifact represents an entry retrieved from quarantine.
type QuarantinedArtifact struct {
	QuarantineID   uuid.UUID
	QuarantinedAt  time.Time
	ArtifactID     uuid.UUID
	ArtifactPath   string
	CaseID         string
	ScanID         uuid.UUID
	Reason         string
	RescanAttempts uint8
	Rescanned      bool
}

// GetPendingRescan returns quarantined artifacts that have not been
// successfully rescanned yet.
func (qw *QuarantineWriter) GetPendingRescan(ctx context.Context, limit int) ([]QuarantinedArtifact, error) {
	query := `
		SELECT
			quarantine_id, quarantined_at, artifact_id, artifact_path,
			case_id, scan_id, reason, rescan_attempts, rescanned
		FROM scan_quarantine
		WHERE rescanned = false AND rescan_attempts < 3
		ORDER BY quarantined_at ASC
		LIMIT ?
	`

	rows, err := qw.client.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query quarantine: %w", err)
	}
	defer rows.Close()

	var entries []QuarantinedArtifact
	for rows.Next() {
		var entry QuarantinedArtifact
		if err := rows.Scan(
			&entry.QuarantineID,
			&entry.QuarantinedAt,
			&entry.ArtifactID,
			&entry.ArtifactPath,
			&entry.CaseID,
			&entry.ScanID,
			&entry.Reason,
			&entry.RescanAttempts,
			&entry.Rescanned,
		); err != nil {
			return nil, fmt.Errorf("failed to scan quarantine entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// MarkRescanned marks a quarantine entry as successfully rescanned.
func (qw *QuarantineWriter) MarkRescanned(ctx context.Context, quarantineID uuid.UUID, scanID uuid.UUID) error {
	query := `
		ALTER TABLE scan_quarantine
		UPDATE
			rescanned = true,
			rescanned_at = now64(6),
			rescan_id = ?
		WHERE quarantine_id = ?
	`
	return qw.client.Exec(ctx, query, scanID, quarantineID)
}

// IncrementAttempt increments the rescan attempt counter.
func (qw *QuarantineWriter) IncrementAttempt(ctx context.Context, quarantineID uuid.UUID) error {
	query := `
		ALTER TABLE scan_quarantine
		UPDATE rescan_attempts = rescan_attempts + 1
		WHERE quarantine_id = ?
	`
	return qw.client.Exec(ctx, query, quarantineID)
}

// Count returns the number of artifacts awaiting rescan.
func (qw *QuarantineWriter) Count(ctx context.Context) (uint64, error) {
	query := "SELECT count() FROM scan_quarantine WHERE rescanned = false"

	rows, err := qw.client.Query(ctx, query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var count uint64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, err
		}
	}

	return count, nil
}
