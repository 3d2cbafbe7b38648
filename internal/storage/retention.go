package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetentionConfig sets how long each table keeps rows. A zero duration
// leaves that table's TTL untouched.
type RetentionConfig struct {
	FindingsTTL    time.Duration
	AssessmentsTTL time.Duration
	QuarantineTTL  time.Duration
}

// RetentionManager pushes the configured retention windows onto the
// ClickHouse tables as TTL clauses.
type RetentionManager struct {
	client *ClickHouseClient
	config RetentionConfig
}

func NewRetentionManager(client *ClickHouseClient, config RetentionConfig) *RetentionManager {
	return &RetentionManager{client: client, config: config}
}

// ttlTarget pairs a table with the timestamp column its TTL counts from.
type ttlTarget struct {
	table  string
	column string
	window time.Duration
}

// ApplyTTLs alters each table's TTL to the configured window. Call it
// after Migrator.Run so the tables exist. A table that cannot be altered
// is logged and skipped; retention is not worth failing startup over.
func (r *RetentionManager) ApplyTTLs(ctx context.Context) error {
	targets := []ttlTarget{
		{"findings", "matched_at", r.config.FindingsTTL},
		{"assessments", "assessed_at", r.config.AssessmentsTTL},
		{"scan_quarantine", "quarantined_at", r.config.QuarantineTTL},
	}

	for _, t := range targets {
		if t.window <= 0 {
			continue
		}

		days := max(int(t.window/(24*time.Hour)), 1)
		ddl := fmt.Sprintf("ALTER TABLE %s MODIFY TTL %s + INTERVAL %d DAY DELETE", t.table, t.column, days)

		if err := r.client.Exec(ctx, ddl); err != nil {
			slog.Warn("retention TTL not applied", "table", t.table, "days", days, "error", err)
			continue
		}
		slog.Info("retention TTL applied", "table", t.table, "days", days)
	}

	return nil
}
