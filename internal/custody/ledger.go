// Package custody provides a WAL-mode SQLite-backed chain-of-custody
// ledger. Every handling action on an artifact is appended as a record
// whose digest covers the previous record's digest, so any retroactive
// edit to the ledger breaks the chain and is caught by Verify.
package custody

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	_ "modernc.org/sqlite" // register "sqlite" driver with database/sql
)

// Action is what happened to the artifact.
type Action string

const (
	ActionCollected   Action = "collected"
	ActionTransferred Action = "transferred"
	ActionScanned     Action = "scanned"
	ActionArchived    Action = "archived"
	ActionReleased    Action = "released"
)

// IsValid checks if the action is a known value.
func (a Action) IsValid() bool {
	switch a {
	case ActionCollected, ActionTransferred, ActionScanned, ActionArchived, ActionReleased:
		return true
	}
	return false
}

// Record is one entry in the custody chain. Digest covers the record's
// own fields plus the previous record's digest.
type Record struct {
	Seq        int64     `json:"seq"`
	ArtifactID uuid.UUID `json:"artifact_id"`
	Action     Action    `json:"action"`
	Actor      string    `json:"actor"`
	Reference  string    `json:"reference,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	PrevDigest string    `json:"prev_digest"`
	Digest     string    `json:"digest"`
}

// genesisDigest anchors the first record of a ledger.
const genesisDigest = "0000000000000000000000000000000000000000000000000000000000000000"

// Ledger is an append-only custody log. It is safe for concurrent use;
// appends serialise through a single database connection.
type Ledger struct {
	db *sql.DB
}

const ddl = `
CREATE TABLE IF NOT EXISTS custody_ledger (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    artifact_id TEXT    NOT NULL,
    action      TEXT    NOT NULL,
    actor       TEXT    NOT NULL,
    reference   TEXT    NOT NULL DEFAULT '',
    occurred_at TEXT    NOT NULL,
    prev_digest TEXT    NOT NULL,
    digest      TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_custody_artifact
    ON custody_ledger (artifact_id, seq);
`

// Open opens (or creates) the ledger database at path and applies the
// schema. ":memory:" opens an in-memory ledger, suitable for tests.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("custody: open %q: %w", path, err)
	}

	// One writer at a time; a single pooled connection avoids
	// "database is locked" under concurrent appends.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("custody: set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous = NORMAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("custody: set synchronous = NORMAL: %w", err)
	}
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("custody: apply schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Append records a handling action for an artifact and returns the
// stored record with its sequence number and digest filled in. The
// record's digest chains from the latest record in the ledger.
func (l *Ledger) Append(ctx context.Context, artifactID uuid.UUID, action Action, actor, reference string, occurredAt time.Time) (Record, error) {
	if !action.IsValid() {
		return Record{}, fmt.Errorf("custody: unknown action %q", action)
	}
	if actor == "" {
		return Record{}, fmt.Errorf("custody: actor is required")
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("custody: begin append: %w", err)
	}
	defer tx.Rollback()

	prev := genesisDigest
	err = tx.QueryRowContext(ctx,
		`SELECT digest FROM custody_ledger ORDER BY seq DESC LIMIT 1`).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return Record{}, fmt.Errorf("custody: read chain head: %w", err)
	}

	rec := Record{
		ArtifactID: artifactID,
		Action:     action,
		Actor:      actor,
		Reference:  reference,
		OccurredAt: occurredAt.UTC(),
		PrevDigest: prev,
	}
	rec.Digest = chainDigest(rec)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO custody_ledger (artifact_id, action, actor, reference, occurred_at, prev_digest, digest)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ArtifactID.String(),
		string(rec.Action),
		rec.Actor,
		rec.Reference,
		rec.OccurredAt.Format(time.RFC3339Nano),
		rec.PrevDigest,
		rec.Digest,
	)
	if err != nil {
		return Record{}, fmt.Errorf("custody: append: %w", err)
	}
	if rec.Seq, err = res.LastInsertId(); err != nil {
		return Record{}, fmt.Errorf("custody: append id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("custody: commit append: %w", err)
	}
	return rec, nil
}

// History returns an artifact's custody records in append order.
func (l *Ledger) History(ctx context.Context, artifactID uuid.UUID) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, artifact_id, action, actor, reference, occurred_at, prev_digest, digest
		 FROM   custody_ledger
		 WHERE  artifact_id = ?
		 ORDER  BY seq`, artifactID.String())
	if err != nil {
		return nil, fmt.Errorf("custody: history query: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Verify walks the whole chain and returns the sequence number of the
// first broken record, or 0 when the chain is intact. A record is broken
// when its prev_digest does not match its predecessor's digest or its
// own digest does not recompute from its fields.
func (l *Ledger) Verify(ctx context.Context) (int64, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT seq, artifact_id, action, actor, reference, occurred_at, prev_digest, digest
		 FROM   custody_ledger
		 ORDER  BY seq`)
	if err != nil {
		return 0, fmt.Errorf("custody: verify query: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return 0, err
	}

	prev := genesisDigest
	for _, rec := range records {
		if rec.PrevDigest != prev || rec.Digest != chainDigest(rec) {
			return rec.Seq, nil
		}
		prev = rec.Digest
	}
	return 0, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var (
			rec   Record
			idStr string
			tsStr string
		)
		if err := rows.Scan(&rec.Seq, &idStr, &rec.Action, &rec.Actor,
			&rec.Reference, &tsStr, &rec.PrevDigest, &rec.Digest); err != nil {
			return nil, fmt.Errorf("custody: scan record: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("custody: record %d has bad artifact id: %w", rec.Seq, err)
		}
		rec.ArtifactID = id
		if rec.OccurredAt, err = time.Parse(time.RFC3339Nano, tsStr); err != nil {
			return nil, fmt.Errorf("custody: record %d has bad timestamp: %w", rec.Seq, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("custody: rows: %w", err)
	}
	return records, nil
}

// chainDigest computes a record's BLAKE2b-256 digest over its fields and
// the previous record's digest. The timestamp enters in RFC3339Nano UTC,
// matching the stored representation exactly.
func chainDigest(rec Record) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(rec.PrevDigest))
	h.Write([]byte(rec.ArtifactID.String()))
	h.Write([]byte(rec.Action))
	h.Write([]byte(rec.Actor))
	h.Write([]byte(rec.Reference))
	h.Write([]byte(rec.OccurredAt.Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}

// DigestContent computes the BLAKE2b-256 digest of artifact content, the
// value stored on schema.Artifact.Digest at collection time.
func DigestContent(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}
