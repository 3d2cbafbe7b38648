package storage

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

// The triage schema ships embedded: findings + assessments in 001,
// the scan quarantine in 002. Files are named NNN_name.sql and may
// hold several statements.
//
//go:embed migrations/*.sql
var migrationFS embed.FS

// migration is one versioned DDL step.
type migration struct {
	version uint32
	name    string
	ddl     string
}

// Migrator brings the ClickHouse schema up to the embedded version. Each
// applied step is recorded in schema_migrations, so a restart against an
// already-migrated database is a no-op.
type Migrator struct {
	client *ClickHouseClient
}

func NewMigrator(client *ClickHouseClient) *Migrator {
	return &Migrator{client: client}
}

// Run applies every pending migration in version order.
func (m *Migrator) Run(ctx context.Context) error {
	if err := m.client.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    UInt32,
			name       String,
			applied_at DateTime DEFAULT now()
		)
		ENGINE = MergeTree()
		ORDER BY version
	`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	steps, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("reading schema_migrations: %w", err)
	}

	for _, step := range steps {
		if applied[step.version] {
			continue
		}
		slog.Info("applying schema migration", "version", step.version, "name", step.name)

		for _, stmt := range splitDDL(step.ddl) {
			if err := m.client.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migration %03d_%s: %w", step.version, step.name, err)
			}
		}
		if err := m.client.Exec(ctx,
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			step.version, step.name,
		); err != nil {
			return fmt.Errorf("recording migration %03d: %w", step.version, err)
		}
	}
	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[uint32]bool, error) {
	rows, err := m.client.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[uint32]bool)
	for rows.Next() {
		var v uint32
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, nil
}

// loadMigrations parses the embedded files. A file whose name does not
// follow NNN_name.sql is a packaging mistake and fails loudly rather
// than being skipped.
func loadMigrations() ([]migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, err
	}

	steps := make([]migration, 0, len(entries))
	for _, entry := range entries {
		base := strings.TrimSuffix(entry.Name(), ".sql")
		num, name, ok := strings.Cut(base, "_")
		if !ok {
			return nil, fmt.Errorf("bad migration filename %q", entry.Name())
		}
		version, err := strconv.ParseUint(num, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad migration version in %q: %w", entry.Name(), err)
		}

		ddl, err := migrationFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return nil, err
		}
		steps = append(steps, migration{
			version: uint32(version),
			name:    name,
			ddl:     string(ddl),
		})
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].version < steps[j].version })
	return steps, nil
}

// splitDDL cuts a migration file into statements on semicolons outside
// single-quoted literals. ClickHouse DDL has no dollar-quoting or
// double-quoted strings to worry about.
func splitDDL(ddl string) []string {
	var stmts []string
	var cur strings.Builder
	quoted := false

	for _, r := range ddl {
		switch {
		case r == '\'':
			quoted = !quoted
		case r == ';' && !quoted:
			if s := strings.TrimSpace(cur.String()); s != "" {
				stmts = append(stmts, s)
			}
			cur.Reset()
			continue
		}
		cur.WriteRune(r)
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		stmts = append(stmts, s)
	}

	// A chunk that is nothing but comment lines is not a statement.
	out := stmts[:0]
	for _, s := range stmts {
		if !commentOnly(s) {
			out = append(out, s)
		}
	}
	return out
}

func commentOnly(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}
