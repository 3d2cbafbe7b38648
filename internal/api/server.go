// Package api provides the REST surface for rule management, artifact
// triage, and case reporting.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"iris-triage/internal/custody"
	"iris-triage/internal/kafka"
	"iris-triage/internal/rules"
	"iris-triage/internal/scan"
	"iris-triage/internal/schema"
	"iris-triage/internal/storage"
	"iris-triage/internal/storage/s3"
)

// FindingSink persists scan findings. Satisfied by the storage batch
// writer; nil disables persistence.
type FindingSink interface {
	WriteAll(findings []schema.Finding) error
}

// FindingReader serves stored findings and assessments back out of the
// finding store. Satisfied by *storage.FindingStore; nil disables the
// finding read endpoints.
type FindingReader interface {
	ByScan(ctx context.Context, scanID uuid.UUID) ([]schema.Finding, error)
	ByArtifact(ctx context.Context, artifactID uuid.UUID, limit int) ([]schema.Finding, error)
	RecordAssessment(ctx context.Context, a storage.Assessment) error
	LatestAssessment(ctx context.Context, artifactID uuid.UUID) (storage.Assessment, error)
}

// Quarantine records artifacts a batch scan could not evaluate and hands
// them back for rescan passes. Satisfied by *storage.QuarantineWriter;
// nil disables quarantine and the rescan endpoints.
type Quarantine interface {
	WriteBatch(ctx context.Context, entries []*storage.QuarantineEntry) error
	GetPendingRescan(ctx context.Context, limit int) ([]storage.QuarantinedArtifact, error)
	MarkRescanned(ctx context.Context, quarantineID, scanID uuid.UUID) error
	IncrementAttempt(ctx context.Context, quarantineID uuid.UUID) error
	Count(ctx context.Context) (uint64, error)
}

// Publisher pushes findings and assessments to the playbook topic.
// Satisfied by *kafka.FindingPublisher; nil disables publication.
type Publisher interface {
	PublishFindings(ctx context.Context, caseID string, findings []schema.Finding) error
	PublishAssessment(ctx context.Context, msg kafka.AssessmentMessage) error
}

// ReportArchiver stores completed case reports and reads them back.
// Satisfied by *s3.Archiver; nil disables archival and the archived
// report endpoints.
type ReportArchiver interface {
	Archive(ctx context.Context, report *s3.CaseReport) (*s3.ArchiveResult, error)
	Fetch(ctx context.Context, key string) (*s3.CaseReport, error)
	ListReports(ctx context.Context, caseID string) ([]string, error)
}

// CustodyLedger records and verifies chain-of-custody entries.
// Satisfied by *custody.Ledger; nil disables the custody endpoints.
type CustodyLedger interface {
	Append(ctx context.Context, artifactID uuid.UUID, action custody.Action, actor, reference string, occurredAt time.Time) (custody.Record, error)
	History(ctx context.Context, artifactID uuid.UUID) ([]custody.Record, error)
	Verify(ctx context.Context) (int64, error)
}

// Server holds the dependencies needed by the REST handlers. The rule
// store and scan engine are required; everything else is optional
// infrastructure that handlers skip when absent.
type Server struct {
	rules  *rules.Store
	engine *scan.Engine

	sink       FindingSink
	findings   FindingReader
	quarantine Quarantine
	publisher  Publisher
	archiver   ReportArchiver
	ledger     CustodyLedger

	validator    *schema.Validator
	maxRuleBytes int64
	logger       *slog.Logger
}

// Options carries the optional Server dependencies.
type Options struct {
	Sink       FindingSink
	Findings   FindingReader
	Quarantine Quarantine
	Publisher  Publisher
	Archiver   ReportArchiver
	Ledger     CustodyLedger

	// MaxRuleBytes caps the accepted rule document size on upserts.
	MaxRuleBytes int64

	Logger *slog.Logger
}

// NewServer creates a Server over the given rule store and scan engine.
func NewServer(store *rules.Store, engine *scan.Engine, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRuleBytes := opts.MaxRuleBytes
	if maxRuleBytes <= 0 {
		maxRuleBytes = 1 * 1024 * 1024
	}
	return &Server{
		rules:        store,
		engine:       engine,
		sink:         opts.Sink,
		findings:     opts.Findings,
		quarantine:   opts.Quarantine,
		publisher:    opts.Publisher,
		archiver:     opts.Archiver,
		ledger:       opts.Ledger,
		validator:    schema.NewValidator(),
		maxRuleBytes: maxRuleBytes,
		logger:       logger,
	}
}
