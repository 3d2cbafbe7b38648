package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"iris-triage/internal/schema"
)

// jsonProducer is the producer surface the publisher needs. Satisfied by
// *Producer; tests substitute a fake.
type jsonProducer interface {
	ProduceJSON(ctx context.Context, key string, value interface{}) error
}

// FindingMessage is the wire envelope for one published finding.
type FindingMessage struct {
	Finding schema.Finding `json:"finding"`
	CaseID  string         `json:"case_id,omitempty"`
}

// AssessmentMessage is the wire envelope for a published threat score.
type AssessmentMessage struct {
	ScanID     uuid.UUID `json:"scan_id"`
	ArtifactID uuid.UUID `json:"artifact_id"`
	CaseID     string    `json:"case_id,omitempty"`
	Score      int       `json:"score"`
	Band       string    `json:"band"`
	Findings   int       `json:"findings"`
	AssessedAt time.Time `json:"assessed_at"`
}

// FindingPublisher pushes findings and assessments onto the playbook
// topic. Messages are keyed by artifact ID so one artifact's records
// land on one partition in order.
type FindingPublisher struct {
	producer jsonProducer
	logger   *slog.Logger
}

// NewFindingPublisher creates a publisher over an initialized producer.
func NewFindingPublisher(producer *Producer, logger *slog.Logger) *FindingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FindingPublisher{producer: producer, logger: logger}
}

// PublishFindings publishes a scan's findings one message per finding.
// Publishing stops at the first failure so the caller can decide whether
// to retry the remainder.
func (p *FindingPublisher) PublishFindings(ctx context.Context, caseID string, findings []schema.Finding) error {
	for i, f := range findings {
		msg := FindingMessage{Finding: f, CaseID: caseID}
		if err := p.producer.ProduceJSON(ctx, f.ArtifactID.String(), msg); err != nil {
			return fmt.Errorf("kafka: publishing finding %d of %d: %w", i+1, len(findings), err)
		}
	}

	if len(findings) > 0 {
		p.logger.Debug("published findings",
			"case_id", caseID,
			"count", len(findings),
		)
	}
	return nil
}

// PublishAssessment publishes a computed threat score.
func (p *FindingPublisher) PublishAssessment(ctx context.Context, msg AssessmentMessage) error {
	if msg.AssessedAt.IsZero() {
		msg.AssessedAt = time.Now()
	}
	if err := p.producer.ProduceJSON(ctx, msg.ArtifactID.String(), msg); err != nil {
		return fmt.Errorf("kafka: publishing assessment: %w", err)
	}
	return nil
}
