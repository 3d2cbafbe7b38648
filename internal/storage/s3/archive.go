package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"iris-triage/internal/schema"
	"iris-triage/internal/timeline"
)

// CaseReport is the archived form of a completed triage: score, band,
// findings, and the assembled incident timeline for one case.
type CaseReport struct {
	ReportID    uuid.UUID        `json:"report_id"`
	CaseID      string           `json:"case_id"`
	ScanID      uuid.UUID        `json:"scan_id"`
	Score       int              `json:"score"`
	Band        string           `json:"band"`
	Findings    []schema.Finding `json:"findings"`
	Timeline    []timeline.Event `json:"timeline"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// ArchiveResult describes where an archived report landed. Key is
// relative to the client prefix and can be handed back to Fetch.
type ArchiveResult struct {
	ReportID         uuid.UUID `json:"report_id"`
	Key              string    `json:"key"`
	Location         string    `json:"location"`
	Size             int64     `json:"size"`
	UncompressedSize int64     `json:"uncompressed_size"`
}

// ArchiverConfig configures the report archiver.
type ArchiverConfig struct {
	// StorageClass for archived reports.
	StorageClass string `json:"storage_class" yaml:"storage_class"`

	// KeyTemplate for report keys (supports {case}, {date}, {id}).
	KeyTemplate string `json:"key_template" yaml:"key_template"`
}

// DefaultArchiverConfig returns default archiver configuration.
func DefaultArchiverConfig() *ArchiverConfig {
	return &ArchiverConfig{
		StorageClass: "INTELLIGENT_TIERING",
		KeyTemplate:  "{case}/{date}/{id}.json.gz",
	}
}

type archiverMetrics struct {
	reportsArchived atomic.Int64
	bytesArchived   atomic.Int64
	errors          atomic.Int64
}

// Archiver writes case reports to S3 as gzip-compressed JSON.
type Archiver struct {
	client  *Client
	config  *ArchiverConfig
	logger  *slog.Logger
	metrics *archiverMetrics
}

// NewArchiver creates a new report archiver.
func NewArchiver(client *Client, cfg *ArchiverConfig, logger *slog.Logger) *Archiver {
	if cfg == nil {
		cfg = DefaultArchiverConfig()
	}
	return &Archiver{
		client:  client,
		config:  cfg,
		logger:  logger,
		metrics: &archiverMetrics{},
	}
}

// Archive compresses and uploads a case report, returning its location.
func (a *Archiver) Archive(ctx context.Context, report *CaseReport) (*ArchiveResult, error) {
	if report.CaseID == "" {
		return nil, fmt.Errorf("s3: report has no case id")
	}
	if report.ReportID == uuid.Nil {
		report.ReportID = uuid.New()
	}
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = time.Now()
	}

	data, err := json.Marshal(report)
	if err != nil {
		a.metrics.errors.Add(1)
		return nil, fmt.Errorf("s3: failed to marshal report: %w", err)
	}

	compressed, err := gzipBytes(data)
	if err != nil {
		a.metrics.errors.Add(1)
		return nil, fmt.Errorf("s3: failed to compress report: %w", err)
	}

	key := a.reportKey(report)
	out, err := a.client.Put(ctx, key, "application/gzip", compressed, map[string]string{
		"case-id":           report.CaseID,
		"report-id":         report.ReportID.String(),
		"band":              report.Band,
		"finding-count":     fmt.Sprintf("%d", len(report.Findings)),
		"uncompressed-size": fmt.Sprintf("%d", len(data)),
	})
	if err != nil {
		a.metrics.errors.Add(1)
		return nil, err
	}

	a.metrics.reportsArchived.Add(1)
	a.metrics.bytesArchived.Add(out.Size)

	a.logger.Info("archived case report",
		"case_id", report.CaseID,
		"report_id", report.ReportID,
		"key", out.Key,
		"size", out.Size,
	)

	return &ArchiveResult{
		ReportID:         report.ReportID,
		Key:              key,
		Location:         out.Location,
		Size:             out.Size,
		UncompressedSize: int64(len(data)),
	}, nil
}

// Fetch downloads and decompresses an archived report by key. The key is
// relative to the client prefix, as returned by ListReports.
func (a *Archiver) Fetch(ctx context.Context, key string) (*CaseReport, error) {
	compressed, err := a.client.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("s3: archived report is not gzip: %w", err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to decompress report: %w", err)
	}

	var report CaseReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("s3: failed to decode report: %w", err)
	}
	return &report, nil
}

// ListReports lists archived report keys for a case. Keys come back
// relative to the client prefix so they can be passed straight to Fetch.
func (a *Archiver) ListReports(ctx context.Context, caseID string) ([]string, error) {
	return a.client.ListKeys(ctx, caseID+"/")
}

// reportKey expands the key template for a report.
func (a *Archiver) reportKey(report *CaseReport) string {
	key := a.config.KeyTemplate
	key = strings.ReplaceAll(key, "{case}", report.CaseID)
	key = strings.ReplaceAll(key, "{date}", report.GeneratedAt.Format("2006/01/02"))
	key = strings.ReplaceAll(key, "{id}", report.ReportID.String())
	return key
}

// ArchiverMetrics contains archiver metrics.
type ArchiverMetrics struct {
	ReportsArchived int64
	BytesArchived   int64
	Errors          int64
}

// GetMetrics returns current archiver metrics.
func (a *Archiver) GetMetrics() ArchiverMetrics {
	return ArchiverMetrics{
		ReportsArchived: a.metrics.reportsArchived.Load(),
		BytesArchived:   a.metrics.bytesArchived.Load(),
		Errors:          a.metrics.errors.Load(),
	}
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
