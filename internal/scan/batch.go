package scan

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"iris-triage/internal/rules"
	"iris-triage/internal/schema"
)

// ArtifactResult is one artifact's outcome within a batch scan. Success,
// no-match, and error are all reported independently; one artifact's
// failure never aborts the batch.
type ArtifactResult struct {
	Artifact schema.Artifact  `json:"artifact"`
	Findings []schema.Finding `json:"findings,omitempty"`
	Err      error            `json:"-"`
}

// BatchResult summarizes a scan over a set of artifacts.
type BatchResult struct {
	ScanID    uuid.UUID        `json:"scan_id"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
	Results   []ArtifactResult `json:"results"`
}

// Findings flattens every successful result's findings.
func (b BatchResult) Findings() []schema.Finding {
	var out []schema.Finding
	for _, r := range b.Results {
		out = append(out, r.Findings...)
	}
	return out
}

// Failed returns the results that ended in an error.
func (b BatchResult) Failed() []ArtifactResult {
	var out []ArtifactResult
	for _, r := range b.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// ScanBatch evaluates a set of artifacts on a worker pool. Scans for
// different artifacts run concurrently; each result slot is written by
// exactly one worker, so results need no further locking. Result order
// follows the input order regardless of completion order.
func (e *Engine) ScanBatch(ctx context.Context, artifacts []schema.Artifact, catalog rules.Catalog) BatchResult {
	started := time.Now()
	batch := BatchResult{
		ScanID:    uuid.New(),
		StartedAt: started,
		Results:   make([]ArtifactResult, len(artifacts)),
	}

	type job struct {
		idx      int
		artifact schema.Artifact
	}
	jobs := make(chan job)

	var wg sync.WaitGroup
	for w := 0; w < e.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				matched, err := e.Scan(ctx, j.artifact, catalog)
				result := ArtifactResult{Artifact: j.artifact, Err: err}
				if err == nil {
					result.Findings = Findings(batch.ScanID, j.artifact, matched, time.Now())
				}
				batch.Results[j.idx] = result
			}
		}()
	}

dispatch:
	for i, a := range artifacts {
		select {
		case jobs <- job{idx: i, artifact: a}:
		case <-ctx.Done():
			// Remaining artifacts report the cancellation instead of
			// being silently dropped.
			for k := i; k < len(artifacts); k++ {
				batch.Results[k] = ArtifactResult{Artifact: artifacts[k], Err: ctx.Err()}
			}
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	batch.Duration = time.Since(started)
	return batch
}
