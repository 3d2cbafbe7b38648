package scan

import (
	"errors"
	"fmt"
)

// Scan error types for categorizing evaluation failures.
var (
	// ErrArtifactNotFound indicates the referenced artifact could not
	// be located or read. Fatal for that scan call only.
	ErrArtifactNotFound = errors.New("scan: artifact not found")

	// ErrEngineUnavailable indicates the pattern-matching backend
	// could not be initialized for the run.
	ErrEngineUnavailable = errors.New("scan: engine unavailable")
)

// ScanError wraps a scan failure with the artifact it concerned.
type ScanError struct {
	Artifact string // Artifact path or identifier
	Err      error  // Underlying error
}

// Error returns the error message.
func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Artifact, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ScanError) Unwrap() error {
	return e.Err
}
