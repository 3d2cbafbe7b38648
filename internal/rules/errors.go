package rules

import (
	"errors"
	"fmt"
)

// Catalog error types for categorizing rule-store failures.
var (
	// ErrDirectoryMissing indicates the rule directory does not exist.
	// Loads degrade to an empty catalog rather than failing.
	ErrDirectoryMissing = errors.New("rules: rule directory missing")

	// ErrNotFound indicates the requested rule is not in the catalog.
	ErrNotFound = errors.New("rules: rule not found")

	// ErrInvalidRule indicates a rule failed structural validation.
	ErrInvalidRule = errors.New("rules: invalid rule")
)

// ParseError reports a single document that could not be ingested during
// a load. Parse errors are warnings: the document is skipped and the load
// continues.
type ParseError struct {
	Path string // Document path that failed
	Err  error  // Underlying cause
}

// Error returns the error message.
func (e *ParseError) Error() string {
	return fmt.Sprintf("rules: parse %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// StoreError wraps rule persistence failures with operation context.
// I/O failures are surfaced to the caller and never retried here.
type StoreError struct {
	Op   string // Operation that failed ("Save", "Delete", "Load")
	Rule string // Rule name involved, if applicable
	Err  error  // Underlying error
}

// Error returns the error message.
func (e *StoreError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("rules.%s(%s): %v", e.Op, e.Rule, e.Err)
	}
	return fmt.Sprintf("rules.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}
