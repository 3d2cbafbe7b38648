package storage

import (
	"errors"
	"fmt"
)

// Failure categories. Handlers branch on these with errors.Is; the
// operation and table ride along in the wrapped message.
var (
	ErrConnect  = errors.New("storage: connect failed")
	ErrQuery    = errors.New("storage: query failed")
	ErrNotFound = errors.New("storage: not found")
)

// IsNotFound reports whether err means the requested record does not
// exist, as opposed to the query failing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// opError pins the failing operation and table to a category sentinel.
type opError struct {
	op    string
	table string
	err   error
}

func (e *opError) Error() string {
	if e.table != "" {
		return fmt.Sprintf("storage.%s(%s): %v", e.op, e.table, e.err)
	}
	return fmt.Sprintf("storage.%s: %v", e.op, e.err)
}

func (e *opError) Unwrap() error { return e.err }

func wrapConnect(op string, err error) error {
	return &opError{op: op, err: fmt.Errorf("%w: %v", ErrConnect, err)}
}

func wrapQuery(op, table string, err error) error {
	return &opError{op: op, table: table, err: fmt.Errorf("%w: %v", ErrQuery, err)}
}

func notFound(op, table, id string) error {
	return &opError{op: op, table: table, err: fmt.Errorf("%w: id=%s", ErrNotFound, id)}
}
