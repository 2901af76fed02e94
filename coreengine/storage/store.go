// Package storage persists committed work-order events. Rows are
// append-only and keyed by idempotency key: committing a key twice returns
// the first row instead of writing a second one.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSequenceConflict is returned when a row's sequence is already taken
// in its work order under a different idempotency key.
var ErrSequenceConflict = errors.New("sequence already committed")

// Row is one committed event.
type Row struct {
	ID             string    `json:"id"`
	CorrelationID  string    `json:"correlation_id"`
	WorkOrderID    string    `json:"work_order_id"`
	Sequence       int       `json:"sequence"`
	Kind           string    `json:"kind"`
	IdempotencyKey string    `json:"idempotency_key"`
	Actor          string    `json:"actor"`
	CommittedAt    time.Time `json:"committed_at"`
}

// CommitResult is the stored row. Duplicate is set when the idempotency key
// was already committed; Row is then the earlier row.
type CommitResult struct {
	Row       Row  `json:"row"`
	Duplicate bool `json:"duplicate"`
}

// EventStore is the storage collaborator used by the kernel.
type EventStore interface {
	Commit(ctx context.Context, row Row) (CommitResult, error)
	// QueryByCorrelation returns the rows of a correlation ordered by work
	// order, then sequence.
	QueryByCorrelation(ctx context.Context, correlationID string) ([]Row, error)
	Close() error
}

// CommitError wraps a failed commit with the key it was for.
type CommitError struct {
	IdempotencyKey string
	Err            error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit %s: %v", e.IdempotencyKey, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// NewCommitError wraps err for the given key.
func NewCommitError(key string, err error) *CommitError {
	return &CommitError{IdempotencyKey: key, Err: err}
}

// Validate checks the fields every backend requires.
func (r Row) Validate() error {
	switch {
	case r.CorrelationID == "":
		return errors.New("correlation_id is required")
	case r.WorkOrderID == "":
		return errors.New("work_order_id is required")
	case r.IdempotencyKey == "":
		return errors.New("idempotency_key is required")
	case r.Sequence < 1:
		return errors.New("sequence must be positive")
	case r.Kind == "":
		return errors.New("kind is required")
	}
	return nil
}
