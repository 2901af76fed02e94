package storage

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an EventStore held in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	rows  []Row
	byKey map[string]int
	now   func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byKey: make(map[string]int), now: time.Now}
}

func (s *MemoryStore) Commit(_ context.Context, row Row) (CommitResult, error) {
	if err := row.Validate(); err != nil {
		return CommitResult{}, NewCommitError(row.IdempotencyKey, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.byKey[row.IdempotencyKey]; ok {
		return CommitResult{Row: s.rows[i], Duplicate: true}, nil
	}
	for _, r := range s.rows {
		if r.CorrelationID == row.CorrelationID && r.WorkOrderID == row.WorkOrderID && r.Sequence == row.Sequence {
			return CommitResult{}, NewCommitError(row.IdempotencyKey, ErrSequenceConflict)
		}
	}

	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	row.CommittedAt = s.now().UTC()
	s.byKey[row.IdempotencyKey] = len(s.rows)
	s.rows = append(s.rows, row)
	return CommitResult{Row: row}, nil
}

func (s *MemoryStore) QueryByCorrelation(_ context.Context, correlationID string) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Row
	for _, r := range s.rows {
		if r.CorrelationID == correlationID {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b Row) int {
		if c := cmp.Compare(a.WorkOrderID, b.WorkOrderID); c != 0 {
			return c
		}
		return cmp.Compare(a.Sequence, b.Sequence)
	})
	return out, nil
}

// Len returns the number of committed rows.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *MemoryStore) Close() error { return nil }
