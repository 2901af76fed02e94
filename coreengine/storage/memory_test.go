package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(seq int, key string) Row {
	return Row{CorrelationID: "corr-1", WorkOrderID: "wo-1", Sequence: seq, Kind: "created", IdempotencyKey: key, Actor: "tech-1"}
}

// =============================================================================
// COMMIT TESTS
// =============================================================================

func TestMemoryStoreCommitAssignsID(t *testing.T) {
	s := NewMemoryStore()

	res, err := s.Commit(context.Background(), row(1, "k-1"))

	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.NotEmpty(t, res.Row.ID)
	assert.False(t, res.Row.CommittedAt.IsZero())
}

func TestMemoryStoreDuplicateKeyReturnsFirstRow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.Commit(ctx, row(1, "k-1"))
	require.NoError(t, err)

	again, err := s.Commit(ctx, row(2, "k-1"))

	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Row, again.Row)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStoreSequenceConflict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Commit(ctx, row(1, "k-1"))
	require.NoError(t, err)

	_, err = s.Commit(ctx, row(1, "k-2"))

	var commitErr *CommitError
	require.True(t, errors.As(err, &commitErr))
	assert.Equal(t, "k-2", commitErr.IdempotencyKey)
	assert.ErrorIs(t, err, ErrSequenceConflict)
}

func TestMemoryStoreRejectsIncompleteRow(t *testing.T) {
	_, err := NewMemoryStore().Commit(context.Background(), Row{IdempotencyKey: "k"})
	assert.Error(t, err)
}

// =============================================================================
// QUERY TESTS
// =============================================================================

func TestMemoryStoreQueryOrdersBySequence(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, r := range []Row{row(2, "k-2"), row(1, "k-1"), {CorrelationID: "other", WorkOrderID: "wo-1", Sequence: 1, Kind: "created", IdempotencyKey: "k-x"}} {
		_, err := s.Commit(ctx, r)
		require.NoError(t, err)
	}

	rows, err := s.QueryByCorrelation(ctx, "corr-1")

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "k-1", rows[0].IdempotencyKey)
	assert.Equal(t, "k-2", rows[1].IdempotencyKey)
}

func TestMemoryStoreQueryUnknownCorrelation(t *testing.T) {
	rows, err := NewMemoryStore().QueryByCorrelation(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
