package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/selene/coreengine/storage"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func row(seq int, key string) storage.Row {
	return storage.Row{CorrelationID: "corr-1", WorkOrderID: "wo-1", Sequence: seq, Kind: "created", IdempotencyKey: key, Actor: "tech-1"}
}

// =============================================================================
// SQLITE STORE TESTS
// =============================================================================

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestCommitAndQuery(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	for _, r := range []storage.Row{row(2, "k-2"), row(1, "k-1")} {
		res, err := s.Commit(ctx, r)
		require.NoError(t, err)
		assert.False(t, res.Duplicate)
		assert.NotEmpty(t, res.Row.ID)
	}

	rows, err := s.QueryByCorrelation(ctx, "corr-1")

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].Sequence)
	assert.Equal(t, "tech-1", rows[0].Actor)
	assert.Equal(t, "k-2", rows[1].IdempotencyKey)
}

func TestDuplicateKeyIsNotWrittenTwice(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	first, err := s.Commit(ctx, row(1, "k-1"))
	require.NoError(t, err)

	again, err := s.Commit(ctx, row(2, "k-1"))

	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Row.ID, again.Row.ID)
	assert.Equal(t, 1, again.Row.Sequence)

	rows, err := s.QueryByCorrelation(ctx, "corr-1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestSequenceConflict(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	_, err := s.Commit(ctx, row(1, "k-1"))
	require.NoError(t, err)

	_, err = s.Commit(ctx, row(1, "k-2"))
	assert.ErrorIs(t, err, storage.ErrSequenceConflict)
}

func TestReopenKeepsRows(t *testing.T) {
	s, path := openStore(t)
	ctx := context.Background()
	_, err := s.Commit(ctx, row(1, "k-1"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	rows, err := reopened.QueryByCorrelation(ctx, "corr-1")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
