// Package sqlite is the SQLite-backed storage.EventStore.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/jeeves-cluster-organization/selene/coreengine/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements storage.EventStore on a SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.EventStore = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the
// embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, correlation_id, work_order_id, sequence, kind, idempotency_key, actor, committed_at_ms FROM work_order_events`

func scanRow(sc interface{ Scan(...any) error }) (storage.Row, error) {
	var r storage.Row
	var ms int64
	if err := sc.Scan(&r.ID, &r.CorrelationID, &r.WorkOrderID, &r.Sequence, &r.Kind, &r.IdempotencyKey, &r.Actor, &ms); err != nil {
		return storage.Row{}, err
	}
	r.CommittedAt = time.UnixMilli(ms).UTC()
	return r, nil
}

// Commit inserts row unless its idempotency key is already present.
func (s *Store) Commit(ctx context.Context, row storage.Row) (storage.CommitResult, error) {
	if err := row.Validate(); err != nil {
		return storage.CommitResult{}, storage.NewCommitError(row.IdempotencyKey, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.CommitResult{}, storage.NewCommitError(row.IdempotencyKey, err)
	}
	defer func() { _ = tx.Rollback() }()

	prior, err := scanRow(tx.QueryRowContext(ctx, selectColumns+` WHERE idempotency_key = ?`, row.IdempotencyKey))
	switch {
	case err == nil:
		return storage.CommitResult{Row: prior, Duplicate: true}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return storage.CommitResult{}, storage.NewCommitError(row.IdempotencyKey, err)
	}

	var taken int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM work_order_events WHERE correlation_id = ? AND work_order_id = ? AND sequence = ?`,
		row.CorrelationID, row.WorkOrderID, row.Sequence,
	).Scan(&taken); err != nil {
		return storage.CommitResult{}, storage.NewCommitError(row.IdempotencyKey, err)
	}
	if taken > 0 {
		return storage.CommitResult{}, storage.NewCommitError(row.IdempotencyKey, storage.ErrSequenceConflict)
	}

	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	row.CommittedAt = s.now().UTC().Truncate(time.Millisecond)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO work_order_events (id, correlation_id, work_order_id, sequence, kind, idempotency_key, actor, committed_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.CorrelationID, row.WorkOrderID, row.Sequence, row.Kind, row.IdempotencyKey, row.Actor, row.CommittedAt.UnixMilli(),
	); err != nil {
		return storage.CommitResult{}, storage.NewCommitError(row.IdempotencyKey, err)
	}
	if err := tx.Commit(); err != nil {
		return storage.CommitResult{}, storage.NewCommitError(row.IdempotencyKey, err)
	}
	return storage.CommitResult{Row: row}, nil
}

// QueryByCorrelation returns a correlation's rows by work order, then sequence.
func (s *Store) QueryByCorrelation(ctx context.Context, correlationID string) ([]storage.Row, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE correlation_id = ? ORDER BY work_order_id, sequence`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []storage.Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
