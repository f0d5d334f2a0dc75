package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dkeye/parley/internal/adapters/store/migrations"
	"github.com/dkeye/parley/internal/core"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the default LocalMediaStore, one row per storage key.
type SQLiteStore struct {
	db   *sql.DB
	keys *keyLocks
}

// gooseUp is a seam for tests that run against sqlmock.
var gooseUp = func(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// OpenSQLite opens (or creates) the database at dsn and applies migrations.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open media store: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and avoids
	// SQLITE_BUSY between the sweeper and the composer.
	db.SetMaxOpenConns(1)

	if err := gooseUp(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate media store: %w", err)
	}
	log.Info().Str("module", "store").Str("dsn", dsn).Msg("sqlite media store ready")
	return NewSQLiteStore(db), nil
}

// NewSQLiteStore wraps an already migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, keys: newKeyLocks()}
}

func (s *SQLiteStore) Put(ctx context.Context, key string, blob []byte) error {
	defer s.keys.lock(key)()

	query := `INSERT INTO media_blobs (storage_key, blob, size) VALUES (?, ?, ?)
		ON CONFLICT(storage_key) DO UPDATE SET blob = excluded.blob, size = excluded.size`
	if _, err := s.db.ExecContext(ctx, query, key, blob, len(blob)); err != nil {
		return fmt.Errorf("failed to put blob %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM media_blobs WHERE storage_key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blob %q: %w", key, err)
	}
	return blob, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	defer s.keys.lock(key)()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM media_blobs WHERE storage_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete blob %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
