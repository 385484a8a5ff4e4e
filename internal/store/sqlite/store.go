// Package sqlite provides a SQLite-backed scenario artifact store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/signalsfoundry/scenario-resimulator/internal/store"
	"github.com/signalsfoundry/scenario-resimulator/internal/store/sqlite/migrations"
	"github.com/signalsfoundry/scenario-resimulator/internal/store/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store keeps one row per artifact, keyed by the same <key>.mdl name the
// filesystem backend uses.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var _ store.ScenarioStore = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the
// embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := "file:" + cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(ctx, sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Put upserts the artifact for key.
func (s *Store) Put(ctx context.Context, key string, artifact []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.ValidateKey(key); err != nil {
		return err
	}
	if artifact == nil {
		artifact = []byte{}
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO scenario_artifacts (file_name, artifact, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(file_name) DO UPDATE SET
    artifact = excluded.artifact,
    updated_at = excluded.updated_at`,
		store.FileName(key), artifact, s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put artifact %s: %w", store.FileName(key), err)
	}
	return nil
}

// Get loads the artifact for key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var artifact []byte
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT artifact FROM scenario_artifacts WHERE file_name = ?`,
		store.FileName(key),
	).Scan(&artifact)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact %s: %w", store.FileName(key), err)
	}
	return artifact, nil
}

// Delete removes the artifact for key; absent rows are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM scenario_artifacts WHERE file_name = ?`,
		store.FileName(key),
	); err != nil {
		return fmt.Errorf("delete artifact %s: %w", store.FileName(key), err)
	}
	return nil
}
