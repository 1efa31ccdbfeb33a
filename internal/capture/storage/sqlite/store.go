// Package sqlite provides the SQLite-backed durable store for the capture
// subsystem: autosave snapshots, the offline cache mirror, the sync queue,
// and operational events share one database file.
package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/openfield/fieldsync/internal/capture/storage"
	"github.com/openfield/fieldsync/internal/capture/storage/sqlite/migrations"
	"github.com/openfield/fieldsync/internal/platform/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed capture persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a capture SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.Apply(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready() error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var _ storage.SnapshotStore = (*Store)(nil)
var _ storage.QueueStore = (*Store)(nil)
var _ storage.CacheStore = (*Store)(nil)
var _ storage.EventStore = (*Store)(nil)
