package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openfield/fieldsync/internal/capture/storage"
)

// PutCollection upserts a mirrored server collection.
func (s *Store) PutCollection(ctx context.Context, collection storage.CachedCollection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	collection.Key = strings.TrimSpace(collection.Key)
	if collection.Key == "" {
		return fmt.Errorf("cache key is required")
	}
	if collection.UpdatedAt.IsZero() {
		collection.UpdatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO capture_cache (key, payload_json, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	payload_json = excluded.payload_json,
	updated_at = excluded.updated_at
`,
		collection.Key,
		collection.PayloadJSON,
		toMillis(collection.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put cached collection: %w", err)
	}
	return nil
}

// GetCollection returns a mirrored collection or storage.ErrNotFound.
func (s *Store) GetCollection(ctx context.Context, key string) (storage.CachedCollection, error) {
	if err := ctx.Err(); err != nil {
		return storage.CachedCollection{}, err
	}
	if err := s.ready(); err != nil {
		return storage.CachedCollection{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT key, payload_json, updated_at
FROM capture_cache
WHERE key = ?
`, strings.TrimSpace(key))

	var collection storage.CachedCollection
	var updatedAt int64
	if err := row.Scan(&collection.Key, &collection.PayloadJSON, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CachedCollection{}, storage.ErrNotFound
		}
		return storage.CachedCollection{}, fmt.Errorf("get cached collection: %w", err)
	}
	collection.UpdatedAt = fromMillis(updatedAt)
	return collection, nil
}

// LastCacheUpdate returns the most recent refresh time across mirrored
// collections, or the zero time when nothing is cached.
func (s *Store) LastCacheUpdate(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	if err := s.ready(); err != nil {
		return time.Time{}, err
	}

	var updatedAt sql.NullInt64
	row := s.sqlDB.QueryRowContext(ctx, `SELECT MAX(updated_at) FROM capture_cache`)
	if err := row.Scan(&updatedAt); err != nil {
		return time.Time{}, fmt.Errorf("last cache update: %w", err)
	}
	if !updatedAt.Valid {
		return time.Time{}, nil
	}
	return fromMillis(updatedAt.Int64), nil
}
