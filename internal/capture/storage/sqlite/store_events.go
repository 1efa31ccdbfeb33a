package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openfield/fieldsync/internal/capture/storage"
)

// AppendEvent persists one operational telemetry event.
func (s *Store) AppendEvent(ctx context.Context, evt storage.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	evt.Kind = strings.TrimSpace(evt.Kind)
	if evt.Kind == "" {
		return fmt.Errorf("event kind is required")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO capture_events (kind, subject, detail, created_at)
VALUES (?, ?, ?, ?)
`,
		evt.Kind,
		evt.Subject,
		evt.Detail,
		toMillis(evt.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEvents lists newest-first operational events.
func (s *Store) ListEvents(ctx context.Context, limit int) ([]storage.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, kind, subject, detail, created_at
FROM capture_events
ORDER BY created_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]storage.Event, 0, limit)
	for rows.Next() {
		var evt storage.Event
		var createdAt int64
		if err := rows.Scan(&evt.ID, &evt.Kind, &evt.Subject, &evt.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.Timestamp = fromMillis(createdAt)
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
