package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/openfield/fieldsync/internal/capture/storage"
)

// SaveSnapshot upserts the autosave snapshot for its (project, respondent)
// key, superseding any previous save in place.
func (s *Store) SaveSnapshot(ctx context.Context, snap storage.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	snap.ProjectID = strings.TrimSpace(snap.ProjectID)
	snap.RespondentID = strings.TrimSpace(snap.RespondentID)
	if snap.ProjectID == "" {
		return fmt.Errorf("project id is required")
	}
	if snap.RespondentID == "" {
		return fmt.Errorf("respondent id is required")
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO capture_autosaves (project_id, respondent_id, payload_json, saved_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(project_id, respondent_id) DO UPDATE SET
	payload_json = excluded.payload_json,
	saved_at = excluded.saved_at
`,
		snap.ProjectID,
		snap.RespondentID,
		string(payload),
		toMillis(snap.SavedAt),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns one snapshot or storage.ErrNotFound.
func (s *Store) GetSnapshot(ctx context.Context, projectID, respondentID string) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	if err := s.ready(); err != nil {
		return storage.Snapshot{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT payload_json, saved_at
FROM capture_autosaves
WHERE project_id = ? AND respondent_id = ?
`, strings.TrimSpace(projectID), strings.TrimSpace(respondentID))

	var payload string
	var savedAt int64
	if err := row.Scan(&payload, &savedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Snapshot{}, storage.ErrNotFound
		}
		return storage.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}

	snap, err := decodeSnapshot(payload, savedAt)
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns a project's snapshots newest-first. Rows whose
// payload no longer parses are skipped so one corrupt entry cannot poison
// recovery of the rest.
func (s *Store) ListSnapshots(ctx context.Context, projectID string) ([]storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT respondent_id, payload_json, saved_at
FROM capture_autosaves
WHERE project_id = ?
ORDER BY saved_at DESC, respondent_id ASC
`, strings.TrimSpace(projectID))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []storage.Snapshot
	for rows.Next() {
		var respondentID, payload string
		var savedAt int64
		if err := rows.Scan(&respondentID, &payload, &savedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap, err := decodeSnapshot(payload, savedAt)
		if err != nil {
			log.Printf("skip corrupt autosave %s/%s: %v", projectID, respondentID, err)
			continue
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snapshots, nil
}

// DeleteSnapshot removes one snapshot. Missing rows are not an error.
func (s *Store) DeleteSnapshot(ctx context.Context, projectID, respondentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM capture_autosaves
WHERE project_id = ? AND respondent_id = ?
`, strings.TrimSpace(projectID), strings.TrimSpace(respondentID))
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// DeleteProjectSnapshots removes every snapshot for a project.
func (s *Store) DeleteProjectSnapshots(ctx context.Context, projectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM capture_autosaves WHERE project_id = ?
`, strings.TrimSpace(projectID))
	if err != nil {
		return fmt.Errorf("delete project snapshots: %w", err)
	}
	return nil
}

func decodeSnapshot(payload string, savedAt int64) (storage.Snapshot, error) {
	var snap storage.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return storage.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = fromMillis(savedAt)
	}
	return snap, nil
}
