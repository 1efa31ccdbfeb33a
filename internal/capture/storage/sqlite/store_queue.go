package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openfield/fieldsync/internal/capture/storage"
)

// EnqueueOperation inserts a queued operation. Re-enqueuing the same
// idempotency key refreshes the existing entry (payload, priority, due time)
// and revives a dead entry to pending, never duplicating it.
func (s *Store) EnqueueOperation(ctx context.Context, op storage.QueuedOperation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	op.ID = strings.TrimSpace(op.ID)
	op.Namespace = strings.TrimSpace(op.Namespace)
	op.IdempotencyKey = strings.TrimSpace(op.IdempotencyKey)
	if op.ID == "" {
		return fmt.Errorf("operation id is required")
	}
	if op.Namespace == "" {
		return fmt.Errorf("operation namespace is required")
	}
	if op.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key is required")
	}
	if op.OpType != storage.OpCreate && op.OpType != storage.OpUpdate {
		return fmt.Errorf("invalid op type %q", op.OpType)
	}
	if op.Status == "" {
		op.Status = storage.OperationPending
	}
	now := time.Now().UTC()
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = now
	}
	if op.NextAttemptAt.IsZero() {
		op.NextAttemptAt = op.EnqueuedAt
	}
	if op.UpdatedAt.IsZero() {
		op.UpdatedAt = now
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO capture_sync_queue (
	id,
	namespace,
	idempotency_key,
	op_type,
	payload_json,
	priority,
	status,
	attempt_count,
	next_attempt_at,
	last_error,
	enqueued_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(idempotency_key) DO UPDATE SET
	payload_json = excluded.payload_json,
	priority = excluded.priority,
	op_type = excluded.op_type,
	status = excluded.status,
	attempt_count = 0,
	next_attempt_at = excluded.next_attempt_at,
	last_error = '',
	updated_at = excluded.updated_at
`,
		op.ID,
		op.Namespace,
		op.IdempotencyKey,
		string(op.OpType),
		op.PayloadJSON,
		op.Priority,
		string(op.Status),
		op.AttemptCount,
		toMillis(op.NextAttemptAt),
		op.LastError,
		toMillis(op.EnqueuedAt),
		toMillis(op.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("enqueue operation: %w", err)
	}
	return nil
}

// DueOperations returns pending entries due at now, in drain order: priority
// ascending, FIFO within a tier, id as the final tiebreaker.
func (s *Store) DueOperations(ctx context.Context, now time.Time, limit int) ([]storage.QueuedOperation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id,
	namespace,
	idempotency_key,
	op_type,
	payload_json,
	priority,
	status,
	attempt_count,
	next_attempt_at,
	last_error,
	enqueued_at,
	updated_at
FROM capture_sync_queue
WHERE status = ? AND next_attempt_at <= ?
ORDER BY priority ASC, enqueued_at ASC, id ASC
LIMIT ?
`, string(storage.OperationPending), toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("list due operations: %w", err)
	}
	defer rows.Close()

	ops := make([]storage.QueuedOperation, 0, limit)
	for rows.Next() {
		var op storage.QueuedOperation
		var opType, status string
		var nextAttemptAt, enqueuedAt, updatedAt int64
		if err := rows.Scan(
			&op.ID,
			&op.Namespace,
			&op.IdempotencyKey,
			&opType,
			&op.PayloadJSON,
			&op.Priority,
			&status,
			&op.AttemptCount,
			&nextAttemptAt,
			&op.LastError,
			&enqueuedAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		op.OpType = storage.OpType(opType)
		op.Status = storage.OperationStatus(status)
		op.NextAttemptAt = fromMillis(nextAttemptAt)
		op.EnqueuedAt = fromMillis(enqueuedAt)
		op.UpdatedAt = fromMillis(updatedAt)
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return ops, nil
}

// AckOperation removes an applied entry. A replay rejected with a uniqueness
// conflict is acked the same way: the target already exists, so the apply
// already happened.
func (s *Store) AckOperation(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM capture_sync_queue WHERE id = ?
`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("ack operation: %w", err)
	}
	return nil
}

// RescheduleOperation records a failed replay attempt and its next due time.
func (s *Store) RescheduleOperation(ctx context.Context, id string, attemptCount int, nextAttemptAt time.Time, lastError string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE capture_sync_queue
SET attempt_count = ?, next_attempt_at = ?, last_error = ?, updated_at = ?
WHERE id = ? AND status = ?
`,
		attemptCount,
		toMillis(nextAttemptAt),
		lastError,
		toMillis(time.Now().UTC()),
		strings.TrimSpace(id),
		string(storage.OperationPending),
	)
	if err != nil {
		return fmt.Errorf("reschedule operation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reschedule operation: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkOperationDead parks an entry that exhausted its replay attempts.
func (s *Store) MarkOperationDead(ctx context.Context, id string, lastError string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE capture_sync_queue
SET status = ?, last_error = ?, updated_at = ?
WHERE id = ?
`,
		string(storage.OperationDead),
		lastError,
		toMillis(time.Now().UTC()),
		strings.TrimSpace(id),
	)
	if err != nil {
		return fmt.Errorf("mark operation dead: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark operation dead: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// PendingCount returns the number of pending entries in a namespace; an
// empty namespace counts everything.
func (s *Store) PendingCount(ctx context.Context, namespace string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.ready(); err != nil {
		return 0, err
	}

	namespace = strings.TrimSpace(namespace)
	query := `SELECT COUNT(*) FROM capture_sync_queue WHERE status = ?`
	args := []any{string(storage.OperationPending)}
	if namespace != "" {
		query += ` AND namespace = ?`
		args = append(args, namespace)
	}

	var count int
	if err := s.sqlDB.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending operations: %w", err)
	}
	return count, nil
}
