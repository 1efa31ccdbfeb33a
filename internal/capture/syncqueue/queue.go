// Package syncqueue manages the durable queue of remote mutations that
// failed while offline and must be replayed once connectivity returns.
package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openfield/fieldsync/internal/capture/storage"
	"github.com/openfield/fieldsync/internal/platform/id"
)

// Queue namespaces, one per replayable mutation kind.
const (
	NamespaceRespondents = "respondents"
	NamespaceResponses   = "responses"
	NamespaceDrafts      = "drafts"
)

// Drain priorities. Respondent records must exist remotely before their
// responses can be attached, so they drain first.
const (
	PriorityRespondent = 0
	PriorityResponse   = 1
	PriorityDraft      = 2
)

// Queue enqueues failed remote mutations for later replay.
type Queue struct {
	store storage.QueueStore
	clock func() time.Time
	newID func() (string, error)
}

// NewQueue creates a queue backed by the given store.
func NewQueue(store storage.QueueStore) *Queue {
	return &Queue{
		store: store,
		clock: time.Now,
		newID: id.NewID,
	}
}

// Enqueue records a mutation for replay. The payload is JSON-marshaled
// and the idempotency key deduplicates retries of the same logical
// mutation: re-enqueueing refreshes the existing entry instead of
// adding a second one.
func (q *Queue) Enqueue(ctx context.Context, namespace, idempotencyKey string, opType storage.OpType, payload any, priority int) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal queue payload: %w", err)
	}
	opID, err := q.newID()
	if err != nil {
		return fmt.Errorf("generate operation id: %w", err)
	}
	now := q.clock().UTC()
	op := storage.QueuedOperation{
		ID:             opID,
		Namespace:      namespace,
		IdempotencyKey: idempotencyKey,
		OpType:         opType,
		PayloadJSON:    string(raw),
		Priority:       priority,
		Status:         storage.OperationPending,
		NextAttemptAt:  now,
		EnqueuedAt:     now,
		UpdatedAt:      now,
	}
	if err := q.store.EnqueueOperation(ctx, op); err != nil {
		return fmt.Errorf("enqueue %s operation: %w", namespace, err)
	}
	return nil
}

// Pending returns the number of pending entries in a namespace; an
// empty namespace counts all entries.
func (q *Queue) Pending(ctx context.Context, namespace string) (int, error) {
	return q.store.PendingCount(ctx, namespace)
}
