// Package telemetry records operational events for the capture subsystem.
package telemetry

import (
	"context"
	"time"

	"github.com/openfield/fieldsync/internal/capture/storage"
)

// Event kinds emitted by the capture subsystem.
const (
	KindSubmissionCompleted = "submission_completed"
	KindSubmissionQueued    = "submission_queued"
	KindOperationReplayed   = "operation_replayed"
	KindOperationConflict   = "operation_conflict_acked"
	KindOperationDead       = "operation_dead"
)

// Emitter records operational telemetry events.
type Emitter struct {
	store storage.EventStore
	clock func() time.Time
}

// NewEmitter creates a telemetry emitter. A nil store yields a no-op emitter.
func NewEmitter(store storage.EventStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records one event. It is a no-op when the store is nil.
func (e *Emitter) Emit(ctx context.Context, evt storage.Event) error {
	if e == nil || e.store == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		if e.clock == nil {
			evt.Timestamp = time.Now().UTC()
		} else {
			evt.Timestamp = e.clock().UTC()
		}
	}
	return e.store.AppendEvent(ctx, evt)
}
