// Package storage defines the durable local records and store contracts for
// the capture subsystem: autosave snapshots, the offline cache mirror, the
// sync queue, and operational events.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/openfield/fieldsync/internal/capture/domain"
)

// ErrNotFound indicates a missing record.
var ErrNotFound = errors.New("not found")

// Snapshot is a durable copy of an in-progress session, sufficient to resume
// it exactly. One snapshot exists per (ProjectID, RespondentID); every save
// supersedes the previous one in place.
type Snapshot struct {
	ProjectID            string             `json:"project_id"`
	RespondentID         string             `json:"respondent_id"`
	RespondentType       string             `json:"respondent_type"`
	Commodities          []string           `json:"commodities"`
	Country              string             `json:"country"`
	Responses            domain.ResponseMap `json:"responses"`
	CurrentQuestionIndex int                `json:"current_question_index"`
	TotalQuestions       int                `json:"total_questions"`
	// ExistingRespondentDBID is set when resuming a respondent record that
	// was already created server-side; empty for a fresh session.
	ExistingRespondentDBID string `json:"existing_respondent_db_id,omitempty"`
	// PreExistingResponseQuestionIDs lists questions whose answers are
	// already persisted server-side and must never be resubmitted.
	PreExistingResponseQuestionIDs []string  `json:"pre_existing_response_question_ids,omitempty"`
	SavedAt                        time.Time `json:"saved_at"`
}

// SnapshotStore persists autosave snapshots.
type SnapshotStore interface {
	// SaveSnapshot upserts the snapshot for its (project, respondent) key.
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	// GetSnapshot returns one snapshot or ErrNotFound.
	GetSnapshot(ctx context.Context, projectID, respondentID string) (Snapshot, error)
	// ListSnapshots returns a project's snapshots newest-first, skipping
	// rows whose payload no longer parses.
	ListSnapshots(ctx context.Context, projectID string) ([]Snapshot, error)
	// DeleteSnapshot removes one snapshot. Deleting a missing snapshot is
	// not an error.
	DeleteSnapshot(ctx context.Context, projectID, respondentID string) error
	// DeleteProjectSnapshots removes every snapshot for a project.
	DeleteProjectSnapshots(ctx context.Context, projectID string) error
}

// OpType distinguishes queued mutation kinds.
type OpType string

const (
	// OpCreate creates a remote record on replay.
	OpCreate OpType = "create"
	// OpUpdate updates a remote record on replay.
	OpUpdate OpType = "update"
)

// OperationStatus is the queue lifecycle state of an entry.
type OperationStatus string

const (
	// OperationPending marks an entry awaiting replay.
	OperationPending OperationStatus = "pending"
	// OperationDead marks an entry that exhausted its replay attempts.
	OperationDead OperationStatus = "dead"
)

// QueuedOperation is a durable record of a mutation that could not be
// applied immediately and must be replayed once connectivity returns.
type QueuedOperation struct {
	ID             string
	Namespace      string
	IdempotencyKey string
	OpType         OpType
	PayloadJSON    string
	// Priority orders draining; lower values drain first, FIFO within a
	// tier.
	Priority      int
	Status        OperationStatus
	AttemptCount  int
	NextAttemptAt time.Time
	LastError     string
	EnqueuedAt    time.Time
	UpdatedAt     time.Time
}

// QueueStore persists the durable sync queue.
type QueueStore interface {
	// EnqueueOperation inserts the operation, or refreshes the pending
	// entry sharing its idempotency key instead of duplicating it.
	EnqueueOperation(ctx context.Context, op QueuedOperation) error
	// DueOperations returns pending entries due at now, in drain order:
	// priority ascending, then enqueue time, then id.
	DueOperations(ctx context.Context, now time.Time, limit int) ([]QueuedOperation, error)
	// AckOperation removes a successfully applied (or conflict-acked)
	// entry.
	AckOperation(ctx context.Context, id string) error
	// RescheduleOperation records a failed replay attempt and its next
	// due time.
	RescheduleOperation(ctx context.Context, id string, attemptCount int, nextAttemptAt time.Time, lastError string) error
	// MarkOperationDead parks an entry that exhausted its attempts.
	MarkOperationDead(ctx context.Context, id string, lastError string) error
	// PendingCount returns the number of pending entries in a namespace;
	// an empty namespace counts everything.
	PendingCount(ctx context.Context, namespace string) (int, error)
}

// CachedCollection is one mirrored server collection, stored opaquely as
// JSON together with its last successful refresh time.
type CachedCollection struct {
	Key         string
	PayloadJSON string
	UpdatedAt   time.Time
}

// CacheStore persists last-known-good mirrors of server collections.
type CacheStore interface {
	// PutCollection upserts a mirrored collection.
	PutCollection(ctx context.Context, collection CachedCollection) error
	// GetCollection returns a mirrored collection or ErrNotFound.
	GetCollection(ctx context.Context, key string) (CachedCollection, error)
	// LastCacheUpdate returns the most recent refresh time across all
	// mirrored collections, or the zero time when nothing is cached.
	LastCacheUpdate(ctx context.Context) (time.Time, error)
}

// Event is one operational telemetry record.
type Event struct {
	ID        int64
	Kind      string
	Subject   string
	Detail    string
	Timestamp time.Time
}

// EventStore persists operational telemetry events.
type EventStore interface {
	AppendEvent(ctx context.Context, evt Event) error
	ListEvents(ctx context.Context, limit int) ([]Event, error)
}
