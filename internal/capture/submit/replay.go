package submit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openfield/fieldsync/internal/capture/domain"
	"github.com/openfield/fieldsync/internal/capture/remote"
	"github.com/openfield/fieldsync/internal/capture/storage"
	"github.com/openfield/fieldsync/internal/capture/syncqueue"
)

// QueuedRespondent is the queue payload for a deferred respondent create.
type QueuedRespondent struct {
	remote.RespondentData
}

// QueuedResponse is the queue payload for a deferred response submission.
// RespondentDBID is empty when the respondent create itself was queued; the
// replayer resolves it once the record exists.
type QueuedResponse struct {
	ProjectID      string               `json:"project_id"`
	RespondentID   string               `json:"respondent_id"`
	RespondentDBID string               `json:"respondent_db_id,omitempty"`
	QuestionID     string               `json:"question_id"`
	Value          domain.ResponseValue `json:"value"`
}

// QueuedDraft is the queue payload for a deferred draft save.
type QueuedDraft struct {
	remote.DraftData
}

// Replayer applies queued capture operations against the remote backend.
// Namespace priorities guarantee respondent creates replay before the
// responses that depend on them.
type Replayer struct {
	remote remote.Store
}

// NewReplayer wires a replayer over the remote backend.
func NewReplayer(store remote.Store) *Replayer {
	return &Replayer{remote: store}
}

var _ syncqueue.Replayer = (*Replayer)(nil)

// Replay dispatches one queued operation by namespace. Conflict errors
// propagate to the caller, which acks them as idempotent successes.
func (r *Replayer) Replay(ctx context.Context, op storage.QueuedOperation) error {
	switch op.Namespace {
	case syncqueue.NamespaceRespondents:
		var payload QueuedRespondent
		if err := json.Unmarshal([]byte(op.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("decode respondent payload: %w", err)
		}
		_, err := r.remote.CreateRespondent(ctx, payload.RespondentData)
		return err
	case syncqueue.NamespaceResponses:
		var payload QueuedResponse
		if err := json.Unmarshal([]byte(op.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("decode response payload: %w", err)
		}
		return r.replayResponse(ctx, payload)
	case syncqueue.NamespaceDrafts:
		var payload QueuedDraft
		if err := json.Unmarshal([]byte(op.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("decode draft payload: %w", err)
		}
		return r.remote.SaveDraftResponse(ctx, payload.DraftData)
	default:
		return fmt.Errorf("unknown queue namespace %q", op.Namespace)
	}
}

func (r *Replayer) replayResponse(ctx context.Context, payload QueuedResponse) error {
	dbID := payload.RespondentDBID
	if dbID == "" {
		resp, err := r.remote.FindRespondent(ctx, payload.ProjectID, payload.RespondentID)
		if err != nil {
			return fmt.Errorf("resolve respondent %s: %w", payload.RespondentID, err)
		}
		dbID = resp.DatabaseID
	}
	_, err := r.remote.SubmitResponse(ctx, remote.ResponseData{
		RespondentDBID: dbID,
		QuestionID:     payload.QuestionID,
		Value:          payload.Value,
	})
	return err
}
