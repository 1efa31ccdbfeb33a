// Package submit coordinates response submission: validation against the
// visible question set, respondent resolution, concurrent fan-out to the
// remote backend, and routing of failures into the durable sync queue.
package submit

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/openfield/fieldsync/internal/capture/cache"
	"github.com/openfield/fieldsync/internal/capture/domain"
	"github.com/openfield/fieldsync/internal/capture/remote"
	"github.com/openfield/fieldsync/internal/capture/storage"
	"github.com/openfield/fieldsync/internal/capture/syncqueue"
	"github.com/openfield/fieldsync/internal/capture/telemetry"
	"github.com/openfield/fieldsync/internal/platform/timeouts"
)

// ValidationError reports required visible questions left unanswered.
// Submission stops before any remote call.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required responses: %s", strings.Join(e.Missing, ", "))
}

// Input is everything the coordinator needs to submit one session.
type Input struct {
	ProjectID      string
	RespondentID   string
	RespondentType string
	Commodities    []string
	Country        string

	Questions []domain.Question
	Responses domain.ResponseMap

	// ExistingRespondentDBID is set when the session resumed a respondent
	// already created server-side.
	ExistingRespondentDBID string
	// PreExistingResponseQuestionIDs lists answers already persisted
	// server-side; they are excluded from the submission set.
	PreExistingResponseQuestionIDs []string
}

// Outcome summarizes a submission for user messaging ("X saved, Y will
// sync when you're back online").
type Outcome struct {
	RespondentDBID string
	Succeeded      int
	Queued         int
	// QueuedAll is true when nothing reached the backend and the entire
	// batch went to the sync queue.
	QueuedAll bool
}

// Coordinator submits sessions to the remote backend, falling back to the
// sync queue when connectivity fails.
type Coordinator struct {
	remote  remote.Store
	queue   *syncqueue.Queue
	mirror  *cache.Mirror
	emitter *telemetry.Emitter

	remoteCallTimeout time.Duration
	clock             func() time.Time
}

// NewCoordinator wires a coordinator. Mirror and emitter may be nil.
func NewCoordinator(store remote.Store, queue *syncqueue.Queue, mirror *cache.Mirror, emitter *telemetry.Emitter) *Coordinator {
	return &Coordinator{
		remote:            store,
		queue:             queue,
		mirror:            mirror,
		emitter:           emitter,
		remoteCallTimeout: timeouts.RemoteCall,
		clock:             time.Now,
	}
}

var tracer = otel.Tracer("fieldsync/capture/submit")

// Submit validates, resolves the respondent, and fans out one remote call
// per submittable response. Failures caused by connectivity or sync races
// are queued rather than surfaced.
func (c *Coordinator) Submit(ctx context.Context, in Input) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("project.id", in.ProjectID),
		attribute.String("respondent.id", in.RespondentID),
	)

	visible := domain.Visible(in.Questions, in.Responses)
	if missing := missingRequired(visible, in.Responses); len(missing) > 0 {
		return Outcome{}, &ValidationError{Missing: missing}
	}

	pending := submissionSet(visible, in)

	dbID := in.ExistingRespondentDBID
	if dbID == "" {
		created, err := c.createRespondent(ctx, in)
		if err != nil {
			// A conflict here is a sync race with another device or an
			// earlier replay; like a network failure it routes the whole
			// batch to the queue.
			if remote.Retryable(err) {
				return c.queueBatch(ctx, in, pending, "", true)
			}
			return Outcome{}, fmt.Errorf("create respondent: %w", err)
		}
		dbID = created.DatabaseID
	}

	if len(pending) == 0 {
		c.markCompleted(ctx, dbID, in.RespondentID)
		return Outcome{RespondentDBID: dbID}, nil
	}

	results := c.fanOut(ctx, dbID, pending)

	var failed []submission
	var firstHardErr error
	succeeded := 0
	allRetryable := true
	for i, err := range results {
		switch {
		case err == nil, remote.IsConflict(err):
			succeeded++
		default:
			failed = append(failed, pending[i])
			if !remote.IsNetwork(err) {
				allRetryable = false
				if firstHardErr == nil {
					firstHardErr = err
				}
			}
		}
	}

	if succeeded == 0 && len(failed) > 0 {
		if allRetryable {
			return c.queueBatch(ctx, in, pending, dbID, false)
		}
		return Outcome{}, fmt.Errorf("submit responses: %w", firstHardErr)
	}

	queued := 0
	for _, sub := range failed {
		if err := c.queueResponse(ctx, in, dbID, sub); err != nil {
			log.Printf("submit: queue response %s: %v", sub.questionID, err)
			continue
		}
		queued++
	}

	c.markCompleted(ctx, dbID, in.RespondentID)
	c.emit(ctx, telemetry.KindSubmissionCompleted, in.RespondentID,
		fmt.Sprintf("succeeded=%d queued=%d", succeeded, queued))

	return Outcome{RespondentDBID: dbID, Succeeded: succeeded, Queued: queued}, nil
}

// SaveDraft persists a named draft remotely, or queues it and mirrors it
// locally when connectivity fails. The returned bool reports whether the
// draft was queued instead of saved.
func (c *Coordinator) SaveDraft(ctx context.Context, data remote.DraftData) (bool, error) {
	if data.SavedAt.IsZero() {
		data.SavedAt = c.clock().UTC()
	}
	callCtx, cancel := context.WithTimeout(ctx, c.remoteCallTimeout)
	err := c.remote.SaveDraftResponse(callCtx, data)
	cancel()
	if err == nil {
		if c.mirror != nil {
			c.mirror.CacheDraft(ctx, data)
		}
		return false, nil
	}
	if !remote.Retryable(err) {
		return false, fmt.Errorf("save draft: %w", err)
	}

	key := draftKey(data.ProjectID, data.RespondentID)
	if qErr := c.queue.Enqueue(ctx, syncqueue.NamespaceDrafts, key, storage.OpUpdate, QueuedDraft{DraftData: data}, syncqueue.PriorityDraft); qErr != nil {
		return false, fmt.Errorf("queue draft: %w", qErr)
	}
	if c.mirror != nil {
		c.mirror.CacheDraft(ctx, data)
	}
	return true, nil
}

type submission struct {
	questionID string
	value      domain.ResponseValue
}

// missingRequired returns the ids of required visible questions without a
// usable answer, in question order.
func missingRequired(visible []domain.Question, responses domain.ResponseMap) []string {
	var missing []string
	for _, q := range visible {
		if q.Required && !responses.Answered(q.ID) {
			missing = append(missing, q.ID)
		}
	}
	return missing
}

// submissionSet is answered ∩ visible − pre-existing, in question order.
func submissionSet(visible []domain.Question, in Input) []submission {
	preExisting := make(map[string]bool, len(in.PreExistingResponseQuestionIDs))
	for _, id := range in.PreExistingResponseQuestionIDs {
		preExisting[id] = true
	}
	var out []submission
	for _, q := range visible {
		if preExisting[q.ID] || !in.Responses.Answered(q.ID) {
			continue
		}
		out = append(out, submission{questionID: q.ID, value: in.Responses[q.ID]})
	}
	return out
}

func (c *Coordinator) createRespondent(ctx context.Context, in Input) (remote.Respondent, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.remoteCallTimeout)
	defer cancel()
	return c.remote.CreateRespondent(callCtx, remote.RespondentData{
		ProjectID:      in.ProjectID,
		RespondentID:   in.RespondentID,
		RespondentType: in.RespondentType,
		Commodities:    in.Commodities,
		Country:        in.Country,
	})
}

// fanOut submits every pending response concurrently and waits for all of
// them to settle. Results are index-aligned with pending.
func (c *Coordinator) fanOut(ctx context.Context, dbID string, pending []submission) []error {
	results := make([]error, len(pending))
	var wg sync.WaitGroup
	for i, sub := range pending {
		wg.Add(1)
		go func(i int, sub submission) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, c.remoteCallTimeout)
			defer cancel()
			_, err := c.remote.SubmitResponse(callCtx, remote.ResponseData{
				RespondentDBID: dbID,
				QuestionID:     sub.questionID,
				Value:          sub.value,
			})
			results[i] = err
		}(i, sub)
	}
	wg.Wait()
	return results
}

// queueBatch enqueues the whole submission: the respondent create when the
// record does not exist yet, then every pending response. An empty dbID is
// resolved by the replayer once the respondent record exists.
func (c *Coordinator) queueBatch(ctx context.Context, in Input, pending []submission, dbID string, includeRespondent bool) (Outcome, error) {
	if includeRespondent {
		key := respondentKey(in.ProjectID, in.RespondentID)
		payload := QueuedRespondent{RespondentData: remote.RespondentData{
			ProjectID:      in.ProjectID,
			RespondentID:   in.RespondentID,
			RespondentType: in.RespondentType,
			Commodities:    in.Commodities,
			Country:        in.Country,
		}}
		if err := c.queue.Enqueue(ctx, syncqueue.NamespaceRespondents, key, storage.OpCreate, payload, syncqueue.PriorityRespondent); err != nil {
			return Outcome{}, fmt.Errorf("queue respondent: %w", err)
		}
	}
	queued := 0
	for _, sub := range pending {
		if err := c.queueResponse(ctx, in, dbID, sub); err != nil {
			return Outcome{}, fmt.Errorf("queue response %s: %w", sub.questionID, err)
		}
		queued++
	}
	c.emit(ctx, telemetry.KindSubmissionQueued, in.RespondentID,
		fmt.Sprintf("responses=%d", queued))
	return Outcome{Queued: queued, QueuedAll: true}, nil
}

func (c *Coordinator) queueResponse(ctx context.Context, in Input, dbID string, sub submission) error {
	key := responseKey(in.ProjectID, in.RespondentID, sub.questionID)
	payload := QueuedResponse{
		ProjectID:      in.ProjectID,
		RespondentID:   in.RespondentID,
		RespondentDBID: dbID,
		QuestionID:     sub.questionID,
		Value:          sub.value,
	}
	return c.queue.Enqueue(ctx, syncqueue.NamespaceResponses, key, storage.OpCreate, payload, syncqueue.PriorityResponse)
}

// markCompleted flips the respondent to completed. A failure here is logged
// and swallowed: the responses are already saved and the status update will
// be retried on the next session touch.
func (c *Coordinator) markCompleted(ctx context.Context, dbID, respondentID string) {
	callCtx, cancel := context.WithTimeout(ctx, c.remoteCallTimeout)
	defer cancel()
	if err := c.remote.UpdateRespondentStatus(callCtx, dbID, remote.StatusCompleted); err != nil {
		log.Printf("submit: mark respondent %s completed: %v", respondentID, err)
	}
}

func (c *Coordinator) emit(ctx context.Context, kind, subject, detail string) {
	if err := c.emitter.Emit(ctx, storage.Event{Kind: kind, Subject: subject, Detail: detail}); err != nil {
		log.Printf("submit: emit %s: %v", kind, err)
	}
}

func respondentKey(projectID, respondentID string) string {
	return fmt.Sprintf("respondent:%s:%s", projectID, respondentID)
}

func responseKey(projectID, respondentID, questionID string) string {
	return fmt.Sprintf("response:%s:%s:%s", projectID, respondentID, questionID)
}

func draftKey(projectID, respondentID string) string {
	return fmt.Sprintf("draft:%s:%s", projectID, respondentID)
}
