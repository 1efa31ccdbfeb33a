package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openfield/fieldsync/internal/capture/autosave"
	"github.com/openfield/fieldsync/internal/capture/domain"
	"github.com/openfield/fieldsync/internal/capture/remote"
	"github.com/openfield/fieldsync/internal/capture/storage"
	"github.com/openfield/fieldsync/internal/capture/submit"
)

type fakeSubmitter struct {
	submitOut submit.Outcome
	submitErr error
	inputs    []submit.Input

	draftQueued bool
	draftErr    error
	drafts      []remote.DraftData
}

func (f *fakeSubmitter) Submit(ctx context.Context, in submit.Input) (submit.Outcome, error) {
	f.inputs = append(f.inputs, in)
	return f.submitOut, f.submitErr
}

func (f *fakeSubmitter) SaveDraft(ctx context.Context, data remote.DraftData) (bool, error) {
	f.drafts = append(f.drafts, data)
	return f.draftQueued, f.draftErr
}

// memorySnapshots is an in-memory storage.SnapshotStore.
type memorySnapshots struct {
	snaps map[string]storage.Snapshot
	saves int
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{snaps: map[string]storage.Snapshot{}}
}

func snapKey(projectID, respondentID string) string {
	return projectID + "/" + respondentID
}

func (m *memorySnapshots) SaveSnapshot(ctx context.Context, snap storage.Snapshot) error {
	m.saves++
	m.snaps[snapKey(snap.ProjectID, snap.RespondentID)] = snap
	return nil
}

func (m *memorySnapshots) GetSnapshot(ctx context.Context, projectID, respondentID string) (storage.Snapshot, error) {
	snap, ok := m.snaps[snapKey(projectID, respondentID)]
	if !ok {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	return snap, nil
}

func (m *memorySnapshots) ListSnapshots(ctx context.Context, projectID string) ([]storage.Snapshot, error) {
	var out []storage.Snapshot
	for _, snap := range m.snaps {
		if snap.ProjectID == projectID {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (m *memorySnapshots) DeleteSnapshot(ctx context.Context, projectID, respondentID string) error {
	delete(m.snaps, snapKey(projectID, respondentID))
	return nil
}

func (m *memorySnapshots) DeleteProjectSnapshots(ctx context.Context, projectID string) error {
	for key, snap := range m.snaps {
		if snap.ProjectID == projectID {
			delete(m.snaps, key)
		}
	}
	return nil
}

var _ storage.SnapshotStore = (*memorySnapshots)(nil)

func baseQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Text: "Grow cocoa?", Type: "select", OrderIndex: 0, Required: true},
		{
			ID: "q2", Text: "Which certification?", Type: "text", OrderIndex: 1,
			Required: true, FollowUp: true,
			Logic: &domain.ConditionalLogic{
				ParentQuestionID: "q1",
				Operator:         domain.OperatorEquals,
				ComparisonValue:  "yes",
			},
		},
		{ID: "q3", Text: "Farm size", Type: "number", OrderIndex: 2},
	}
}

func newTestSession(t *testing.T, store storage.SnapshotStore, submitter Submitter, confirm ConfirmFunc) *Session {
	t.Helper()
	var svc *autosave.Service
	if store != nil {
		svc = autosave.NewService(store, 20*time.Millisecond)
		t.Cleanup(svc.Stop)
	}
	s, err := New(Config{
		ProjectID:      "proj-1",
		RespondentID:   "R-001",
		RespondentType: "farmer",
		Commodities:    []string{"cocoa"},
		Country:        "GH",
		Questions:      baseQuestions(),
		Autosave:       svc,
		Submitter:      submitter,
		Confirm:        confirm,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func TestNewRejectsInvalidQuestions(t *testing.T) {
	questions := []domain.Question{
		{ID: "q1", FollowUp: true}, // follow-up without logic
	}
	_, err := New(Config{Questions: questions, Submitter: &fakeSubmitter{}})
	if !errors.Is(err, domain.ErrFollowUpWithoutLogic) {
		t.Fatalf("err = %v, want ErrFollowUpWithoutLogic", err)
	}
}

func TestResponseChangeRecomputesVisibility(t *testing.T) {
	s := newTestSession(t, nil, &fakeSubmitter{}, nil)
	ctx := context.Background()

	if got := len(s.VisibleQuestions()); got != 2 {
		t.Fatalf("visible = %d, want 2 (follow-up hidden)", got)
	}
	s.HandleResponseChange(ctx, "q1", domain.Scalar("yes"))
	if got := len(s.VisibleQuestions()); got != 3 {
		t.Fatalf("visible = %d, want 3 after matching answer", got)
	}
	s.HandleResponseChange(ctx, "q1", domain.Scalar("no"))
	if got := len(s.VisibleQuestions()); got != 2 {
		t.Fatalf("visible = %d, want follow-up hidden again", got)
	}
}

func TestHiddenAnswerRetainedAndRestored(t *testing.T) {
	s := newTestSession(t, nil, &fakeSubmitter{}, nil)
	ctx := context.Background()

	s.HandleResponseChange(ctx, "q1", domain.Scalar("yes"))
	s.HandleResponseChange(ctx, "q2", domain.Scalar("organic"))
	s.HandleResponseChange(ctx, "q1", domain.Scalar("no")) // hides q2
	s.HandleResponseChange(ctx, "q1", domain.Scalar("yes"))

	value, ok := s.Response("q2")
	if !ok || value.Text() != "organic" {
		t.Fatalf("q2 answer = %v ok=%v, want retained organic", value, ok)
	}
}

func TestHandleNextBlocksOnRequiredUnanswered(t *testing.T) {
	s := newTestSession(t, nil, &fakeSubmitter{}, nil)
	ctx := context.Background()

	if err := s.HandleNext(); !errors.Is(err, ErrRequiredUnanswered) {
		t.Fatalf("err = %v, want ErrRequiredUnanswered", err)
	}
	s.HandleResponseChange(ctx, "q1", domain.Scalar("no"))
	if err := s.HandleNext(); err != nil {
		t.Fatalf("next after answering: %v", err)
	}
	if p := s.Progress(); p.Position != 2 {
		t.Fatalf("position = %d, want 2", p.Position)
	}
}

func TestHandlePreviousFloorsAtFirst(t *testing.T) {
	s := newTestSession(t, nil, &fakeSubmitter{}, nil)
	s.HandlePrevious()
	if p := s.Progress(); p.Position != 1 {
		t.Fatalf("position = %d, want 1", p.Position)
	}
}

func TestProgressCountsAnsweredVisible(t *testing.T) {
	s := newTestSession(t, nil, &fakeSubmitter{}, nil)
	ctx := context.Background()

	s.HandleResponseChange(ctx, "q1", domain.Scalar("yes"))
	s.HandleResponseChange(ctx, "q2", domain.Scalar("organic"))
	p := s.Progress()
	if p.Total != 3 || p.Answered != 2 {
		t.Fatalf("progress = %+v, want total 3 answered 2", p)
	}

	// Hiding q2 removes its answer from the visible count.
	s.HandleResponseChange(ctx, "q1", domain.Scalar("no"))
	p = s.Progress()
	if p.Total != 2 || p.Answered != 1 {
		t.Fatalf("progress = %+v, want total 2 answered 1", p)
	}
}

func TestSubmitFlushesAndClearsSnapshot(t *testing.T) {
	store := newMemorySnapshots()
	submitter := &fakeSubmitter{submitOut: submit.Outcome{RespondentDBID: "db-1", Succeeded: 2}}
	s := newTestSession(t, store, submitter, nil)
	ctx := context.Background()

	s.HandleResponseChange(ctx, "q1", domain.Scalar("no"))
	s.HandleResponseChange(ctx, "q3", domain.Scalar("12"))

	out, err := s.Submit(ctx)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Succeeded != 2 {
		t.Fatalf("outcome = %+v", out)
	}
	if len(submitter.inputs) != 1 {
		t.Fatalf("submit calls = %d, want 1", len(submitter.inputs))
	}
	in := submitter.inputs[0]
	if in.ProjectID != "proj-1" || in.RespondentID != "R-001" || len(in.Responses) != 2 {
		t.Fatalf("input = %+v", in)
	}
	if store.saves == 0 {
		t.Fatal("flush before submit must persist a snapshot")
	}
	if _, err := store.GetSnapshot(ctx, "proj-1", "R-001"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatal("snapshot must be cleared after accepted submission")
	}
	if s.HasAutoSave(ctx) {
		t.Fatal("HasAutoSave must be false after clear")
	}
}

func TestSubmitErrorKeepsSnapshot(t *testing.T) {
	store := newMemorySnapshots()
	submitter := &fakeSubmitter{submitErr: errors.New("server rejected")}
	s := newTestSession(t, store, submitter, nil)
	ctx := context.Background()

	s.HandleResponseChange(ctx, "q1", domain.Scalar("no"))
	if _, err := s.Submit(ctx); err == nil {
		t.Fatal("expected submit error")
	}
	if !s.HasAutoSave(ctx) {
		t.Fatal("failed submission must keep the snapshot")
	}
}

func TestSubmitRecordsRespondentDBID(t *testing.T) {
	store := newMemorySnapshots()
	submitter := &fakeSubmitter{submitOut: submit.Outcome{RespondentDBID: "db-9", Succeeded: 1}}
	s := newTestSession(t, store, submitter, nil)
	ctx := context.Background()

	s.HandleResponseChange(ctx, "q1", domain.Scalar("no"))
	if _, err := s.Submit(ctx); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := s.Submit(ctx); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if got := submitter.inputs[1].ExistingRespondentDBID; got != "db-9" {
		t.Fatalf("second submit db id = %q, want db-9", got)
	}
}

func TestSaveDraftCarriesCurrentAnswers(t *testing.T) {
	submitter := &fakeSubmitter{draftQueued: true}
	s := newTestSession(t, nil, submitter, nil)
	ctx := context.Background()

	s.HandleResponseChange(ctx, "q1", domain.Scalar("yes"))
	queued, err := s.SaveDraft(ctx, "midday break")
	if err != nil {
		t.Fatalf("save draft: %v", err)
	}
	if !queued {
		t.Fatal("queued flag must propagate from the submitter")
	}
	if len(submitter.drafts) != 1 {
		t.Fatalf("drafts = %d, want 1", len(submitter.drafts))
	}
	draft := submitter.drafts[0]
	if draft.Name != "midday break" || len(draft.Responses) != 1 {
		t.Fatalf("draft = %+v", draft)
	}
}

func TestResetResponsesRespectsConfirmation(t *testing.T) {
	store := newMemorySnapshots()
	ctx := context.Background()

	decline := func(ctx context.Context, prompt string) bool { return false }
	s := newTestSession(t, store, &fakeSubmitter{}, decline)
	s.HandleResponseChange(ctx, "q1", domain.Scalar("yes"))

	reset, err := s.ResetResponses(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reset {
		t.Fatal("declined confirmation must not reset")
	}
	if _, ok := s.Response("q1"); !ok {
		t.Fatal("answers must survive a declined reset")
	}
}

func TestResetResponsesClearsStateAndSnapshot(t *testing.T) {
	store := newMemorySnapshots()
	ctx := context.Background()

	accept := func(ctx context.Context, prompt string) bool { return true }
	s := newTestSession(t, store, &fakeSubmitter{}, accept)
	s.HandleResponseChange(ctx, "q1", domain.Scalar("yes"))
	s.FlushAutoSave(ctx)

	reset, err := s.ResetResponses(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !reset {
		t.Fatal("accepted confirmation must reset")
	}
	if _, ok := s.Response("q1"); ok {
		t.Fatal("answers must be cleared")
	}
	if s.HasAutoSave(ctx) {
		t.Fatal("snapshot must be deleted on reset")
	}
}

func TestLoadAutoSaveRestoresSession(t *testing.T) {
	store := newMemorySnapshots()
	ctx := context.Background()
	snap := storage.Snapshot{
		ProjectID:              "proj-1",
		RespondentID:           "R-001",
		Responses:              domain.ResponseMap{"q1": domain.Scalar("yes"), "q2": domain.Scalar("organic")},
		CurrentQuestionIndex:   1,
		ExistingRespondentDBID: "db-3",
		PreExistingResponseQuestionIDs: []string{"q1"},
	}
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	submitter := &fakeSubmitter{submitOut: submit.Outcome{RespondentDBID: "db-3"}}
	s := newTestSession(t, store, submitter, nil)
	if !s.HasAutoSave(ctx) {
		t.Fatal("HasAutoSave must see the seeded snapshot")
	}
	if err := s.LoadAutoSave(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if value, ok := s.Response("q2"); !ok || value.Text() != "organic" {
		t.Fatalf("restored q2 = %v ok=%v", value, ok)
	}
	if p := s.Progress(); p.Position != 2 {
		t.Fatalf("position = %d, want restored 2", p.Position)
	}

	if _, err := s.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	in := submitter.inputs[0]
	if in.ExistingRespondentDBID != "db-3" {
		t.Fatalf("db id = %q, want db-3", in.ExistingRespondentDBID)
	}
	if len(in.PreExistingResponseQuestionIDs) != 1 || in.PreExistingResponseQuestionIDs[0] != "q1" {
		t.Fatalf("pre-existing = %v, want [q1]", in.PreExistingResponseQuestionIDs)
	}
}

func TestLoadAutoSaveMissingSnapshot(t *testing.T) {
	s := newTestSession(t, newMemorySnapshots(), &fakeSubmitter{}, nil)
	if err := s.LoadAutoSave(context.Background()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
