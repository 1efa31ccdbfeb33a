// Package session is the stateful surface consumed by the presentation
// layer: it holds one respondent's in-progress answers, recomputes question
// visibility on every change, and delegates durability and submission to
// the injected collaborators.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/openfield/fieldsync/internal/capture/autosave"
	"github.com/openfield/fieldsync/internal/capture/domain"
	"github.com/openfield/fieldsync/internal/capture/remote"
	"github.com/openfield/fieldsync/internal/capture/storage"
	"github.com/openfield/fieldsync/internal/capture/submit"
)

// ErrRequiredUnanswered blocks forward navigation past a required question
// without a usable answer.
var ErrRequiredUnanswered = errors.New("required question unanswered")

// Submitter is the submission coordinator contract the session depends on.
type Submitter interface {
	Submit(ctx context.Context, in submit.Input) (submit.Outcome, error)
	SaveDraft(ctx context.Context, data remote.DraftData) (bool, error)
}

// ConfirmFunc asks the user to confirm a destructive action. The session
// never talks to a UI toolkit directly.
type ConfirmFunc func(ctx context.Context, prompt string) bool

// Config wires a session. All collaborators are injected; the session
// keeps no global state.
type Config struct {
	ProjectID      string
	RespondentID   string
	RespondentType string
	Commodities    []string
	Country        string
	Questions      []domain.Question

	Autosave  *autosave.Service
	Submitter Submitter
	Confirm   ConfirmFunc
}

// Progress summarizes where the respondent is within the visible set.
type Progress struct {
	// Position is the 1-based index of the current question.
	Position int
	Total    int
	Answered int
}

// Session is one respondent's in-progress survey run.
type Session struct {
	cfg Config

	mu           sync.Mutex
	responses    domain.ResponseMap
	index        int
	existingDBID string
	preExisting  []string
}

// New validates the question set and returns a fresh session.
func New(cfg Config) (*Session, error) {
	if cfg.Submitter == nil {
		return nil, errors.New("session: submitter is required")
	}
	if err := domain.ValidateQuestions(cfg.Questions); err != nil {
		return nil, fmt.Errorf("validate questions: %w", err)
	}
	return &Session{
		cfg:       cfg,
		responses: domain.ResponseMap{},
	}, nil
}

// VisibleQuestions returns the ordered subset of questions currently
// eligible to be shown, recomputed against the latest answers.
func (s *Session) VisibleQuestions() []domain.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleLocked()
}

func (s *Session) visibleLocked() []domain.Question {
	return domain.Visible(s.cfg.Questions, s.responses)
}

// Progress reports the current position within the visible set.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	visible := s.visibleLocked()
	answered := 0
	for _, q := range visible {
		if s.responses.Answered(q.ID) {
			answered++
		}
	}
	position := s.index + 1
	if len(visible) == 0 {
		position = 0
	}
	return Progress{Position: position, Total: len(visible), Answered: answered}
}

// Response returns the recorded answer for a question, if any.
func (s *Session) Response(questionID string) (domain.ResponseValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.responses[questionID]
	return value, ok
}

// HandleResponseChange records an answer and recomputes visibility
// synchronously, so dependent reads are never stale. Answers of questions
// that just became hidden stay in the map (un-hiding restores them) but
// never reach validation or submission. Each change schedules a debounced
// autosave; crossing a multiple of five answered questions forces an
// immediate one.
func (s *Session) HandleResponseChange(ctx context.Context, questionID string, value domain.ResponseValue) {
	s.mu.Lock()
	if value.IsEmpty() {
		delete(s.responses, questionID)
	} else {
		s.responses[questionID] = value
	}
	visible := s.visibleLocked()
	if s.index >= len(visible) && len(visible) > 0 {
		s.index = len(visible) - 1
	}
	snap := s.snapshotLocked(visible)
	answered := s.responses.AnsweredCount()
	s.mu.Unlock()

	if s.cfg.Autosave == nil {
		return
	}
	if s.cfg.Autosave.ShouldSaveOnAnswerCount(answered) {
		s.cfg.Autosave.Save(ctx, snap)
		return
	}
	s.cfg.Autosave.DebouncedSave(snap)
}

// HandleNext advances to the next visible question. It refuses to move
// past a required question without an answer.
func (s *Session) HandleNext() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	visible := s.visibleLocked()
	if len(visible) == 0 {
		return nil
	}
	if s.index < len(visible) {
		current := visible[s.index]
		if current.Required && !s.responses.Answered(current.ID) {
			return fmt.Errorf("%w: %s", ErrRequiredUnanswered, current.ID)
		}
	}
	if s.index < len(visible)-1 {
		s.index++
	}
	return nil
}

// HandlePrevious steps back one visible question, flooring at the first.
func (s *Session) HandlePrevious() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index > 0 {
		s.index--
	}
}

// Submit flushes any pending autosave, runs the submission coordinator,
// and clears the persisted snapshot once the submission is accepted
// (fully saved or fully queued).
func (s *Session) Submit(ctx context.Context) (submit.Outcome, error) {
	s.FlushAutoSave(ctx)

	s.mu.Lock()
	in := submit.Input{
		ProjectID:                      s.cfg.ProjectID,
		RespondentID:                   s.cfg.RespondentID,
		RespondentType:                 s.cfg.RespondentType,
		Commodities:                    s.cfg.Commodities,
		Country:                        s.cfg.Country,
		Questions:                      s.cfg.Questions,
		Responses:                      s.responses.Clone(),
		ExistingRespondentDBID:         s.existingDBID,
		PreExistingResponseQuestionIDs: s.preExisting,
	}
	s.mu.Unlock()

	out, err := s.cfg.Submitter.Submit(ctx, in)
	if err != nil {
		return submit.Outcome{}, err
	}
	if out.RespondentDBID != "" {
		s.mu.Lock()
		s.existingDBID = out.RespondentDBID
		s.mu.Unlock()
	}
	if clearErr := s.ClearAutoSave(ctx); clearErr != nil {
		log.Printf("session: clear snapshot after submit: %v", clearErr)
	}
	return out, nil
}

// SaveDraft sends the current answers as a named draft, queueing it when
// offline. The reported bool is true when the draft was queued.
func (s *Session) SaveDraft(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	data := remote.DraftData{
		ProjectID:    s.cfg.ProjectID,
		RespondentID: s.cfg.RespondentID,
		Name:         name,
		Responses:    s.responses.Clone(),
		SavedAt:      time.Now().UTC(),
	}
	s.mu.Unlock()
	return s.cfg.Submitter.SaveDraft(ctx, data)
}

// ResetResponses clears every answer after user confirmation: the pending
// debounce is canceled and the persisted snapshot deleted. It reports
// whether the reset happened.
func (s *Session) ResetResponses(ctx context.Context) (bool, error) {
	if s.cfg.Confirm != nil && !s.cfg.Confirm(ctx, "Discard all responses for this session?") {
		return false, nil
	}
	s.mu.Lock()
	s.responses = domain.ResponseMap{}
	s.index = 0
	s.mu.Unlock()

	if s.cfg.Autosave == nil {
		return true, nil
	}
	s.cfg.Autosave.CancelPending()
	if err := s.cfg.Autosave.Clear(ctx, s.cfg.ProjectID, s.cfg.RespondentID); err != nil {
		return true, fmt.Errorf("clear snapshot: %w", err)
	}
	return true, nil
}

// HasAutoSave reports whether a recoverable snapshot exists for this
// session's key.
func (s *Session) HasAutoSave(ctx context.Context) bool {
	if s.cfg.Autosave == nil {
		return false
	}
	_, err := s.cfg.Autosave.Get(ctx, s.cfg.ProjectID, s.cfg.RespondentID)
	return err == nil
}

// LoadAutoSave restores answers, position, and server-side identity from
// the persisted snapshot.
func (s *Session) LoadAutoSave(ctx context.Context) error {
	if s.cfg.Autosave == nil {
		return storage.ErrNotFound
	}
	snap, err := s.cfg.Autosave.Get(ctx, s.cfg.ProjectID, s.cfg.RespondentID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = snap.Responses.Clone()
	if s.responses == nil {
		s.responses = domain.ResponseMap{}
	}
	s.index = snap.CurrentQuestionIndex
	s.existingDBID = snap.ExistingRespondentDBID
	s.preExisting = snap.PreExistingResponseQuestionIDs
	visible := s.visibleLocked()
	if s.index >= len(visible) {
		s.index = 0
	}
	return nil
}

// ClearAutoSave deletes this session's persisted snapshot.
func (s *Session) ClearAutoSave(ctx context.Context) error {
	if s.cfg.Autosave == nil {
		return nil
	}
	s.cfg.Autosave.CancelPending()
	return s.cfg.Autosave.Clear(ctx, s.cfg.ProjectID, s.cfg.RespondentID)
}

// FlushAutoSave cancels any pending debounce and writes the current state
// immediately. Used when the app is about to be suspended.
func (s *Session) FlushAutoSave(ctx context.Context) {
	if s.cfg.Autosave == nil {
		return
	}
	s.mu.Lock()
	snap := s.snapshotLocked(s.visibleLocked())
	s.mu.Unlock()
	s.cfg.Autosave.Flush(ctx, snap)
}

func (s *Session) snapshotLocked(visible []domain.Question) storage.Snapshot {
	return storage.Snapshot{
		ProjectID:                      s.cfg.ProjectID,
		RespondentID:                   s.cfg.RespondentID,
		RespondentType:                 s.cfg.RespondentType,
		Commodities:                    s.cfg.Commodities,
		Country:                        s.cfg.Country,
		Responses:                      s.responses.Clone(),
		CurrentQuestionIndex:           s.index,
		TotalQuestions:                 len(visible),
		ExistingRespondentDBID:         s.existingDBID,
		PreExistingResponseQuestionIDs: s.preExisting,
	}
}
