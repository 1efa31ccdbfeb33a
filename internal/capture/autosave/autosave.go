// Package autosave persists in-progress session snapshots durably, coalescing
// bursts of edits through a debounce timer and forcing periodic saves as the
// answered count grows. Autosave is strictly best-effort: persistence
// failures are logged and never surface to the caller.
package autosave

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/openfield/fieldsync/internal/capture/storage"
)

// DefaultDebounce is the quiet window a burst of edits must close before a
// debounced save is written.
const DefaultDebounce = 2 * time.Second

// ForcedSaveInterval is the answered-question cadence that triggers an
// immediate save, bounding data loss under sustained rapid input.
const ForcedSaveInterval = 5

// Service writes session snapshots to durable local storage.
type Service struct {
	store    storage.SnapshotStore
	debounce time.Duration
	clock    func() time.Time

	mu             sync.Mutex
	timer          *time.Timer
	pending        *storage.Snapshot
	firedMultiples map[int]bool
}

// NewService creates an autosave service over the given snapshot store.
// A non-positive debounce falls back to DefaultDebounce.
func NewService(store storage.SnapshotStore, debounce time.Duration) *Service {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Service{
		store:          store,
		debounce:       debounce,
		clock:          time.Now,
		firedMultiples: make(map[int]bool),
	}
}

// Save writes the snapshot immediately. Failures are logged and swallowed;
// autosave must never block or break the capture flow.
func (s *Service) Save(ctx context.Context, snap storage.Snapshot) {
	if s == nil || s.store == nil {
		return
	}
	if snap.SavedAt.IsZero() {
		snap.SavedAt = s.clock().UTC()
	}
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		log.Printf("autosave %s/%s: %v", snap.ProjectID, snap.RespondentID, err)
	}
}

// DebouncedSave restarts the single debounce timer with this snapshot as the
// pending payload. A burst of calls within the window produces exactly one
// write carrying the latest snapshot.
func (s *Service) DebouncedSave(snap storage.Snapshot) {
	if s == nil || s.store == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = &snap
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		pending := s.pending
		s.pending = nil
		s.timer = nil
		s.mu.Unlock()
		if pending != nil {
			s.Save(context.Background(), *pending)
		}
	})
}

// ShouldSaveOnAnswerCount reports whether the answered count just crossed a
// multiple of ForcedSaveInterval that has not yet triggered a save this
// session. The caller follows a true result with an immediate Save.
func (s *Service) ShouldSaveOnAnswerCount(answeredCount int) bool {
	if answeredCount <= 0 || answeredCount%ForcedSaveInterval != 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firedMultiples[answeredCount] {
		return false
	}
	s.firedMultiples[answeredCount] = true
	return true
}

// Flush cancels any pending debounce and writes the snapshot immediately.
// Used when the session is about to be suspended.
func (s *Service) Flush(ctx context.Context, snap storage.Snapshot) {
	s.CancelPending()
	s.Save(ctx, snap)
}

// CancelPending drops the pending debounced write, if any.
func (s *Service) CancelPending() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
}

// Stop cancels the pending debounce and resets the cadence tracking.
func (s *Service) Stop() {
	s.CancelPending()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.firedMultiples = make(map[int]bool)
}

// List returns a project's snapshots newest-first.
func (s *Service) List(ctx context.Context, projectID string) ([]storage.Snapshot, error) {
	return s.store.ListSnapshots(ctx, projectID)
}

// MostRecent returns the newest snapshot for a project, or
// storage.ErrNotFound when none exists.
func (s *Service) MostRecent(ctx context.Context, projectID string) (storage.Snapshot, error) {
	snapshots, err := s.store.ListSnapshots(ctx, projectID)
	if err != nil {
		return storage.Snapshot{}, err
	}
	if len(snapshots) == 0 {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	return snapshots[0], nil
}

// Get returns one snapshot by key, or storage.ErrNotFound.
func (s *Service) Get(ctx context.Context, projectID, respondentID string) (storage.Snapshot, error) {
	return s.store.GetSnapshot(ctx, projectID, respondentID)
}

// Clear cancels any pending debounce and deletes the persisted snapshot for
// one session key.
func (s *Service) Clear(ctx context.Context, projectID, respondentID string) error {
	s.CancelPending()
	return s.store.DeleteSnapshot(ctx, projectID, respondentID)
}

// ClearAll deletes every persisted snapshot for a project.
func (s *Service) ClearAll(ctx context.Context, projectID string) error {
	s.CancelPending()
	return s.store.DeleteProjectSnapshots(ctx, projectID)
}
