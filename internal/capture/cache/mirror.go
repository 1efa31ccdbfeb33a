// Package cache mirrors server collections into durable local storage so
// reads succeed offline. Every successful online read is mirrored
// opportunistically; every offline or failed read falls back here. The
// mirror is the only source of truth available offline, so its absence is a
// distinct state, not a generic error.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/openfield/fieldsync/internal/capture/domain"
	"github.com/openfield/fieldsync/internal/capture/remote"
	"github.com/openfield/fieldsync/internal/capture/storage"
)

// ErrNotCached indicates the requested collection has never been mirrored:
// the data is not available offline.
var ErrNotCached = errors.New("not available offline")

// DefaultTTL is how long a mirror counts as fresh.
const DefaultTTL = 24 * time.Hour

const (
	keyProjects       = "projects"
	keyQuestionPrefix = "questions/"
	keyDraftPrefix    = "drafts/"
)

// Mirror reads and writes last-known-good copies of server collections.
type Mirror struct {
	store storage.CacheStore
	ttl   time.Duration
	clock func() time.Time
}

// NewMirror creates a mirror over the given cache store. A non-positive ttl
// falls back to DefaultTTL.
func NewMirror(store storage.CacheStore, ttl time.Duration) *Mirror {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Mirror{store: store, ttl: ttl, clock: time.Now}
}

// CacheProjects mirrors the project collection. Failures are logged and
// swallowed: caching is opportunistic and must never break an online read.
func (m *Mirror) CacheProjects(ctx context.Context, projects []remote.Project) {
	m.put(ctx, keyProjects, projects)
}

// Projects returns the mirrored project collection, or ErrNotCached when no
// usable mirror exists.
func (m *Mirror) Projects(ctx context.Context) ([]remote.Project, error) {
	var projects []remote.Project
	if err := m.get(ctx, keyProjects, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// Project returns one mirrored project by id. A missing mirror yields
// ErrNotCached; a mirrored collection without the id yields
// storage.ErrNotFound.
func (m *Mirror) Project(ctx context.Context, id string) (remote.Project, error) {
	projects, err := m.Projects(ctx)
	if err != nil {
		return remote.Project{}, err
	}
	for _, project := range projects {
		if project.ID == id {
			return project, nil
		}
	}
	return remote.Project{}, storage.ErrNotFound
}

// CacheQuestions mirrors a project's question list.
func (m *Mirror) CacheQuestions(ctx context.Context, projectID string, questions []domain.Question) {
	m.put(ctx, keyQuestionPrefix+projectID, questions)
}

// Questions returns a project's mirrored question list, or ErrNotCached.
func (m *Mirror) Questions(ctx context.Context, projectID string) ([]domain.Question, error) {
	var questions []domain.Question
	if err := m.get(ctx, keyQuestionPrefix+projectID, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// CacheDraft records a draft locally so it is listed even before the sync
// queue drains. Drafts are keyed by respondent within their project.
func (m *Mirror) CacheDraft(ctx context.Context, draft remote.DraftData) {
	drafts, err := m.Drafts(ctx, draft.ProjectID)
	if err != nil && !errors.Is(err, ErrNotCached) {
		return
	}
	replaced := false
	for i, existing := range drafts {
		if existing.RespondentID == draft.RespondentID {
			drafts[i] = draft
			replaced = true
			break
		}
	}
	if !replaced {
		drafts = append(drafts, draft)
	}
	m.put(ctx, keyDraftPrefix+draft.ProjectID, drafts)
}

// Drafts returns a project's locally cached drafts, or ErrNotCached.
func (m *Mirror) Drafts(ctx context.Context, projectID string) ([]remote.DraftData, error) {
	var drafts []remote.DraftData
	if err := m.get(ctx, keyDraftPrefix+projectID, &drafts); err != nil {
		return nil, err
	}
	return drafts, nil
}

// Valid reports whether the mirror was refreshed within its TTL.
func (m *Mirror) Valid(ctx context.Context) bool {
	last, err := m.store.LastCacheUpdate(ctx)
	if err != nil {
		log.Printf("cache validity check: %v", err)
		return false
	}
	if last.IsZero() {
		return false
	}
	return m.clock().UTC().Sub(last) < m.ttl
}

func (m *Mirror) put(ctx context.Context, key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		log.Printf("cache %s: encode: %v", key, err)
		return
	}
	collection := storage.CachedCollection{
		Key:         key,
		PayloadJSON: string(payload),
		UpdatedAt:   m.clock().UTC(),
	}
	if err := m.store.PutCollection(ctx, collection); err != nil {
		log.Printf("cache %s: %v", key, err)
	}
}

// get decodes a mirrored collection into target. Any failure that leaves no
// usable mirror (missing row, storage error, corrupt payload) reports
// ErrNotCached so callers surface one distinct offline state.
func (m *Mirror) get(ctx context.Context, key string, target any) error {
	collection, err := m.store.GetCollection(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("read cache %s: %v", key, err)
		}
		return fmt.Errorf("%w: %s", ErrNotCached, key)
	}
	if err := json.Unmarshal([]byte(collection.PayloadJSON), target); err != nil {
		log.Printf("decode cache %s: %v", key, err)
		return fmt.Errorf("%w: %s", ErrNotCached, key)
	}
	return nil
}
