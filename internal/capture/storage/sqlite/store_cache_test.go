package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openfield/fieldsync/internal/capture/storage"
)

func TestCacheCollectionRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	updatedAt := time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC)

	put := storage.CachedCollection{
		Key:         "projects",
		PayloadJSON: `[{"id":"proj-1","name":"Coffee Census"}]`,
		UpdatedAt:   updatedAt,
	}
	if err := store.PutCollection(ctx, put); err != nil {
		t.Fatalf("put collection: %v", err)
	}

	got, err := store.GetCollection(ctx, "projects")
	if err != nil {
		t.Fatalf("get collection: %v", err)
	}
	if got.PayloadJSON != put.PayloadJSON {
		t.Fatalf("payload mismatch: %s", got.PayloadJSON)
	}
	if !got.UpdatedAt.Equal(updatedAt) {
		t.Fatalf("updated at = %v, want %v", got.UpdatedAt, updatedAt)
	}

	// Upsert replaces payload and refresh time.
	put.PayloadJSON = `[]`
	put.UpdatedAt = updatedAt.Add(time.Hour)
	if err := store.PutCollection(ctx, put); err != nil {
		t.Fatalf("re-put collection: %v", err)
	}
	got, err = store.GetCollection(ctx, "projects")
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if got.PayloadJSON != `[]` || !got.UpdatedAt.Equal(updatedAt.Add(time.Hour)) {
		t.Fatalf("upsert mismatch: %+v", got)
	}
}

func TestGetCollectionNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetCollection(context.Background(), "questions/missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLastCacheUpdate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	last, err := store.LastCacheUpdate(ctx)
	if err != nil {
		t.Fatalf("last update on empty cache: %v", err)
	}
	if !last.IsZero() {
		t.Fatalf("expected zero time on empty cache, got %v", last)
	}

	older := time.Date(2026, 8, 22, 10, 0, 0, 0, time.UTC)
	newer := older.Add(2 * time.Hour)
	collections := []storage.CachedCollection{
		{Key: "projects", PayloadJSON: `[]`, UpdatedAt: older},
		{Key: "questions/proj-1", PayloadJSON: `[]`, UpdatedAt: newer},
	}
	for _, c := range collections {
		if err := store.PutCollection(ctx, c); err != nil {
			t.Fatalf("put %s: %v", c.Key, err)
		}
	}

	last, err = store.LastCacheUpdate(ctx)
	if err != nil {
		t.Fatalf("last update: %v", err)
	}
	if !last.Equal(newer) {
		t.Fatalf("last update = %v, want %v", last, newer)
	}
}

func TestEventAppendAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC)

	events := []storage.Event{
		{Kind: "submission_completed", Subject: "resp-1", Detail: "8 saved, 2 queued", Timestamp: base},
		{Kind: "operation_dead", Subject: "op-9", Detail: "max attempts", Timestamp: base.Add(time.Minute)},
	}
	for _, evt := range events {
		if err := store.AppendEvent(ctx, evt); err != nil {
			t.Fatalf("append %s: %v", evt.Kind, err)
		}
	}

	listed, err := store.ListEvents(ctx, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("events len = %d, want 2", len(listed))
	}
	if listed[0].Kind != "operation_dead" || listed[1].Kind != "submission_completed" {
		t.Fatalf("expected newest-first order, got %s then %s", listed[0].Kind, listed[1].Kind)
	}
}
