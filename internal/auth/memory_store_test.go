package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	token, err := store.Create(ctx, &Session{Username: "alice", Name: "Alice"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sess, err := store.Get(ctx, token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if sess.Username != "alice" || sess.Name != "Alice" {
		t.Errorf("unexpected session: %+v", sess)
	}

	if _, err := store.Get(ctx, "no-such-token"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryStoreGetReturnsIsolatedCopy(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()

	token, err := store.Create(ctx, &Session{Username: "alice"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := store.MarkStarted(ctx, token, 1, at); err != nil {
		t.Fatalf("MarkStarted failed: %v", err)
	}

	// A copy handed out now must not observe later MarkStarted writes
	before, err := store.Get(ctx, token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if err := store.MarkStarted(ctx, token, 2, at.Add(time.Minute)); err != nil {
		t.Fatalf("second MarkStarted failed: %v", err)
	}
	if before.StartedAt(2) != nil {
		t.Error("session copy shares the Started map with the store")
	}

	// Mutating a returned copy must not leak into the store
	before.Started["flag9"] = time.Now()
	fresh, err := store.Get(ctx, token)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fresh.StartedAt(9) != nil {
		t.Error("mutation of a session copy leaked into the store")
	}
	if fresh.StartedAt(1) == nil || !fresh.StartedAt(1).Equal(at) {
		t.Error("stored start time lost")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Nanosecond)
	ctx := context.Background()

	token, err := store.Create(ctx, &Session{Username: "alice"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	time.Sleep(time.Millisecond)

	if _, err := store.Get(ctx, token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after TTL, got %v", err)
	}
}
