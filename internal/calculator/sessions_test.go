package calculator

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func mustCreate(t *testing.T, store *SessionStore) *Session {
	t.Helper()

	s, err := store.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return s
}

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore(nil)
	t.Cleanup(store.Close)

	s := mustCreate(t, store)
	if _, err := uuid.Parse(s.ID); err != nil {
		t.Fatalf("expected UUID session id, got %q: %v", s.ID, err)
	}

	got, err := store.Get(s.ID)
	if err != nil {
		t.Fatalf("Get(%q): %v", s.ID, err)
	}
	if got != s {
		t.Fatal("expected Get to return the created session")
	}

	if err := store.Delete(s.ID); err != nil {
		t.Fatalf("Delete(%q): %v", s.ID, err)
	}
	if _, err := store.Get(s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
	if err := store.Delete(s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on second delete, got %v", err)
	}
}

func TestSessionStoreIsolatesSessions(t *testing.T) {
	store := NewSessionStore(nil, WithControllerOptions(WithHistoryLimit(2)))
	t.Cleanup(store.Close)

	a := mustCreate(t, store)
	b := mustCreate(t, store)

	if _, err := a.Dispatch(Action{Kind: ActionAppend, Value: "9"}); err != nil {
		t.Fatal(err)
	}

	if got := b.View().Expression; got != "0" {
		t.Fatalf("expected session b to be untouched, got %q", got)
	}
	if got := a.View().Expression; got != "9" {
		t.Fatalf("expected session a expression %q, got %q", "9", got)
	}
}

func TestSessionStoreConcurrentUse(t *testing.T) {
	store := NewSessionStore(nil)
	t.Cleanup(store.Close)

	s := mustCreate(t, store)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = s.Dispatch(Action{Kind: ActionAppend, Value: "1"})
				_ = store.Len()
				_, _ = store.Get(s.ID)
			}
		}()
	}
	wg.Wait()

	if got := len(s.View().Expression); got != 400 {
		t.Fatalf("expected 400 characters, got %d", got)
	}
}

func TestSessionStoreMaxSessions(t *testing.T) {
	store := NewSessionStore(nil, WithMaxSessions(2))
	t.Cleanup(store.Close)

	a := mustCreate(t, store)
	mustCreate(t, store)

	if _, err := store.Create(); !errors.Is(err, ErrSessionLimit) {
		t.Fatalf("expected ErrSessionLimit, got %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", store.Len())
	}

	if err := store.Delete(a.ID); err != nil {
		t.Fatal(err)
	}
	mustCreate(t, store)
}

func TestSessionStoreExpireDropsIdleSessions(t *testing.T) {
	store := NewSessionStore(nil, WithIdleTimeout(time.Hour))
	t.Cleanup(store.Close)

	stale := mustCreate(t, store)
	fresh := mustCreate(t, store)

	later := time.Now().Add(2 * time.Hour)
	fresh.touch(later)

	if n := store.Expire(later); n != 1 {
		t.Fatalf("expected 1 expired session, got %d", n)
	}
	if _, err := store.Get(stale.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected stale session to be gone, got %v", err)
	}
	if _, err := store.Get(fresh.ID); err != nil {
		t.Fatalf("expected fresh session to survive, got %v", err)
	}
}

func TestSessionStoreSweeperExpiresInBackground(t *testing.T) {
	store := NewSessionStore(nil, WithIdleTimeout(20*time.Millisecond))
	t.Cleanup(store.Close)

	mustCreate(t, store)

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for idle session to expire")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionStoreWithoutIdleTimeoutKeepsSessions(t *testing.T) {
	store := NewSessionStore(nil, WithIdleTimeout(0))
	t.Cleanup(store.Close)

	mustCreate(t, store)

	if n := store.Expire(time.Now().Add(24 * time.Hour)); n != 0 {
		t.Fatalf("expected nothing to expire, got %d", n)
	}
}

func TestSessionStoreClose(t *testing.T) {
	store := NewSessionStore(nil)

	mustCreate(t, store)
	mustCreate(t, store)
	store.Close()
	store.Close()

	if store.Len() != 0 {
		t.Fatalf("expected empty store after Close, got %d", store.Len())
	}
}
