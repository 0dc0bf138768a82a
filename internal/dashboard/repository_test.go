package dashboard

import (
	"errors"
	"sync"
	"testing"
)

func newIdleSession(t *testing.T, id SessionID) *Session {
	t.Helper()
	s := NewSession(id, nil, newFakeBackend(), testConfig(), testLogger())
	t.Cleanup(s.Close)
	return s
}

func TestInMemoryStore_GetSetDelete(t *testing.T) {
	store := NewInMemoryStore()

	if _, ok := store.GetSession("s1"); ok {
		t.Error("expected not found for empty store")
	}

	s1 := newIdleSession(t, "s1")
	store.SetSession(s1)
	if got, ok := store.GetSession("s1"); !ok || got != s1 {
		t.Errorf("GetSession: ok=%v, got %p want %p", ok, got, s1)
	}

	replacement := newIdleSession(t, "s1")
	store.SetSession(replacement)
	if got, _ := store.GetSession("s1"); got != replacement {
		t.Error("SetSession should replace")
	}

	store.DeleteSession("s1")
	if ids := store.ListSessionIDs(); len(ids) != 0 {
		t.Errorf("expected empty store after delete, got %v", ids)
	}
}

func TestInMemoryRepository_Add_duplicate(t *testing.T) {
	repo := NewInMemoryRepository()
	if err := repo.Add(newIdleSession(t, "s1")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := repo.Add(newIdleSession(t, "s1")); !errors.Is(err, ErrSessionExists) {
		t.Errorf("expected ErrSessionExists, got %v", err)
	}
}

func TestInMemoryRepository_Remove(t *testing.T) {
	repo := NewInMemoryRepository()
	s := newIdleSession(t, "s1")
	_ = repo.Add(s)

	got, ok := repo.Remove("s1")
	if !ok || got != s {
		t.Fatalf("Remove: ok=%v got %p", ok, got)
	}
	if _, ok := repo.Remove("s1"); ok {
		t.Error("second Remove should report not found")
	}
	if repo.ActiveSessionCount() != 0 {
		t.Errorf("expected 0 sessions, got %d", repo.ActiveSessionCount())
	}
}

func TestInMemoryRepository_List_sorted(t *testing.T) {
	repo := NewInMemoryRepository()
	for _, id := range []SessionID{"c", "a", "b"} {
		_ = repo.Add(newIdleSession(t, id))
	}
	ids := repo.List()
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Errorf("List: got %v", ids)
	}
}

func TestNewInMemoryRepositoryWithStore(t *testing.T) {
	store := NewInMemoryStore()
	repo := NewInMemoryRepositoryWithStore(store)
	_ = repo.Add(newIdleSession(t, "s1"))

	if _, ok := store.GetSession("s1"); !ok {
		t.Error("repository should write through to the given store")
	}
}

func TestInMemoryRepository_concurrent_access(t *testing.T) {
	repo := NewInMemoryRepository()
	sessions := make([]*Session, 20)
	for i := range sessions {
		sessions[i] = newIdleSession(t, SessionID(rune('a'+i)))
	}

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			_ = repo.Add(s)
			_, _ = repo.Get(s.ID)
			_ = repo.ActiveSessionCount()
		}(s)
	}
	wg.Wait()

	if n := repo.ActiveSessionCount(); n != len(sessions) {
		t.Errorf("expected %d sessions, got %d", len(sessions), n)
	}
}
