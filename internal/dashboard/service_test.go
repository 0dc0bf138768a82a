package dashboard

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"lotplayback/internal/frames"
)

var errBackendDown = errors.New("backend down")

// syncBuffer collects log output written from session goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestService_CreateSession(t *testing.T) {
	repo := NewInMemoryRepository()
	svc := NewService(repo, newFakeBackend(), testConfig(), testLogger())
	defer svc.Close()

	sess, err := svc.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if got, ok := repo.Get(sess.ID); !ok || got != sess {
		t.Error("session should be registered in the repository")
	}
	if len(sess.Timestamps()) != len(testCatalog) {
		t.Errorf("catalog: got %d timestamps", len(sess.Timestamps()))
	}
}

func TestService_CreateSession_logs_fetch_policy(t *testing.T) {
	var buf syncBuffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	cfg := testConfig()
	cfg.FetchPolicy = frames.PolicyLatest
	svc := NewService(NewInMemoryRepository(), newFakeBackend(), cfg, log)
	defer svc.Close()

	if _, err := svc.CreateSession(context.Background()); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	var created string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, `"msg":"session created"`) {
			created = line
		}
	}
	if !strings.Contains(created, `"fetch_policy":"latest"`) {
		t.Errorf("session created log should carry the policy, got %q", created)
	}
}

func TestService_CreateSession_max_sessions(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), newFakeBackend(), testConfig(), testLogger(), WithMaxSessions(2))
	defer svc.Close()

	a, err := svc.CreateSession(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateSession(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateSession(context.Background()); !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("third session: expected ErrTooManySessions, got %v", err)
	}
	if n := svc.ActiveSessionCount(); n != 2 {
		t.Errorf("rejected session must not be registered, got %d sessions", n)
	}

	if err := svc.CloseSession(a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateSession(context.Background()); err != nil {
		t.Errorf("closing a session should free a slot: %v", err)
	}
}

func TestService_CreateSession_catalog_failure(t *testing.T) {
	b := newFakeBackend()
	b.tsErr = errBackendDown
	svc := NewService(NewInMemoryRepository(), b, testConfig(), testLogger())
	defer svc.Close()

	sess, err := svc.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("catalog failure should not fail session creation: %v", err)
	}
	if st := sess.Snapshot().Playback; st.Total != 0 || st.Playing {
		t.Errorf("expected empty playback, got %+v", st)
	}
}

func TestService_Session_not_found(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), newFakeBackend(), testConfig(), testLogger())

	if _, err := svc.Session("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := svc.CloseSession("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestService_Close_stops_all_sessions(t *testing.T) {
	svc := NewService(NewInMemoryRepository(), newFakeBackend(), testConfig(), testLogger())

	a, _ := svc.CreateSession(context.Background())
	b, _ := svc.CreateSession(context.Background())
	if a.ID == b.ID {
		t.Fatal("session ids must be unique")
	}
	if len(svc.Sessions()) != 2 {
		t.Fatalf("expected 2 sessions, got %v", svc.Sessions())
	}

	svc.Close()
	if svc.ActiveSessionCount() != 0 {
		t.Errorf("expected no sessions after Close, got %d", svc.ActiveSessionCount())
	}
	if a.Play().Playing {
		t.Error("closed session must not play")
	}
}

func TestService_Overview(t *testing.T) {
	t.Run("partial_results", func(t *testing.T) {
		svc := NewService(NewInMemoryRepository(), newFakeBackend(), testConfig(), testLogger())
		ov, err := svc.Overview(context.Background())
		if err != nil {
			t.Fatalf("Overview: %v", err)
		}
		if ov.Summary == nil || ov.DwellTime == nil || len(ov.OccupancyTimeline) != 1 || len(ov.ServiceMix) != 1 {
			t.Errorf("expected successful sections to be filled: %+v", ov)
		}
		if ov.Utilization != nil {
			t.Error("failed section should stay empty")
		}
	})

	t.Run("all_failed", func(t *testing.T) {
		b := newFakeBackend()
		b.overviewErr = errBackendDown
		svc := NewService(NewInMemoryRepository(), b, testConfig(), testLogger())
		if _, err := svc.Overview(context.Background()); !errors.Is(err, ErrBackendUnavailable) {
			t.Errorf("expected ErrBackendUnavailable, got %v", err)
		}
	})
}
