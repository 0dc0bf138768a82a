package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"lotplayback/internal/analytics"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrBackendUnavailable is returned when every overview call failed.
var ErrBackendUnavailable = errors.New("analytics backend unavailable")

// ErrTooManySessions is returned by CreateSession when the session cap is reached.
var ErrTooManySessions = errors.New("too many open sessions")

// Backend is the full analytics API used by the service.
type Backend interface {
	SessionBackend
	Timestamps(ctx context.Context) ([]analytics.Timestamp, error)
	Summary(ctx context.Context) (analytics.Summary, error)
	OccupancyTimeline(ctx context.Context) ([]analytics.OccupancyPoint, error)
	DwellTime(ctx context.Context) (analytics.DwellTime, error)
	Utilization(ctx context.Context) ([]analytics.SlotUtilization, error)
	ServiceMix(ctx context.Context) (analytics.ServiceMix, error)
}

// Service creates sessions and answers lot-wide queries. Session state lives
// in the Repository.
type Service struct {
	repo        Repository
	backend     Backend
	cfg         SessionConfig
	log         *slog.Logger
	maxSessions int

	createMu sync.Mutex
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMaxSessions caps the number of open sessions. n <= 0 means no cap.
func WithMaxSessions(n int) ServiceOption {
	return func(s *Service) { s.maxSessions = n }
}

// NewService returns a Service that registers sessions in repo and builds them
// with cfg.
func NewService(repo Repository, backend Backend, cfg SessionConfig, log *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{repo: repo, backend: backend, cfg: cfg, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) full() bool {
	return s.maxSessions > 0 && s.repo.ActiveSessionCount() >= s.maxSessions
}

// CreateSession loads the timestamp catalog and registers a new session. A
// catalog that cannot be loaded yields a session with nothing to play.
func (s *Service) CreateSession(ctx context.Context) (*Session, error) {
	if s.full() {
		return nil, ErrTooManySessions
	}
	catalog, err := s.backend.Timestamps(ctx)
	if err != nil {
		s.log.Warn("timestamp catalog load failed", "error", err)
		catalog = nil
	}

	id := SessionID(uuid.NewString())
	sess := NewSession(id, catalog, s.backend, s.cfg, s.log)

	s.createMu.Lock()
	if s.full() {
		s.createMu.Unlock()
		sess.Close()
		return nil, ErrTooManySessions
	}
	err = s.repo.Add(sess)
	s.createMu.Unlock()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("register session: %w", err)
	}

	s.log.Info("session created",
		"session_id", string(id),
		"frames", len(catalog),
		"fetch_policy", sess.frames.Policy().String(),
	)
	return sess, nil
}

// Session returns the session with the given ID or ErrSessionNotFound.
func (s *Service) Session(id SessionID) (*Session, error) {
	sess, ok := s.repo.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Sessions lists the open session IDs.
func (s *Service) Sessions() []SessionID {
	return s.repo.List()
}

// CloseSession unregisters and stops a session.
func (s *Service) CloseSession(id SessionID) error {
	sess, ok := s.repo.Remove(id)
	if !ok {
		return ErrSessionNotFound
	}
	sess.Close()
	s.log.Info("session closed", "session_id", string(id))
	return nil
}

// Close stops every open session.
func (s *Service) Close() {
	for _, id := range s.repo.List() {
		_ = s.CloseSession(id)
	}
}

// ActiveSessionCount returns the number of open sessions.
func (s *Service) ActiveSessionCount() int {
	return s.repo.ActiveSessionCount()
}

// Overview loads the lot-wide aggregates concurrently. Sections whose call
// fails are left empty; only a total failure is an error.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	var (
		out    Overview
		g      errgroup.Group
		failed atomic.Int32
	)
	load := func(name string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				failed.Add(1)
				s.log.Warn("overview load failed", "section", name, "error", err)
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}

	load("summary", func() error {
		v, err := s.backend.Summary(ctx)
		if err == nil {
			out.Summary = &v
		}
		return err
	})
	load("occupancy_timeline", func() error {
		v, err := s.backend.OccupancyTimeline(ctx)
		if err == nil {
			out.OccupancyTimeline = v
		}
		return err
	})
	load("dwell_time", func() error {
		v, err := s.backend.DwellTime(ctx)
		if err == nil {
			out.DwellTime = &v
		}
		return err
	})
	load("utilization", func() error {
		v, err := s.backend.Utilization(ctx)
		if err == nil {
			out.Utilization = v
		}
		return err
	})
	load("service_mix", func() error {
		v, err := s.backend.ServiceMix(ctx)
		if err == nil {
			out.ServiceMix = v
		}
		return err
	})

	const sections = 5
	if err := g.Wait(); err != nil && failed.Load() == sections {
		return Overview{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return out, nil
}
