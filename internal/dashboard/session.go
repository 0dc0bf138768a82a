package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lotplayback/internal/analytics"
	"lotplayback/internal/frames"
	"lotplayback/internal/playback"
	"lotplayback/internal/slotmap"

	"golang.org/x/sync/errgroup"
)

const subscriberBuffer = 8

// SessionBackend is the slice of the analytics API a session reads from.
type SessionBackend interface {
	frames.Fetcher
	Stats(ctx context.Context, ts analytics.Timestamp) (analytics.Stats, error)
	TimestampStats(ctx context.Context, ts analytics.Timestamp) (analytics.TimestampStats, error)
	VehiclesAt(ctx context.Context, ts analytics.Timestamp) ([]analytics.Vehicle, error)
	SlotsByPlate(ctx context.Context, ts analytics.Timestamp) ([]analytics.PlateSlot, error)
}

// SessionConfig carries the per-session tunables and instrumentation hooks.
type SessionConfig struct {
	Layout            slotmap.Layout
	BaseFrameDuration time.Duration
	// Ticker drives automatic playback. Nil leaves the engine to be ticked
	// by the caller, which tests use.
	Ticker       playback.TickerFactory
	FetchPolicy  frames.Policy
	FetchTimeout time.Duration
	// InitialSpeed is applied before the first frame. Zero keeps
	// playback.DefaultSpeed.
	InitialSpeed float64

	OnFrameAdvance func()
	OnFetch        frames.ObserveFunc
}

// Session is one viewer's playback state: the timestamp catalog, a playback
// engine, a frame coordinator and the slot mapping, wired together.
type Session struct {
	ID        SessionID
	CreatedAt time.Time

	backend SessionBackend
	log     *slog.Logger
	onAdv   func()

	catalog []analytics.Timestamp
	engine  *playback.Engine
	frames  *frames.Coordinator
	mapping *slotmap.Once

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	aggTS    analytics.Timestamp
	stats    *analytics.Stats
	kpi      *analytics.TimestampStats
	vehicles []analytics.Vehicle
	plates   []analytics.PlateSlot

	subMu  sync.Mutex
	subs   map[chan Update]struct{}
	closed bool
}

// NewSession wires a session over catalog. When the catalog is non-empty the
// first frame is requested immediately.
func NewSession(id SessionID, catalog []analytics.Timestamp, backend SessionBackend, cfg SessionConfig, log *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		backend:   backend,
		log:       log.With("session_id", string(id)),
		onAdv:     cfg.OnFrameAdvance,
		catalog:   append([]analytics.Timestamp(nil), catalog...),
		mapping:   slotmap.NewOnce(cfg.Layout),
		ctx:       ctx,
		cancel:    cancel,
		subs:      make(map[chan Update]struct{}),
	}

	s.frames = frames.New(backend,
		frames.WithPolicy(cfg.FetchPolicy),
		frames.WithTimeout(cfg.FetchTimeout),
		frames.WithLogger(s.log),
		frames.WithObserver(cfg.OnFetch),
		frames.WithOnResolved(s.frameResolved),
	)
	s.engine = playback.New(playback.Config{
		TotalFrames:       len(s.catalog),
		BaseFrameDuration: cfg.BaseFrameDuration,
		Ticker:            cfg.Ticker,
		OnFrameChange:     s.frameChanged,
	})

	if cfg.InitialSpeed > 0 {
		s.engine.SetPlaybackSpeed(cfg.InitialSpeed)
	}
	if len(s.catalog) > 0 {
		s.engine.JumpToFrame(0)
	}
	return s
}

// frameChanged runs under the engine lock, so the load is handed off.
func (s *Session) frameChanged(index int) {
	if s.onAdv != nil {
		s.onAdv()
	}
	if index < 0 || index >= len(s.catalog) {
		return
	}
	ts := s.catalog[index]
	go s.frames.LoadFrame(s.ctx, ts)
}

func (s *Session) frameResolved(ts analytics.Timestamp, frame analytics.Frame) {
	if s.mapping.Ensure(frame) {
		m, _ := s.mapping.Mapping()
		s.log.Info("slot mapping built", "timestamp", ts, "mapped_slots", m.Len())
	}
	s.publish(UpdateFrame)
	go s.loadAggregates(ts)
}

// loadAggregates fetches the per-timestamp panels concurrently. Each panel
// keeps its previous value when its call fails, and results for a timestamp
// that is no longer selected are discarded.
func (s *Session) loadAggregates(ts analytics.Timestamp) {
	var (
		g        errgroup.Group
		stats    *analytics.Stats
		kpi      *analytics.TimestampStats
		vehicles []analytics.Vehicle
		gotVeh   bool
		plates   []analytics.PlateSlot
		gotPlate bool
	)
	g.Go(func() error {
		v, err := s.backend.Stats(s.ctx, ts)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		stats = &v
		return nil
	})
	g.Go(func() error {
		v, err := s.backend.TimestampStats(s.ctx, ts)
		if err != nil {
			return fmt.Errorf("timestamp stats: %w", err)
		}
		kpi = &v
		return nil
	})
	g.Go(func() error {
		v, err := s.backend.VehiclesAt(s.ctx, ts)
		if err != nil {
			return fmt.Errorf("vehicles: %w", err)
		}
		vehicles, gotVeh = v, true
		return nil
	})
	g.Go(func() error {
		v, err := s.backend.SlotsByPlate(s.ctx, ts)
		if err != nil {
			return fmt.Errorf("slots by plate: %w", err)
		}
		plates, gotPlate = v, true
		return nil
	})
	if err := g.Wait(); err != nil {
		s.log.Warn("aggregate load failed", "timestamp", ts, "error", err)
	}

	if sel, _ := s.frames.Selected(); sel != ts || s.ctx.Err() != nil {
		s.log.Debug("discarding stale aggregates", "timestamp", ts, "selected", sel)
		return
	}

	s.mu.Lock()
	if stats != nil {
		s.stats = stats
	}
	if kpi != nil {
		s.kpi = kpi
	}
	if gotVeh {
		s.vehicles = vehicles
	}
	if gotPlate {
		s.plates = plates
	}
	if stats != nil || kpi != nil || gotVeh || gotPlate {
		s.aggTS = ts
	}
	s.mu.Unlock()

	s.publish(UpdateAggregates)
}

// Play starts automatic playback.
func (s *Session) Play() playback.State {
	if s.engine.Start() {
		s.publish(UpdatePlayback)
	}
	return s.engine.State()
}

// Pause stops automatic playback.
func (s *Session) Pause() playback.State {
	if s.engine.Stop() {
		s.publish(UpdatePlayback)
	}
	return s.engine.State()
}

// Jump seeks to index, clamped into the catalog.
func (s *Session) Jump(index int) playback.State {
	s.engine.JumpToFrame(index)
	s.publish(UpdatePlayback)
	return s.engine.State()
}

// Step moves one frame forward or backward with wrap-around.
func (s *Session) Step(forward bool) playback.State {
	if forward {
		s.engine.StepForward()
	} else {
		s.engine.StepBackward()
	}
	s.publish(UpdatePlayback)
	return s.engine.State()
}

// SetSpeed changes the playback speed; the value is clamped.
func (s *Session) SetSpeed(speed float64) playback.State {
	s.engine.SetPlaybackSpeed(speed)
	s.publish(UpdatePlayback)
	return s.engine.State()
}

// Tick forwards a scheduling sample to the engine. Sessions built without a
// ticker are driven this way.
func (s *Session) Tick(now time.Time) bool {
	return s.engine.Tick(now)
}

// Timestamps returns a copy of the catalog.
func (s *Session) Timestamps() []analytics.Timestamp {
	return append([]analytics.Timestamp(nil), s.catalog...)
}

// DisplayID maps a backend slot id to its display number.
func (s *Session) DisplayID(id analytics.SlotID) SlotDisplay {
	m, _ := s.mapping.Mapping()
	_, mapped := m.Lookup(id)
	return SlotDisplay{SlotID: id, DisplayID: m.DisplayID(id), Mapped: mapped}
}

// Snapshot returns the current view state.
func (s *Session) Snapshot() Snapshot {
	ts, frame, _ := s.frames.Current()
	m, _ := s.mapping.Mapping()

	slots := make([]SlotView, 0, len(frame))
	for _, slot := range frame {
		slots = append(slots, SlotView{Slot: slot, DisplayID: m.DisplayID(slot.SlotID)})
	}

	snap := Snapshot{
		SessionID:         s.ID,
		Playback:          s.engine.State(),
		SelectedTimestamp: ts,
		Slots:             slots,
		OccupiedCount:     frame.OccupiedCount(),
	}

	s.mu.RLock()
	snap.AggregatesTimestamp = s.aggTS
	snap.Stats = s.stats
	snap.KPI = s.kpi
	snap.Vehicles = s.vehicles
	snap.SlotsByPlate = s.plates
	s.mu.RUnlock()

	return snap
}

// Subscribe returns a channel of updates and a function that cancels the
// subscription. The channel is closed when the session closes. A subscriber
// that falls behind misses updates rather than stalling playback.
func (s *Session) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberBuffer)

	s.subMu.Lock()
	if s.closed {
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
}

func (s *Session) publish(kind UpdateKind) {
	u := Update{Kind: kind, Snapshot: s.Snapshot()}

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Close stops playback, cancels outstanding backend calls and ends every
// subscription.
func (s *Session) Close() {
	s.engine.Close()
	s.cancel()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for ch := range s.subs {
		close(ch)
	}
	s.subs = nil
}
