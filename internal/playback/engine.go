// Package playback advances a frame index over time at a speed-controlled
// rate. It knows nothing about frame data: consumers are told about index
// changes through a callback and fetch data on their own schedule, so the
// index never waits for the network.
package playback

import (
	"math"
	"sync"
	"time"
)

const (
	// DefaultBaseFrameDuration is the time one frame stays current at speed 1.0.
	DefaultBaseFrameDuration = 500 * time.Millisecond

	MinSpeed     = 0.25
	MaxSpeed     = 4.0
	DefaultSpeed = 1.0
)

// FrameChangeFunc receives every new current index. It runs with the engine
// lock held: it must return quickly and must not call back into the Engine.
type FrameChangeFunc func(index int)

// Config configures an Engine.
type Config struct {
	TotalFrames       int
	InitialIndex      int
	BaseFrameDuration time.Duration
	// Ticker drives the background loop started by Start. When nil no loop is
	// started and the owner calls Tick itself.
	Ticker        TickerFactory
	OnFrameChange FrameChangeFunc
}

// State is a point-in-time copy of the playback state.
type State struct {
	Index   int     `json:"current_frame_index"`
	Total   int     `json:"total_frames"`
	Playing bool    `json:"is_playing"`
	Speed   float64 `json:"playback_speed"`
}

// Engine is the two-state (paused/playing) playback clock.
type Engine struct {
	base      time.Duration
	newTicker TickerFactory
	onChange  FrameChangeFunc

	mu      sync.Mutex
	index   int
	total   int
	playing bool
	speed   float64
	closed  bool

	// last is the sample time of the most recent advance. hasLast is false
	// after Start and after a seek.
	last    time.Time
	hasLast bool

	loopGen uint64
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New returns a paused Engine.
func New(cfg Config) *Engine {
	base := cfg.BaseFrameDuration
	if base <= 0 {
		base = DefaultBaseFrameDuration
	}
	total := cfg.TotalFrames
	if total < 0 {
		total = 0
	}
	return &Engine{
		base:      base,
		newTicker: cfg.Ticker,
		onChange:  cfg.OnFrameChange,
		index:     clampIndex(cfg.InitialIndex, total),
		total:     total,
		speed:     DefaultSpeed,
	}
}

// Start switches to playing. It is a no-op, returning false, when already
// playing, when there are no frames, or after Close.
func (e *Engine) Start() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.playing || e.total == 0 || e.closed {
		return false
	}
	e.playing = true
	e.hasLast = false

	if e.newTicker != nil {
		e.loopGen++
		e.stopCh = make(chan struct{})
		e.doneCh = make(chan struct{})
		go e.run(e.newTicker(), e.loopGen, e.stopCh, e.doneCh)
	}
	return true
}

// Stop switches to paused and waits for the background loop to exit. It is
// a no-op, returning false, when already paused.
func (e *Engine) Stop() bool {
	e.mu.Lock()
	if !e.playing {
		e.mu.Unlock()
		return false
	}
	stopCh, doneCh := e.pauseLocked()
	e.mu.Unlock()

	waitLoop(stopCh, doneCh)
	return true
}

// Close stops playback for good; later Start calls are ignored.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	var stopCh, doneCh chan struct{}
	if e.playing {
		stopCh, doneCh = e.pauseLocked()
	}
	e.mu.Unlock()

	waitLoop(stopCh, doneCh)
}

func (e *Engine) pauseLocked() (stopCh, doneCh chan struct{}) {
	e.playing = false
	e.hasLast = false
	stopCh, doneCh = e.stopCh, e.doneCh
	e.stopCh, e.doneCh = nil, nil
	return stopCh, doneCh
}

func waitLoop(stopCh, doneCh chan struct{}) {
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

// JumpToFrame makes clamp(i, 0, total-1) current, notifies the callback once
// with it and restarts interval timing from the next sample. It works while
// playing or paused and returns the new index. With no frames it does nothing.
func (e *Engine) JumpToFrame(i int) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.total == 0 {
		return e.index
	}
	e.jumpLocked(clampIndex(i, e.total))
	return e.index
}

// StepForward jumps one frame ahead, wrapping to the first frame.
func (e *Engine) StepForward() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.total == 0 {
		return e.index
	}
	e.jumpLocked((e.index + 1) % e.total)
	return e.index
}

// StepBackward jumps one frame back, wrapping to the last frame.
func (e *Engine) StepBackward() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.total == 0 {
		return e.index
	}
	e.jumpLocked((e.index - 1 + e.total) % e.total)
	return e.index
}

func (e *Engine) jumpLocked(i int) {
	e.index = i
	e.hasLast = false
	e.notifyLocked()
}

// SetPlaybackSpeed clamps s to [MinSpeed, MaxSpeed] and returns the applied
// value. The next sample uses the new interval; timing is not reset.
func (e *Engine) SetPlaybackSpeed(s float64) float64 {
	if math.IsNaN(s) {
		s = DefaultSpeed
	}
	s = math.Max(MinSpeed, math.Min(MaxSpeed, s))

	e.mu.Lock()
	e.speed = s
	e.mu.Unlock()
	return s
}

// SetTotalFrames replaces the frame count, e.g. after the catalog loads. The
// current index is clamped into range; a count of zero pauses playback.
func (e *Engine) SetTotalFrames(n int) {
	if n < 0 {
		n = 0
	}
	e.mu.Lock()
	e.total = n
	e.index = clampIndex(e.index, n)
	var stopCh, doneCh chan struct{}
	if n == 0 && e.playing {
		stopCh, doneCh = e.pauseLocked()
	}
	e.mu.Unlock()

	waitLoop(stopCh, doneCh)
}

// Tick processes one scheduling opportunity sampled at now and reports
// whether the index advanced. At most one frame is advanced per call however
// long it has been since the last advance. The first sample after Start or a
// seek only records the reference time.
func (e *Engine) Tick(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickLocked(now)
}

func (e *Engine) tickLocked(now time.Time) bool {
	if !e.playing || e.total == 0 {
		e.hasLast = false
		return false
	}
	if !e.hasLast {
		e.last = now
		e.hasLast = true
	}
	if now.Sub(e.last) < e.intervalLocked() {
		return false
	}
	e.index = (e.index + 1) % e.total
	e.last = now
	e.notifyLocked()
	return true
}

func (e *Engine) intervalLocked() time.Duration {
	return time.Duration(float64(e.base) / e.speed)
}

func (e *Engine) notifyLocked() {
	if e.onChange != nil {
		e.onChange(e.index)
	}
}

func (e *Engine) run(t Ticker, gen uint64, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	defer t.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-t.C():
			e.mu.Lock()
			// A loop from a previous play period may still be draining.
			if gen == e.loopGen {
				e.tickLocked(now)
			}
			e.mu.Unlock()
		}
	}
}

// State returns a copy of the current playback state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{Index: e.index, Total: e.total, Playing: e.playing, Speed: e.speed}
}

// Interval returns the current target time between advances.
func (e *Engine) Interval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.intervalLocked()
}

func clampIndex(i, total int) int {
	if total <= 0 || i < 0 {
		return 0
	}
	if i > total-1 {
		return total - 1
	}
	return i
}
