package playback

import "time"

// DefaultTickInterval approximates a 60 Hz display refresh.
const DefaultTickInterval = 16 * time.Millisecond

// Ticker delivers scheduling opportunities to the engine. Each value is the
// sample time; elapsed time is measured between samples, so a ticker that
// stalls (hidden view, slow consumer) only delays the next advance and never
// produces a burst of catch-up steps.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a fresh Ticker each time playback starts.
type TickerFactory func() Ticker

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker returns a TickerFactory backed by time.Ticker. Ticks carry the
// monotonic clock reading, so wall-clock jumps do not affect elapsed time.
func NewTimeTicker(interval time.Duration) TickerFactory {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return func() Ticker {
		return timeTicker{t: time.NewTicker(interval)}
	}
}
