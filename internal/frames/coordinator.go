// Package frames guards frame loading so that at most one fetch is outstanding
// per session and the newest successfully loaded frame is always on display.
package frames

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"lotplayback/internal/analytics"
)

// DefaultTimeout bounds a single frame fetch.
const DefaultTimeout = 10 * time.Second

// Fetcher loads the frame for one timestamp. *analytics.Client implements it.
type Fetcher interface {
	Frame(ctx context.Context, ts analytics.Timestamp) (analytics.Frame, error)
}

// Policy decides what happens to a request that arrives while another fetch
// is in flight.
type Policy int

const (
	// PolicyDrop discards the request. The engine will ask again on a later
	// frame change.
	PolicyDrop Policy = iota
	// PolicyLatest remembers the most recent discarded timestamp and fetches
	// it once the in-flight request completes.
	PolicyLatest
)

func (p Policy) String() string {
	if p == PolicyLatest {
		return "latest"
	}
	return "drop"
}

// ParsePolicy maps "drop" or "latest" to a Policy. Empty means PolicyDrop.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop":
		return PolicyDrop, nil
	case "latest":
		return PolicyLatest, nil
	default:
		return PolicyDrop, fmt.Errorf("unknown frame fetch policy %q", s)
	}
}

// Outcome reports what LoadFrame did with a request.
type Outcome int

const (
	OutcomeLoaded Outcome = iota
	OutcomeDuplicate
	OutcomeDropped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLoaded:
		return "loaded"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeDropped:
		return "dropped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ResolvedFunc is called after a frame has been stored and selected.
type ResolvedFunc func(ts analytics.Timestamp, frame analytics.Frame)

// ObserveFunc is called once per LoadFrame decision. d is the fetch latency,
// zero when no fetch was made.
type ObserveFunc func(outcome Outcome, d time.Duration)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPolicy sets the in-flight policy.
func WithPolicy(p Policy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithTimeout bounds each fetch. Non-positive values keep DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for fetch failures.
func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// WithOnResolved registers the selected-timestamp hook.
func WithOnResolved(fn ResolvedFunc) Option {
	return func(c *Coordinator) { c.onResolved = fn }
}

// WithObserver registers a hook for every outcome, including follow-up
// fetches issued under PolicyLatest.
func WithObserver(fn ObserveFunc) Option {
	return func(c *Coordinator) { c.observe = fn }
}

// Coordinator serializes frame fetches for one session.
type Coordinator struct {
	fetcher    Fetcher
	policy     Policy
	timeout    time.Duration
	log        *slog.Logger
	onResolved ResolvedFunc
	observe    ObserveFunc

	mu          sync.Mutex
	inFlight    analytics.Timestamp
	hasInFlight bool
	resolved    analytics.Timestamp
	hasResolved bool
	frame       analytics.Frame
	pending     analytics.Timestamp
	hasPending  bool
}

// New returns a Coordinator with an empty cache.
func New(fetcher Fetcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		fetcher: fetcher,
		policy:  PolicyDrop,
		timeout: DefaultTimeout,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadFrame requests the frame at ts.
//
// A request for the timestamp already in flight or already resolved returns
// OutcomeDuplicate without a fetch. A request for another timestamp while a
// fetch is outstanding returns OutcomeDropped. Otherwise the frame is fetched;
// on success it replaces the cache and becomes selected, on failure the error
// is logged and the previous frame stays. The in-flight marker is always
// cleared when the fetch finishes.
func (c *Coordinator) LoadFrame(ctx context.Context, ts analytics.Timestamp) Outcome {
	c.mu.Lock()
	if (c.hasInFlight && c.inFlight == ts) || (c.hasResolved && c.resolved == ts) {
		c.mu.Unlock()
		c.record(OutcomeDuplicate, 0)
		return OutcomeDuplicate
	}
	if c.hasInFlight {
		if c.policy == PolicyLatest {
			c.pending, c.hasPending = ts, true
		}
		c.mu.Unlock()
		c.record(OutcomeDropped, 0)
		return OutcomeDropped
	}
	c.inFlight, c.hasInFlight = ts, true
	c.mu.Unlock()

	return c.fetch(ctx, ts)
}

// fetch loads ts, which the caller has already claimed as in flight. The
// deferred cleanup stores the result and releases the marker even when the
// fetcher panics; a panic is reported as a failed fetch.
func (c *Coordinator) fetch(ctx context.Context, ts analytics.Timestamp) (outcome Outcome) {
	var (
		frame analytics.Frame
		err   error
	)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			frame, err = nil, fmt.Errorf("frame fetcher panicked: %v", r)
		}
		elapsed := time.Since(start)

		outcome = OutcomeLoaded
		if err != nil {
			outcome = OutcomeFailed
			c.log.Warn("frame fetch failed", "timestamp", ts, "error", err)
		}

		next, hasNext := c.finish(ts, frame, err)
		c.record(outcome, elapsed)

		if err == nil && c.onResolved != nil {
			c.onResolved(ts, frame)
		}
		if hasNext {
			go c.fetch(ctx, next)
		}
	}()

	fctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	frame, err = c.fetcher.Frame(fctx, ts)
	return outcome
}

// finish stores a successful result, clears the in-flight marker and, under
// PolicyLatest, claims the marker again for a remembered timestamp.
func (c *Coordinator) finish(ts analytics.Timestamp, frame analytics.Frame, err error) (analytics.Timestamp, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.frame = frame
		c.resolved, c.hasResolved = ts, true
	}
	c.inFlight, c.hasInFlight = "", false

	if !c.hasPending {
		return "", false
	}
	next := c.pending
	c.pending, c.hasPending = "", false
	if c.hasResolved && c.resolved == next {
		return "", false
	}
	c.inFlight, c.hasInFlight = next, true
	return next, true
}

func (c *Coordinator) record(o Outcome, d time.Duration) {
	if c.observe != nil {
		c.observe(o, d)
	}
}

// Selected returns the timestamp of the frame on display.
func (c *Coordinator) Selected() (analytics.Timestamp, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolved, c.hasResolved
}

// Current returns the cached frame and its timestamp.
func (c *Coordinator) Current() (analytics.Timestamp, analytics.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolved, c.frame, c.hasResolved
}

// InFlight returns the timestamp being fetched, if any.
func (c *Coordinator) InFlight() (analytics.Timestamp, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight, c.hasInFlight
}

// Policy returns the configured in-flight policy.
func (c *Coordinator) Policy() Policy {
	return c.policy
}
