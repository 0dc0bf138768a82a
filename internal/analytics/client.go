// Package analytics is a read-only client for the parking analytics backend.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrUnexpectedStatus is wrapped by StatusError for any non-2xx response.
var ErrUnexpectedStatus = errors.New("unexpected status from analytics backend")

// StatusError reports a non-2xx response for a backend path.
type StatusError struct {
	StatusCode int
	Path       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analytics GET %s: status %d", e.Path, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// maxErrorBody bounds how much of an error response is drained before closing.
const maxErrorBody = 4 << 10

// Client issues GET requests against the backend's fixed endpoint set.
type Client struct {
	baseURL string
	http    *http.Client
	tracer  trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTracer replaces the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		if t != nil {
			c.tracer = t
		}
	}
}

// NewClient returns a Client rooted at baseURL (e.g. "http://localhost:8000").
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		tracer:  otel.Tracer("lotplayback/analytics"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timestamps returns the ordered timestamp catalog.
func (c *Client) Timestamps(ctx context.Context) ([]Timestamp, error) {
	var out []Timestamp
	err := c.get(ctx, "timestamps", "/timestamps", &out)
	return out, err
}

// Frame returns the full slot snapshot at ts.
func (c *Client) Frame(ctx context.Context, ts Timestamp) (Frame, error) {
	var out Frame
	err := c.get(ctx, "frame", tsPath("/frame/", ts), &out)
	return out, err
}

// Stats returns slot totals at ts.
func (c *Client) Stats(ctx context.Context, ts Timestamp) (Stats, error) {
	var out Stats
	err := c.get(ctx, "stats", tsPath("/stats/", ts), &out)
	return out, err
}

// TimestampStats returns the KPI aggregate at ts.
func (c *Client) TimestampStats(ctx context.Context, ts Timestamp) (TimestampStats, error) {
	var out TimestampStats
	err := c.get(ctx, "stats_timestamp", tsPath("/stats_timestamp/", ts), &out)
	return out, err
}

// VehiclesAt returns the vehicles parked at ts.
func (c *Client) VehiclesAt(ctx context.Context, ts Timestamp) ([]Vehicle, error) {
	var out []Vehicle
	err := c.get(ctx, "vehicles_at_timestamp", tsPath("/vehicles_at_timestamp/", ts), &out)
	return out, err
}

// SlotsByPlate returns the slot assignments at ts.
func (c *Client) SlotsByPlate(ctx context.Context, ts Timestamp) ([]PlateSlot, error) {
	var out []PlateSlot
	err := c.get(ctx, "slots_by_plate", tsPath("/slots_by_plate/", ts), &out)
	return out, err
}

func (c *Client) Utilization(ctx context.Context) ([]SlotUtilization, error) {
	var out []SlotUtilization
	err := c.get(ctx, "utilization", "/utilization", &out)
	return out, err
}

func (c *Client) ServiceMix(ctx context.Context) (ServiceMix, error) {
	var out ServiceMix
	err := c.get(ctx, "service_mix", "/service_mix", &out)
	return out, err
}

func (c *Client) OccupancyTimeline(ctx context.Context) ([]OccupancyPoint, error) {
	var out []OccupancyPoint
	err := c.get(ctx, "occupancy_timeline", "/occupancy_timeline", &out)
	return out, err
}

func (c *Client) DwellTime(ctx context.Context) (DwellTime, error) {
	var out DwellTime
	err := c.get(ctx, "dwell_time", "/dwell_time", &out)
	return out, err
}

func (c *Client) Summary(ctx context.Context) (Summary, error) {
	var out Summary
	err := c.get(ctx, "summary", "/summary", &out)
	return out, err
}

// tsPath appends a percent-encoded timestamp segment. ISO-8601 offsets carry
// '+' and ':' which url.PathEscape leaves alone, so the component is encoded
// with query rules and spaces are restored to %20.
func tsPath(prefix string, ts Timestamp) string {
	return prefix + strings.ReplaceAll(url.QueryEscape(string(ts)), "+", "%20")
}

func (c *Client) get(ctx context.Context, endpoint, path string, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "analytics."+endpoint, trace.WithAttributes(
		attribute.String("analytics.endpoint", endpoint),
		attribute.String("analytics.path", path),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("analytics GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Path: path}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
