package metrics

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics, update func()) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler(update).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape: expected 200, got %d", rec.Code)
	}
	return rec.Body.String()
}

func TestMetrics_frame_fetch_outcomes(t *testing.T) {
	m := New()
	m.ObserveFrameFetch("loaded", 20*time.Millisecond)
	m.ObserveFrameFetch("dropped", 0)
	m.ObserveFrameFetch("dropped", 0)

	body := scrape(t, m, nil)
	if !strings.Contains(body, `lotplayback_frame_fetches_total{outcome="dropped"} 2`) {
		t.Errorf("expected two dropped fetches:\n%s", body)
	}
	if !strings.Contains(body, "lotplayback_frame_fetch_duration_seconds_count 1") {
		t.Errorf("expected one latency observation:\n%s", body)
	}
}

func TestMetrics_Handler_updates_gauges(t *testing.T) {
	m := New()
	body := scrape(t, m, func() { m.SetActiveSessions(3) })
	if !strings.Contains(body, "lotplayback_active_sessions 3") {
		t.Errorf("expected gauge refreshed before scrape:\n%s", body)
	}
}

func TestRequestMiddleware_counts_errors(t *testing.T) {
	m := New()
	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/ok", "/missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	body := scrape(t, m, nil)
	if !strings.Contains(body, "lotplayback_requests_total 2") {
		t.Errorf("expected 2 requests:\n%s", body)
	}
	if !strings.Contains(body, "lotplayback_errors_total 1") {
		t.Errorf("expected 1 error:\n%s", body)
	}
}

// hijackRecorder is a recorder that supports connection takeover.
type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestRequestMiddleware_hijack_records_switching_protocols(t *testing.T) {
	rec := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	wrap := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	if _, _, err := http.NewResponseController(wrap).Hijack(); err != nil {
		t.Fatalf("Hijack: %v", err)
	}
	if !rec.hijacked {
		t.Error("hijack should reach the underlying writer")
	}
	if wrap.status != http.StatusSwitchingProtocols {
		t.Errorf("status after hijack: got %d want %d", wrap.status, http.StatusSwitchingProtocols)
	}

	if _, _, err := (&responseWriter{ResponseWriter: httptest.NewRecorder()}).Hijack(); err == nil {
		t.Error("expected an error when the writer cannot be hijacked")
	}
}

func TestRequestMiddleware_unwraps_for_response_controller(t *testing.T) {
	m := New()
	rec := httptest.NewRecorder()
	var flushErr error
	h := RequestMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := w.(interface{ Unwrap() http.ResponseWriter }).Unwrap(); got != rec {
			t.Errorf("Unwrap returned %T, want the recorder", got)
		}
		flushErr = http.NewResponseController(w).Flush()
	}))

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if flushErr != nil {
		t.Errorf("Flush through middleware: %v", flushErr)
	}
	if !rec.Flushed {
		t.Error("flush should reach the underlying writer")
	}
	if body := scrape(t, m, nil); !strings.Contains(body, "lotplayback_errors_total 0") {
		t.Errorf("flushed request should not count as an error:\n%s", body)
	}
}
