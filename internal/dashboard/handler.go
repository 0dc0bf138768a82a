package dashboard

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"lotplayback/internal/analytics"
	"lotplayback/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

// Handler exposes session HTTP endpoints using go-chi.
type Handler struct {
	svc     *Service
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler that uses the given Service, Logger, and optional Metrics.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(svc *Service, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, log: log, metrics: m}
}

// Routes registers every dashboard endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/overview", h.GetOverview)
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Get("/", h.ListSessions)
		r.Route("/{session_id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DeleteSession)
			r.Post("/play", h.Play)
			r.Post("/pause", h.Pause)
			r.Post("/step", h.Step)
			r.Put("/frame", h.JumpToFrame)
			r.Put("/speed", h.SetSpeed)
			r.Get("/timestamps", h.GetTimestamps)
			r.Get("/slots/{slot_id}/display", h.GetSlotDisplay)
			r.Get("/stream", h.Stream)
		})
	})
}

// session resolves the {session_id} URL parameter, writing 404 when unknown.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	id := SessionID(chi.URLParam(r, "session_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}
	sess, err := h.svc.Session(id)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

// CreateSession handles POST /sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.CreateSession(r.Context())
	if errors.Is(err, ErrTooManySessions) {
		h.log.Warn("create session rejected", slog.Int("active_sessions", h.svc.ActiveSessionCount()))
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		h.log.Error("create session failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if h.metrics != nil {
		h.metrics.IncSessionsCreated()
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

// ListSessions handles GET /sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]SessionID{"sessions": h.svc.Sessions()})
}

// GetSession handles GET /sessions/{session_id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// DeleteSession handles DELETE /sessions/{session_id}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	if err := h.svc.CloseSession(id); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.Error("close session failed", slog.String("session_id", string(id)), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Play handles POST /sessions/{session_id}/play.
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Play())
}

// Pause handles POST /sessions/{session_id}/pause.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Pause())
}

// Step handles POST /sessions/{session_id}/step?dir=forward|backward.
func (h *Handler) Step(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var forward bool
	switch r.URL.Query().Get("dir") {
	case "", "forward":
		forward = true
	case "backward":
		forward = false
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, sess.Step(forward))
}

type jumpRequest struct {
	Index *int `json:"index"`
}

// JumpToFrame handles PUT /sessions/{session_id}/frame.
// Body: { "index": 12 }.
func (h *Handler) JumpToFrame(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req jumpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Index == nil {
		h.log.Debug("invalid frame body", slog.Any("error", err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, sess.Jump(*req.Index))
}

type speedRequest struct {
	Speed *float64 `json:"speed"`
}

// SetSpeed handles PUT /sessions/{session_id}/speed.
// Body: { "speed": 2.0 }. Out-of-range values are clamped.
func (h *Handler) SetSpeed(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	var req speedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Speed == nil {
		h.log.Debug("invalid speed body", slog.Any("error", err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, sess.SetSpeed(*req.Speed))
}

// GetTimestamps handles GET /sessions/{session_id}/timestamps.
func (h *Handler) GetTimestamps(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Timestamps())
}

// GetSlotDisplay handles GET /sessions/{session_id}/slots/{slot_id}/display.
func (h *Handler) GetSlotDisplay(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	slotID := analytics.SlotID(chi.URLParam(r, "slot_id"))
	if slotID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, sess.DisplayID(slotID))
}

// GetOverview handles GET /overview.
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.svc.Overview(r.Context())
	if err != nil {
		h.log.Error("overview failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
