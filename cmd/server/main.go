package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lotplayback/internal/analytics"
	"lotplayback/internal/dashboard"
	"lotplayback/internal/frames"
	"lotplayback/internal/platform/config"
	"lotplayback/internal/platform/logger"
	"lotplayback/internal/platform/metrics"
	"lotplayback/internal/playback"
	"lotplayback/internal/slotmap"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	layout, err := slotmap.LoadLayout(cfg.SlotLayoutFile)
	if err != nil {
		log.Error("slot layout", "error", err)
		os.Exit(1)
	}
	policy, err := frames.ParsePolicy(cfg.FetchPolicy)
	if err != nil {
		log.Error("frame fetch policy", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	client := analytics.NewClient(cfg.AnalyticsBaseURL,
		analytics.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout}),
	)
	repo := dashboard.NewInMemoryRepository()
	svc := dashboard.NewService(repo, client, dashboard.SessionConfig{
		Layout:            layout,
		BaseFrameDuration: cfg.BaseFrameDuration,
		Ticker:            playback.NewTimeTicker(cfg.TickInterval),
		FetchPolicy:       policy,
		FetchTimeout:      cfg.FetchTimeout,
		InitialSpeed:      cfg.DefaultSpeed,
		OnFrameAdvance:    met.IncFramesAdvanced,
		OnFetch: func(o frames.Outcome, d time.Duration) {
			met.ObserveFrameFetch(o.String(), d)
		},
	}, log, dashboard.WithMaxSessions(cfg.MaxSessions))
	h := dashboard.NewHandler(svc, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveSessions(repo.ActiveSessionCount()) }).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"analytics_base_url", cfg.AnalyticsBaseURL,
		"frame_fetch_policy", policy.String(),
		"slot_layout_capacity", layout.Capacity(),
		"max_sessions", cfg.MaxSessions,
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	svc.Close()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
