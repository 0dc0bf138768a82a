package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lotplayback/internal/analytics"
	"lotplayback/internal/platform/config"
	"lotplayback/internal/platform/logger"
	"lotplayback/internal/slotmap"

	"github.com/spf13/cobra"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	backend    string
	layoutFile string
	timeout    time.Duration
	debug      bool

	log *slog.Logger
}

func (g *globals) client() *analytics.Client {
	return analytics.NewClient(g.backend, analytics.WithHTTPClient(&http.Client{Timeout: g.timeout}))
}

func (g *globals) layout() (slotmap.Layout, error) {
	return slotmap.LoadLayout(g.layoutFile)
}

func main() {
	_ = config.Load()
	settings := config.FromEnv()

	g := &globals{}
	root := &cobra.Command{
		Use:           "lotctl",
		Short:         "Inspect and replay parking-lot occupancy from the analytics backend",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if g.debug {
				level = "debug"
			}
			// Frames go to stdout; logs stay on stderr.
			g.log = logger.NewWriter(os.Stderr, level, "text")
			return nil
		},
	}
	root.PersistentFlags().StringVar(&g.backend, "backend", settings.AnalyticsBaseURL, "Analytics backend base URL")
	root.PersistentFlags().StringVar(&g.layoutFile, "layout", settings.SlotLayoutFile, "Slot layout YAML file (default: built-in 6x4 lot)")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", settings.FetchTimeout, "Per-request timeout against the backend")
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")

	root.AddCommand(timestampsCmd(g))
	root.AddCommand(frameCmd(g))
	root.AddCommand(playCmd(g, settings))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
