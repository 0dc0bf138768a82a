package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"lotplayback/cmd/lotctl/ui"
	"lotplayback/internal/analytics"
	"lotplayback/internal/frames"
	"lotplayback/internal/platform/config"
	"lotplayback/internal/playback"

	"github.com/spf13/cobra"
)

func playCmd(g *globals, settings config.Settings) *cobra.Command {
	var (
		limit  int
		speed  float64
		start  int
		policy string
	)

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Replay the lot headless, printing each frame as it loads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := frames.ParsePolicy(policy)
			if err != nil {
				return err
			}
			client := g.client()
			catalog, err := client.Timestamps(cmd.Context())
			if err != nil {
				return fmt.Errorf("load timestamps: %w", err)
			}
			if len(catalog) == 0 {
				fmt.Println(ui.Muted("no frames available"))
				return nil
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			index := make(map[analytics.Timestamp]int, len(catalog))
			for i, ts := range catalog {
				index[ts] = i
			}

			var (
				shown    atomic.Int32
				done     = make(chan struct{})
				doneOnce sync.Once
			)
			coord := frames.New(client,
				frames.WithPolicy(p),
				frames.WithTimeout(g.timeout),
				frames.WithLogger(g.log),
				frames.WithOnResolved(func(ts analytics.Timestamp, frame analytics.Frame) {
					fmt.Println(playLine(index[ts], len(catalog), ts, frame))
					if limit > 0 && int(shown.Add(1)) >= limit {
						doneOnce.Do(func() { close(done) })
					}
				}),
			)

			engine := playback.New(playback.Config{
				TotalFrames:       len(catalog),
				BaseFrameDuration: settings.BaseFrameDuration,
				Ticker:            playback.NewTimeTicker(settings.TickInterval),
				OnFrameChange: func(i int) {
					go coord.LoadFrame(ctx, catalog[i])
				},
			})
			defer engine.Close()

			applied := engine.SetPlaybackSpeed(speed)
			fmt.Println(ui.InfoMsg("replaying %d frames at %gx (%s per frame)", len(catalog), applied, engine.Interval()))

			engine.JumpToFrame(start)
			engine.Start()

			select {
			case <-done:
			case <-ctx.Done():
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "frames", 0, "Stop after this many frames have been shown (0: until interrupted)")
	cmd.Flags().Float64Var(&speed, "speed", settings.DefaultSpeed, "Playback speed, clamped to [0.25, 4]")
	cmd.Flags().IntVar(&start, "start", 0, "Catalog index to start from")
	cmd.Flags().StringVar(&policy, "policy", settings.FetchPolicy, "Frame fetch policy while a request is in flight: drop or latest")
	return cmd
}

func playLine(i, total int, ts analytics.Timestamp, frame analytics.Frame) string {
	return fmt.Sprintf("%s  %s  %s occupied",
		ui.Muted(fmt.Sprintf("[%d/%d]", i+1, total)),
		ui.Accent(string(ts)),
		ui.Occupancy(frame.OccupiedCount(), len(frame)),
	)
}
