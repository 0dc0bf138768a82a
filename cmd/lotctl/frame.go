package main

import (
	"fmt"
	"strconv"
	"strings"

	"lotplayback/cmd/lotctl/ui"
	"lotplayback/internal/analytics"
	"lotplayback/internal/slotmap"

	"github.com/spf13/cobra"
)

func frameCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "frame <timestamp|index>",
		Short: "Show the lot at one timestamp in display order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := g.layout()
			if err != nil {
				return err
			}
			client := g.client()

			ts := analytics.Timestamp(args[0])
			if _, err := strconv.Atoi(args[0]); err == nil {
				catalog, err := client.Timestamps(cmd.Context())
				if err != nil {
					return fmt.Errorf("load timestamps: %w", err)
				}
				if ts, err = resolveTimestamp(args[0], catalog); err != nil {
					return err
				}
			}

			frame, err := client.Frame(cmd.Context(), ts)
			if err != nil {
				return fmt.Errorf("load frame %s: %w", ts, err)
			}
			g.log.Debug("frame loaded", "timestamp", ts, "slots", len(frame))

			fmt.Println(ui.InfoMsg("%s  %s occupied", ui.Bold(string(ts)), ui.Occupancy(frame.OccupiedCount(), len(frame))))
			fmt.Println(renderLot(frame, layout))
			return nil
		},
	}
}

// resolveTimestamp maps a catalog index argument to its timestamp.
func resolveTimestamp(arg string, catalog []analytics.Timestamp) (analytics.Timestamp, error) {
	i, err := strconv.Atoi(arg)
	if err != nil {
		return analytics.Timestamp(arg), nil
	}
	if i < 0 || i >= len(catalog) {
		return "", fmt.Errorf("frame index %d out of range [0, %d)", i, len(catalog))
	}
	return catalog[i], nil
}

// renderLot draws the frame on the layout table: each cell shows the display
// number and the occupant of the slot mapped to it.
func renderLot(frame analytics.Frame, layout slotmap.Layout) string {
	m := slotmap.Build(frame, layout)
	reverse := m.Reverse()
	byID := make(map[analytics.SlotID]analytics.Slot, len(frame))
	for _, s := range frame {
		byID[s.SlotID] = s
	}

	rows := make([][]string, len(layout.Positions))
	for r, positions := range layout.Positions {
		cells := make([]string, len(positions))
		for c, n := range positions {
			id, ok := reverse[n]
			if !ok {
				cells[c] = ui.Muted(fmt.Sprintf("%2d  -", n))
				continue
			}
			cells[c] = slotCell(n, byID[id])
		}
		rows[r] = cells
	}

	out := ui.Grid(rows)
	if unmapped := len(frame) - m.Len(); unmapped > 0 {
		out += "\n" + ui.WarnMsg("%d slots fall outside the layout", unmapped)
	}
	return out
}

func slotCell(n int, s analytics.Slot) string {
	if !s.Occupied {
		return ui.VacantStyle.Render(fmt.Sprintf("%2d  free", n))
	}
	var label []string
	if s.Plate != nil && *s.Plate != "" {
		label = append(label, *s.Plate)
	}
	if s.Service != nil && *s.Service != "" {
		label = append(label, "("+*s.Service+")")
	}
	if len(label) == 0 {
		label = append(label, "taken")
	}
	return ui.OccupiedStyle.Render(fmt.Sprintf("%2d  %s", n, strings.Join(label, " ")))
}
