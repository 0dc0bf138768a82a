package main

import (
	"fmt"
	"strconv"

	"lotplayback/cmd/lotctl/ui"

	"github.com/spf13/cobra"
)

func timestampsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "timestamps",
		Aliases: []string{"ts"},
		Short:   "List the frame timestamps available for playback",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := g.client().Timestamps(cmd.Context())
			if err != nil {
				return fmt.Errorf("load timestamps: %w", err)
			}
			if len(catalog) == 0 {
				fmt.Println(ui.Muted("no frames available"))
				return nil
			}

			rows := make([][]string, len(catalog))
			for i, ts := range catalog {
				rows[i] = []string{strconv.Itoa(i), string(ts)}
			}
			fmt.Println(ui.Table([]string{"#", "Timestamp"}, rows))
			return nil
		},
	}
}
