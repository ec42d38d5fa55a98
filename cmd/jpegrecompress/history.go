package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Skryldev/jpeg-recompressor/journal"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List inputs recorded in the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Journal.Path == "" {
				return fmt.Errorf("no journal configured; pass --journal or set [journal] path")
			}
			jr, err := journal.Open(cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer jr.Close()

			entries, err := jr.Entries(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{
					e.Input,
					strconv.Itoa(e.Quality),
					humanize.Bytes(uint64(e.InputSize)),
					humanize.Bytes(uint64(e.OutputSize)),
					humanize.Time(e.ProcessedAt),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Input", "Quality", "Before", "After", "Processed"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}
