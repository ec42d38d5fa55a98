package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	recompressor "github.com/Skryldev/jpeg-recompressor"
	"github.com/Skryldev/jpeg-recompressor/core"
	apperrors "github.com/Skryldev/jpeg-recompressor/errors"
	"github.com/Skryldev/jpeg-recompressor/journal"
)

type batchRow struct {
	input   string
	result  *core.Result
	err     error
	skipped bool
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var (
		outDir  string
		quality int
	)

	cmd := &cobra.Command{
		Use:   "batch --out-dir DIR <input.jpg>...",
		Short: "Recompress many files into a directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("quality") {
				quality = cfg.DefaultQuality
			}
			proc, cleanup, err := ctx.newProcessor(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			var jr *journal.Journal
			if cfg.Journal.Path != "" {
				jr, err = journal.Open(cfg.Journal.Path)
				if err != nil {
					return err
				}
				defer jr.Close()
			}

			rows, worst := runBatch(cmd.Context(), proc, jr, args, outDir, quality)
			fmt.Fprintln(cmd.OutOrStdout(), renderBatch(rows))
			if worst != apperrors.StatusOK {
				return &exitError{code: -worst, err: fmt.Errorf("batch finished with failures")}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "directory that receives the recompressed files")
	cmd.Flags().IntVarP(&quality, "quality", "q", 85, "JPEG quality passed to the encoder")
	_ = cmd.MarkFlagRequired("out-dir")

	cmd.AddCommand(newHistoryCommand(ctx))
	return cmd
}

// runBatch returns one row per input and the most severe status seen.
func runBatch(ctx context.Context, proc *recompressor.Processor, jr *journal.Journal, inputs []string, outDir string, quality int) ([]batchRow, int) {
	rows := make([]batchRow, len(inputs))
	reqs := make([]core.Request, 0, len(inputs))
	index := make([]int, 0, len(inputs))

	for i, in := range inputs {
		rows[i].input = in
		if jr != nil {
			seen, err := jr.Seen(ctx, in, quality)
			if err == nil && seen {
				rows[i].skipped = true
				continue
			}
		}
		reqs = append(reqs, core.Request{
			InputPath:  in,
			OutputPath: filepath.Join(outDir, filepath.Base(in)),
			Quality:    quality,
		})
		index = append(index, i)
	}

	results, errs := proc.Batch(ctx, reqs)
	worst := apperrors.StatusOK
	for k, i := range index {
		rows[i].result, rows[i].err = results[k], errs[k]
		if st := apperrors.Status(errs[k]); st < worst {
			worst = st
		}
		if errs[k] == nil && jr != nil {
			_ = jr.Record(ctx, reqs[k].InputPath, reqs[k].OutputPath, quality, results[k].OutputBytes)
		}
	}
	return rows, worst
}

func renderBatch(rows []batchRow) string {
	headers := []string{"Input", "Size", "Quality", "Before", "After", "Saved", "Status"}
	aligns := []columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft}

	var (
		table       [][]string
		totalBefore int64
		totalAfter  int64
	)
	for _, r := range rows {
		switch {
		case r.skipped:
			table = append(table, []string{r.input, "", "", "", "", "", "skipped"})
		case r.err != nil:
			table = append(table, []string{r.input, "", "", "", "", "", fmt.Sprintf("failed (%d)", apperrors.Status(r.err))})
		default:
			res := r.result
			totalBefore += res.InputBytes
			totalAfter += res.OutputBytes
			table = append(table, []string{
				r.input,
				fmt.Sprintf("%dx%d", res.Layout.Width, res.Layout.Height),
				strconv.Itoa(res.Quality),
				humanize.Bytes(uint64(res.InputBytes)),
				humanize.Bytes(uint64(res.OutputBytes)),
				savedPercent(res.InputBytes, res.OutputBytes),
				"ok",
			})
		}
	}
	table = append(table, []string{
		"total", "", "",
		humanize.Bytes(uint64(totalBefore)),
		humanize.Bytes(uint64(totalAfter)),
		savedPercent(totalBefore, totalAfter),
		"",
	})
	return renderTable(headers, table, aligns)
}

func savedPercent(before, after int64) string {
	if before <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(before-after)/float64(before))
}
