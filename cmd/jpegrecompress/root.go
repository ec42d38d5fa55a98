package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Skryldev/jpeg-recompressor/core"
	apperrors "github.com/Skryldev/jpeg-recompressor/errors"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}
	var (
		quality    int
		targetSize string
	)

	rootCmd := &cobra.Command{
		Use:           "jpegrecompress <input.jpg> <output.jpg>",
		Short:         "Re-encode a JPEG at a different quality",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			proc, cleanup, err := ctx.newProcessor(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			req := core.Request{InputPath: args[0], OutputPath: args[1], Quality: cfg.DefaultQuality}
			if cmd.Flags().Changed("quality") {
				req.Quality = quality
			}

			target := cfg.Adaptive.TargetSizeBytes
			if targetSize != "" {
				n, err := humanize.ParseBytes(targetSize)
				if err != nil {
					return fmt.Errorf("--target-size: %w", err)
				}
				target = int64(n)
			}

			var res *core.Result
			if target > 0 {
				res, err = proc.RecompressToSize(cmd.Context(), req, target)
			} else {
				res, err = proc.Recompress(cmd.Context(), req)
			}
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return &exitError{code: -apperrors.Status(err), err: err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s → %s  %dx%d q=%d  %s → %s\n",
				res.Input, res.Output, res.Layout.Width, res.Layout.Height, res.Quality,
				humanize.Bytes(uint64(res.InputBytes)), humanize.Bytes(uint64(res.OutputBytes)))
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configPath, "config", "c", "", "TOML configuration file")
	flags.StringVar(&ctx.logLevel, "log-level", "", "debug, info, warn or error")
	flags.BoolVar(&ctx.jsonLogs, "json", false, "JSON logs even on a terminal")
	flags.StringVar(&ctx.decoder, "decoder", "", "decoder backend (stdlib, vips)")
	flags.StringVar(&ctx.encoder, "encoder", "", "encoder backend (stdlib, jpegli, vips)")
	flags.StringVar(&ctx.journalPath, "journal", "", "SQLite journal used by batch to skip processed files")

	rootCmd.Flags().IntVarP(&quality, "quality", "q", 85, "JPEG quality passed to the encoder")
	rootCmd.Flags().StringVar(&targetSize, "target-size", "", "search for the highest quality under this size (e.g. 200KB)")

	rootCmd.AddCommand(newBatchCommand(ctx))
	rootCmd.SetContext(context.Background())
	return rootCmd
}
