package main

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eringen/pubcover"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var file string
	var local bool
	var debounceMS int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run the batch whenever the titles file changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger(cmd)
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Source.TitlesFile
			}
			if strings.TrimSpace(file) == "" {
				return errors.New("watch needs a titles file (--titles or source.titles_file)")
			}
			renderer, err := newRenderer(cfg)
			if err != nil {
				return err
			}
			opts := pubcover.BatchOptions{
				Renderer: renderer,
				Workers:  cfg.Batch.Workers,
				LockFile: cfg.Batch.LockFile,
				Logger:   logger,
			}
			if local {
				opts.Mode = pubcover.ModeLocal
				opts.OutputDir = cfg.Output.Dir
			} else {
				store, _, closeStore, err := publishTarget(cfg, false, false)
				if err != nil {
					return err
				}
				defer closeStore()
				opts.Mode = pubcover.ModePublish
				opts.Store = store
			}
			batch, err := pubcover.NewBatch(opts)
			if err != nil {
				return err
			}

			run := watchRun(cmd, batch, file, logger)
			run(cmd.Context())

			w, err := pubcover.NewWatcher(filepath.Clean(file), msDuration(debounceMS), run, logger)
			if err != nil {
				return err
			}
			return w.Watch(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&file, "titles", "t", "", "YAML file listing titles (default source.titles_file)")
	cmd.Flags().BoolVar(&local, "local", false, "Write covers to output.dir instead of publishing")
	cmd.Flags().IntVar(&debounceMS, "debounce", 0, "Milliseconds to wait for writes to settle")
	return cmd
}

// watchRun returns the callback the watcher invokes on every change. A
// titles file that fails to parse is logged and the previous covers stay.
func watchRun(cmd *cobra.Command, batch *pubcover.Batch, file string, logger *slog.Logger) func(context.Context) {
	return func(ctx context.Context) {
		titles, err := pubcover.LoadTitlesFile(file)
		if err != nil {
			logger.Error("load titles failed", "path", file, "error", err)
			return
		}
		report, err := batch.Run(ctx, titles)
		if err != nil {
			logger.Error("batch failed to start", "error", err)
			return
		}
		printReport(cmd, report)
	}
}

func msDuration(ms int) time.Duration {
	if ms <= 0 {
		return pubcover.DefaultDebounce
	}
	return time.Duration(ms) * time.Millisecond
}
