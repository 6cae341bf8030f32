package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/eringen/pubcover"
	"github.com/eringen/pubcover/assetstore"
	"github.com/eringen/pubcover/ogimage"
	"github.com/eringen/pubcover/publish"
)

// errItemsFailed is returned after the report has been printed so the
// process exits non-zero.
var errItemsFailed = errors.New("one or more covers failed")

// titleFlags selects where titles come from.
type titleFlags struct {
	file   string
	fromDB bool
}

func (f *titleFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "titles", "t", "", "YAML file listing titles (default source.titles_file)")
	cmd.Flags().BoolVar(&f.fromDB, "from-db", false, "Read titles from published posts in source.database_path")
}

// resolve picks titles from args, then the titles file, then the posts
// database.
func (f *titleFlags) resolve(cfg *pubcover.Config, args []string) ([]pubcover.Title, error) {
	if len(args) > 0 {
		return pubcover.TitlesFromArgs(args), nil
	}
	file := f.file
	if file == "" && !f.fromDB {
		file = cfg.Source.TitlesFile
	}
	if file != "" {
		return pubcover.LoadTitlesFile(file)
	}
	store, err := pubcover.NewStore(cfg.Source.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open posts database: %w", err)
	}
	defer store.Close()
	return pubcover.TitlesFromPosts(store)
}

func newRenderer(cfg *pubcover.Config) (*ogimage.Renderer, error) {
	opts, err := cfg.RendererOptions()
	if err != nil {
		return nil, err
	}
	return ogimage.NewRenderer(opts)
}

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var titles titleFlags
	var outDir string

	cmd := &cobra.Command{
		Use:   "render [title...]",
		Short: "Render covers into a local directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger(cmd)
			if err != nil {
				return err
			}
			list, err := titles.resolve(cfg, args)
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = cfg.Output.Dir
			}
			renderer, err := newRenderer(cfg)
			if err != nil {
				return err
			}
			batch, err := pubcover.NewBatch(pubcover.BatchOptions{
				Renderer:  renderer,
				Mode:      pubcover.ModeLocal,
				OutputDir: outDir,
				Workers:   cfg.Batch.Workers,
				LockFile:  cfg.Batch.LockFile,
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			return runBatch(cmd, batch, list)
		},
	}
	titles.register(cmd)
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "Output directory (default output.dir)")
	return cmd
}

func newPublishCommand(ctx *commandContext) *cobra.Command {
	var titles titleFlags
	var dryRun, direct bool

	cmd := &cobra.Command{
		Use:   "publish [title...]",
		Short: "Render covers and upload the ones that changed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger(cmd)
			if err != nil {
				return err
			}
			list, err := titles.resolve(cfg, args)
			if err != nil {
				return err
			}
			renderer, err := newRenderer(cfg)
			if err != nil {
				return err
			}
			store, history, closeStore, err := publishTarget(cfg, dryRun, direct)
			if err != nil {
				return err
			}
			defer closeStore()

			batch, err := pubcover.NewBatch(pubcover.BatchOptions{
				Renderer: renderer,
				Store:    store,
				Mode:     pubcover.ModePublish,
				Workers:  cfg.Batch.Workers,
				LockFile: cfg.Batch.LockFile,
				History:  history,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			return runBatch(cmd, batch, list)
		},
	}
	titles.register(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Render and hash without contacting the asset server")
	cmd.Flags().BoolVar(&direct, "direct", false, "Write into server.database_path instead of going through the asset server")
	cmd.MarkFlagsMutuallyExclusive("dry-run", "direct")
	return cmd
}

// publishTarget returns the store covers are uploaded to and, when the
// store is local, the database run history is recorded in.
func publishTarget(cfg *pubcover.Config, dryRun, direct bool) (publish.Store, *pubcover.Store, func(), error) {
	switch {
	case dryRun:
		return assetstore.NewMemoryStore(), nil, func() {}, nil
	case direct:
		db, err := pubcover.NewStore(cfg.Server.DatabasePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open asset database: %w", err)
		}
		return db.AssetStore(), db, func() { _ = db.Close() }, nil
	}
	if cfg.Store.URL == "" {
		return nil, nil, nil, fmt.Errorf("store.url is not set (or use --dry-run / --direct)")
	}
	store := assetstore.NewHTTPStore(cfg.Store.URL,
		assetstore.WithToken(cfg.Store.Token),
		assetstore.WithTimeout(cfg.StoreTimeout()),
	)
	return store, nil, func() {}, nil
}

func runBatch(cmd *cobra.Command, batch *pubcover.Batch, titles []pubcover.Title) error {
	if len(titles) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No titles to render.")
		return nil
	}
	report, err := batch.Run(cmd.Context(), titles)
	if err != nil {
		return err
	}
	printReport(cmd, report)
	if report.Failed() {
		return errItemsFailed
	}
	return nil
}

func printReport(cmd *cobra.Command, report pubcover.Report) {
	rows := make([][]string, 0, len(report.Items))
	for _, it := range report.Items {
		detail := it.Path
		if it.Err != nil {
			detail = it.Err.Error()
		}
		size := ""
		if it.FontSize > 0 {
			size = strconv.Itoa(it.FontSize)
		}
		rows = append(rows, []string{
			it.ID,
			it.Status.String(),
			size,
			formatBytes(it.Size),
			shortHash(it.Hash),
			detail,
		})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(
		[]string{"ID", "Status", "Font", "Bytes", "Hash", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	))
	fmt.Fprintf(out, "Run %s: %d uploaded, %d skipped, %d saved, %d failed\n",
		report.RunID,
		report.Count(pubcover.ItemUploaded),
		report.Count(pubcover.ItemSkipped),
		report.Count(pubcover.ItemSaved),
		report.Count(pubcover.ItemFailed),
	)
}

func formatBytes(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

