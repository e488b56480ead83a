package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gregorymulla/grepctl/internal/clients/gcp"
	"github.com/gregorymulla/grepctl/internal/clients/vertex"
	"github.com/gregorymulla/grepctl/internal/config"
	"github.com/gregorymulla/grepctl/internal/corpus"
	"github.com/gregorymulla/grepctl/internal/corpus/sqlitestore"
	"github.com/gregorymulla/grepctl/internal/domain"
	"github.com/gregorymulla/grepctl/internal/extract"
	"github.com/gregorymulla/grepctl/internal/ingest"
	"github.com/gregorymulla/grepctl/internal/platform/logger"
	"github.com/gregorymulla/grepctl/internal/repair"
	"github.com/gregorymulla/grepctl/internal/search"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var cfgPath string
	var jsonOut bool

	root := &cobra.Command{
		Use:           "grepctl",
		Short:         "Multimodal semantic search over a cloud bucket",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "grepctl.yaml", "config file path")
	root.PersistentFlags().BoolVar(&jsonOut, "json", false, "emit machine-readable output")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root.AddCommand(
		newIngestCmd(ctx, &cfgPath, &jsonOut),
		newSearchCmd(ctx, &cfgPath, &jsonOut),
		newRepairCmd(ctx, &cfgPath, &jsonOut),
		newVerifyCmd(ctx, &cfgPath, &jsonOut),
		newStatusCmd(ctx, &cfgPath, &jsonOut),
	)
	return root.Execute()
}

// app bundles the wired services for one command invocation.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	store    corpus.Store
	embedder vertex.Embedder
	closers  []func() error
}

func newApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, err
	}

	store, err := sqlitestore.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	embedder, err := vertex.NewClient(log, vertex.Config{
		ProjectID: cfg.GCP.ProjectID,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("vertex client: %w", err)
	}

	return &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		embedder: embedder,
		closers:  []func() error{store.Close, func() error { log.Sync(); return nil }},
	}, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// extractDeps builds the remote analysis clients. Only ingestion needs these,
// so search and verify stay usable without Vision/Speech/Video access.
func (a *app) extractDeps() (extract.Deps, error) {
	blobs, err := gcp.NewBlobSource(a.log)
	if err != nil {
		return extract.Deps{}, fmt.Errorf("storage client: %w", err)
	}
	vis, err := gcp.NewVision(a.log)
	if err != nil {
		return extract.Deps{}, fmt.Errorf("vision client: %w", err)
	}
	sp, err := gcp.NewSpeech(a.log)
	if err != nil {
		return extract.Deps{}, fmt.Errorf("speech client: %w", err)
	}
	vid, err := gcp.NewVideo(a.log)
	if err != nil {
		return extract.Deps{}, fmt.Errorf("video client: %w", err)
	}
	a.closers = append(a.closers, blobs.Close, vis.Close, sp.Close, vid.Close)

	deps := extract.Deps{Blobs: blobs, Vision: vis, Speech: sp, Video: vid}

	// PDFs need a configured Document AI processor; everything else works
	// without one, so its absence only fails pdf documents.
	if a.cfg.GCP.DocAIProcessorID != "" {
		docs, err := gcp.NewDocumentParser(a.log, gcp.DocAIConfig{
			ProjectID:   a.cfg.GCP.ProjectID,
			Location:    a.cfg.GCP.Location,
			ProcessorID: a.cfg.GCP.DocAIProcessorID,
		})
		if err != nil {
			return extract.Deps{}, fmt.Errorf("document ai client: %w", err)
		}
		a.closers = append(a.closers, docs.Close)
		deps.Docs = docs
	} else {
		a.log.Warn("document ai processor not configured, pdf documents will fail extraction")
	}

	return deps, nil
}

func newIngestCmd(ctx context.Context, cfgPath *string, jsonOut *bool) *cobra.Command {
	var bucket, prefix string
	cmd := &cobra.Command{
		Use:   "ingest [gs://uri ...]",
		Short: "Extract and embed documents from explicit URIs or a bucket listing",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			deps, err := a.extractDeps()
			if err != nil {
				return err
			}

			uris := args
			if len(uris) == 0 {
				b := bucket
				if b == "" {
					b = a.cfg.GCP.Bucket
				}
				if b == "" {
					return fmt.Errorf("no URIs given and no bucket configured")
				}
				uris, err = deps.Blobs.List(ctx, b, prefix)
				if err != nil {
					return fmt.Errorf("list bucket %s: %w", b, err)
				}
			}

			registry := extract.NewRegistry(a.log, deps)
			coord, err := ingest.NewCoordinator(a.log, a.store, registry, a.embedder, ingest.Options{
				Concurrency:    a.cfg.Ingest.Concurrency,
				RatePerSecond:  a.cfg.Ingest.RatePerSecond,
				BatchSize:      a.cfg.Ingest.BatchSize,
				InterBatchWait: a.cfg.Ingest.InterBatchWait,
			})
			if err != nil {
				return err
			}

			stats, err := coord.Run(ctx, uris)
			if err != nil {
				return err
			}
			if *jsonOut {
				return printJSON(cmd, stats)
			}
			cmd.Printf("attempted=%d skipped=%d extracted=%d failed=%d embedded=%d embed_failed=%d\n",
				stats.Attempted, stats.Skipped, stats.Extracted, stats.Failed,
				stats.Embedded, stats.EmbedFailed)
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "bucket to list when no URIs are given")
	cmd.Flags().StringVar(&prefix, "prefix", "", "object prefix filter for bucket listing")
	return cmd
}

func newSearchCmd(ctx context.Context, cfgPath *string, jsonOut *bool) *cobra.Command {
	var topK int
	var modalities []string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank indexed documents by semantic similarity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			var mods []domain.Modality
			for _, s := range modalities {
				m, err := parseModality(s)
				if err != nil {
					return err
				}
				mods = append(mods, m)
			}

			eng, err := search.NewEngine(a.log, a.store, a.embedder)
			if err != nil {
				return err
			}
			results, err := eng.Search(ctx, args[0], search.Options{Modalities: mods, TopK: topK})
			if err != nil {
				return err
			}
			if *jsonOut {
				return printJSON(cmd, results)
			}
			for i, r := range results {
				cmd.Printf("%2d. %.4f  [%s]  %s\n    %s\n", i+1, r.Score, r.Modality, r.URI, r.Excerpt)
			}
			if len(results) == 0 {
				cmd.Println("no results")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top", 10, "maximum number of results")
	cmd.Flags().StringSliceVar(&modalities, "modality", nil, "restrict to modalities (repeatable)")
	return cmd
}

func newRepairCmd(ctx context.Context, cfgPath *string, jsonOut *bool) *cobra.Command {
	var modalities []string
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Find and re-embed documents with missing or malformed vectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			var mods []domain.Modality
			for _, s := range modalities {
				m, err := parseModality(s)
				if err != nil {
					return err
				}
				mods = append(mods, m)
			}

			eng, err := repair.NewEngine(a.log, a.store, a.embedder, a.cfg.Ingest.Concurrency)
			if err != nil {
				return err
			}
			stats, err := eng.ScanAndRepair(ctx, mods...)
			if err != nil {
				return err
			}
			if *jsonOut {
				return printJSON(cmd, stats)
			}
			cmd.Printf("scanned=%d null=%d empty=%d wrong_dim=%d repaired=%d failed=%d\n",
				stats.Scanned, stats.NullFound, stats.EmptyFound, stats.WrongDimFound,
				stats.Repaired, stats.Failed)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&modalities, "modality", nil, "restrict repair to modalities (repeatable)")
	return cmd
}

func newVerifyCmd(ctx context.Context, cfgPath *string, jsonOut *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Report per-modality embedding health",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			eng, err := repair.NewEngine(a.log, a.store, a.embedder, a.cfg.Ingest.Concurrency)
			if err != nil {
				return err
			}
			reports, err := eng.Verify(ctx)
			if err != nil {
				return err
			}
			if *jsonOut {
				return printJSON(cmd, reports)
			}
			for _, r := range reports {
				cmd.Printf("%-10s total=%d valid=%d null=%d empty=%d wrong_dim=%d\n",
					r.Modality, r.Total, r.Valid, r.NullEmbedding, r.EmptyEmbedding, r.WrongDimension)
			}
			return nil
		},
	}
}

func newStatusCmd(ctx context.Context, cfgPath *string, jsonOut *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show corpus document counts per modality",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			type row struct {
				Modality domain.Modality `json:"modality"`
				Total    int             `json:"total"`
				Embedded int             `json:"embedded"`
			}
			var rows []row
			for _, m := range domain.AllModalities() {
				total, err := a.store.Count(ctx, corpus.Filter{Modalities: []domain.Modality{m}})
				if err != nil {
					return err
				}
				if total == 0 {
					continue
				}
				embedded, err := a.store.Count(ctx, corpus.Filter{
					Modalities:   []domain.Modality{m},
					HasEmbedding: corpus.BoolPtr(true),
				})
				if err != nil {
					return err
				}
				rows = append(rows, row{Modality: m, Total: total, Embedded: embedded})
			}
			if *jsonOut {
				return printJSON(cmd, rows)
			}
			if len(rows) == 0 {
				cmd.Println("corpus is empty")
				return nil
			}
			for _, r := range rows {
				cmd.Printf("%-10s total=%d embedded=%d\n", r.Modality, r.Total, r.Embedded)
			}
			return nil
		},
	}
}

func parseModality(s string) (domain.Modality, error) {
	m := domain.Modality(s)
	for _, known := range domain.AllModalities() {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown modality %q", s)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
