package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/gregorymulla/grepctl/internal/clients/vertex"
	"github.com/gregorymulla/grepctl/internal/corpus"
	"github.com/gregorymulla/grepctl/internal/domain"
	"github.com/gregorymulla/grepctl/internal/extract"
	"github.com/gregorymulla/grepctl/internal/modality"
	"github.com/gregorymulla/grepctl/internal/pkg/ctxutil"
	pkgerrors "github.com/gregorymulla/grepctl/internal/pkg/errors"
	"github.com/gregorymulla/grepctl/internal/pkg/httpx"
	"github.com/gregorymulla/grepctl/internal/platform/logger"
)

// Coordinator drives a full ingestion run: classify, extract, persist, embed.
type Coordinator interface {
	Run(ctx context.Context, uris []string) (*domain.IngestionStats, error)
}

// Options tune one coordinator. Zero values fall back to safe defaults.
type Options struct {
	// Concurrency bounds simultaneous extraction and embedding workers.
	Concurrency int
	// RatePerSecond throttles remote analysis and embedding calls across all
	// workers. Zero disables throttling.
	RatePerSecond float64
	// BatchSize chunks the embedding pass; InterBatchWait pauses between
	// chunks. Zero wait disables the pause.
	BatchSize      int
	InterBatchWait time.Duration
}

type coordinator struct {
	log      *logger.Logger
	store    corpus.Store
	registry *extract.Registry
	embedder vertex.Embedder
	limiter  *rate.Limiter
	opts     Options
}

func NewCoordinator(log *logger.Logger, store corpus.Store, registry *extract.Registry, embedder vertex.Embedder, opts Options) (Coordinator, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if store == nil {
		return nil, fmt.Errorf("store required")
	}
	if registry == nil {
		return nil, fmt.Errorf("extractor registry required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}

	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}

	return &coordinator{
		log:      log.With("service", "ingest.Coordinator"),
		store:    store,
		registry: registry,
		embedder: embedder,
		limiter:  limiter,
		opts:     opts,
	}, nil
}

// Run ingests the given URIs. Classification happens exactly once per URI up
// front; unsupported extensions are counted as failures, not errors. The run
// itself only fails on context cancellation or a store that stops accepting
// writes entirely.
func (c *coordinator) Run(ctx context.Context, uris []string) (*domain.IngestionStats, error) {
	ctx = ctxutil.Default(ctx)
	runID := uuid.NewString()
	slog := c.log.With("run_id", runID)

	stats := &domain.IngestionStats{}
	var mu sync.Mutex

	partitions := c.partition(slog, uris, stats)
	slog.Info("ingestion run starting",
		"uris", len(uris), "modalities", len(partitions), "concurrency", c.opts.Concurrency)

	// Pass 1: extraction. Each worker handles one document end to end so a
	// slow video never blocks a batch of text files behind it.
	var extracted []string
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for _, m := range sortedModalities(partitions) {
		ext, ok := c.registry.For(m)
		if !ok {
			mu.Lock()
			stats.Failed += len(partitions[m])
			mu.Unlock()
			slog.Warn("no extraction adapter", "modality", m, "uris", len(partitions[m]))
			continue
		}
		for _, uri := range partitions[m] {
			uri := uri
			m := m
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				outcome, err := c.extractOne(gctx, ext, m, uri)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					stats.Failed++
					slog.Warn("extraction failed", "uri", uri, "modality", m, "error", err)
				case outcome == outcomeSkipped:
					stats.Skipped++
				default:
					stats.Extracted++
					extracted = append(extracted, uri)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	// Pass 2: embedding for everything extracted this run plus any older
	// record still missing a vector. Documents embed one chunk per remote
	// call; a failed chunk retries one document at a time so a single bad
	// record cannot sink the rest of its chunk.
	pending, err := c.embedTargets(ctx, extracted)
	if err != nil {
		return stats, err
	}

	for start := 0; start < len(pending); start += c.opts.BatchSize {
		end := start + c.opts.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		if err := c.embedChunk(ctx, slog, pending[start:end], stats, &mu); err != nil {
			return stats, err
		}
		if end < len(pending) && c.opts.InterBatchWait > 0 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(httpx.Jitter(c.opts.InterBatchWait)):
			}
		}
	}

	slog.Info("ingestion run complete",
		"attempted", stats.Attempted, "skipped", stats.Skipped,
		"extracted", stats.Extracted, "failed", stats.Failed,
		"embedded", stats.Embedded, "embed_failed", stats.EmbedFailed)
	return stats, nil
}

// partition classifies every URI exactly once and groups the supported ones by
// modality. Unsupported URIs are counted as failed here and never re-examined.
func (c *coordinator) partition(slog *logger.Logger, uris []string, stats *domain.IngestionStats) map[domain.Modality][]string {
	out := make(map[domain.Modality][]string)
	for _, uri := range uris {
		stats.Attempted++
		m, err := modality.Classify(uri)
		if err != nil {
			stats.Failed++
			slog.Warn("unsupported uri", "uri", uri, "error", err)
			continue
		}
		out[m] = append(out[m], uri)
	}
	return out
}

type extractOutcome int

const (
	outcomeExtracted extractOutcome = iota
	outcomeSkipped
)

// extractOne extracts and upserts a single document, skipping documents whose
// canonical text already exists under the same modality. Re-running ingestion
// over an unchanged corpus is therefore a no-op.
func (c *coordinator) extractOne(ctx context.Context, ext extract.Extractor, m domain.Modality, uri string) (extractOutcome, error) {
	existing, err := c.store.GetByURI(ctx, uri)
	if err != nil && !errors.Is(err, pkgerrors.ErrNotFound) {
		return 0, fmt.Errorf("lookup: %w", err)
	}
	if existing != nil && existing.Modality == m && existing.HasText() {
		return outcomeSkipped, nil
	}

	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	res, err := ext.Extract(ctx, uri)
	if err != nil {
		return 0, err
	}

	doc := &domain.Document{
		URI:           uri,
		Modality:      m,
		CanonicalText: res.CanonicalText,
		Metadata:      res.Metadata,
	}
	if err := c.store.Upsert(ctx, doc); err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}
	return outcomeExtracted, nil
}

// embedTargets merges this run's freshly extracted URIs with any record that
// has text but no vector, deduplicated and in stable order.
func (c *coordinator) embedTargets(ctx context.Context, extracted []string) ([]string, error) {
	missing, err := c.store.Scan(ctx, corpus.Filter{
		HasText:      corpus.BoolPtr(true),
		HasEmbedding: corpus.BoolPtr(false),
	})
	if err != nil {
		return nil, fmt.Errorf("scan unembedded: %w", err)
	}

	seen := make(map[string]bool, len(extracted)+len(missing))
	var out []string
	for _, uri := range extracted {
		if !seen[uri] {
			seen[uri] = true
			out = append(out, uri)
		}
	}
	for _, doc := range missing {
		if !seen[doc.URI] {
			seen[doc.URI] = true
			out = append(out, doc.URI)
		}
	}
	sort.Strings(out)
	return out, nil
}

// embedChunk embeds one chunk of URIs through a single batch call and
// persists the vectors. When the batch call fails it falls back to one call
// per document, so only the documents that actually cannot embed count as
// failures.
func (c *coordinator) embedChunk(ctx context.Context, slog *logger.Logger, uris []string, stats *domain.IngestionStats, mu *sync.Mutex) error {
	docs := make([]*domain.Document, 0, len(uris))
	for _, uri := range uris {
		doc, err := c.store.GetByURI(ctx, uri)
		switch {
		case err != nil:
			stats.EmbedFailed++
			slog.Warn("embedding failed", "uri", uri, "error", err)
		case !doc.HasText():
			stats.EmbedFailed++
			slog.Warn("embedding failed", "uri", uri, "error", pkgerrors.ErrEmptyText)
		default:
			docs = append(docs, doc)
		}
	}
	if len(docs) == 0 {
		return nil
	}

	if err := c.wait(ctx); err != nil {
		return err
	}
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.CanonicalText
	}
	vecs, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		slog.Warn("batch embed failed, retrying per document",
			"size", len(docs), "error", err, "retryable", httpx.IsRetryableError(err))
		return c.embedSingly(ctx, slog, docs, stats, mu)
	}

	now := time.Now().UTC()
	for i, doc := range docs {
		if err := c.store.SetEmbedding(ctx, doc.URI, vecs[i], now); err != nil {
			stats.EmbedFailed++
			slog.Warn("embedding failed", "uri", doc.URI, "error", err)
			continue
		}
		stats.Embedded++
	}
	return nil
}

// embedSingly is the fallback path for a failed batch call.
func (c *coordinator) embedSingly(ctx context.Context, slog *logger.Logger, docs []*domain.Document, stats *domain.IngestionStats, mu *sync.Mutex) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := c.embedOne(gctx, doc); err != nil {
				mu.Lock()
				stats.EmbedFailed++
				mu.Unlock()
				slog.Warn("embedding failed",
					"uri", doc.URI, "error", err, "retryable", httpx.IsRetryableError(err))
				return nil
			}
			mu.Lock()
			stats.Embedded++
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (c *coordinator) embedOne(ctx context.Context, doc *domain.Document) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	vec, err := c.embedder.Embed(ctx, doc.CanonicalText)
	if err != nil {
		return err
	}
	if err := c.store.SetEmbedding(ctx, doc.URI, vec, time.Now().UTC()); err != nil {
		return fmt.Errorf("set embedding: %w", err)
	}
	return nil
}

func (c *coordinator) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func sortedModalities(parts map[domain.Modality][]string) []domain.Modality {
	out := make([]domain.Modality, 0, len(parts))
	for m := range parts {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
