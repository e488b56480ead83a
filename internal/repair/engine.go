package repair

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gregorymulla/grepctl/internal/clients/vertex"
	"github.com/gregorymulla/grepctl/internal/corpus"
	"github.com/gregorymulla/grepctl/internal/domain"
	"github.com/gregorymulla/grepctl/internal/pkg/ctxutil"
	"github.com/gregorymulla/grepctl/internal/pkg/httpx"
	"github.com/gregorymulla/grepctl/internal/platform/logger"
)

// Engine restores corpus embedding health. Repair is idempotent: once a pass
// fixes every anomaly, further passes scan and find nothing.
type Engine interface {
	ScanAndRepair(ctx context.Context, modalities ...domain.Modality) (*domain.RepairStats, error)
	Verify(ctx context.Context) ([]domain.VerifyReport, error)
}

type engine struct {
	log         *logger.Logger
	store       corpus.Store
	embedder    vertex.Embedder
	concurrency int
}

func NewEngine(log *logger.Logger, store corpus.Store, embedder vertex.Embedder, concurrency int) (Engine, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if store == nil {
		return nil, fmt.Errorf("store required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if concurrency <= 0 {
		concurrency = 5
	}
	return &engine{
		log:         log.With("service", "repair.Engine"),
		store:       store,
		embedder:    embedder,
		concurrency: concurrency,
	}, nil
}

// anomaly classes, in the order they are counted.
const (
	anomalyNull     = "null"
	anomalyEmpty    = "empty"
	anomalyWrongDim = "wrong_dimension"
)

// classify returns the anomaly class of a document's vector, or "" if healthy.
// Records without canonical text are extraction problems, not repair targets.
func (e *engine) classify(doc *domain.Document) string {
	if !doc.HasText() {
		return ""
	}
	switch {
	case doc.Embedding == nil:
		return anomalyNull
	case len(doc.Embedding) == 0:
		return anomalyEmpty
	case len(doc.Embedding) != e.embedder.Dimension():
		return anomalyWrongDim
	default:
		return ""
	}
}

// ScanAndRepair finds every anomalous vector, clears the bad ones so a crash
// mid-run leaves records in the plain "needs embedding" state, then re-embeds
// from stored canonical text. With no modalities given the whole corpus is
// scanned.
func (e *engine) ScanAndRepair(ctx context.Context, modalities ...domain.Modality) (*domain.RepairStats, error) {
	ctx = ctxutil.Default(ctx)
	stats := &domain.RepairStats{}

	docs, err := e.store.Scan(ctx, corpus.Filter{
		Modalities: modalities,
		HasText:    corpus.BoolPtr(true),
	})
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	stats.Scanned = len(docs)

	// Phase 1: classify and clear.
	var targets []string
	for _, doc := range docs {
		class := e.classify(doc)
		if class == "" {
			continue
		}
		switch class {
		case anomalyNull:
			stats.NullFound++
		case anomalyEmpty:
			stats.EmptyFound++
		case anomalyWrongDim:
			stats.WrongDimFound++
		}
		if class != anomalyNull {
			if err := e.store.ClearEmbedding(ctx, doc.URI); err != nil {
				stats.Failed++
				e.log.Warn("clear failed", "uri", doc.URI, "class", class, "error", err)
				continue
			}
		}
		targets = append(targets, doc.URI)
	}

	if len(targets) == 0 {
		e.log.Info("repair scan clean", "scanned", stats.Scanned)
		return stats, nil
	}
	e.log.Info("repairing vectors",
		"null", stats.NullFound, "empty", stats.EmptyFound, "wrong_dim", stats.WrongDimFound)

	// Phase 2: re-embed.
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, uri := range targets {
		uri := uri
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := e.reembed(gctx, uri)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				e.log.Warn("re-embed failed",
					"uri", uri, "error", err, "retryable", httpx.IsRetryableError(err))
			} else {
				stats.Repaired++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	e.log.Info("repair complete", "repaired", stats.Repaired, "failed", stats.Failed)
	return stats, nil
}

func (e *engine) reembed(ctx context.Context, uri string) error {
	doc, err := e.store.GetByURI(ctx, uri)
	if err != nil {
		return fmt.Errorf("lookup: %w", err)
	}
	vec, err := e.embedder.Embed(ctx, doc.CanonicalText)
	if err != nil {
		return err
	}
	if err := e.store.SetEmbedding(ctx, uri, vec, time.Now().UTC()); err != nil {
		return fmt.Errorf("set embedding: %w", err)
	}
	return nil
}

// Verify reports per-modality embedding health without mutating anything.
// Modalities with no documents are omitted.
func (e *engine) Verify(ctx context.Context) ([]domain.VerifyReport, error) {
	ctx = ctxutil.Default(ctx)

	var reports []domain.VerifyReport
	for _, m := range domain.AllModalities() {
		docs, err := e.store.Scan(ctx, corpus.Filter{Modalities: []domain.Modality{m}})
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", m, err)
		}
		if len(docs) == 0 {
			continue
		}
		r := domain.VerifyReport{Modality: m, Total: len(docs)}
		for _, doc := range docs {
			switch {
			case doc.Embedding == nil:
				r.NullEmbedding++
			case len(doc.Embedding) == 0:
				r.EmptyEmbedding++
			case len(doc.Embedding) != e.embedder.Dimension():
				r.WrongDimension++
			default:
				r.Valid++
			}
		}
		reports = append(reports, r)
	}
	return reports, nil
}
