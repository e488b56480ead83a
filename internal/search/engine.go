package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gregorymulla/grepctl/internal/clients/vertex"
	"github.com/gregorymulla/grepctl/internal/corpus"
	"github.com/gregorymulla/grepctl/internal/domain"
	"github.com/gregorymulla/grepctl/internal/pkg/ctxutil"
	pkgerrors "github.com/gregorymulla/grepctl/internal/pkg/errors"
	"github.com/gregorymulla/grepctl/internal/platform/logger"
)

const excerptLen = 200

// Engine ranks corpus documents by semantic similarity to a natural-language
// query. A query that cannot be embedded fails outright; there is no keyword
// fallback, so results are always vector-ranked or absent.
type Engine interface {
	Search(ctx context.Context, query string, opts Options) ([]domain.SearchResult, error)
}

// Options narrow and bound one search.
type Options struct {
	// Modalities restricts candidates; empty means all.
	Modalities []domain.Modality
	// TopK bounds the result count. Zero or negative means 10.
	TopK int
}

type engine struct {
	log      *logger.Logger
	store    corpus.Store
	embedder vertex.Embedder
}

func NewEngine(log *logger.Logger, store corpus.Store, embedder vertex.Embedder) (Engine, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if store == nil {
		return nil, fmt.Errorf("store required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	return &engine{
		log:      log.With("service", "search.Engine"),
		store:    store,
		embedder: embedder,
	}, nil
}

func (e *engine) Search(ctx context.Context, query string, opts Options) ([]domain.SearchResult, error) {
	ctx = ctxutil.Default(ctx)
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query", pkgerrors.ErrEmptyText)
	}
	if opts.TopK <= 0 {
		opts.TopK = 10
	}

	qvec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// Modality filtering happens before scoring so excluded documents never
	// influence the ranking or consume candidate slots.
	docs, err := e.store.Scan(ctx, corpus.Filter{
		Modalities:   opts.Modalities,
		HasEmbedding: corpus.BoolPtr(true),
	})
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(docs))
	for _, doc := range docs {
		score, ok := cosine(qvec, doc.Embedding)
		if !ok {
			continue
		}
		results = append(results, domain.SearchResult{
			URI:      doc.URI,
			Modality: doc.Modality,
			Score:    score,
			Excerpt:  excerpt(doc.CanonicalText),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].URI < results[j].URI
	})
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}

	e.log.Debug("search complete", "candidates", len(docs), "returned", len(results))
	return results, nil
}

// cosine returns the cosine similarity of two vectors. Mismatched dimensions
// and zero-norm vectors are unrankable rather than zero-scored.
func cosine(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// excerpt returns the leading slice of canonical text for display. A cut that
// lands inside a multi-byte rune drops the whole rune so the excerpt stays
// valid UTF-8.
func excerpt(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= excerptLen {
		return text
	}
	cut := text[:excerptLen]
	for len(cut) > 0 {
		r, size := utf8.DecodeLastRuneInString(cut)
		if r != utf8.RuneError || size > 1 {
			break
		}
		cut = cut[:len(cut)-1]
	}
	return cut + "..."
}
