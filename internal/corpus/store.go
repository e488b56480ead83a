package corpus

import (
	"context"
	"time"

	"github.com/gregorymulla/grepctl/internal/domain"
)

// Filter narrows Scan and Count. Zero value matches everything.
type Filter struct {
	Modalities   []domain.Modality
	HasText      *bool
	HasEmbedding *bool
}

// Matches reports whether doc satisfies the filter. Implementations may use it
// directly or translate the filter into their own query language.
func (f Filter) Matches(doc *domain.Document) bool {
	if doc == nil {
		return false
	}
	if len(f.Modalities) > 0 {
		ok := false
		for _, m := range f.Modalities {
			if doc.Modality == m {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.HasText != nil && doc.HasText() != *f.HasText {
		return false
	}
	if f.HasEmbedding != nil && doc.HasEmbedding() != *f.HasEmbedding {
		return false
	}
	return true
}

// Store is the keyed corpus behind the pipeline: one record per URI.
//
// All writes are per-document and atomic per field-set. Upsert replaces the
// extraction fields (modality, canonical text, metadata) and clears any stored
// embedding, since new text invalidates the old vector; CreatedAt of an
// existing record is preserved. SetEmbedding and ClearEmbedding touch only the
// vector fields. Concurrent writers for different URIs never conflict.
type Store interface {
	Upsert(ctx context.Context, doc *domain.Document) error
	GetByURI(ctx context.Context, uri string) (*domain.Document, error)
	Scan(ctx context.Context, f Filter) ([]*domain.Document, error)
	Count(ctx context.Context, f Filter) (int, error)
	SetEmbedding(ctx context.Context, uri string, vec []float32, indexedAt time.Time) error
	ClearEmbedding(ctx context.Context, uri string) error
	Close() error
}

// BoolPtr is a convenience for building filters.
func BoolPtr(b bool) *bool { return &b }
