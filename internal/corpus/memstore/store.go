package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gregorymulla/grepctl/internal/corpus"
	"github.com/gregorymulla/grepctl/internal/domain"
	"github.com/gregorymulla/grepctl/internal/pkg/errors"
)

// Store is an in-memory corpus store. It backs tests and keeps the anomaly
// scan logic storage-agnostic.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*domain.Document
	now  func() time.Time
}

func New() *Store {
	return &Store{
		docs: make(map[string]*domain.Document),
		now:  time.Now,
	}
}

// WithClock overrides the clock used for CreatedAt. Tests use a fixed clock.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Upsert(ctx context.Context, doc *domain.Document) error {
	if doc == nil || doc.URI == "" {
		return errors.ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := s.now().UTC()
	if prev, ok := s.docs[doc.URI]; ok {
		createdAt = prev.CreatedAt
	}
	cp := cloneDoc(doc)
	cp.CreatedAt = createdAt
	cp.Embedding = nil
	cp.IndexedAt = nil
	s.docs[doc.URI] = cp
	return nil
}

func (s *Store) GetByURI(ctx context.Context, uri string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uri]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return cloneDoc(doc), nil
}

func (s *Store) Scan(ctx context.Context, f corpus.Filter) ([]*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		if f.Matches(doc) {
			out = append(out, cloneDoc(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out, nil
}

func (s *Store) Count(ctx context.Context, f corpus.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, doc := range s.docs {
		if f.Matches(doc) {
			n++
		}
	}
	return n, nil
}

func (s *Store) SetEmbedding(ctx context.Context, uri string, vec []float32, indexedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	if !ok {
		return errors.ErrNotFound
	}
	if vec == nil {
		doc.Embedding = nil
		doc.IndexedAt = nil
		return nil
	}
	doc.Embedding = cloneVec(vec)
	t := indexedAt.UTC()
	doc.IndexedAt = &t
	return nil
}

func (s *Store) ClearEmbedding(ctx context.Context, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	if !ok {
		return errors.ErrNotFound
	}
	doc.Embedding = nil
	doc.IndexedAt = nil
	return nil
}

func (s *Store) Close() error { return nil }

// cloneVec preserves the nil / empty / populated distinction: an empty
// non-nil vector is a persisted anomaly, not an absent one.
func cloneVec(vec []float32) []float32 {
	if vec == nil {
		return nil
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)
	return cp
}

func cloneDoc(doc *domain.Document) *domain.Document {
	cp := *doc
	cp.Embedding = cloneVec(doc.Embedding)
	if doc.Metadata != nil {
		cp.Metadata = make(map[string]any, len(doc.Metadata))
		for k, v := range doc.Metadata {
			cp.Metadata[k] = v
		}
	}
	if doc.IndexedAt != nil {
		t := *doc.IndexedAt
		cp.IndexedAt = &t
	}
	return &cp
}
