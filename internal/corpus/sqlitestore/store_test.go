package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gregorymulla/grepctl/internal/corpus"
	"github.com/gregorymulla/grepctl/internal/domain"
	pkgerrors "github.com/gregorymulla/grepctl/internal/pkg/errors"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "corpus.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s.WithClock(func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	})
}

func TestUpsertRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := &domain.Document{
		URI:           "gs://b/a.txt",
		Modality:      domain.ModalityText,
		CanonicalText: "hello",
		Metadata:      map[string]any{"size_bytes": float64(5)},
	}
	if err := s.Upsert(ctx, doc); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.GetByURI(ctx, doc.URI)
	if err != nil {
		t.Fatalf("GetByURI: %v", err)
	}
	if got.Modality != domain.ModalityText || got.CanonicalText != "hello" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Metadata["size_bytes"] != float64(5) {
		t.Fatalf("metadata: want size_bytes=5 got=%v", got.Metadata["size_bytes"])
	}
	if got.Embedding != nil || got.IndexedAt != nil {
		t.Fatal("fresh row must have no vector and no indexed_at")
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetByURI(context.Background(), "gs://b/none"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestReUpsertClearsVectorKeepsCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	uri := "gs://b/a.txt"

	if err := s.Upsert(ctx, &domain.Document{URI: uri, Modality: domain.ModalityText, CanonicalText: "v1"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.SetEmbedding(ctx, uri, []float32{1, 2}, time.Now()); err != nil {
		t.Fatalf("SetEmbedding: %v", err)
	}
	before, _ := s.GetByURI(ctx, uri)

	s.WithClock(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) })
	if err := s.Upsert(ctx, &domain.Document{URI: uri, Modality: domain.ModalityText, CanonicalText: "v2"}); err != nil {
		t.Fatalf("re-Upsert: %v", err)
	}

	after, err := s.GetByURI(ctx, uri)
	if err != nil {
		t.Fatalf("GetByURI: %v", err)
	}
	if after.CanonicalText != "v2" {
		t.Fatalf("canonical text: want=v2 got=%q", after.CanonicalText)
	}
	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Fatalf("created_at changed on re-upsert: %v -> %v", before.CreatedAt, after.CreatedAt)
	}
	if after.Embedding != nil || after.IndexedAt != nil {
		t.Fatal("re-upsert must clear the stored vector")
	}
}

func TestEmbeddingNilEmptyDistinction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, uri := range []string{"gs://b/null.txt", "gs://b/empty.txt", "gs://b/ok.txt"} {
		if err := s.Upsert(ctx, &domain.Document{URI: uri, Modality: domain.ModalityText, CanonicalText: "x"}); err != nil {
			t.Fatalf("Upsert %s: %v", uri, err)
		}
	}
	if err := s.SetEmbedding(ctx, "gs://b/empty.txt", []float32{}, now); err != nil {
		t.Fatalf("SetEmbedding empty: %v", err)
	}
	if err := s.SetEmbedding(ctx, "gs://b/ok.txt", []float32{0.5, -0.5}, now); err != nil {
		t.Fatalf("SetEmbedding ok: %v", err)
	}

	nullDoc, _ := s.GetByURI(ctx, "gs://b/null.txt")
	emptyDoc, _ := s.GetByURI(ctx, "gs://b/empty.txt")
	okDoc, _ := s.GetByURI(ctx, "gs://b/ok.txt")

	if nullDoc.Embedding != nil {
		t.Fatal("never-embedded row must read back nil")
	}
	if emptyDoc.Embedding == nil || len(emptyDoc.Embedding) != 0 {
		t.Fatalf("empty vector must read back empty, got %v", emptyDoc.Embedding)
	}
	if len(okDoc.Embedding) != 2 || okDoc.Embedding[0] != 0.5 {
		t.Fatalf("vector mismatch: %v", okDoc.Embedding)
	}
	if okDoc.IndexedAt == nil || !okDoc.IndexedAt.Equal(now) {
		t.Fatalf("indexed_at: want=%v got=%v", now, okDoc.IndexedAt)
	}
}

func TestSetEmbeddingMissingRow(t *testing.T) {
	s := newTestStore(t)
	err := s.SetEmbedding(context.Background(), "gs://b/none", []float32{1}, time.Now())
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestScanAndCountFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	seed := []*domain.Document{
		{URI: "gs://b/1.txt", Modality: domain.ModalityText, CanonicalText: "a"},
		{URI: "gs://b/2.md", Modality: domain.ModalityMarkdown, CanonicalText: "b"},
		{URI: "gs://b/3.txt", Modality: domain.ModalityText},
	}
	for _, d := range seed {
		if err := s.Upsert(ctx, d); err != nil {
			t.Fatalf("Upsert %s: %v", d.URI, err)
		}
	}
	if err := s.SetEmbedding(ctx, "gs://b/1.txt", []float32{1}, now); err != nil {
		t.Fatalf("SetEmbedding: %v", err)
	}

	texts, err := s.Scan(ctx, corpus.Filter{Modalities: []domain.Modality{domain.ModalityText}})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(texts) != 2 || texts[0].URI != "gs://b/1.txt" || texts[1].URI != "gs://b/3.txt" {
		t.Fatalf("modality scan wrong: %v", texts)
	}

	unembedded, err := s.Scan(ctx, corpus.Filter{
		HasText:      corpus.BoolPtr(true),
		HasEmbedding: corpus.BoolPtr(false),
	})
	if err != nil {
		t.Fatalf("Scan unembedded: %v", err)
	}
	if len(unembedded) != 1 || unembedded[0].URI != "gs://b/2.md" {
		t.Fatalf("unembedded scan wrong: %v", unembedded)
	}

	n, err := s.Count(ctx, corpus.Filter{HasEmbedding: corpus.BoolPtr(true)})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("embedded count: want=1 got=%d", n)
	}
}

func TestClearEmbedding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	uri := "gs://b/a.txt"

	if err := s.Upsert(ctx, &domain.Document{URI: uri, Modality: domain.ModalityText, CanonicalText: "x"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.SetEmbedding(ctx, uri, []float32{1, 2}, time.Now()); err != nil {
		t.Fatalf("SetEmbedding: %v", err)
	}
	if err := s.ClearEmbedding(ctx, uri); err != nil {
		t.Fatalf("ClearEmbedding: %v", err)
	}
	got, _ := s.GetByURI(ctx, uri)
	if got.Embedding != nil || got.IndexedAt != nil {
		t.Fatal("clear must remove vector and indexed_at")
	}
}
