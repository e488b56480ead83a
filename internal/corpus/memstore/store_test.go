package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gregorymulla/grepctl/internal/corpus"
	"github.com/gregorymulla/grepctl/internal/domain"
	pkgerrors "github.com/gregorymulla/grepctl/internal/pkg/errors"
)

func fixedClock() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestUpsertAndGet(t *testing.T) {
	s := New().WithClock(fixedClock)
	ctx := context.Background()

	doc := &domain.Document{
		URI:           "gs://b/a.txt",
		Modality:      domain.ModalityText,
		CanonicalText: "hello",
		Metadata:      map[string]any{"size_bytes": 5},
	}
	if err := s.Upsert(ctx, doc); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.GetByURI(ctx, "gs://b/a.txt")
	if err != nil {
		t.Fatalf("GetByURI: %v", err)
	}
	if got.CanonicalText != "hello" {
		t.Fatalf("canonical text: want=%q got=%q", "hello", got.CanonicalText)
	}
	if !got.CreatedAt.Equal(fixedClock()) {
		t.Fatalf("created at: want=%v got=%v", fixedClock(), got.CreatedAt)
	}
	if got.HasEmbedding() {
		t.Fatal("fresh upsert must not carry an embedding")
	}
}

func TestGetMissingIsNotFound(t *testing.T) {
	s := New()
	if _, err := s.GetByURI(context.Background(), "gs://b/missing"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpsertPreservesCreatedAtAndClearsEmbedding(t *testing.T) {
	ctx := context.Background()
	first := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := New().WithClock(func() time.Time { return first })

	doc := &domain.Document{URI: "gs://b/a.txt", Modality: domain.ModalityText, CanonicalText: "v1"}
	if err := s.Upsert(ctx, doc); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.SetEmbedding(ctx, doc.URI, []float32{1, 2, 3}, first); err != nil {
		t.Fatalf("SetEmbedding: %v", err)
	}

	s.WithClock(func() time.Time { return first.Add(time.Hour) })
	doc2 := &domain.Document{URI: "gs://b/a.txt", Modality: domain.ModalityText, CanonicalText: "v2"}
	if err := s.Upsert(ctx, doc2); err != nil {
		t.Fatalf("Upsert again: %v", err)
	}

	got, err := s.GetByURI(ctx, doc.URI)
	if err != nil {
		t.Fatalf("GetByURI: %v", err)
	}
	if got.CanonicalText != "v2" {
		t.Fatalf("canonical text: want=v2 got=%q", got.CanonicalText)
	}
	if !got.CreatedAt.Equal(first) {
		t.Fatalf("re-upsert must preserve CreatedAt: want=%v got=%v", first, got.CreatedAt)
	}
	if got.HasEmbedding() {
		t.Fatal("new text must invalidate the stored embedding")
	}
	if got.IndexedAt != nil {
		t.Fatal("cleared embedding must also clear IndexedAt")
	}
}

func TestEmbeddingNilEmptyDistinction(t *testing.T) {
	ctx := context.Background()
	s := New().WithClock(fixedClock)
	for _, uri := range []string{"gs://b/null.txt", "gs://b/empty.txt", "gs://b/ok.txt"} {
		if err := s.Upsert(ctx, &domain.Document{URI: uri, Modality: domain.ModalityText, CanonicalText: "x"}); err != nil {
			t.Fatalf("Upsert %s: %v", uri, err)
		}
	}
	if err := s.SetEmbedding(ctx, "gs://b/empty.txt", []float32{}, fixedClock()); err != nil {
		t.Fatalf("SetEmbedding empty: %v", err)
	}
	if err := s.SetEmbedding(ctx, "gs://b/ok.txt", []float32{0.1, 0.2}, fixedClock()); err != nil {
		t.Fatalf("SetEmbedding ok: %v", err)
	}

	nullDoc, _ := s.GetByURI(ctx, "gs://b/null.txt")
	emptyDoc, _ := s.GetByURI(ctx, "gs://b/empty.txt")
	okDoc, _ := s.GetByURI(ctx, "gs://b/ok.txt")

	if nullDoc.Embedding != nil {
		t.Fatal("never-embedded doc must have nil vector")
	}
	if emptyDoc.Embedding == nil || len(emptyDoc.Embedding) != 0 {
		t.Fatalf("empty vector must round-trip as empty, got %v", emptyDoc.Embedding)
	}
	if len(okDoc.Embedding) != 2 {
		t.Fatalf("vector: want len=2 got=%v", okDoc.Embedding)
	}
}

func TestScanFilters(t *testing.T) {
	ctx := context.Background()
	s := New().WithClock(fixedClock)

	docs := []*domain.Document{
		{URI: "gs://b/1.txt", Modality: domain.ModalityText, CanonicalText: "a"},
		{URI: "gs://b/2.md", Modality: domain.ModalityMarkdown, CanonicalText: "b"},
		{URI: "gs://b/3.txt", Modality: domain.ModalityText},
	}
	for _, d := range docs {
		if err := s.Upsert(ctx, d); err != nil {
			t.Fatalf("Upsert %s: %v", d.URI, err)
		}
	}
	if err := s.SetEmbedding(ctx, "gs://b/1.txt", []float32{1}, fixedClock()); err != nil {
		t.Fatalf("SetEmbedding: %v", err)
	}

	texts, err := s.Scan(ctx, corpus.Filter{Modalities: []domain.Modality{domain.ModalityText}})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(texts) != 2 {
		t.Fatalf("text docs: want=2 got=%d", len(texts))
	}
	if texts[0].URI != "gs://b/1.txt" || texts[1].URI != "gs://b/3.txt" {
		t.Fatalf("scan must sort by URI, got %q %q", texts[0].URI, texts[1].URI)
	}

	embedded, err := s.Scan(ctx, corpus.Filter{HasEmbedding: corpus.BoolPtr(true)})
	if err != nil {
		t.Fatalf("Scan embedded: %v", err)
	}
	if len(embedded) != 1 || embedded[0].URI != "gs://b/1.txt" {
		t.Fatalf("embedded docs: want [1.txt] got %v", embedded)
	}

	withText, err := s.Count(ctx, corpus.Filter{HasText: corpus.BoolPtr(true)})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if withText != 2 {
		t.Fatalf("docs with text: want=2 got=%d", withText)
	}
}

func TestClonesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := New().WithClock(fixedClock)
	if err := s.Upsert(ctx, &domain.Document{URI: "gs://b/a.txt", Modality: domain.ModalityText, CanonicalText: "x"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.SetEmbedding(ctx, "gs://b/a.txt", []float32{1, 2}, fixedClock()); err != nil {
		t.Fatalf("SetEmbedding: %v", err)
	}

	got, _ := s.GetByURI(ctx, "gs://b/a.txt")
	got.Embedding[0] = 99
	got.CanonicalText = "mutated"

	again, _ := s.GetByURI(ctx, "gs://b/a.txt")
	if again.Embedding[0] != 1 || again.CanonicalText != "x" {
		t.Fatal("returned documents must be detached copies")
	}
}
