package repair

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gregorymulla/grepctl/internal/corpus/memstore"
	"github.com/gregorymulla/grepctl/internal/domain"
	pkgerrors "github.com/gregorymulla/grepctl/internal/pkg/errors"
	"github.com/gregorymulla/grepctl/internal/platform/logger"
)

type fakeEmbedder struct {
	mu       sync.Mutex
	dim      int
	calls    int
	failWhen string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.TrimSpace(text) == "" {
		return nil, pkgerrors.ErrEmptyText
	}
	f.calls++
	if f.failWhen != "" && strings.Contains(text, f.failWhen) {
		return nil, fmt.Errorf("embed refused")
	}
	vec := make([]float32, f.dim)
	vec[0] = 1
	return vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func seedDoc(t *testing.T, s *memstore.Store, uri, text string, vec []float32) {
	t.Helper()
	ctx := context.Background()
	if err := s.Upsert(ctx, &domain.Document{
		URI:           uri,
		Modality:      domain.ModalityText,
		CanonicalText: text,
	}); err != nil {
		t.Fatalf("Upsert %s: %v", uri, err)
	}
	if vec != nil {
		if err := s.SetEmbedding(ctx, uri, vec, time.Now()); err != nil {
			t.Fatalf("SetEmbedding %s: %v", uri, err)
		}
	}
}

func TestScanAndRepairFixesAnomalies(t *testing.T) {
	s := memstore.New()
	emb := &fakeEmbedder{dim: 3}
	eng, err := NewEngine(logger.NewNop(), s, emb, 2)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx := context.Background()

	seedDoc(t, s, "gs://b/null.txt", "has text no vector", nil)
	seedDoc(t, s, "gs://b/empty.txt", "has empty vector", []float32{})
	seedDoc(t, s, "gs://b/short.txt", "wrong dimension", []float32{1, 2})
	seedDoc(t, s, "gs://b/ok.txt", "healthy", []float32{1, 0, 0})

	stats, err := eng.ScanAndRepair(ctx)
	if err != nil {
		t.Fatalf("ScanAndRepair: %v", err)
	}

	if stats.Scanned != 4 {
		t.Fatalf("scanned: want=4 got=%d", stats.Scanned)
	}
	if stats.NullFound != 1 || stats.EmptyFound != 1 || stats.WrongDimFound != 1 {
		t.Fatalf("anomaly counts: %+v", stats)
	}
	if stats.Repaired != 3 || stats.Failed != 0 {
		t.Fatalf("repair outcome: repaired=%d failed=%d", stats.Repaired, stats.Failed)
	}

	for _, uri := range []string{"gs://b/null.txt", "gs://b/empty.txt", "gs://b/short.txt", "gs://b/ok.txt"} {
		doc, err := s.GetByURI(ctx, uri)
		if err != nil {
			t.Fatalf("GetByURI %s: %v", uri, err)
		}
		if len(doc.Embedding) != emb.Dimension() {
			t.Fatalf("doc %s dim: want=%d got=%d", uri, emb.Dimension(), len(doc.Embedding))
		}
	}
}

func TestRepairIsIdempotent(t *testing.T) {
	s := memstore.New()
	emb := &fakeEmbedder{dim: 3}
	eng, err := NewEngine(logger.NewNop(), s, emb, 2)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx := context.Background()

	seedDoc(t, s, "gs://b/null.txt", "needs a vector", nil)

	if _, err := eng.ScanAndRepair(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	callsAfterFirst := emb.callCount()

	stats, err := eng.ScanAndRepair(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if stats.NullFound+stats.EmptyFound+stats.WrongDimFound != 0 {
		t.Fatalf("second pass found anomalies: %+v", stats)
	}
	if stats.Repaired != 0 {
		t.Fatalf("second pass repaired: want=0 got=%d", stats.Repaired)
	}
	if emb.callCount() != callsAfterFirst {
		t.Fatal("second pass must not call the embedder")
	}
}

func TestRepairFailureLeavesCleanState(t *testing.T) {
	s := memstore.New()
	emb := &fakeEmbedder{dim: 3, failWhen: "poison"}
	eng, err := NewEngine(logger.NewNop(), s, emb, 2)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx := context.Background()

	seedDoc(t, s, "gs://b/bad.txt", "poison record", []float32{1, 2})

	stats, err := eng.ScanAndRepair(ctx)
	if err != nil {
		t.Fatalf("ScanAndRepair: %v", err)
	}
	if stats.WrongDimFound != 1 || stats.Failed != 1 || stats.Repaired != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	// the bad vector was cleared in phase one, so the record sits in the
	// plain needs-embedding state rather than keeping a malformed vector
	doc, err := s.GetByURI(ctx, "gs://b/bad.txt")
	if err != nil {
		t.Fatalf("GetByURI: %v", err)
	}
	if doc.Embedding != nil {
		t.Fatalf("wrong-dim vector must be cleared even when re-embed fails, got %v", doc.Embedding)
	}
	if !doc.HasText() {
		t.Fatal("canonical text must survive repair")
	}
}

func TestRepairIgnoresTextlessRecords(t *testing.T) {
	s := memstore.New()
	emb := &fakeEmbedder{dim: 3}
	eng, err := NewEngine(logger.NewNop(), s, emb, 2)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx := context.Background()

	if err := s.Upsert(ctx, &domain.Document{URI: "gs://b/empty-text.txt", Modality: domain.ModalityText}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	stats, err := eng.ScanAndRepair(ctx)
	if err != nil {
		t.Fatalf("ScanAndRepair: %v", err)
	}
	if stats.NullFound != 0 || stats.Repaired != 0 {
		t.Fatalf("textless record must not be a repair target: %+v", stats)
	}
	if emb.callCount() != 0 {
		t.Fatal("embedder must not be called for textless records")
	}
}

func TestScanAndRepairScopedByModality(t *testing.T) {
	s := memstore.New()
	emb := &fakeEmbedder{dim: 3}
	eng, err := NewEngine(logger.NewNop(), s, emb, 2)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx := context.Background()

	seedDoc(t, s, "gs://b/a.txt", "text doc", nil)
	if err := s.Upsert(ctx, &domain.Document{
		URI: "gs://b/a.jpg", Modality: domain.ModalityImage, CanonicalText: "image doc",
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	stats, err := eng.ScanAndRepair(ctx, domain.ModalityImage)
	if err != nil {
		t.Fatalf("ScanAndRepair: %v", err)
	}
	if stats.Scanned != 1 || stats.Repaired != 1 {
		t.Fatalf("scoped repair stats: %+v", stats)
	}

	txt, _ := s.GetByURI(ctx, "gs://b/a.txt")
	if txt.HasEmbedding() {
		t.Fatal("out-of-scope modality must be untouched")
	}
}

func TestVerifyCountsPerModality(t *testing.T) {
	s := memstore.New()
	emb := &fakeEmbedder{dim: 3}
	eng, err := NewEngine(logger.NewNop(), s, emb, 2)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx := context.Background()

	seedDoc(t, s, "gs://b/ok.txt", "healthy", []float32{1, 0, 0})
	seedDoc(t, s, "gs://b/null.txt", "missing", nil)
	seedDoc(t, s, "gs://b/wrong.txt", "short", []float32{1})

	if err := s.Upsert(ctx, &domain.Document{
		URI: "gs://b/img.jpg", Modality: domain.ModalityImage, CanonicalText: "image text",
	}); err != nil {
		t.Fatalf("Upsert image: %v", err)
	}
	if err := s.SetEmbedding(ctx, "gs://b/img.jpg", []float32{}, time.Now()); err != nil {
		t.Fatalf("SetEmbedding image: %v", err)
	}

	reports, err := eng.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports: want=2 got=%d", len(reports))
	}

	byModality := map[domain.Modality]domain.VerifyReport{}
	for _, r := range reports {
		byModality[r.Modality] = r
	}

	text := byModality[domain.ModalityText]
	if text.Total != 3 || text.Valid != 1 || text.NullEmbedding != 1 || text.WrongDimension != 1 {
		t.Fatalf("text report: %+v", text)
	}
	img := byModality[domain.ModalityImage]
	if img.Total != 1 || img.EmptyEmbedding != 1 {
		t.Fatalf("image report: %+v", img)
	}
}
