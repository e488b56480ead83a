package extract

import (
	"context"
	"time"

	"github.com/gregorymulla/grepctl/internal/clients/gcp"
	"github.com/gregorymulla/grepctl/internal/domain"
	"github.com/gregorymulla/grepctl/internal/platform/logger"
)

// Result is one successful extraction: the canonical text fed to embedding
// plus advisory metadata (never used by ranking).
type Result struct {
	CanonicalText string
	Metadata      map[string]any
}

// Extractor is the per-modality extraction adapter. Implementations are pure
// with respect to the corpus: they read the blob (or call the analysis
// capability) and build the deterministic textual envelope, nothing else.
type Extractor interface {
	Modality() domain.Modality
	Extract(ctx context.Context, uri string) (*Result, error)
}

// Deps are the external capabilities the adapters draw on. All remote
// clients are injected so tests can substitute fakes.
type Deps struct {
	Blobs  gcp.BlobSource
	Vision gcp.Vision
	Speech gcp.Speech
	Video  gcp.Video
	Docs   gcp.DocumentParser

	// Clock stamps the envelope trailer. Defaults to time.Now; tests pin it
	// so envelopes are byte-reproducible.
	Clock func() time.Time
}

// Registry holds the closed set of adapters, selected by modality.
type Registry struct {
	byModality map[domain.Modality]Extractor
}

func NewRegistry(log *logger.Logger, deps Deps) *Registry {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	slog := log.With("service", "extract.Registry")

	adapters := []Extractor{
		newTextExtractor(slog, deps, domain.ModalityText),
		newTextExtractor(slog, deps, domain.ModalityMarkdown),
		newJSONExtractor(slog, deps),
		newCSVExtractor(slog, deps),
		newImageExtractor(slog, deps),
		newPDFExtractor(slog, deps),
		newAudioExtractor(slog, deps),
		newVideoExtractor(slog, deps),
	}

	m := make(map[domain.Modality]Extractor, len(adapters))
	for _, a := range adapters {
		m[a.Modality()] = a
	}
	return &Registry{byModality: m}
}

// For returns the adapter for a modality.
func (r *Registry) For(m domain.Modality) (Extractor, bool) {
	e, ok := r.byModality[m]
	return e, ok
}
