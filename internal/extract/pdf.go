package extract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gregorymulla/grepctl/internal/domain"
	"github.com/gregorymulla/grepctl/internal/platform/logger"
)

// pdfExtractor runs the document through Document AI. A parse that yields no
// text still produces a metadata-only record so the file remains visible in
// the corpus.
type pdfExtractor struct {
	log  *logger.Logger
	deps Deps
}

func newPDFExtractor(log *logger.Logger, deps Deps) *pdfExtractor {
	return &pdfExtractor{log: log, deps: deps}
}

func (e *pdfExtractor) Modality() domain.Modality { return domain.ModalityPDF }

func (e *pdfExtractor) Extract(ctx context.Context, uri string) (*Result, error) {
	if e.deps.Docs == nil {
		return nil, fmt.Errorf("document parser not configured for %s", uri)
	}

	data, err := e.deps.Blobs.ReadBytes(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}

	parsed, err := e.deps.Docs.ProcessBytes(ctx, data, "application/pdf")
	if err != nil {
		return nil, fmt.Errorf("document ai %s: %w", uri, err)
	}

	b := newEnvelope("PDF", uri)
	b.Section("Size", fmt.Sprintf("%d bytes", len(data)))
	if parsed.Pages > 0 {
		b.Section("Pages", strconv.Itoa(parsed.Pages))
	}

	text := strings.TrimSpace(parsed.Text)
	marker := markerPDFComplete
	if text == "" {
		marker = markerPDFFallback
	} else {
		b.Block("Document Text", truncate(text, maxPDFText))
	}

	return &Result{
		CanonicalText: b.Finish(marker, e.deps.Clock()),
		Metadata: map[string]any{
			"size_bytes": len(data),
			"pages":      parsed.Pages,
		},
	}, nil
}
