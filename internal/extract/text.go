package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/gregorymulla/grepctl/internal/domain"
	"github.com/gregorymulla/grepctl/internal/platform/logger"
)

// textExtractor serves both plain text and markdown: the blob's own content
// is already searchable, so the envelope wraps a bounded excerpt of it.
type textExtractor struct {
	log      *logger.Logger
	deps     Deps
	modality domain.Modality
}

func newTextExtractor(log *logger.Logger, deps Deps, m domain.Modality) *textExtractor {
	return &textExtractor{log: log, deps: deps, modality: m}
}

func (e *textExtractor) Modality() domain.Modality { return e.modality }

func (e *textExtractor) Extract(ctx context.Context, uri string) (*Result, error) {
	raw, err := e.deps.Blobs.ReadText(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}

	kind := "Text"
	marker := markerText
	if e.modality == domain.ModalityMarkdown {
		kind = "Markdown"
		marker = markerMarkdown
	}

	b := newEnvelope(kind, uri)

	body := strings.TrimSpace(raw)
	if e.modality == domain.ModalityMarkdown {
		if title := markdownTitle(body); title != "" {
			b.Section("Title", title)
		}
	}
	b.Section("Size", fmt.Sprintf("%d bytes", len(raw)))
	b.Block("Content", truncate(body, maxTextBytes))

	return &Result{
		CanonicalText: b.Finish(marker, e.deps.Clock()),
		Metadata: map[string]any{
			"size_bytes": len(raw),
			"line_count": strings.Count(raw, "\n") + 1,
		},
	}, nil
}

// markdownTitle returns the first top-level heading, if any.
func markdownTitle(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}
