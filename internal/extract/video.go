package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/gregorymulla/grepctl/internal/domain"
	"github.com/gregorymulla/grepctl/internal/platform/logger"
)

type videoExtractor struct {
	log  *logger.Logger
	deps Deps
}

func newVideoExtractor(log *logger.Logger, deps Deps) *videoExtractor {
	return &videoExtractor{log: log, deps: deps}
}

func (e *videoExtractor) Modality() domain.Modality { return domain.ModalityVideo }

func (e *videoExtractor) Extract(ctx context.Context, uri string) (*Result, error) {
	signals, err := e.deps.Video.AnnotateGCS(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("annotate video %s: %w", uri, err)
	}

	b := newEnvelope("Video", uri)
	b.Section("Visual Labels", strings.Join(signals.Labels, ", "))
	b.Section("On-screen Text", strings.Join(signals.OnScreen, ", "))
	b.Block("Transcript", truncate(strings.TrimSpace(signals.Transcript), maxTranscript))

	return &Result{
		CanonicalText: b.Finish(markerVideo, e.deps.Clock()),
		Metadata: map[string]any{
			"labels":         len(signals.Labels),
			"has_transcript": signals.Transcript != "",
		},
	}, nil
}
