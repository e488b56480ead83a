package extract

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gregorymulla/grepctl/internal/domain"
	"github.com/gregorymulla/grepctl/internal/platform/logger"
)

type audioExtractor struct {
	log  *logger.Logger
	deps Deps
}

func newAudioExtractor(log *logger.Logger, deps Deps) *audioExtractor {
	return &audioExtractor{log: log, deps: deps}
}

func (e *audioExtractor) Modality() domain.Modality { return domain.ModalityAudio }

func (e *audioExtractor) Extract(ctx context.Context, uri string) (*Result, error) {
	tr, err := e.deps.Speech.TranscribeGCS(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("transcribe %s: %w", uri, err)
	}

	b := newEnvelope("Audio", uri)
	b.Section("Language", tr.LanguageCode)
	if tr.Segments > 0 {
		b.Section("Segments", strconv.Itoa(tr.Segments))
		b.Section("Confidence", fmt.Sprintf("%.2f", tr.Confidence))
	}
	b.Block("Transcript", truncate(tr.Text, maxTranscript))

	return &Result{
		CanonicalText: b.Finish(markerAudio, e.deps.Clock()),
		Metadata: map[string]any{
			"segments":   tr.Segments,
			"confidence": tr.Confidence,
		},
	}, nil
}
