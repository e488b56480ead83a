package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gregorymulla/grepctl/internal/clients/gcp"
	"github.com/gregorymulla/grepctl/internal/domain"
	"github.com/gregorymulla/grepctl/internal/platform/logger"
)

// categoryKeywords buckets label descriptions into coarse search categories.
var categoryKeywords = map[string][]string{
	"Animals":      {"animal", "dog", "cat", "bird", "fish", "horse", "wildlife", "pet", "mammal"},
	"People":       {"person", "people", "man", "woman", "child", "face", "portrait", "crowd"},
	"Food":         {"food", "meal", "dish", "fruit", "vegetable", "drink", "cuisine", "dessert"},
	"Architecture": {"building", "architecture", "house", "tower", "bridge", "city", "skyline"},
	"Nature":       {"nature", "landscape", "tree", "mountain", "water", "sky", "flower", "plant", "forest", "beach"},
}

// imageExtractor builds the image envelope from Vision annotations. When the
// annotation call fails the document still gets a metadata-only envelope so
// the corpus stays complete; the trailer marker records the degradation.
type imageExtractor struct {
	log  *logger.Logger
	deps Deps
}

func newImageExtractor(log *logger.Logger, deps Deps) *imageExtractor {
	return &imageExtractor{log: log, deps: deps}
}

func (e *imageExtractor) Modality() domain.Modality { return domain.ModalityImage }

func (e *imageExtractor) Extract(ctx context.Context, uri string) (*Result, error) {
	signals, err := e.deps.Vision.AnnotateImage(ctx, uri)
	if err != nil {
		e.log.Warn("image annotation failed, writing metadata-only record", "uri", uri, "error", err)
		b := newEnvelope("Image", uri)
		return &Result{
			CanonicalText: b.Finish(markerImageFallback, e.deps.Clock()),
			Metadata:      map[string]any{"analysis_error": err.Error()},
		}, nil
	}

	b := newEnvelope("Image", uri)

	var visual []string
	for i, l := range signals.Labels {
		if i >= 10 {
			break
		}
		visual = append(visual, l.Description)
	}
	b.Section("Visual Content", strings.Join(visual, ", "))

	var top []string
	for i, l := range signals.Labels {
		if i >= 5 {
			break
		}
		top = append(top, fmt.Sprintf("%s (%.0f%%)", l.Description, l.Score*100))
	}
	b.Section("Top Labels", strings.Join(top, ", "))

	objects := signals.Objects
	if len(objects) > 5 {
		objects = objects[:5]
	}
	b.Section("Detected Objects", strings.Join(objects, ", "))

	if text := collapseAnnotatedText(signals.Text); text != "" {
		b.Section("Detected Text", capString(text, 200))
	}

	colors := signals.ColorHex
	if len(colors) > 3 {
		colors = colors[:3]
	}
	b.Section("Dominant Colors", strings.Join(colors, ", "))

	b.Section("Categories", strings.Join(imageCategories(signals.Labels), ", "))

	return &Result{
		CanonicalText: b.Finish(markerImageComplete, e.deps.Clock()),
		Metadata: map[string]any{
			"labels":   len(signals.Labels),
			"objects":  len(signals.Objects),
			"has_text": signals.Text != "",
		},
	}, nil
}

// imageCategories matches label descriptions against keyword buckets and
// returns the hit categories in a stable order.
func imageCategories(labels []gcp.ScoredLabel) []string {
	hit := map[string]bool{}
	for _, l := range labels {
		desc := strings.ToLower(l.Description)
		for cat, words := range categoryKeywords {
			if hit[cat] {
				continue
			}
			for _, w := range words {
				if strings.Contains(desc, w) {
					hit[cat] = true
					break
				}
			}
		}
	}
	out := make([]string, 0, len(hit))
	for cat := range hit {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// collapseAnnotatedText flattens OCR output to one line.
func collapseAnnotatedText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
