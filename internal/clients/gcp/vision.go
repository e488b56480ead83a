package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/gregorymulla/grepctl/internal/pkg/ctxutil"
	"github.com/gregorymulla/grepctl/internal/platform/logger"
)

// Vision detects labels, objects, embedded text and dominant colors in an
// image addressed by a gs:// URI.
type Vision interface {
	AnnotateImage(ctx context.Context, gcsURI string) (*ImageSignals, error)
	Close() error
}

// ImageSignals are the structured findings of one image annotation call.
// Slices are empty (not nil-checked by callers) when the corresponding
// detector found nothing.
type ImageSignals struct {
	Labels   []ScoredLabel `json:"labels,omitempty"`
	Objects  []string      `json:"objects,omitempty"`
	Text     string        `json:"text,omitempty"`
	ColorHex []string      `json:"color_hex,omitempty"`
}

type ScoredLabel struct {
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

type visionService struct {
	log    *logger.Logger
	client *vision.ImageAnnotatorClient

	maxLabels  int32
	maxObjects int32
}

func NewVision(log *logger.Logger) (Vision, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.Vision")

	ctx := context.Background()
	opts := ClientOptionsFromEnv()

	c, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}

	return &visionService{
		log:        slog,
		client:     c,
		maxLabels:  15,
		maxObjects: 10,
	}, nil
}

func (s *visionService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *visionService) AnnotateImage(ctx context.Context, gcsURI string) (*ImageSignals, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if !strings.HasPrefix(gcsURI, "gs://") {
		return nil, fmt.Errorf("gcsURI must be gs://... got %q", gcsURI)
	}

	req := &visionpb.AnnotateImageRequest{
		Image: &visionpb.Image{
			Source: &visionpb.ImageSource{ImageUri: gcsURI},
		},
		Features: []*visionpb.Feature{
			{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: s.maxLabels},
			{Type: visionpb.Feature_OBJECT_LOCALIZATION, MaxResults: s.maxObjects},
			{Type: visionpb.Feature_TEXT_DETECTION},
			{Type: visionpb.Feature_IMAGE_PROPERTIES},
		},
	}

	br := &visionpb.BatchAnnotateImagesRequest{Requests: []*visionpb.AnnotateImageRequest{req}}
	resp, err := s.client.BatchAnnotateImages(ctx, br)
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return &ImageSignals{}, nil
	}

	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}

	out := &ImageSignals{}

	for _, la := range r0.LabelAnnotations {
		if la == nil || strings.TrimSpace(la.Description) == "" {
			continue
		}
		out.Labels = append(out.Labels, ScoredLabel{
			Description: strings.TrimSpace(la.Description),
			Score:       float64(la.Score),
		})
	}

	for _, obj := range r0.LocalizedObjectAnnotations {
		if obj == nil || strings.TrimSpace(obj.Name) == "" {
			continue
		}
		out.Objects = append(out.Objects, strings.TrimSpace(obj.Name))
	}

	// TextAnnotations[0] aggregates the full detected text; the rest are
	// per-word fragments.
	if len(r0.TextAnnotations) > 0 && r0.TextAnnotations[0] != nil {
		out.Text = collapseWhitespace(r0.TextAnnotations[0].Description)
	}

	if props := r0.ImagePropertiesAnnotation; props != nil && props.DominantColors != nil {
		for _, ci := range props.DominantColors.Colors {
			if ci == nil || ci.Color == nil {
				continue
			}
			out.ColorHex = append(out.ColorHex, fmt.Sprintf("#%02x%02x%02x",
				int(ci.Color.GetRed()), int(ci.Color.GetGreen()), int(ci.Color.GetBlue())))
		}
	}

	return out, nil
}
