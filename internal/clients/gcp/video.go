package gcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	videointelligence "cloud.google.com/go/videointelligence/apiv1"
	vipb "cloud.google.com/go/videointelligence/apiv1/videointelligencepb"

	"github.com/gregorymulla/grepctl/internal/pkg/ctxutil"
	"github.com/gregorymulla/grepctl/internal/platform/logger"
)

// Video annotates video blobs: content labels, speech transcript and
// on-screen text.
type Video interface {
	AnnotateGCS(ctx context.Context, gcsURI string) (*VideoSignals, error)
	Close() error
}

type VideoSignals struct {
	Labels     []string `json:"labels,omitempty"`
	Transcript string   `json:"transcript,omitempty"`
	OnScreen   []string `json:"on_screen,omitempty"`
}

type videoService struct {
	log          *logger.Logger
	client       *videointelligence.Client
	languageCode string
}

func NewVideo(log *logger.Logger) (Video, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.Video")

	ctx := context.Background()
	opts := ClientOptionsFromEnv()

	c, err := videointelligence.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("videointelligence client: %w", err)
	}

	return &videoService{
		log:          slog,
		client:       c,
		languageCode: "en-US",
	}, nil
}

func (s *videoService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *videoService) AnnotateGCS(ctx context.Context, gcsURI string) (*VideoSignals, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	if !strings.HasPrefix(gcsURI, "gs://") {
		return nil, fmt.Errorf("gcsURI must be gs://... got %q", gcsURI)
	}

	req := &vipb.AnnotateVideoRequest{
		InputUri: gcsURI,
		Features: []vipb.Feature{
			vipb.Feature_LABEL_DETECTION,
			vipb.Feature_SPEECH_TRANSCRIPTION,
			vipb.Feature_TEXT_DETECTION,
		},
		VideoContext: &vipb.VideoContext{
			SpeechTranscriptionConfig: &vipb.SpeechTranscriptionConfig{
				LanguageCode:               s.languageCode,
				EnableAutomaticPunctuation: true,
			},
			TextDetectionConfig: &vipb.TextDetectionConfig{},
		},
	}

	op, err := s.client.AnnotateVideo(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("videointelligence AnnotateVideo: %w", err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("videointelligence operation wait: %w", err)
	}
	if resp == nil || len(resp.AnnotationResults) == 0 || resp.AnnotationResults[0] == nil {
		return &VideoSignals{}, nil
	}

	return parseVideoAnnotations(resp.AnnotationResults[0]), nil
}

func parseVideoAnnotations(ar *vipb.VideoAnnotationResults) *VideoSignals {
	out := &VideoSignals{}

	seen := map[string]bool{}
	for _, la := range ar.SegmentLabelAnnotations {
		if la == nil || la.Entity == nil {
			continue
		}
		desc := strings.TrimSpace(la.Entity.Description)
		if desc == "" || seen[desc] {
			continue
		}
		seen[desc] = true
		out.Labels = append(out.Labels, desc)
	}
	sort.Strings(out.Labels)

	var full strings.Builder
	for _, st := range ar.SpeechTranscriptions {
		if st == nil || len(st.Alternatives) == 0 || st.Alternatives[0] == nil {
			continue
		}
		txt := strings.TrimSpace(st.Alternatives[0].Transcript)
		if txt == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(txt)
	}
	out.Transcript = full.String()

	seenText := map[string]bool{}
	for _, ta := range ar.TextAnnotations {
		if ta == nil {
			continue
		}
		txt := collapseWhitespace(ta.Text)
		if txt == "" || seenText[txt] {
			continue
		}
		seenText[txt] = true
		out.OnScreen = append(out.OnScreen, txt)
	}
	sort.Strings(out.OnScreen)

	return out
}
