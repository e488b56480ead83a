package gcp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/gregorymulla/grepctl/internal/pkg/ctxutil"
	"github.com/gregorymulla/grepctl/internal/platform/logger"
)

// Speech transcribes audio blobs addressed by gs:// URIs.
type Speech interface {
	TranscribeGCS(ctx context.Context, gcsURI string) (*Transcript, error)
	Close() error
}

// Transcript is the joined transcription of one audio document.
type Transcript struct {
	Text         string  `json:"text"`
	Confidence   float64 `json:"confidence"`
	LanguageCode string  `json:"language_code"`
	Segments     int     `json:"segments"`
}

type speechService struct {
	log          *logger.Logger
	client       *speech.Client
	languageCode string
}

func NewSpeech(log *logger.Logger) (Speech, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.Speech")

	ctx := context.Background()
	opts := ClientOptionsFromEnv()

	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}

	return &speechService{
		log:          slog,
		client:       c,
		languageCode: "en-US",
	}, nil
}

func (s *speechService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *speechService) TranscribeGCS(ctx context.Context, gcsURI string) (*Transcript, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	if !strings.HasPrefix(gcsURI, "gs://") {
		return nil, fmt.Errorf("gcsURI must be gs://... got %q", gcsURI)
	}

	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			LanguageCode:               s.languageCode,
			Encoding:                   inferSpeechEncoding(gcsURI),
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Uri{Uri: gcsURI},
		},
	}

	op, err := s.client.LongRunningRecognize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("speech longrunningrecognize: %w", err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("speech operation wait: %w", err)
	}

	return parseRecognizeResponse(s.languageCode, resp), nil
}

func inferSpeechEncoding(gcsURI string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(filepath.Ext(gcsURI)) {
	case ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case ".flac":
		return speechpb.RecognitionConfig_FLAC
	case ".mp3":
		return speechpb.RecognitionConfig_MP3
	case ".ogg", ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func parseRecognizeResponse(lang string, resp *speechpb.LongRunningRecognizeResponse) *Transcript {
	out := &Transcript{LanguageCode: lang}
	if resp == nil || len(resp.Results) == 0 {
		return out
	}

	var (
		full    strings.Builder
		confSum float64
		confN   int
	)
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		txt := strings.TrimSpace(alt.Transcript)
		if txt == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(txt)
		out.Segments++
		if alt.Confidence > 0 {
			confSum += float64(alt.Confidence)
			confN++
		}
	}

	out.Text = full.String()
	if confN > 0 {
		out.Confidence = confSum / float64(confN)
	}
	return out
}
