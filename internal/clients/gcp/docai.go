package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/gregorymulla/grepctl/internal/pkg/ctxutil"
	"github.com/gregorymulla/grepctl/internal/platform/logger"
)

// DocumentParser extracts text and structure from PDFs via Document AI.
type DocumentParser interface {
	ProcessBytes(ctx context.Context, data []byte, mimeType string) (*ParsedDocument, error)
	Close() error
}

type ParsedDocument struct {
	Text  string `json:"text"`
	Pages int    `json:"pages"`
}

// DocAIConfig locates the processor used for structural parsing.
type DocAIConfig struct {
	ProjectID   string
	Location    string
	ProcessorID string
}

type documentService struct {
	log    *logger.Logger
	client *documentai.DocumentProcessorClient
	name   string
}

func NewDocumentParser(log *logger.Logger, cfg DocAIConfig) (DocumentParser, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, fmt.Errorf("documentai project and processor required")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}
	slog := log.With("service", "gcp.DocumentParser")

	ctx := context.Background()
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)

	// Document AI needs a regional endpoint; the other GCP clients do not.
	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptionsFromEnv()...)
	c, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}

	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		cfg.ProjectID, cfg.Location, cfg.ProcessorID)
	slog.Info("Document AI initialized", "endpoint", endpoint, "processor", name)

	return &documentService{log: slog, client: c, name: name}, nil
}

func (s *documentService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *documentService) ProcessBytes(ctx context.Context, data []byte, mimeType string) (*ParsedDocument, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	if len(data) == 0 {
		return &ParsedDocument{}, nil
	}
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	req := &documentaipb.ProcessRequest{
		Name: s.name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mimeType,
			},
		},
	}

	resp, err := s.client.ProcessDocument(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return &ParsedDocument{}, nil
	}

	return &ParsedDocument{
		Text:  strings.TrimSpace(resp.Document.Text),
		Pages: len(resp.Document.Pages),
	}, nil
}
