package vertex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gregorymulla/grepctl/internal/pkg/ctxutil"
	pkgerrors "github.com/gregorymulla/grepctl/internal/pkg/errors"
	"github.com/gregorymulla/grepctl/internal/pkg/httpx"
	"github.com/gregorymulla/grepctl/internal/platform/envutil"
	"github.com/gregorymulla/grepctl/internal/platform/logger"
)

// Embedder turns canonical text into a fixed-dimension vector. It is a single
// stateless remote call: retry policy belongs to the ingestion coordinator and
// the repair engine, not here.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config locates the Vertex AI text-embedding model.
type Config struct {
	ProjectID string
	Location  string
	Model     string
	Dimension int

	// BaseURL overrides the regional endpoint. Tests point it at a local
	// HTTP server.
	BaseURL string
}

type client struct {
	log        *logger.Logger
	cfg        Config
	token      string
	httpClient *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (Embedder, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project id required")
	}
	if cfg.Location == "" {
		cfg.Location = "us-central1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-005"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 768
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com", cfg.Location)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	token := strings.TrimSpace(os.Getenv("VERTEX_ACCESS_TOKEN"))
	if token == "" {
		token = strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_ACCESS_TOKEN"))
	}

	timeoutSec := envutil.Int("VERTEX_TIMEOUT_SECONDS", 60)

	return &client{
		log:        log.With("service", "vertex.Embedder"),
		cfg:        cfg,
		token:      token,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

func (c *client) Dimension() int { return c.cfg.Dimension }

type predictRequest struct {
	Instances []predictInstance `json:"instances"`
}

type predictInstance struct {
	Content string `json:"content"`
}

type predictResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float64 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

type vertexHTTPError struct {
	StatusCode int
	Body       string
}

func (e *vertexHTTPError) Error() string {
	return fmt.Sprintf("vertex http %d: %s", e.StatusCode, e.Body)
}

func (e *vertexHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// Embed embeds a single text. Empty text is a caller precondition violation:
// a record with absent canonical text must never reach the embedder.
func (c *client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: input %d", pkgerrors.ErrEmptyText, i)
		}
	}

	instances := make([]predictInstance, len(texts))
	for i, t := range texts {
		instances[i] = predictInstance{Content: t}
	}

	var resp predictResponse
	if err := c.predict(ctx, predictRequest{Instances: instances}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Predictions) != len(texts) {
		return nil, fmt.Errorf("vertex embeddings: requested=%d returned=%d model=%s",
			len(texts), len(resp.Predictions), c.cfg.Model)
	}

	out := make([][]float32, len(texts))
	for i, p := range resp.Predictions {
		if len(p.Embeddings.Values) != c.cfg.Dimension {
			return nil, fmt.Errorf("vertex embeddings: dimension %d != %d model=%s",
				len(p.Embeddings.Values), c.cfg.Dimension, c.cfg.Model)
		}
		vec := make([]float32, len(p.Embeddings.Values))
		for j, f := range p.Embeddings.Values {
			vec[j] = float32(f)
		}
		out[i] = vec
	}
	return out, nil
}

func (c *client) predict(ctx context.Context, body predictRequest, out *predictResponse) error {
	path := fmt.Sprintf("/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		c.cfg.ProjectID, c.cfg.Location, c.cfg.Model)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), "POST", c.cfg.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if httpx.IsRetryableHTTPStatus(resp.StatusCode) {
			c.log.Warn("vertex request throttled",
				"status", resp.StatusCode,
				"retry_after", httpx.RetryAfterDuration(resp, time.Second, 30*time.Second))
		}
		return &vertexHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("vertex decode error: %w; raw=%s", err, string(raw))
	}
	return nil
}
