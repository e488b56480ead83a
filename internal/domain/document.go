package domain

import "time"

// Modality is the category of a document's raw format. It drives which
// extraction adapter applies and is derived once from the URI's extension.
type Modality string

const (
	ModalityText     Modality = "text"
	ModalityMarkdown Modality = "markdown"
	ModalityPDF      Modality = "pdf"
	ModalityImage    Modality = "image"
	ModalityAudio    Modality = "audio"
	ModalityVideo    Modality = "video"
	ModalityJSON     Modality = "json"
	ModalityCSV      Modality = "csv"
)

// AllModalities lists every supported modality in a stable order.
func AllModalities() []Modality {
	return []Modality{
		ModalityText,
		ModalityMarkdown,
		ModalityPDF,
		ModalityImage,
		ModalityAudio,
		ModalityVideo,
		ModalityJSON,
		ModalityCSV,
	}
}

// Document is the unit of the corpus: one record per URI.
//
// CanonicalText is "" while extraction has not succeeded yet; Embedding is nil
// until embedding has succeeded. A document with text but no vector is the
// normal intermediate state between the extraction and embedding passes.
type Document struct {
	URI           string         `json:"uri"`
	Modality      Modality       `json:"modality"`
	CanonicalText string         `json:"canonical_text,omitempty"`
	Embedding     []float32      `json:"embedding,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	IndexedAt     *time.Time     `json:"indexed_at,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// HasText reports whether extraction has produced canonical text.
func (d *Document) HasText() bool {
	return d != nil && d.CanonicalText != ""
}

// HasEmbedding reports whether an embedding vector is present (possibly
// anomalous; dimension is checked by the repair engine).
func (d *Document) HasEmbedding() bool {
	return d != nil && d.Embedding != nil
}

// IngestionStats aggregates per-document outcomes of one ingestion run.
// Failures never abort the batch; they are counted here instead.
type IngestionStats struct {
	Attempted   int `json:"attempted"`
	Skipped     int `json:"skipped"`
	Extracted   int `json:"extracted"`
	Failed      int `json:"failed"`
	Embedded    int `json:"embedded"`
	EmbedFailed int `json:"embed_failed"`
}

// Succeeded counts documents that completed the extraction phase this run.
func (s *IngestionStats) Succeeded() int {
	return s.Extracted
}

// RepairStats aggregates one scan-and-repair pass over the corpus.
type RepairStats struct {
	Scanned       int `json:"scanned"`
	NullFound     int `json:"null_found"`
	EmptyFound    int `json:"empty_found"`
	WrongDimFound int `json:"wrong_dim_found"`
	Repaired      int `json:"repaired"`
	Failed        int `json:"failed"`
}

// VerifyReport holds per-modality embedding health counts.
type VerifyReport struct {
	Modality       Modality `json:"modality"`
	Total          int      `json:"total"`
	Valid          int      `json:"valid"`
	NullEmbedding  int      `json:"null_embedding"`
	EmptyEmbedding int      `json:"empty_embedding"`
	WrongDimension int      `json:"wrong_dimension"`
}

// SearchResult is one ranked hit.
type SearchResult struct {
	URI      string   `json:"uri"`
	Modality Modality `json:"modality"`
	Score    float64  `json:"score"`
	Excerpt  string   `json:"excerpt"`
}
