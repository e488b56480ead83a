package extract

import (
	"path"
	"strings"
	"time"
	"unicode/utf8"
)

// Truncation limits keep canonical text bounded no matter how large the raw
// payload is. The "...[truncated]" marker is the only growth past the limit.
const (
	maxTextBytes  = 4000
	maxJSONDump   = 5000
	maxCSVPreview = 3000
	maxTranscript = 5000
	maxPDFText    = 5000

	truncationMarker = "\n... [truncated]"
)

// Completeness markers. The trailer's Analysis line is a fixed literal that
// later repair/verification logic can match on to tell fully-analyzed records
// from fallback ones.
const (
	markerImageComplete = "Complete Vision API content extraction"
	markerImageFallback = "Basic image metadata only (analysis unavailable)"
	markerJSON          = "JSON content extracted for semantic search"
	markerCSV           = "CSV content extracted for semantic search"
	markerText          = "Native text content"
	markerMarkdown      = "Native markdown content"
	markerPDFComplete   = "Document AI text extraction"
	markerPDFFallback   = "PDF metadata only (no extractable text)"
	markerAudio         = "Speech-to-Text transcription"
	markerVideo         = "Video Intelligence content analysis"
)

// envelopeBuilder assembles the deterministic textual envelope every adapter
// emits: header lines derived solely from the URI, content sections in a
// fixed order (empty sections omitted, never placeholders), and a trailer
// with the completeness marker and the ingestion timestamp.
type envelopeBuilder struct {
	lines []string
}

func newEnvelope(kind, uri string) *envelopeBuilder {
	b := &envelopeBuilder{}
	b.lines = append(b.lines, kind+" File: "+fileName(uri))
	b.lines = append(b.lines, "Location: "+uri)
	return b
}

// Section appends "label: value" unless value is empty.
func (b *envelopeBuilder) Section(label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	b.lines = append(b.lines, label+": "+value)
}

// Raw appends a line verbatim (used for blank separators and multi-line
// section bodies).
func (b *envelopeBuilder) Raw(line string) {
	b.lines = append(b.lines, line)
}

// Block appends a labeled multi-line body preceded by a blank separator.
func (b *envelopeBuilder) Block(label, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	b.lines = append(b.lines, "", label+":", body)
}

// Finish closes the envelope with the completeness marker and timestamp.
func (b *envelopeBuilder) Finish(marker string, now time.Time) string {
	b.lines = append(b.lines, "", "Analysis: "+marker)
	b.lines = append(b.lines, "Indexed: "+now.UTC().Format("2006-01-02 15:04:05")+" UTC")
	return strings.Join(b.lines, "\n")
}

// truncate bounds s at max bytes, appending the truncation marker when
// anything was cut.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return trimPartialRune(s[:max]) + truncationMarker
}

// trimPartialRune drops the remnants of a rune split by a byte-position cut:
// trailing continuation bytes and a dangling lead byte. The result is valid
// UTF-8 whenever the input before the cut was.
func trimPartialRune(s string) string {
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			return s
		}
		s = s[:len(s)-1]
	}
	return s
}

func fileName(uri string) string {
	if i := strings.IndexByte(uri, '#'); i >= 0 {
		uri = uri[:i]
	}
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		uri = uri[:i]
	}
	return path.Base(uri)
}
