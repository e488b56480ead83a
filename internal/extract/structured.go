package extract

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gregorymulla/grepctl/internal/domain"
	"github.com/gregorymulla/grepctl/internal/platform/logger"
)

// jsonExtractor summarizes structure and samples content so the document is
// findable by meaning, then appends a bounded dump of the raw payload.
type jsonExtractor struct {
	log  *logger.Logger
	deps Deps
}

func newJSONExtractor(log *logger.Logger, deps Deps) *jsonExtractor {
	return &jsonExtractor{log: log, deps: deps}
}

func (e *jsonExtractor) Modality() domain.Modality { return domain.ModalityJSON }

func (e *jsonExtractor) Extract(ctx context.Context, uri string) (*Result, error) {
	raw, err := e.deps.Blobs.ReadText(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}

	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("parse json %s: %w", uri, err)
	}

	b := newEnvelope("JSON", uri)
	b.Section("Structure", jsonStructure(data, 0))

	meta := map[string]any{"size_bytes": len(raw)}

	switch v := data.(type) {
	case map[string]any:
		keys := sortedKeys(v)
		meta["root_keys"] = len(keys)
		b.Section("Root keys", strings.Join(capStrings(keys, 10), ", "))

		var sample []string
		for _, k := range capStrings(keys, 20) {
			sample = append(sample, "  "+k+": "+jsonValueSummary(v[k]))
		}
		b.Block("Sample content", strings.Join(sample, "\n"))

	case []any:
		meta["array_items"] = len(v)
		b.Section("Array", fmt.Sprintf("%d items", len(v)))
		if len(v) > 0 {
			b.Section("Item type", jsonTypeName(v[0]))
			var sample []string
			for i, item := range v {
				if i >= 5 {
					break
				}
				sample = append(sample, fmt.Sprintf("  [%d]: %s", i, jsonValueSummary(item)))
			}
			b.Block("Sample items", strings.Join(sample, "\n"))
		}
	}

	dump, err := json.MarshalIndent(data, "", "  ")
	if err == nil {
		b.Block("JSON Data", truncate(string(dump), maxJSONDump))
	}

	return &Result{
		CanonicalText: b.Finish(markerJSON, e.deps.Clock()),
		Metadata:      meta,
	}, nil
}

// jsonStructure renders a depth-limited sketch of the payload's shape. Keys
// are visited in sorted order so the sketch is reproducible.
func jsonStructure(v any, depth int) string {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 {
			return "{}"
		}
		if depth >= 2 {
			return fmt.Sprintf("{...} (%d keys)", len(t))
		}
		var parts []string
		for i, k := range sortedKeys(t) {
			if i >= 5 {
				parts = append(parts, "...")
				break
			}
			parts = append(parts, k+": "+jsonStructure(t[k], depth+1))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case []any:
		if len(t) == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%s] (%d items)", jsonStructure(t[0], depth+1), len(t))
	default:
		return jsonTypeName(v)
	}
}

func jsonValueSummary(v any) string {
	switch t := v.(type) {
	case string:
		return capString(t, 100)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return "null"
	case []any:
		if len(t) == 0 {
			return "[] (0 items)"
		}
		return fmt.Sprintf("[%s...] (%d items)", jsonTypeName(t[0]), len(t))
	case map[string]any:
		return fmt.Sprintf("{...} (%d keys)", len(t))
	default:
		return fmt.Sprintf("%v", t)
	}
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	case nil:
		return "null"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// csvExtractor profiles the table (columns, sample rows, numeric columns)
// and keeps a bounded raw preview.
type csvExtractor struct {
	log  *logger.Logger
	deps Deps
}

func newCSVExtractor(log *logger.Logger, deps Deps) *csvExtractor {
	return &csvExtractor{log: log, deps: deps}
}

func (e *csvExtractor) Modality() domain.Modality { return domain.ModalityCSV }

func (e *csvExtractor) Extract(ctx context.Context, uri string) (*Result, error) {
	raw, err := e.deps.Blobs.ReadText(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}

	reader := csv.NewReader(strings.NewReader(raw))
	if strings.HasSuffix(strings.ToLower(fileName(uri)), ".tsv") {
		reader.Comma = '\t'
	}
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv %s: %w", uri, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("parse csv %s: no rows", uri)
	}

	headers := records[0]
	rows := records[1:]

	b := newEnvelope("CSV", uri)
	b.Section("Columns", fmt.Sprintf("(%d) %s", len(headers), strings.Join(headers, ", ")))
	b.Section("Rows", strconv.Itoa(len(rows)))

	var analysis []string
	for ci, h := range headers {
		if ci >= 10 {
			break
		}
		var samples []string
		for ri := 0; ri < len(rows) && ri < 5 && len(samples) < 3; ri++ {
			if ci < len(rows[ri]) && rows[ri][ci] != "" {
				samples = append(samples, capString(rows[ri][ci], 50))
			}
		}
		if len(samples) > 0 {
			analysis = append(analysis, "  "+h+": "+strings.Join(samples, ", "))
		}
	}
	b.Block("Column Analysis", strings.Join(analysis, "\n"))

	var sampleRows []string
	for ri := 0; ri < len(rows) && ri < 10; ri++ {
		var cells []string
		for ci := 0; ci < len(headers) && ci < 5; ci++ {
			if ci < len(rows[ri]) {
				cells = append(cells, headers[ci]+": "+capString(rows[ri][ci], 30))
			}
		}
		sampleRows = append(sampleRows, fmt.Sprintf("  Row %d: %s", ri+1, strings.Join(cells, " | ")))
	}
	b.Block("Sample Data", strings.Join(sampleRows, "\n"))

	numeric := numericColumns(headers, rows)
	b.Section("Numeric columns", strings.Join(capStrings(numeric, 10), ", "))

	b.Block("CSV Preview", truncate(strings.TrimSpace(raw), maxCSVPreview))

	return &Result{
		CanonicalText: b.Finish(markerCSV, e.deps.Clock()),
		Metadata: map[string]any{
			"columns": len(headers),
			"rows":    len(rows),
		},
	}, nil
}

// numericColumns reports columns whose sampled values all parse as numbers.
func numericColumns(headers []string, rows [][]string) []string {
	var out []string
	for ci, h := range headers {
		seen := 0
		ok := true
		for ri := 0; ri < len(rows) && ri < 100; ri++ {
			if ci >= len(rows[ri]) || rows[ri][ci] == "" {
				continue
			}
			if _, err := strconv.ParseFloat(rows[ri][ci], 64); err != nil {
				ok = false
				break
			}
			seen++
		}
		if ok && seen > 0 {
			out = append(out, h)
		}
	}
	return out
}

// ---------- helpers ----------

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func capStrings(ss []string, n int) []string {
	if len(ss) <= n {
		return ss
	}
	return ss[:n]
}

func capString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return trimPartialRune(s[:n])
}
