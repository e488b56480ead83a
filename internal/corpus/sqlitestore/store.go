package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/gregorymulla/grepctl/internal/corpus"
	"github.com/gregorymulla/grepctl/internal/domain"
	"github.com/gregorymulla/grepctl/internal/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS search_corpus (
	uri            TEXT PRIMARY KEY,
	modality       TEXT NOT NULL,
	canonical_text TEXT NOT NULL DEFAULT '',
	embedding      TEXT,
	created_at     TEXT NOT NULL,
	indexed_at     TEXT,
	metadata       TEXT
);
CREATE INDEX IF NOT EXISTS idx_search_corpus_modality ON search_corpus(modality);
`

// Store persists the corpus in a single SQLite table, one row per URI.
// Embeddings are stored as JSON arrays so the null / empty / wrong-dimension
// distinction survives round trips.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// New opens (or creates) the corpus database at path. Parent directories are
// created as needed.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open corpus database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply corpus schema: %w", err)
	}

	return &Store{db: db, path: path, now: time.Now}, nil
}

// WithClock overrides the clock used for CreatedAt. Tests use a fixed clock.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Upsert(ctx context.Context, doc *domain.Document) error {
	if doc == nil || doc.URI == "" {
		return errors.ErrInvalidArgument
	}

	metaJSON, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata for %s: %w", doc.URI, err)
	}

	// Re-ingestion replaces the extraction fields and invalidates any stored
	// vector; created_at of an existing row is kept.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO search_corpus (uri, modality, canonical_text, embedding, created_at, indexed_at, metadata)
		VALUES (?, ?, ?, NULL, ?, NULL, ?)
		ON CONFLICT(uri) DO UPDATE SET
			modality = excluded.modality,
			canonical_text = excluded.canonical_text,
			embedding = NULL,
			indexed_at = NULL,
			metadata = excluded.metadata`,
		doc.URI, string(doc.Modality), doc.CanonicalText,
		s.now().UTC().Format(time.RFC3339Nano), metaJSON)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", doc.URI, err)
	}
	return nil
}

func (s *Store) GetByURI(ctx context.Context, uri string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uri, modality, canonical_text, embedding, created_at, indexed_at, metadata
		FROM search_corpus WHERE uri = ?`, uri)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	return doc, err
}

func (s *Store) Scan(ctx context.Context, f corpus.Filter) ([]*domain.Document, error) {
	where, args := buildWhere(f)
	rows, err := s.db.QueryContext(ctx, `
		SELECT uri, modality, canonical_text, embedding, created_at, indexed_at, metadata
		FROM search_corpus`+where+` ORDER BY uri`, args...)
	if err != nil {
		return nil, fmt.Errorf("scan corpus: %w", err)
	}
	defer rows.Close()

	var out []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context, f corpus.Filter) (int, error) {
	where, args := buildWhere(f)
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_corpus`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count corpus: %w", err)
	}
	return n, nil
}

func (s *Store) SetEmbedding(ctx context.Context, uri string, vec []float32, indexedAt time.Time) error {
	if vec == nil {
		return s.ClearEmbedding(ctx, uri)
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("marshal embedding for %s: %w", uri, err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE search_corpus SET embedding = ?, indexed_at = ? WHERE uri = ?`,
		string(raw), indexedAt.UTC().Format(time.RFC3339Nano), uri)
	if err != nil {
		return fmt.Errorf("set embedding for %s: %w", uri, err)
	}
	return requireRow(res, uri)
}

func (s *Store) ClearEmbedding(ctx context.Context, uri string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE search_corpus SET embedding = NULL, indexed_at = NULL WHERE uri = ?`, uri)
	if err != nil {
		return fmt.Errorf("clear embedding for %s: %w", uri, err)
	}
	return requireRow(res, uri)
}

// ---------- helpers ----------

func requireRow(res sql.Result, uri string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", errors.ErrNotFound, uri)
	}
	return nil
}

func buildWhere(f corpus.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if len(f.Modalities) > 0 {
		marks := make([]string, len(f.Modalities))
		for i, m := range f.Modalities {
			marks[i] = "?"
			args = append(args, string(m))
		}
		conds = append(conds, "modality IN ("+strings.Join(marks, ", ")+")")
	}
	if f.HasText != nil {
		if *f.HasText {
			conds = append(conds, "canonical_text != ''")
		} else {
			conds = append(conds, "canonical_text = ''")
		}
	}
	if f.HasEmbedding != nil {
		if *f.HasEmbedding {
			conds = append(conds, "embedding IS NOT NULL")
		} else {
			conds = append(conds, "embedding IS NULL")
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc       domain.Document
		mod       string
		embJSON   sql.NullString
		createdAt string
		indexedAt sql.NullString
		metaJSON  sql.NullString
	)
	if err := row.Scan(&doc.URI, &mod, &doc.CanonicalText, &embJSON, &createdAt, &indexedAt, &metaJSON); err != nil {
		return nil, err
	}
	doc.Modality = domain.Modality(mod)

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		doc.CreatedAt = t
	}
	if indexedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, indexedAt.String); err == nil {
			doc.IndexedAt = &t
		}
	}
	if embJSON.Valid {
		vec := []float32{}
		if err := json.Unmarshal([]byte(embJSON.String), &vec); err != nil {
			return nil, fmt.Errorf("unmarshal embedding for %s: %w", doc.URI, err)
		}
		doc.Embedding = vec
	}
	if metaJSON.Valid && metaJSON.String != "" {
		meta := map[string]any{}
		if err := json.Unmarshal([]byte(metaJSON.String), &meta); err != nil {
			return nil, fmt.Errorf("unmarshal metadata for %s: %w", doc.URI, err)
		}
		doc.Metadata = meta
	}
	return &doc, nil
}

func marshalMetadata(meta map[string]any) (any, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
