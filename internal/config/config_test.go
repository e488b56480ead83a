package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Embedding.Dimension != 768 {
		t.Fatalf("dimension: want=768 got=%d", cfg.Embedding.Dimension)
	}
	if cfg.Embedding.Model != "text-embedding-005" {
		t.Fatalf("model: want=text-embedding-005 got=%q", cfg.Embedding.Model)
	}
	if cfg.Ingest.Concurrency != 5 {
		t.Fatalf("concurrency: want=5 got=%d", cfg.Ingest.Concurrency)
	}
	if cfg.Ingest.RatePerSecond != 4 {
		t.Fatalf("rate: want=4 got=%v", cfg.Ingest.RatePerSecond)
	}
	if cfg.Store.Path != "grepctl.db" {
		t.Fatalf("store path: want=grepctl.db got=%q", cfg.Store.Path)
	}
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grepctl.yaml")
	raw := `
log_mode: prod
gcp:
  project_id: my-project
  bucket: my-bucket
ingest:
  concurrency: 8
  inter_batch_wait: 2s
store:
  path: /tmp/corpus.db
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogMode != "prod" {
		t.Fatalf("log_mode: want=prod got=%q", cfg.LogMode)
	}
	if cfg.GCP.ProjectID != "my-project" || cfg.GCP.Bucket != "my-bucket" {
		t.Fatalf("gcp section not applied: %+v", cfg.GCP)
	}
	if cfg.Ingest.Concurrency != 8 {
		t.Fatalf("concurrency: want=8 got=%d", cfg.Ingest.Concurrency)
	}
	if cfg.Ingest.InterBatchWait != 2*time.Second {
		t.Fatalf("inter_batch_wait: want=2s got=%v", cfg.Ingest.InterBatchWait)
	}
	// untouched fields keep their defaults
	if cfg.Embedding.Dimension != 768 {
		t.Fatalf("dimension default lost: got=%d", cfg.Embedding.Dimension)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Embedding.Dimension != 768 {
		t.Fatalf("dimension: want=768 got=%d", cfg.Embedding.Dimension)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grepctl.yaml")
	if err := os.WriteFile(path, []byte("gcp:\n  project_id: from-yaml\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GREPCTL_PROJECT_ID", "from-env")
	t.Setenv("GREPCTL_EMBED_DIMENSION", "512")
	t.Setenv("GREPCTL_RATE_PER_SECOND", "2.5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GCP.ProjectID != "from-env" {
		t.Fatalf("project_id: want=from-env got=%q", cfg.GCP.ProjectID)
	}
	if cfg.Embedding.Dimension != 512 {
		t.Fatalf("dimension: want=512 got=%d", cfg.Embedding.Dimension)
	}
	if cfg.Ingest.RatePerSecond != 2.5 {
		t.Fatalf("rate: want=2.5 got=%v", cfg.Ingest.RatePerSecond)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("GREPCTL_EMBED_DIMENSION", "0")
	if _, err := Load(""); err == nil {
		t.Fatal("zero dimension must be rejected")
	}
}
