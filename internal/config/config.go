package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gregorymulla/grepctl/internal/platform/envutil"
)

// Config is the process-wide configuration. Values come from an optional YAML
// file and can be overridden per-field from the environment.
type Config struct {
	LogMode string `yaml:"log_mode"`

	GCP struct {
		ProjectID string `yaml:"project_id"`
		Location  string `yaml:"location"`
		Bucket    string `yaml:"bucket"`

		DocAIProcessorID string `yaml:"docai_processor_id"`
	} `yaml:"gcp"`

	Embedding struct {
		Model     string `yaml:"model"`
		Dimension int    `yaml:"dimension"`
	} `yaml:"embedding"`

	Ingest struct {
		Concurrency    int           `yaml:"concurrency"`
		RatePerSecond  float64       `yaml:"rate_per_second"`
		BatchSize      int           `yaml:"batch_size"`
		InterBatchWait time.Duration `yaml:"inter_batch_wait"`
	} `yaml:"ingest"`

	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
}

// Default returns a config with the reference deployment's defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.LogMode = "dev"
	cfg.GCP.Location = "us"
	cfg.Embedding.Model = "text-embedding-005"
	cfg.Embedding.Dimension = 768
	cfg.Ingest.Concurrency = 5
	cfg.Ingest.RatePerSecond = 4
	cfg.Ingest.BatchSize = 50
	cfg.Ingest.InterBatchWait = 500 * time.Millisecond
	cfg.Store.Path = "grepctl.db"
	return cfg
}

// Load reads the YAML file at path (if non-empty and present) over the
// defaults, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogMode = envutil.Str("GREPCTL_LOG_MODE", c.LogMode)
	c.GCP.ProjectID = envutil.Str("GREPCTL_PROJECT_ID", c.GCP.ProjectID)
	c.GCP.Location = envutil.Str("GREPCTL_LOCATION", c.GCP.Location)
	c.GCP.Bucket = envutil.Str("GREPCTL_BUCKET", c.GCP.Bucket)
	c.GCP.DocAIProcessorID = envutil.Str("GREPCTL_DOCAI_PROCESSOR_ID", c.GCP.DocAIProcessorID)
	c.Embedding.Model = envutil.Str("GREPCTL_EMBED_MODEL", c.Embedding.Model)
	c.Embedding.Dimension = envutil.Int("GREPCTL_EMBED_DIMENSION", c.Embedding.Dimension)
	c.Ingest.Concurrency = envutil.Int("GREPCTL_CONCURRENCY", c.Ingest.Concurrency)
	c.Ingest.RatePerSecond = envutil.Float("GREPCTL_RATE_PER_SECOND", c.Ingest.RatePerSecond)
	c.Ingest.BatchSize = envutil.Int("GREPCTL_BATCH_SIZE", c.Ingest.BatchSize)
	c.Ingest.InterBatchWait = envutil.Duration("GREPCTL_INTER_BATCH_WAIT", c.Ingest.InterBatchWait)
	c.Store.Path = envutil.Str("GREPCTL_STORE_PATH", c.Store.Path)
}

func (c *Config) validate() error {
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("ingest.concurrency must be positive, got %d", c.Ingest.Concurrency)
	}
	if c.Ingest.RatePerSecond <= 0 {
		return fmt.Errorf("ingest.rate_per_second must be positive, got %v", c.Ingest.RatePerSecond)
	}
	return nil
}
