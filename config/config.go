// Package config loads notebase settings from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/notebase/ai"
	"gopkg.in/yaml.v3"
)

// Backend names a storage engine.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendGraph  Backend = "graph"
)

// Config is the complete runtime configuration.
type Config struct {
	Backend   Backend         `yaml:"backend"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Graph     GraphConfig     `yaml:"graph"`
	AI        AIConfig        `yaml:"ai"`
	Worker    WorkerConfig    `yaml:"worker"`
	Search    SearchConfig    `yaml:"search"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// SQLiteConfig configures the embedded relational engine.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// GraphConfig configures the graph/document engine.
// Namespace and Database prefix every key, so several logical databases can share one directory.
type GraphConfig struct {
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
	Database  string `yaml:"database"`
	InMemory  bool   `yaml:"in_memory"`
}

// AIConfig mirrors ai.Config for the YAML file.
type AIConfig struct {
	EmbeddingHost  string  `yaml:"embedding_host"`
	EmbeddingModel string  `yaml:"embedding_model"`
	TransformHost  string  `yaml:"transform_host"`
	TransformModel string  `yaml:"transform_model"`
	APIToken       string  `yaml:"api_token"`
	Temperature    float64 `yaml:"temperature"`
}

// WorkerConfig configures the command queue worker.
type WorkerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	RecoveryInterval time.Duration `yaml:"recovery_interval"`
	StuckTimeout     time.Duration `yaml:"stuck_timeout"`
}

// SearchConfig configures the vector scan.
type SearchConfig struct {
	PoolSize  int `yaml:"pool_size"`
	BatchSize int `yaml:"batch_size"`
}

// EmbeddingConfig configures chunking and provider throttling.
type EmbeddingConfig struct {
	ChunkSize    int     `yaml:"chunk_size"`
	ChunkOverlap int     `yaml:"chunk_overlap"`
	RateLimit    float64 `yaml:"rate_limit"`
	Burst        int     `yaml:"burst"`
}

// Default returns the built-in configuration.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		Backend: BackendSQLite,
		SQLite:  SQLiteConfig{Path: "./data/notebase.db"},
		Graph: GraphConfig{
			Path:      "./data/graph",
			Namespace: "open_notebook",
			Database:  "open_notebook",
		},
		AI: AIConfig{
			EmbeddingHost:  aiDefaults.EmbeddingHost,
			EmbeddingModel: aiDefaults.EmbeddingModel,
			TransformHost:  aiDefaults.TransformHost,
			TransformModel: aiDefaults.TransformModel,
			APIToken:       aiDefaults.APIToken,
			Temperature:    aiDefaults.Temperature,
		},
		Worker: WorkerConfig{
			Enabled:          true,
			PollInterval:     2 * time.Second,
			RecoveryInterval: 300 * time.Second,
			StuckTimeout:     30 * time.Minute,
		},
		Search: SearchConfig{BatchSize: 256},
		Embedding: EmbeddingConfig{
			ChunkSize:    1500,
			ChunkOverlap: 150,
		},
	}
}

// Load reads path (skipped when empty), applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto c. Keys absent from the file keep their values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto c.
// Malformed numeric or duration values are reported rather than ignored.
func (c *Config) ApplyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				*dst = true
			case "0", "false", "no", "off":
				*dst = false
			default:
				errs = append(errs, fmt.Errorf("%s: invalid boolean %q", key, v))
			}
		}
	}

	if v := os.Getenv("DATABASE_BACKEND"); v != "" {
		c.Backend = Backend(strings.ToLower(v))
	}
	str("SQLITE_DB_PATH", &c.SQLite.Path)
	str("GRAPH_DB_PATH", &c.Graph.Path)
	str("GRAPH_NAMESPACE", &c.Graph.Namespace)
	str("GRAPH_DATABASE", &c.Graph.Database)
	boolean("GRAPH_IN_MEMORY", &c.Graph.InMemory)

	str("EMBEDDING_HOST", &c.AI.EmbeddingHost)
	str("EMBEDDING_MODEL", &c.AI.EmbeddingModel)
	str("TRANSFORM_HOST", &c.AI.TransformHost)
	str("TRANSFORM_MODEL", &c.AI.TransformModel)
	str("AI_API_TOKEN", &c.AI.APIToken)
	float("TRANSFORM_TEMPERATURE", &c.AI.Temperature)

	boolean("WORKER_ENABLED", &c.Worker.Enabled)
	dur("WORKER_POLL_INTERVAL", &c.Worker.PollInterval)
	dur("WORKER_RECOVERY_INTERVAL", &c.Worker.RecoveryInterval)
	dur("WORKER_STUCK_TIMEOUT", &c.Worker.StuckTimeout)

	num("SEARCH_POOL_SIZE", &c.Search.PoolSize)
	num("SEARCH_BATCH_SIZE", &c.Search.BatchSize)

	num("EMBEDDING_CHUNK_SIZE", &c.Embedding.ChunkSize)
	num("EMBEDDING_CHUNK_OVERLAP", &c.Embedding.ChunkOverlap)
	float("EMBEDDING_RATE_LIMIT", &c.Embedding.RateLimit)
	num("EMBEDDING_BURST", &c.Embedding.Burst)

	return errors.Join(errs...)
}

// parseDuration accepts Go durations and bare seconds.
func parseDuration(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return time.Duration(secs) * time.Second, nil
}

// Validate checks c for settings no component could run with.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return errors.New("sqlite backend requires a database path")
		}
	case BackendGraph:
		if c.Graph.Path == "" && !c.Graph.InMemory {
			return errors.New("graph backend requires a path or in_memory")
		}
		if c.Graph.Namespace == "" || c.Graph.Database == "" {
			return errors.New("graph backend requires a namespace and database")
		}
	default:
		return fmt.Errorf("unknown database backend %q (want %q or %q)", c.Backend, BackendSQLite, BackendGraph)
	}

	if c.Worker.PollInterval <= 0 || c.Worker.RecoveryInterval <= 0 || c.Worker.StuckTimeout <= 0 {
		return errors.New("worker intervals must be positive")
	}
	if c.Search.PoolSize < 0 || c.Search.BatchSize < 1 {
		return fmt.Errorf("invalid search settings: pool_size %d, batch_size %d", c.Search.PoolSize, c.Search.BatchSize)
	}
	if c.Embedding.ChunkSize < 1 || c.Embedding.ChunkOverlap < 0 || c.Embedding.ChunkOverlap >= c.Embedding.ChunkSize {
		return fmt.Errorf("invalid chunking: size %d, overlap %d", c.Embedding.ChunkSize, c.Embedding.ChunkOverlap)
	}
	return c.AIConfig().Validate()
}

// AIConfig builds the provider configuration in normalized form.
func (c *Config) AIConfig() *ai.Config {
	cfg := ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithTransformHost(c.AI.TransformHost),
		ai.WithTransformModel(c.AI.TransformModel),
		ai.WithAPIToken(c.AI.APIToken),
		ai.WithTemperature(c.AI.Temperature),
	)
	cfg.Normalize()
	return cfg
}
