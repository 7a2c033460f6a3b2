package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigError reports an invalid run configuration. It is raised before any
// episode runs and is always fatal.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Msg
}

// Errorf builds a ConfigError. Precondition checks outside this package use
// it so every pre-run violation carries the same type.
func Errorf(format string, args ...any) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// PoolConfig selects the episode pool source: a CSV file of labeled feature
// rows, or a synthetic clustered pool.
type PoolConfig struct {
	CSVPath   string               `yaml:"csv_path,omitempty"`
	Synthetic *SyntheticPoolConfig `yaml:"synthetic,omitempty"`
}

type SyntheticPoolConfig struct {
	Labels   int     `yaml:"labels"`
	PerLabel int     `yaml:"per_label"`
	Dim      int     `yaml:"dim"`
	Spread   float64 `yaml:"spread"`
	Seed     int64   `yaml:"seed"`
}

// StoreConfig selects the run-history backend.
type StoreConfig struct {
	Kind string `yaml:"kind"`
	Path string `yaml:"path,omitempty"`
}

// Config is the full run configuration surface.
type Config struct {
	NWay           int     `yaml:"n_way"`
	KShot          int     `yaml:"k_shot"`
	KQuery         int     `yaml:"k_query"`
	TrainEpisodes  int     `yaml:"n_train_episodes"`
	EvalEpisodes   int     `yaml:"n_eval_episodes"`
	LearningRate   float64 `yaml:"learning_rate"`
	DistanceMetric string  `yaml:"distance_metric"`
	RandomSeed     *int64  `yaml:"random_seed,omitempty"`

	EmbeddingDim int         `yaml:"embedding_dim"`
	Pool         PoolConfig  `yaml:"pool"`
	Store        StoreConfig `yaml:"store"`
	ArtifactsDir string      `yaml:"artifacts_dir"`
}

// Default returns a runnable configuration backed by a synthetic pool and
// the in-memory store.
func Default() Config {
	return Config{
		NWay:           5,
		KShot:          5,
		KQuery:         5,
		TrainEpisodes:  200,
		EvalEpisodes:   100,
		LearningRate:   0.01,
		DistanceMetric: "squared_euclidean",
		EmbeddingDim:   16,
		Pool: PoolConfig{
			Synthetic: &SyntheticPoolConfig{
				Labels:   10,
				PerLabel: 40,
				Dim:      8,
				Spread:   0.25,
				Seed:     1,
			},
		},
		Store:        StoreConfig{Kind: "memory"},
		ArtifactsDir: "artifacts",
	}
}

// Load reads a YAML configuration over the defaults and validates it. An
// empty path returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.NWay < 2 {
		return Errorf("n_way must be >= 2, got %d", c.NWay)
	}
	if c.KShot < 1 {
		return Errorf("k_shot must be >= 1, got %d", c.KShot)
	}
	if c.KQuery < 1 {
		return Errorf("k_query must be >= 1, got %d", c.KQuery)
	}
	if c.TrainEpisodes < 0 {
		return Errorf("n_train_episodes must be >= 0, got %d", c.TrainEpisodes)
	}
	if c.EvalEpisodes < 0 {
		return Errorf("n_eval_episodes must be >= 0, got %d", c.EvalEpisodes)
	}
	if c.LearningRate <= 0 {
		return Errorf("learning_rate must be > 0, got %f", c.LearningRate)
	}
	switch c.DistanceMetric {
	case "", "euclidean", "squared_euclidean", "cosine":
	default:
		return Errorf("distance_metric must be one of euclidean, squared_euclidean, cosine; got %s", c.DistanceMetric)
	}
	if c.EmbeddingDim < 1 {
		return Errorf("embedding_dim must be >= 1, got %d", c.EmbeddingDim)
	}
	if c.Pool.CSVPath == "" && c.Pool.Synthetic == nil {
		return Errorf("pool requires either csv_path or synthetic")
	}
	if c.Pool.CSVPath != "" && c.Pool.Synthetic != nil {
		return Errorf("pool csv_path and synthetic are mutually exclusive")
	}
	if s := c.Pool.Synthetic; s != nil {
		if s.Labels < 2 || s.PerLabel < 1 || s.Dim < 1 {
			return Errorf("synthetic pool requires labels >= 2, per_label >= 1 and dim >= 1")
		}
		if s.Spread < 0 {
			return Errorf("synthetic pool spread must be >= 0, got %f", s.Spread)
		}
	}
	switch c.Store.Kind {
	case "", "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return Errorf("sqlite store requires a path")
		}
	default:
		return Errorf("store kind must be memory or sqlite, got %s", c.Store.Kind)
	}
	return nil
}

// ValidateForPool checks the preconditions that depend on the loaded pool.
func (c Config) ValidateForPool(labelCount int) error {
	if labelCount < c.NWay {
		return Errorf("pool has %d labels, n_way is %d", labelCount, c.NWay)
	}
	return nil
}

// Seed returns the configured seed, or the fallback when none is set.
func (c Config) Seed(fallback int64) int64 {
	if c.RandomSeed != nil {
		return *c.RandomSeed
	}
	return fallback
}
