// Tastevec - Vector-Based Media Recommendations for Emby and Jellyfin
// Copyright 2026 M. Voss (mlvoss)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mlvoss/tastevec

// Package config loads the Tastevec configuration using Koanf v2 with
// layered sources. Precedence is ENV > config file > built-in defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/mlvoss/tastevec/internal/models"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tastevec/config.yaml",
	"/etc/tastevec/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "TASTEVEC_CONFIG_PATH"

// envPrefix is stripped from environment variables before mapping them onto
// koanf paths: TASTEVEC_RECOMMEND_HISTORY_LIMIT -> recommend.history_limit.
const envPrefix = "TASTEVEC_"

// Config is the root configuration for the service.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Logging   LoggingConfig   `koanf:"logging"`
	Recommend RecommendConfig `koanf:"recommend"`
	Jobs      JobsConfig      `koanf:"jobs"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`

	// RateLimit is the per-IP request budget per minute for job-trigger routes.
	RateLimit int `koanf:"rate_limit" validate:"min=1"`

	// CORSOrigins lists allowed origins for the admin UI. Empty allows none.
	CORSOrigins []string `koanf:"cors_origins"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	// Path is the DuckDB database file, or ":memory:" for tests.
	Path string `koanf:"path" validate:"required"`

	// MaxMemory caps DuckDB's memory usage (e.g. "2GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. Zero uses runtime.NumCPU().
	Threads int `koanf:"threads" validate:"min=0"`

	// PreserveInsertionOrder matches the DuckDB default. Disabling reduces
	// memory usage at the cost of unordered unsorted results.
	PreserveInsertionOrder bool `koanf:"preserve_insertion_order"`

	// EmbeddingDimensions is the fixed dimensionality of stored vectors.
	// It must match the external embedding provider's output.
	EmbeddingDimensions int `koanf:"embedding_dimensions" validate:"min=2,max=8192"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// RecommendConfig holds the pipeline tuning knobs.
type RecommendConfig struct {
	// Weights are the default scoring weights; users may override per media type.
	Weights models.ScoringWeights `koanf:"weights"`

	// HistoryLimit bounds the prioritized watch-history window.
	HistoryLimit int `koanf:"history_limit" validate:"min=1"`

	// GenreWindow is how many history entries feed the genre preference table.
	GenreWindow int `koanf:"genre_window" validate:"min=1"`

	// CandidateLimit is how many nearest neighbors to retrieve per run.
	CandidateLimit int `koanf:"candidate_limit" validate:"min=1"`

	// TargetCount is how many recommendations to select per run.
	TargetCount int `koanf:"target_count" validate:"min=1"`

	// MaxEvidence caps evidence rows per selected candidate.
	MaxEvidence int `koanf:"max_evidence" validate:"min=0,max=10"`

	// PersistTopN is the stored-candidate window. Selected items are always
	// persisted even when selection exceeds this window.
	PersistTopN int `koanf:"persist_top_n" validate:"min=1"`

	// BatchInterval is the period of the scheduled all-users batch.
	BatchInterval time.Duration `koanf:"batch_interval"`

	// BatchOnStartup triggers an all-users batch when the service starts.
	BatchOnStartup bool `koanf:"batch_on_startup"`

	// ExplanationsEnabled turns on natural-language explanations when a
	// generator is configured.
	ExplanationsEnabled bool `koanf:"explanations_enabled"`
}

// JobsConfig holds job-progress persistence settings.
type JobsConfig struct {
	// ProgressDir is the BadgerDB directory for durable job progress.
	// Empty keeps progress in memory only.
	ProgressDir string `koanf:"progress_dir"`
}

// defaultConfig returns the built-in defaults, overridden by file and env.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8686,
			Timeout:   30 * time.Second,
			RateLimit: 60,
		},
		Database: DatabaseConfig{
			Path:                   "/data/tastevec.duckdb",
			MaxMemory:              "2GB",
			Threads:                0, // 0 = use runtime.NumCPU()
			PreserveInsertionOrder: true,
			EmbeddingDimensions:    384,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Recommend: RecommendConfig{
			Weights: models.ScoringWeights{
				Similarity: 0.5,
				Novelty:    0.2,
				Rating:     0.3,
				Diversity:  0.15,
			},
			HistoryLimit:        50,
			GenreWindow:         30,
			CandidateLimit:      100,
			TargetCount:         20,
			MaxEvidence:         3,
			PersistTopN:         100,
			BatchInterval:       24 * time.Hour,
			BatchOnStartup:      false,
			ExplanationsEnabled: false,
		},
		Jobs: JobsConfig{
			ProgressDir: "/data/jobs",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// TASTEVEC_-prefixed environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// configSections are the top-level keys an environment variable may address.
var configSections = []string{"server", "database", "logging", "recommend", "jobs"}

// envTransform maps an environment variable name onto a koanf path.
// TASTEVEC_DATABASE_MAX_MEMORY -> database.max_memory. Only the section
// separator becomes a dot; the remainder keeps its underscores.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	for _, section := range configSections {
		prefix := section + "_"
		if strings.HasPrefix(s, prefix) {
			rest := strings.TrimPrefix(s, prefix)
			// Weights nest one level deeper: recommend.weights.similarity.
			if section == "recommend" && strings.HasPrefix(rest, "weights_") {
				return "recommend.weights." + strings.TrimPrefix(rest, "weights_")
			}
			return section + "." + rest
		}
	}
	return s
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate checks struct tags and cross-field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if err := c.Recommend.Weights.Validate(); err != nil {
		return fmt.Errorf("recommend.weights: %w", err)
	}
	if c.Recommend.GenreWindow > c.Recommend.HistoryLimit {
		return fmt.Errorf("recommend.genre_window (%d) cannot exceed recommend.history_limit (%d)",
			c.Recommend.GenreWindow, c.Recommend.HistoryLimit)
	}
	if c.Recommend.TargetCount > c.Recommend.CandidateLimit {
		return fmt.Errorf("recommend.target_count (%d) cannot exceed recommend.candidate_limit (%d)",
			c.Recommend.TargetCount, c.Recommend.CandidateLimit)
	}
	if c.Recommend.BatchInterval < time.Minute {
		return fmt.Errorf("recommend.batch_interval must be at least 1m, got %s", c.Recommend.BatchInterval)
	}
	return nil
}
