// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the enrichment service configuration: embedded YAML
// defaults, an optional config file overlaid on top, and environment
// overrides applied last.
package config

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

// MaxYAMLFileSize caps config reads at 1 MiB. Real configs are a few
// hundred bytes; anything larger is a wrong file path.
const MaxYAMLFileSize = 1 << 20

var configTracer = otel.Tracer("tessera.enrich.config")

//go:embed defaults.yaml
var defaultConfigYAML []byte

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the process-wide enrichment configuration.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type Config struct {
	Oracle    OracleConfig    `yaml:"oracle"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Thesaurus ThesaurusConfig `yaml:"thesaurus"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Storage   StorageConfig   `yaml:"storage"`
}

// OracleConfig tunes the chat oracle transport and retry behavior.
type OracleConfig struct {
	// Model is the chat model classification prompts are sent to.
	Model string `yaml:"model"`

	// BaseURL points at an OpenAI-compatible chat completions endpoint.
	// Empty selects the provider default.
	BaseURL string `yaml:"base_url"`

	// Temperature for completions. Classification wants near-greedy.
	Temperature float32 `yaml:"temperature"`

	// MaxTokens caps completion length.
	MaxTokens int `yaml:"max_tokens"`

	// MaxAttempts is the number of calls before a rate-limited operation
	// gives up.
	MaxAttempts int `yaml:"max_attempts"`

	// RetryWaitSeconds is the pause used when the provider gives no
	// retry hint.
	RetryWaitSeconds int `yaml:"retry_wait_seconds"`

	// RequestsPerMinute enables local pacing ahead of provider limits.
	// Zero disables it.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// EmbeddingConfig tunes the embeddings transport and the concept index.
type EmbeddingConfig struct {
	// Model is the embedding model name.
	Model string `yaml:"model"`

	// BaseURL points at an OpenAI-compatible embeddings endpoint.
	// Empty selects the provider default.
	BaseURL string `yaml:"base_url"`

	// TopK is how many embedding-similarity candidates each segment gets.
	TopK int `yaml:"top_k"`

	// WarmConcurrency caps parallel embed requests during index warm-up.
	WarmConcurrency int `yaml:"warm_concurrency"`

	// WarmChunkSize is how many concept texts share one embed request.
	WarmChunkSize int `yaml:"warm_chunk_size"`

	// WarmRequestsPerSecond paces warm-up toward the provider. Zero
	// disables pacing.
	WarmRequestsPerSecond float64 `yaml:"warm_requests_per_second"`
}

// ThesaurusConfig locates the concept source and its cache policy.
type ThesaurusConfig struct {
	// SourceURL is the N-Triples export to load concepts from.
	SourceURL string `yaml:"source_url"`

	// ForceReload bypasses cache reads for the thesaurus and the
	// embedding index; fresh results are still written back.
	ForceReload bool `yaml:"force_reload"`

	// CacheTTLDays bounds how long cached snapshots are served.
	CacheTTLDays int `yaml:"cache_ttl_days"`
}

// PipelineConfig tunes the batch enrichment run.
type PipelineConfig struct {
	// DataFolder is scanned for .vtt transcripts.
	DataFolder string `yaml:"data_folder"`

	// OutputFolder receives the segments/selected_segments/enriched_segments
	// trees.
	OutputFolder string `yaml:"output_folder"`

	// TokenLimit is the per-request budget the batchers pack under.
	TokenLimit int `yaml:"token_limit"`

	// MinutesPerBatch sizes the segmentation window.
	MinutesPerBatch int `yaml:"minutes_per_batch"`

	// Workers bounds concurrent segment matching. 1 means sequential.
	Workers int `yaml:"workers"`

	// TokenAllowance is the per-run estimated token allowance the ledger
	// warns against. Zero disables the warning.
	TokenAllowance int `yaml:"token_allowance"`
}

// StorageConfig locates the BadgerDB cache directory.
type StorageConfig struct {
	// Path is the cache directory.
	Path string `yaml:"path"`

	// InMemory runs the cache without touching disk. For tests and
	// one-off runs.
	InMemory bool `yaml:"in_memory"`
}

// =============================================================================
// Defaults
// =============================================================================

const (
	// DefaultOracleModel is the chat model used when nothing else is set.
	DefaultOracleModel = "gpt-4o-mini"

	// DefaultEmbeddingModel is the embedding model used when nothing else
	// is set.
	DefaultEmbeddingModel = "text-embedding-3-small"

	// DefaultTopK is the embedding candidate count per segment.
	DefaultTopK = 10

	// DefaultTokenLimit is the per-request token budget.
	DefaultTokenLimit = 800000

	// DefaultMinutesPerBatch is the segmentation window size.
	DefaultMinutesPerBatch = 20

	// DefaultWorkers is the matching concurrency.
	DefaultWorkers = 1

	// DefaultCacheTTLDays bounds cached thesaurus snapshots.
	DefaultCacheTTLDays = 30
)

// =============================================================================
// Singleton Config
// =============================================================================

var (
	configMu      sync.RWMutex
	configOnce    sync.Once
	cachedConfig  *Config
	configLoadErr error
)

// GetConfig returns the cached process configuration.
//
// Description:
//
//	Loads on first call and caches for subsequent calls. When ENRICH_CONFIG
//	names a file, that file is overlaid on the embedded defaults; otherwise
//	the embedded defaults are used directly. Environment overrides apply
//	either way.
//
// Inputs:
//   - ctx: Context for tracing. Must not be nil.
//
// Outputs:
//   - *Config: The loaded configuration. Never nil on success.
//   - error: Non-nil if loading or validation failed.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func GetConfig(ctx context.Context) (*Config, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetConfig: ctx must not be nil")
	}

	configMu.RLock()
	if cachedConfig != nil || configLoadErr != nil {
		cfg, err := cachedConfig, configLoadErr
		configMu.RUnlock()
		return cfg, err
	}
	configMu.RUnlock()

	configMu.Lock()
	defer configMu.Unlock()

	if cachedConfig != nil || configLoadErr != nil {
		return cachedConfig, configLoadErr
	}

	configOnce.Do(func() {
		if path := os.Getenv("ENRICH_CONFIG"); path != "" {
			cachedConfig, configLoadErr = LoadFile(ctx, path)
			return
		}
		cachedConfig, configLoadErr = Load(ctx, defaultConfigYAML)
	})

	return cachedConfig, configLoadErr
}

// ResetConfig resets the cached config for testing.
//
// Thread Safety: Safe for concurrent use.
func ResetConfig() {
	configMu.Lock()
	defer configMu.Unlock()
	cachedConfig = nil
	configLoadErr = nil
	configOnce = sync.Once{}
}

// =============================================================================
// Loading
// =============================================================================

// Load parses a configuration from YAML bytes.
//
// Description:
//
//	The document is overlaid on the embedded defaults, so omitted keys keep
//	their default values rather than zeroing out. Environment overrides
//	apply after the overlay, numeric defaults repair non-positive values,
//	and validation runs last.
//
// Inputs:
//   - ctx: Context for tracing.
//   - data: Raw YAML bytes. Must be non-empty.
//
// Outputs:
//   - *Config: The validated configuration.
//   - error: Non-nil if parsing or validation fails.
func Load(ctx context.Context, data []byte) (*Config, error) {
	_, span := configTracer.Start(ctx, "config.Load")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("config: empty YAML data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("config: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var cfg Config
	if err := yaml.Unmarshal(defaultConfigYAML, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing embedded defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	span.SetAttributes(
		attribute.String("oracle.model", cfg.Oracle.Model),
		attribute.String("embedding.model", cfg.Embedding.Model),
		attribute.Bool("thesaurus.force_reload", cfg.Thesaurus.ForceReload),
		attribute.Int("pipeline.workers", cfg.Pipeline.Workers),
		attribute.Int("pipeline.token_limit", cfg.Pipeline.TokenLimit),
	)

	slog.Info("enrichment config loaded",
		slog.String("oracle_model", cfg.Oracle.Model),
		slog.String("embedding_model", cfg.Embedding.Model),
		slog.Bool("force_reload", cfg.Thesaurus.ForceReload),
		slog.Int("workers", cfg.Pipeline.Workers),
	)

	return &cfg, nil
}

// LoadFile reads and loads a YAML config file.
func LoadFile(ctx context.Context, path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("config: %s exceeds maximum size (%d > %d)", path, info.Size(), MaxYAMLFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Load(ctx, data)
}

// applyEnvOverrides lets deployments override individual settings without
// editing YAML. Unparsable numeric or boolean values are logged and
// ignored.
//
// Recognized variables: ORACLE_MODEL (falling back to MODEL),
// ORACLE_BASE_URL, EMBEDDING_MODEL, EMBEDDING_BASE_URL, THESAURUS_URL,
// FORCE_RELOAD, DATA_FOLDER, OUTPUT_FOLDER, TOKEN_LIMIT, MINUTES_PER_BATCH,
// ENRICH_WORKERS, ENRICH_CACHE_DIR.
func applyEnvOverrides(cfg *Config) {
	if v := envFirst("ORACLE_MODEL", "MODEL"); v != "" {
		cfg.Oracle.Model = v
	}
	if v := os.Getenv("ORACLE_BASE_URL"); v != "" {
		cfg.Oracle.BaseURL = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("THESAURUS_URL"); v != "" {
		cfg.Thesaurus.SourceURL = v
	}
	if v := os.Getenv("FORCE_RELOAD"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Thesaurus.ForceReload = b
		} else {
			slog.Warn("FORCE_RELOAD is not a boolean, ignoring", slog.String("value", v))
		}
	}
	if v := os.Getenv("DATA_FOLDER"); v != "" {
		cfg.Pipeline.DataFolder = v
	}
	if v := os.Getenv("OUTPUT_FOLDER"); v != "" {
		cfg.Pipeline.OutputFolder = v
	}
	overrideInt("TOKEN_LIMIT", &cfg.Pipeline.TokenLimit)
	overrideInt("MINUTES_PER_BATCH", &cfg.Pipeline.MinutesPerBatch)
	overrideInt("ENRICH_WORKERS", &cfg.Pipeline.Workers)
	if v := os.Getenv("ENRICH_CACHE_DIR"); v != "" {
		cfg.Storage.Path = v
	}
}

// envFirst returns the first non-empty value among the named variables.
func envFirst(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// overrideInt replaces *dst with the named variable when it parses.
func overrideInt(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("environment override is not an integer, ignoring",
			slog.String("variable", name), slog.String("value", v))
		return
	}
	*dst = n
}

// applyDefaults repairs non-positive numeric settings.
func applyDefaults(cfg *Config) {
	if cfg.Oracle.Model == "" {
		cfg.Oracle.Model = DefaultOracleModel
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultEmbeddingModel
	}
	if cfg.Embedding.TopK <= 0 {
		cfg.Embedding.TopK = DefaultTopK
	}
	if cfg.Pipeline.TokenLimit <= 0 {
		cfg.Pipeline.TokenLimit = DefaultTokenLimit
	}
	if cfg.Pipeline.MinutesPerBatch <= 0 {
		cfg.Pipeline.MinutesPerBatch = DefaultMinutesPerBatch
	}
	if cfg.Pipeline.Workers <= 0 {
		cfg.Pipeline.Workers = DefaultWorkers
	}
	if cfg.Thesaurus.CacheTTLDays <= 0 {
		cfg.Thesaurus.CacheTTLDays = DefaultCacheTTLDays
	}
	if cfg.Pipeline.TokenAllowance < 0 {
		cfg.Pipeline.TokenAllowance = 0
	}
}

// validate checks settings that defaults cannot repair.
func validate(cfg *Config) error {
	if cfg.Thesaurus.SourceURL == "" {
		return fmt.Errorf("thesaurus.source_url must not be empty")
	}
	if cfg.Pipeline.DataFolder == "" {
		return fmt.Errorf("pipeline.data_folder must not be empty")
	}
	if cfg.Pipeline.OutputFolder == "" {
		return fmt.Errorf("pipeline.output_folder must not be empty")
	}
	if cfg.Oracle.Temperature < 0 || cfg.Oracle.Temperature > 2 {
		return fmt.Errorf("oracle.temperature must be within [0, 2], got %v", cfg.Oracle.Temperature)
	}
	if cfg.Embedding.WarmRequestsPerSecond < 0 {
		return fmt.Errorf("embedding.warm_requests_per_second must not be negative, got %v", cfg.Embedding.WarmRequestsPerSecond)
	}
	if !cfg.Storage.InMemory && cfg.Storage.Path == "" {
		return fmt.Errorf("storage.path must not be empty unless storage.in_memory is set")
	}
	return nil
}
