// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/TesseraAI/tessera/services/enrich/config"
	"github.com/TesseraAI/tessera/services/enrich/embeddings"
	"github.com/TesseraAI/tessera/services/enrich/matching"
	"github.com/TesseraAI/tessera/services/enrich/oracle"
	badgerstore "github.com/TesseraAI/tessera/services/enrich/storage/badger"
	"github.com/TesseraAI/tessera/services/enrich/thesaurus"
	"github.com/TesseraAI/tessera/services/llm"
)

// RuntimeParts carries the pre-built pieces NewRuntime assembles into a
// Runtime. Bootstrap fills it from configuration; tests fill it with
// scripted oracles and hand-built indexes.
type RuntimeParts struct {
	// Oracle is the classification client every stage shares. Required.
	Oracle oracle.Classifier

	// Counter sizes prompts for the batchers. Nil selects a counter for
	// the configured oracle model.
	Counter matching.TokenCounter

	// Snapshot is the loaded thesaurus. Required.
	Snapshot *thesaurus.Snapshot

	// Index is the warm concept embedding index. Required.
	Index *embeddings.Index

	// Budget is the advisory per-run token ledger. Optional.
	Budget *oracle.TokenBudget

	// CallMetrics accumulates per-run oracle statistics. Optional.
	CallMetrics *oracle.CallMetrics

	// DB is the cache database the runtime closes on Close. Optional;
	// nil when the caller owns the database or none is open.
	DB *badgerstore.DB

	// Logger for runtime-level messages. Nil selects slog.Default().
	Logger *slog.Logger
}

// NewRuntime assembles a Runtime from pre-built parts.
//
// Description:
//
//	The matching stages are derived here rather than injected: the exact
//	matcher always covers the snapshot's camp and location pool, the
//	top-down matcher always walks under the configured token limit, and
//	all oracle-backed stages share the one classification client. That
//	keeps the strategy wiring identical between the batch pipeline, the
//	HTTP service, and tests.
//
// Outputs:
//   - *Runtime: The assembled runtime.
//   - error: Non-nil when a required part is missing.
func NewRuntime(cfg *config.Config, parts RuntimeParts) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("enrich: config must not be nil")
	}
	if parts.Oracle == nil {
		return nil, errors.New("enrich: oracle must not be nil")
	}
	if parts.Snapshot == nil {
		return nil, errors.New("enrich: thesaurus snapshot must not be nil")
	}
	if parts.Index == nil {
		return nil, errors.New("enrich: embedding index must not be nil")
	}

	counter := parts.Counter
	if counter == nil {
		counter = matching.NewTokenCounter(cfg.Oracle.Model)
	}
	logger := parts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runtime{
		cfg:      cfg,
		oracle:   parts.Oracle,
		counter:  counter,
		snapshot: parts.Snapshot,
		index:    parts.Index,
		exact:    matching.NewExactMatcher(parts.Snapshot.CampsAndLocations()),
		topdown:  matching.NewTopDownMatcher(parts.Oracle, counter, cfg.Pipeline.TokenLimit),
		agg:      matching.NewAggregator(parts.Oracle),
		budget:   parts.Budget,
		calls:    parts.CallMetrics,
		db:       parts.DB,
		logger:   logger,
	}, nil
}

// WithLogger returns a copy of the runtime that logs through logger. The
// stages, caches, and clients are shared with the receiver.
func (rt *Runtime) WithLogger(logger *slog.Logger) *Runtime {
	if logger == nil {
		return rt
	}
	cp := *rt
	cp.logger = logger
	return &cp
}

// Bootstrap loads every resource enrichment needs and assembles the runtime.
//
// Description:
//
//	Opens the cache database (falling back to in-memory operation when the
//	configured directory cannot be opened or locked), loads the thesaurus
//	snapshot through its cache, warms the concept embedding index through
//	its cache, and wires the shared oracle client with retry, pacing, and
//	budget accounting from configuration. The OPENAI_API_KEY environment
//	variable authenticates both transports; local OpenAI-compatible servers
//	usually accept any value.
//
//	Bootstrap is slow on a cold cache (one full thesaurus fetch plus one
//	embedding pass over every descriptive concept) and cheap on a warm one.
//	Service mains run it in a background goroutine behind a warmup guard;
//	the batch pipeline runs it inline before its first transcript.
//
// Inputs:
//   - ctx: Context for cancellation; aborting it abandons the load.
//   - cfg: Validated configuration, usually from config.GetConfig.
//
// Outputs:
//   - *Runtime: Ready-to-use runtime. The caller owns Close.
//   - error: Non-nil when the thesaurus or the index cannot be built.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("enrich: config must not be nil")
	}

	ctx, span := enrichTracer.Start(ctx, "enrich.Bootstrap")
	defer span.End()

	started := time.Now()
	logger := slog.Default()

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		logger.Warn("OPENAI_API_KEY is empty; providers that require a key will reject calls")
	}

	db := openCacheDB(cfg, logger)
	cacheTTL := time.Duration(cfg.Thesaurus.CacheTTLDays) * 24 * time.Hour

	var conceptStore *thesaurus.Store
	var vectorStore *embeddings.Store
	if db != nil {
		conceptStore = thesaurus.NewStore(db, cacheTTL, logger)
		vectorStore = embeddings.NewStore(db, cacheTTL, logger)
	}

	snapshot, err := thesaurus.NewLoader(conceptStore, cfg.Thesaurus.SourceURL).
		Load(ctx, cfg.Thesaurus.ForceReload)
	if err != nil {
		closeQuietly(db, logger)
		return nil, fmt.Errorf("enrich: loading thesaurus: %w", err)
	}

	embedder := llm.NewEmbeddingsClientWithConfig(apiKey, cfg.Embedding.Model, cfg.Embedding.BaseURL)
	index, err := embeddings.NewBuilder(embedder, vectorStore, embeddings.BuilderConfig{
		Concurrency:       cfg.Embedding.WarmConcurrency,
		ChunkSize:         cfg.Embedding.WarmChunkSize,
		RequestsPerSecond: cfg.Embedding.WarmRequestsPerSecond,
	}).Build(ctx, snapshot.Descriptive(), cfg.Thesaurus.ForceReload)
	if err != nil {
		closeQuietly(db, logger)
		return nil, fmt.Errorf("enrich: warming embedding index: %w", err)
	}

	var budget *oracle.TokenBudget
	if cfg.Pipeline.TokenAllowance > 0 {
		budget = oracle.NewTokenBudget("enrichment", cfg.Pipeline.TokenAllowance)
	}
	calls := oracle.NewCallMetrics("enrichment")

	temperature := cfg.Oracle.Temperature
	maxTokens := cfg.Oracle.MaxTokens
	chat := llm.NewOpenAIClientWithConfig(apiKey, cfg.Oracle.Model, cfg.Oracle.BaseURL)
	client := oracle.NewClientWithConfig(chat, oracle.Config{
		MaxAttempts:       cfg.Oracle.MaxAttempts,
		DefaultWait:       time.Duration(cfg.Oracle.RetryWaitSeconds) * time.Second,
		Temperature:       &temperature,
		MaxTokens:         &maxTokens,
		RequestsPerMinute: cfg.Oracle.RequestsPerMinute,
		Budget:            budget,
		RunMetrics:        calls,
	})

	rt, err := NewRuntime(cfg, RuntimeParts{
		Oracle:      client,
		Snapshot:    snapshot,
		Index:       index,
		Budget:      budget,
		CallMetrics: calls,
		DB:          db,
		Logger:      logger,
	})
	if err != nil {
		closeQuietly(db, logger)
		return nil, err
	}

	stats := rt.Stats()
	span.SetAttributes(
		attribute.Int("thesaurus.concepts", stats.Concepts),
		attribute.Int("index.vectors", stats.IndexVectors),
		attribute.String("oracle.model", stats.OracleModel),
		attribute.String("embedding.model", stats.EmbeddingModel),
	)
	logger.Info("Enrichment runtime ready",
		slog.Int("concepts", stats.Concepts),
		slog.Int("descriptive", stats.DescriptiveConcepts),
		slog.Int("descriptive_tops", stats.DescriptiveTops),
		slog.Int("camps_and_locations", stats.CampsAndLocations),
		slog.Int("index_vectors", stats.IndexVectors),
		slog.String("oracle_model", stats.OracleModel),
		slog.String("embedding_model", stats.EmbeddingModel),
		slog.Duration("duration", time.Since(started)))

	return rt, nil
}

// openCacheDB opens the configured cache database. A disk cache that cannot
// be opened (bad directory, held lock) degrades to an in-memory database so
// enrichment still runs; only losing both leaves the runtime cacheless.
func openCacheDB(cfg *config.Config, logger *slog.Logger) *badgerstore.DB {
	storeCfg := badgerstore.DefaultConfig()
	storeCfg.Path = cfg.Storage.Path
	storeCfg.InMemory = cfg.Storage.InMemory

	db, err := badgerstore.OpenDB(storeCfg)
	if err == nil {
		if !storeCfg.InMemory {
			logger.Info("Cache database opened", slog.String("path", storeCfg.Path))
		}
		return db
	}
	if storeCfg.InMemory {
		logger.Warn("In-memory cache database unavailable, caching disabled",
			slog.String("error", err.Error()))
		return nil
	}

	logger.Warn("Cache database unavailable, falling back to in-memory operation",
		slog.String("path", storeCfg.Path),
		slog.String("error", err.Error()))
	db, err = badgerstore.OpenDB(badgerstore.InMemoryConfig())
	if err != nil {
		logger.Warn("In-memory cache database unavailable, caching disabled",
			slog.String("error", err.Error()))
		return nil
	}
	return db
}

func closeQuietly(db *badgerstore.DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		logger.Warn("Failed to close cache database", slog.String("error", err.Error()))
	}
}
