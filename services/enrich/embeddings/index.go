// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package embeddings maintains the concept embedding index that the
// similarity matcher searches against. The index is computed once per
// thesaurus snapshot, persisted in BadgerDB keyed by a corpus hash, and
// restored on later runs as long as neither the concepts nor the embedding
// model changed.
package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/TesseraAI/tessera/services/enrich/matching"
	"github.com/TesseraAI/tessera/services/enrich/thesaurus"
)

// Embedder is the slice of the embeddings client the index needs.
// *llm.EmbeddingsClient satisfies it.
type Embedder interface {
	// Embed returns one vector per input, in input order.
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	// Model returns the embedding model name requests are sent with.
	Model() string
}

// BuilderConfig tunes index warm-up.
type BuilderConfig struct {
	// Concurrency caps parallel embed requests during warm-up.
	Concurrency int
	// ChunkSize is how many concept texts share one embed request.
	ChunkSize int
	// RequestsPerSecond paces warm-up toward the provider. Zero or less
	// disables pacing.
	RequestsPerSecond float64
}

// DefaultBuilderConfig returns warm-up settings sized for the OpenAI
// embeddings endpoint: a few thousand concepts finish in a handful of
// paced batch requests.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		Concurrency:       4,
		ChunkSize:         64,
		RequestsPerSecond: 2,
	}
}

// Builder computes or restores a concept embedding index.
//
// Thread Safety: Safe for concurrent use; Build is typically called once
// at startup.
type Builder struct {
	embedder Embedder
	store    *Store
	limiter  *rate.Limiter
	cfg      BuilderConfig
}

// NewBuilder creates a Builder.
//
// Inputs:
//   - embedder: The embeddings client. Must not be nil.
//   - store: Optional persistence. Nil disables caching.
//   - cfg: Warm-up tuning. Zero fields fall back to DefaultBuilderConfig.
//
// Outputs:
//   - *Builder: The configured builder.
func NewBuilder(embedder Embedder, store *Store, cfg BuilderConfig) *Builder {
	if embedder == nil {
		panic("NewBuilder: embedder must not be nil")
	}
	def := DefaultBuilderConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Builder{
		embedder: embedder,
		store:    store,
		limiter:  rate.NewLimiter(limit, 1),
		cfg:      cfg,
	}
}

// Build returns an index over pool, restoring the vector matrix from the
// store when possible.
//
// Description:
//
//	The corpus hash covers the model name and every concept text in pool
//	order, so any thesaurus or model change misses the cache and triggers
//	a fresh warm-up. Warm-up embeds the pool in chunks, in parallel, paced
//	by the request limiter; any chunk failure fails the build, because the
//	matcher needs a vector for every pooled concept. Vectors are stored
//	unit length, so dot products over them equal cosine similarity.
//
// Inputs:
//   - ctx: Context for cancellation. Aborts pending embed calls.
//   - pool: Concepts to index, in the order tie-breaks should prefer.
//   - forceReload: True bypasses the cache read (the write still happens).
//
// Outputs:
//   - *Index: The ready index. Never nil on success.
//   - error: Non-nil when embedding fails or the cache is unreadable gob.
func (b *Builder) Build(ctx context.Context, pool []*thesaurus.Concept, forceReload bool) (*Index, error) {
	texts := make([]string, len(pool))
	for i, c := range pool {
		texts[i] = c.EmbeddingText()
	}
	hash := corpusHash(b.embedder.Model(), texts)

	if b.store != nil && !forceReload {
		cached, err := b.store.LoadVectors(ctx, hash)
		switch {
		case err != nil:
			slog.Warn("Embedding cache read failed, recomputing", "error", err)
		case len(cached) == len(pool) && len(pool) > 0:
			indexBuildsTotal.WithLabelValues("cache").Inc()
			slog.Info("Embedding index restored from cache",
				"concepts", len(pool), "model", b.embedder.Model())
			return &Index{embedder: b.embedder, pool: pool, vectors: cached}, nil
		case cached != nil:
			slog.Warn("Embedding cache entry does not cover the pool, recomputing",
				"cached", len(cached), "pool", len(pool))
		}
	}

	if len(pool) == 0 {
		return &Index{embedder: b.embedder}, nil
	}

	slog.Info("Warming embedding index",
		"concepts", len(pool),
		"model", b.embedder.Model(),
		"chunk_size", b.cfg.ChunkSize,
		"concurrency", b.cfg.Concurrency)

	vectors := make([][]float32, len(pool))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, b.cfg.Concurrency)

	for start := 0; start < len(texts); start += b.cfg.ChunkSize {
		end := min(start+b.cfg.ChunkSize, len(texts))
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := b.limiter.Wait(gctx); err != nil {
				return err
			}
			chunk, err := b.embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embeddings: warm chunk [%d:%d): %w", start, end, err)
			}
			if len(chunk) != end-start {
				return fmt.Errorf("embeddings: warm chunk [%d:%d) returned %d vectors", start, end, len(chunk))
			}
			embedRequestsTotal.WithLabelValues("warm").Inc()

			// Chunks own disjoint index ranges, so no lock is needed.
			for j, vec := range chunk {
				vectors[start+j] = unitNormalize(vec)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	indexBuildsTotal.WithLabelValues("fresh").Inc()

	if b.store != nil {
		if err := b.store.SaveVectors(ctx, hash, vectors); err != nil {
			slog.Warn("Embedding cache write failed, continuing without persistence", "error", err)
		}
	}
	return &Index{embedder: b.embedder, pool: pool, vectors: vectors}, nil
}

// Index is an immutable embedding matrix over a concept pool.
//
// Thread Safety: Safe for concurrent use.
type Index struct {
	embedder Embedder
	pool     []*thesaurus.Concept
	vectors  [][]float32
}

// Len returns the number of indexed concepts.
func (x *Index) Len() int { return len(x.pool) }

// Model returns the embedding model the index was built with.
func (x *Index) Model() string { return x.embedder.Model() }

// Search embeds text and returns the k most similar concepts.
//
// Description:
//
//	The segment vector is computed on demand, normalized like the stored
//	matrix, and ranked by cosine similarity with ties broken by pool
//	position. An empty index or non-positive k returns nothing.
//
// Inputs:
//   - ctx: Context for the embed call.
//   - text: Segment text to match.
//   - k: Number of candidates to keep.
//
// Outputs:
//   - []matching.MatchCandidate: Top k embedding-similarity candidates.
//   - error: Non-nil when the embed call fails.
func (x *Index) Search(ctx context.Context, text string, k int) ([]matching.MatchCandidate, error) {
	if len(x.pool) == 0 || k <= 0 {
		return nil, nil
	}

	vecs, err := x.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embeddings: embedding segment text: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embeddings: segment embed returned %d vectors", len(vecs))
	}
	embedRequestsTotal.WithLabelValues("query").Inc()

	return matching.MatchByEmbedding(unitNormalize(vecs[0]), x.vectors, x.pool, k)
}

// corpusHash fingerprints everything that determines the vector matrix:
// the model name and every concept text, in pool order.
func corpusHash(model string, texts []string) string {
	h := sha256.New()
	io.WriteString(h, model)
	h.Write([]byte{0})
	for _, t := range texts {
		io.WriteString(h, t)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// unitNormalize scales v to unit length. A zero vector has no direction
// and is returned as-is.
func unitNormalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
