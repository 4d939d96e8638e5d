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
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/TesseraAI/tessera/services/enrich/config"
	"github.com/TesseraAI/tessera/services/enrich/embeddings"
	"github.com/TesseraAI/tessera/services/enrich/matching"
	"github.com/TesseraAI/tessera/services/enrich/oracle"
	"github.com/TesseraAI/tessera/services/enrich/segments"
	badgerstore "github.com/TesseraAI/tessera/services/enrich/storage/badger"
	"github.com/TesseraAI/tessera/services/enrich/thesaurus"
)

// Runtime bundles everything one enrichment run needs: the loaded thesaurus
// snapshot, the warm concept embedding index, the shared oracle client, and
// the matching stages built on top of them. Bootstrap produces it; the batch
// pipeline and the HTTP handlers both consume it.
//
// Thread Safety: Safe for concurrent use after Bootstrap returns. All fields
// are set once and the stages it carries are themselves concurrency-safe.
type Runtime struct {
	cfg      *config.Config
	oracle   oracle.Classifier
	counter  matching.TokenCounter
	snapshot *thesaurus.Snapshot
	index    *embeddings.Index
	exact    *matching.ExactMatcher
	topdown  *matching.TopDownMatcher
	agg      *matching.Aggregator
	budget   *oracle.TokenBudget
	calls    *oracle.CallMetrics
	db       *badgerstore.DB
	logger   *slog.Logger
}

// Config returns the configuration the runtime was built from.
func (rt *Runtime) Config() *config.Config { return rt.cfg }

// Oracle returns the shared classification client. Segmentation, selection,
// and metadata extraction reuse it so every stage goes through the same
// retry, pacing, and budget accounting.
func (rt *Runtime) Oracle() oracle.Classifier { return rt.oracle }

// TokenCounter returns the counter sized for the oracle model.
func (rt *Runtime) TokenCounter() matching.TokenCounter { return rt.counter }

// Snapshot returns the loaded thesaurus snapshot.
func (rt *Runtime) Snapshot() *thesaurus.Snapshot { return rt.snapshot }

// Index returns the warm concept embedding index.
func (rt *Runtime) Index() *embeddings.Index { return rt.index }

// Budget returns the per-run token ledger, nil when no allowance is set.
func (rt *Runtime) Budget() *oracle.TokenBudget { return rt.budget }

// CallMetrics returns the per-run oracle call statistics.
func (rt *Runtime) CallMetrics() *oracle.CallMetrics { return rt.calls }

// Close releases the cache database. Safe to call once, after all matching
// work has finished.
func (rt *Runtime) Close() error {
	if rt.db == nil {
		return nil
	}
	return rt.db.Close()
}

// MatchSegmentText runs the full matching flow over one segment text.
//
// Description:
//
//	Three strategies feed the result. Embedding similarity proposes the
//	top-k nearest descriptive concepts; exact occurrence scans the text for
//	camp and location names. Those two pools are validated together by the
//	oracle. Independently, the top-down matcher walks the descriptive
//	hierarchy from its top concepts. Hierarchical matches are merged ahead
//	of validated ones and the union is deduplicated by concept URI, first
//	occurrence winning.
//
//	A validation pass that fails outright (transport, exhausted retries) is
//	logged and dropped; the hierarchical matches still stand. Failures of
//	the embedding search or the top-down walk fail the whole flow, since
//	without them the result would misrepresent the segment.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - text: The segment text. Matching an empty string yields no matches.
//
// Outputs:
//   - []matching.MatchCandidate: Deduplicated matches, hierarchical first.
//   - error: Non-nil when embedding search or the top-down walk failed.
//
// Thread Safety: Safe for concurrent use.
func (rt *Runtime) MatchSegmentText(ctx context.Context, text string) ([]matching.MatchCandidate, error) {
	ctx, span := enrichTracer.Start(ctx, "enrich.MatchSegmentText")
	defer span.End()

	start := time.Now()

	embedded, err := rt.index.Search(ctx, text, rt.cfg.Embedding.TopK)
	if err != nil {
		matchFlowsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("enrich: embedding search: %w", err)
	}
	direct := rt.exact.Match(text)

	candidates := make([]matching.MatchCandidate, 0, len(embedded)+len(direct))
	candidates = append(candidates, embedded...)
	candidates = append(candidates, direct...)

	outcome := "ok"
	validated, err := rt.agg.Validate(ctx, text, candidates)
	if err != nil {
		// Hierarchical matches can still carry the segment.
		outcome = "validation_degraded"
		rt.logger.Warn("Candidate validation failed, keeping hierarchical matches only",
			slog.Int("candidates", len(candidates)),
			slog.String("error", err.Error()))
		validated = nil
	}

	hierarchical, err := rt.topdown.Match(ctx, text, rt.snapshot.Descriptive(), rt.snapshot.DescriptiveTops())
	if err != nil {
		matchFlowsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("enrich: top-down matching: %w", err)
	}

	merged := rt.agg.Merge(hierarchical, validated)

	span.SetAttributes(
		attribute.Int("candidates.embedding", len(embedded)),
		attribute.Int("candidates.exact", len(direct)),
		attribute.Int("matches.hierarchical", len(hierarchical)),
		attribute.Int("matches.final", len(merged)),
	)

	matchFlowsTotal.WithLabelValues(outcome).Inc()
	matchFlowSeconds.Observe(time.Since(start).Seconds())
	return merged, nil
}

// EnrichSegment matches one segment and wraps the result.
func (rt *Runtime) EnrichSegment(ctx context.Context, seg segments.Segment) (segments.EnrichedSegment, error) {
	matches, err := rt.MatchSegmentText(ctx, seg.Text)
	if err != nil {
		return segments.EnrichedSegment{}, err
	}
	return segments.EnrichedSegment{Segment: seg, Matches: matches}, nil
}

// Stats describes the loaded resources, for health reporting and run logs.
type Stats struct {
	Concepts            int    `json:"concepts"`
	DescriptiveConcepts int    `json:"descriptive_concepts"`
	DescriptiveTops     int    `json:"descriptive_tops"`
	CampsAndLocations   int    `json:"camps_and_locations"`
	IndexVectors        int    `json:"index_vectors"`
	OracleModel         string `json:"oracle_model"`
	EmbeddingModel      string `json:"embedding_model"`
}

// Stats reports the sizes of the loaded pools and the models in use.
func (rt *Runtime) Stats() Stats {
	return Stats{
		Concepts:            rt.snapshot.Len(),
		DescriptiveConcepts: len(rt.snapshot.Descriptive()),
		DescriptiveTops:     len(rt.snapshot.DescriptiveTops()),
		CampsAndLocations:   len(rt.snapshot.CampsAndLocations()),
		IndexVectors:        rt.index.Len(),
		OracleModel:         rt.cfg.Oracle.Model,
		EmbeddingModel:      rt.index.Model(),
	}
}
