// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package matching

import (
	"context"
	"log/slog"

	"github.com/TesseraAI/tessera/services/enrich/oracle"
	"github.com/TesseraAI/tessera/services/enrich/thesaurus"
)

// defaultTokenLimit suits models with very large context windows. Deploys
// targeting smaller models set an explicit limit via configuration.
const defaultTokenLimit = 800000

// TopDownMatcher walks the thesaurus hierarchy from its top concepts
// downward, asking the oracle at each level which concepts are central to
// the segment. Children of rejected concepts are never visited, which is
// what keeps a 10k-concept thesaurus affordable per segment.
//
// Thread Safety: Safe for concurrent use; all per-segment state is local
// to Match.
type TopDownMatcher struct {
	oracle    oracle.Classifier
	counter   TokenCounter
	maxTokens int
}

// NewTopDownMatcher wires a matcher to its oracle and tokenizer. A
// non-positive maxTokens falls back to defaultTokenLimit.
func NewTopDownMatcher(o oracle.Classifier, counter TokenCounter, maxTokens int) *TopDownMatcher {
	if maxTokens <= 0 {
		maxTokens = defaultTokenLimit
	}
	return &TopDownMatcher{oracle: o, counter: counter, maxTokens: maxTokens}
}

// Match runs the hierarchical walk for one segment.
//
// Description:
//
//	Top concepts are evaluated first and act purely as routing nodes: they
//	decide which branches to descend but are not part of the returned
//	matches. Each subsequent level collects the narrower concepts of the
//	previous level's matches (in pool order, skipping concepts already
//	matched earlier in the walk), evaluates them, and descends from the
//	new matches. The walk stops when a level yields no new concepts to
//	evaluate or no matches. Concepts rejected at one level stay eligible
//	for later levels reached through a different parent.
//
// Inputs:
//   - ctx: Cancels in-flight oracle calls.
//   - segmentText: The transcript fragment being tagged.
//   - pool: Concepts eligible as matches.
//   - tops: Entry points of the hierarchy.
//
// Outputs:
//   - []MatchCandidate: Matches from all descended levels, in evaluation
//     order. May contain duplicates when batches of one level agree; the
//     aggregator deduplicates.
//   - error: Oracle transport or retry-exhaustion failures only. Malformed
//     replies cost a batch its matches, never the segment.
func (m *TopDownMatcher) Match(ctx context.Context, segmentText string, pool, tops []*thesaurus.Concept) ([]MatchCandidate, error) {
	overhead := m.counter.Count(BuildTopDownPrompt(nil, segmentText))

	rootMatches, err := m.evaluateLevel(ctx, segmentText, tops, overhead)
	if err != nil {
		return nil, err
	}
	if len(rootMatches) == 0 {
		topdownLevelsWalked.Observe(0)
		return nil, nil
	}

	visited := make(map[string]bool, len(rootMatches))
	for _, mc := range rootMatches {
		visited[mc.Concept.URI] = true
	}

	var matches []MatchCandidate
	frontier := rootMatches
	levels := 0
	for {
		level := narrowerOf(frontier, pool, visited)
		if len(level) == 0 {
			break
		}
		levelMatches, err := m.evaluateLevel(ctx, segmentText, level, overhead)
		if err != nil {
			return nil, err
		}
		if len(levelMatches) == 0 {
			break
		}
		for _, mc := range levelMatches {
			visited[mc.Concept.URI] = true
		}
		matches = append(matches, levelMatches...)
		frontier = levelMatches
		levels++
	}

	topdownLevelsWalked.Observe(float64(levels))
	matchesProducedTotal.WithLabelValues(string(SourceTopDown)).Add(float64(len(matches)))
	return matches, nil
}

// evaluateLevel batches one level's labels under the token budget, asks
// the oracle about each batch, and resolves every reply against the full
// level pool. Resolving against the level rather than the batch tolerates
// replies that name a concept from a sibling batch.
func (m *TopDownMatcher) evaluateLevel(ctx context.Context, segmentText string, level []*thesaurus.Concept, overhead int) ([]MatchCandidate, error) {
	batches := BatchLabelsByTokens(conceptLabels(level), m.counter, m.maxTokens, overhead)

	var matched []MatchCandidate
	for _, batch := range batches {
		entries, err := m.classifyBatch(ctx, segmentText, batch)
		if err != nil {
			return nil, err
		}
		matched = append(matched, resolveAgainstPool(entries, level, SourceTopDown)...)
	}
	return matched, nil
}

// classifyBatch sends one batch to the oracle and parses the reply. A
// malformed reply earns a single retry; a second failure drops the batch
// with a warning instead of failing the walk.
func (m *TopDownMatcher) classifyBatch(ctx context.Context, segmentText string, labels []string) ([]LabeledMatch, error) {
	prompt := BuildTopDownPrompt(labels, segmentText)

	for attempt := 0; attempt < 2; attempt++ {
		topdownBatchesTotal.Inc()
		reply, err := m.oracle.Classify(ctx, "", prompt)
		if err != nil {
			return nil, err
		}

		cleaned := oracle.CleanResponse(reply)
		entries, perr := ParseLabeledMatches(cleaned)
		if perr == nil {
			return entries, nil
		}

		malformedRepliesTotal.WithLabelValues("top-down").Inc()
		shapeErr := &oracle.ResponseShapeError{Stage: "top-down", Raw: cleaned, Err: perr}
		if attempt == 0 {
			slog.Warn("Concept reply was not a JSON array, retrying batch", "error", shapeErr)
			continue
		}
		slog.Warn("Concept reply malformed twice, dropping batch",
			"error", shapeErr, "batch_size", len(labels))
	}
	return nil, nil
}

// narrowerOf collects the unvisited narrower concepts of the frontier, in
// pool order and without duplicates.
func narrowerOf(frontier []MatchCandidate, pool []*thesaurus.Concept, visited map[string]bool) []*thesaurus.Concept {
	wanted := make(map[string]bool)
	for _, mc := range frontier {
		for _, uri := range mc.Concept.Narrower {
			wanted[uri] = true
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	var level []*thesaurus.Concept
	for _, c := range pool {
		if wanted[c.URI] && !visited[c.URI] {
			level = append(level, c)
		}
	}
	return level
}
