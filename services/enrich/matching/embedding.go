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
	"fmt"
	"math"
	"sort"

	"github.com/TesseraAI/tessera/services/enrich/thesaurus"
)

// MatchByEmbedding ranks pool concepts by cosine similarity to a segment
// vector and returns the top k as candidates.
//
// Description:
//
//	conceptVecs[i] must be the embedding of pool[i]; the two slices are
//	parallel. Ordering is deterministic: descending similarity, with ties
//	broken by pool position. k larger than the pool returns the whole
//	pool ranked; k of zero or less returns nothing.
//
// Inputs:
//   - segmentVec: Embedding of the segment text.
//   - conceptVecs: Embeddings parallel to pool.
//   - pool: Candidate concepts.
//   - k: Number of matches to keep.
//
// Outputs:
//   - []MatchCandidate: Top k candidates with cosine similarity scores.
//   - error: Non-nil on slice length or vector dimension mismatch.
func MatchByEmbedding(segmentVec []float32, conceptVecs [][]float32, pool []*thesaurus.Concept, k int) ([]MatchCandidate, error) {
	if len(conceptVecs) != len(pool) {
		return nil, fmt.Errorf("matching: %d concept vectors for %d concepts", len(conceptVecs), len(pool))
	}
	if k <= 0 || len(pool) == 0 {
		return nil, nil
	}

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, len(pool))
	for i, vec := range conceptVecs {
		if len(vec) != len(segmentVec) {
			return nil, fmt.Errorf("matching: concept vector %d has dimension %d, want %d", i, len(vec), len(segmentVec))
		}
		ranked[i] = scored{index: i, score: cosineSimilarity(segmentVec, vec)}
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].score > ranked[b].score
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	matches := make([]MatchCandidate, k)
	for i := 0; i < k; i++ {
		matches[i] = MatchCandidate{
			Concept: pool[ranked[i].index],
			Source:  SourceEmbedding,
			Score:   floatPtr(ranked[i].score),
		}
	}
	matchesProducedTotal.WithLabelValues(string(SourceEmbedding)).Add(float64(len(matches)))
	return matches, nil
}

// cosineSimilarity accumulates in float64 to keep ranking stable across
// platforms. A zero vector has no direction, so its similarity is 0.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
