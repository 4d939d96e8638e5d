// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package matching produces thesaurus concept matches for transcript
// segments. Three strategies feed it: exact whole-word occurrence,
// embedding similarity, and a top-down walk of the concept hierarchy
// mediated by the classification oracle. An aggregator validates and
// merges their output into one deduplicated tag set per segment.
package matching

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/TesseraAI/tessera/services/enrich/thesaurus"
)

// Source identifies the strategy that produced a match. A candidate that
// survives the validation pass keeps its original source.
type Source string

const (
	SourceExact     Source = "exact-occurrence"
	SourceEmbedding Source = "embedding-similarity"
	SourceTopDown   Source = "top-down-hierarchical"
)

// MatchCandidate ties a thesaurus concept to the strategy that proposed it.
//
// Score semantics depend on the source: 1.0 for exact occurrence, cosine
// similarity for embedding matches, and the oracle's confidence (possibly
// absent) for top-down and validated matches. Scores are never comparable
// across sources.
type MatchCandidate struct {
	Concept *thesaurus.Concept `json:"concept"`
	Source  Source             `json:"source"`
	Score   *float64           `json:"score,omitempty"`
}

// LabeledMatch is one entry of an oracle reply naming a relevant concept.
//
// The wire accepts three shapes: a bare name string, {"concept": name},
// and {"concept": name, "score": v} where v is a number or a numeric
// string. Score stays nil when absent or unparseable.
type LabeledMatch struct {
	Name  string
	Score *float64
}

// ParseLabeledMatches decodes a cleaned oracle reply into labeled matches.
//
// Description:
//
//	The reply must be a JSON array. Array entries that match none of the
//	accepted shapes (objects without a "concept" key, numbers, nulls) are
//	dropped rather than treated as errors; models pad their answers in too
//	many ways to make that fatal. Names are trimmed of whitespace and
//	empty names dropped.
//
// Inputs:
//   - cleaned: Reply text, already passed through oracle.CleanResponse.
//
// Outputs:
//   - []LabeledMatch: The recognized entries, in reply order.
//   - error: Non-nil only when the reply is not a JSON array at all.
func ParseLabeledMatches(cleaned string) ([]LabeledMatch, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, err
	}

	out := make([]LabeledMatch, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if name := strings.TrimSpace(s); name != "" {
				out = append(out, LabeledMatch{Name: name})
			}
			continue
		}

		var obj struct {
			Concept *string `json:"concept"`
			Score   any     `json:"score"`
		}
		if err := json.Unmarshal(item, &obj); err != nil || obj.Concept == nil {
			continue
		}
		name := strings.TrimSpace(*obj.Concept)
		if name == "" {
			continue
		}
		out = append(out, LabeledMatch{Name: name, Score: coerceScore(obj.Score)})
	}
	return out, nil
}

// coerceScore accepts numeric or numeric-string scores; anything else
// (null, booleans, objects) yields nil.
func coerceScore(v any) *float64 {
	switch s := v.(type) {
	case float64:
		return &s
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return &f
		}
	}
	return nil
}

// scoreIndex collapses reply entries into a name-to-score lookup. A name
// repeated in the reply keeps its last score.
func scoreIndex(entries []LabeledMatch) map[string]*float64 {
	idx := make(map[string]*float64, len(entries))
	for _, e := range entries {
		idx[e.Name] = e.Score
	}
	return idx
}

// resolveAgainstPool maps reply entries back onto the candidate pool by
// exact trimmed-name equality.
//
// Description:
//
//	Pool order, not reply order, determines result order: the oracle is
//	only trusted to select names, never to rank them. Reply names that
//	match no pool concept are ignored.
//
// Inputs:
//   - entries: Parsed reply entries.
//   - pool: The concepts the oracle was choosing from.
//   - source: The source to stamp on resolved candidates.
//
// Outputs:
//   - []MatchCandidate: Matched concepts in pool order.
func resolveAgainstPool(entries []LabeledMatch, pool []*thesaurus.Concept, source Source) []MatchCandidate {
	idx := scoreIndex(entries)
	if len(idx) == 0 {
		return nil
	}

	var matched []MatchCandidate
	for _, c := range pool {
		score, ok := idx[strings.TrimSpace(c.Name)]
		if !ok {
			continue
		}
		matched = append(matched, MatchCandidate{
			Concept: c,
			Source:  source,
			Score:   score,
		})
	}
	return matched
}

// resolveAgainstCandidates maps reply entries back onto existing
// candidates, preserving each survivor's source. The oracle's score wins
// when present; otherwise the candidate keeps its original score.
func resolveAgainstCandidates(entries []LabeledMatch, candidates []MatchCandidate) []MatchCandidate {
	idx := scoreIndex(entries)
	if len(idx) == 0 {
		return nil
	}

	var validated []MatchCandidate
	for _, mc := range candidates {
		score, ok := idx[strings.TrimSpace(mc.Concept.Name)]
		if !ok {
			continue
		}
		if score == nil {
			score = mc.Score
		}
		validated = append(validated, MatchCandidate{
			Concept: mc.Concept,
			Source:  mc.Source,
			Score:   score,
		})
	}
	return validated
}

// conceptLabels renders pool concepts the way prompts list them.
func conceptLabels(pool []*thesaurus.Concept) []string {
	labels := make([]string, len(pool))
	for i, c := range pool {
		labels[i] = c.Label()
	}
	return labels
}

// candidateLabels renders existing candidates the way prompts list them.
func candidateLabels(candidates []MatchCandidate) []string {
	labels := make([]string, len(candidates))
	for i, mc := range candidates {
		labels[i] = mc.Concept.Label()
	}
	return labels
}

func floatPtr(v float64) *float64 {
	return &v
}
