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
	"regexp"
	"strings"

	"github.com/TesseraAI/tessera/services/enrich/thesaurus"
)

// Word boundaries must be Unicode-aware: camp and place names in the
// thesaurus include characters like Ł and ź that RE2's ASCII \b treats
// as non-word, which would make those names unmatchable.
const (
	leadingBoundary  = `(?:^|[^\p{L}\p{N}_])`
	trailingBoundary = `(?:$|[^\p{L}\p{N}_])`
)

type exactPattern struct {
	concept *thesaurus.Concept
	re      *regexp.Regexp
}

// ExactMatcher finds literal whole-word occurrences of concept names in
// segment text, case-insensitively. Patterns are compiled once per pool.
//
// Thread Safety: Safe for concurrent use after construction.
type ExactMatcher struct {
	patterns []exactPattern
}

// NewExactMatcher compiles occurrence patterns for every concept in the
// pool. Concepts whose name is empty after trimming are skipped; an empty
// pattern would match every word boundary in the text.
func NewExactMatcher(pool []*thesaurus.Concept) *ExactMatcher {
	m := &ExactMatcher{patterns: make([]exactPattern, 0, len(pool))}
	for _, c := range pool {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" {
			continue
		}
		re, err := regexp.Compile(leadingBoundary + regexp.QuoteMeta(name) + trailingBoundary)
		if err != nil {
			continue
		}
		m.patterns = append(m.patterns, exactPattern{concept: c, re: re})
	}
	return m
}

// Match returns a candidate for every pool concept whose name occurs as a
// whole word in the text. Matches carry score 1.0; a literal occurrence
// needs no model confidence.
func (m *ExactMatcher) Match(text string) []MatchCandidate {
	lowered := strings.ToLower(text)
	var matches []MatchCandidate
	for _, p := range m.patterns {
		if !p.re.MatchString(lowered) {
			continue
		}
		matches = append(matches, MatchCandidate{
			Concept: p.concept,
			Source:  SourceExact,
			Score:   floatPtr(1.0),
		})
	}
	matchesProducedTotal.WithLabelValues(string(SourceExact)).Add(float64(len(matches)))
	return matches
}
