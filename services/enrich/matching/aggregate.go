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
)

// Aggregator validates strategy output against the segment and merges the
// surviving candidates with the hierarchical matches into one tag set.
//
// Thread Safety: Safe for concurrent use.
type Aggregator struct {
	oracle oracle.Classifier
}

func NewAggregator(o oracle.Classifier) *Aggregator {
	return &Aggregator{oracle: o}
}

// Validate asks the oracle which candidates are genuinely central to the
// segment.
//
// Description:
//
//	Exact-occurrence and embedding matches are mechanical and need this
//	pass; a place name quoted in passing should not tag the segment. All
//	candidates go into a single prompt. Survivors keep their original
//	source; the oracle's confidence replaces the candidate's score when
//	given, otherwise the original score stands. A malformed reply drops
//	all candidates with a warning, which errs on the side of fewer,
//	trustworthy tags.
//
// Inputs:
//   - ctx: Cancels the oracle call.
//   - segmentText: The transcript fragment.
//   - candidates: Matches proposed by the mechanical strategies.
//
// Outputs:
//   - []MatchCandidate: Survivors in candidate order.
//   - error: Oracle transport or retry-exhaustion failures only.
func (a *Aggregator) Validate(ctx context.Context, segmentText string, candidates []MatchCandidate) ([]MatchCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	prompt := BuildValidationPrompt(segmentText, candidateLabels(candidates))
	reply, err := a.oracle.Classify(ctx, "", prompt)
	if err != nil {
		return nil, err
	}

	cleaned := oracle.CleanResponse(reply)
	entries, perr := ParseLabeledMatches(cleaned)
	if perr != nil {
		malformedRepliesTotal.WithLabelValues("validation").Inc()
		shapeErr := &oracle.ResponseShapeError{Stage: "validation", Raw: cleaned, Err: perr}
		slog.Warn("Validation reply was not a JSON array, dropping all candidates",
			"error", shapeErr, "candidates", len(candidates))
		return nil, nil
	}

	validated := resolveAgainstCandidates(entries, candidates)
	validationOutcomesTotal.WithLabelValues("kept").Add(float64(len(validated)))
	validationOutcomesTotal.WithLabelValues("dropped").Add(float64(len(candidates) - len(validated)))
	return validated, nil
}

// Merge concatenates hierarchical matches ahead of validated ones and
// deduplicates. Hierarchical matches go first so that on a URI collision
// the walk's score wins over the validation score.
func (a *Aggregator) Merge(hierarchical, validated []MatchCandidate) []MatchCandidate {
	merged := make([]MatchCandidate, 0, len(hierarchical)+len(validated))
	merged = append(merged, hierarchical...)
	merged = append(merged, validated...)
	return Deduplicate(merged)
}

// Deduplicate keeps the first candidate per concept URI, preserving order.
func Deduplicate(matches []MatchCandidate) []MatchCandidate {
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	deduped := make([]MatchCandidate, 0, len(matches))
	for _, m := range matches {
		if seen[m.Concept.URI] {
			continue
		}
		seen[m.Concept.URI] = true
		deduped = append(deduped, m)
	}
	return deduped
}
