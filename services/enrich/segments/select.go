// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package segments

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/TesseraAI/tessera/services/enrich/matching"
	"github.com/TesseraAI/tessera/services/enrich/oracle"
)

const defaultSelectionTokenLimit = 800000

// Selector picks the segments with enough WW2 substance to be worth
// enriching.
type Selector struct {
	oracle    oracle.Classifier
	counter   matching.TokenCounter
	maxTokens int
}

// NewSelector builds a selector. Non-positive maxTokens selects the default
// request budget.
func NewSelector(o oracle.Classifier, counter matching.TokenCounter, maxTokens int) *Selector {
	if maxTokens <= 0 {
		maxTokens = defaultSelectionTokenLimit
	}
	return &Selector{oracle: o, counter: counter, maxTokens: maxTokens}
}

// Select returns the relevant segments, in the order the oracle named them
// per batch. A batch whose reply does not parse is skipped; the other
// batches still contribute.
func (sel *Selector) Select(ctx context.Context, segs []Segment) ([]Segment, error) {
	var selected []Segment

	for _, batch := range BatchSegmentsByTokens(segs, sel.counter, sel.maxTokens) {
		reply, err := sel.oracle.Classify(ctx, selectionSystem, BuildSelectionPrompt(batch))
		if err != nil {
			return nil, err
		}

		cleaned := oracle.CleanResponse(reply)
		indices, perr := parseSelectedIndices(cleaned)
		if perr != nil {
			segmentMalformedRepliesTotal.WithLabelValues("selection").Inc()
			slog.Warn("Selection reply did not parse, skipping batch",
				"error", &oracle.ResponseShapeError{Stage: "selection", Raw: cleaned, Err: perr},
				"batch_size", len(batch))
			continue
		}

		for _, i := range indices {
			if i >= 0 && i < len(batch) {
				selected = append(selected, batch[i])
			}
		}
	}

	segmentsSelectedTotal.Add(float64(len(selected)))
	return selected, nil
}

// parseSelectedIndices decodes the selection reply. The documented form is
// an object with relevant_segments; a bare index array is accepted because
// the oracle falls back to it. Any other valid JSON counts as an empty
// selection.
func parseSelectedIndices(cleaned string) ([]int, error) {
	raw := []byte(cleaned)

	var obj struct {
		RelevantSegments []int `json:"relevant_segments"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.RelevantSegments, nil
	}

	var bare []int
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, nil
	}

	if json.Valid(raw) {
		return nil, nil
	}
	return nil, fmt.Errorf("segments: selection reply is not valid JSON")
}
