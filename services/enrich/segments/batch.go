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
	"github.com/TesseraAI/tessera/services/enrich/matching"
)

// segmentTokenMargin covers the numbering and blank lines around each
// segment in the selection prompt, which the counter does not see.
const segmentTokenMargin = 10

// FirstMinutesWindow returns the leading captions covering at most the
// given number of minutes, measured from the end of the first caption. The
// first caption is always included.
func FirstMinutesWindow(captions []Caption, minutes int) []Caption {
	if len(captions) == 0 {
		return nil
	}
	limit := captions[0].End + float64(minutes)*60
	var window []Caption
	for _, c := range captions {
		if c.End > limit {
			break
		}
		window = append(window, c)
	}
	return window
}

// BatchSegmentsByTokens groups segments for the selection prompt so that
// each batch, plus the prompt scaffolding, fits within maxTokens. A single
// segment larger than the budget still gets a batch of its own.
func BatchSegmentsByTokens(segments []Segment, counter matching.TokenCounter, maxTokens int) [][]Segment {
	overhead := counter.Count(BuildSelectionPrompt(nil))

	var batches [][]Segment
	var current []Segment
	tokens := 0

	for _, seg := range segments {
		cost := counter.Count(flattenText(seg.Text)) + segmentTokenMargin
		if tokens+cost+overhead > maxTokens && len(current) > 0 {
			batches = append(batches, current)
			current = nil
			tokens = 0
		}
		current = append(current, seg)
		tokens += cost
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
