// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package segments turns WebVTT interview transcripts into coherent
// segments and carries them through relevance selection, metadata
// extraction and JSON export. Splitting and selection are oracle driven;
// the package owns the prompts and the reply parsing for both.
package segments

import (
	"fmt"
	"strings"

	"github.com/TesseraAI/tessera/services/enrich/matching"
)

// Segment is a coherent stretch of interview built from consecutive answers
// on one topic. It keeps the captions it was assembled from.
type Segment struct {
	Start    float64
	End      float64
	Text     string
	Captions []Caption
}

// EnrichedSegment pairs a selected segment with its thesaurus matches.
type EnrichedSegment struct {
	Segment Segment
	Matches []matching.MatchCandidate
}

// BuildSegment assembles a segment from caption indices.
//
// Description:
//
//	Indices outside the caption list are dropped rather than failing the
//	segment; the oracle occasionally points past the window it was shown.
//	A segment with no surviving captions is an error. The segment text is
//	the caption texts with newlines flattened, joined by single spaces.
func BuildSegment(captions []Caption, indices []int) (Segment, error) {
	var picked []Caption
	for _, idx := range indices {
		if idx >= 0 && idx < len(captions) {
			picked = append(picked, captions[idx])
		}
	}
	if len(picked) == 0 {
		return Segment{}, fmt.Errorf("segments: no usable captions for segment")
	}

	parts := make([]string, len(picked))
	for i, c := range picked {
		parts[i] = flattenText(c.Text)
	}
	return Segment{
		Start:    picked[0].Start,
		End:      picked[len(picked)-1].End,
		Text:     strings.Join(parts, " "),
		Captions: picked,
	}, nil
}

// SegmentsFromBoundaries cuts the caption list at the given start indices.
// Each boundary opens a segment that runs up to the next boundary; the last
// one runs to the end of the transcript.
func SegmentsFromBoundaries(captions []Caption, boundaries []int) ([]Segment, error) {
	segments := make([]Segment, 0, len(boundaries))
	for i, startIdx := range boundaries {
		endIdx := len(captions)
		if i+1 < len(boundaries) {
			endIdx = boundaries[i+1]
		}
		var indices []int
		for idx := startIdx; idx < endIdx; idx++ {
			indices = append(indices, idx)
		}
		seg, err := BuildSegment(captions, indices)
		if err != nil {
			return nil, fmt.Errorf("segments: boundary %d: %w", startIdx, err)
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// flattenText turns multi-line caption text into one trimmed line, the form
// used for segment text, prompts and token pricing.
func flattenText(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}
