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

	"github.com/TesseraAI/tessera/services/enrich/oracle"
)

const (
	defaultMinutesPerBatch = 20

	// maxStalledReplies bounds the retries over one caption window before
	// the window is skipped to keep the transcript moving.
	maxStalledReplies = 3
)

// Segmenter splits caption lists into segments by prompting the oracle one
// caption window at a time.
//
// Thread Safety: Safe for concurrent use; Split keeps all state local.
type Segmenter struct {
	oracle          oracle.Classifier
	minutesPerBatch int
}

// NewSegmenter builds a segmenter that shows the oracle windows of roughly
// minutesPerBatch minutes. Non-positive values select the default of 20.
func NewSegmenter(o oracle.Classifier, minutesPerBatch int) *Segmenter {
	if minutesPerBatch <= 0 {
		minutesPerBatch = defaultMinutesPerBatch
	}
	return &Segmenter{oracle: o, minutesPerBatch: minutesPerBatch}
}

// Split turns the caption list into segments.
//
// Description:
//
//	The oracle sees one window of captions at a time and replies with
//	caption index groups. All groups but the last are accepted; the last is
//	held back and its start becomes the next window's origin, so a segment
//	cut short by the window edge gets re-proposed with full context. A
//	reply that makes no forward progress is retried with a variation
//	suffix; after maxStalledReplies the window is skipped. A reply that
//	does not parse or comes back empty ends the walk with the segments
//	collected so far.
//
// Outputs:
//   - []Segment: Segments in transcript order.
//   - error: Non-nil only when the oracle itself fails.
func (s *Segmenter) Split(ctx context.Context, captions []Caption) ([]Segment, error) {
	var segments []Segment

	next := 0
	stuck := 0

	for next < len(captions) {
		window := FirstMinutesWindow(captions[next:], s.minutesPerBatch)

		suffix := ""
		if stuck > 0 {
			suffix = fmt.Sprintf("# This is retry number %d. Please make sure to create segments based on the rules above.", stuck)
		}

		reply, err := s.oracle.Classify(ctx, segmentationSystem, BuildSegmentationPrompt(window, next, suffix))
		if err != nil {
			return nil, err
		}

		cleaned := oracle.CleanResponse(reply)
		entries, perr := parseCaptionIndexEntries(cleaned)
		if perr != nil {
			segmentMalformedRepliesTotal.WithLabelValues("segmentation").Inc()
			slog.Warn("Segmentation reply did not parse, keeping segments so far",
				"error", &oracle.ResponseShapeError{Stage: "segmentation", Raw: cleaned, Err: perr},
				"captions_done", next)
			break
		}
		if len(entries) == 0 {
			break
		}

		var (
			last        *Segment
			lastIndices []int
		)
		for i, indices := range entries {
			seg, err := BuildSegment(captions, indices)
			if err != nil {
				continue
			}
			if i == len(entries)-1 {
				last = &seg
				lastIndices = indices
			} else {
				segments = append(segments, seg)
			}
		}

		if len(lastIndices) == 0 {
			break
		}
		if lastIndices[len(lastIndices)-1] >= len(captions)-1 {
			segments = append(segments, *last)
			break
		}

		if lastStart := lastIndices[0]; lastStart > next {
			stuck = 0
			next = lastStart
			continue
		}
		stuck++
		if stuck >= maxStalledReplies {
			next += len(window)
			stuck = 0
			segmentationWindowsSkippedTotal.Inc()
			slog.Warn("Segmentation stalled, skipping window",
				"captions_done", next, "window_size", len(window))
		}
	}

	segmentsCreatedTotal.Add(float64(len(segments)))
	return segments, nil
}

// parseCaptionIndexEntries decodes the segmentation reply: a JSON array of
// objects each carrying caption_indices.
func parseCaptionIndexEntries(cleaned string) ([][]int, error) {
	var entries []struct {
		CaptionIndices []int `json:"caption_indices"`
	}
	if err := json.Unmarshal([]byte(cleaned), &entries); err != nil {
		return nil, err
	}
	out := make([][]int, len(entries))
	for i, e := range entries {
		out[i] = e.CaptionIndices
	}
	return out, nil
}
