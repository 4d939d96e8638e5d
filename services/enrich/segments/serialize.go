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

// SegmentExport is the wire form of a plain segment.
type SegmentExport struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// ConceptMatchExport is one matched concept in the enriched export.
type ConceptMatchExport struct {
	URI    string   `json:"uri"`
	Name   string   `json:"name"`
	Source string   `json:"source"`
	Score  *float64 `json:"score"`
}

// EnrichedSegmentExport is the wire form of an enriched segment.
// SegmentTitle stays null until AddTitles fills it.
type EnrichedSegmentExport struct {
	SegmentTitle    *string              `json:"segment_title"`
	IntervieweeName string               `json:"interviewee_name"`
	Start           float64              `json:"start"`
	End             float64              `json:"end"`
	Text            string               `json:"text"`
	MatchedConcepts []ConceptMatchExport `json:"matched_concepts"`
}

// ExportSegments converts segments to their wire form.
func ExportSegments(segments []Segment) []SegmentExport {
	out := make([]SegmentExport, len(segments))
	for i, s := range segments {
		out[i] = SegmentExport{Start: s.Start, End: s.End, Text: s.Text}
	}
	return out
}

// ExportEnrichedSegments converts enriched segments to their wire form,
// stamping every entry with the interviewee name extracted for the
// transcript.
func ExportEnrichedSegments(enriched []EnrichedSegment, intervieweeName string) []EnrichedSegmentExport {
	out := make([]EnrichedSegmentExport, len(enriched))
	for i, e := range enriched {
		matches := make([]ConceptMatchExport, len(e.Matches))
		for j, m := range e.Matches {
			matches[j] = ConceptMatchExport{
				URI:    m.Concept.URI,
				Name:   m.Concept.Name,
				Source: string(m.Source),
				Score:  m.Score,
			}
		}
		out[i] = EnrichedSegmentExport{
			IntervieweeName: intervieweeName,
			Start:           e.Segment.Start,
			End:             e.Segment.End,
			Text:            e.Segment.Text,
			MatchedConcepts: matches,
		}
	}
	return out
}
