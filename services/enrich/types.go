// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package enrich

import (
	"github.com/TesseraAI/tessera/services/enrich/segments"
)

// ErrorResponse is the error body every handler returns.
type ErrorResponse struct {
	// Error is a human-readable description of what went wrong.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code"`
}

// EnrichSegmentRequest is the body of POST /v1/enrich/segment.
type EnrichSegmentRequest struct {
	// Text is the segment text to match concepts against. Required.
	Text string `json:"text"`

	// Start and End are optional timestamps in seconds, echoed into the
	// response so callers can keep their own bookkeeping.
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`
}

// EnrichSegmentResponse is the enriched segment returned for one request.
type EnrichSegmentResponse struct {
	Start           float64                       `json:"start"`
	End             float64                       `json:"end"`
	Text            string                        `json:"text"`
	MatchedConcepts []segments.ConceptMatchExport `json:"matched_concepts"`
}

// HealthResponse reports service readiness and the loaded resource sizes.
// The stats are zero while warmup is still running.
type HealthResponse struct {
	// Status is "healthy" once the runtime is installed, "warming_up"
	// while the background load runs, and "degraded" when warmup failed.
	Status string `json:"status"`

	// Warmed mirrors the warmup registry.
	Warmed bool `json:"warmed"`

	// Stats describes the loaded thesaurus and index. Nil until warmed.
	Stats *Stats `json:"stats,omitempty"`

	// Error carries the warmup failure when Status is "degraded".
	Error string `json:"error,omitempty"`
}
