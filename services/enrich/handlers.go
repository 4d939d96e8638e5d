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
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/TesseraAI/tessera/services/enrich/segments"
)

// Handlers holds the HTTP handlers for the enrichment service.
//
// Thread Safety: Safe for concurrent use; all state lives in the Service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers bound to the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// getOrCreateRequestID returns the inbound X-Request-ID header, minting a
// fresh UUID when the caller sent none, and echoes it on the response so
// clients can correlate logs.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// HandleEnrichSegment handles POST /v1/enrich/segment.
//
// Description:
//
//	Runs the full per-segment matching flow over the posted text: embedding
//	similarity and exact occurrence candidates validated by the oracle,
//	merged behind the top-down hierarchical matches, deduplicated by
//	concept URI. Start and end timestamps are echoed back unchanged.
//
// Request Body:
//
//	EnrichSegmentRequest (text required, start/end optional)
//
// Response:
//
//	200 OK: EnrichSegmentResponse
//	400 Bad Request: Missing or empty text
//	500 Internal Server Error: Warmup finished without a runtime
//	502 Bad Gateway: Oracle or embedding provider failure
//	503 Service Unavailable: Runtime not warmed
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleEnrichSegment(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleEnrichSegment")

	rt := h.svc.Runtime()
	if rt == nil {
		// A recorded warmup error means warmup already ran and failed;
		// retrying will not help until the process restarts.
		if werr := h.svc.WarmupError(); werr != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: "enrichment runtime failed to start: " + werr.Error(),
				Code:  "SERVICE_DEGRADED",
			})
			return
		}
		c.Header("Retry-After", "30")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "enrichment runtime is not ready",
			Code:  "SERVICE_WARMING_UP",
		})
		return
	}

	var req EnrichSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "text is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	matches, err := rt.WithLogger(logger).MatchSegmentText(c.Request.Context(), req.Text)
	if err != nil {
		logger.Error("segment enrichment failed", slog.Any("error", err))
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: "enrichment failed: " + err.Error(),
			Code:  "ENRICHMENT_FAILED",
		})
		return
	}

	matched := make([]segments.ConceptMatchExport, len(matches))
	for i, m := range matches {
		matched[i] = segments.ConceptMatchExport{
			URI:    m.Concept.URI,
			Name:   m.Concept.Name,
			Source: string(m.Source),
			Score:  m.Score,
		}
	}

	resp := EnrichSegmentResponse{
		Text:            req.Text,
		MatchedConcepts: matched,
	}
	if req.Start != nil {
		resp.Start = *req.Start
	}
	if req.End != nil {
		resp.End = *req.End
	}

	logger.Info("segment enriched",
		slog.Int("text_len", len(req.Text)),
		slog.Int("matches", len(matched)))

	c.JSON(http.StatusOK, resp)
}

// HandleHealth handles GET /v1/enrich/health.
//
// Description:
//
//	Always answers 200 so load balancers keep routing during warmup; the
//	body distinguishes warming_up, healthy, and degraded. Once warmed the
//	response carries the loaded pool sizes and model names.
//
// Response:
//
//	200 OK: HealthResponse
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleHealth(c *gin.Context) {
	getOrCreateRequestID(c)

	rt := h.svc.Runtime()
	if rt == nil {
		resp := HealthResponse{Status: "warming_up", Warmed: IsWarmupComplete()}
		if err := h.svc.WarmupError(); err != nil {
			resp.Status = "degraded"
			resp.Error = err.Error()
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	stats := rt.Stats()
	c.JSON(http.StatusOK, HealthResponse{
		Status: "healthy",
		Warmed: IsWarmupComplete(),
		Stats:  &stats,
	})
}
