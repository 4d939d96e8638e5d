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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

// setupTestRouter wires the enrichment routes onto a bare test router.
func setupTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	v1 := router.Group("/v1")
	RegisterRoutes(v1, NewHandlers(svc))
	return router
}

func warmedService(t *testing.T, o *scriptedOracle) *Service {
	t.Helper()
	svc := NewService()
	svc.SetRuntime(newTestRuntime(t, o))
	return svc
}

func TestHandleEnrichSegment_Success(t *testing.T) {
	o := &scriptedOracle{t: t, script: []scriptedStep{
		{reply: `[{"concept": "Westerbork", "score": 0.9}]`},
		{reply: `[{"concept": "Oorlog en samenleving", "score": 0.8}]`},
		{reply: `[{"concept": "Arbeidsinzet", "score": 0.7}]`},
	}}
	router := setupTestRouter(warmedService(t, o))

	body := `{"text": "` + testSegmentText + `", "start": 12.5, "end": 80}`
	req, _ := http.NewRequest("POST", "/v1/enrich/segment", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp EnrichSegmentResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Start != 12.5 || resp.End != 80 {
		t.Errorf("expected echoed boundaries, got start=%v end=%v", resp.Start, resp.End)
	}
	if len(resp.MatchedConcepts) != 2 {
		t.Fatalf("expected 2 matched concepts, got %d: %+v", len(resp.MatchedConcepts), resp.MatchedConcepts)
	}
	if resp.MatchedConcepts[0].Name != "Arbeidsinzet" || resp.MatchedConcepts[0].Source != "top-down-hierarchical" {
		t.Errorf("unexpected first match: %+v", resp.MatchedConcepts[0])
	}
	if resp.MatchedConcepts[1].URI != "uri:westerbork" {
		t.Errorf("unexpected second match: %+v", resp.MatchedConcepts[1])
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID header")
	}
}

func TestHandleEnrichSegment_EchoesRequestID(t *testing.T) {
	o := &scriptedOracle{t: t, script: []scriptedStep{
		{reply: `[]`},
		{reply: `[]`},
	}}
	router := setupTestRouter(warmedService(t, o))

	req, _ := http.NewRequest("POST", "/v1/enrich/segment",
		strings.NewReader(`{"text": "`+testSegmentText+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("expected the inbound request ID echoed, got %q", got)
	}
}

func TestHandleEnrichSegment_MissingText(t *testing.T) {
	router := setupTestRouter(warmedService(t, &scriptedOracle{t: t}))

	for _, body := range []string{`{}`, `{"text": "   "}`} {
		req, _ := http.NewRequest("POST", "/v1/enrich/segment", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected status %d, got %d", body, http.StatusBadRequest, w.Code)
		}
		var resp ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if resp.Code != "MISSING_PARAMETER" {
			t.Errorf("body %s: expected MISSING_PARAMETER, got %q", body, resp.Code)
		}
	}
}

func TestHandleEnrichSegment_MalformedBody(t *testing.T) {
	router := setupTestRouter(warmedService(t, &scriptedOracle{t: t}))

	req, _ := http.NewRequest("POST", "/v1/enrich/segment", strings.NewReader(`{"text": 7`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != "INVALID_REQUEST" {
		t.Errorf("expected INVALID_REQUEST, got %q", resp.Code)
	}
}

func TestHandleEnrichSegment_NotWarmed(t *testing.T) {
	router := setupTestRouter(NewService())

	req, _ := http.NewRequest("POST", "/v1/enrich/segment",
		strings.NewReader(`{"text": "iets"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "30" {
		t.Errorf("expected Retry-After 30, got %q", got)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != "SERVICE_WARMING_UP" {
		t.Errorf("expected SERVICE_WARMING_UP, got %q", resp.Code)
	}
}

func TestHandleEnrichSegment_DegradedAfterFailedWarmup(t *testing.T) {
	svc := NewService()
	svc.SetWarmupError(errors.New("thesaurus download failed"))
	router := setupTestRouter(svc)

	req, _ := http.NewRequest("POST", "/v1/enrich/segment",
		strings.NewReader(`{"text": "iets"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != "SERVICE_DEGRADED" {
		t.Errorf("expected SERVICE_DEGRADED, got %q", resp.Code)
	}
	if !strings.Contains(resp.Error, "thesaurus download failed") {
		t.Errorf("expected the warmup error in the body, got %q", resp.Error)
	}
}

func TestHandleEnrichSegment_OracleFailure(t *testing.T) {
	o := &scriptedOracle{t: t, script: []scriptedStep{
		{reply: `[]`},
		{err: errors.New("connection refused")},
	}}
	router := setupTestRouter(warmedService(t, o))

	req, _ := http.NewRequest("POST", "/v1/enrich/segment",
		strings.NewReader(`{"text": "`+testSegmentText+`"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected status %d, got %d: %s", http.StatusBadGateway, w.Code, w.Body.String())
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != "ENRICHMENT_FAILED" {
		t.Errorf("expected ENRICHMENT_FAILED, got %q", resp.Code)
	}
}

func TestHandleHealth_WarmingUp(t *testing.T) {
	resetWarmupForTest()
	router := setupTestRouter(NewService())

	req, _ := http.NewRequest("GET", "/v1/enrich/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("health must stay reachable during warmup, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "warming_up" || resp.Warmed || resp.Stats != nil {
		t.Errorf("unexpected warming-up response: %+v", resp)
	}
}

func TestHandleHealth_Healthy(t *testing.T) {
	resetWarmupForTest()
	MarkWarmupComplete()
	defer resetWarmupForTest()
	router := setupTestRouter(warmedService(t, &scriptedOracle{t: t}))

	req, _ := http.NewRequest("GET", "/v1/enrich/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "healthy" || !resp.Warmed {
		t.Errorf("unexpected health response: %+v", resp)
	}
	if resp.Stats == nil || resp.Stats.Concepts != 4 || resp.Stats.IndexVectors != 3 {
		t.Errorf("unexpected stats: %+v", resp.Stats)
	}
}

func TestHandleHealth_Degraded(t *testing.T) {
	resetWarmupForTest()
	svc := NewService()
	svc.SetWarmupError(errors.New("thesaurus download failed"))
	router := setupTestRouter(svc)

	req, _ := http.NewRequest("GET", "/v1/enrich/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "degraded" || resp.Error == "" {
		t.Errorf("unexpected degraded response: %+v", resp)
	}
}
