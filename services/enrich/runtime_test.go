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
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/TesseraAI/tessera/services/enrich/config"
	"github.com/TesseraAI/tessera/services/enrich/embeddings"
	"github.com/TesseraAI/tessera/services/enrich/matching"
	"github.com/TesseraAI/tessera/services/enrich/segments"
	"github.com/TesseraAI/tessera/services/enrich/thesaurus"
)

type scriptedStep struct {
	reply string
	err   error
}

// scriptedOracle returns canned replies in call order and records every
// prompt it saw.
type scriptedOracle struct {
	t       *testing.T
	mu      sync.Mutex
	script  []scriptedStep
	prompts []string
}

func (s *scriptedOracle) Classify(_ context.Context, _, prompt string) (string, error) {
	s.t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	call := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	if call >= len(s.script) {
		s.t.Fatalf("unexpected oracle call %d:\n%s", call, prompt)
	}
	step := s.script[call]
	return step.reply, step.err
}

// fakeEmbedder serves scripted vectors keyed by input text.
type fakeEmbedder struct {
	model string
	vecs  map[string][]float32
}

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		v, ok := f.vecs[in]
		if !ok {
			return nil, fmt.Errorf("no scripted vector for %q", in)
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string { return f.model }

// testSnapshot builds a small thesaurus: one descriptive top concept with
// one narrower descriptive leaf, one free-standing descriptive concept, and
// one camp for the exact matcher.
func testSnapshot() *thesaurus.Snapshot {
	return thesaurus.NewSnapshot([]*thesaurus.Concept{
		{
			URI:          "uri:oorlog",
			Name:         "Oorlog en samenleving",
			Category:     thesaurus.CategoryOther,
			Description:  "Overkoepelend thema",
			TopConceptOf: []string{"uri:scheme"},
			Narrower:     []string{"uri:arbeid"},
		},
		{
			URI:         "uri:arbeid",
			Name:        "Arbeidsinzet",
			Category:    thesaurus.CategoryOther,
			Description: "Verplichte arbeid in Duitsland",
		},
		{
			URI:         "uri:onderduik",
			Name:        "Onderduik",
			Category:    thesaurus.CategoryOther,
			Description: "Verborgen leven tijdens de bezetting",
		},
		{
			URI:      "uri:westerbork",
			Name:     "Westerbork",
			Category: thesaurus.CategoryCamp,
		},
	})
}

const testSegmentText = "Hij werd via Westerbork voor de Arbeidsinzet naar Duitsland gestuurd."

// testVectors keys scripted vectors by the exact embedding inputs: concept
// embedding texts for the pool, the raw segment text for queries.
func testVectors() map[string][]float32 {
	return map[string][]float32{
		"Oorlog en samenleving | Overkoepelend thema":      {0, 1},
		"Arbeidsinzet | Verplichte arbeid in Duitsland":    {1, 0},
		"Onderduik | Verborgen leven tijdens de bezetting": {0.2, 1},
		testSegmentText: {1, 0},
	}
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Oracle.Model = "gpt-4o-mini"
	cfg.Embedding.TopK = 1
	cfg.Pipeline.TokenLimit = 100000
	return cfg
}

func newTestRuntime(t *testing.T, o *scriptedOracle) *Runtime {
	t.Helper()
	snap := testSnapshot()
	f := &fakeEmbedder{model: "test-embed", vecs: testVectors()}
	idx, err := embeddings.NewBuilder(f, nil, embeddings.BuilderConfig{ChunkSize: 100}).
		Build(context.Background(), snap.Descriptive(), false)
	if err != nil {
		t.Fatalf("building test index: %v", err)
	}
	rt, err := NewRuntime(testConfig(), RuntimeParts{Oracle: o, Snapshot: snap, Index: idx})
	if err != nil {
		t.Fatalf("building test runtime: %v", err)
	}
	return rt
}

func TestRuntime_MatchSegmentText_FullFlow(t *testing.T) {
	o := &scriptedOracle{t: t, script: []scriptedStep{
		// Validation over [Arbeidsinzet (embedding), Westerbork (exact)].
		{reply: `[{"concept": "Westerbork", "score": 0.9}]`},
		// Top-down level 1: the root routes but is never returned.
		{reply: `[{"concept": "Oorlog en samenleving", "score": 0.8}]`},
		// Top-down level 2: the narrower leaf matches.
		{reply: `[{"concept": "Arbeidsinzet", "score": 0.7}]`},
	}}
	rt := newTestRuntime(t, o)

	matches, err := rt.MatchSegmentText(context.Background(), testSegmentText)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(matches), matches)
	}

	// Hierarchical matches come first, with the walk's score.
	if matches[0].Concept.URI != "uri:arbeid" || matches[0].Source != matching.SourceTopDown {
		t.Errorf("expected Arbeidsinzet via top-down first, got %+v", matches[0])
	}
	if matches[0].Score == nil || *matches[0].Score != 0.7 {
		t.Errorf("expected top-down score 0.7, got %v", matches[0].Score)
	}

	// The validated exact match follows, with the oracle's confidence and
	// its original source.
	if matches[1].Concept.URI != "uri:westerbork" || matches[1].Source != matching.SourceExact {
		t.Errorf("expected validated Westerbork second, got %+v", matches[1])
	}
	if matches[1].Score == nil || *matches[1].Score != 0.9 {
		t.Errorf("expected validation score 0.9, got %v", matches[1].Score)
	}

	// The root must never appear in the result.
	for _, m := range matches {
		if m.Concept.URI == "uri:oorlog" {
			t.Errorf("top concept leaked into results: %+v", m)
		}
	}

	if len(o.prompts) != 3 {
		t.Fatalf("expected 3 oracle calls, got %d", len(o.prompts))
	}
	if !strings.Contains(o.prompts[0], "Westerbork") {
		t.Errorf("validation prompt should list the exact candidate:\n%s", o.prompts[0])
	}
}

func TestRuntime_MatchSegmentText_DeduplicatesAcrossStrategies(t *testing.T) {
	o := &scriptedOracle{t: t, script: []scriptedStep{
		// Validation keeps both candidates, including Arbeidsinzet.
		{reply: `[{"concept": "Arbeidsinzet", "score": 0.95}, {"concept": "Westerbork", "score": 0.9}]`},
		{reply: `[{"concept": "Oorlog en samenleving", "score": 0.8}]`},
		// The walk proposes Arbeidsinzet too.
		{reply: `[{"concept": "Arbeidsinzet", "score": 0.7}]`},
	}}
	rt := newTestRuntime(t, o)

	matches, err := rt.MatchSegmentText(context.Background(), testSegmentText)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 deduplicated matches, got %d: %+v", len(matches), matches)
	}
	// On a URI collision the hierarchical entry wins.
	if matches[0].Concept.URI != "uri:arbeid" || matches[0].Source != matching.SourceTopDown {
		t.Errorf("expected the hierarchical Arbeidsinzet to win the collision, got %+v", matches[0])
	}
	if *matches[0].Score != 0.7 {
		t.Errorf("expected the walk's score to win, got %v", *matches[0].Score)
	}
}

func TestRuntime_MatchSegmentText_ValidationFailureDegrades(t *testing.T) {
	o := &scriptedOracle{t: t, script: []scriptedStep{
		{err: errors.New("connection refused")},
		{reply: `[{"concept": "Oorlog en samenleving", "score": 0.8}]`},
		{reply: `[{"concept": "Arbeidsinzet", "score": 0.7}]`},
	}}
	rt := newTestRuntime(t, o)

	matches, err := rt.MatchSegmentText(context.Background(), testSegmentText)
	if err != nil {
		t.Fatalf("validation failure must not fail the flow, got %v", err)
	}
	if len(matches) != 1 || matches[0].Concept.URI != "uri:arbeid" {
		t.Fatalf("expected hierarchical matches only, got %+v", matches)
	}
}

func TestRuntime_MatchSegmentText_TopDownFailureFails(t *testing.T) {
	o := &scriptedOracle{t: t, script: []scriptedStep{
		{reply: `[]`},
		{err: errors.New("connection refused")},
	}}
	rt := newTestRuntime(t, o)

	_, err := rt.MatchSegmentText(context.Background(), testSegmentText)
	if err == nil {
		t.Fatal("expected the top-down failure to propagate")
	}
}

func TestRuntime_MatchSegmentText_EmbeddingFailureFails(t *testing.T) {
	o := &scriptedOracle{t: t}
	rt := newTestRuntime(t, o)

	// No scripted vector exists for this text, so the query embed fails.
	_, err := rt.MatchSegmentText(context.Background(), "tekst zonder vector")
	if err == nil {
		t.Fatal("expected the embedding failure to propagate")
	}
	if len(o.prompts) != 0 {
		t.Errorf("no oracle call should happen after an embedding failure, got %d", len(o.prompts))
	}
}

func TestRuntime_EnrichSegment_WrapsMatches(t *testing.T) {
	o := &scriptedOracle{t: t, script: []scriptedStep{
		{reply: `[{"concept": "Westerbork"}]`},
		{reply: `[]`},
	}}
	rt := newTestRuntime(t, o)

	seg := segments.Segment{Start: 12.5, End: 80, Text: testSegmentText}
	enriched, err := rt.EnrichSegment(context.Background(), seg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if enriched.Segment.Start != 12.5 || enriched.Segment.End != 80 {
		t.Errorf("segment boundaries must survive enrichment: %+v", enriched.Segment)
	}
	if len(enriched.Matches) != 1 || enriched.Matches[0].Concept.URI != "uri:westerbork" {
		t.Fatalf("expected the validated exact match, got %+v", enriched.Matches)
	}
}

func TestRuntime_Stats(t *testing.T) {
	rt := newTestRuntime(t, &scriptedOracle{t: t})

	stats := rt.Stats()
	if stats.Concepts != 4 {
		t.Errorf("expected 4 concepts, got %d", stats.Concepts)
	}
	if stats.DescriptiveConcepts != 3 {
		t.Errorf("expected 3 descriptive concepts, got %d", stats.DescriptiveConcepts)
	}
	if stats.DescriptiveTops != 1 {
		t.Errorf("expected 1 descriptive top, got %d", stats.DescriptiveTops)
	}
	if stats.CampsAndLocations != 1 {
		t.Errorf("expected 1 camp, got %d", stats.CampsAndLocations)
	}
	if stats.IndexVectors != 3 {
		t.Errorf("expected 3 index vectors, got %d", stats.IndexVectors)
	}
	if stats.EmbeddingModel != "test-embed" {
		t.Errorf("expected the embedder's model, got %q", stats.EmbeddingModel)
	}
}

func TestNewRuntime_RequiredParts(t *testing.T) {
	snap := testSnapshot()
	f := &fakeEmbedder{model: "test-embed", vecs: testVectors()}
	idx, err := embeddings.NewBuilder(f, nil, embeddings.BuilderConfig{ChunkSize: 100}).
		Build(context.Background(), snap.Descriptive(), false)
	if err != nil {
		t.Fatalf("building test index: %v", err)
	}
	o := &scriptedOracle{t: t}

	cases := []struct {
		name  string
		cfg   *config.Config
		parts RuntimeParts
	}{
		{name: "nil config", cfg: nil, parts: RuntimeParts{Oracle: o, Snapshot: snap, Index: idx}},
		{name: "nil oracle", cfg: testConfig(), parts: RuntimeParts{Snapshot: snap, Index: idx}},
		{name: "nil snapshot", cfg: testConfig(), parts: RuntimeParts{Oracle: o, Index: idx}},
		{name: "nil index", cfg: testConfig(), parts: RuntimeParts{Oracle: o, Snapshot: snap}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewRuntime(tc.cfg, tc.parts); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
