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
	"testing"

	"github.com/TesseraAI/tessera/services/enrich/thesaurus"
)

func TestMatchByEmbedding_RanksBySimilarity(t *testing.T) {
	pool := []*thesaurus.Concept{
		concept("uri:a", "Arbeidsinzet"),
		concept("uri:b", "Bevrijding"),
		concept("uri:c", "Collaboratie"),
	}
	vecs := [][]float32{
		{0, 1},
		{1, 0},
		{0.6, 0.8},
	}

	matches, err := MatchByEmbedding([]float32{1, 0}, vecs, pool, 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Concept.URI != "uri:b" || matches[1].Concept.URI != "uri:c" {
		t.Errorf("expected b then c, got %v", matchedURIs(matches))
	}
	if matches[0].Source != SourceEmbedding {
		t.Errorf("expected source %q, got %q", SourceEmbedding, matches[0].Source)
	}
	if matches[0].Score == nil || *matches[0].Score != 1.0 {
		t.Errorf("expected exact cosine 1.0 for parallel vectors, got %+v", matches[0].Score)
	}
}

func TestMatchByEmbedding_TiesKeepPoolOrder(t *testing.T) {
	pool := []*thesaurus.Concept{
		concept("uri:a", "Arbeidsinzet"),
		concept("uri:b", "Bevrijding"),
		concept("uri:c", "Collaboratie"),
	}
	// a and b point the same way at different magnitudes; identical cosine.
	vecs := [][]float32{
		{2, 0},
		{1, 0},
		{0, 1},
	}

	matches, err := MatchByEmbedding([]float32{1, 0}, vecs, pool, 3)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	got := matchedURIs(matches)
	if got[0] != "uri:a" || got[1] != "uri:b" || got[2] != "uri:c" {
		t.Errorf("tied scores must keep pool order, got %v", got)
	}
}

func TestMatchByEmbedding_KLargerThanPool(t *testing.T) {
	pool := []*thesaurus.Concept{concept("uri:a", "Arbeidsinzet")}
	matches, err := MatchByEmbedding([]float32{1, 0}, [][]float32{{1, 0}}, pool, 10)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected the whole pool, got %d matches", len(matches))
	}
}

func TestMatchByEmbedding_NonPositiveK(t *testing.T) {
	pool := []*thesaurus.Concept{concept("uri:a", "Arbeidsinzet")}
	for _, k := range []int{0, -3} {
		matches, err := MatchByEmbedding([]float32{1, 0}, [][]float32{{1, 0}}, pool, k)
		if err != nil || matches != nil {
			t.Errorf("k=%d: expected nil, nil; got %v, %v", k, matches, err)
		}
	}
}

func TestMatchByEmbedding_ZeroVectorScoresZero(t *testing.T) {
	pool := []*thesaurus.Concept{
		concept("uri:a", "Arbeidsinzet"),
		concept("uri:b", "Bevrijding"),
	}
	vecs := [][]float32{
		{0, 0},
		{1, 0},
	}

	matches, err := MatchByEmbedding([]float32{1, 0}, vecs, pool, 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if matches[0].Concept.URI != "uri:b" {
		t.Errorf("zero vector must rank below a real match, got %v", matchedURIs(matches))
	}
	if *matches[1].Score != 0 {
		t.Errorf("zero vector similarity should be 0, got %v", *matches[1].Score)
	}
}

func TestMatchByEmbedding_LengthMismatch(t *testing.T) {
	pool := []*thesaurus.Concept{
		concept("uri:a", "Arbeidsinzet"),
		concept("uri:b", "Bevrijding"),
	}
	if _, err := MatchByEmbedding([]float32{1, 0}, [][]float32{{1, 0}}, pool, 2); err == nil {
		t.Fatal("expected error when vectors and pool lengths differ")
	}
}

func TestMatchByEmbedding_DimensionMismatch(t *testing.T) {
	pool := []*thesaurus.Concept{concept("uri:a", "Arbeidsinzet")}
	if _, err := MatchByEmbedding([]float32{1, 0}, [][]float32{{1, 0, 0}}, pool, 1); err == nil {
		t.Fatal("expected error for mismatched vector dimensions")
	}
}
