// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TesseraAI/tessera/services/enrich/thesaurus"
)

// fakeEmbedder serves scripted vectors keyed by input text and records
// every call.
type fakeEmbedder struct {
	mu    sync.Mutex
	model string
	vecs  map[string][]float32
	calls [][]string
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, inputs)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
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

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func indexPool() []*thesaurus.Concept {
	return []*thesaurus.Concept{
		{URI: "https://data.niod.nl/c/1", Name: "Westerbork"},
		{URI: "https://data.niod.nl/c/2", Name: "Razzia"},
		{URI: "https://data.niod.nl/c/3", Name: "Bevrijding"},
	}
}

func indexVectors() map[string][]float32 {
	return map[string][]float32{
		"Westerbork": {3, 4},
		"Razzia":     {0, 2},
		"Bevrijding": {1, 0},
		"oorlog":     {1, 0},
	}
}

// oneShot builds without persistence and without pacing.
func oneShot(t *testing.T, f *fakeEmbedder, pool []*thesaurus.Concept) *Index {
	t.Helper()
	idx, err := NewBuilder(f, nil, BuilderConfig{ChunkSize: 100}).Build(context.Background(), pool, false)
	require.NoError(t, err)
	return idx
}

func TestBuilder_Build_EmbedsAndRanks(t *testing.T) {
	f := &fakeEmbedder{model: "test-embed", vecs: indexVectors()}
	idx := oneShot(t, f, indexPool())

	require.Equal(t, 3, idx.Len())
	require.Equal(t, 1, f.callCount(), "one chunk should mean one embed call")
	require.Len(t, f.calls[0], 3)

	matches, err := idx.Search(context.Background(), "oorlog", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// Query (1,0): Bevrijding is parallel, Westerbork at cosine 0.6 even
	// though its raw vector is longer, which is what normalization buys.
	require.Equal(t, "Bevrijding", matches[0].Concept.Name)
	require.InDelta(t, 1.0, *matches[0].Score, 1e-6)
	require.Equal(t, "Westerbork", matches[1].Concept.Name)
	require.InDelta(t, 0.6, *matches[1].Score, 1e-6)
}

func TestBuilder_Build_ChunksThePool(t *testing.T) {
	f := &fakeEmbedder{model: "test-embed", vecs: map[string][]float32{
		"a": {1, 0}, "b": {1, 0}, "c": {1, 0}, "d": {1, 0}, "e": {1, 0},
	}}
	pool := []*thesaurus.Concept{
		{URI: "u/a", Name: "a"}, {URI: "u/b", Name: "b"}, {URI: "u/c", Name: "c"},
		{URI: "u/d", Name: "d"}, {URI: "u/e", Name: "e"},
	}

	idx, err := NewBuilder(f, nil, BuilderConfig{Concurrency: 2, ChunkSize: 2}).
		Build(context.Background(), pool, false)
	require.NoError(t, err)
	require.Equal(t, 5, idx.Len())
	require.Equal(t, 3, f.callCount())

	seen := 0
	for _, call := range f.calls {
		require.LessOrEqual(t, len(call), 2)
		seen += len(call)
	}
	require.Equal(t, 5, seen, "every concept must be embedded exactly once")
}

func TestBuilder_Build_RestoresFromCache(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db, 0, nil)
	f := &fakeEmbedder{model: "test-embed", vecs: indexVectors()}
	b := NewBuilder(f, store, BuilderConfig{ChunkSize: 100})

	_, err := b.Build(context.Background(), indexPool(), false)
	require.NoError(t, err)
	require.Equal(t, 1, f.callCount())

	idx, err := b.Build(context.Background(), indexPool(), false)
	require.NoError(t, err)
	require.Equal(t, 1, f.callCount(), "second build must restore without embedding")

	matches, err := idx.Search(context.Background(), "oorlog", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "Bevrijding", matches[0].Concept.Name)
}

func TestBuilder_Build_ForceReloadRecomputes(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db, 0, nil)
	f := &fakeEmbedder{model: "test-embed", vecs: indexVectors()}
	b := NewBuilder(f, store, BuilderConfig{ChunkSize: 100})

	_, err := b.Build(context.Background(), indexPool(), false)
	require.NoError(t, err)

	_, err = b.Build(context.Background(), indexPool(), true)
	require.NoError(t, err)
	require.Equal(t, 2, f.callCount())
}

func TestBuilder_Build_ModelChangeMissesCache(t *testing.T) {
	db := openTestDB(t)
	store := NewStore(db, 0, nil)

	f1 := &fakeEmbedder{model: "model-one", vecs: indexVectors()}
	_, err := NewBuilder(f1, store, BuilderConfig{ChunkSize: 100}).
		Build(context.Background(), indexPool(), false)
	require.NoError(t, err)

	f2 := &fakeEmbedder{model: "model-two", vecs: indexVectors()}
	_, err = NewBuilder(f2, store, BuilderConfig{ChunkSize: 100}).
		Build(context.Background(), indexPool(), false)
	require.NoError(t, err)
	require.Equal(t, 1, f2.callCount(), "a different model must not reuse the cached matrix")
}

func TestBuilder_Build_EmbedErrorFails(t *testing.T) {
	boom := errors.New("quota")
	f := &fakeEmbedder{model: "test-embed", err: boom}

	_, err := NewBuilder(f, nil, BuilderConfig{ChunkSize: 100}).
		Build(context.Background(), indexPool(), false)
	require.ErrorIs(t, err, boom)
}

func TestBuilder_Build_EmptyPool(t *testing.T) {
	f := &fakeEmbedder{model: "test-embed"}
	idx := oneShot(t, f, nil)

	require.Equal(t, 0, idx.Len())
	require.Equal(t, 0, f.callCount())

	matches, err := idx.Search(context.Background(), "oorlog", 5)
	require.NoError(t, err)
	require.Empty(t, matches)
	require.Equal(t, 0, f.callCount(), "an empty index must not embed queries")
}

func TestIndex_Search_NonPositiveK(t *testing.T) {
	f := &fakeEmbedder{model: "test-embed", vecs: indexVectors()}
	idx := oneShot(t, f, indexPool())
	warmCalls := f.callCount()

	matches, err := idx.Search(context.Background(), "oorlog", 0)
	require.NoError(t, err)
	require.Empty(t, matches)
	require.Equal(t, warmCalls, f.callCount())
}

func TestIndex_Search_EmbedErrorPropagates(t *testing.T) {
	f := &fakeEmbedder{model: "test-embed", vecs: indexVectors()}
	idx := oneShot(t, f, indexPool())

	boom := errors.New("quota")
	f.err = boom
	_, err := idx.Search(context.Background(), "oorlog", 3)
	require.ErrorIs(t, err, boom)
}

func TestCorpusHash(t *testing.T) {
	base := corpusHash("model-one", []string{"a", "b"})

	require.Equal(t, base, corpusHash("model-one", []string{"a", "b"}))
	require.NotEqual(t, base, corpusHash("model-two", []string{"a", "b"}))
	require.NotEqual(t, base, corpusHash("model-one", []string{"a", "c"}))
	require.NotEqual(t, base, corpusHash("model-one", []string{"b", "a"}))
	require.NotEqual(t, base, corpusHash("model-one", []string{"a"}))
}
