// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package thesaurus models the WW2 controlled vocabulary: SKOS concepts with
// a narrower-term hierarchy, loaded from the NIOD N-Triples export and cached
// locally. Concepts are loaded once per run and treated as read-only by the
// matching engine.
package thesaurus

import "strings"

// Concept categories. Derived from the SKOS scheme a concept belongs to.
const (
	CategoryCamp     = "camp"
	CategoryLocation = "location"
	CategoryOther    = "other"
)

// Concept is a single node in the thesaurus hierarchy.
//
// URI is the stable identity and the sole deduplication key used anywhere in
// the engine. Narrower holds URIs, not object references; entries may point
// at concepts that were filtered out at load time and must be resolved
// against an actual candidate pool, never dereferenced blindly.
//
// Thread Safety: Concept values are never mutated after loading.
type Concept struct {
	URI            string   `json:"uri"`
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	AlternateNames []string `json:"alternate_names,omitempty"`
	Description    string   `json:"description,omitempty"`
	TopConceptOf   []string `json:"top_concept_of,omitempty"`
	Narrower       []string `json:"narrower,omitempty"`
}

// IsTopConcept reports whether the concept is marked as an entry point of
// the hierarchy (skos:topConceptOf is non-empty).
func (c *Concept) IsTopConcept() bool {
	return len(c.TopConceptOf) > 0
}

// Label renders the concept for an oracle prompt: the preferred name, plus
// the description when one exists, joined by an en dash.
func (c *Concept) Label() string {
	if c.Description != "" {
		return c.Name + " – " + c.Description
	}
	return c.Name
}

// EmbeddingText renders the concept for the embedding provider: name,
// alternate names and description joined into one descriptive line.
func (c *Concept) EmbeddingText() string {
	parts := []string{c.Name}
	if len(c.AlternateNames) > 0 {
		parts = append(parts, strings.Join(c.AlternateNames, " / "))
	}
	if c.Description != "" {
		parts = append(parts, c.Description)
	}
	return strings.Join(parts, " | ")
}

// Snapshot is an immutable view over a loaded concept set with URI lookup.
//
// Thread Safety: Snapshot is read-only after construction and safe for
// concurrent use.
type Snapshot struct {
	concepts []*Concept
	byURI    map[string]*Concept
}

// NewSnapshot builds a snapshot over the given concepts. When two concepts
// share a URI the first one wins; later duplicates are dropped from lookup
// but kept in iteration order.
func NewSnapshot(concepts []*Concept) *Snapshot {
	byURI := make(map[string]*Concept, len(concepts))
	for _, c := range concepts {
		if _, ok := byURI[c.URI]; !ok {
			byURI[c.URI] = c
		}
	}
	return &Snapshot{concepts: concepts, byURI: byURI}
}

// All returns every concept in load order. Callers must not mutate the slice.
func (s *Snapshot) All() []*Concept { return s.concepts }

// Len returns the number of concepts in the snapshot.
func (s *Snapshot) Len() int { return len(s.concepts) }

// Get resolves a URI to its concept, or nil when absent.
func (s *Snapshot) Get(uri string) *Concept { return s.byURI[uri] }

// Descriptive returns the concepts eligible for embedding and top-down
// matching: category "other" with a non-empty description. Order follows
// load order.
func (s *Snapshot) Descriptive() []*Concept {
	var out []*Concept
	for _, c := range s.concepts {
		if c.Category == CategoryOther && c.Description != "" {
			out = append(out, c)
		}
	}
	return out
}

// DescriptiveTops returns the top concepts of category "other", the entry
// points for the hierarchical matcher.
func (s *Snapshot) DescriptiveTops() []*Concept {
	var out []*Concept
	for _, c := range s.concepts {
		if c.Category == CategoryOther && c.IsTopConcept() {
			out = append(out, c)
		}
	}
	return out
}

// CampsAndLocations returns the camp and location concepts, the pool used by
// the exact-occurrence matcher.
func (s *Snapshot) CampsAndLocations() []*Concept {
	var out []*Concept
	for _, c := range s.concepts {
		if c.Category == CategoryCamp || c.Category == CategoryLocation {
			out = append(out, c)
		}
	}
	return out
}
