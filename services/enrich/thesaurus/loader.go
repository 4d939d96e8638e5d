// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package thesaurus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultSourceURL is the public N-Triples export of the NIOD WW2 thesaurus.
const DefaultSourceURL = "https://data.spinque.com/ld/data/oorlogsbronnen/wo2_thesaurus/data/export.nt"

// SKOS and NIOD vocabulary IRIs the loader reads.
const (
	rdfType          = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	skosConcept      = "http://www.w3.org/2004/02/skos/core#Concept"
	skosPrefLabel    = "http://www.w3.org/2004/02/skos/core#prefLabel"
	skosAltLabel     = "http://www.w3.org/2004/02/skos/core#altLabel"
	skosScopeNote    = "http://www.w3.org/2004/02/skos/core#scopeNote"
	skosNarrower     = "http://www.w3.org/2004/02/skos/core#narrower"
	skosInScheme     = "http://www.w3.org/2004/02/skos/core#inScheme"
	skosTopConceptOf = "http://www.w3.org/2004/02/skos/core#topConceptOf"

	// oorlogDichtbijConcept marks concepts curated for the Oorlog Dichtbij
	// collection; concepts explicitly flagged "false" are editorial leftovers
	// unless they anchor a hierarchy as top concepts.
	predOorlogDichtbij = "https://data.niod.nl/thesaurus_wo2/ImagesWW2/oorlogDichtbijConcept"

	// Scheme memberships that drive filtering and categories.
	schemeTechnicalLists = "https://data.niod.nl/WO2_Thesaurus/11183"
	schemeCamps          = "https://data.niod.nl/WO2_Thesaurus/kampen/3650"
	schemeLocations      = "https://data.niod.nl/WO2_Thesaurus/6564"
)

// Loader fetches the thesaurus export, extracts SKOS concepts, and caches
// the result. One Loader per process; the snapshot it returns is shared.
//
// Thread Safety: Safe for concurrent use; Load calls are independent.
type Loader struct {
	httpClient *http.Client
	url        string
	store      *Store
}

// NewLoader builds a loader for the given source URL. An empty url selects
// DefaultSourceURL. A nil store disables caching; every Load then fetches.
func NewLoader(store *Store, url string) *Loader {
	if url == "" {
		url = DefaultSourceURL
	}
	return &Loader{
		// The export is tens of megabytes from a public endpoint; give the
		// download room before declaring it dead.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		url:        url,
		store:      store,
	}
}

// Load returns the concept snapshot, from cache when possible.
//
// Description:
//
//	Cache reads that fail fall through to a fresh fetch; cache writes that
//	fail are logged and ignored. Both degrade to working without
//	persistence rather than failing the run.
//
// Inputs:
//   - ctx: Cancels the download.
//   - forceReload: Skip the cache and fetch from the source.
//
// Outputs:
//   - *Snapshot: Immutable concept set in export order.
//   - error: Non-nil when the source cannot be fetched or parsed.
func (l *Loader) Load(ctx context.Context, forceReload bool) (*Snapshot, error) {
	if !forceReload && l.store != nil {
		concepts, err := l.store.LoadConcepts(ctx, l.url)
		if err != nil {
			slog.Warn("Thesaurus cache read failed, reloading from source", "error", err)
		} else if concepts != nil {
			slog.Info("Thesaurus loaded from cache", "concepts", len(concepts))
			return NewSnapshot(concepts), nil
		}
	}

	concepts, err := l.fetchConcepts(ctx)
	if err != nil {
		return nil, err
	}

	if l.store != nil {
		if err := l.store.SaveConcepts(ctx, l.url, concepts); err != nil {
			slog.Warn("Thesaurus cache write failed", "error", err)
		}
	}
	return NewSnapshot(concepts), nil
}

func (l *Loader) fetchConcepts(ctx context.Context) ([]*Concept, error) {
	slog.Info("Downloading thesaurus", "url", l.url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("thesaurus: build request: %w", err)
	}
	req.Header.Set("Accept", "application/n-triples")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("thesaurus: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("thesaurus: source returned status %d", resp.StatusCode)
	}

	concepts, skippedFlagged, skippedUnnamed, err := buildConcepts(resp.Body)
	if err != nil {
		return nil, err
	}

	slog.Info("Thesaurus loaded from source",
		"concepts", len(concepts),
		"skipped_flagged", skippedFlagged,
		"skipped_unnamed", skippedUnnamed,
	)
	return concepts, nil
}

// conceptFacts accumulates the triples of one subject before filtering.
type conceptFacts struct {
	name          string
	altLabels     []string
	scopeNote     string
	inSchemes     []string
	topConceptOf  []string
	narrower      []string
	dichtbijFalse bool
}

// buildConcepts scans triples and assembles the filtered concept list.
//
// Description:
//
//	Subjects appear in the order their skos:Concept type declaration occurs
//	in the export; downstream match resolution depends on pool order, and
//	this makes it reproducible run to run. Concepts flagged
//	oorlogDichtbijConcept=false are skipped unless they are top concepts;
//	the technical-lists scheme is skipped entirely; concepts with no Dutch
//	preferred label cannot be prompted or matched and are dropped.
func buildConcepts(r io.Reader) (concepts []*Concept, skippedFlagged, skippedUnnamed int, err error) {
	facts := make(map[string]*conceptFacts)
	var order []string

	factsFor := func(subject string) *conceptFacts {
		f, ok := facts[subject]
		if !ok {
			f = &conceptFacts{}
			facts[subject] = f
		}
		return f
	}

	typed := make(map[string]bool)
	err = scanTriples(r, func(t triple) error {
		switch t.Predicate {
		case rdfType:
			if t.Object == skosConcept && !typed[t.Subject] {
				typed[t.Subject] = true
				order = append(order, t.Subject)
			}
		case skosPrefLabel:
			f := factsFor(t.Subject)
			if f.name == "" && t.Lang == "nl" {
				f.name = t.Object
			}
		case skosAltLabel:
			f := factsFor(t.Subject)
			f.altLabels = append(f.altLabels, t.Object)
		case skosScopeNote:
			f := factsFor(t.Subject)
			if f.scopeNote == "" {
				f.scopeNote = t.Object
			}
		case skosInScheme:
			f := factsFor(t.Subject)
			f.inSchemes = append(f.inSchemes, t.Object)
		case skosTopConceptOf:
			f := factsFor(t.Subject)
			f.topConceptOf = append(f.topConceptOf, t.Object)
		case skosNarrower:
			f := factsFor(t.Subject)
			f.narrower = append(f.narrower, t.Object)
		case predOorlogDichtbij:
			f := factsFor(t.Subject)
			if strings.ToLower(strings.TrimSpace(t.Object)) == "false" {
				f.dichtbijFalse = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, 0, err
	}

	for _, uri := range order {
		f := facts[uri]
		if f == nil {
			f = &conceptFacts{}
		}

		if f.dichtbijFalse && len(f.topConceptOf) == 0 {
			skippedFlagged++
			continue
		}
		if contains(f.inSchemes, schemeTechnicalLists) {
			skippedFlagged++
			continue
		}
		if f.name == "" {
			skippedUnnamed++
			continue
		}

		category := CategoryOther
		switch {
		case contains(f.inSchemes, schemeCamps):
			category = CategoryCamp
		case contains(f.inSchemes, schemeLocations):
			category = CategoryLocation
		}

		concepts = append(concepts, &Concept{
			URI:            uri,
			Name:           f.name,
			Category:       category,
			AlternateNames: f.altLabels,
			Description:    f.scopeNote,
			TopConceptOf:   f.topConceptOf,
			Narrower:       f.narrower,
		})
	}
	return concepts, skippedFlagged, skippedUnnamed, nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
