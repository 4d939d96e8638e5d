// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// enrich_cache_dump inspects the enrichment service's local cache.
//
// The cache persists two kinds of entries in BadgerDB between runs: parsed
// thesaurus snapshots (keyed by a hash of the source URL) and concept
// embedding matrices (keyed by a corpus hash covering concept texts and the
// embedding model). This tool opens the cache read-only and prints a
// human-readable summary: keys, TTL remaining, sizes, concept category
// counts and vector dimensions.
//
// Usage:
//
//	enrich_cache_dump [--path /path/to/enrich_cache]
//
// If --path is not given, reads ENRICH_CACHE_DIR from the environment,
// falling back to ./enrich_cache (the configuration default).
//
// Exit codes:
//
//	0 — success (including "empty cache" which prints a message and exits 0)
//	1 — error opening or reading the database
package main

import (
	"bytes"
	"encoding/gob"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/TesseraAI/tessera/services/enrich/thesaurus"
)

// Key prefixes must match the store implementations exactly.
const (
	conceptsKeyPrefix = "thesaurus/concepts/v1/"
	vectorsKeyPrefix  = "embeddings/vectors/v1/"
)

func main() {
	pathFlag := flag.String("path", "", "Path to the enrichment BadgerDB directory (overrides ENRICH_CACHE_DIR env var)")
	flag.Parse()

	dbPath := *pathFlag
	if dbPath == "" {
		dbPath = os.Getenv("ENRICH_CACHE_DIR")
	}
	if dbPath == "" {
		dbPath = "enrich_cache"
	}

	fmt.Printf("Enrichment cache path: %s\n", dbPath)

	// Check existence before trying to open — gives a cleaner error message
	// than BadgerDB's "no such file or directory" buried in a long error.
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("Cache directory does not exist. No enrichment run has written to this cache yet.")
		fmt.Println("Run `tessera enrich` or start the enrich service to populate it.")
		os.Exit(0)
	}

	opts := dgbadger.DefaultOptions(dbPath).
		WithLogger(nil). // suppress BadgerDB internal logs
		WithReadOnly(true)

	db, err := dgbadger.Open(opts)
	if err != nil {
		fatalf("open BadgerDB at %s: %v", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	snapshots := collectSnapshots(db)
	matrices := collectMatrices(db)

	if len(snapshots) == 0 && len(matrices) == 0 {
		fmt.Println("\nNo cache entries found.")
		fmt.Println("The cache was opened before but neither a thesaurus snapshot nor an")
		fmt.Println("embedding matrix has been saved, or every entry has expired.")
		os.Exit(0)
	}

	printSnapshots(snapshots)
	printMatrices(matrices)

	fmt.Printf("\n%s\n", strings.Repeat("─", 80))
	fmt.Printf("Summary: %d thesaurus snapshot%s, %d embedding matri%s, cache path: %s\n",
		len(snapshots), plural(len(snapshots), "", "s"),
		len(matrices), plural(len(matrices), "x", "ces"),
		dbPath)
}

// =============================================================================
// Thesaurus snapshots
// =============================================================================

type snapshotEntry struct {
	key       string
	urlHash   string
	expiresAt time.Time
	hasExpiry bool
	rawSize   int
	concepts  []*thesaurus.Concept
	decodeErr error
}

func collectSnapshots(db *dgbadger.DB) []snapshotEntry {
	var entries []snapshotEntry

	err := db.View(func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(conceptsKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			var e snapshotEntry
			e.key = string(item.Key())
			e.urlHash = strings.TrimPrefix(e.key, conceptsKeyPrefix)
			if expiresAt := item.ExpiresAt(); expiresAt > 0 {
				e.hasExpiry = true
				e.expiresAt = time.Unix(int64(expiresAt), 0)
			}

			raw, err := item.ValueCopy(nil)
			if err != nil {
				e.decodeErr = fmt.Errorf("copy value: %w", err)
				entries = append(entries, e)
				continue
			}
			e.rawSize = len(raw)

			if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&e.concepts); err != nil {
				e.decodeErr = fmt.Errorf("gob decode: %w", err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		fatalf("read BadgerDB: %v", err)
	}
	return entries
}

func printSnapshots(entries []snapshotEntry) {
	if len(entries) == 0 {
		fmt.Println("\nNo thesaurus snapshots cached.")
		return
	}

	fmt.Printf("\nFound %d thesaurus snapshot%s:\n", len(entries), plural(len(entries), "", "s"))
	fmt.Println(strings.Repeat("─", 80))

	for i, e := range entries {
		fmt.Printf("\n[%d] Key:        %s\n", i+1, e.key)
		fmt.Printf("    URL hash:   %s\n", e.urlHash)
		printTTL(e.hasExpiry, e.expiresAt)
		fmt.Printf("    Raw size:   %s\n", formatBytes(e.rawSize))

		if e.decodeErr != nil {
			fmt.Printf("    DECODE ERROR: %v\n", e.decodeErr)
			continue
		}

		var camps, locations, other, described, tops int
		for _, c := range e.concepts {
			switch c.Category {
			case thesaurus.CategoryCamp:
				camps++
			case thesaurus.CategoryLocation:
				locations++
			default:
				other++
			}
			if c.Description != "" {
				described++
			}
			if c.IsTopConcept() {
				tops++
			}
		}

		fmt.Printf("    Concepts:   %d total\n", len(e.concepts))
		fmt.Printf("                %d camps, %d locations, %d other\n", camps, locations, other)
		fmt.Printf("                %d with descriptions, %d top concepts\n", described, tops)

		// A few names for a visual sanity check.
		sampleSize := 5
		if sampleSize > len(e.concepts) {
			sampleSize = len(e.concepts)
		}
		names := make([]string, 0, sampleSize)
		for _, c := range e.concepts[:sampleSize] {
			names = append(names, c.Name)
		}
		if len(names) > 0 {
			fmt.Printf("    Sample:     %s\n", strings.Join(names, ", "))
		}
	}
}

// =============================================================================
// Embedding matrices
// =============================================================================

type matrixEntry struct {
	key        string
	corpusHash string
	expiresAt  time.Time
	hasExpiry  bool
	rawSize    int
	vectors    [][]float32
	decodeErr  error
}

func collectMatrices(db *dgbadger.DB) []matrixEntry {
	var entries []matrixEntry

	err := db.View(func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(vectorsKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			var e matrixEntry
			e.key = string(item.Key())
			e.corpusHash = strings.TrimPrefix(e.key, vectorsKeyPrefix)
			if expiresAt := item.ExpiresAt(); expiresAt > 0 {
				e.hasExpiry = true
				e.expiresAt = time.Unix(int64(expiresAt), 0)
			}

			raw, err := item.ValueCopy(nil)
			if err != nil {
				e.decodeErr = fmt.Errorf("copy value: %w", err)
				entries = append(entries, e)
				continue
			}
			e.rawSize = len(raw)

			if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&e.vectors); err != nil {
				e.decodeErr = fmt.Errorf("gob decode: %w", err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		fatalf("read BadgerDB: %v", err)
	}
	return entries
}

func printMatrices(entries []matrixEntry) {
	if len(entries) == 0 {
		fmt.Println("\nNo embedding matrices cached.")
		return
	}

	fmt.Printf("\nFound %d embedding matri%s:\n", len(entries), plural(len(entries), "x", "ces"))
	fmt.Println(strings.Repeat("─", 80))

	for i, e := range entries {
		fmt.Printf("\n[%d] Key:         %s\n", i+1, e.key)
		fmt.Printf("    Corpus hash: %s\n", e.corpusHash)
		printTTL(e.hasExpiry, e.expiresAt)
		fmt.Printf("    Raw size:    %s\n", formatBytes(e.rawSize))

		if e.decodeErr != nil {
			fmt.Printf("    DECODE ERROR: %v\n", e.decodeErr)
			continue
		}

		fmt.Printf("    Vectors:     %d\n", len(e.vectors))
		if len(e.vectors) > 0 {
			first := e.vectors[0]
			fmt.Printf("    Dimensions:  %d\n", len(first))
			fmt.Printf("    First:       L2=%.4f  %s\n", l2Norm(first), formatSample(first, 4))
		}
	}
}

// =============================================================================
// Helpers
// =============================================================================

func printTTL(hasExpiry bool, expiresAt time.Time) {
	if !hasExpiry {
		fmt.Printf("    TTL:        no expiry set\n")
		return
	}
	remaining := time.Until(expiresAt)
	if remaining < 0 {
		fmt.Printf("    TTL:        EXPIRED (%s ago)\n", (-remaining).Round(time.Second))
		return
	}
	fmt.Printf("    TTL:        %s remaining (expires %s)\n",
		remaining.Round(time.Second),
		expiresAt.Format("2006-01-02 15:04:05 MST"),
	)
}

// l2Norm computes the L2 norm of a float32 vector. Unit-normalized vectors
// show ≈1.0000.
func l2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// formatSample returns the first n values of a vector as a bracketed string.
func formatSample(v []float32, n int) string {
	if len(v) == 0 {
		return "[]"
	}
	if n > len(v) {
		n = len(v)
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("%+.4f", v[i])
	}
	suffix := ""
	if len(v) > n {
		suffix = " ..."
	}
	return "[" + strings.Join(parts, ", ") + suffix + "]"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(n int) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB (%d bytes)", float64(n)/1024/1024, n)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB (%d bytes)", float64(n)/1024, n)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

// plural returns singular or plural suffix based on count.
func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

// fatalf prints to stderr and exits 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "enrich_cache_dump: "+format+"\n", args...)
	os.Exit(1)
}
