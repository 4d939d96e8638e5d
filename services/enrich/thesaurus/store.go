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

// =============================================================================
// Snapshot persistence
// =============================================================================
//
// Downloading and filtering the export takes tens of seconds; the concept
// set changes maybe a few times a year. The store keeps the parsed slice in
// BadgerDB between runs, keyed by a hash of the source URL so that pointing
// the loader at a different export never serves stale concepts.
//
// Storage layout:
//
//	thesaurus/concepts/v1/{sha256(sourceURL)}  →  gob-encoded []*Concept
//	                                              TTL: 30 days

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	badgerstore "github.com/TesseraAI/tessera/services/enrich/storage/badger"
)

// conceptsKeyPrefix versions the storage layout; bump on format changes.
const conceptsKeyPrefix = "thesaurus/concepts/v1/"

// defaultSnapshotTTL forces a refresh roughly monthly. The thesaurus is
// curated slowly; anything shorter just re-downloads identical data.
const defaultSnapshotTTL = 30 * 24 * time.Hour

var errCacheMiss = errors.New("cache miss")

// Store persists parsed concept snapshots in BadgerDB.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db     *badgerstore.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewStore creates a snapshot store on an opened database. The caller owns
// the DB lifecycle. A ttl of 0 selects the 30-day default; a nil logger
// selects slog.Default().
func NewStore(db *badgerstore.DB, ttl time.Duration, logger *slog.Logger) *Store {
	if db == nil {
		panic("NewStore: db must not be nil")
	}
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, ttl: ttl, logger: logger}
}

// LoadConcepts retrieves the cached concept list for a source URL.
//
// Returns (nil, nil) on cache miss (key absent or TTL expired), (nil, error)
// on storage or decode failure, and (concepts, nil) on a hit.
func (s *Store) LoadConcepts(ctx context.Context, sourceURL string) ([]*Concept, error) {
	key := conceptsKey(sourceURL)

	var raw []byte
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return errCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get cache key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copy value: %w", err)
		}
		return nil
	})

	if errors.Is(err, errCacheMiss) {
		s.logger.Debug("thesaurus cache: miss")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("thesaurus cache load: %w", err)
	}

	var concepts []*Concept
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&concepts); err != nil {
		return nil, fmt.Errorf("thesaurus cache decode: %w", err)
	}

	s.logger.Debug("thesaurus cache: hit", slog.Int("concepts", len(concepts)))
	return concepts, nil
}

// SaveConcepts persists a concept list for a source URL with the configured
// TTL. Saving an empty list is a no-op.
func (s *Store) SaveConcepts(ctx context.Context, sourceURL string, concepts []*Concept) error {
	if len(concepts) == 0 {
		return nil
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(concepts); err != nil {
		return fmt.Errorf("thesaurus cache encode: %w", err)
	}

	key := conceptsKey(sourceURL)
	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		entry := dgbadger.NewEntry(key, buf.Bytes()).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("thesaurus cache save: %w", err)
	}

	s.logger.Debug("thesaurus cache: saved",
		slog.Int("concepts", len(concepts)),
		slog.Duration("ttl", s.ttl),
	)
	return nil
}

// conceptsKey builds the BadgerDB key for a source URL.
func conceptsKey(sourceURL string) []byte {
	sum := sha256.Sum256([]byte(sourceURL))
	return []byte(conceptsKeyPrefix + hex.EncodeToString(sum[:]))
}
