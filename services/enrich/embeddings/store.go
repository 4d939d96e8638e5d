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

// =============================================================================
// Vector matrix persistence
// =============================================================================
//
// Warming the index costs one paid embed call per chunk of concepts. The
// matrix only changes when the thesaurus or the model does, so it is kept
// in BadgerDB keyed by the corpus hash; a stale entry can never be served
// because any input change produces a different key.
//
// Storage layout:
//
//	embeddings/vectors/v1/{corpusHash}  →  gob-encoded [][]float32
//	                                       TTL: 30 days

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	badgerstore "github.com/TesseraAI/tessera/services/enrich/storage/badger"
)

// vectorsKeyPrefix versions the storage layout; bump on format changes.
const vectorsKeyPrefix = "embeddings/vectors/v1/"

// defaultVectorsTTL matches the thesaurus snapshot TTL so both caches
// expire together instead of serving a fresh matrix over stale concepts.
const defaultVectorsTTL = 30 * 24 * time.Hour

var errCacheMiss = errors.New("cache miss")

// Store persists concept vector matrices in BadgerDB.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db     *badgerstore.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewStore creates a vector store on an opened database. The caller owns
// the DB lifecycle. A ttl of 0 selects the 30-day default; a nil logger
// selects slog.Default().
func NewStore(db *badgerstore.DB, ttl time.Duration, logger *slog.Logger) *Store {
	if db == nil {
		panic("NewStore: db must not be nil")
	}
	if ttl <= 0 {
		ttl = defaultVectorsTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, ttl: ttl, logger: logger}
}

// LoadVectors retrieves the cached matrix for a corpus hash.
//
// Returns (nil, nil) on cache miss (key absent or TTL expired), (nil, error)
// on storage or decode failure, and (vectors, nil) on a hit.
func (s *Store) LoadVectors(ctx context.Context, corpusHash string) ([][]float32, error) {
	key := vectorsKey(corpusHash)

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
		s.logger.Debug("embedding cache: miss")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("embedding cache load: %w", err)
	}

	var vectors [][]float32
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("embedding cache decode: %w", err)
	}

	s.logger.Debug("embedding cache: hit", slog.Int("vectors", len(vectors)))
	return vectors, nil
}

// SaveVectors persists a matrix under a corpus hash with the configured
// TTL. Saving an empty matrix is a no-op.
func (s *Store) SaveVectors(ctx context.Context, corpusHash string, vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vectors); err != nil {
		return fmt.Errorf("embedding cache encode: %w", err)
	}

	key := vectorsKey(corpusHash)
	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		entry := dgbadger.NewEntry(key, buf.Bytes()).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("embedding cache save: %w", err)
	}

	s.logger.Debug("embedding cache: saved",
		slog.Int("vectors", len(vectors)),
		slog.Duration("ttl", s.ttl),
	)
	return nil
}

// vectorsKey builds the BadgerDB key for a corpus hash.
func vectorsKey(corpusHash string) []byte {
	return []byte(vectorsKeyPrefix + corpusHash)
}
