// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger wraps BadgerDB for the enrichment service's local caches
// (thesaurus snapshots, concept embedding matrices). The wrapper adds
// context checks around transactions and keeps BadgerDB's noisy internal
// logger out of service logs. It owns no key layout; stores built on top
// of it do.
package badger

import (
	"context"
	"errors"
	"fmt"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// Config describes how to open a cache database.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory opens a throwaway database with no files on disk. Used by
	// tests and by deployments that explicitly disable cache persistence.
	InMemory bool

	// ReadOnly opens the database for inspection without taking the write
	// lock. Maintenance tooling only.
	ReadOnly bool
}

// DefaultConfig returns a Config for an on-disk cache. The caller fills in
// Path before opening.
func DefaultConfig() Config {
	return Config{}
}

// InMemoryConfig returns a Config for an in-memory database.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// DB is an opened cache database. The zero value is not usable; obtain one
// from OpenDB.
//
// Thread Safety: Safe for concurrent use. BadgerDB transactions are
// per-goroutine.
type DB struct {
	db *dgbadger.DB
}

// OpenDB opens (creating if needed) the cache database described by cfg.
//
// Description:
//
//	BadgerDB's own logger is suppressed; its GC chatter drowns structured
//	service logs. Callers that want cache diagnostics get them from the
//	stores layered on top.
//
// Inputs:
//   - cfg: Open parameters. Path must be non-empty unless InMemory is set.
//
// Outputs:
//   - *DB: Ready-to-use handle. The caller owns Close.
//   - error: Non-nil when the directory cannot be opened or locked.
func OpenDB(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger: config needs a path or InMemory")
	}

	opts := dgbadger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithReadOnly(cfg.ReadOnly).
		WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %q: %w", cfg.Path, err)
	}
	return &DB{db: db}, nil
}

// Close releases the database and its directory lock.
func (d *DB) Close() error {
	return d.db.Close()
}

// WithReadTxn runs fn inside a read-only transaction. The context is
// checked before the transaction starts; BadgerDB itself has no
// per-transaction cancellation.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.View(fn)
}

// WithTxn runs fn inside a read-write transaction, committing on nil
// return.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(fn)
}
