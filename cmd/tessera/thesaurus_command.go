// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TesseraAI/tessera/services/enrich/config"
	badgerstore "github.com/TesseraAI/tessera/services/enrich/storage/badger"
	"github.com/TesseraAI/tessera/services/enrich/thesaurus"
)

func newThesaurusCommand(cctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thesaurus",
		Short: "Inspect and refresh the cached WW2 thesaurus",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newThesaurusRefreshCommand(cctx))
	cmd.AddCommand(newThesaurusStatsCommand(cctx))
	return cmd
}

// newThesaurusRefreshCommand forces a fresh download of the thesaurus export
// into the local cache, replacing whatever was cached before.
func newThesaurusRefreshCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-download the thesaurus export into the local cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig(cmd.Context())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, store, err := openConceptStore(cfg)
			if err != nil {
				return err
			}
			defer closeStoreQuietly(db)

			snapshot, err := thesaurus.NewLoader(store, cfg.Thesaurus.SourceURL).Load(ctx, true)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Refreshed thesaurus from %s\n", cfg.Thesaurus.SourceURL)
			printSnapshotStats(cmd, snapshot)
			return nil
		},
	}
}

// newThesaurusStatsCommand loads the thesaurus (cache-first) and prints the
// category breakdown the matching engine will see.
func newThesaurusStatsCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print concept counts per matcher pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig(cmd.Context())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, store, err := openConceptStore(cfg)
			if err != nil {
				return err
			}
			defer closeStoreQuietly(db)

			snapshot, err := thesaurus.NewLoader(store, cfg.Thesaurus.SourceURL).Load(ctx, false)
			if err != nil {
				return err
			}

			printSnapshotStats(cmd, snapshot)
			return nil
		},
	}
}

// openConceptStore opens the configured cache database for the thesaurus
// commands. Unlike the runtime bootstrap there is no in-memory fallback: a
// cache command that cannot reach the cache should fail loudly.
func openConceptStore(cfg *config.Config) (*badgerstore.DB, *thesaurus.Store, error) {
	storeCfg := badgerstore.DefaultConfig()
	storeCfg.Path = cfg.Storage.Path
	storeCfg.InMemory = cfg.Storage.InMemory

	db, err := badgerstore.OpenDB(storeCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening cache database at %s: %w", cfg.Storage.Path, err)
	}

	ttl := time.Duration(cfg.Thesaurus.CacheTTLDays) * 24 * time.Hour
	return db, thesaurus.NewStore(db, ttl, slog.Default()), nil
}

func closeStoreQuietly(db *badgerstore.DB) {
	if err := db.Close(); err != nil {
		slog.Warn("Failed to close cache database", slog.String("error", err.Error()))
	}
}

func printSnapshotStats(cmd *cobra.Command, snapshot *thesaurus.Snapshot) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "  concepts:             %d\n", snapshot.Len())
	fmt.Fprintf(out, "  descriptive:          %d\n", len(snapshot.Descriptive()))
	fmt.Fprintf(out, "  descriptive tops:     %d\n", len(snapshot.DescriptiveTops()))
	fmt.Fprintf(out, "  camps and locations:  %d\n", len(snapshot.CampsAndLocations()))
}
