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
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TesseraAI/tessera/services/enrich"
	"github.com/TesseraAI/tessera/services/enrich/pipeline"
)

// newEnrichCommand builds the batch enrichment command. It bootstraps the
// full runtime (thesaurus, embedding index, oracle client) and drives the
// pipeline over every pending transcript in the data folder.
func newEnrichCommand(cctx *commandContext) *cobra.Command {
	var (
		inputFlag       string
		outputFlag      string
		watchFlag       bool
		workersFlag     int
		forceReloadFlag bool
	)

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Enrich pending transcripts in the data folder",
		Long: `Enrich runs the batch pipeline: every .vtt transcript in the data folder
without an enriched export is segmented, filtered for relevance, matched
against the thesaurus and written to the output folder. With --watch the
command keeps running and re-scans when transcripts are added or changed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig(cmd.Context())
			if err != nil {
				return err
			}
			if inputFlag != "" {
				cfg.Pipeline.DataFolder = inputFlag
			}
			if outputFlag != "" {
				cfg.Pipeline.OutputFolder = outputFlag
			}
			if workersFlag > 0 {
				cfg.Pipeline.Workers = workersFlag
			}
			if forceReloadFlag {
				cfg.Thesaurus.ForceReload = true
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := enrich.Bootstrap(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := rt.Close(); cerr != nil {
					slog.Warn("Failed to close enrichment runtime", slog.String("error", cerr.Error()))
				}
			}()

			p := pipeline.New(rt)
			if watchFlag {
				return p.Watch(ctx)
			}
			return p.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&inputFlag, "input", "i", "", "Folder holding .vtt transcripts (overrides pipeline.data_folder)")
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Folder for segment exports (overrides pipeline.output_folder)")
	cmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Keep running and re-enrich when transcripts change")
	cmd.Flags().IntVar(&workersFlag, "workers", 0, "Concurrent segment matchers (overrides pipeline.workers)")
	cmd.Flags().BoolVar(&forceReloadFlag, "force-reload", false, "Re-download the thesaurus and re-embed every concept")

	return cmd
}
