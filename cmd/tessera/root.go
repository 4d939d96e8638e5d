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
	"os"
	"runtime"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// version is injected at build time via -ldflags "-X main.version=...".
var version = "dev"

func newRootCommand() *cobra.Command {
	var configFlag string
	var debugFlag bool

	cctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:   "tessera",
		Short: "Enrich WW2 interview transcripts with thesaurus concepts",
		Long: `Tessera matches segments of oral-history interview transcripts against
the NIOD WW2 thesaurus using exact occurrence, embedding similarity and
top-down hierarchical classification, and writes the enriched segments
as JSON exports.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configureLogging(debugFlag)
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := cctx.ensureConfig(cmd.Context())
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default: ENRICH_CONFIG or built-in defaults)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newEnrichCommand(cctx))
	rootCmd.AddCommand(newThesaurusCommand(cctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// newVersionCommand prints the build version. Annotated to skip the config
// load so it works on hosts with no enrichment configuration at all.
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the tessera version",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "tessera %s (%s)\n", version, runtime.Version())
			return nil
		},
	}
}

// configureLogging installs the process-wide slog handler: human-readable
// text on a terminal, JSON when output is redirected or piped.
func configureLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
