// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce is how long the folder must stay quiet before a rescan.
// Uploads arrive as bursts of write events; one pass per burst is enough.
const watchDebounce = 2 * time.Second

// Watch runs one pass, then keeps watching the data folder and reruns the
// pipeline whenever transcripts land or change.
//
// Description:
//
//	Events for .vtt files arm a debounce timer; the pass starts once the
//	folder has been quiet for watchDebounce. Passes with failed
//	transcripts are logged and watching continues, because already
//	enriched transcripts are skipped on the next trigger anyway. Watcher
//	errors are logged, not fatal. Returns when the context is cancelled.
//
// Outputs:
//   - error: The context error on cancellation, or a watcher setup failure.
func (p *Pipeline) Watch(ctx context.Context) error {
	cfg := p.rt.Config()

	if err := p.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		slog.Warn("Initial enrichment pass had failures", slog.Any("error", err))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("pipeline: starting watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(cfg.Pipeline.DataFolder); err != nil {
		return fmt.Errorf("pipeline: watching %s: %w", cfg.Pipeline.DataFolder, err)
	}
	slog.Info("Watching for transcripts",
		slog.String("data_folder", cfg.Pipeline.DataFolder),
		slog.Duration("debounce", watchDebounce))

	debounce := time.NewTimer(watchDebounce)
	debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if isTranscriptEvent(event) {
				debounce.Reset(watchDebounce)
			}

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Transcript watcher error", slog.Any("error", werr))

		case <-debounce.C:
			watchTriggersTotal.Inc()
			if err := p.Run(ctx); err != nil {
				if ctx.Err() != nil {
					return err
				}
				slog.Warn("Watch-triggered enrichment pass had failures",
					slog.Any("error", err))
			}
		}
	}
}

// isTranscriptEvent reports whether a filesystem event should schedule a
// rescan. Only transcript files count; a rename of a transcript triggers
// one too so moved or replaced files are reconciled promptly.
func isTranscriptEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}
	return strings.EqualFold(filepath.Ext(event.Name), ".vtt")
}
