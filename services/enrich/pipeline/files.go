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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Output tree layout under the configured output folder. Three parallel
// directories hold the intermediate and final exports per transcript stem.
const (
	segmentsDirName = "segments"
	selectedDirName = "selected_segments"
	enrichedDirName = "enriched_segments"
)

// TranscriptStem returns the transcript's base name without its extension;
// it keys every output file of that transcript.
func TranscriptStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SegmentsPath returns where the raw segment export of a transcript goes.
func SegmentsPath(outputFolder, stem string) string {
	return filepath.Join(outputFolder, segmentsDirName, stem+"_segments.json")
}

// SelectedSegmentsPath returns where the selected-segment export goes.
func SelectedSegmentsPath(outputFolder, stem string) string {
	return filepath.Join(outputFolder, selectedDirName, stem+"_selected_segments.json")
}

// EnrichedSegmentsPath returns where the enriched export goes. Its existence
// marks the transcript as done.
func EnrichedSegmentsPath(outputFolder, stem string) string {
	return filepath.Join(outputFolder, enrichedDirName, stem+"_enriched_segments.json")
}

// PendingTranscripts lists the .vtt files in dataFolder that have no
// enriched export yet, sorted by name for a stable processing order.
//
// Description:
//
//	The enriched export is written last, so its presence means the whole
//	flow finished for that transcript; partially processed transcripts
//	(say, after a crash between the segment export and enrichment) are
//	picked up again and their intermediate exports rewritten.
//
// Inputs:
//   - dataFolder: Directory scanned for transcripts, non-recursively.
//   - outputFolder: Root of the output tree.
//
// Outputs:
//   - []string: Full paths of the pending transcripts.
//   - error: Non-nil when the data folder cannot be read.
func PendingTranscripts(dataFolder, outputFolder string) ([]string, error) {
	entries, err := os.ReadDir(dataFolder)
	if err != nil {
		return nil, fmt.Errorf("pipeline: reading data folder: %w", err)
	}

	var pending []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".vtt") {
			continue
		}
		stem := TranscriptStem(entry.Name())
		if _, err := os.Stat(EnrichedSegmentsPath(outputFolder, stem)); err == nil {
			continue
		}
		pending = append(pending, filepath.Join(dataFolder, entry.Name()))
	}
	sort.Strings(pending)
	return pending, nil
}

// writeJSON writes v indented to path, creating parent directories. The
// exports are read by humans and downstream notebooks; compactness buys
// nothing here.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("pipeline: creating output directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("pipeline: encoding %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("pipeline: writing %s: %w", path, err)
	}
	return nil
}
