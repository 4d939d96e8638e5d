// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline drives batch enrichment over a folder of WebVTT interview
// transcripts: parse captions, extract the interviewee name, split into
// topic segments, select the WW2-relevant ones, match thesaurus concepts
// against each selected segment, and write the three JSON exports per
// transcript. A watch mode keeps the process alive and picks up transcripts
// dropped into the folder later.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/TesseraAI/tessera/services/enrich"
	"github.com/TesseraAI/tessera/services/enrich/segments"
)

var pipelineTracer = otel.Tracer("tessera.enrich.pipeline")

// Pipeline runs the batch enrichment flow with one shared runtime.
//
// Thread Safety: Safe for concurrent use, though runs are normally
// sequential; the oracle's pacing applies across all concurrent work.
type Pipeline struct {
	rt *enrich.Runtime
}

// New creates a pipeline over a bootstrapped runtime.
func New(rt *enrich.Runtime) *Pipeline {
	return &Pipeline{rt: rt}
}

// Run processes every pending transcript in the configured data folder.
//
// Description:
//
//	A fresh run ID tags all log lines of the pass. Transcripts whose
//	enriched export already exists are skipped; each remaining one runs
//	the full flow. A transcript that fails is logged and skipped so one
//	bad file cannot starve the rest; the first error is reported after
//	the pass so callers can exit non-zero. Cancelling the context stops
//	between transcripts and inside every oracle call.
//
// Outputs:
//   - error: The context error when cancelled, otherwise the first
//     transcript failure, otherwise nil.
func (p *Pipeline) Run(ctx context.Context) error {
	runID := uuid.NewString()
	logger := slog.With(slog.String("run_id", runID))
	rt := p.rt.WithLogger(logger)
	cfg := rt.Config()

	ctx, span := pipelineTracer.Start(ctx, "pipeline.Run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", runID))

	pending, err := PendingTranscripts(cfg.Pipeline.DataFolder, cfg.Pipeline.OutputFolder)
	if err != nil {
		return err
	}
	logger.Info("Enrichment run starting",
		slog.String("data_folder", cfg.Pipeline.DataFolder),
		slog.Int("pending", len(pending)),
		slog.Int("workers", cfg.Pipeline.Workers))

	var firstErr error
	for _, path := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.processTranscript(ctx, rt, logger, path); err != nil {
			if ctx.Err() != nil {
				return err
			}
			transcriptsProcessedTotal.WithLabelValues("failed").Inc()
			logger.Error("Transcript enrichment failed",
				slog.String("path", path),
				slog.Any("error", err))
			if firstErr == nil {
				firstErr = fmt.Errorf("pipeline: %s: %w", TranscriptStem(path), err)
			}
			continue
		}
		transcriptsProcessedTotal.WithLabelValues("enriched").Inc()
	}

	p.logRunSummary(logger)
	return firstErr
}

// processTranscript runs the full flow for one transcript file.
func (p *Pipeline) processTranscript(ctx context.Context, rt *enrich.Runtime, logger *slog.Logger, path string) error {
	cfg := rt.Config()
	stem := TranscriptStem(path)
	logger = logger.With(slog.String("transcript", stem))
	started := time.Now()

	ctx, span := pipelineTracer.Start(ctx, "pipeline.processTranscript")
	defer span.End()
	span.SetAttributes(attribute.String("transcript", stem))

	captions, err := segments.LoadVTT(path)
	if err != nil {
		return err
	}
	logger.Info("Transcript loaded", slog.Int("captions", len(captions)))

	name, err := segments.ExtractName(ctx, rt.Oracle(), captions)
	if err != nil {
		return fmt.Errorf("extracting interviewee name: %w", err)
	}

	segs, err := segments.NewSegmenter(rt.Oracle(), cfg.Pipeline.MinutesPerBatch).Split(ctx, captions)
	if err != nil {
		return fmt.Errorf("segmenting: %w", err)
	}
	if err := writeJSON(SegmentsPath(cfg.Pipeline.OutputFolder, stem), segments.ExportSegments(segs)); err != nil {
		return err
	}

	selected, err := segments.NewSelector(rt.Oracle(), rt.TokenCounter(), cfg.Pipeline.TokenLimit).Select(ctx, segs)
	if err != nil {
		return fmt.Errorf("selecting segments: %w", err)
	}
	if err := writeJSON(SelectedSegmentsPath(cfg.Pipeline.OutputFolder, stem), segments.ExportSegments(selected)); err != nil {
		return err
	}
	logger.Info("Segments selected",
		slog.Int("segments", len(segs)),
		slog.Int("selected", len(selected)))

	enriched, err := p.matchSelected(ctx, rt, selected)
	if err != nil {
		return err
	}

	exports := segments.ExportEnrichedSegments(enriched, name)
	if err := segments.AddTitles(ctx, rt.Oracle(), exports); err != nil {
		// Titles are decoration; the matches are the product.
		logger.Warn("Title generation aborted, writing untitled segments",
			slog.Any("error", err))
	}
	if err := writeJSON(EnrichedSegmentsPath(cfg.Pipeline.OutputFolder, stem), exports); err != nil {
		return err
	}

	segmentsEnrichedTotal.Add(float64(len(enriched)))
	transcriptSeconds.Observe(time.Since(started).Seconds())
	logger.Info("Transcript enriched",
		slog.String("interviewee", name),
		slog.Int("enriched_segments", len(enriched)),
		slog.Duration("duration", time.Since(started)))
	return nil
}

// matchSelected matches every selected segment, fanning out over the
// configured worker count. Results keep the input order regardless of
// completion order; workers share the runtime's oracle pacing.
func (p *Pipeline) matchSelected(ctx context.Context, rt *enrich.Runtime, selected []segments.Segment) ([]segments.EnrichedSegment, error) {
	enriched := make([]segments.EnrichedSegment, len(selected))

	workers := rt.Config().Pipeline.Workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, seg := range selected {
		g.Go(func() error {
			es, err := rt.EnrichSegment(gctx, seg)
			if err != nil {
				return fmt.Errorf("matching segment %d: %w", i, err)
			}
			enriched[i] = es
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return enriched, nil
}

// logRunSummary reports the run's oracle usage and the advisory token
// ledger. The ledger never blocks work; it only warns when a run went past
// its allowance.
func (p *Pipeline) logRunSummary(logger *slog.Logger) {
	if m := p.rt.CallMetrics(); m != nil {
		m.LogSummary(logger)
	}
	b := p.rt.Budget()
	if b == nil {
		return
	}
	if b.Remaining() == 0 {
		logger.Warn("Token allowance exceeded", slog.String("budget", b.Summary()))
		return
	}
	logger.Info("Token allowance", slog.String("budget", b.Summary()))
}
