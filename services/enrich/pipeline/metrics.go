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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transcriptsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "transcripts_processed_total",
		Help:      "Transcripts the pipeline finished, labeled by outcome.",
	}, []string{"outcome"})

	segmentsEnrichedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "segments_enriched_total",
		Help:      "Selected segments that completed the matching flow.",
	})

	transcriptSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "transcript_seconds",
		Help:      "Wall-clock time to enrich one transcript end to end.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	watchTriggersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "watch_triggers_total",
		Help:      "Pipeline runs started by filesystem watch events.",
	})
)
