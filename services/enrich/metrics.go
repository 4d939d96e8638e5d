// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package enrich

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	matchFlowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "segment_match_flows_total",
		Help:      "Per-segment matching flows completed, labeled by outcome.",
	}, []string{"outcome"})

	matchFlowSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "segment_match_flow_seconds",
		Help:      "End-to-end per-segment matching latency across all strategies.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	warmupSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "warmup_seconds",
		Help:      "Duration of the last runtime warmup.",
	})

	warmupOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "warmup_outcomes_total",
		Help:      "Runtime warmups by outcome.",
	}, []string{"outcome"})
)

// RecordWarmup records one runtime warmup for Prometheus. Called by the
// service main's warmup goroutine.
//
// Thread Safety: This function is safe for concurrent use.
func RecordWarmup(duration time.Duration, success bool) {
	warmupSeconds.Set(duration.Seconds())
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	warmupOutcomesTotal.WithLabelValues(outcome).Inc()
}
