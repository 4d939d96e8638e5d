// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Oracle Calls
// =============================================================================

var (
	// oracleCallsTotal counts oracle call attempts by final status.
	// Labels: status (ok, rate_limited, transport_error, exhausted)
	oracleCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "oracle_calls_total",
		Help:      "Total oracle call attempts by final status",
	}, []string{"status"})

	// oracleRetriesTotal counts rate-limit retries.
	oracleRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "oracle_retries_total",
		Help:      "Total rate-limit retries against the oracle",
	})

	// oracleBackoffSecondsTotal accumulates time spent paused on rate limits.
	oracleBackoffSecondsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "oracle_backoff_seconds_total",
		Help:      "Cumulative seconds spent paused waiting out rate limits",
	})

	// oracleLatencySeconds measures successful oracle call latency.
	oracleLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "oracle_latency_seconds",
		Help:      "Latency of successful oracle calls",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})
)
