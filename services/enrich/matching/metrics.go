// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package matching

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	matchesProducedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "matches_produced_total",
		Help:      "Match candidates produced, labeled by strategy.",
	}, []string{"source"})

	topdownLevelsWalked = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "topdown_levels_walked",
		Help:      "Hierarchy levels descended below the top concepts per segment.",
		Buckets:   prometheus.LinearBuckets(0, 1, 8),
	})

	topdownBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "topdown_batches_total",
		Help:      "Oracle calls issued by the top-down walk, including retries of malformed replies.",
	})

	malformedRepliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "malformed_replies_total",
		Help:      "Oracle replies discarded because they were not a JSON array, labeled by stage.",
	}, []string{"stage"})

	validationOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "validation_outcomes_total",
		Help:      "Candidates kept or dropped by the validation pass.",
	}, []string{"outcome"})
)
