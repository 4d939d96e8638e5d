// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package embeddings

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	indexBuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "embedding_index_builds_total",
		Help:      "Embedding index builds, labeled by source (cache or fresh).",
	}, []string{"source"})

	embedRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "embedding_requests_total",
		Help:      "Embedding API requests, labeled by purpose (warm or query).",
	}, []string{"purpose"})
)
