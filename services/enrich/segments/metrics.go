// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package segments

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	segmentsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "segments_created_total",
		Help:      "Segments assembled from oracle segmentation replies.",
	})

	segmentsSelectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "segments_selected_total",
		Help:      "Segments the oracle marked relevant for enrichment.",
	})

	segmentationWindowsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "segmentation_windows_skipped_total",
		Help:      "Caption windows abandoned after repeated stalled segmentation replies.",
	})

	segmentMalformedRepliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tessera",
		Subsystem: "enrich",
		Name:      "segment_malformed_replies_total",
		Help:      "Oracle replies discarded by the segmentation, selection and metadata stages.",
	}, []string{"stage"})
)
