// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package enrich assembles the concept enrichment service for WW2 oral
// history transcripts: a loaded thesaurus snapshot, a warm concept embedding
// index, and the three matching strategies (exact occurrence, embedding
// similarity, top-down hierarchical classification) behind one per-segment
// entry point. The batch pipeline under services/enrich/pipeline and the
// HTTP handlers in this package share that entry point, so a segment is
// matched the same way whether it arrives from a transcript file or a POST
// body.
package enrich

import (
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
)

var enrichTracer = otel.Tracer("tessera.enrich")

// =============================================================================
// Warmup Registry
// =============================================================================

// warmupDone flips once the service runtime finished loading. The warmup
// guard middleware in the service main consults it before admitting
// enrichment requests.
var warmupDone atomic.Bool

// IsWarmupComplete reports whether the service runtime is ready.
//
// Thread Safety: This function is safe for concurrent use.
func IsWarmupComplete() bool {
	return warmupDone.Load()
}

// MarkWarmupComplete marks the service runtime as ready. Called exactly once
// by the warmup goroutine, including on failure so the service degrades to
// explicit errors instead of eternal 503s.
//
// Thread Safety: This function is safe for concurrent use.
func MarkWarmupComplete() {
	warmupDone.Store(true)
}

// resetWarmupForTest clears the registry between tests.
func resetWarmupForTest() {
	warmupDone.Store(false)
}

// =============================================================================
// Service
// =============================================================================

// Service is the HTTP-facing holder for the enrichment runtime.
//
// Description:
//
//	The runtime is produced by a background warmup goroutine after the
//	server already listens, so the handlers read it through this holder:
//	nil until SetRuntime, then stable for the process lifetime. A failed
//	warmup leaves the runtime nil and the handlers answer with an explicit
//	unavailable error.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	mu sync.RWMutex
	rt *Runtime

	// warmupErr records why warmup failed, for health reporting.
	warmupErr error
}

// NewService creates an empty service awaiting its runtime.
func NewService() *Service {
	return &Service{}
}

// SetRuntime installs the warmed runtime.
func (s *Service) SetRuntime(rt *Runtime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rt = rt
	s.warmupErr = nil
}

// SetWarmupError records a failed warmup.
func (s *Service) SetWarmupError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warmupErr = err
}

// Runtime returns the installed runtime, nil while warmup is in progress or
// after it failed.
func (s *Service) Runtime() *Runtime {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rt
}

// WarmupError returns the recorded warmup failure, nil otherwise.
func (s *Service) WarmupError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.warmupErr
}
