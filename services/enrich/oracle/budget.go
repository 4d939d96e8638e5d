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
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TokenBudget tracks estimated token consumption for one enrichment run.
//
// Description:
//
//	Accumulates the estimated prompt and completion tokens spent against
//	the oracle. The budget is advisory: enrichment never drops work to stay
//	under it, but CanSpend lets the pipeline warn when a run blows past the
//	configured ceiling, and end-of-run summaries report the total.
//
//	A limit of 0 means unlimited (no ceiling).
//
// Thread Safety: Safe for concurrent use via sync.Mutex.
type TokenBudget struct {
	mu       sync.Mutex
	scope    string
	limit    int
	consumed int
}

// NewTokenBudget creates a new token budget.
//
// Inputs:
//   - scope: A label for summaries (e.g., the run ID or "enrichment").
//   - limit: Token ceiling. 0 means unlimited.
//
// Outputs:
//   - *TokenBudget: Configured budget tracker.
func NewTokenBudget(scope string, limit int) *TokenBudget {
	return &TokenBudget{
		scope: scope,
		limit: limit,
	}
}

// CanSpend checks whether the estimated token count fits within the budget.
//
// Inputs:
//   - estimated: The estimated number of tokens for the upcoming request.
//
// Outputs:
//   - bool: True if the request fits within the remaining budget.
//   - int: Remaining tokens after this request would complete.
func (b *TokenBudget) CanSpend(estimated int) (bool, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit == 0 {
		return true, 0 // unlimited
	}

	remaining := b.limit - b.consumed
	if estimated > remaining {
		return false, remaining
	}

	return true, remaining - estimated
}

// Record records token consumption after an oracle call.
//
// Inputs:
//   - actual: The number of tokens consumed (estimated or reported).
func (b *TokenBudget) Record(actual int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consumed += actual
}

// Summary returns a summary of the token budget state for logging.
//
// Outputs:
//   - string: Human-readable summary (e.g., "run-7f3a: 5000/100000 tokens used").
func (b *TokenBudget) Summary() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit == 0 {
		return fmt.Sprintf("%s: %d tokens used (unlimited)", b.scope, b.consumed)
	}
	return fmt.Sprintf("%s: %d/%d tokens used", b.scope, b.consumed, b.limit)
}

// Remaining returns the number of tokens remaining in the budget.
//
// Outputs:
//   - int: Remaining tokens. Returns -1 for unlimited budgets.
func (b *TokenBudget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit == 0 {
		return -1
	}
	remaining := b.limit - b.consumed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CallMetrics tracks oracle usage for a single enrichment run.
//
// Description:
//
//	Accumulates estimated tokens, call counts, errors, and latency across
//	a run. Used for end-of-run reporting; Prometheus metrics cover the
//	cross-run view.
//
// Thread Safety: Safe for concurrent use via sync.Mutex.
type CallMetrics struct {
	mu                sync.Mutex
	Scope             string
	PromptTokens      int
	CompletionTokens  int
	TotalCalls        int
	TotalErrors       int
	TotalLatencyMs    int64
	LastCallTimestamp int64 // Unix milliseconds UTC
}

// NewCallMetrics creates a new call metrics tracker.
func NewCallMetrics(scope string) *CallMetrics {
	return &CallMetrics{Scope: scope}
}

// RecordCall records a successful oracle call.
//
// Inputs:
//   - promptTokens: Estimated tokens in the prompt.
//   - completionTokens: Estimated tokens in the reply.
//   - latency: Call duration.
func (m *CallMetrics) RecordCall(promptTokens, completionTokens int, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PromptTokens += promptTokens
	m.CompletionTokens += completionTokens
	m.TotalCalls++
	m.TotalLatencyMs += latency.Milliseconds()
	m.LastCallTimestamp = time.Now().UnixMilli()
}

// RecordError records a failed oracle call.
func (m *CallMetrics) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalErrors++
	m.TotalCalls++
	m.LastCallTimestamp = time.Now().UnixMilli()
}

// LogSummary logs the run metrics summary.
//
// Inputs:
//   - logger: The logger to use.
func (m *CallMetrics) LogSummary(logger *slog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger.Info("oracle run metrics",
		slog.String("scope", m.Scope),
		slog.Int("prompt_tokens", m.PromptTokens),
		slog.Int("completion_tokens", m.CompletionTokens),
		slog.Int("total_calls", m.TotalCalls),
		slog.Int("total_errors", m.TotalErrors),
		slog.Int64("total_latency_ms", m.TotalLatencyMs),
	)
}
