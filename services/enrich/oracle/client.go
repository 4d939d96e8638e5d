// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package oracle wraps an OpenAI-compatible chat endpoint behind the single
// Classify operation the enrichment stages use. It owns rate-limit retries
// with a backoff window shared across concurrent workers, optional local
// request pacing, and per-run token accounting. Reply parsing belongs to
// the stages; this package only hands back cleaned-up text.
package oracle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/TesseraAI/tessera/services/llm"
)

const (
	defaultMaxAttempts = 5
	defaultRetryWait   = 10 * time.Second
	defaultTemperature = float32(0.1)
	defaultMaxTokens   = 16384
)

// Classifier is the narrow oracle surface the enrichment stages consume:
// one prompt in, the raw completion text out. *Client implements it; tests
// substitute scripted fakes.
type Classifier interface {
	Classify(ctx context.Context, system, prompt string) (string, error)
}

// ChatClient is the transport the Client drives. *llm.OpenAIClient
// satisfies it; tests substitute httptest-backed or scripted clients.
type ChatClient interface {
	Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error)
}

// Config carries optional Client tuning. The zero value selects the
// defaults noted per field.
type Config struct {
	// MaxAttempts is the number of chat calls before a rate-limited
	// operation gives up. 0 selects 5.
	MaxAttempts int
	// DefaultWait is the pause used when the provider gives no retry
	// hint. 0 selects 10s.
	DefaultWait time.Duration
	// Temperature for completions. Nil selects 0.1.
	Temperature *float32
	// MaxTokens caps completion length. Nil selects 16384.
	MaxTokens *int
	// RequestsPerMinute enables local pacing ahead of provider limits.
	// 0 disables it.
	RequestsPerMinute int
	// Budget, when non-nil, accumulates estimated token spend.
	Budget *TokenBudget
	// RunMetrics, when non-nil, accumulates per-run call statistics.
	RunMetrics *CallMetrics
}

// Client is a retrying classification client.
//
// Description:
//
//	Classify sends one prompt and returns the completion text. Rate-limit
//	rejections are retried with the provider's wait hint, or DefaultWait
//	when no hint was given, up to MaxAttempts calls. While one worker is
//	waiting out a rate limit, the pause window is shared: other workers
//	using the same Client hold their next call until the window passes.
//	Any other transport failure returns immediately as *TransportError.
//
// Thread Safety: Client is safe for concurrent use.
type Client struct {
	chat        ChatClient
	maxAttempts int
	defaultWait time.Duration
	temperature float32
	maxTokens   int
	limiter     *RequestLimiter
	budget      *TokenBudget
	runMetrics  *CallMetrics

	// sleep is swapped out by tests to avoid real pauses.
	sleep func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	pausedUntil time.Time
}

var _ Classifier = (*Client)(nil)

// NewClient creates a Client with default tuning.
func NewClient(chat ChatClient) *Client {
	return NewClientWithConfig(chat, Config{})
}

// NewClientWithConfig creates a Client with explicit tuning.
//
// Inputs:
//   - chat: The chat transport. Must be non-nil.
//   - cfg: Tuning; zero-value fields select defaults.
//
// Outputs:
//   - *Client: The configured client.
func NewClientWithConfig(chat ChatClient, cfg Config) *Client {
	c := &Client{
		chat:        chat,
		maxAttempts: cfg.MaxAttempts,
		defaultWait: cfg.DefaultWait,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		budget:      cfg.Budget,
		runMetrics:  cfg.RunMetrics,
		sleep:       sleepCtx,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.defaultWait <= 0 {
		c.defaultWait = defaultRetryWait
	}
	if cfg.Temperature != nil {
		c.temperature = *cfg.Temperature
	}
	if cfg.MaxTokens != nil {
		c.maxTokens = *cfg.MaxTokens
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = NewRequestLimiter(cfg.RequestsPerMinute)
	}
	return c
}

// Classify sends one prompt to the oracle and returns the completion text.
//
// Description:
//
//	An empty system string sends a user-only conversation; a non-empty one
//	is prepended as the system turn. The reply is returned as-is; callers
//	run CleanResponse before decoding.
//
// Inputs:
//   - ctx: Context for cancellation. Honored between and during attempts.
//   - system: Optional system prompt. Empty means none.
//   - prompt: The user prompt.
//
// Outputs:
//   - string: The raw completion text.
//   - error: *TransportError, *ExhaustedRetriesError, or a context error.
//
// Thread Safety: This method is safe for concurrent use.
func (c *Client) Classify(ctx context.Context, system, prompt string) (string, error) {
	messages := make([]llm.Message, 0, 2)
	if system != "" {
		messages = append(messages, llm.Message{Role: "system", Content: system})
	}
	messages = append(messages, llm.Message{Role: "user", Content: prompt})

	temp := c.temperature
	maxTok := c.maxTokens
	params := llm.GenerationParams{Temperature: &temp, MaxTokens: &maxTok}

	estimated := estimateTokens(system) + estimateTokens(prompt)
	if c.budget != nil {
		if ok, remaining := c.budget.CanSpend(estimated); !ok {
			slog.Warn("oracle token budget exceeded, continuing",
				slog.Int("estimated", estimated),
				slog.Int("remaining", remaining),
			)
		}
	}

	var last error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.waitTurn(ctx); err != nil {
			return "", err
		}

		start := time.Now()
		reply, err := c.chat.Chat(ctx, messages, params)
		if err == nil {
			latency := time.Since(start)
			oracleCallsTotal.WithLabelValues("ok").Inc()
			oracleLatencySeconds.Observe(latency.Seconds())
			if c.budget != nil {
				c.budget.Record(estimated + estimateTokens(reply))
			}
			if c.runMetrics != nil {
				c.runMetrics.RecordCall(estimated, estimateTokens(reply), latency)
			}
			return reply, nil
		}

		var rateErr *llm.RateLimitError
		if !errors.As(err, &rateErr) {
			oracleCallsTotal.WithLabelValues("transport_error").Inc()
			if c.runMetrics != nil {
				c.runMetrics.RecordError()
			}
			return "", &TransportError{Err: err}
		}

		last = &RateLimitedError{RetryAfter: rateErr.RetryAfter, Err: rateErr}
		oracleCallsTotal.WithLabelValues("rate_limited").Inc()
		if c.runMetrics != nil {
			c.runMetrics.RecordError()
		}

		if attempt == c.maxAttempts {
			break
		}

		wait := rateErr.RetryAfter
		if wait <= 0 {
			wait = c.defaultWait
		}
		slog.Warn("oracle rate limited, backing off",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.maxAttempts),
			slog.Duration("wait", wait),
		)
		oracleRetriesTotal.Inc()
		oracleBackoffSecondsTotal.Add(wait.Seconds())
		c.pauseAll(wait)
		if err := c.sleep(ctx, wait); err != nil {
			return "", err
		}
	}

	oracleCallsTotal.WithLabelValues("exhausted").Inc()
	return "", &ExhaustedRetriesError{Attempts: c.maxAttempts, Last: last}
}

// waitTurn holds the caller until the shared backoff window has passed and
// local pacing admits another request.
func (c *Client) waitTurn(ctx context.Context) error {
	if d := c.sharedPause(); d > 0 {
		oracleBackoffSecondsTotal.Add(d.Seconds())
		if err := c.sleep(ctx, d); err != nil {
			return err
		}
	}
	for {
		ok, retryAfter := c.limiter.Allow()
		if ok {
			return nil
		}
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		if err := c.sleep(ctx, retryAfter); err != nil {
			return err
		}
	}
}

// pauseAll extends the shared backoff window so concurrent workers hold
// their next call.
func (c *Client) pauseAll(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	until := time.Now().Add(d)
	if until.After(c.pausedUntil) {
		c.pausedUntil = until
	}
}

// sharedPause returns how long the shared backoff window has left, or a
// non-positive duration when it has passed.
func (c *Client) sharedPause() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	return time.Until(c.pausedUntil)
}

// estimateTokens approximates token count at four bytes per token. Exact
// counting belongs to the batching layer; this estimate only feeds budget
// accounting and run summaries.
func estimateTokens(s string) int {
	return len(s) / 4
}

// sleepCtx sleeps for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
