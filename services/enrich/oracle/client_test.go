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
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TesseraAI/tessera/services/llm"
)

// scriptedChat replays a per-call script and records what it was sent.
type scriptedChat struct {
	mu       sync.Mutex
	calls    int
	script   func(call int, messages []llm.Message, params llm.GenerationParams) (string, error)
	messages [][]llm.Message
	params   []llm.GenerationParams
}

func (s *scriptedChat) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.messages = append(s.messages, messages)
	s.params = append(s.params, params)
	s.mu.Unlock()
	return s.script(call, messages, params)
}

func (s *scriptedChat) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordedSleeps swaps the client's sleep for one that only records.
func recordedSleeps(c *Client) *[]time.Duration {
	var (
		mu     sync.Mutex
		sleeps []time.Duration
	)
	c.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
		return ctx.Err()
	}
	return &sleeps
}

func TestClient_Classify_Success(t *testing.T) {
	chat := &scriptedChat{script: func(call int, _ []llm.Message, _ llm.GenerationParams) (string, error) {
		return "reply text", nil
	}}
	c := NewClient(chat)

	got, err := c.Classify(context.Background(), "You help with tests.", "classify this")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "reply text" {
		t.Errorf("reply = %q, want %q", got, "reply text")
	}
	if chat.callCount() != 1 {
		t.Errorf("calls = %d, want 1", chat.callCount())
	}

	msgs := chat.messages[0]
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want 2", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != "You help with tests." {
		t.Errorf("system turn = %+v", msgs[0])
	}
	if msgs[1].Role != "user" || msgs[1].Content != "classify this" {
		t.Errorf("user turn = %+v", msgs[1])
	}

	params := chat.params[0]
	if params.Temperature == nil || *params.Temperature != 0.1 {
		t.Errorf("Temperature = %v, want 0.1", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 16384 {
		t.Errorf("MaxTokens = %v, want 16384", params.MaxTokens)
	}
}

func TestClient_Classify_EmptySystemOmitted(t *testing.T) {
	chat := &scriptedChat{script: func(int, []llm.Message, llm.GenerationParams) (string, error) {
		return "ok", nil
	}}
	c := NewClient(chat)

	if _, err := c.Classify(context.Background(), "", "prompt only"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := chat.messages[0]
	if len(msgs) != 1 {
		t.Fatalf("len(messages) = %d, want 1 (no system turn)", len(msgs))
	}
	if msgs[0].Role != "user" {
		t.Errorf("role = %q, want user", msgs[0].Role)
	}
}

func TestClient_Classify_RetriesWithProviderHint(t *testing.T) {
	chat := &scriptedChat{script: func(call int, _ []llm.Message, _ llm.GenerationParams) (string, error) {
		if call == 1 {
			return "", &llm.RateLimitError{RetryAfter: 42 * time.Second, Message: "slow down"}
		}
		return "recovered", nil
	}}
	c := NewClient(chat)
	sleeps := recordedSleeps(c)

	got, err := c.Classify(context.Background(), "", "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "recovered" {
		t.Errorf("reply = %q, want %q", got, "recovered")
	}
	if chat.callCount() != 2 {
		t.Errorf("calls = %d, want 2", chat.callCount())
	}
	if len(*sleeps) == 0 || (*sleeps)[0] != 42*time.Second {
		t.Errorf("sleeps = %v, want first sleep of 42s from provider hint", *sleeps)
	}
}

func TestClient_Classify_DefaultWaitWhenNoHint(t *testing.T) {
	chat := &scriptedChat{script: func(call int, _ []llm.Message, _ llm.GenerationParams) (string, error) {
		if call == 1 {
			return "", &llm.RateLimitError{Message: "slow down"}
		}
		return "recovered", nil
	}}
	c := NewClient(chat)
	sleeps := recordedSleeps(c)

	if _, err := c.Classify(context.Background(), "", "prompt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*sleeps) == 0 || (*sleeps)[0] != 10*time.Second {
		t.Errorf("sleeps = %v, want first sleep of default 10s", *sleeps)
	}
}

func TestClient_Classify_ExhaustsRetries(t *testing.T) {
	chat := &scriptedChat{script: func(int, []llm.Message, llm.GenerationParams) (string, error) {
		return "", &llm.RateLimitError{RetryAfter: time.Second, Message: "always limited"}
	}}
	c := NewClient(chat)
	recordedSleeps(c)

	_, err := c.Classify(context.Background(), "", "prompt")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}

	var exhausted *ExhaustedRetriesError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected *ExhaustedRetriesError, got %T: %v", err, err)
	}
	if exhausted.Attempts != 5 {
		t.Errorf("Attempts = %d, want 5", exhausted.Attempts)
	}
	if chat.callCount() != 5 {
		t.Errorf("calls = %d, want 5", chat.callCount())
	}

	var rateLimited *RateLimitedError
	if !errors.As(err, &rateLimited) {
		t.Error("exhaustion error should unwrap to *RateLimitedError")
	}
}

func TestClient_Classify_TransportErrorNotRetried(t *testing.T) {
	chat := &scriptedChat{script: func(int, []llm.Message, llm.GenerationParams) (string, error) {
		return "", fmt.Errorf("openai: HTTP request failed: connection refused")
	}}
	c := NewClient(chat)
	recordedSleeps(c)

	_, err := c.Classify(context.Background(), "", "prompt")
	if err == nil {
		t.Fatal("expected transport error")
	}

	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected *TransportError, got %T: %v", err, err)
	}
	if chat.callCount() != 1 {
		t.Errorf("calls = %d, want 1 (transport errors are not retried)", chat.callCount())
	}
}

func TestClient_Classify_APIStatusErrorIsTransport(t *testing.T) {
	chat := &scriptedChat{script: func(int, []llm.Message, llm.GenerationParams) (string, error) {
		return "", &llm.APIStatusError{StatusCode: 500, Body: "boom"}
	}}
	c := NewClient(chat)

	_, err := c.Classify(context.Background(), "", "prompt")
	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected *TransportError, got %T: %v", err, err)
	}
	var statusErr *llm.APIStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 500 {
		t.Error("transport error should unwrap to the provider status error")
	}
}

func TestClient_Classify_SharedBackoffPausesNextCall(t *testing.T) {
	chat := &scriptedChat{script: func(call int, _ []llm.Message, _ llm.GenerationParams) (string, error) {
		if call == 1 {
			return "", &llm.RateLimitError{RetryAfter: 30 * time.Second, Message: "slow down"}
		}
		return "ok", nil
	}}
	c := NewClient(chat)
	sleeps := recordedSleeps(c)

	// First call is rate limited once; the recorded sleep returns
	// immediately, so the shared pause window is still open.
	if _, err := c.Classify(context.Background(), "", "first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Classify(context.Background(), "", "second"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(*sleeps) < 2 {
		t.Fatalf("sleeps = %v, want the second call to wait out the shared window", *sleeps)
	}
	pause := (*sleeps)[1]
	if pause <= 25*time.Second || pause > 30*time.Second {
		t.Errorf("second call paused %v, want just under the 30s shared window", pause)
	}
}

func TestClient_Classify_ContextCanceledDuringBackoff(t *testing.T) {
	chat := &scriptedChat{script: func(int, []llm.Message, llm.GenerationParams) (string, error) {
		return "", &llm.RateLimitError{RetryAfter: time.Minute, Message: "slow down"}
	}}
	c := NewClient(chat)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Classify(ctx, "", "prompt")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if chat.callCount() != 1 {
		t.Errorf("calls = %d, want 1 (canceled during backoff)", chat.callCount())
	}
}

func TestClient_Classify_RecordsBudgetAndMetrics(t *testing.T) {
	chat := &scriptedChat{script: func(int, []llm.Message, llm.GenerationParams) (string, error) {
		return "12345678", nil // 2 estimated tokens
	}}
	budget := NewTokenBudget("run", 0)
	metrics := NewCallMetrics("run")
	c := NewClientWithConfig(chat, Config{Budget: budget, RunMetrics: metrics})

	// 40 prompt bytes => 10 estimated tokens
	prompt := "0123456789012345678901234567890123456789"
	if _, err := c.Classify(context.Background(), "", prompt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if metrics.TotalCalls != 1 {
		t.Errorf("TotalCalls = %d, want 1", metrics.TotalCalls)
	}
	if metrics.PromptTokens != 10 {
		t.Errorf("PromptTokens = %d, want 10", metrics.PromptTokens)
	}
	if metrics.CompletionTokens != 2 {
		t.Errorf("CompletionTokens = %d, want 2", metrics.CompletionTokens)
	}
	if !strings.Contains(budget.Summary(), "12 tokens used") {
		t.Errorf("budget summary = %q, want 12 tokens recorded", budget.Summary())
	}
}
