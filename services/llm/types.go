// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides raw net/http clients for OpenAI-compatible chat
// completion and embedding endpoints. No third-party SDKs: the wire types
// are private structs and the public surface is plain Go values, so callers
// can point the clients at api.openai.com or any local compatible server.
package llm

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Message is a single turn in a chat conversation.
//
// Role is one of "system", "user", or "assistant". Unknown roles are
// mapped to "user" at request time rather than rejected.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams carries optional generation controls. Nil pointer
// fields are omitted from the request so the server's defaults apply.
//
// Thread Safety: GenerationParams is a value type; copy freely.
type GenerationParams struct {
	Temperature   *float32
	MaxTokens     *int
	TopP          *float32
	Stop          []string
	ModelOverride string
}

// =============================================================================
// Typed Errors
// =============================================================================

// APIStatusError reports a non-200 HTTP status from the completion or
// embedding endpoint. The body is already redacted via SafeLogString.
type APIStatusError struct {
	StatusCode int
	Body       string
}

func (e *APIStatusError) Error() string {
	return fmt.Sprintf("openai: API returned status %d: %s", e.StatusCode, e.Body)
}

// RateLimitError reports an HTTP 429 from the provider.
//
// RetryAfter is the provider's wait hint when one could be parsed, or zero
// when the provider gave none. Callers that retry should fall back to their
// own default pause when RetryAfter is zero.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("openai: rate limited (retry after %s): %s", e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("openai: rate limited: %s", e.Message)
}

// retryHintPattern matches the wait hint some OpenAI-compatible servers
// embed in 429 bodies, e.g. "Please try again in 2.5s".
var retryHintPattern = regexp.MustCompile(`try again in ([0-9.]+)s`)

// parseRetryAfter extracts a wait hint from a 429 response.
//
// Description:
//
//	Prefers the Retry-After header (integer seconds per RFC 9110; HTTP-date
//	values are ignored). Falls back to scanning the response body for the
//	"try again in <n>s" phrasing. Returns zero when neither yields a value.
//
// Inputs:
//   - header: The Retry-After header value, possibly empty.
//   - body: The raw response body.
//
// Outputs:
//   - time.Duration: The parsed hint, or zero.
func parseRetryAfter(header, body string) time.Duration {
	if header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if m := retryHintPattern.FindStringSubmatch(body); m != nil {
		if secs, err := strconv.ParseFloat(m[1], 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 0
}
