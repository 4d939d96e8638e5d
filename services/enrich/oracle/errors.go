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
	"time"
)

// =============================================================================
// Error Taxonomy
// =============================================================================
//
// Callers distinguish four failure classes, and only four:
//
//   - *TransportError: the oracle could not be reached or answered with a
//     non-rate-limit failure. Not retried here; the caller decides.
//   - *RateLimitedError: the provider said to slow down. The Client retries
//     these internally; callers only see one wrapped inside
//     *ExhaustedRetriesError.
//   - *ResponseShapeError: the oracle answered, but the reply did not parse
//     into the shape the stage expected. Produced by the consuming stage,
//     not by the Client.
//   - *ExhaustedRetriesError: every retry attempt was rate-limited. Fatal
//     for the operation that triggered it.

// TransportError wraps a network, HTTP, or provider-level failure from the
// chat endpoint. The wrapped error retains the provider detail.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("oracle: transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimitedError records a single rate-limit rejection.
//
// RetryAfter is the provider's wait hint, or zero when the provider gave
// none. The Client substitutes its default pause for a zero hint.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("oracle: rate limited, retry after %s: %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("oracle: rate limited: %v", e.Err)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// ResponseShapeError reports an oracle reply that survived transport but
// did not decode into the expected shape for its stage.
//
// Raw carries the cleaned reply for logging; callers should truncate it
// before writing it anywhere size-sensitive.
type ResponseShapeError struct {
	Stage string
	Raw   string
	Err   error
}

func (e *ResponseShapeError) Error() string {
	return fmt.Sprintf("oracle: %s reply did not match expected shape: %v", e.Stage, e.Err)
}

func (e *ResponseShapeError) Unwrap() error { return e.Err }

// ExhaustedRetriesError reports that every attempt was rejected with a
// rate limit. Last is the final *RateLimitedError.
type ExhaustedRetriesError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("oracle: exhausted %d attempts, still rate limited: %v", e.Attempts, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.Last }
