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
	"sync"
	"time"
)

// RequestLimiter implements a sliding window limiter for oracle requests.
//
// Description:
//
//	Caps the number of oracle calls per minute using a sliding window of
//	timestamps. When the cap is exceeded, returns the duration until the
//	next request can be made. This is local pacing on top of whatever the
//	provider enforces; it exists so a batch run against a metered endpoint
//	does not spend its whole retry budget on 429 responses.
//
// Thread Safety: Safe for concurrent use via sync.Mutex.
type RequestLimiter struct {
	mu     sync.Mutex
	limit  int
	window []int64 // timestamps in Unix milliseconds
}

// NewRequestLimiter creates a limiter allowing perMinute requests per
// sliding minute. A perMinute of 0 disables limiting.
func NewRequestLimiter(perMinute int) *RequestLimiter {
	return &RequestLimiter{limit: perMinute}
}

// Allow checks whether a request is within the rate limit.
//
// Description:
//
//	If the request is allowed, records the timestamp.
//
// Outputs:
//   - bool: True if the request is allowed.
//   - time.Duration: If rate-limited, how long to wait before retrying.
//     Zero if allowed.
func (r *RequestLimiter) Allow() (bool, time.Duration) {
	if r == nil {
		return true, 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.limit == 0 {
		return true, 0 // no limit configured
	}

	now := time.Now().UnixMilli()
	windowStart := now - 60_000 // 1 minute ago

	// Prune expired entries
	pruned := make([]int64, 0, len(r.window))
	for _, ts := range r.window {
		if ts > windowStart {
			pruned = append(pruned, ts)
		}
	}

	if len(pruned) >= r.limit {
		// Rate limited: calculate retry-after from the oldest entry
		oldestInWindow := pruned[0]
		retryAfter := time.Duration(oldestInWindow+60_000-now) * time.Millisecond
		r.window = pruned
		return false, retryAfter
	}

	// Allowed: record this request
	pruned = append(pruned, now)
	r.window = pruned
	return true, 0
}
