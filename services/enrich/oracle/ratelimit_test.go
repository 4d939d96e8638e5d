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
	"testing"
)

func TestRequestLimiter_NoLimitConfigured(t *testing.T) {
	rl := NewRequestLimiter(0)

	for i := 0; i < 100; i++ {
		ok, _ := rl.Allow()
		if !ok {
			t.Fatal("limiter with no limit should always allow")
		}
	}
}

func TestRequestLimiter_NilReceiverAllows(t *testing.T) {
	var rl *RequestLimiter

	ok, retryAfter := rl.Allow()
	if !ok {
		t.Error("nil limiter should always allow")
	}
	if retryAfter != 0 {
		t.Errorf("retryAfter = %v, want 0", retryAfter)
	}
}

func TestRequestLimiter_WithinLimit(t *testing.T) {
	rl := NewRequestLimiter(5)

	for i := 0; i < 5; i++ {
		ok, _ := rl.Allow()
		if !ok {
			t.Errorf("request %d should be within limit", i+1)
		}
	}
}

func TestRequestLimiter_ExceedsLimit(t *testing.T) {
	rl := NewRequestLimiter(3)

	for i := 0; i < 3; i++ {
		ok, _ := rl.Allow()
		if !ok {
			t.Errorf("request %d should be within limit", i+1)
		}
	}

	ok, retryAfter := rl.Allow()
	if ok {
		t.Error("request should be rate limited")
	}
	if retryAfter <= 0 {
		t.Errorf("retryAfter should be positive, got %v", retryAfter)
	}
}

func TestRequestLimiter_RejectionDoesNotConsume(t *testing.T) {
	rl := NewRequestLimiter(1)

	rl.Allow()
	for i := 0; i < 5; i++ {
		ok, _ := rl.Allow()
		if ok {
			t.Fatal("request should stay rate limited inside the window")
		}
	}
}
