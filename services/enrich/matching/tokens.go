// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package matching

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter reports how many tokens a string costs under the model's
// tokenizer. Batchers use it to keep prompts under the context window.
type TokenCounter interface {
	Count(text string) int
}

// NewTokenCounter returns a counter for the given model name.
//
// Unknown models fall back to the gpt-4o encoding, and when even that is
// unavailable (offline BPE data) a character-count heuristic takes over.
// Both fallbacks log a warning; neither fails. Overestimating slightly is
// harmless here since batch limits are soft targets, not hard caps.
func NewTokenCounter(model string) TokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		slog.Warn("No tokenizer for model, falling back to gpt-4o encoding",
			"model", model, "error", err)
		enc, err = tiktoken.EncodingForModel("gpt-4o")
	}
	if err != nil {
		slog.Warn("Tokenizer unavailable, using character heuristic", "error", err)
		return heuristicCounter{}
	}
	return &tiktokenCounter{enc: enc}
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (t *tiktokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// heuristicCounter approximates GPT-family tokenization at roughly four
// characters per token, rounding up.
type heuristicCounter struct{}

func (heuristicCounter) Count(text string) int {
	return (len(text) + 3) / 4
}
