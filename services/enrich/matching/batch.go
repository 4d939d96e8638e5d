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

// labelTokenMargin covers the "- " bullet, the newline, and tokenizer
// boundary effects when a label is spliced into a prompt list.
const labelTokenMargin = 5

// BatchLabelsByTokens splits concept labels into batches that fit a prompt
// token budget.
//
// Description:
//
//	The overhead argument is the token cost of the surrounding prompt with
//	an empty label list; what remains of maxTokens is available for
//	labels. Every label lands in exactly one batch, in input order. A
//	label that alone exceeds the available budget still gets its own
//	batch: dropping concepts silently would be worse than an oversized
//	prompt, which the API rejects loudly.
//
// Inputs:
//   - labels: Concept labels in pool order.
//   - counter: Tokenizer for the target model.
//   - maxTokens: Total prompt budget.
//   - overhead: Token cost of the prompt scaffolding around the list.
//
// Outputs:
//   - [][]string: Non-empty batches covering all labels, or nil for no labels.
func BatchLabelsByTokens(labels []string, counter TokenCounter, maxTokens, overhead int) [][]string {
	available := maxTokens - overhead
	if available < 0 {
		available = 0
	}

	var batches [][]string
	var current []string
	currentTokens := 0

	for _, label := range labels {
		cost := counter.Count(label) + labelTokenMargin
		if currentTokens+cost > available && len(current) > 0 {
			batches = append(batches, current)
			current = nil
			currentTokens = 0
		}
		current = append(current, label)
		currentTokens += cost
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
