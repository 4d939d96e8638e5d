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
	"strings"
)

// CleanResponse strips decoration from a raw oracle reply so the remainder
// can be handed to a JSON decoder.
//
// Description:
//
//	Models decorate their output in predictable ways: Markdown code fences
//	(with or without a "json" language tag) and reasoning traces wrapped in
//	<think>...</think> blocks. This removes one layer of that decoration:
//	a leading fence is cut, OR everything up to the closing think tag is
//	dropped, then a trailing fence is cut and the result trimmed.
//
//	The fence and think cases are mutually exclusive on the leading edge:
//	a reply starting with ``` is treated as fenced even if a think block
//	appears inside it.
//
// Inputs:
//   - raw: The oracle reply text. May be empty.
//
// Outputs:
//   - string: The reply with decoration removed and whitespace trimmed.
//     Never adds content; an undecorated reply passes through unchanged.
//
// Thread Safety: This function is safe for concurrent use.
func CleanResponse(raw string) string {
	s := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(s, "```json"):
		s = s[len("```json"):]
	case strings.HasPrefix(s, "```"):
		s = s[len("```"):]
	case strings.Contains(s, "<think>"):
		if _, after, ok := strings.Cut(s, "</think>"); ok {
			s = after
		}
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
