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

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "undecorated passthrough",
			raw:  `[{"concept": "Westerbork", "score": 0.9}]`,
			want: `[{"concept": "Westerbork", "score": 0.9}]`,
		},
		{
			name: "json fence",
			raw:  "```json\n[{\"concept\": \"Westerbork\", \"score\": \"0.9\"}]\n```",
			want: `[{"concept": "Westerbork", "score": "0.9"}]`,
		},
		{
			name: "bare fence",
			raw:  "```\n{\"title\": \"Jan vertelt over de oorlog\"}\n```",
			want: `{"title": "Jan vertelt over de oorlog"}`,
		},
		{
			name: "think block",
			raw:  "<think>The segment mentions a camp.</think>\n[\"Westerbork\"]",
			want: `["Westerbork"]`,
		},
		{
			name: "think block without close tag is left alone",
			raw:  "<think>never closed [\"Westerbork\"]",
			want: "<think>never closed [\"Westerbork\"]",
		},
		{
			name: "leading fence wins over embedded think block",
			raw:  "```json\n{\"note\": \"<think>kept</think>\"}\n```",
			want: `{"note": "<think>kept</think>"}`,
		},
		{
			name: "surrounding whitespace trimmed",
			raw:  "  \n\t[]\n  ",
			want: "[]",
		},
		{
			name: "trailing fence without leading fence",
			raw:  "[]\n```",
			want: "[]",
		},
		{
			name: "empty input",
			raw:  "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanResponse(tt.raw)
			if got != tt.want {
				t.Errorf("CleanResponse(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
