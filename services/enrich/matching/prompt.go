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
	"fmt"
	"strings"
)

// Prompt wording is tuned against gpt-4o-mini on Dutch oral history
// material. Change it only with a side-by-side evaluation run; small
// edits shift which concepts the oracle selects.

const topDownPromptTemplate = `Below is a fragment from an oral history interview about World War II:

"""%s"""

Below that is a list of controlled vocabulary concepts from a World War II thesaurus.

Your task:
- Identify ALL and ONLY the concepts from the list that represent the **main topics** of this fragment.
- Ignore side remarks, digressions or incidental mentions that are not central to the segment.
- For each selected concept, assign a confidence score between 0 and 1 (1.0 = very certain).
- Use only the concepts exactly as listed. Do not invent or modify concept names.

Rules:
1. Select a concept only if it represents a **key theme or subject of the fragment as a whole**.
2. Do NOT select a concept just because a word or detail appears; ignore passing or side details (e.g., mentioning a Bible does not make religion relevant).
3. If the fragment describes a specific example or event that falls under a broader concept,
   include that broader concept (even if the broader term is not explicitly mentioned) if it is in accordance with rule 1.
4. Do NOT include any concept with a score of 0.5 or lower.
5. Multiple concepts can be selected.
6. For specific named events (e.g., battles, razzias, massacres), select them only if it is
   100%% certain that the fragment refers to that exact event. If there is doubt, leave it out.
7. Never return concepts that are not present in the list.

Output format (JSON only, no explanations):

[
  {
    "concept": "Jodenvervolging",
    "score": 0.92
  },
  {
    "concept": "Deportaties",
    "score": 0.81
  }
]

Concept list:
%s

Important:
- Return ONLY a JSON list as shown, with no explanations, no extra text, and no other fields.`

const validationPromptTemplate = `Below is a fragment from an oral history interview about World War II:

"""%s"""

Below that is a list of concepts from a World War II thesaurus.
Your task is to validate which concepts are clearly relevant to the fragment.

Follow these strict rules:

Rule 1: Only select a concept if the fragment is clearly about that topic.
Rule 2: Do NOT select a concept based on a single incidental word match; it must be central to the fragment.
Rule 3: If a specific event, place, or organization is mentioned, select the concept only if it is unquestionably referring to that concept.
Rule 4: If there is some relevance but you are unsure, you may include the concept with a lower score.
Rule 5: For each validated concept, include a confidence score between 0 and 1 (1.0 = very certain, 0 = very uncertain).

Output must be strictly in this JSON format and nothing else:

[
  {
    "concept": "Concept name",
    "score": 0.85
  },
  {
    "concept": "Another concept",
    "score": 0.65
  }
]

Concept list:
%s

Important:
- Output ONLY the JSON list, with no explanations, no extra text, and no additional fields.`

// BuildTopDownPrompt renders the hierarchy-walk prompt for one batch of
// concept labels. Called with an empty label list it yields the prompt
// scaffolding alone, which is how batchers measure overhead.
func BuildTopDownPrompt(conceptLabels []string, segmentText string) string {
	return fmt.Sprintf(topDownPromptTemplate, segmentText, bulletList(conceptLabels))
}

// BuildValidationPrompt renders the prompt that asks the oracle to confirm
// or reject candidate concepts against the fragment.
func BuildValidationPrompt(segmentText string, conceptLabels []string) string {
	return fmt.Sprintf(validationPromptTemplate, segmentText, bulletList(conceptLabels))
}

func bulletList(labels []string) string {
	lines := make([]string, len(labels))
	for i, label := range labels {
		lines[i] = "- " + label
	}
	return strings.Join(lines, "\n")
}
