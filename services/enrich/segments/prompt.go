// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package segments

import (
	"fmt"
	"strings"
)

// Prompt wording is tuned against gpt-4o-mini on Dutch oral history
// material. Change it only with a side-by-side evaluation run; small
// edits shift segment boundaries and selections.

// System messages sent alongside each prompt kind.
const (
	segmentationSystem = "You help to split interview transcripts into segments."
	selectionSystem    = "You help determine which interview segments contain valuable content about WW2."
	metadataSystem     = "You help to extract metadata from interview transcription."
	titleSystem        = "You create short titles for interview segments"
)

// defaultIntervieweeName stands in when no name could be extracted; titles
// then read "Ooggetuige vertelt over ...".
const defaultIntervieweeName = "Ooggetuige"

const segmentationPromptTemplate = `Below you will find a full transcript of an interview in Dutch with timestamps in seconds.
Split this transcript into relevant segments according to the following rules:

Rule 1: A segment is based on the following definition: A segment is a coherent portion of an interview that focuses on questions related to one main topic or theme, usually introduced by a question from the interviewer. It includes the interviewer’s question and any directly related answers or follow‑up questions that stay on the same topic. A segment must be self‑contained: it does not refer to content of a previous segment or need any information from other segments to be fully understood.

Rule 2: A new segment begins only when there is a clear change of topic or a completely new question that shifts the focus of the conversation to a different topic. Follow‑up questions that stay on the same topic are part of the same segment.

Rule 3: Segments are between 1 minute and 5 minutes long.

Rule 4: There must be no overlap between segments and no captions left unassigned.

Rule 5: The output must always be a JSON list of objects, where each object contains:
- "caption_indices": the list of indices of the captions that belong to that segment.

Rule 6: You must always validate that the segments created are not too short or too long and are in accordance with the definition defined in rule 1.

Verify for each new segment whether its first question introduces a completely new topic. If not, merge it with the previous segment.

Output format (strictly):

[
{
    "caption_indices": [0,1,2,3]
},
{
    "caption_indices": [4,5,6,7,8]
}
]

Do not give any introduction, explanation, comments or closing statements. Just valid JSON.

---

Here is the transcription with captions (index, starttime, text):

%s

%s

---

Return *only* the JSON output without any additional text or explanation. Do not include any text before or after the JSON.`

const selectionPromptTemplate = `You are given several text segments from an interview.
Each segment is shown with an index in square brackets, for example [0].

Select only those segments that are meaningful and relevant to **World War II**,
strictly following these rules:

Rule 1: A segment must contain substantial content directly related to World War II:
  - events, historical situations
  - organizations, groups, or locations
  - personal experiences, eyewitness accounts
  - names of relevant people or places

Rule 2: The topic related to World War II must be explicitly mentioned or clearly
the main focus of the segment. Segments where the connection to World War II
is vague or only implied must be excluded.

Rule 3: A segment must be self-contained and make sense on its own without needing information from other segments.

Rule 4: Exclude segments that:
  - only mention the topic without adding new or informative content
  - only consist of short answers like “I don’t remember” or vague statements
  - consist only of a question without any meaningful explanation or answer

Rule 5: Do not select segments that are mostly meta-discussion (about the interview itself) or administrative details.

Rule 6: Include a segment only if it clearly contributes new, concrete, or detailed information about World War II.

Possible outcomes:
- None of the segments are relevant
- Some of the segments are relevant
- All of the segments are relevant

Output format:
Return a valid JSON object in this format:

{
  "relevant_segments": [0, 2, 5, 6]
}

Do not add any explanations, commentary, or text outside of the JSON.

---

Segments:
%s`

const namePromptTemplate = `Below you will find a transcript of the first 5 minutes of an interview in Dutch with timestamps in seconds.

Your job is to extract the full name of the interviewee from the transcript.

Do not give any introduction, explanation, comments or closing statements. Just valid JSON in the following format:

[
  {
    "name": "Jan Jansen"
  }
]

---

Here is the transcription with captions (index, starttime, text):

%s

---

Return *only* the JSON output without any additional text or explanation. Do not include any text before or after the JSON.`

const titlePromptTemplate = `Your task is to create a short, neutral, and informative Dutch title (maximum 12 words)
for the following interview segment from a Dutch World War II oral history collection.

Rules:
- The title must always start with: "%s vertelt over ..."
- Use exactly ONE main theme in the title, based on the text.
- Select that main theme using your own judgement and, if relevant, the Key concepts provided.
- The title must be in Dutch.
- Output strictly valid JSON in this exact format (no code block markers, no explanations):
{"title": "Jan Jansen vertelt over de Razzia van Rotterdam"}

Input:
Interviewee: %s
Transcript text: %s
Key concepts: %s

Only return the JSON, without explanations or extra text.`

// BuildSegmentationPrompt renders the splitting prompt over one caption
// window. indexOffset makes the bracketed indices global to the transcript
// so replies can be resolved against the full caption list. variationSuffix
// is injected on retries to nudge a stalled oracle; pass "" otherwise.
func BuildSegmentationPrompt(captions []Caption, indexOffset int, variationSuffix string) string {
	return fmt.Sprintf(segmentationPromptTemplate, captionBlock(captions, indexOffset), variationSuffix)
}

// BuildSelectionPrompt renders the relevance-selection prompt over one batch
// of segments. Called with no segments it yields the scaffolding alone,
// which is how the batcher measures overhead.
func BuildSelectionPrompt(segments []Segment) string {
	numbered := make([]string, len(segments))
	for i, seg := range segments {
		numbered[i] = fmt.Sprintf("[%d] %s", i, flattenText(seg.Text))
	}
	return fmt.Sprintf(selectionPromptTemplate, strings.Join(numbered, "\n\n"))
}

// BuildNamePrompt renders the interviewee-name prompt over the opening
// captions.
func BuildNamePrompt(captions []Caption) string {
	return fmt.Sprintf(namePromptTemplate, captionBlock(captions, 0))
}

// BuildTitlePrompt renders the title prompt for one enriched segment. An
// empty name falls back to defaultIntervieweeName.
func BuildTitlePrompt(name, text string, conceptNames []string) string {
	if strings.TrimSpace(name) == "" {
		name = defaultIntervieweeName
	}
	return fmt.Sprintf(titlePromptTemplate, name, name, text, strings.Join(conceptNames, ", "))
}

// captionBlock renders captions one per line as "[index][start s] text".
func captionBlock(captions []Caption, indexOffset int) string {
	lines := make([]string, len(captions))
	for i, c := range captions {
		lines[i] = fmt.Sprintf("[%d][%.2fs] %s", i+indexOffset, c.Start, flattenText(c.Text))
	}
	return strings.Join(lines, "\n")
}
