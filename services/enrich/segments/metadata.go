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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/TesseraAI/tessera/services/enrich/oracle"
)

// nameWindowMinutes is how much of the transcript opening the name
// extractor gets to see; interviewees introduce themselves early or not at
// all.
const nameWindowMinutes = 5

// ExtractName pulls the interviewee's full name from the transcript
// opening. A reply that does not parse or carries no name yields an empty
// string, not an error; enrichment continues unnamed.
func ExtractName(ctx context.Context, o oracle.Classifier, captions []Caption) (string, error) {
	window := FirstMinutesWindow(captions, nameWindowMinutes)

	reply, err := o.Classify(ctx, metadataSystem, BuildNamePrompt(window))
	if err != nil {
		return "", err
	}

	cleaned := oracle.CleanResponse(reply)
	name, perr := parseNameReply(cleaned)
	if perr != nil {
		segmentMalformedRepliesTotal.WithLabelValues("name").Inc()
		slog.Warn("Name reply did not parse, continuing unnamed",
			"error", &oracle.ResponseShapeError{Stage: "name", Raw: cleaned, Err: perr})
		return "", nil
	}
	return name, nil
}

// parseNameReply accepts the documented list form and the bare object form
// the oracle sometimes falls back to.
func parseNameReply(cleaned string) (string, error) {
	raw := []byte(cleaned)

	var list []struct {
		Name *string `json:"name"`
	}
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if item.Name != nil {
				return *item.Name, nil
			}
		}
		return "", nil
	}

	var obj struct {
		Name *string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Name != nil {
			return *obj.Name, nil
		}
		return "", nil
	}

	return "", fmt.Errorf("segments: name reply is neither an object nor a list of objects")
}

// GenerateTitle asks for a short Dutch title over one enriched segment. A
// reply that does not parse yields a nil title; the export keeps the
// segment either way.
func GenerateTitle(ctx context.Context, o oracle.Classifier, name, text string, conceptNames []string) (*string, error) {
	reply, err := o.Classify(ctx, titleSystem, BuildTitlePrompt(name, text, conceptNames))
	if err != nil {
		return nil, err
	}

	cleaned := oracle.CleanResponse(reply)
	var obj struct {
		Title *string `json:"title"`
	}
	if uerr := json.Unmarshal([]byte(cleaned), &obj); uerr != nil {
		segmentMalformedRepliesTotal.WithLabelValues("title").Inc()
		slog.Warn("Title reply did not parse, leaving segment untitled",
			"error", &oracle.ResponseShapeError{Stage: "title", Raw: cleaned, Err: uerr})
		return nil, nil
	}
	return obj.Title, nil
}

// AddTitles fills SegmentTitle on each export, one oracle call per segment.
// Oracle failures abort; parse failures just leave that title null.
func AddTitles(ctx context.Context, o oracle.Classifier, exports []EnrichedSegmentExport) error {
	for i := range exports {
		names := make([]string, len(exports[i].MatchedConcepts))
		for j, mc := range exports[i].MatchedConcepts {
			names[j] = mc.Name
		}

		title, err := GenerateTitle(ctx, o, exports[i].IntervieweeName, exports[i].Text, names)
		if err != nil {
			return err
		}
		exports[i].SegmentTitle = title
	}
	return nil
}
