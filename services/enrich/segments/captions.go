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
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Caption is one WebVTT cue: a time range in seconds and its text.
type Caption struct {
	Start float64
	End   float64
	Text  string
}

// LoadVTT reads a WebVTT transcript from disk. See ParseVTT.
func LoadVTT(path string) ([]Caption, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("segments: open transcript: %w", err)
	}
	defer f.Close()
	return ParseVTT(f)
}

// ParseVTT parses a WebVTT transcript into captions.
//
// Description:
//
//	The parser covers the shape speech-to-text tools emit: a WEBVTT header,
//	blank-line separated cues, one timing line per cue. Text lines accumulate
//	until a blank line closes the cue. Caption text is NFC-normalized so
//	Dutch diacritics arrive as single codepoints; word-boundary matching
//	downstream depends on that.
//
// Inputs:
//   - r: The transcript. The first line must be the WEBVTT header.
//
// Outputs:
//   - []Caption: Cues in file order.
//   - error: Non-nil on a missing header or an unparseable timing line.
func ParseVTT(r io.Reader) ([]Caption, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("segments: read transcript: %w", err)
		}
		return nil, fmt.Errorf("segments: transcript is empty")
	}
	if strings.TrimSpace(sc.Text()) != "WEBVTT" {
		return nil, fmt.Errorf("segments: transcript does not start with WEBVTT header")
	}

	var (
		captions []Caption
		timing   string
		text     []string
	)

	flush := func() error {
		if timing == "" || len(text) == 0 {
			return nil
		}
		start, end, err := parseCueTiming(timing)
		if err != nil {
			return err
		}
		captions = append(captions, Caption{
			Start: start,
			End:   end,
			Text:  norm.NFC.String(strings.Join(text, "\n")),
		})
		timing = ""
		text = nil
		return nil
	}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			if err := flush(); err != nil {
				return nil, err
			}
		case strings.Contains(line, "-->"):
			timing = line
		default:
			text = append(text, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("segments: read transcript: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return captions, nil
}

func parseCueTiming(line string) (start, end float64, err error) {
	from, to, ok := strings.Cut(line, "-->")
	if !ok {
		return 0, 0, fmt.Errorf("segments: bad cue timing %q", line)
	}
	if start, err = timestampSeconds(strings.TrimSpace(from)); err != nil {
		return 0, 0, err
	}
	if end, err = timestampSeconds(strings.TrimSpace(to)); err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// timestampSeconds converts "hh:mm:ss.mmm" to seconds. Leading fields are
// optional; "mm:ss.mmm" and "ss.mmm" pad with zero hours and minutes.
func timestampSeconds(ts string) (float64, error) {
	fields := strings.Split(strings.ReplaceAll(ts, ".", ":"), ":")
	if len(fields) > 4 {
		return 0, fmt.Errorf("segments: bad timestamp %q", ts)
	}
	parts := make([]int, 4)
	offset := 4 - len(fields)
	for i, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil {
			return 0, fmt.Errorf("segments: bad timestamp %q: %w", ts, err)
		}
		parts[offset+i] = n
	}
	hours, minutes, seconds, millis := parts[0], parts[1], parts[2], parts[3]
	return float64(hours)*3600 + float64(minutes)*60 + float64(seconds) + float64(millis)/1000, nil
}
