// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package thesaurus

// =============================================================================
// N-Triples scanning
// =============================================================================
//
// The NIOD export is line-oriented N-Triples: one triple per line, subjects
// and predicates as IRIs, objects as IRIs or literals with optional language
// tags or datatypes. The loader needs six predicates from it and nothing
// else, so this is a focused scanner rather than a general RDF stack: no
// Turtle shorthand, no graph API, no inference. Lines it cannot read are
// reported with their line number; the loader treats that as a corrupt
// download.

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// triple is one parsed N-Triples statement. Object holds the IRI or the
// decoded literal text; Lang carries the lowercased language tag when the
// object is a tagged literal.
type triple struct {
	Subject   string
	Predicate string
	Object    string
	Lang      string
	IsLiteral bool
}

// scanTriples reads N-Triples from r line by line, calling fn for each
// triple. Blank lines and comment lines are skipped. A non-nil error from
// fn stops the scan and is returned as-is.
func scanTriples(r io.Reader, fn func(t triple) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		t, ok, err := parseTripleLine(scanner.Text())
		if err != nil {
			return fmt.Errorf("thesaurus: line %d: %w", lineNo, err)
		}
		if !ok {
			continue
		}
		if err := fn(t); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("thesaurus: read triples: %w", err)
	}
	return nil
}

// parseTripleLine parses a single line. ok is false for blank and comment
// lines.
func parseTripleLine(line string) (t triple, ok bool, err error) {
	s := strings.TrimSpace(line)
	if s == "" || strings.HasPrefix(s, "#") {
		return triple{}, false, nil
	}

	subject, s, err := parseResource(s)
	if err != nil {
		return triple{}, false, fmt.Errorf("subject: %w", err)
	}
	predicate, s, err := parseResource(s)
	if err != nil {
		return triple{}, false, fmt.Errorf("predicate: %w", err)
	}

	t = triple{Subject: subject, Predicate: predicate}
	switch {
	case strings.HasPrefix(s, "<"), strings.HasPrefix(s, "_:"):
		t.Object, s, err = parseResource(s)
	case strings.HasPrefix(s, `"`):
		t.IsLiteral = true
		t.Object, t.Lang, s, err = parseLiteral(s)
	default:
		return triple{}, false, fmt.Errorf("object: unexpected token %q", firstToken(s))
	}
	if err != nil {
		return triple{}, false, fmt.Errorf("object: %w", err)
	}

	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, ".") {
		return triple{}, false, fmt.Errorf("missing terminating dot, got %q", firstToken(s))
	}
	return t, true, nil
}

// parseResource reads an IRI (<...>) or a blank node label (_:name) and
// returns it with the remaining input, leading whitespace trimmed.
func parseResource(s string) (string, string, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "<"):
		end := strings.IndexByte(s, '>')
		if end < 0 {
			return "", "", fmt.Errorf("unterminated IRI %q", firstToken(s))
		}
		return s[1:end], strings.TrimLeft(s[end+1:], " \t"), nil
	case strings.HasPrefix(s, "_:"):
		end := strings.IndexAny(s, " \t")
		if end < 0 {
			end = len(s)
		}
		return s[:end], strings.TrimLeft(s[end:], " \t"), nil
	default:
		return "", "", fmt.Errorf("expected IRI or blank node, got %q", firstToken(s))
	}
}

// parseLiteral reads a quoted literal with N-Triples escapes, plus an
// optional @lang tag or ^^<datatype> suffix. Datatypes are discarded; the
// loader only compares literal text.
func parseLiteral(s string) (text, lang, rest string, err error) {
	var b strings.Builder
	i := 1
	closed := false
	for i < len(s) && !closed {
		c := s[i]
		if c == '"' {
			i++
			closed = true
			continue
		}
		if c != '\\' {
			b.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(s) {
			return "", "", "", fmt.Errorf("dangling escape in literal")
		}
		switch e := s[i+1]; e {
		case 't':
			b.WriteByte('\t')
			i += 2
		case 'n':
			b.WriteByte('\n')
			i += 2
		case 'r':
			b.WriteByte('\r')
			i += 2
		case 'b':
			b.WriteByte('\b')
			i += 2
		case 'f':
			b.WriteByte('\f')
			i += 2
		case '"', '\\', '\'':
			b.WriteByte(e)
			i += 2
		case 'u', 'U':
			width := 4
			if e == 'U' {
				width = 8
			}
			if i+2+width > len(s) {
				return "", "", "", fmt.Errorf("truncated \\%c escape", e)
			}
			code, perr := strconv.ParseUint(s[i+2:i+2+width], 16, 32)
			if perr != nil {
				return "", "", "", fmt.Errorf("bad \\%c escape: %v", e, perr)
			}
			b.WriteRune(rune(code))
			i += 2 + width
		default:
			return "", "", "", fmt.Errorf("unknown escape \\%c", e)
		}
	}
	if !closed {
		return "", "", "", fmt.Errorf("unterminated literal")
	}

	text = b.String()
	rest = s[i:]
	switch {
	case strings.HasPrefix(rest, "@"):
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			end = len(rest)
		}
		lang = strings.ToLower(rest[1:end])
		rest = rest[end:]
	case strings.HasPrefix(rest, "^^"):
		var derr error
		_, rest, derr = parseResource(rest[2:])
		if derr != nil {
			return "", "", "", fmt.Errorf("datatype: %w", derr)
		}
	}
	return text, lang, rest, nil
}

// firstToken shortens s to its first whitespace-delimited token for error
// messages.
func firstToken(s string) string {
	s = strings.TrimSpace(s)
	if end := strings.IndexAny(s, " \t"); end >= 0 {
		s = s[:end]
	}
	if len(s) > 40 {
		s = s[:40] + "..."
	}
	return s
}
