// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TesseraAI/tessera/services/enrich/config"
)

// cliSampleExport is a miniature N-Triples export: one descriptive top
// concept, one camp and one location.
const cliSampleExport = `<https://data.niod.nl/WO2_Thesaurus/2086> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://www.w3.org/2004/02/skos/core#Concept> .
<https://data.niod.nl/WO2_Thesaurus/2086> <http://www.w3.org/2004/02/skos/core#prefLabel> "Jodenvervolging"@nl .
<https://data.niod.nl/WO2_Thesaurus/2086> <http://www.w3.org/2004/02/skos/core#scopeNote> "De vervolging van Joden in bezet gebied."@nl .
<https://data.niod.nl/WO2_Thesaurus/2086> <http://www.w3.org/2004/02/skos/core#topConceptOf> <https://data.niod.nl/WO2_Thesaurus/2000> .
<https://data.niod.nl/WO2_Thesaurus/kampen/101> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://www.w3.org/2004/02/skos/core#Concept> .
<https://data.niod.nl/WO2_Thesaurus/kampen/101> <http://www.w3.org/2004/02/skos/core#prefLabel> "Westerbork"@nl .
<https://data.niod.nl/WO2_Thesaurus/kampen/101> <http://www.w3.org/2004/02/skos/core#inScheme> <https://data.niod.nl/WO2_Thesaurus/kampen/3650> .
<https://data.niod.nl/WO2_Thesaurus/loc/7> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://www.w3.org/2004/02/skos/core#Concept> .
<https://data.niod.nl/WO2_Thesaurus/loc/7> <http://www.w3.org/2004/02/skos/core#prefLabel> "Amsterdam"@nl .
<https://data.niod.nl/WO2_Thesaurus/loc/7> <http://www.w3.org/2004/02/skos/core#inScheme> <https://data.niod.nl/WO2_Thesaurus/6564> .
`

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// writeEnrichConfig writes a config file pointing the thesaurus at the fake
// source and caching in memory, so CLI runs stay hermetic.
func writeEnrichConfig(t *testing.T, dir, sourceURL string) string {
	t.Helper()
	content := fmt.Sprintf(`thesaurus:
  source_url: "%s"
pipeline:
  data_folder: "%s"
  output_folder: "%s"
storage:
  in_memory: true
`, sourceURL, filepath.Join(dir, "data"), filepath.Join(dir, "out"))

	path := filepath.Join(dir, "enrich.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// normalizeSpaces collapses runs of whitespace so assertions do not depend
// on column alignment.
func normalizeSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func TestCLI_HelpListsCommands(t *testing.T) {
	stdout, _, err := runCLI(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, stdout, "enrich")
	assert.Contains(t, stdout, "thesaurus")
	assert.Contains(t, stdout, "--config")
}

func TestCLI_NoArgsShowsHelp(t *testing.T) {
	t.Cleanup(config.ResetConfig)

	stdout, _, err := runCLI(t)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Usage:")
	assert.Contains(t, stdout, "tessera")
}

func TestCLI_UnknownCommandFails(t *testing.T) {
	_, _, err := runCLI(t, "frobnicate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestCLI_VersionSkipsConfigLoad(t *testing.T) {
	// Point the config chain at a file that does not exist; version must
	// still work because it never loads config.
	t.Setenv("ENRICH_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	stdout, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "tessera")
}

func TestCLI_MissingConfigFileFails(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	_, _, err := runCLI(t, "thesaurus", "stats", "--config", missing)
	require.Error(t, err)
}

func TestCLI_ThesaurusStats_CountsPools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, cliSampleExport)
	}))
	defer srv.Close()

	cfgPath := writeEnrichConfig(t, t.TempDir(), srv.URL)

	stdout, _, err := runCLI(t, "thesaurus", "stats", "--config", cfgPath)
	require.NoError(t, err)

	out := normalizeSpaces(stdout)
	assert.Contains(t, out, "concepts: 3")
	assert.Contains(t, out, "descriptive: 1")
	assert.Contains(t, out, "descriptive tops: 1")
	assert.Contains(t, out, "camps and locations: 2")
}

func TestCLI_ThesaurusRefresh_FetchesSource(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, cliSampleExport)
	}))
	defer srv.Close()

	cfgPath := writeEnrichConfig(t, t.TempDir(), srv.URL)

	stdout, _, err := runCLI(t, "thesaurus", "refresh", "--config", cfgPath)
	require.NoError(t, err)

	assert.Equal(t, int64(1), hits.Load())
	assert.Contains(t, stdout, "Refreshed thesaurus from "+srv.URL)
	assert.Contains(t, normalizeSpaces(stdout), "concepts: 3")
}

func TestCLI_ThesaurusSourceFailureSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfgPath := writeEnrichConfig(t, t.TempDir(), srv.URL)

	_, _, err := runCLI(t, "thesaurus", "refresh", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
