// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command tessera is the batch CLI for the Tessera enrichment engine.
//
// It enriches WebVTT interview transcripts with concepts from the NIOD WW2
// thesaurus and writes the segment exports next to the input data:
//
//	tessera enrich -i ./interviews -o ./output
//	tessera enrich --watch
//	tessera thesaurus refresh
//	tessera thesaurus stats
//
// Configuration comes from an optional YAML file (--config or ENRICH_CONFIG)
// overlaid on built-in defaults; individual environment variables override
// last. OPENAI_API_KEY must be set for any command that talks to the oracle
// or embedding providers.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
