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
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/TesseraAI/tessera/services/enrich/config"
)

// commandContext carries lazily-loaded shared state across subcommands.
// Config loads at most once per invocation; every command sees the same
// instance, so flag overrides applied by one RunE stay visible.
type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads the configuration on first call: from the --config file
// when the flag is set, otherwise through the ENRICH_CONFIG/defaults chain.
func (c *commandContext) ensureConfig(ctx context.Context) (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if path != "" {
			c.config, c.configErr = config.LoadFile(ctx, path)
			return
		}
		c.config, c.configErr = config.GetConfig(ctx)
	})
	return c.config, c.configErr
}

// shouldSkipConfig reports whether the command (or any ancestor) opted out of
// the config load in PersistentPreRunE via the skipConfigLoad annotation.
func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
