// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"slices"

	"github.com/bureau-foundation/shipyard/lib/config"
	"github.com/bureau-foundation/shipyard/lib/workspace"
)

// RequiredTools lists the programs the named stages cannot run
// without: git for sync and publish, and the compiler program of every
// enabled compile target. The signer and the repository creation tool
// are optional and never listed.
func RequiredTools(cfg *config.PipelineConfig, stages []string) []string {
	var tools []string
	add := func(name string) {
		if name != "" && !slices.Contains(tools, name) {
			tools = append(tools, name)
		}
	}
	if slices.Contains(stages, StageSync) || slices.Contains(stages, StagePublish) {
		add("git")
	}
	if slices.Contains(stages, StageCompile) {
		for _, target := range workspace.Targets {
			if !cfg.Capabilities.TargetEnabled(target) {
				continue
			}
			if command := cfg.Compile.Targets[target].Command; len(command) > 0 {
				add(command[0])
			}
		}
	}
	return tools
}
