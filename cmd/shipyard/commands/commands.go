// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the shipyard command tree: the full pipeline
// run, one command per stage, and the inspection commands (layout,
// doctor, history, version).
package commands

import (
	"github.com/bureau-foundation/shipyard/cmd/shipyard/cli"
	"github.com/bureau-foundation/shipyard/lib/pipeline"
)

// Root builds and returns the complete shipyard command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "shipyard",
		Description: `Shipyard: build-and-publish pipeline.

Synchronizes an upstream source tree, strips its version-control
metadata, compiles it, packages and signs the artifacts, and publishes
the versioned workspace to a hosted git repository.`,
		Subcommands: []*cli.Command{
			runCommand(),
			stageCommand(pipeline.StageSync, "sync", "Clone or update the upstream source tree"),
			stageCommand(pipeline.StageSanitize, "sanitize", "Remove version-control metadata from the source tree"),
			stageCommand(pipeline.StageCompile, "build", "Compile the enabled targets"),
			stageCommand(pipeline.StagePackage, "package", "Copy build outputs into the install root"),
			stageCommand(pipeline.StageSign, "sign", "Sign the installed executables and libraries"),
			stageCommand(pipeline.StagePublish, "publish", "Commit and push the versioned workspace"),
			layoutCommand(),
			doctorCommand(),
			historyCommand(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Run every enabled stage",
				Command:     "shipyard run --config shipyard.yaml",
			},
			{
				Description: "Rebuild without signing or publishing",
				Command:     "shipyard run --sign=false --publish=false",
			},
			{
				Description: "Check the environment and create missing roots",
				Command:     "shipyard doctor --fix",
			},
		},
	}
}
