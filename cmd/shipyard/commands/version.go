// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/shipyard/cmd/shipyard/cli"
	"github.com/bureau-foundation/shipyard/lib/version"
)

type versionParams struct {
	cli.JSONOutput
}

type versionOutput struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Binary  string `json:"binary,omitempty"`
	Digest  string `json:"digest,omitempty"`
}

func versionCommand() *cli.Command {
	var params versionParams
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("version", &params)
		},
		Run: func(_ context.Context, _ []string, logger *slog.Logger) error {
			output := versionOutput{Version: version.Version, Commit: version.GitCommit}
			digest, binary, err := version.SelfDigest()
			if err != nil {
				logger.Debug("hashing own binary failed", "error", err)
			} else {
				output.Digest = digest
				output.Binary = binary
			}
			if done, err := params.EmitJSON(output); done {
				return err
			}
			fmt.Printf("shipyard %s\n", version.Full())
			if output.Digest != "" {
				fmt.Printf("binary   %s\n", output.Digest)
			}
			return nil
		},
	}
}
