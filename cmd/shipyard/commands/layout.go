// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/shipyard/cmd/shipyard/cli"
	"github.com/bureau-foundation/shipyard/lib/pipeline"
	"github.com/bureau-foundation/shipyard/lib/tool"
	"github.com/bureau-foundation/shipyard/lib/workspace"
)

type layoutParams struct {
	configParams
	cli.JSONOutput
}

// layoutOutput is the JSON shape of "shipyard layout".
type layoutOutput struct {
	workspace.Layout
	Excludes []string `json:"publish_excludes"`
	Config   string   `json:"config,omitempty"`

	// SourceState and VersionedState are the checkout probes of the
	// source tree and the versioned root.
	SourceState    workspace.State `json:"source_state"`
	VersionedState workspace.State `json:"versioned_state"`
}

func layoutCommand() *cli.Command {
	var params layoutParams
	return &cli.Command{
		Name:    "layout",
		Summary: "Print the workspace layout",
		Description: `Print every directory a run reads or writes, derived from the
configuration and overrides, plus the paths publishing leaves out of
the versioned root.`,
		Usage: "shipyard layout [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("layout", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			cfg, err := params.read()
			if err != nil {
				return err
			}
			layout, err := cfg.Layout()
			if err != nil {
				return &cli.UsageError{Err: err}
			}
			output := layoutOutput{
				Layout:   layout,
				Excludes: pipeline.Excludes(layout),
				Config:   cfg.Path(),
			}
			prober := workspace.NewProber(tool.NewExec(logger))
			if output.SourceState, err = prober.Checkout(ctx, layout.SourceTree); err != nil {
				return err
			}
			if output.VersionedState, err = prober.Checkout(ctx, layout.Versioned); err != nil {
				return err
			}
			if done, err := params.EmitJSON(output); done {
				return err
			}
			return writeLayout(os.Stdout, output)
		},
	}
}

func writeLayout(w io.Writer, output layoutOutput) error {
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	config := output.Config
	if config == "" {
		config = "(defaults)"
	}
	rows := [][2]string{
		{"config", config},
		{"source root", output.Source},
		{"source tree", fmt.Sprintf("%s (%s)", output.SourceTree, output.SourceState)},
		{"build root", output.Build},
		{"build: native", output.BuildDriver},
		{"build: cli", output.BuildCLI},
		{"build: gui", output.BuildGUI},
		{"install root", output.Install},
		{"install: bin", output.InstallBin},
		{"install: lib", output.InstallLib},
		{"versioned root", fmt.Sprintf("%s (%s)", output.Versioned, output.VersionedState)},
		{"state", output.StateDir},
	}
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1])
	}
	for _, exclude := range output.Excludes {
		fmt.Fprintf(tw, "publish excludes\t%s\n", exclude)
	}
	return tw.Flush()
}
