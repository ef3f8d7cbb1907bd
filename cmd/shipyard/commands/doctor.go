// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/shipyard/cmd/shipyard/cli"
	"github.com/bureau-foundation/shipyard/cmd/shipyard/cli/doctor"
	"github.com/bureau-foundation/shipyard/lib/config"
	"github.com/bureau-foundation/shipyard/lib/pipeline"
	"github.com/bureau-foundation/shipyard/lib/tool"
	"github.com/bureau-foundation/shipyard/lib/workspace"
)

type doctorParams struct {
	configParams
	cli.JSONOutput
	Fix    bool `flag:"fix" desc:"create missing directories"`
	DryRun bool `flag:"dry-run" desc:"with --fix, show what would be repaired"`
	Remote bool `flag:"remote" desc:"also probe the publish remote over the network"`
}

func doctorCommand() *cli.Command {
	var params doctorParams
	return &cli.Command{
		Name:    "doctor",
		Summary: "Check the configuration and environment",
		Description: `Check everything a run depends on: the configuration, the required
and optional tools, the workspace roots, and the history store.

With --fix, missing roots and the state directory are created. Exits 1
when any check still fails.`,
		Usage: "shipyard doctor [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("doctor", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			cfg, err := params.read()
			if err != nil {
				return err
			}
			check := &checker{cfg: cfg, runner: tool.NewExec(logger), lookPath: tool.Available, remote: params.Remote}

			results := check.run(ctx)
			if params.Fix {
				failed := make(map[string]bool)
				for _, result := range results {
					if result.Status == doctor.StatusFail {
						failed[result.Name] = true
					}
				}
				doctor.ExecuteFixes(ctx, results, params.DryRun)
				if !params.DryRun {
					// Re-check: one fix can repair several checks.
					results = check.run(ctx)
					doctor.MarkRepaired(results, failed)
				}
			}

			if done, err := params.EmitJSON(doctor.BuildJSON(results, params.DryRun)); done {
				if err != nil {
					return err
				}
				if doctor.AnyFailed(results) {
					return &cli.ExitError{Code: 1}
				}
				return nil
			}
			return doctor.PrintChecklist(os.Stdout, results, params.Fix, params.DryRun)
		},
	}
}

// checker evaluates the doctor checks against one configuration.
type checker struct {
	cfg      *config.PipelineConfig
	runner   tool.Runner
	lookPath func(name string) bool
	remote   bool
}

func (c *checker) run(ctx context.Context) []doctor.Result {
	var results []doctor.Result

	if err := c.cfg.Validate(); err != nil {
		results = append(results, doctor.Fail("configuration", err.Error()))
	} else if c.cfg.Path() == "" {
		results = append(results, doctor.Pass("configuration", "built-in defaults"))
	} else {
		results = append(results, doctor.Pass("configuration", c.cfg.Path()))
	}

	layout, err := c.cfg.Layout()
	if err != nil {
		return append(results, doctor.Skip("workspace", "layout unavailable: "+err.Error()))
	}

	for _, name := range pipeline.RequiredTools(c.cfg, pipeline.Stages) {
		results = append(results, c.requiredTool(name))
	}
	results = append(results, c.signer(), c.creator())

	roots := []struct {
		name string
		path string
	}{
		{"source root", layout.Source},
		{"build root", layout.Build},
		{"install root", layout.Install},
		{"versioned root", layout.Versioned},
		{"state directory", layout.StateDir},
	}
	for _, root := range roots {
		results = append(results, checkDirectory(root.name, root.path))
	}

	results = append(results, c.checkout(ctx, layout), c.publishRemote(ctx), c.history(ctx))
	return results
}

func (c *checker) requiredTool(name string) doctor.Result {
	check := "tool: " + name
	if c.lookPath(name) {
		return doctor.Pass(check, "found")
	}
	return doctor.Fail(check, "not found in PATH")
}

func (c *checker) signer() doctor.Result {
	const name = "signing tool"
	if !c.cfg.Capabilities.Sign {
		return doctor.Skip(name, "signing is off")
	}
	if len(c.cfg.Sign.Command) == 0 {
		return doctor.Fail(name, "sign.command is empty")
	}
	if !c.lookPath(c.cfg.Sign.Command[0]) {
		return doctor.Warn(name, c.cfg.Sign.Command[0]+" not found; artifacts will be published unsigned")
	}
	return doctor.Pass(name, c.cfg.Sign.Command[0])
}

func (c *checker) creator() doctor.Result {
	const name = "repository creator"
	publish := c.cfg.Publish
	if !c.cfg.Capabilities.Publish {
		return doctor.Skip(name, "publishing is off")
	}
	hasToken := publish.Token() != ""
	hasGH := c.lookPath("gh")
	switch publish.Creator {
	case config.CreatorAPI:
		if !hasToken {
			return doctor.Fail(name, "creator is api but $"+publish.TokenEnv+" is empty")
		}
		return doctor.Pass(name, "GitHub API with $"+publish.TokenEnv)
	case config.CreatorGH:
		if !hasGH && len(publish.InstallCommand) == 0 {
			return doctor.Warn(name, "gh not found and no install_command; a missing remote cannot be created")
		}
		return doctor.Pass(name, "GitHub CLI")
	default:
		if hasToken {
			return doctor.Pass(name, "GitHub API with $"+publish.TokenEnv)
		}
		if hasGH || len(publish.InstallCommand) > 0 {
			return doctor.Pass(name, "GitHub CLI")
		}
		return doctor.Warn(name, "no $"+publish.TokenEnv+" and no gh; a missing remote cannot be created")
	}
}

func checkDirectory(name, path string) doctor.Result {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return doctor.FailWithFix(name, path+" does not exist", "create "+path,
			func(context.Context) error { return os.MkdirAll(path, 0o755) })
	case err != nil:
		return doctor.Fail(name, err.Error())
	case !info.IsDir():
		return doctor.Fail(name, path+" is not a directory")
	}
	return doctor.Pass(name, path)
}

func (c *checker) checkout(ctx context.Context, layout workspace.Layout) doctor.Result {
	const name = "source checkout"
	state, err := workspace.NewProber(c.runner).Checkout(ctx, layout.SourceTree)
	if err != nil {
		return doctor.Fail(name, err.Error())
	}
	switch state {
	case workspace.Valid:
		return doctor.Pass(name, "checkout at "+layout.SourceTree)
	case workspace.Absent:
		return doctor.Pass(name, "not synced yet; the next sync clones")
	default:
		return doctor.Pass(name, "sanitized tree; the next sync reclones")
	}
}

func (c *checker) publishRemote(ctx context.Context) doctor.Result {
	const name = "publish remote"
	if !c.cfg.Capabilities.Publish {
		return doctor.Skip(name, "publishing is off")
	}
	url := c.cfg.Publish.RemoteURL()
	if !c.remote {
		return doctor.Skip(name, url+" (pass --remote to probe)")
	}
	state, err := workspace.NewProber(c.runner).Remote(ctx, url)
	if err != nil {
		return doctor.Warn(name, fmt.Sprintf("probing %s: %v", url, err))
	}
	if state == workspace.Valid {
		return doctor.Pass(name, url)
	}
	return doctor.Warn(name, url+" does not exist; publishing will create it")
}

func (c *checker) history(ctx context.Context) doctor.Result {
	const name = "run history"
	if !c.cfg.History.Enabled {
		return doctor.Skip(name, "history is off")
	}
	layout, err := c.cfg.Layout()
	if err != nil {
		return doctor.Skip(name, err.Error())
	}
	if _, err := os.Stat(layout.StateDir); err != nil {
		return doctor.Skip(name, "state directory missing")
	}
	store, err := openHistory(c.cfg, nil)
	if err != nil {
		return doctor.Fail(name, err.Error())
	}
	defer store.Close()
	runs, err := store.List(ctx, 1)
	if err != nil {
		return doctor.Fail(name, err.Error())
	}
	if len(runs) == 0 {
		return doctor.Pass(name, "no runs recorded")
	}
	return doctor.Pass(name, fmt.Sprintf("last run %s exited %d", runs[0].ID, runs[0].ExitCode))
}
