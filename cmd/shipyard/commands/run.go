// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/shipyard/cmd/shipyard/cli"
	"github.com/bureau-foundation/shipyard/lib/config"
	"github.com/bureau-foundation/shipyard/lib/history"
	"github.com/bureau-foundation/shipyard/lib/pipeline"
	"github.com/bureau-foundation/shipyard/lib/report"
	"github.com/bureau-foundation/shipyard/lib/resultlog"
	"github.com/bureau-foundation/shipyard/lib/tool"
)

// File names under the state directory.
const (
	resultLogName = "result.jsonl"
	historyName   = "history.db"
)

type runParams struct {
	configParams
	cli.JSONOutput
	NoColor bool `flag:"no-color" desc:"disable colored summary output"`
	Details bool `flag:"details" desc:"list every warning and error in the summary"`
}

func runCommand() *cli.Command {
	var params runParams
	return &cli.Command{
		Name:    "run",
		Summary: "Run every enabled stage",
		Description: `Run the pipeline: sync, sanitize, compile, package, sign, publish.

Stages whose capability is off are reported as skipped. A source sync
failure stops the run. A compile failure lets the run finish but makes
it exit 1. Sign and publish failures are reported without changing the
exit code. A missing required tool stops the run before any stage with
exit code 2.`,
		Usage: "shipyard run [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("run", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return &cli.UsageError{Err: fmt.Errorf("unexpected argument %q", args[0])}
			}
			return execute(ctx, &params, "", logger)
		},
	}
}

// stageCommand builds a command that runs exactly one stage. The
// stage's capability gate is ignored; naming the stage is the request.
func stageCommand(stage, name, summary string) *cli.Command {
	var params runParams
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Description: summary + `.

Runs only this stage against the current workspace, whatever the
capability flags say. Compile still builds only the enabled targets.`,
		Usage: "shipyard " + name + " [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams(name, &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return &cli.UsageError{Err: fmt.Errorf("unexpected argument %q", args[0])}
			}
			return execute(ctx, &params, stage, logger)
		},
	}
}

// execute runs the whole pipeline (stage == "") or one stage, prints
// the report, and converts the outcome to an exit code.
func execute(ctx context.Context, params *runParams, stage string, logger *slog.Logger) error {
	cfg, err := params.load()
	if err != nil {
		return err
	}

	session, err := openSession(cfg, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	pipe, err := pipeline.New(pipeline.Config{
		Pipeline:   cfg,
		Runner:     session.exec,
		Logger:     logger,
		ResultLog:  session.resultLog,
		History:    session.history,
		Transcript: session.transcript,
	})
	if err != nil {
		return err
	}

	var run report.RunReport
	if stage == "" {
		run, err = pipe.Run(ctx)
	} else {
		run, err = pipe.RunStage(ctx, stage)
	}
	var stageErr *pipeline.StageError
	if err != nil && !errors.As(err, &stageErr) {
		// Interrupted, or the run never started.
		if run.RunID == "" {
			return err
		}
		logger.Error("run aborted", "error", err)
	}

	if done, emitErr := params.EmitJSON(run); done {
		if emitErr != nil {
			return emitErr
		}
	} else {
		options := cli.SummaryOptions{
			Color:   !params.NoColor && cli.IsTerminal(os.Stdout),
			Details: params.Details,
			Width:   cli.TerminalWidth(os.Stdout),
		}
		if err := cli.RenderSummary(os.Stdout, run, options); err != nil {
			return err
		}
	}

	if code := run.ExitCode(); code != 0 {
		return &cli.ExitError{Code: code}
	}
	if err != nil && stageErr == nil {
		return err
	}
	return nil
}

// session holds the per-run sinks and the recording runner.
type session struct {
	exec       *tool.Exec
	transcript *history.Transcript
	resultLog  *resultlog.Log
	history    *history.Store
}

// openSession prepares the state directory, the result log, and (when
// enabled) the history store. Every external command the run starts
// is recorded into the transcript.
func openSession(cfg *config.PipelineConfig, logger *slog.Logger) (*session, error) {
	layout, err := cfg.Layout()
	if err != nil {
		return nil, &cli.UsageError{Err: err}
	}

	s := &session{
		exec:       tool.NewExec(logger),
		transcript: history.NewTranscript(),
	}
	s.exec.Recorder = s.transcript

	s.resultLog, err = resultlog.Create(filepath.Join(layout.StateDir, resultLogName), logger)
	if err != nil {
		// A nil log discards; the run proceeds without it.
		logger.Warn("result log unavailable", "error", err)
	}

	if cfg.History.Enabled {
		store, err := openHistory(cfg, logger)
		if err != nil {
			// The run proceeds without history.
			logger.Warn("run history unavailable", "error", err)
		} else {
			s.history = store
		}
	}
	return s, nil
}

// Close closes the sinks.
func (s *session) Close() {
	s.resultLog.Close()
	if s.history != nil {
		s.history.Close()
	}
}

// openHistory opens the history store under the state directory.
func openHistory(cfg *config.PipelineConfig, logger *slog.Logger) (*history.Store, error) {
	layout, err := cfg.Layout()
	if err != nil {
		return nil, err
	}
	compression, err := history.ParseCompression(cfg.History.Compression)
	if err != nil {
		return nil, err
	}
	return history.Open(history.Config{
		Path:        filepath.Join(layout.StateDir, historyName),
		Compression: compression,
		Logger:      logger,
	})
}
