// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/shipyard/lib/clock"
	"github.com/bureau-foundation/shipyard/lib/config"
	"github.com/bureau-foundation/shipyard/lib/history"
	"github.com/bureau-foundation/shipyard/lib/publisher"
	"github.com/bureau-foundation/shipyard/lib/report"
	"github.com/bureau-foundation/shipyard/lib/resultlog"
	"github.com/bureau-foundation/shipyard/lib/tool"
	"github.com/bureau-foundation/shipyard/lib/workspace"
)

// Stage names, in run order. StagePreflight appears in a report only
// when the environment check failed.
const (
	StagePreflight = "preflight"
	StageSync      = "sync"
	StageSanitize  = "sanitize"
	StageCompile   = "compile"
	StagePackage   = "package"
	StageSign      = "sign"
	StagePublish   = "publish"
)

// Stages lists the stage names in run order.
var Stages = []string{StageSync, StageSanitize, StageCompile, StagePackage, StageSign, StagePublish}

// Config holds the collaborators of a Pipeline. Pipeline and Runner are
// required.
type Config struct {
	Pipeline *config.PipelineConfig
	Runner   tool.Runner

	// Creator provisions a missing publish remote. Nil selects one
	// from the publish configuration with NewCreator.
	Creator publisher.Creator

	Clock  clock.Clock
	Logger *slog.Logger

	// LookPath checks that required tools are installed. Defaults to
	// tool.LookPath.
	LookPath func(names ...string) error

	// NewRunID defaults to history.NewRunID.
	NewRunID func() (string, error)

	// ResultLog, History, and Transcript are optional run sinks.
	ResultLog  *resultlog.Log
	History    *history.Store
	Transcript *history.Transcript
}

// Pipeline runs stages against one validated configuration.
type Pipeline struct {
	cfg        *config.PipelineConfig
	layout     workspace.Layout
	runner     tool.Runner
	creator    publisher.Creator
	clock      clock.Clock
	logger     *slog.Logger
	lookPath   func(names ...string) error
	newRunID   func() (string, error)
	resultLog  *resultlog.Log
	history    *history.Store
	transcript *history.Transcript
}

// stage binds a name to its capability gate and implementation.
type stage struct {
	name string

	// gate names the capability flag for skip messages; enabled
	// reports whether it is on. A nil enabled means always on.
	gate    string
	enabled func(config.Capabilities) bool

	run func(p *Pipeline, ctx context.Context) (report.StageReport, error)
}

var stages = []stage{
	{name: StageSync, run: (*Pipeline).syncSource},
	{name: StageSanitize, run: (*Pipeline).sanitizeSource},
	{
		name:    StageCompile,
		gate:    "build_native, build_cli, build_gui",
		enabled: config.Capabilities.AnyBuild,
		run:     (*Pipeline).compileTargets,
	},
	{name: StagePackage, run: (*Pipeline).packageArtifacts},
	{
		name:    StageSign,
		gate:    "sign",
		enabled: func(c config.Capabilities) bool { return c.Sign },
		run:     (*Pipeline).signArtifacts,
	},
	{
		name:    StagePublish,
		gate:    "publish",
		enabled: func(c config.Capabilities) bool { return c.Publish },
		run:     (*Pipeline).publish,
	},
}

// New returns a Pipeline. The configuration must already be validated;
// New only derives the layout from it.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline: configuration is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("pipeline: runner is required")
	}
	layout, err := cfg.Pipeline.Layout()
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	p := &Pipeline{
		cfg:        cfg.Pipeline,
		layout:     layout,
		runner:     cfg.Runner,
		creator:    cfg.Creator,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		lookPath:   cfg.LookPath,
		newRunID:   cfg.NewRunID,
		resultLog:  cfg.ResultLog,
		history:    cfg.History,
		transcript: cfg.Transcript,
	}
	if p.clock == nil {
		p.clock = clock.Real()
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.lookPath == nil {
		p.lookPath = tool.LookPath
	}
	if p.newRunID == nil {
		p.newRunID = history.NewRunID
	}
	return p, nil
}

// Layout returns the derived workspace layout.
func (p *Pipeline) Layout() workspace.Layout {
	return p.layout
}

// Run executes the full pipeline. The report is always returned; the
// error is a *StageError when a stage stopped the run or failed it.
func (p *Pipeline) Run(ctx context.Context) (report.RunReport, error) {
	return p.execute(ctx, stages, true)
}

// RunStage executes a single stage by name. The stage's own capability
// gate is ignored, since the operator asked for it explicitly; compile
// still builds only the enabled targets.
func (p *Pipeline) RunStage(ctx context.Context, name string) (report.RunReport, error) {
	for _, candidate := range stages {
		if candidate.name == name {
			return p.execute(ctx, []stage{candidate}, false)
		}
	}
	return report.RunReport{}, fmt.Errorf("pipeline: unknown stage %q", name)
}

func (p *Pipeline) execute(ctx context.Context, selected []stage, gated bool) (report.RunReport, error) {
	runID, err := p.newRunID()
	if err != nil {
		return report.RunReport{}, fmt.Errorf("pipeline: %w", err)
	}
	run := report.RunReport{RunID: runID, Started: p.clock.Now()}
	logger := p.logger.With("run_id", runID)

	names := make([]string, len(selected))
	for i, s := range selected {
		names[i] = s.name
	}
	p.resultLog.Start(runID, names, run.Started)
	logger.Info("run started", "stages", names)

	failure := p.preflight(&run, names)
	if failure == nil {
		failure = p.runStages(ctx, &run, selected, gated, logger)
	}
	if failure == nil && run.Failed() {
		failure = firstFailure(run)
	}

	run.Duration = clock.Since(p.clock, run.Started)
	p.resultLog.Complete(run)
	p.record(ctx, run, logger)

	tally := run.Tally()
	logger.Info("run finished",
		"failed", run.Failed(),
		"exit_code", run.ExitCode(),
		"ok", tally[report.StatusOK],
		"warning", tally[report.StatusWarning],
		"stage_failed", tally[report.StatusFailed],
		"skipped", tally[report.StatusSkipped],
		"duration_ms", run.Duration.Milliseconds(),
	)
	return run, failure
}

// preflight checks the required tools and folds a failed preflight
// stage into run when any are missing.
func (p *Pipeline) preflight(run *report.RunReport, names []string) error {
	required := RequiredTools(p.cfg, names)
	err := p.lookPath(required...)
	if err == nil {
		return nil
	}
	stageReport := report.New(StagePreflight, p.clock.Now())
	stageReport.Fail(report.EnvironmentMissing, err)
	stageReport.Finish(p.clock.Now())
	p.resultLog.Stage(stageReport)
	run.Fold(stageReport)
	p.logger.Error("preflight failed", "required", required, "error", err)
	return &StageError{Kind: report.EnvironmentMissing, Stage: StagePreflight, Err: err}
}

func (p *Pipeline) runStages(ctx context.Context, run *report.RunReport, selected []stage, gated bool, logger *slog.Logger) error {
	for _, s := range selected {
		if err := ctx.Err(); err != nil {
			return err
		}

		var (
			stageReport report.StageReport
			stageErr    error
		)
		if gated && s.enabled != nil && !s.enabled(p.cfg.Capabilities) {
			stageReport = report.Skipped(s.name, "capability "+s.gate+" is off")
		} else {
			stageReport, stageErr = s.run(p, ctx)
		}
		p.resultLog.Stage(stageReport)
		logStage(logger, stageReport)

		if run.Fold(stageReport) {
			if stageErr == nil {
				stageErr = errors.New(stageReport.Message)
			}
			return &StageError{Kind: stageReport.Kind, Stage: s.name, Err: stageErr}
		}
	}
	return nil
}

// firstFailure returns the error for the first stage that failed the
// run without stopping it.
func firstFailure(run report.RunReport) error {
	for _, stageReport := range run.Stages {
		if stageReport.FailsRun() {
			return &StageError{Kind: stageReport.Kind, Stage: stageReport.Stage, Err: errors.New(stageReport.Message)}
		}
	}
	return nil
}

func logStage(logger *slog.Logger, stageReport report.StageReport) {
	attributes := []any{
		"stage", stageReport.Stage,
		"status", stageReport.Status,
		"duration_ms", stageReport.Duration.Milliseconds(),
	}
	if stageReport.Message != "" {
		attributes = append(attributes, "message", stageReport.Message)
	}
	switch stageReport.Status {
	case report.StatusFailed:
		logger.Error("stage failed", append(attributes, "kind", stageReport.Kind)...)
	case report.StatusWarning:
		logger.Warn("stage finished with warnings", append(attributes, "warnings", len(stageReport.Warnings)+len(stageReport.Errors))...)
	default:
		logger.Info("stage finished", attributes...)
	}
}

// record stores the run in history. A history failure never changes
// the outcome of the run.
func (p *Pipeline) record(ctx context.Context, run report.RunReport, logger *slog.Logger) {
	if p.history == nil {
		return
	}
	var entries []history.TranscriptEntry
	if p.transcript != nil {
		entries = p.transcript.Entries()
	}
	// Record even when the run was interrupted.
	if err := p.history.Record(context.WithoutCancel(ctx), run, entries); err != nil {
		logger.Warn("recording run history failed", "error", err)
	}
}

// finish stamps the stage duration.
func (p *Pipeline) finish(stageReport report.StageReport) report.StageReport {
	stageReport.Finish(p.clock.Now())
	return stageReport
}
