// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package report defines the outcome values pipeline stages produce.
//
// Each stage returns one [StageReport]; the driver folds them into a
// [RunReport] in stage order. Nothing here is shared or mutated across
// stages: a stage builds its own report and hands it back, so pass,
// fail, and warning tallies are always derived from the folded value
// rather than from counters kept on the side.
package report

import (
	"fmt"
	"time"
)

// Status is the outcome of one stage.
type Status string

const (
	// StatusOK: the stage ran and did everything it set out to do.
	StatusOK Status = "ok"

	// StatusSkipped: the stage's capability flag was off, or there was
	// nothing for it to do.
	StatusSkipped Status = "skipped"

	// StatusWarning: the stage ran but recovered from problems (a
	// missing output directory, one file that failed to sign).
	StatusWarning Status = "warning"

	// StatusFailed: the stage failed. Whether that fails the run
	// depends on Kind.
	StatusFailed Status = "failed"
)

// Kind classifies a failure.
type Kind string

const (
	// EnvironmentMissing: a required external tool is absent. Checked
	// before any stage runs.
	EnvironmentMissing Kind = "environment_missing"

	// SourceSyncFailure: clone, fetch, checkout, or pull failed.
	SourceSyncFailure Kind = "source_sync_failure"

	// CompileFailure: a compile target failed. Packaging still runs
	// against whatever output exists.
	CompileFailure Kind = "compile_failure"

	// SignFailure: signing one or more files failed.
	SignFailure Kind = "sign_failure"

	// PublishFailure: remote creation, commit, or push failed.
	PublishFailure Kind = "publish_failure"
)

// Fatal reports whether a failure of this kind stops the pipeline
// before the next stage.
func (k Kind) Fatal() bool {
	return k == EnvironmentMissing || k == SourceSyncFailure
}

// FailsRun reports whether a failure of this kind makes the run's exit
// code non-zero.
func (k Kind) FailsRun() bool {
	return k.Fatal() || k == CompileFailure
}

// ExitCode is the process exit code for a run that failed with this
// kind. Kinds that do not fail the run map to zero.
func (k Kind) ExitCode() int {
	switch k {
	case EnvironmentMissing:
		return 2
	case SourceSyncFailure, CompileFailure:
		return 1
	default:
		return 0
	}
}

// StageReport is one stage's outcome.
type StageReport struct {
	Stage    string         `json:"stage" cbor:"1,keyasint"`
	Status   Status         `json:"status" cbor:"2,keyasint"`
	Kind     Kind           `json:"kind,omitempty" cbor:"3,keyasint,omitempty"`
	Message  string         `json:"message,omitempty" cbor:"4,keyasint,omitempty"`
	Warnings []string       `json:"warnings,omitempty" cbor:"5,keyasint,omitempty"`
	Errors   []string       `json:"errors,omitempty" cbor:"6,keyasint,omitempty"`
	Counts   map[string]int `json:"counts,omitempty" cbor:"7,keyasint,omitempty"`
	Started  time.Time      `json:"started" cbor:"8,keyasint"`
	Duration time.Duration  `json:"duration" cbor:"9,keyasint"`
}

// New starts a report for stage with status OK.
func New(stage string, started time.Time) StageReport {
	return StageReport{Stage: stage, Status: StatusOK, Started: started}
}

// Skipped returns a report for a stage that did not run.
func Skipped(stage, reason string) StageReport {
	return StageReport{Stage: stage, Status: StatusSkipped, Message: reason}
}

// Warn records a recovered problem. An OK stage becomes a warning; a
// failed stage stays failed.
func (s *StageReport) Warn(format string, args ...any) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
	if s.Status == StatusOK || s.Status == StatusSkipped {
		s.Status = StatusWarning
	}
}

// Error records a per-item failure (one file, one target) of kind
// without failing the stage outright.
func (s *StageReport) Error(kind Kind, err error) {
	s.Errors = append(s.Errors, err.Error())
	if s.Kind == "" {
		s.Kind = kind
	}
	if s.Status == StatusOK || s.Status == StatusSkipped {
		s.Status = StatusWarning
	}
}

// Fail marks the stage failed with kind.
func (s *StageReport) Fail(kind Kind, err error) {
	s.Status = StatusFailed
	s.Kind = kind
	if err != nil {
		s.Message = err.Error()
	}
}

// Add increments a named counter.
func (s *StageReport) Add(counter string, delta int) {
	if s.Counts == nil {
		s.Counts = make(map[string]int)
	}
	s.Counts[counter] += delta
}

// Finish stamps the duration.
func (s *StageReport) Finish(now time.Time) {
	if !s.Started.IsZero() {
		s.Duration = now.Sub(s.Started)
	}
}

// FailsRun reports whether this stage's outcome makes the run fail.
func (s StageReport) FailsRun() bool {
	return s.Kind.FailsRun() && (s.Status == StatusFailed || s.Kind == CompileFailure)
}

// RunReport is the folded outcome of a pipeline run.
type RunReport struct {
	RunID    string        `json:"run_id" cbor:"1,keyasint"`
	Started  time.Time     `json:"started" cbor:"2,keyasint"`
	Duration time.Duration `json:"duration" cbor:"3,keyasint"`
	Stages   []StageReport `json:"stages" cbor:"4,keyasint"`
}

// Fold appends a stage report. Returns true when the pipeline should
// stop because the stage failed fatally.
func (r *RunReport) Fold(stage StageReport) (stop bool) {
	r.Stages = append(r.Stages, stage)
	return stage.Status == StatusFailed && stage.Kind.Fatal()
}

// Stage returns the report for the named stage.
func (r RunReport) Stage(name string) (StageReport, bool) {
	for _, stage := range r.Stages {
		if stage.Stage == name {
			return stage, true
		}
	}
	return StageReport{}, false
}

// Failed reports whether any stage failed the run.
func (r RunReport) Failed() bool {
	for _, stage := range r.Stages {
		if stage.FailsRun() {
			return true
		}
	}
	return false
}

// ExitCode returns the highest exit code any stage's failure demands.
func (r RunReport) ExitCode() int {
	code := 0
	for _, stage := range r.Stages {
		if stage.FailsRun() {
			code = max(code, stage.Kind.ExitCode())
		}
	}
	return code
}

// Tally counts stages by status.
func (r RunReport) Tally() map[Status]int {
	tally := make(map[Status]int, 4)
	for _, stage := range r.Stages {
		tally[stage.Status]++
	}
	return tally
}

// WarningCount is the number of warnings and per-item errors across
// all stages.
func (r RunReport) WarningCount() int {
	count := 0
	for _, stage := range r.Stages {
		count += len(stage.Warnings) + len(stage.Errors)
	}
	return count
}
