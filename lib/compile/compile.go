// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compile adapts an external build toolchain to the pipeline.
//
// The toolchain is opaque: each target profile is a configured command
// line run in a working directory, and its exit code is the only
// success signal. Commands may use placeholders that are substituted
// per target:
//
//	{source}         the sanitized source tree
//	{output}         the target's output directory (created beforehand)
//	{profile}        the target name: native, cli, or gui
//	{configuration}  the build configuration, e.g. Release
//
// Targets build sequentially. One target failing does not stop the
// others, since a multi-target build can still produce usable
// artifacts.
package compile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bureau-foundation/shipyard/lib/tool"
)

// Target is one build profile.
type Target struct {
	// Name is the profile name substituted for {profile}.
	Name string

	// Command is the argument vector; Command[0] is the program.
	Command []string

	// Dir is the working directory, with placeholders. Empty means
	// {source}.
	Dir string

	// Output is the directory the build writes into.
	Output string
}

// Status of one target build.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// TargetResult is the outcome of one target.
type TargetResult struct {
	Target   string        `json:"target"`
	Status   Status        `json:"status"`
	ExitCode int           `json:"exit_code,omitempty"`
	Error    string        `json:"error,omitempty"`
	Output   string        `json:"output"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the target failed.
func (r TargetResult) Failed() bool { return r.Status == StatusFailed }

// Compiler runs target builds.
type Compiler struct {
	runner        tool.Runner
	source        string
	configuration string
	logger        *slog.Logger
}

// New returns a Compiler for the sanitized tree at source.
func New(runner tool.Runner, source, configuration string, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compiler{runner: runner, source: source, configuration: configuration, logger: logger}
}

// Build runs one target. Every outcome, including a failure to prepare
// the output directory or to start the program, is reported in the
// TargetResult; a failed target has StatusFailed and Error set.
func (c *Compiler) Build(ctx context.Context, target Target) TargetResult {
	result := TargetResult{Target: target.Name, Output: target.Output}
	logger := c.logger.With("target", target.Name)

	if len(target.Command) == 0 {
		result.Status = StatusSkipped
		result.Error = "no command configured"
		logger.Warn("compile target has no command, skipping")
		return result
	}
	if err := os.MkdirAll(target.Output, 0o755); err != nil {
		result.Status = StatusFailed
		result.Error = fmt.Sprintf("creating output directory: %v", err)
		return result
	}

	replacer := c.replacer(target)
	args := make([]string, len(target.Command))
	for i, arg := range target.Command {
		args[i] = replacer.Replace(arg)
	}
	dir := target.Dir
	if dir == "" {
		dir = "{source}"
	}
	dir = replacer.Replace(dir)

	invocation := tool.Invocation{Name: args[0], Args: args[1:], Dir: dir}
	logger.Info("compiling", "command", invocation.String(), "dir", dir)

	outcome, err := c.runner.Run(ctx, invocation)
	result.Duration = outcome.Duration
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		logger.Error("compiler did not start", "error", err)
		return result
	}
	if !outcome.Success() {
		result.Status = StatusFailed
		result.ExitCode = outcome.ExitCode
		result.Error = outcome.Err().Error()
		logger.Error("compile failed",
			"exit_code", outcome.ExitCode,
			"stderr_tail", tail(outcome.Stderr, 20),
		)
		return result
	}

	result.Status = StatusOK
	logger.Info("compiled", "duration_ms", outcome.Duration.Milliseconds())
	return result
}

// BuildAll runs every target in order and returns one result each.
func (c *Compiler) BuildAll(ctx context.Context, targets []Target) []TargetResult {
	results := make([]TargetResult, 0, len(targets))
	for _, target := range targets {
		results = append(results, c.Build(ctx, target))
	}
	return results
}

func (c *Compiler) replacer(target Target) *strings.Replacer {
	return strings.NewReplacer(
		"{source}", c.source,
		"{output}", target.Output,
		"{profile}", target.Name,
		"{configuration}", c.configuration,
	)
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
