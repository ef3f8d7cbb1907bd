// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// Recorder observes every invocation an [Exec] runner completes,
// including ones that failed to start (result is zero and err is set).
type Recorder interface {
	Record(inv Invocation, result Result, err error)
}

// Exec is a Runner backed by os/exec.
type Exec struct {
	// Logger receives a debug line per invocation. Nil discards.
	Logger *slog.Logger

	// Recorder, if set, sees every invocation after it finishes.
	Recorder Recorder
}

// NewExec returns an Exec runner that logs to logger.
func NewExec(logger *slog.Logger) *Exec {
	return &Exec{Logger: logger}
}

// Run starts inv, waits for it, and captures its output. On Unix the
// child runs in its own process group so that context cancellation
// kills any grandchildren (compilers and git both fork helpers).
func (e *Exec) Run(ctx context.Context, inv Invocation) (Result, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cmd := exec.CommandContext(ctx, inv.Name, inv.Args...)
	cmd.Dir = inv.Dir
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}
	isolate(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := NewResult(inv, 0, stdout.String(), stderr.String())
	result.Duration = duration

	if err != nil {
		var exitError *exec.ExitError
		if !errors.As(err, &exitError) {
			startError := &StartError{Command: inv.String(), Err: err}
			logger.Debug("tool failed to start", "command", inv.String(), "dir", inv.Dir, "error", err)
			e.record(inv, Result{}, startError)
			return Result{}, startError
		}
		result.ExitCode = exitError.ExitCode()
		if result.ExitCode < 0 {
			// Killed by a signal: report it the way a shell would.
			result.ExitCode = killedExitCode
		}
	}

	logger.Debug("tool finished",
		"command", inv.String(),
		"dir", inv.Dir,
		"exit_code", result.ExitCode,
		"duration_ms", duration.Milliseconds(),
	)
	e.record(inv, result, nil)
	return result, nil
}

func (e *Exec) record(inv Invocation, result Result, err error) {
	if e.Recorder != nil {
		e.Recorder.Record(inv, result, err)
	}
}
