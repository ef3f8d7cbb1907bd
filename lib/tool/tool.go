// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Invocation describes one external program execution.
type Invocation struct {
	// Name is the program to run. Resolved through PATH unless it
	// contains a path separator.
	Name string

	// Args are the arguments after the program name.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds extra KEY=VALUE entries appended to the inherited
	// environment.
	Env []string
}

// String renders the invocation as a shell-like command line for logs
// and error messages. Arguments are not quoted.
func (inv Invocation) String() string {
	if len(inv.Args) == 0 {
		return inv.Name
	}
	return inv.Name + " " + strings.Join(inv.Args, " ")
}

// Result is the outcome of a process that was started.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration

	invocation Invocation
}

// NewResult builds a Result for inv. Runners other than [Exec] (test
// fakes, wrappers) use this so that [Result.Err] can name the command.
func NewResult(inv Invocation, exitCode int, stdout, stderr string) Result {
	return Result{
		ExitCode:   exitCode,
		Stdout:     stdout,
		Stderr:     stderr,
		invocation: inv,
	}
}

// Success reports whether the process exited zero.
func (r Result) Success() bool { return r.ExitCode == 0 }

// Err returns nil for a zero exit and an *ExitError otherwise.
func (r Result) Err() error {
	if r.ExitCode == 0 {
		return nil
	}
	return &ExitError{
		Command: r.invocation.String(),
		Dir:     r.invocation.Dir,
		Code:    r.ExitCode,
		Stderr:  strings.TrimSpace(r.Stderr),
	}
}

// Runner executes external programs. Implementations must be safe to
// call sequentially from one goroutine; the pipeline never calls a
// Runner concurrently.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, inv Invocation) (Result, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, inv Invocation) (Result, error) {
	return f(ctx, inv)
}

// Output runs inv and returns its trimmed stdout. A start failure or a
// non-zero exit is returned as an error.
func Output(ctx context.Context, runner Runner, inv Invocation) (string, error) {
	result, err := runner.Run(ctx, inv)
	if err != nil {
		return "", err
	}
	if err := result.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

// ExitError is a process that ran and exited non-zero.
type ExitError struct {
	Command string
	Dir     string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	message := fmt.Sprintf("%s exited %d", e.Command, e.Code)
	if e.Dir != "" {
		message = fmt.Sprintf("%s (in %s)", message, e.Dir)
	}
	if e.Stderr != "" {
		message += ": " + e.Stderr
	}
	return message
}

// StartError is a process that could not be started at all: the binary
// is missing, not executable, or the working directory does not exist.
type StartError struct {
	Command string
	Err     error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("starting %s: %v", e.Command, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }
