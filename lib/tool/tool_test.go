// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package tool

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestExec_CapturesOutputAndExitCode(t *testing.T) {
	t.Parallel()

	runner := NewExec(nil)
	result, err := runner.Run(context.Background(), Invocation{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err >&2; exit 3"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
	if strings.TrimSpace(result.Stdout) != "out" {
		t.Errorf("Stdout = %q, want %q", result.Stdout, "out\n")
	}
	if strings.TrimSpace(result.Stderr) != "err" {
		t.Errorf("Stderr = %q, want %q", result.Stderr, "err\n")
	}

	var exitError *ExitError
	if !errors.As(result.Err(), &exitError) {
		t.Fatalf("Err() = %v, want *ExitError", result.Err())
	}
	if exitError.Code != 3 || exitError.Stderr != "err" {
		t.Errorf("ExitError = %+v", exitError)
	}
}

func TestExec_WorkingDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	output, err := Output(context.Background(), NewExec(nil), Invocation{Name: "pwd", Dir: dir})
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if !strings.HasSuffix(output, dir) {
		t.Errorf("pwd = %q, want suffix %q", output, dir)
	}
}

func TestExec_MissingBinary(t *testing.T) {
	t.Parallel()

	_, err := NewExec(nil).Run(context.Background(), Invocation{Name: "shipyard-no-such-binary"})
	var startError *StartError
	if !errors.As(err, &startError) {
		t.Fatalf("Run error = %v, want *StartError", err)
	}
}

type recordingRecorder struct {
	invocations []Invocation
	exitCodes   []int
}

func (r *recordingRecorder) Record(inv Invocation, result Result, err error) {
	r.invocations = append(r.invocations, inv)
	r.exitCodes = append(r.exitCodes, result.ExitCode)
}

func TestExec_Recorder(t *testing.T) {
	t.Parallel()

	recorder := &recordingRecorder{}
	runner := &Exec{Recorder: recorder}
	if _, err := runner.Run(context.Background(), Invocation{Name: "true"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := runner.Run(context.Background(), Invocation{Name: "false"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(recorder.invocations) != 2 {
		t.Fatalf("recorded %d invocations, want 2", len(recorder.invocations))
	}
	if recorder.exitCodes[0] != 0 || recorder.exitCodes[1] != 1 {
		t.Errorf("exit codes = %v, want [0 1]", recorder.exitCodes)
	}
}

func TestExec_ContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := NewExec(nil).Run(ctx, Invocation{Name: "sleep", Args: []string{"5"}})
	if err == nil && result.Success() {
		t.Fatal("expected cancelled invocation to fail")
	}
}

func TestLookPath(t *testing.T) {
	t.Parallel()

	if err := LookPath("sh", "sh", ""); err != nil {
		t.Fatalf("LookPath(sh): %v", err)
	}

	err := LookPath("sh", "shipyard-missing-b", "shipyard-missing-a")
	var missing *MissingError
	if !errors.As(err, &missing) {
		t.Fatalf("LookPath error = %v, want *MissingError", err)
	}
	if strings.Join(missing.Names, ",") != "shipyard-missing-a,shipyard-missing-b" {
		t.Errorf("Names = %v", missing.Names)
	}
}

func TestInvocationString(t *testing.T) {
	t.Parallel()

	inv := Invocation{Name: "git", Args: []string{"push", "origin", "main"}}
	if got := inv.String(); got != "git push origin main" {
		t.Errorf("String() = %q", got)
	}
	if got := (Invocation{Name: "true"}).String(); got != "true" {
		t.Errorf("String() = %q", got)
	}
}
