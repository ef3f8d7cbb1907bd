// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"

	"github.com/bureau-foundation/shipyard/lib/report"
)

// StageError is a stage failure that stopped the run or made it fail.
type StageError struct {
	Kind  report.Kind
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ExitCode is the process exit code for this failure.
func (e *StageError) ExitCode() int {
	return e.Kind.ExitCode()
}
