// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"os/exec"

	"golang.org/x/sys/windows"
)

// killedExitCode matches the status TerminateProcess leaves behind.
const killedExitCode = 1

// isolate starts cmd in a new process group, detached from the console
// group that receives Ctrl+C, and kills only the child on cancellation.
// Grandchildren are not tracked.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &windows.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
	cmd.Cancel = func() error {
		return cmd.Process.Kill()
	}
}
