// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package tool

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// killedExitCode is what a shell reports for a child killed by SIGKILL.
const killedExitCode = 128 + int(unix.SIGKILL)

// isolate starts cmd in a new process group and makes cancellation
// kill the whole group.
func isolate(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative PID signals the whole process group.
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
}
