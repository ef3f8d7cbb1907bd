// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tool runs external programs (git, compilers, signing tools,
// repository helpers) and reports their outcome as a structured
// [Result].
//
// Every pipeline stage talks to the outside world through the [Runner]
// interface instead of calling os/exec directly. That keeps retry and
// fallback logic (forced push, install-then-retry) uniform across call
// sites, and lets tests substitute a scripted runner (see the tooltest
// subpackage) to count invocations and inject failures.
//
// A Runner returns an error only when the process could not be started.
// A process that ran and exited non-zero is a successful Run with a
// non-zero [Result.ExitCode]; callers that treat that as failure use
// [Result.Err].
package tool
