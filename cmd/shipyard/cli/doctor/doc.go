// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package doctor provides the check-and-repair workflow behind
// "shipyard doctor".
//
// A doctor run evaluates a list of health checks and reports them in a
// consistent format. Failures that can be repaired without operator
// judgment (a missing workspace root, a missing state directory) carry
// fix closures that [ExecuteFixes] runs in --fix mode. The package
// provides:
//
//   - [Result] type with status, message, and optional fix action
//   - Constructors: [Pass], [Fail], [FailWithFix], [Warn], [Skip]
//   - [ExecuteFixes] for running fix closures
//   - [PrintChecklist] for human-readable output
//   - [BuildJSON] for machine-readable output
//   - [MarkRepaired] for cross-iteration repair tracking
//
// The checks themselves live in the commands package.
package doctor
