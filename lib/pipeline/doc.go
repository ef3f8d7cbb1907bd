// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline drives a run: preflight, then the six stages in
// order, each gated by its capability flag.
//
//	sync -> sanitize -> compile -> package -> sign -> publish
//
// Every stage hands back a [report.StageReport] and the driver folds
// them into one [report.RunReport]. The report's failure kind decides
// what happens next:
//
//   - environment_missing: required tools are absent. Found by the
//     preflight before any stage runs; the run stops with exit code 2.
//   - source_sync_failure: the run stops. There is no partial-source
//     build.
//   - compile_failure: packaging and the later stages still run
//     against whatever output exists, but the run exits 1.
//   - sign_failure and publish_failure: recorded as warnings and
//     failed stages; the exit code is unchanged.
//
// A fatal or run-failing stage is also returned from [Pipeline.Run] as
// a [*StageError], whose ExitCode method the CLI uses directly.
//
// Runs are observed through two optional sinks: a [resultlog.Log]
// receives each stage as it completes, and a [history.Store] receives
// the folded report plus the tool transcript when the run ends.
package pipeline
