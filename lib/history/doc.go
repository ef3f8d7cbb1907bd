// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package history keeps a local record of pipeline runs.
//
// Each run is one row in a SQLite database: the folded run report,
// CBOR-encoded and keyed by a BLAKE3 digest, plus a compressed
// transcript of every external tool invocation the run made. The
// history command lists runs and replays a single run's report and
// transcript without re-running anything.
//
// Run IDs are UUIDv7, so lexical order is start order and any unique
// prefix identifies a run.
package history
