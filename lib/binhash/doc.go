// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash computes content digests of build artifacts.
//
// Digests are BLAKE3 in keyed mode with a fixed artifact domain key, so
// an artifact digest can never collide with a BLAKE3 hash computed for
// some other purpose over the same bytes. The packager records one
// digest per installed file in the install manifest, and run history
// stores them so two runs can be compared file by file.
//
// The API surface:
//
//   - [HashFile] streams a file through the hasher with constant memory
//   - [HashingWriter] hashes bytes as they are copied elsewhere, so a
//     copy and its digest cost one read of the source
//   - [FormatDigest] and [ParseDigest] convert to and from the
//     canonical lowercase hex form used in manifests and logs
package binhash
