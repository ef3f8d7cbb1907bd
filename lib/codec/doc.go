// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds shipyard's CBOR configuration.
//
// JSON is used for everything a person or another tool reads: CLI
// output, the result log, configuration. CBOR is used for records
// shipyard stores for itself, such as run reports and tool transcripts
// in the history database. Struct tags with keyasint keep those records
// compact.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
package codec
