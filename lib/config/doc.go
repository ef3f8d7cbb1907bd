// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the pipeline configuration.
//
// Configuration comes from at most one file, named by the --config flag
// or the SHIPYARD_CONFIG environment variable. There is no automatic
// discovery: with neither set, [Load] returns [Default] resolved against
// the current directory. Files ending in .json or .jsonc are read as
// JSON with comments and trailing commas; anything else is YAML.
//
// After the file is applied, string fields are expanded (${VAR} and
// ${VAR:-default}), a small set of SHIPYARD_* environment variables
// override individual values, and relative root paths are resolved
// against the directory containing the file.
//
// A loaded [PipelineConfig] is treated as immutable once validated: the
// CLI applies its flag overrides first, then calls Validate, then hands
// the value to the pipeline.
package config
