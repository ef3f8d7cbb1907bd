// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package signer adapts an external code-signing tool to the pipeline.
//
// Every executable and library under the install root is signed by its
// own invocation of the configured command, one after another. A
// failure is recorded on that artifact and the loop moves on to the
// next file.
package signer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/shipyard/lib/packager"
	"github.com/bureau-foundation/shipyard/lib/tool"
)

// Result is the outcome of a signing pass.
type Result struct {
	// Artifacts holds every signable file found, with Signed and
	// SignError filled in.
	Artifacts packager.ArtifactSet `json:"artifacts"`

	Signed int `json:"signed"`
	Failed int `json:"failed"`

	// Skipped is set when signing did not run at all; SkipReason says
	// why.
	Skipped    bool   `json:"skipped,omitempty"`
	SkipReason string `json:"skip_reason,omitempty"`
}

// Failures returns the artifacts that did not get signed.
func (r Result) Failures() []packager.Artifact {
	var failed []packager.Artifact
	for _, artifact := range r.Artifacts.Artifacts {
		if !artifact.Signed {
			failed = append(failed, artifact)
		}
	}
	return failed
}

// Signer runs the signing command.
type Signer struct {
	runner  tool.Runner
	command []string
	logger  *slog.Logger

	// Available reports whether a program is installed. Defaults to
	// tool.Available.
	Available func(name string) bool
}

// New returns a Signer. command is the argument vector with a {file}
// placeholder.
func New(runner tool.Runner, command []string, logger *slog.Logger) *Signer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Signer{
		runner:    runner,
		command:   command,
		logger:    logger,
		Available: tool.Available,
	}
}

// SignAll signs every signable artifact under roots. If the signing
// program is not installed the pass is skipped with a reason instead of
// failing each file. The error is non-nil only when the roots cannot be
// scanned.
func (s *Signer) SignAll(ctx context.Context, roots []string, classifier packager.Classifier) (Result, error) {
	var result Result
	if len(s.command) == 0 {
		return result, errors.New("signer: command is empty")
	}

	found, err := packager.Scan(roots, classifier)
	if err != nil {
		return result, fmt.Errorf("signer: %w", err)
	}
	for _, artifact := range found.Artifacts {
		if artifact.Kind.Signable() {
			result.Artifacts.Artifacts = append(result.Artifacts.Artifacts, artifact)
		}
	}

	if !s.Available(s.command[0]) {
		result.Skipped = true
		result.SkipReason = fmt.Sprintf("signing tool %q not found", s.command[0])
		s.logger.Warn("signing skipped", "reason", result.SkipReason, "unsigned", len(result.Artifacts.Artifacts))
		return result, nil
	}

	for i := range result.Artifacts.Artifacts {
		artifact := &result.Artifacts.Artifacts[i]
		if err := s.sign(ctx, artifact.Destination); err != nil {
			artifact.SignError = err.Error()
			result.Failed++
			s.logger.Error("signing failed", "file", artifact.Destination, "error", err)
			continue
		}
		artifact.Signed = true
		result.Signed++
		s.logger.Debug("signed", "file", artifact.Destination)
	}

	s.logger.Info("signing finished", "signed", result.Signed, "failed", result.Failed)
	return result, nil
}

func (s *Signer) sign(ctx context.Context, file string) error {
	args := make([]string, len(s.command)-1)
	for i, arg := range s.command[1:] {
		args[i] = strings.ReplaceAll(arg, "{file}", file)
	}
	result, err := s.runner.Run(ctx, tool.Invocation{Name: s.command[0], Args: args})
	if err != nil {
		return err
	}
	return result.Err()
}
