// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sanitize strips foreign version-control metadata from a
// synchronized source tree so the tree can be committed as plain files
// into another repository.
//
// The walk is rooted at the tree and never looks above it. Any entry
// named by [DefaultMarkers] inside the tree is removed, including the
// tree's own top-level .git, which leaves the tree without a checkout
// marker: the next sync reclones it. Removal is best-effort: an entry
// that cannot be deleted is reported and skipped.
package sanitize

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
)

// DefaultMarkers are the metadata entry names removed by default: the
// git control directory and the hosting provider's automation
// directory.
var DefaultMarkers = []string{".git", ".github"}

// Failure is one entry that could not be removed.
type Failure struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// Result lists what a Sanitize call did.
type Result struct {
	Removed []string  `json:"removed,omitempty"`
	Failed  []Failure `json:"failed,omitempty"`
}

// Sanitizer removes metadata entries.
type Sanitizer struct {
	markers []string
	logger  *slog.Logger
}

// New returns a Sanitizer for markers (DefaultMarkers when empty).
func New(markers []string, logger *slog.Logger) *Sanitizer {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sanitizer{markers: slices.Clone(markers), logger: logger}
}

// Sanitize removes every marker entry under tree. A missing tree is
// not an error; there is nothing to sanitize. The error is non-nil only
// when tree itself cannot be read.
func (s *Sanitizer) Sanitize(tree string) (Result, error) {
	var result Result

	info, err := os.Lstat(tree)
	if errors.Is(err, fs.ErrNotExist) {
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("sanitize: %w", err)
	}
	if !info.IsDir() {
		return result, fmt.Errorf("sanitize: %s is not a directory", tree)
	}

	walkErr := filepath.WalkDir(tree, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == tree {
				return err
			}
			// An unreadable subdirectory: record and keep going.
			s.fail(&result, path, err)
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == tree || !slices.Contains(s.markers, entry.Name()) {
			return nil
		}
		// Symlinks named like markers are removed as links; their
		// targets are outside the tree's responsibility.
		if err := os.RemoveAll(path); err != nil {
			s.fail(&result, path, err)
		} else {
			s.logger.Debug("removed metadata", "path", path)
			result.Removed = append(result.Removed, path)
		}
		if entry.IsDir() {
			return fs.SkipDir
		}
		return nil
	})
	if walkErr != nil {
		return result, fmt.Errorf("sanitize %s: %w", tree, walkErr)
	}

	s.logger.Info("source tree sanitized",
		"tree", tree,
		"removed", len(result.Removed),
		"failed", len(result.Failed),
	)
	return result, nil
}

func (s *Sanitizer) fail(result *Result, path string, err error) {
	s.logger.Warn("could not remove metadata", "path", path, "error", err)
	result.Failed = append(result.Failed, Failure{Path: path, Err: err.Error()})
}
