// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"os/exec"
	"slices"
	"strings"
)

// MissingError lists required programs that are not installed.
type MissingError struct {
	Names []string
}

func (e *MissingError) Error() string {
	return "required tools not found in PATH: " + strings.Join(e.Names, ", ")
}

// LookPath checks that every named program resolves. Duplicates and
// empty names are ignored. Returns a *MissingError naming all missing
// programs, or nil.
func LookPath(names ...string) error {
	var missing []string
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if _, err := exec.LookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return &MissingError{Names: missing}
}

// Available reports whether name resolves through PATH.
func Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
