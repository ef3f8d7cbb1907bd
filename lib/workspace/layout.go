// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package workspace describes the on-disk roots a pipeline run works in
// and probes the state of checkouts and remotes.
//
// A [Layout] is pure data derived from four roots:
//
//   - the source root, holding the synchronized source subtree
//   - the build root, holding one output directory per compile target
//     and the shipyard state directory
//   - the install root, holding bin/, lib/ and activation scripts
//   - the versioned root, the caller's own repository that is published
//
// Every derived path is a subpath of its root, and the synchronized
// subtree never contains the versioned root, so deleting or sanitizing
// the subtree cannot reach the caller's repository.
package workspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Compile targets. Each has its own output directory under the build
// root.
const (
	TargetNative = "native"
	TargetCLI    = "cli"
	TargetGUI    = "gui"
)

// Targets lists the compile targets in build order.
var Targets = []string{TargetNative, TargetCLI, TargetGUI}

// Roots are the four caller-chosen directories. All must be absolute.
type Roots struct {
	Source    string `json:"source"`
	Build     string `json:"build"`
	Install   string `json:"install"`
	Versioned string `json:"versioned"`
}

// Layout holds every path a run reads or writes.
type Layout struct {
	Roots

	// SourceTree is the synchronized checkout: <source>/<subtree>.
	SourceTree string `json:"source_tree"`

	// BuildDriver, BuildCLI, and BuildGUI are the per-target compiler
	// output directories under the build root.
	BuildDriver string `json:"build_driver"`
	BuildCLI    string `json:"build_cli"`
	BuildGUI    string `json:"build_gui"`

	// InstallBin and InstallLib receive packaged artifacts.
	InstallBin string `json:"install_bin"`
	InstallLib string `json:"install_lib"`

	// StateDir holds run history and the result log.
	StateDir string `json:"state_dir"`
}

// New derives a Layout from roots. subtree names the synchronized
// directory under the source root. stateDir may be empty (defaults to
// <build>/.shipyard) or relative to the build root.
func New(roots Roots, subtree, stateDir string) (Layout, error) {
	for name, root := range map[string]string{
		"source":    roots.Source,
		"build":     roots.Build,
		"install":   roots.Install,
		"versioned": roots.Versioned,
	} {
		if root == "" {
			return Layout{}, fmt.Errorf("workspace: %s root is empty", name)
		}
		if !filepath.IsAbs(root) {
			return Layout{}, fmt.Errorf("workspace: %s root %q is not absolute", name, root)
		}
	}
	roots.Source = filepath.Clean(roots.Source)
	roots.Build = filepath.Clean(roots.Build)
	roots.Install = filepath.Clean(roots.Install)
	roots.Versioned = filepath.Clean(roots.Versioned)

	if subtree == "" {
		return Layout{}, errors.New("workspace: source subtree name is empty")
	}
	if filepath.IsAbs(subtree) || !filepath.IsLocal(subtree) {
		return Layout{}, fmt.Errorf("workspace: source subtree %q must be a relative path inside the source root", subtree)
	}

	if stateDir == "" {
		stateDir = ".shipyard"
	}
	if !filepath.IsAbs(stateDir) {
		stateDir = filepath.Join(roots.Build, stateDir)
	}

	layout := Layout{
		Roots:       roots,
		SourceTree:  filepath.Join(roots.Source, subtree),
		BuildDriver: filepath.Join(roots.Build, TargetNative),
		BuildCLI:    filepath.Join(roots.Build, TargetCLI),
		BuildGUI:    filepath.Join(roots.Build, TargetGUI),
		InstallBin:  filepath.Join(roots.Install, "bin"),
		InstallLib:  filepath.Join(roots.Install, "lib"),
		StateDir:    filepath.Clean(stateDir),
	}
	if err := layout.Validate(); err != nil {
		return Layout{}, err
	}
	return layout, nil
}

// BuildOutput returns the output directory for a compile target.
func (l Layout) BuildOutput(target string) string {
	switch target {
	case TargetNative:
		return l.BuildDriver
	case TargetCLI:
		return l.BuildCLI
	case TargetGUI:
		return l.BuildGUI
	default:
		return filepath.Join(l.Build, target)
	}
}

// BuildOutputs returns every target's output directory in build order.
func (l Layout) BuildOutputs() []string {
	outputs := make([]string, 0, len(Targets))
	for _, target := range Targets {
		outputs = append(outputs, l.BuildOutput(target))
	}
	return outputs
}

// Validate checks the containment invariants. All violations are
// reported together.
func (l Layout) Validate() error {
	var errs []error
	contained := []struct {
		name, root, path string
	}{
		{"source tree", l.Source, l.SourceTree},
		{"native build output", l.Build, l.BuildDriver},
		{"cli build output", l.Build, l.BuildCLI},
		{"gui build output", l.Build, l.BuildGUI},
		{"install bin", l.Install, l.InstallBin},
		{"install lib", l.Install, l.InstallLib},
	}
	for _, c := range contained {
		if !Within(c.root, c.path) || c.root == c.path {
			errs = append(errs, fmt.Errorf("workspace: %s %s is not inside %s", c.name, c.path, c.root))
		}
	}

	// The source tree is deleted and sanitized wholesale; it must never
	// contain the caller's repository or the install root.
	if Within(l.SourceTree, l.Versioned) {
		errs = append(errs, fmt.Errorf("workspace: versioned root %s is inside the source tree %s", l.Versioned, l.SourceTree))
	}
	if Within(l.SourceTree, l.Install) {
		errs = append(errs, fmt.Errorf("workspace: install root %s is inside the source tree %s", l.Install, l.SourceTree))
	}
	if Within(l.Install, l.SourceTree) {
		errs = append(errs, fmt.Errorf("workspace: source tree %s is inside the install root %s", l.SourceTree, l.Install))
	}
	if Within(l.SourceTree, l.StateDir) {
		errs = append(errs, fmt.Errorf("workspace: state directory %s is inside the source tree %s", l.StateDir, l.SourceTree))
	}
	return errors.Join(errs...)
}

// Within reports whether path is root or a descendant of root. Both are
// compared lexically after cleaning.
func Within(root, path string) bool {
	relative, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return relative == "." || (relative != ".." && !strings.HasPrefix(relative, ".."+string(filepath.Separator)))
}
