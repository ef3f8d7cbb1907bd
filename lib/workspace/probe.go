// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/shipyard/lib/git"
	"github.com/bureau-foundation/shipyard/lib/tool"
)

// State is the result of probing a checkout or a remote.
type State int

const (
	// Absent: nothing is there.
	Absent State = iota

	// Valid: a usable checkout, or a reachable remote repository.
	Valid

	// Invalid: something is there but it is not a usable checkout.
	// Never repaired in place.
	Invalid
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Prober answers "what is at this location" for local checkouts and
// remote repositories with the same tri-state vocabulary.
type Prober struct {
	runner tool.Runner
}

// NewProber returns a Prober that runs git through runner.
func NewProber(runner tool.Runner) *Prober {
	return &Prober{runner: runner}
}

// Checkout probes dir. A directory is a Valid checkout when it has a
// .git entry and git reports dir itself as the top of the working tree;
// a plain subdirectory of some enclosing repository is Invalid. The
// error is non-nil only when dir cannot be inspected at all.
func (p *Prober) Checkout(ctx context.Context, dir string) (State, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return Absent, nil
	}
	if err != nil {
		return Absent, fmt.Errorf("probing %s: %w", dir, err)
	}
	if !info.IsDir() {
		return Invalid, nil
	}
	if _, err := os.Lstat(filepath.Join(dir, ".git")); err != nil {
		return Invalid, nil
	}

	topLevel, err := git.NewRepository(dir, p.runner).TopLevel(ctx)
	if err != nil {
		return Invalid, nil
	}
	if !samePath(topLevel, dir) {
		return Invalid, nil
	}
	return Valid, nil
}

// Remote probes a remote repository URL with git ls-remote. A remote
// that exists (with or without refs) is Valid; anything else is Absent.
func (p *Prober) Remote(ctx context.Context, url string) (State, error) {
	probe, err := git.LsRemote(ctx, p.runner, url)
	if err != nil {
		return Absent, err
	}
	if probe.Exists() {
		return Valid, nil
	}
	return Absent, nil
}

// samePath compares two paths after resolving symlinks, so /tmp and
// /private/tmp style aliases compare equal.
func samePath(a, b string) bool {
	resolvedA, errA := filepath.EvalSymlinks(a)
	resolvedB, errB := filepath.EvalSymlinks(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return resolvedA == resolvedB
}
