// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sourcesync brings a local source tree to the tip of a remote
// branch.
//
// The target directory ends every successful Sync as a valid checkout
// of the requested branch. Existing checkouts are updated in place
// (fetch, checkout, fast-forward pull). Anything else found at the
// target, whether an empty directory, stray files, or a half-written
// clone from a killed run, is deleted and cloned fresh; it is never
// repaired. Force deletes even a valid checkout.
package sourcesync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/shipyard/lib/git"
	"github.com/bureau-foundation/shipyard/lib/tool"
	"github.com/bureau-foundation/shipyard/lib/workspace"
)

// Options describes one synchronization.
type Options struct {
	URL    string
	Branch string
	Dir    string

	// Force deletes an existing checkout and clones fresh.
	Force bool

	// Depth, when positive, makes a fresh clone shallow.
	Depth int

	// Remote is the remote name used for fetch and pull. Defaults to
	// "origin", which is what clone creates.
	Remote string
}

// Action records what Sync did.
type Action string

const (
	// ActionCloned: nothing was at the target; cloned.
	ActionCloned Action = "cloned"

	// ActionUpdated: a valid checkout was fetched and fast-forwarded.
	ActionUpdated Action = "updated"

	// ActionRecloned: the target held something that was not a valid
	// checkout; deleted and cloned.
	ActionRecloned Action = "recloned"

	// ActionForced: force was set; the target was deleted and cloned.
	ActionForced Action = "forced"
)

// Result is the outcome of a successful Sync.
type Result struct {
	Action Action `json:"action"`

	// Previous is what the probe found before Sync acted.
	Previous workspace.State `json:"previous"`

	// Commit is HEAD after the sync.
	Commit string `json:"commit"`
}

// Syncer performs source synchronization.
type Syncer struct {
	runner tool.Runner
	prober *workspace.Prober
	logger *slog.Logger
}

// New returns a Syncer that runs git through runner.
func New(runner tool.Runner, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Syncer{
		runner: runner,
		prober: workspace.NewProber(runner),
		logger: logger,
	}
}

// Sync makes options.Dir a valid checkout of options.URL at
// options.Branch. Any error leaves no guarantee about the directory;
// the next Sync will detect that and start over.
func (s *Syncer) Sync(ctx context.Context, options Options) (Result, error) {
	if options.URL == "" {
		return Result{}, errors.New("sourcesync: remote URL is empty")
	}
	if options.Branch == "" {
		return Result{}, errors.New("sourcesync: branch is empty")
	}
	if options.Dir == "" {
		return Result{}, errors.New("sourcesync: target directory is empty")
	}
	if options.Remote == "" {
		options.Remote = "origin"
	}

	state, err := s.prober.Checkout(ctx, options.Dir)
	if err != nil {
		return Result{}, err
	}
	if state == workspace.Valid && !s.tracksURL(ctx, options) {
		// A checkout of some other repository is not a checkout of
		// this one.
		state = workspace.Invalid
	}
	logger := s.logger.With("dir", options.Dir, "branch", options.Branch, "state", state.String())

	var action Action
	switch {
	case state != workspace.Absent && options.Force:
		logger.Info("force set, deleting source tree")
		action = ActionForced
	case state == workspace.Valid:
		logger.Info("updating existing checkout")
		return s.update(ctx, options, state)
	case state == workspace.Invalid:
		logger.Warn("source tree is not a valid checkout, deleting")
		action = ActionRecloned
	default:
		action = ActionCloned
	}

	if state != workspace.Absent {
		if err := RemoveTree(options.Dir); err != nil {
			return Result{}, err
		}
	}
	return s.clone(ctx, options, state, action)
}

func (s *Syncer) tracksURL(ctx context.Context, options Options) bool {
	url, exists, err := git.NewRepository(options.Dir, s.runner).RemoteURL(ctx, options.Remote)
	return err == nil && exists && url == options.URL
}

func (s *Syncer) clone(ctx context.Context, options Options, previous workspace.State, action Action) (Result, error) {
	repository, err := git.Clone(ctx, s.runner, options.URL, options.Dir, git.CloneOptions{
		Branch: options.Branch,
		Depth:  options.Depth,
	})
	if err != nil {
		return Result{}, fmt.Errorf("cloning %s: %w", options.URL, err)
	}
	commit, err := repository.HeadCommit(ctx)
	if err != nil {
		return Result{}, err
	}
	s.logger.Info("source cloned", "dir", options.Dir, "commit", commit, "action", string(action))
	return Result{Action: action, Previous: previous, Commit: commit}, nil
}

func (s *Syncer) update(ctx context.Context, options Options, previous workspace.State) (Result, error) {
	repository := git.NewRepository(options.Dir, s.runner)
	if err := repository.Fetch(ctx, options.Remote, options.Branch); err != nil {
		return Result{}, fmt.Errorf("fetching %s: %w", options.Branch, err)
	}
	local, err := repository.HasBranch(ctx, options.Branch)
	if err != nil {
		return Result{}, err
	}
	if local {
		err = repository.Checkout(ctx, options.Branch)
	} else {
		s.logger.Info("switching source branch", "dir", options.Dir, "branch", options.Branch)
		err = repository.CheckoutTracking(ctx, options.Remote, options.Branch)
	}
	if err != nil {
		return Result{}, fmt.Errorf("checking out %s: %w", options.Branch, err)
	}
	if err := repository.Pull(ctx, options.Remote, options.Branch); err != nil {
		return Result{}, fmt.Errorf("pulling %s: %w", options.Branch, err)
	}
	commit, err := repository.HeadCommit(ctx)
	if err != nil {
		return Result{}, err
	}
	s.logger.Info("source updated", "dir", options.Dir, "commit", commit)
	return Result{Action: ActionUpdated, Previous: previous, Commit: commit}, nil
}

// RemoveTree deletes path and everything under it. Entries that vanish
// mid-walk are not errors. Read-only entries (git marks pack files
// read-only) are made writable and the removal retried once.
func RemoveTree(path string) error {
	err := os.RemoveAll(path)
	if err == nil {
		return nil
	}
	_ = filepath.WalkDir(path, func(entry string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		mode := fs.FileMode(0o644)
		if d.IsDir() {
			mode = 0o755
		}
		_ = os.Chmod(entry, mode)
		return nil
	})
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}
