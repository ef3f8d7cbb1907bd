// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package publisher commits the versioned root and pushes it to a
// remote repository, creating the remote first when it does not exist.
//
// The starting state is always recomputed from the live remote and the
// local repository, never read from a previous run. A run that finds
// nothing new to commit creates no commit, so repeated runs against an
// unchanged install root leave the remote history unchanged.
//
// Publishing is best-effort: every failure is reported to the caller as
// an error alongside a [Result] describing how far the run got, and
// nothing done by earlier pipeline stages is ever undone.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bureau-foundation/shipyard/lib/clock"
	"github.com/bureau-foundation/shipyard/lib/git"
	"github.com/bureau-foundation/shipyard/lib/tool"
	"github.com/bureau-foundation/shipyard/lib/workspace"
)

// Options configures one publish run.
type Options struct {
	// Dir is the versioned root: the repository that is committed and
	// pushed.
	Dir string

	Owner string
	Repo  string

	// URL is the remote repository URL.
	URL string

	// Remote is the local name of the remote. Defaults to "origin".
	Remote string

	// Branch is the remote branch to publish to. The local branch is
	// renamed to match.
	Branch string

	// Exclude lists paths relative to Dir that are kept out of commits
	// through .git/info/exclude.
	Exclude []string

	Identity     git.Identity
	CommitPrefix string

	// ForceOnReject retries a rejected push once with --force.
	ForceOnReject bool

	// InstallCommand installs the creation tool when the creator
	// reports it unavailable. Empty skips installation.
	InstallCommand []string

	Description string
	Private     bool
}

func (o Options) remote() string {
	if o.Remote == "" {
		return "origin"
	}
	return o.Remote
}

// Result describes a publish run.
type Result struct {
	State State `json:"state"`

	// Path lists the states visited. It is empty when the run failed
	// before the remote was probed.
	Path []State `json:"path"`

	RemoteURL string `json:"remote_url"`

	// Repointed is set when the local remote pointed elsewhere.
	Repointed bool `json:"repointed,omitempty"`

	// Created is set when this run provisioned the remote, and
	// CreatedBy names the creator that did it.
	Created   bool   `json:"created,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`

	// Installed is set when the creation tool installer ran.
	Installed bool `json:"installed,omitempty"`

	// Commit is the new commit, empty when there was nothing to commit.
	Commit string `json:"commit,omitempty"`

	// Forced is set when the push needed the forced retry.
	Forced bool `json:"forced,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}

// Publisher runs the publish state machine.
type Publisher struct {
	runner  tool.Runner
	creator Creator
	prober  *workspace.Prober
	clock   clock.Clock
	logger  *slog.Logger
}

// New returns a Publisher. creator may be nil, in which case a missing
// remote cannot be created and only the re-probe remains.
func New(runner tool.Runner, creator Creator, clk clock.Clock, logger *slog.Logger) *Publisher {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Publisher{
		runner:  runner,
		creator: creator,
		prober:  workspace.NewProber(runner),
		clock:   clk,
		logger:  logger,
	}
}

// Inspect reports the publish state of the versioned root and remote
// without changing anything.
func (p *Publisher) Inspect(ctx context.Context, options Options) (Snapshot, error) {
	snapshot := Snapshot{
		Dir:        options.Dir,
		RemoteName: options.remote(),
		RemoteURL:  options.URL,
	}

	local, err := p.prober.Checkout(ctx, options.Dir)
	if err != nil {
		return snapshot, err
	}
	if local == workspace.Valid {
		snapshot.LocalInitialized = true
		repository := git.NewRepository(options.Dir, p.runner)
		if snapshot.Branch, err = repository.CurrentBranch(ctx); err != nil {
			return snapshot, err
		}
		if snapshot.PendingChanges, err = repository.HasPendingChanges(ctx); err != nil {
			return snapshot, err
		}
		if url, exists, err := repository.RemoteURL(ctx, options.remote()); err != nil {
			return snapshot, err
		} else if exists {
			snapshot.ConfiguredURL = url
		}
	}

	remote, err := p.prober.Remote(ctx, options.URL)
	if err != nil {
		return snapshot, err
	}
	snapshot.RemoteExists = remote == workspace.Valid
	return snapshot, nil
}

// Publish runs the state machine to a terminal state. The returned
// error is non-nil exactly when the final state is Failed.
func (p *Publisher) Publish(ctx context.Context, options Options) (Result, error) {
	result := Result{RemoteURL: options.URL}
	if options.URL == "" || options.Branch == "" {
		return p.fail(&result, nil, errors.New("publisher: remote URL and branch are required"))
	}

	repository, err := p.openRepository(ctx, options)
	if err != nil {
		return p.fail(&result, nil, err)
	}
	if err := excludePaths(repository.Dir(), options.Exclude); err != nil {
		return p.fail(&result, nil, err)
	}
	if result.Repointed, err = p.pointRemote(ctx, repository, options); err != nil {
		return p.fail(&result, nil, err)
	}

	remote, err := p.prober.Remote(ctx, options.URL)
	if err != nil {
		return p.fail(&result, nil, err)
	}
	initial := NoRemote
	if remote == workspace.Valid {
		initial = RemoteExists
	}
	state := newMachine(initial)
	p.logger.Info("publish starting", "remote", options.URL, "state", initial)

	if state.state == NoRemote {
		if err := p.provision(ctx, options, &result); err != nil {
			return p.fail(&result, state, err)
		}
		if err := state.advance(RemoteExists); err != nil {
			return p.fail(&result, state, err)
		}
	}

	if err := repository.AddAll(ctx); err != nil {
		return p.fail(&result, state, err)
	}
	pending, err := repository.HasPendingChanges(ctx)
	if err != nil {
		return p.fail(&result, state, err)
	}
	if pending {
		message := options.CommitPrefix + " " + p.clock.Now().UTC().Format(time.RFC3339)
		if err := repository.Commit(ctx, strings.TrimSpace(message), options.Identity); err != nil {
			return p.fail(&result, state, err)
		}
		if result.Commit, err = repository.HeadCommit(ctx); err != nil {
			return p.fail(&result, state, err)
		}
		if err := state.advance(Committed); err != nil {
			return p.fail(&result, state, err)
		}
		p.logger.Info("committed", "commit", result.Commit)
	} else {
		p.logger.Info("nothing to commit")
	}

	hasCommits, err := repository.HasCommits(ctx)
	if err != nil {
		return p.fail(&result, state, err)
	}
	if !hasCommits {
		return p.fail(&result, state, errors.New("publisher: nothing to push: the repository has no commits"))
	}
	if err := repository.RenameBranch(ctx, options.Branch); err != nil {
		return p.fail(&result, state, err)
	}

	return p.push(ctx, repository, options, state, &result)
}

// push pushes the branch, retrying once with --force after a rejection
// when allowed. Never more than one retry.
func (p *Publisher) push(ctx context.Context, repository *git.Repository, options Options, state *machine, result *Result) (Result, error) {
	remote := options.remote()
	pushErr := repository.Push(ctx, remote, options.Branch, git.PushOptions{SetUpstream: true})
	if pushErr == nil {
		return p.succeed(result, state)
	}

	if err := state.advance(PushRejected); err != nil {
		return p.fail(result, state, err)
	}
	if !options.ForceOnReject {
		return p.fail(result, state, fmt.Errorf("push rejected: %w", pushErr))
	}

	p.logger.Warn("push rejected, retrying with --force", "error", pushErr)
	result.Warnings = append(result.Warnings, "push rejected; remote history overwritten by forced push")
	result.Forced = true
	if err := repository.Push(ctx, remote, options.Branch, git.PushOptions{Force: true, SetUpstream: true}); err != nil {
		return p.fail(result, state, fmt.Errorf("forced push: %w", err))
	}
	return p.succeed(result, state)
}

// provision runs the creation fallback chain: create; when the creation
// tool is unavailable, install it and create again; then re-probe the
// remote whatever the outcome, since a successful creation is not
// trusted until the remote is visible and a failed one may have raced
// with an out-of-band creation.
func (p *Publisher) provision(ctx context.Context, options Options, result *Result) error {
	createErr := errors.New("no repository creator configured")
	if p.creator != nil {
		request := CreateRequest{
			Owner:       options.Owner,
			Repo:        options.Repo,
			Description: options.Description,
			Private:     options.Private,
		}
		createErr = p.creator.Create(ctx, request)
		if errors.Is(createErr, ErrCreatorUnavailable) && len(options.InstallCommand) > 0 {
			p.logger.Warn("creation tool unavailable, installing", "creator", p.creator.Name(), "install", strings.Join(options.InstallCommand, " "))
			result.Installed = true
			if err := p.install(ctx, options); err != nil {
				p.logger.Error("installing creation tool failed", "error", err)
				result.Warnings = append(result.Warnings, "installing creation tool failed: "+err.Error())
			}
			createErr = p.creator.Create(ctx, request)
		} else if errors.Is(createErr, ErrCreatorUnavailable) {
			p.logger.Warn("creation tool unavailable and no installer configured", "creator", p.creator.Name())
			result.Warnings = append(result.Warnings, "creation tool "+p.creator.Name()+" unavailable and no installer configured")
		}
	}
	if createErr != nil {
		p.logger.Warn("repository creation failed", "error", createErr)
	}

	remote, err := p.prober.Remote(ctx, options.URL)
	if err != nil {
		return err
	}
	switch {
	case remote == workspace.Valid && createErr == nil:
		result.Created = true
		result.CreatedBy = p.creator.Name()
		p.logger.Info("remote created", "creator", result.CreatedBy, "remote", options.URL)
		return nil
	case remote == workspace.Valid:
		result.Warnings = append(result.Warnings, "repository creation failed but the remote exists: "+createErr.Error())
		return nil
	case createErr == nil:
		return fmt.Errorf("remote %s not reachable after creation by %s", options.URL, p.creator.Name())
	default:
		return fmt.Errorf("creating remote repository: %w", createErr)
	}
}

func (p *Publisher) install(ctx context.Context, options Options) error {
	result, err := p.runner.Run(ctx, tool.Invocation{
		Name: options.InstallCommand[0],
		Args: options.InstallCommand[1:],
		Dir:  options.Dir,
	})
	if err != nil {
		return err
	}
	return result.Err()
}

// openRepository returns the repository at the versioned root,
// initializing it when the directory is not yet a repository. A
// directory with a broken .git is an error: the caller's own repository
// is never reinitialized over.
func (p *Publisher) openRepository(ctx context.Context, options Options) (*git.Repository, error) {
	state, err := p.prober.Checkout(ctx, options.Dir)
	if err != nil {
		return nil, err
	}
	switch state {
	case workspace.Valid:
		return git.NewRepository(options.Dir, p.runner), nil
	case workspace.Invalid:
		if _, err := os.Lstat(filepath.Join(options.Dir, ".git")); err == nil {
			return nil, fmt.Errorf("publisher: %s has a .git entry but is not a usable repository", options.Dir)
		}
	}
	p.logger.Info("initializing repository", "dir", options.Dir, "branch", options.Branch)
	return git.Init(ctx, p.runner, options.Dir, options.Branch)
}

// pointRemote makes the local remote point at options.URL. Reports
// whether an existing remote was repointed.
func (p *Publisher) pointRemote(ctx context.Context, repository *git.Repository, options Options) (bool, error) {
	current, exists, err := repository.RemoteURL(ctx, options.remote())
	if err != nil {
		return false, err
	}
	if exists && current == options.URL {
		return false, nil
	}
	if err := repository.SetRemote(ctx, options.remote(), options.URL); err != nil {
		return false, err
	}
	if exists {
		p.logger.Warn("repointed stale remote", "remote", options.remote(), "from", current, "to", options.URL)
	}
	return exists, nil
}

func (p *Publisher) succeed(result *Result, state *machine) (Result, error) {
	if err := state.advance(Pushed); err != nil {
		return p.fail(result, state, err)
	}
	result.State = state.state
	result.Path = state.path
	p.logger.Info("published", "remote", result.RemoteURL, "commit", result.Commit, "forced", result.Forced)
	return *result, nil
}

// fail moves to Failed and returns err. state is nil when the run
// failed before the remote was probed; no path is reported then.
func (p *Publisher) fail(result *Result, state *machine, err error) (Result, error) {
	if state == nil {
		result.State = Failed
		result.Path = nil
		p.logger.Error("publish failed before probing the remote", "error", err)
		return *result, err
	}
	if !state.state.Terminal() {
		// Every non-terminal state may fail.
		_ = state.advance(Failed)
	}
	result.State = state.state
	result.Path = state.path
	p.logger.Error("publish failed", "error", err, "path", state.path)
	return *result, err
}

// excludePaths appends each path to .git/info/exclude unless already
// listed.
func excludePaths(dir string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	excludeFile := filepath.Join(dir, ".git", "info", "exclude")
	existing, err := os.ReadFile(excludeFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", excludeFile, err)
	}
	lines := strings.Split(string(existing), "\n")

	var additions []string
	for _, path := range paths {
		pattern := "/" + strings.TrimPrefix(filepath.ToSlash(filepath.Clean(path)), "/") + "/"
		if !slices.Contains(lines, pattern) && !slices.Contains(additions, pattern) {
			additions = append(additions, pattern)
		}
	}
	if len(additions) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(excludeFile), 0o755); err != nil {
		return err
	}
	content := string(existing)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += strings.Join(additions, "\n") + "\n"
	return os.WriteFile(excludeFile, []byte(content), 0o644)
}
