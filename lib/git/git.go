// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI. All commands that
// operate on an existing repository target it via the -C flag, which
// every Repository method injects, so there is never an implicit
// "current" repository. Commands run through a [tool.Runner], which lets
// the publisher's retry logic and the tests observe every invocation.
package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/shipyard/lib/tool"
)

// nonInteractive keeps git from blocking on a credential prompt when a
// remote is missing or private. A hung prompt would hang the pipeline.
var nonInteractive = []string{"GIT_TERMINAL_PROMPT=0"}

// Error is a git command that ran and exited non-zero.
type Error struct {
	Args     []string
	Dir      string
	ExitCode int
	Stderr   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("git %s in %s: exit status %d (stderr: %s)",
		strings.Join(e.Args, " "), e.Dir, e.ExitCode, e.Stderr)
}

// Repository represents a git working tree at a specific directory.
type Repository struct {
	dir    string
	runner tool.Runner
}

// NewRepository returns a Repository targeting dir. The directory does
// not need to be a repository yet; see [Init] and [Clone].
func NewRepository(dir string, runner tool.Runner) *Repository {
	return &Repository{dir: dir, runner: runner}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Exec runs a git command against this repository and returns the raw
// result without interpreting the exit code. Callers that branch on
// specific exit codes (ls-remote, push) use this.
func (r *Repository) Exec(ctx context.Context, args ...string) (tool.Result, error) {
	return r.runner.Run(ctx, tool.Invocation{
		Name: "git",
		Args: append([]string{"-C", r.dir}, args...),
		Env:  nonInteractive,
	})
}

// Run executes a git command and returns trimmed stdout. A non-zero
// exit is returned as *Error with stderr attached.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	result, err := r.Exec(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("git %s in %s: %w", strings.Join(args, " "), r.dir, err)
	}
	if !result.Success() {
		return "", &Error{
			Args:     args,
			Dir:      r.dir,
			ExitCode: result.ExitCode,
			Stderr:   strings.TrimSpace(result.Stderr),
		}
	}
	return strings.TrimSpace(result.Stdout), nil
}

// CloneOptions controls [Clone].
type CloneOptions struct {
	// Branch is checked out after cloning. Empty means the remote's
	// default branch.
	Branch string

	// Depth truncates history to this many commits. Zero means full
	// history.
	Depth int
}

// Clone clones url into dir, which must not exist (or be empty). The
// parent directory is created if needed.
func Clone(ctx context.Context, runner tool.Runner, url, dir string, options CloneOptions) (*Repository, error) {
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("creating clone parent %s: %w", parent, err)
	}

	args := []string{"clone"}
	if options.Branch != "" {
		args = append(args, "--branch", options.Branch, "--single-branch")
	}
	if options.Depth > 0 {
		args = append(args, "--depth", fmt.Sprint(options.Depth))
	}
	args = append(args, "--", url, dir)

	result, err := runner.Run(ctx, tool.Invocation{Name: "git", Args: args, Dir: parent, Env: nonInteractive})
	if err != nil {
		return nil, fmt.Errorf("git clone %s: %w", url, err)
	}
	if !result.Success() {
		return nil, &Error{
			Args:     args,
			Dir:      parent,
			ExitCode: result.ExitCode,
			Stderr:   strings.TrimSpace(result.Stderr),
		}
	}
	return NewRepository(dir, runner), nil
}

// Init creates a repository at dir (creating the directory if needed)
// with HEAD pointing at initialBranch. Re-initializing an existing
// repository is harmless.
func Init(ctx context.Context, runner tool.Runner, dir, initialBranch string) (*Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating repository directory %s: %w", dir, err)
	}
	repository := NewRepository(dir, runner)
	if _, err := repository.Run(ctx, "init", "--quiet"); err != nil {
		return nil, err
	}
	if initialBranch != "" {
		if _, err := repository.Run(ctx, "symbolic-ref", "HEAD", "refs/heads/"+initialBranch); err != nil {
			return nil, err
		}
	}
	return repository, nil
}

// Fetch fetches branch from remote into its remote-tracking ref. The
// refspec is explicit because a --single-branch clone only fetches the
// branch it was cloned at.
func (r *Repository) Fetch(ctx context.Context, remote, branch string) error {
	refspec := "+refs/heads/" + branch + ":refs/remotes/" + remote + "/" + branch
	_, err := r.Run(ctx, "fetch", "--quiet", remote, refspec)
	return err
}

// HasBranch reports whether the local branch exists.
func (r *Repository) HasBranch(ctx context.Context, branch string) (bool, error) {
	result, err := r.Exec(ctx, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	if err != nil {
		return false, fmt.Errorf("git rev-parse in %s: %w", r.dir, err)
	}
	return result.Success(), nil
}

// Checkout switches the working tree to an existing local branch.
func (r *Repository) Checkout(ctx context.Context, branch string) error {
	_, err := r.Run(ctx, "checkout", "--quiet", branch)
	return err
}

// CheckoutTracking creates branch at remote/branch, sets it to track
// that ref, and switches to it. The remote-tracking ref must have been
// fetched.
func (r *Repository) CheckoutTracking(ctx context.Context, remote, branch string) error {
	_, err := r.Run(ctx, "checkout", "--quiet", "-b", branch, "--track", remote+"/"+branch)
	return err
}

// Pull fast-forwards the current branch from remote/branch. Diverged
// history is an error; the source cache is never merged.
func (r *Repository) Pull(ctx context.Context, remote, branch string) error {
	_, err := r.Run(ctx, "pull", "--quiet", "--ff-only", remote, branch)
	return err
}

// HeadCommit returns the full SHA of HEAD.
func (r *Repository) HeadCommit(ctx context.Context) (string, error) {
	return r.Run(ctx, "rev-parse", "HEAD")
}

// HasCommits reports whether HEAD resolves to a commit. A freshly
// initialized repository has an unborn branch and no commits.
func (r *Repository) HasCommits(ctx context.Context) (bool, error) {
	result, err := r.Exec(ctx, "rev-parse", "--verify", "--quiet", "HEAD")
	if err != nil {
		return false, fmt.Errorf("git rev-parse in %s: %w", r.dir, err)
	}
	return result.Success(), nil
}

// TopLevel returns the root of the working tree containing Dir. Fails
// when Dir is not inside any working tree.
func (r *Repository) TopLevel(ctx context.Context) (string, error) {
	return r.Run(ctx, "rev-parse", "--show-toplevel")
}

// CurrentBranch returns the branch HEAD points to. Works on an unborn
// branch. Fails on a detached HEAD.
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	return r.Run(ctx, "symbolic-ref", "--short", "HEAD")
}

// RenameBranch renames the current branch to name, replacing any
// existing branch of that name. No-op when already on name.
func (r *Repository) RenameBranch(ctx context.Context, name string) error {
	current, err := r.CurrentBranch(ctx)
	if err == nil && current == name {
		return nil
	}
	hasCommits, err := r.HasCommits(ctx)
	if err != nil {
		return err
	}
	if !hasCommits {
		// An unborn branch has no ref to move; repoint HEAD instead.
		_, err = r.Run(ctx, "symbolic-ref", "HEAD", "refs/heads/"+name)
		return err
	}
	_, err = r.Run(ctx, "branch", "-M", name)
	return err
}

// Remotes returns the names of all configured remotes.
func (r *Repository) Remotes(ctx context.Context) ([]string, error) {
	output, err := r.Run(ctx, "remote")
	if err != nil {
		return nil, err
	}
	if output == "" {
		return nil, nil
	}
	return strings.Fields(output), nil
}

// RemoteURL returns the fetch URL of the named remote. The boolean is
// false when the remote is not configured.
func (r *Repository) RemoteURL(ctx context.Context, name string) (string, bool, error) {
	remotes, err := r.Remotes(ctx)
	if err != nil {
		return "", false, err
	}
	for _, remote := range remotes {
		if remote == name {
			url, err := r.Run(ctx, "remote", "get-url", name)
			if err != nil {
				return "", false, err
			}
			return url, true, nil
		}
	}
	return "", false, nil
}

// SetRemote points the named remote at url, adding it if absent.
func (r *Repository) SetRemote(ctx context.Context, name, url string) error {
	_, exists, err := r.RemoteURL(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		_, err = r.Run(ctx, "remote", "set-url", name, url)
	} else {
		_, err = r.Run(ctx, "remote", "add", name, url)
	}
	return err
}

// AddAll stages every change in the working tree, including deletions
// and untracked files.
func (r *Repository) AddAll(ctx context.Context) error {
	_, err := r.Run(ctx, "add", "--all")
	return err
}

// HasPendingChanges reports whether the working tree or index differs
// from HEAD, including untracked files.
func (r *Repository) HasPendingChanges(ctx context.Context) (bool, error) {
	output, err := r.Run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return output != "", nil
}

// Identity is the author and committer used by [Repository.Commit].
// Empty fields fall back to the user's git configuration.
type Identity struct {
	Name  string
	Email string
}

// Commit records the index with message.
func (r *Repository) Commit(ctx context.Context, message string, identity Identity) error {
	var args []string
	if identity.Name != "" {
		args = append(args, "-c", "user.name="+identity.Name)
	}
	if identity.Email != "" {
		args = append(args, "-c", "user.email="+identity.Email)
	}
	args = append(args, "commit", "--quiet", "--message", message)
	_, err := r.Run(ctx, args...)
	return err
}

// PushOptions controls [Repository.Push].
type PushOptions struct {
	// Force overwrites the remote branch even when it is not an
	// ancestor of the local branch.
	Force bool

	// SetUpstream records remote/branch as the tracking branch.
	SetUpstream bool
}

// Push pushes branch to remote.
func (r *Repository) Push(ctx context.Context, remote, branch string, options PushOptions) error {
	args := []string{"push", "--quiet"}
	if options.Force {
		args = append(args, "--force")
	}
	if options.SetUpstream {
		args = append(args, "--set-upstream")
	}
	args = append(args, remote, branch)
	_, err := r.Run(ctx, args...)
	return err
}

// RemoteProbe is the outcome of [LsRemote].
type RemoteProbe int

const (
	// RemoteMissing means the remote could not be listed: it does not
	// exist, is unreachable, or access was denied.
	RemoteMissing RemoteProbe = iota

	// RemoteEmpty means the remote exists but has no refs yet.
	RemoteEmpty

	// RemoteHasRefs means the remote exists and has at least one ref.
	RemoteHasRefs
)

// Exists reports whether the probe found a remote repository.
func (p RemoteProbe) Exists() bool { return p != RemoteMissing }

// LsRemote probes url without cloning it. Runs outside any repository,
// so it works before the local repository is initialized. The error is
// non-nil only when git itself could not be started.
func LsRemote(ctx context.Context, runner tool.Runner, url string) (RemoteProbe, error) {
	result, err := runner.Run(ctx, tool.Invocation{
		Name: "git",
		Args: []string{"ls-remote", "--exit-code", "--", url},
		Env:  nonInteractive,
	})
	if err != nil {
		return RemoteMissing, fmt.Errorf("git ls-remote %s: %w", url, err)
	}
	switch result.ExitCode {
	case 0:
		return RemoteHasRefs, nil
	case 2:
		// --exit-code: reachable, but no refs matched.
		return RemoteEmpty, nil
	default:
		return RemoteMissing, nil
	}
}
