// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gittest builds throwaway git repositories on disk for tests:
// bare "remote" repositories with seeded history and helpers to inspect
// them. It shells out to git directly so that it never depends on the
// code under test.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// Identity used for every commit these helpers create.
const (
	AuthorName  = "Shipyard Test"
	AuthorEmail = "test@shipyard.test"
)

// RequireGit skips the test when git is not installed.
func RequireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

// Run executes git with args in dir and returns trimmed stdout. Fails
// the test on a non-zero exit.
func Run(t *testing.T, dir string, args ...string) string {
	t.Helper()
	command := exec.Command("git", args...)
	command.Dir = dir
	command.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME="+AuthorName,
		"GIT_AUTHOR_EMAIL="+AuthorEmail,
		"GIT_COMMITTER_NAME="+AuthorName,
		"GIT_COMMITTER_EMAIL="+AuthorEmail,
		"GIT_TERMINAL_PROMPT=0",
	)
	output, err := command.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s in %s: %v\n%s", strings.Join(args, " "), dir, err, output)
	}
	return strings.TrimSpace(string(output))
}

// NewUpstream creates a bare repository whose branch holds one commit
// containing files (relative path -> content). Returns the bare
// repository path, usable as a clone URL.
func NewUpstream(t *testing.T, branch string, files map[string]string) string {
	t.Helper()
	RequireGit(t)

	root := t.TempDir()
	bare := filepath.Join(root, "upstream.git")
	Run(t, root, "init", "--quiet", "--bare", bare)
	Run(t, bare, "symbolic-ref", "HEAD", "refs/heads/"+branch)

	seed := filepath.Join(root, "seed")
	Run(t, root, "init", "--quiet", seed)
	Run(t, seed, "symbolic-ref", "HEAD", "refs/heads/"+branch)
	Commit(t, seed, files, "initial")
	Run(t, seed, "remote", "add", "origin", bare)
	Run(t, seed, "push", "--quiet", "origin", branch)
	return bare
}

// NewBare creates an empty bare repository and returns its path.
func NewBare(t *testing.T) string {
	t.Helper()
	RequireGit(t)

	root := t.TempDir()
	bare := filepath.Join(root, "remote.git")
	Run(t, root, "init", "--quiet", "--bare", bare)
	return bare
}

// Commit writes files into the working tree at dir, stages everything,
// and commits with message.
func Commit(t *testing.T, dir string, files map[string]string, message string) string {
	t.Helper()
	WriteFiles(t, dir, files)
	Run(t, dir, "add", "--all")
	Run(t, dir, "commit", "--quiet", "--allow-empty", "-m", message)
	return Run(t, dir, "rev-parse", "HEAD")
}

// PushCommit clones upstream, commits files on branch, and pushes,
// simulating an upstream change made by someone else.
func PushCommit(t *testing.T, upstream, branch string, files map[string]string, message string) string {
	t.Helper()
	work := filepath.Join(t.TempDir(), "work")
	Run(t, filepath.Dir(work), "clone", "--quiet", "--branch", branch, upstream, work)
	sha := Commit(t, work, files, message)
	Run(t, work, "push", "--quiet", "origin", branch)
	return sha
}

// WriteFiles writes each relative path under dir, creating parents.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

// CommitCount returns the number of commits reachable from ref in the
// repository at dir (bare or not). Returns 0 when ref does not exist.
func CommitCount(t *testing.T, dir, ref string) int {
	t.Helper()
	command := exec.Command("git", "-C", dir, "rev-list", "--count", ref)
	output, err := command.Output()
	if err != nil {
		return 0
	}
	count, err := strconv.Atoi(strings.TrimSpace(string(output)))
	if err != nil {
		t.Fatalf("parsing rev-list count %q: %v", output, err)
	}
	return count
}

// Head returns the SHA that ref resolves to in the repository at dir,
// or "" when it does not resolve.
func Head(t *testing.T, dir, ref string) string {
	t.Helper()
	command := exec.Command("git", "-C", dir, "rev-parse", "--verify", "--quiet", ref)
	output, err := command.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}
