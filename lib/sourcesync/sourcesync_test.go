// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sourcesync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/shipyard/lib/git/gittest"
	"github.com/bureau-foundation/shipyard/lib/tool"
	"github.com/bureau-foundation/shipyard/lib/tool/tooltest"
	"github.com/bureau-foundation/shipyard/lib/workspace"
)

func newSyncer(t *testing.T) (*Syncer, *tooltest.Runner) {
	t.Helper()
	recorder := tooltest.New()
	recorder.Fallback = tool.NewExec(nil)
	return New(recorder, nil), recorder
}

func assertCheckout(t *testing.T, dir, branch string) {
	t.Helper()
	state, err := workspace.NewProber(tool.NewExec(nil)).Checkout(context.Background(), dir)
	if err != nil || state != workspace.Valid {
		t.Fatalf("probe %s = %v, %v; want valid checkout", dir, state, err)
	}
	if got := gittest.Run(t, dir, "symbolic-ref", "--short", "HEAD"); got != branch {
		t.Errorf("branch = %q, want %q", got, branch)
	}
}

// Empty source root: exactly one clone, valid checkout at main.
func TestSync_FreshClone(t *testing.T) {
	t.Parallel()

	upstream := gittest.NewUpstream(t, "main", map[string]string{"README": "v1\n"})
	dir := filepath.Join(t.TempDir(), "src", "tree")
	syncer, runner := newSyncer(t)

	result, err := syncer.Sync(context.Background(), Options{URL: upstream, Branch: "main", Dir: dir})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.Action != ActionCloned || result.Previous != workspace.Absent {
		t.Errorf("result = %+v, want cloned from absent", result)
	}
	if count := runner.Count(tooltest.Command("git", "clone")); count != 1 {
		t.Errorf("clone ran %d times, want 1", count)
	}
	assertCheckout(t, dir, "main")
	if result.Commit != gittest.Head(t, upstream, "refs/heads/main") {
		t.Errorf("Commit = %s, want upstream head", result.Commit)
	}
}

func TestSync_UpdatesInPlace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	upstream := gittest.NewUpstream(t, "main", map[string]string{"README": "v1\n"})
	dir := filepath.Join(t.TempDir(), "tree")
	syncer, runner := newSyncer(t)

	if _, err := syncer.Sync(ctx, Options{URL: upstream, Branch: "main", Dir: dir}); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	// A file the update must not destroy: proves no delete happened.
	sentinel := filepath.Join(dir, "untracked-local-file")
	if err := os.WriteFile(sentinel, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	want := gittest.PushCommit(t, upstream, "main", map[string]string{"NEW": "v2\n"}, "second")

	result, err := syncer.Sync(ctx, Options{URL: upstream, Branch: "main", Dir: dir})
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if result.Action != ActionUpdated {
		t.Errorf("Action = %s, want updated", result.Action)
	}
	if result.Commit != want {
		t.Errorf("Commit = %s, want %s", result.Commit, want)
	}
	if _, err := os.Stat(sentinel); err != nil {
		t.Errorf("update deleted untracked file: %v", err)
	}
	if count := runner.Count(tooltest.Command("git", "clone")); count != 1 {
		t.Errorf("clone ran %d times across both syncs, want 1", count)
	}
	for _, step := range []string{"fetch", "checkout", "pull"} {
		if runner.Count(tooltest.Command("git", step)) != 1 {
			t.Errorf("git %s ran %d times, want 1", step, runner.Count(tooltest.Command("git", step)))
		}
	}
}

func TestSync_SelfHealsInvalidTree(t *testing.T) {
	t.Parallel()

	upstream := gittest.NewUpstream(t, "main", map[string]string{"README": "v1\n"})

	setups := map[string]func(t *testing.T, dir string){
		"empty directory": func(t *testing.T, dir string) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				t.Fatal(err)
			}
		},
		"unrelated files": func(t *testing.T, dir string) {
			gittest.WriteFiles(t, dir, map[string]string{"junk.txt": "x", "sub/more.bin": "y"})
		},
		"broken git marker": func(t *testing.T, dir string) {
			gittest.WriteFiles(t, dir, map[string]string{".git/HEAD": "garbage", "file": "z"})
		},
		// What every run leaves behind: sanitizing strips the tree's
		// own .git, so the next sync starts from a fresh clone.
		"sanitized checkout": func(t *testing.T, dir string) {
			gittest.Run(t, filepath.Dir(dir), "clone", "--quiet", upstream, dir)
			if err := os.RemoveAll(filepath.Join(dir, ".git")); err != nil {
				t.Fatal(err)
			}
		},
		"checkout of another repository": func(t *testing.T, dir string) {
			other := gittest.NewUpstream(t, "main", map[string]string{"OTHER": "o"})
			gittest.Run(t, filepath.Dir(dir), "clone", "--quiet", other, dir)
		},
	}

	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			dir := filepath.Join(t.TempDir(), "tree")
			setup(t, dir)

			syncer, runner := newSyncer(t)
			result, err := syncer.Sync(context.Background(), Options{URL: upstream, Branch: "main", Dir: dir})
			if err != nil {
				t.Fatalf("Sync: %v", err)
			}
			if result.Action != ActionRecloned {
				t.Errorf("Action = %s, want recloned", result.Action)
			}
			if runner.Count(tooltest.Command("git", "pull")) != 0 {
				t.Error("an invalid tree was repaired in place")
			}
			assertCheckout(t, dir, "main")
			if _, err := os.Stat(filepath.Join(dir, "README")); err != nil {
				t.Errorf("README missing after reclone: %v", err)
			}
		})
	}
}

func TestSync_ForceReclones(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	upstream := gittest.NewUpstream(t, "main", map[string]string{"README": "v1\n"})
	dir := filepath.Join(t.TempDir(), "tree")
	syncer, runner := newSyncer(t)
	if _, err := syncer.Sync(ctx, Options{URL: upstream, Branch: "main", Dir: dir}); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	stray := filepath.Join(dir, "stray")
	if err := os.WriteFile(stray, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := syncer.Sync(ctx, Options{URL: upstream, Branch: "main", Dir: dir, Force: true})
	if err != nil {
		t.Fatalf("forced Sync: %v", err)
	}
	if result.Action != ActionForced || result.Previous != workspace.Valid {
		t.Errorf("result = %+v, want forced from valid", result)
	}
	if _, err := os.Stat(stray); !os.IsNotExist(err) {
		t.Errorf("stray file survived forced sync: %v", err)
	}
	if runner.Count(tooltest.Command("git", "clone")) != 2 {
		t.Errorf("clone count = %d, want 2", runner.Count(tooltest.Command("git", "clone")))
	}
}

func TestSync_CloneFailureIsError(t *testing.T) {
	t.Parallel()
	gittest.RequireGit(t)

	syncer, _ := newSyncer(t)
	_, err := syncer.Sync(context.Background(), Options{
		URL:    filepath.Join(t.TempDir(), "missing.git"),
		Branch: "main",
		Dir:    filepath.Join(t.TempDir(), "tree"),
	})
	if err == nil {
		t.Fatal("Sync from a missing remote succeeded")
	}
}

func TestSync_DivergedCheckoutFailsWithoutDeleting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	upstream := gittest.NewUpstream(t, "main", map[string]string{"README": "v1\n"})
	dir := filepath.Join(t.TempDir(), "tree")
	syncer, _ := newSyncer(t)
	if _, err := syncer.Sync(ctx, Options{URL: upstream, Branch: "main", Dir: dir}); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	gittest.Commit(t, dir, map[string]string{"local": "change"}, "local divergence")
	gittest.PushCommit(t, upstream, "main", map[string]string{"remote": "change"}, "remote divergence")

	if _, err := syncer.Sync(ctx, Options{URL: upstream, Branch: "main", Dir: dir}); err == nil {
		t.Fatal("Sync fast-forwarded diverged history")
	}
	if _, err := os.Stat(filepath.Join(dir, "local")); err != nil {
		t.Errorf("failed update deleted the checkout: %v", err)
	}
}

// A checkout cloned with --single-branch still follows a branch change
// in place.
func TestSync_SwitchesBranch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	upstream := gittest.NewUpstream(t, "main", map[string]string{"README": "v1\n"})
	dir := filepath.Join(t.TempDir(), "tree")
	syncer, runner := newSyncer(t)
	if _, err := syncer.Sync(ctx, Options{URL: upstream, Branch: "main", Dir: dir}); err != nil {
		t.Fatalf("Sync main: %v", err)
	}

	work := filepath.Join(t.TempDir(), "work")
	gittest.Run(t, filepath.Dir(work), "clone", "--quiet", upstream, work)
	gittest.Run(t, work, "checkout", "--quiet", "-b", "release")
	want := gittest.Commit(t, work, map[string]string{"RELEASE": "r1\n"}, "release")
	gittest.Run(t, work, "push", "--quiet", "origin", "release")

	result, err := syncer.Sync(ctx, Options{URL: upstream, Branch: "release", Dir: dir})
	if err != nil {
		t.Fatalf("Sync release: %v", err)
	}
	if result.Action != ActionUpdated {
		t.Errorf("Action = %s, want updated", result.Action)
	}
	if result.Commit != want {
		t.Errorf("Commit = %s, want %s", result.Commit, want)
	}
	assertCheckout(t, dir, "release")
	if _, err := os.Stat(filepath.Join(dir, "RELEASE")); err != nil {
		t.Errorf("release content missing: %v", err)
	}

	if _, err := syncer.Sync(ctx, Options{URL: upstream, Branch: "main", Dir: dir}); err != nil {
		t.Fatalf("Sync back to main: %v", err)
	}
	assertCheckout(t, dir, "main")
	if count := runner.Count(tooltest.Command("git", "clone")); count != 1 {
		t.Errorf("clone ran %d times, want 1", count)
	}
}

func TestRemoveTree_ReadOnlyEntries(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "tree")
	gittest.WriteFiles(t, dir, map[string]string{"objects/pack/p.pack": "data"})
	if err := os.Chmod(filepath.Join(dir, "objects", "pack", "p.pack"), 0o444); err != nil {
		t.Fatal(err)
	}
	if err := RemoveTree(dir); err != nil {
		t.Fatalf("RemoveTree: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("tree still present: %v", err)
	}
	if err := RemoveTree(dir); err != nil {
		t.Errorf("RemoveTree on missing path: %v", err)
	}
}
