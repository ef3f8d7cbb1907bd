// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package packager

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/shipyard/lib/binhash"
)

func defaultClassifier() Classifier {
	return NewClassifier(
		[]string{".exe", ".sys", ".cpl"},
		[]string{".dll", ".so", ".lib"},
		[]string{".inf", ".ini"},
	)
}

type fixture struct {
	build   string
	install string
	options Options
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	base := t.TempDir()
	install := filepath.Join(base, "install")
	return fixture{
		build:   filepath.Join(base, "build"),
		install: install,
		options: Options{
			Outputs: []string{
				filepath.Join(base, "build", "native"),
				filepath.Join(base, "build", "cli"),
				filepath.Join(base, "build", "gui"),
			},
			Install:     install,
			Bin:         filepath.Join(install, "bin"),
			Lib:         filepath.Join(install, "lib"),
			ProfileFile: "~/.profile",
		},
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestPackage_RoutesByKind(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	writeFile(t, filepath.Join(f.build, "native", "x64", "imdisk.sys"), "driver")
	writeFile(t, filepath.Join(f.build, "native", "x64", "imdisk.inf"), "inf")
	writeFile(t, filepath.Join(f.build, "cli", "imdisk.exe"), "cli")
	writeFile(t, filepath.Join(f.build, "cli", "imdisk.pdb"), "symbols")
	writeFile(t, filepath.Join(f.build, "gui", "Release", "ImDiskNet.DLL"), "managed")

	result, err := New(defaultClassifier(), nil).Package(f.options)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}

	want := map[string]string{
		"bin/imdisk.sys":    "driver",
		"bin/imdisk.inf":    "inf",
		"bin/imdisk.exe":    "cli",
		"lib/ImDiskNet.DLL": "managed",
	}
	for relative, content := range want {
		if got := readFile(t, filepath.Join(f.install, relative)); got != content {
			t.Errorf("%s = %q, want %q", relative, got, content)
		}
	}
	if _, err := os.Stat(filepath.Join(f.install, "bin", "imdisk.pdb")); !os.IsNotExist(err) {
		t.Error("unclassified file was installed")
	}
	if result.Copied.Len() != 4 {
		t.Errorf("Copied = %d artifacts, want 4", result.Copied.Len())
	}
	if len(result.Copied.ByKind(Library)) != 1 || len(result.Copied.ByKind(Configuration)) != 1 {
		t.Errorf("kinds = %+v", result.Copied.Artifacts)
	}
	for _, artifact := range result.Copied.Artifacts {
		digest, err := binhash.HashFile(artifact.Destination)
		if err != nil {
			t.Fatal(err)
		}
		if artifact.Digest != digest.String() {
			t.Errorf("%s digest = %s, want %s", artifact.Destination, artifact.Digest, digest)
		}
		if artifact.Signed {
			t.Errorf("%s starts signed", artifact.Destination)
		}
	}
}

func TestPackage_OverwritesUnconditionally(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	writeFile(t, filepath.Join(f.install, "bin", "tool.exe"), "stale but newer-looking")
	writeFile(t, filepath.Join(f.build, "cli", "tool.exe"), "fresh")

	if _, err := New(defaultClassifier(), nil).Package(f.options); err != nil {
		t.Fatalf("Package: %v", err)
	}
	if got := readFile(t, filepath.Join(f.install, "bin", "tool.exe")); got != "fresh" {
		t.Errorf("tool.exe = %q, want overwritten", got)
	}
}

func TestPackage_MissingOutputIsWarning(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	// Only the CLI produced output; a previous build left a driver.
	writeFile(t, filepath.Join(f.build, "cli", "tool.exe"), "cli")
	writeFile(t, filepath.Join(f.install, "bin", "old.sys"), "previous build")

	result, err := New(defaultClassifier(), nil).Package(f.options)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	if len(result.MissingOutputs) != 2 {
		t.Errorf("MissingOutputs = %v, want native and gui", result.MissingOutputs)
	}
	manifest := readFile(t, result.Manifest)
	if !strings.Contains(manifest, "bin/old.sys") || !strings.Contains(manifest, "bin/tool.exe") {
		t.Errorf("manifest does not list everything installed:\n%s", manifest)
	}
}

func TestPackage_CollisionLaterOutputWins(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	writeFile(t, filepath.Join(f.build, "native", "shared.dll"), "native")
	writeFile(t, filepath.Join(f.build, "gui", "shared.dll"), "gui")

	result, err := New(defaultClassifier(), nil).Package(f.options)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	if got := readFile(t, filepath.Join(f.install, "lib", "shared.dll")); got != "gui" {
		t.Errorf("shared.dll = %q, want the later output", got)
	}
	if result.Copied.Len() != 1 || len(result.Replaced) != 1 {
		t.Errorf("Copied = %d, Replaced = %v", result.Copied.Len(), result.Replaced)
	}
}

func TestPackage_RepeatRunIsByteIdentical(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	writeFile(t, filepath.Join(f.build, "cli", "tool.exe"), "cli")
	packager := New(defaultClassifier(), nil)

	first, err := packager.Package(f.options)
	if err != nil {
		t.Fatalf("first Package: %v", err)
	}
	snapshot := map[string]string{}
	for _, path := range append(first.Scripts, first.Manifest) {
		snapshot[path] = readFile(t, path)
	}

	second, err := packager.Package(f.options)
	if err != nil {
		t.Fatalf("second Package: %v", err)
	}
	for _, path := range append(second.Scripts, second.Manifest) {
		if readFile(t, path) != snapshot[path] {
			t.Errorf("%s changed between identical runs", path)
		}
	}
}

func TestShellActivation_Idempotent(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not installed")
	}

	f := newFixture(t)
	if _, err := New(defaultClassifier(), nil).Package(f.options); err != nil {
		t.Fatalf("Package: %v", err)
	}
	home := t.TempDir()
	script := filepath.Join(f.install, ShellScript)

	command := exec.Command("sh", "-c", `. "$1"; . "$1"; . "$1"; printf '%s' "$PATH"`, "sh", script)
	command.Env = []string{"HOME=" + home, "PATH=/usr/bin:/bin"}
	output, err := command.CombinedOutput()
	if err != nil {
		t.Fatalf("sourcing activate.sh: %v\n%s", err, output)
	}

	entries := strings.Split(string(output), ":")
	count := 0
	for _, entry := range entries {
		if entry == f.options.Bin {
			count++
		}
	}
	if count != 1 || entries[0] != f.options.Bin {
		t.Errorf("PATH = %q, want bin exactly once at the front", output)
	}

	profile := readFile(t, filepath.Join(home, ".profile"))
	if lines := strings.Count(profile, f.options.Bin); lines != 1 {
		t.Errorf("profile mentions bin %d times, want 1:\n%s", lines, profile)
	}
}

func TestPowerShellActivation_RelativeBin(t *testing.T) {
	t.Parallel()

	script := PowerShellActivation("/opt/install", "/opt/install/bin")
	if !strings.Contains(script, "Join-Path $PSScriptRoot 'bin'") {
		t.Errorf("script does not resolve bin relative to itself:\n%s", script)
	}
	if !strings.Contains(script, "-contains $shipyardBin") {
		t.Error("script lacks the containment guard")
	}
}

func TestReadManifest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	writeFile(t, filepath.Join(f.build, "cli", "b.exe"), "b")
	writeFile(t, filepath.Join(f.build, "cli", "a.dll"), "a")
	result, err := New(defaultClassifier(), nil).Package(f.options)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	entries, err := ReadManifest(result.Manifest)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Path != "bin/b.exe" || entries[0].Kind != Executable {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].Path != "lib/a.dll" || entries[1].Kind != Library {
		t.Errorf("entries[1] = %+v", entries[1])
	}
}

func TestClassifier(t *testing.T) {
	t.Parallel()

	classifier := NewClassifier([]string{".exe"}, []string{".dll", ".EXE"}, []string{".ini"})
	tests := map[string]struct {
		kind Kind
		ok   bool
	}{
		"a.exe":     {Executable, true},
		"A.EXE":     {Executable, true},
		"b.Dll":     {Library, true},
		"c.ini":     {Configuration, true},
		"README.md": {"", false},
		"noext":     {"", false},
	}
	for name, want := range tests {
		kind, ok := classifier.Classify(name)
		if kind != want.kind || ok != want.ok {
			t.Errorf("Classify(%q) = %q, %v; want %q, %v", name, kind, ok, want.kind, want.ok)
		}
	}
	if got := classifier.Extensions(Library); len(got) != 1 || got[0] != ".dll" {
		t.Errorf("Extensions(Library) = %v", got)
	}
	if !Executable.Signable() || !Library.Signable() || Configuration.Signable() {
		t.Error("Signable mapping wrong")
	}
}
