// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/shipyard/lib/binhash"
	"github.com/bureau-foundation/shipyard/lib/clock"
	"github.com/bureau-foundation/shipyard/lib/config"
	"github.com/bureau-foundation/shipyard/lib/git/gittest"
	"github.com/bureau-foundation/shipyard/lib/history"
	"github.com/bureau-foundation/shipyard/lib/packager"
	"github.com/bureau-foundation/shipyard/lib/publisher"
	"github.com/bureau-foundation/shipyard/lib/report"
	"github.com/bureau-foundation/shipyard/lib/resultlog"
	"github.com/bureau-foundation/shipyard/lib/tool"
	"github.com/bureau-foundation/shipyard/lib/tool/tooltest"
)

var runTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// buildScript writes one executable and one library into its output
// directory, passed as $1.
const buildScript = `mkdir -p "$1" && printf 'tool v1' > "$1/tool.exe" && printf 'core v1' > "$1/core.dll"`

// signScript appends a marker to the file passed as $1.
const signScript = `printf ' signed' >> "$1"`

type fixture struct {
	cfg      *config.PipelineConfig
	root     string
	upstream string
	remote   string
}

// newFixture lays out a workspace whose versioned root is root, with an
// upstream source repository and an empty bare publish remote.
func newFixture(t *testing.T) fixture {
	t.Helper()
	gittest.RequireGit(t)
	if !tool.Available("sh") {
		t.Skip("sh not installed")
	}

	root := t.TempDir()
	upstream := gittest.NewUpstream(t, "main", map[string]string{
		"README.md":                "upstream\n",
		"driver/main.c":            "int main(void) { return 0; }\n",
		".github/workflows/ci.yml": "on: push\n",
	})
	remote := gittest.NewBare(t)

	cfg := config.Default()
	cfg.Roots = config.RootsConfig{
		Source:    filepath.Join(root, "source"),
		Build:     filepath.Join(root, "build"),
		Install:   filepath.Join(root, "install"),
		Versioned: root,
	}
	cfg.Source.URL = upstream
	cfg.Source.Branch = "main"
	cfg.Source.Subtree = "tool"
	cfg.Capabilities.BuildCLI = false
	cfg.Capabilities.BuildGUI = false
	cfg.Compile.Targets = map[string]config.TargetConfig{
		"native": {Command: []string{"sh", "-c", buildScript, "sh", "{output}"}},
	}
	cfg.Package.ProfileFile = filepath.Join(root, "profile")
	cfg.Sign.Command = []string{"sh", "-c", signScript, "sh", "{file}"}
	cfg.Publish.Owner = "acme"
	cfg.Publish.Repo = "tools"
	cfg.Publish.URLTemplate = remote
	cfg.Publish.Creator = config.CreatorGH
	cfg.Publish.AuthorName = gittest.AuthorName
	cfg.Publish.AuthorEmail = gittest.AuthorEmail
	if err := cfg.Validate(); err != nil {
		t.Fatalf("fixture config does not validate: %v", err)
	}
	return fixture{cfg: cfg, root: root, upstream: upstream, remote: remote}
}

func (f fixture) pipeline(t *testing.T, mutate func(*Config)) *Pipeline {
	t.Helper()
	pipelineConfig := Config{
		Pipeline: f.cfg,
		Runner:   tool.NewExec(nil),
		Clock:    clock.Fake(runTime),
	}
	if mutate != nil {
		mutate(&pipelineConfig)
	}
	p, err := New(pipelineConfig)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func stageStatuses(run report.RunReport) map[string]report.Status {
	statuses := make(map[string]report.Status, len(run.Stages))
	for _, stage := range run.Stages {
		statuses[stage.Stage] = stage.Status
	}
	return statuses
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestRun_FullPipelineThenUnchangedRerun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	run, err := f.pipeline(t, nil).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v\n%+v", err, run.Stages)
	}
	if run.ExitCode() != 0 || run.Failed() {
		t.Fatalf("ExitCode = %d, Failed = %v", run.ExitCode(), run.Failed())
	}
	var names []string
	for _, stage := range run.Stages {
		names = append(names, stage.Stage)
		if stage.Status != report.StatusOK {
			t.Errorf("stage %s: status %s (%s) warnings %v errors %v", stage.Stage, stage.Status, stage.Message, stage.Warnings, stage.Errors)
		}
	}
	if !slices.Equal(names, Stages) {
		t.Errorf("stages = %v, want %v", names, Stages)
	}

	layout := f.pipeline(t, nil).Layout()
	if _, err := os.Stat(filepath.Join(layout.SourceTree, ".github")); !os.IsNotExist(err) {
		t.Error("sanitize left .github in the source tree")
	}
	if got := readFile(t, filepath.Join(layout.InstallBin, "tool.exe")); got != "tool v1 signed" {
		t.Errorf("tool.exe = %q, want signed copy", got)
	}
	if got := readFile(t, filepath.Join(layout.InstallLib, "core.dll")); got != "core v1 signed" {
		t.Errorf("core.dll = %q, want signed copy", got)
	}

	entries, err := packager.ReadManifest(filepath.Join(layout.Install, packager.ManifestName))
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	signedDigest := binhash.FormatDigest(binhash.HashBytes([]byte("tool v1 signed")))
	found := false
	for _, entry := range entries {
		if strings.HasSuffix(entry.Path, "tool.exe") {
			found = true
			if entry.Digest != signedDigest {
				t.Errorf("manifest digest for tool.exe = %s, want digest of the signed file", entry.Digest)
			}
		}
	}
	if !found {
		t.Errorf("manifest has no tool.exe entry: %+v", entries)
	}

	if got := gittest.CommitCount(t, f.remote, "main"); got != 1 {
		t.Fatalf("remote has %d commits after first run, want 1", got)
	}
	tracked := gittest.Run(t, f.root, "ls-files")
	if !strings.Contains(tracked, "install/bin/tool.exe") || !strings.Contains(tracked, "source/tool/driver/main.c") {
		t.Errorf("published tree is missing install or sanitized source:\n%s", tracked)
	}
	if strings.Contains(tracked, "build/") {
		t.Errorf("build root was committed:\n%s", tracked)
	}

	// Nothing changed upstream or in the build: the rerun must not
	// commit.
	rerun, err := f.pipeline(t, nil).Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if rerun.ExitCode() != 0 {
		t.Errorf("second run ExitCode = %d", rerun.ExitCode())
	}
	if got := gittest.CommitCount(t, f.remote, "main"); got != 1 {
		t.Errorf("remote has %d commits after unchanged rerun, want 1", got)
	}
	publish, _ := rerun.Stage(StagePublish)
	if publish.Counts["commits"] != 0 || !strings.Contains(publish.Message, "nothing new") {
		t.Errorf("rerun publish = %+v", publish)
	}
}

func TestRun_SourceSyncFailureStopsRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.cfg.Source.URL = filepath.Join(t.TempDir(), "no-such-upstream.git")

	run, err := f.pipeline(t, nil).Run(context.Background())
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("Run error = %v, want *StageError", err)
	}
	if stageErr.Kind != report.SourceSyncFailure || stageErr.Stage != StageSync || stageErr.ExitCode() != 1 {
		t.Errorf("StageError = %+v", stageErr)
	}
	if len(run.Stages) != 1 {
		t.Errorf("ran %d stages after a sync failure, want 1", len(run.Stages))
	}
	if run.ExitCode() != 1 {
		t.Errorf("ExitCode = %d, want 1", run.ExitCode())
	}
	if _, err := os.Stat(filepath.Join(f.root, "build")); !os.IsNotExist(err) {
		t.Error("compile ran after a sync failure")
	}
}

func TestRun_CompileFailureStillPackages(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.cfg.Capabilities.BuildCLI = true
	f.cfg.Capabilities.Publish = false
	f.cfg.Compile.Targets["native"] = config.TargetConfig{Command: []string{"sh", "-c", "echo 'fatal error C1083' >&2; exit 2"}}
	f.cfg.Compile.Targets["cli"] = config.TargetConfig{Command: []string{"sh", "-c", buildScript, "sh", "{output}"}}

	run, err := f.pipeline(t, nil).Run(context.Background())
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Kind != report.CompileFailure || stageErr.Stage != StageCompile {
		t.Fatalf("Run error = %v, want compile failure", err)
	}
	if run.ExitCode() != 1 {
		t.Errorf("ExitCode = %d, want 1", run.ExitCode())
	}

	statuses := stageStatuses(run)
	if statuses[StageCompile] != report.StatusFailed {
		t.Errorf("compile status = %s", statuses[StageCompile])
	}
	if statuses[StagePackage] != report.StatusOK || statuses[StageSign] != report.StatusOK {
		t.Errorf("later stages = %v, want package and sign to run", statuses)
	}
	compileReport, _ := run.Stage(StageCompile)
	if compileReport.Counts["built"] != 1 || compileReport.Counts["failed"] != 1 {
		t.Errorf("compile counts = %v", compileReport.Counts)
	}
	if _, err := os.Stat(filepath.Join(f.root, "install", "bin", "tool.exe")); err != nil {
		t.Errorf("cli output was not packaged: %v", err)
	}
}

func TestRun_EnvironmentMissingBeforeAnyStage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	runner := tooltest.New()
	p := f.pipeline(t, func(c *Config) {
		c.Runner = runner
		c.LookPath = func(names ...string) error {
			if !slices.Equal(names, []string{"git", "sh"}) {
				t.Errorf("required tools = %v, want [git sh]", names)
			}
			return &tool.MissingError{Names: []string{"sh"}}
		}
	})

	run, err := p.Run(context.Background())
	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Kind != report.EnvironmentMissing {
		t.Fatalf("Run error = %v, want environment_missing", err)
	}
	var missing *tool.MissingError
	if !errors.As(err, &missing) || missing.Names[0] != "sh" {
		t.Errorf("error does not carry the missing tool list: %v", err)
	}
	if stageErr.ExitCode() != 2 || run.ExitCode() != 2 {
		t.Errorf("exit codes = %d, %d; want 2", stageErr.ExitCode(), run.ExitCode())
	}
	if len(run.Stages) != 1 || run.Stages[0].Stage != StagePreflight {
		t.Errorf("stages = %+v, want preflight only", run.Stages)
	}
	if calls := runner.Calls(); len(calls) != 0 {
		t.Errorf("tools ran despite missing environment: %v", calls)
	}
}

func TestRun_SignFailureIsIsolated(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.cfg.Capabilities.Publish = false
	f.cfg.Sign.Command = []string{"sh", "-c", `case "$1" in *.dll) echo 'timestamp server unreachable' >&2; exit 1;; esac; ` + signScript, "sh", "{file}"}

	run, err := f.pipeline(t, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.ExitCode() != 0 {
		t.Errorf("ExitCode = %d, want 0 with one sign failure", run.ExitCode())
	}
	sign, _ := run.Stage(StageSign)
	if sign.Status != report.StatusWarning || sign.Kind != report.SignFailure {
		t.Errorf("sign stage = %+v", sign)
	}
	if sign.Counts["signed"] != 1 || sign.Counts["failed"] != 1 || len(sign.Errors) != 1 {
		t.Errorf("sign counts = %v errors = %v", sign.Counts, sign.Errors)
	}
	if got := readFile(t, filepath.Join(f.root, "install", "bin", "tool.exe")); got != "tool v1 signed" {
		t.Errorf("tool.exe = %q", got)
	}
	if got := readFile(t, filepath.Join(f.root, "install", "lib", "core.dll")); got != "core v1" {
		t.Errorf("core.dll = %q, want deployed unsigned", got)
	}
}

type refusingCreator struct{}

func (refusingCreator) Name() string { return "refusing" }

func (refusingCreator) Create(context.Context, publisher.CreateRequest) error {
	return errors.New("organization quota exceeded")
}

func TestRun_PublishFailureKeepsExitCode(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.cfg.Publish.URLTemplate = filepath.Join(t.TempDir(), "missing.git")

	run, err := f.pipeline(t, func(c *Config) { c.Creator = refusingCreator{} }).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.ExitCode() != 0 || run.Failed() {
		t.Errorf("ExitCode = %d, Failed = %v; publish failures must not fail the run", run.ExitCode(), run.Failed())
	}
	publish, _ := run.Stage(StagePublish)
	if publish.Status != report.StatusFailed || publish.Kind != report.PublishFailure {
		t.Errorf("publish stage = %+v", publish)
	}
	if !strings.Contains(publish.Message, "quota exceeded") {
		t.Errorf("publish message %q does not carry the creation error", publish.Message)
	}
	if _, err := os.Stat(filepath.Join(f.root, "install", "bin", "tool.exe")); err != nil {
		t.Errorf("install root lost after publish failure: %v", err)
	}
}

func TestRun_CapabilityFlagsSkipStages(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.cfg.Capabilities.BuildNative = false
	f.cfg.Capabilities.Sign = false
	f.cfg.Capabilities.Publish = false

	run, err := f.pipeline(t, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	statuses := stageStatuses(run)
	for _, skipped := range []string{StageCompile, StageSign, StagePublish} {
		if statuses[skipped] != report.StatusSkipped {
			t.Errorf("%s status = %s, want skipped", skipped, statuses[skipped])
		}
	}
	if statuses[StageSync] != report.StatusOK || statuses[StagePackage] != report.StatusOK {
		t.Errorf("statuses = %v", statuses)
	}
	sign, _ := run.Stage(StageSign)
	if !strings.Contains(sign.Message, "capability sign is off") {
		t.Errorf("skip message = %q", sign.Message)
	}
}

func TestRunStage_IgnoresStageGate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.cfg.Capabilities.Sign = false
	layoutBin := filepath.Join(f.root, "install", "bin")
	if err := os.MkdirAll(layoutBin, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(layoutBin, "setup.exe"), []byte("setup"), 0o755); err != nil {
		t.Fatal(err)
	}

	run, err := f.pipeline(t, nil).RunStage(context.Background(), StageSign)
	if err != nil {
		t.Fatalf("RunStage: %v", err)
	}
	if len(run.Stages) != 1 || run.Stages[0].Counts["signed"] != 1 {
		t.Errorf("stages = %+v, want one signed file", run.Stages)
	}
	if got := readFile(t, filepath.Join(layoutBin, "setup.exe")); got != "setup signed" {
		t.Errorf("setup.exe = %q", got)
	}

	if _, err := f.pipeline(t, nil).RunStage(context.Background(), "deploy"); err == nil {
		t.Error("RunStage accepted an unknown stage")
	}
}

func TestRun_SinksReceiveRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.cfg.Capabilities.Publish = false
	stateDir := filepath.Join(f.root, "build", ".shipyard")

	log, err := resultlog.Create(filepath.Join(stateDir, "result.jsonl"), nil)
	if err != nil {
		t.Fatalf("resultlog.Create: %v", err)
	}
	store, err := history.Open(history.Config{Path: filepath.Join(stateDir, "history.db")})
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	transcript := history.NewTranscript()
	runner := tool.NewExec(nil)
	runner.Recorder = transcript

	run, err := f.pipeline(t, func(c *Config) {
		c.Runner = runner
		c.ResultLog = log
		c.History = store
		c.Transcript = transcript
	}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}

	entries, err := resultlog.Read(filepath.Join(stateDir, "result.jsonl"))
	if err != nil {
		t.Fatalf("resultlog.Read: %v", err)
	}
	if len(entries) != len(Stages)+2 {
		t.Fatalf("result log has %d entries, want %d", len(entries), len(Stages)+2)
	}
	if entries[0].Type != resultlog.TypeStart || entries[0].RunID != run.RunID {
		t.Errorf("first entry = %+v", entries[0])
	}
	if last := entries[len(entries)-1]; last.Type != resultlog.TypeComplete || last.ExitCode != 0 {
		t.Errorf("last entry = %+v", last)
	}

	stored, err := store.Show(context.Background(), run.RunID)
	if err != nil {
		t.Fatalf("history Show: %v", err)
	}
	if len(stored.Report.Stages) != len(Stages) {
		t.Errorf("stored report has %d stages", len(stored.Report.Stages))
	}
	recorded, err := store.Transcript(context.Background(), run.RunID)
	if err != nil {
		t.Fatalf("history Transcript: %v", err)
	}
	sawClone := false
	for _, entry := range recorded {
		if strings.HasPrefix(entry.Command, "git clone") {
			sawClone = true
		}
	}
	if !sawClone {
		t.Errorf("transcript has no git clone among %d entries", len(recorded))
	}
}

func TestNew_RequiresConfigAndRunner(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Runner: tooltest.New()}); err == nil {
		t.Error("New accepted a nil configuration")
	}
	if _, err := New(Config{Pipeline: config.Default()}); err == nil {
		t.Error("New accepted a nil runner")
	}
}
