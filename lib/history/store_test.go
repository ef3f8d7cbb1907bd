// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/shipyard/lib/report"
	"github.com/bureau-foundation/shipyard/lib/tool"
)

func openStore(t *testing.T, compression Compression) *Store {
	t.Helper()
	store, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "state", "history.db"),
		Compression: compression,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRun(id string, started time.Time, compileFailed bool) report.RunReport {
	sync := report.New("source_sync", started)
	sync.Add("commits", 3)
	compile := report.New("compile", started.Add(time.Second))
	if compileFailed {
		compile.Error(report.CompileFailure, errors.New("target cli: exit status 2"))
	}
	publish := report.Skipped("publish", "capability publish is off")
	return report.RunReport{
		RunID:    id,
		Started:  started,
		Duration: 42 * time.Second,
		Stages:   []report.StageReport{sync, compile, publish},
	}
}

func TestRecordAndShow(t *testing.T) {
	t.Parallel()

	store := openStore(t, CompressionZstd)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)
	run := sampleRun("0195f2a0-0000-7000-8000-000000000001", started, true)

	transcript := NewTranscript()
	transcript.Record(
		tool.Invocation{Name: "make", Args: []string{"-C", "cli"}, Dir: "/src"},
		tool.Result{ExitCode: 2, Stderr: strings.Repeat("error: undefined symbol\n", 100), Duration: time.Second},
		nil,
	)
	transcript.Record(tool.Invocation{Name: "signtool"}, tool.Result{ExitCode: -1}, errors.New("executable file not found"))

	if err := store.Record(ctx, run, transcript.Entries()); err != nil {
		t.Fatalf("Record: %v", err)
	}

	loaded, err := store.Show(ctx, "0195f2a0")
	if err != nil {
		t.Fatalf("Show: %v", err)
	}
	if loaded.ID != run.RunID {
		t.Errorf("ID = %q", loaded.ID)
	}
	if !loaded.Started.Equal(started) {
		t.Errorf("Started = %v, want %v", loaded.Started, started)
	}
	if !loaded.Failed || loaded.ExitCode != 1 {
		t.Errorf("Failed = %v, ExitCode = %d; want true, 1", loaded.Failed, loaded.ExitCode)
	}
	if loaded.Stages != 3 || loaded.Warnings != 1 {
		t.Errorf("Stages = %d, Warnings = %d", loaded.Stages, loaded.Warnings)
	}
	if loaded.Compression != CompressionZstd {
		t.Errorf("Compression = %s, want zstd for repetitive output", loaded.Compression)
	}
	compile, ok := loaded.Report.Stage("compile")
	if !ok || compile.Kind != report.CompileFailure || len(compile.Errors) != 1 {
		t.Errorf("compile stage = %+v", compile)
	}
	if sync, _ := loaded.Report.Stage("source_sync"); sync.Counts["commits"] != 3 {
		t.Errorf("source_sync counts = %v", sync.Counts)
	}

	entries, err := store.Transcript(ctx, run.RunID)
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d transcript entries, want 2", len(entries))
	}
	if entries[0].Command != "make -C cli" || entries[0].ExitCode != 2 || entries[0].Dir != "/src" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].StartError == "" {
		t.Error("entry 1 lost its start error")
	}

	var rendered bytes.Buffer
	if err := WriteTranscript(&rendered, entries); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rendered.String(), "$ make -C cli  (exit 2") {
		t.Errorf("rendered transcript:\n%s", rendered.String())
	}
}

func TestListNewestFirst(t *testing.T) {
	t.Parallel()

	store := openStore(t, CompressionLZ4)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"aaaa-1", "bbbb-2", "cccc-3"} {
		if err := store.Record(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Hour), false), nil); err != nil {
			t.Fatalf("Record %s: %v", id, err)
		}
	}

	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ID != "cccc-3" || all[2].ID != "aaaa-1" {
		t.Errorf("List(0) = %+v", all)
	}

	limited, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List(2): %v", err)
	}
	if len(limited) != 2 || limited[1].ID != "bbbb-2" {
		t.Errorf("List(2) = %+v", limited)
	}
}

func TestShowPrefixErrors(t *testing.T) {
	t.Parallel()

	store := openStore(t, CompressionNone)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"abc-1", "abc-2"} {
		if err := store.Record(ctx, sampleRun(id, now, false), nil); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := store.Show(ctx, "abc"); !errors.Is(err, ErrAmbiguous) {
		t.Errorf("Show(abc) error = %v, want ErrAmbiguous", err)
	}
	if _, err := store.Show(ctx, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Show(zzz) error = %v, want ErrNotFound", err)
	}
	if _, err := store.Show(ctx, "ABC-2"); err != nil {
		t.Errorf("Show is case sensitive: %v", err)
	}
}

func TestRecordReplacesSameRun(t *testing.T) {
	t.Parallel()

	store := openStore(t, CompressionZstd)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := store.Record(ctx, sampleRun("run-1", now, true), nil); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(ctx, sampleRun("run-1", now, false), nil); err != nil {
		t.Fatal(err)
	}
	runs, err := store.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Failed {
		t.Errorf("runs = %+v, want one passing run", runs)
	}
}

func TestRecordRequiresID(t *testing.T) {
	t.Parallel()

	store := openStore(t, CompressionZstd)
	if err := store.Record(context.Background(), report.RunReport{}, nil); err == nil {
		t.Error("Record accepted a run without an ID")
	}
}

func TestNewRunIDIsOrdered(t *testing.T) {
	t.Parallel()

	first, err := NewRunID()
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := NewRunID()
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 36 || first >= second {
		t.Errorf("run IDs %q, %q are not time ordered", first, second)
	}
}

func TestTranscriptTruncatesLongOutput(t *testing.T) {
	t.Parallel()

	transcript := NewTranscript()
	long := strings.Repeat("x", maxCapturedOutput) + "the interesting tail"
	transcript.Record(tool.Invocation{Name: "cc"}, tool.Result{Stdout: long}, nil)
	entry := transcript.Entries()[0]
	if !strings.HasPrefix(entry.Stdout, "[truncated]") || !strings.HasSuffix(entry.Stdout, "the interesting tail") {
		t.Errorf("stdout not truncated to its tail: %q...", entry.Stdout[:40])
	}
}
