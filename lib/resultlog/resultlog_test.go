// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package resultlog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/shipyard/lib/report"
)

func TestLog_RunLifecycle(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "result.jsonl")
	log, err := Create(path, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	log.Start("run-1", []string{"sync", "compile"}, started)

	sync := report.New("sync", started)
	sync.Duration = 1500 * time.Millisecond
	log.Stage(sync)

	compile := report.New("compile", started)
	compile.Error(report.CompileFailure, errors.New("target gui: exit status 2"))
	log.Stage(compile)

	run := report.RunReport{RunID: "run-1", Started: started, Duration: 3 * time.Second}
	run.Fold(sync)
	run.Fold(compile)
	log.Complete(run)
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4: %+v", len(entries), entries)
	}
	if entries[0].Type != TypeStart || entries[0].Timestamp != "2026-03-01T12:00:00Z" || len(entries[0].Stages) != 2 {
		t.Errorf("start = %+v", entries[0])
	}
	if entries[1].Stage != "sync" || entries[1].DurationMS != 1500 {
		t.Errorf("sync = %+v", entries[1])
	}
	if entries[2].Kind != string(report.CompileFailure) || entries[2].Warnings != 1 {
		t.Errorf("compile = %+v", entries[2])
	}
	last := entries[3]
	if last.Type != TypeFailed || last.Stage != "compile" || last.ExitCode != 1 {
		t.Errorf("final line = %+v, want failed at compile with exit 1", last)
	}
}

func TestLog_NilIsNoOp(t *testing.T) {
	t.Parallel()

	var log *Log
	log.Start("run", nil, time.Now())
	log.Stage(report.New("sync", time.Now()))
	log.Complete(report.RunReport{})
	if err := log.Close(); err != nil {
		t.Errorf("Close on nil log: %v", err)
	}
}

func TestRead_IgnoresTruncatedTail(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "result.jsonl")
	content := `{"type":"start","run_id":"r","duration_ms":0}` + "\n" + `{"type":"stage","stage":"sy`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	entries, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 1 || entries[0].RunID != "r" {
		t.Errorf("entries = %+v", entries)
	}
}
