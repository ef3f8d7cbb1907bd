// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package resultlog writes a pipeline run as JSONL, one line per event.
//
// Each line is an independent JSON object, which makes the log:
//
//   - Crash-safe: a run killed mid-stage keeps every completed stage's
//     line. A single JSON document would be truncated and unparseable.
//   - Streamable: another process can tail the file for stage-by-stage
//     progress instead of waiting for the run to finish.
//
// A nil *Log is valid and discards everything, so callers that run
// without a result log need no conditionals.
package resultlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/shipyard/lib/report"
)

// Log is an open result log.
type Log struct {
	logger  *slog.Logger
	file    *os.File
	encoder *json.Encoder
}

// Create creates (truncating) the result log at path.
func Create(path string, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating result log directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating result log %s: %w", path, err)
	}
	return &Log{
		logger:  logger,
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

// Close closes the file.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}

// Start records the beginning of a run and the stages it plans to run.
func (l *Log) Start(runID string, stages []string, started time.Time) {
	if l == nil {
		return
	}
	l.write(Entry{
		Type:      TypeStart,
		RunID:     runID,
		Stages:    stages,
		Timestamp: started.UTC().Format(time.RFC3339),
	})
}

// Stage records one stage's outcome.
func (l *Log) Stage(stage report.StageReport) {
	if l == nil {
		return
	}
	l.write(Entry{
		Type:       TypeStage,
		Stage:      stage.Stage,
		Status:     string(stage.Status),
		Kind:       string(stage.Kind),
		Message:    stage.Message,
		Warnings:   len(stage.Warnings) + len(stage.Errors),
		DurationMS: stage.Duration.Milliseconds(),
	})
}

// Complete records the end of a run: "complete" when the run succeeded,
// "failed" otherwise.
func (l *Log) Complete(run report.RunReport) {
	if l == nil {
		return
	}
	entry := Entry{
		Type:       TypeComplete,
		RunID:      run.RunID,
		Status:     "ok",
		ExitCode:   run.ExitCode(),
		DurationMS: run.Duration.Milliseconds(),
	}
	if run.Failed() {
		entry.Type = TypeFailed
		entry.Status = "failed"
		for _, stage := range run.Stages {
			if stage.FailsRun() {
				entry.Stage = stage.Stage
				entry.Message = stage.Message
				break
			}
		}
	}
	l.write(entry)
}

func (l *Log) write(entry Entry) {
	if err := l.encoder.Encode(entry); err != nil {
		l.logger.Warn("failed to write result log entry", "error", err)
		return
	}
	// Sync after each line so partial results survive a crash and are
	// visible to readers immediately.
	if err := l.file.Sync(); err != nil {
		l.logger.Warn("failed to sync result log", "error", err)
	}
}

// Line types.
const (
	TypeStart    = "start"
	TypeStage    = "stage"
	TypeComplete = "complete"
	TypeFailed   = "failed"
)

// Entry is one JSONL line. Fields that do not apply to a line type are
// omitted.
type Entry struct {
	Type       string   `json:"type"`
	RunID      string   `json:"run_id,omitempty"`
	Stages     []string `json:"stages,omitempty"`
	Timestamp  string   `json:"timestamp,omitempty"`
	Stage      string   `json:"stage,omitempty"`
	Status     string   `json:"status,omitempty"`
	Kind       string   `json:"kind,omitempty"`
	Message    string   `json:"message,omitempty"`
	Warnings   int      `json:"warnings,omitempty"`
	ExitCode   int      `json:"exit_code,omitempty"`
	DurationMS int64    `json:"duration_ms"`
}

// Read parses a result log. A truncated final line (from a run killed
// mid-write) is ignored.
func Read(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			break
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("reading %s: %w", path, err)
	}
	return entries, nil
}
