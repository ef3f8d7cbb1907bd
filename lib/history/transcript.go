// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/shipyard/lib/tool"
)

// maxCapturedOutput bounds the stdout and stderr kept per invocation.
// Compiler logs can be large; the tail is where the errors are.
const maxCapturedOutput = 64 << 10

// TranscriptEntry is one external tool invocation.
type TranscriptEntry struct {
	Command  string        `json:"command" cbor:"1,keyasint"`
	Dir      string        `json:"dir,omitempty" cbor:"2,keyasint,omitempty"`
	ExitCode int           `json:"exit_code" cbor:"3,keyasint"`
	Duration time.Duration `json:"duration" cbor:"4,keyasint"`
	Stdout   string        `json:"stdout,omitempty" cbor:"5,keyasint,omitempty"`
	Stderr   string        `json:"stderr,omitempty" cbor:"6,keyasint,omitempty"`

	// StartError is set when the process never started.
	StartError string `json:"start_error,omitempty" cbor:"7,keyasint,omitempty"`
}

// Transcript records every tool invocation of a run. It implements
// tool.Recorder and is safe for concurrent use.
type Transcript struct {
	mu      sync.Mutex
	entries []TranscriptEntry
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Record implements tool.Recorder.
func (t *Transcript) Record(inv tool.Invocation, result tool.Result, err error) {
	entry := TranscriptEntry{
		Command:  inv.String(),
		Dir:      inv.Dir,
		ExitCode: result.ExitCode,
		Duration: result.Duration,
		Stdout:   tail(result.Stdout),
		Stderr:   tail(result.Stderr),
	}
	if err != nil {
		entry.StartError = err.Error()
	}
	t.mu.Lock()
	t.entries = append(t.entries, entry)
	t.mu.Unlock()
}

// Entries returns a copy of the recorded entries.
func (t *Transcript) Entries() []TranscriptEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TranscriptEntry(nil), t.entries...)
}

func tail(output string) string {
	if len(output) <= maxCapturedOutput {
		return output
	}
	return "[truncated]\n" + output[len(output)-maxCapturedOutput:]
}

// WriteTranscript renders entries for a terminal.
func WriteTranscript(w io.Writer, entries []TranscriptEntry) error {
	for i, entry := range entries {
		status := fmt.Sprintf("exit %d", entry.ExitCode)
		if entry.StartError != "" {
			status = "not started: " + entry.StartError
		}
		if _, err := fmt.Fprintf(w, "[%d] $ %s  (%s, %s)\n", i+1, entry.Command, status, entry.Duration.Round(time.Millisecond)); err != nil {
			return err
		}
		if entry.Dir != "" {
			fmt.Fprintf(w, "    in %s\n", entry.Dir)
		}
		for _, stream := range []string{entry.Stdout, entry.Stderr} {
			stream = strings.TrimRight(stream, "\n")
			if stream == "" {
				continue
			}
			for line := range strings.SplitSeq(stream, "\n") {
				if _, err := fmt.Fprintf(w, "    %s\n", line); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
