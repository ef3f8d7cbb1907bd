// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/shipyard/lib/binhash"
	"github.com/bureau-foundation/shipyard/lib/codec"
	"github.com/bureau-foundation/shipyard/lib/report"
	"github.com/bureau-foundation/shipyard/lib/sqlitepool"
)

var (
	// ErrNotFound is returned when no run matches an ID prefix.
	ErrNotFound = errors.New("run not found")

	// ErrAmbiguous is returned when more than one run matches an ID
	// prefix.
	ErrAmbiguous = errors.New("run ID prefix is ambiguous")
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	started         INTEGER NOT NULL,
	duration        INTEGER NOT NULL,
	exit_code       INTEGER NOT NULL,
	failed          INTEGER NOT NULL,
	stage_count     INTEGER NOT NULL,
	warning_count   INTEGER NOT NULL,
	report          BLOB NOT NULL,
	report_digest   BLOB NOT NULL,
	transcript      BLOB NOT NULL,
	compression     TEXT NOT NULL,
	transcript_size INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_started ON runs (started);
`

// NewRunID returns a fresh time-ordered run identifier.
func NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating run ID: %w", err)
	}
	return id.String(), nil
}

// Config holds the parameters for opening a history store.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// Compression applies to transcripts written by this store.
	// Existing rows keep whatever compression they were written with.
	Compression Compression

	Logger *slog.Logger
}

// Store is the run history database. Safe for concurrent use.
type Store struct {
	pool        *sqlitepool.Pool
	compression Compression
	logger      *slog.Logger
}

// Summary is the listing view of one run.
type Summary struct {
	ID       string        `json:"id"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	ExitCode int           `json:"exit_code"`
	Failed   bool          `json:"failed"`
	Stages   int           `json:"stages"`
	Warnings int           `json:"warnings"`
}

// Run is a fully loaded run record.
type Run struct {
	Summary
	Report         report.RunReport
	Digest         binhash.Digest
	Compression    Compression
	TranscriptSize int
}

// Open opens or creates the history database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	compression := cfg.Compression
	if compression == "" {
		compression = CompressionZstd
	}
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   cfg.Path,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return &Store{pool: pool, compression: compression, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Record stores a completed run and its transcript. Recording the same
// run ID twice replaces the earlier row.
func (s *Store) Record(ctx context.Context, run report.RunReport, transcript []TranscriptEntry) (err error) {
	if run.RunID == "" {
		return fmt.Errorf("history: run has no ID")
	}
	encodedReport, err := codec.Marshal(run)
	if err != nil {
		return fmt.Errorf("history: encoding report: %w", err)
	}
	encodedTranscript, err := codec.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("history: encoding transcript: %w", err)
	}
	stored, used, err := compress(encodedTranscript, s.compression)
	if err != nil {
		return fmt.Errorf("history: compressing transcript: %w", err)
	}
	digest := binhash.HashBytes(encodedReport)

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("history: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn, `
		INSERT OR REPLACE INTO runs (
			id, started, duration, exit_code, failed, stage_count, warning_count,
			report, report_digest, transcript, compression, transcript_size
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				run.RunID,
				run.Started.UnixNano(),
				int64(run.Duration),
				run.ExitCode(),
				run.Failed(),
				len(run.Stages),
				run.WarningCount(),
				encodedReport,
				digest[:],
				stored,
				string(used),
				len(encodedTranscript),
			},
		})
	if err != nil {
		return fmt.Errorf("history: inserting run %s: %w", run.RunID, err)
	}

	s.logger.Debug("run recorded",
		"run_id", run.RunID,
		"report_bytes", len(encodedReport),
		"transcript_bytes", len(encodedTranscript),
		"stored_bytes", len(stored),
		"compression", used,
	)
	return nil
}

// List returns the most recent runs, newest first. A limit of zero or
// less returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer s.pool.Put(conn)

	if limit <= 0 {
		limit = -1
	}
	var summaries []Summary
	err = sqlitex.Execute(conn, `
		SELECT id, started, duration, exit_code, failed, stage_count, warning_count
		FROM runs ORDER BY started DESC, id DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				summaries = append(summaries, scanSummary(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("history: listing runs: %w", err)
	}
	return summaries, nil
}

// Show loads the run whose ID starts with prefix. The stored report is
// checked against its digest before decoding.
func (s *Store) Show(ctx context.Context, prefix string) (Run, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Run{}, fmt.Errorf("history: show: %w", err)
	}
	defer s.pool.Put(conn)

	id, err := resolve(conn, prefix)
	if err != nil {
		return Run{}, err
	}

	var (
		run     Run
		encoded []byte
		stored  []byte
	)
	err = sqlitex.Execute(conn, `
		SELECT id, started, duration, exit_code, failed, stage_count, warning_count,
			report, report_digest, compression, transcript_size
		FROM runs WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				run.Summary = scanSummary(stmt)
				encoded = columnBlob(stmt, 7)
				stored = columnBlob(stmt, 8)
				run.Compression = Compression(stmt.ColumnText(9))
				run.TranscriptSize = stmt.ColumnInt(10)
				return nil
			},
		})
	if err != nil {
		return Run{}, fmt.Errorf("history: loading run %s: %w", id, err)
	}

	if len(stored) != len(run.Digest) {
		return Run{}, fmt.Errorf("history: run %s: stored digest is %d bytes", id, len(stored))
	}
	copy(run.Digest[:], stored)
	if actual := binhash.HashBytes(encoded); actual != run.Digest {
		return Run{}, fmt.Errorf("history: run %s: report digest mismatch (stored %s, computed %s)", id, run.Digest, actual)
	}
	if err := codec.Unmarshal(encoded, &run.Report); err != nil {
		return Run{}, fmt.Errorf("history: decoding report for run %s: %w", id, err)
	}
	return run, nil
}

// Transcript loads and decompresses the transcript of the run whose ID
// starts with prefix.
func (s *Store) Transcript(ctx context.Context, prefix string) ([]TranscriptEntry, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("history: transcript: %w", err)
	}
	defer s.pool.Put(conn)

	id, err := resolve(conn, prefix)
	if err != nil {
		return nil, err
	}

	var (
		stored      []byte
		compression Compression
		size        int
	)
	err = sqlitex.Execute(conn, `SELECT transcript, compression, transcript_size FROM runs WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stored = columnBlob(stmt, 0)
				compression = Compression(stmt.ColumnText(1))
				size = stmt.ColumnInt(2)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("history: loading transcript for run %s: %w", id, err)
	}

	encoded, err := decompress(stored, compression, size)
	if err != nil {
		return nil, fmt.Errorf("history: run %s: %w", id, err)
	}
	var entries []TranscriptEntry
	if err := codec.Unmarshal(encoded, &entries); err != nil {
		return nil, fmt.Errorf("history: decoding transcript for run %s: %w", id, err)
	}
	return entries, nil
}

// resolve expands a run ID prefix to the one full ID it matches.
func resolve(conn *sqlite.Conn, prefix string) (string, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", fmt.Errorf("history: empty run ID")
	}
	var matches []string
	err := sqlitex.Execute(conn, `SELECT id FROM runs WHERE substr(id, 1, ?) = ? ORDER BY id LIMIT 2`,
		&sqlitex.ExecOptions{
			Args: []any{len(prefix), prefix},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				matches = append(matches, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return "", fmt.Errorf("history: resolving %q: %w", prefix, err)
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("history: %w: %s", ErrNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("history: %w: %s matches %s, %s, ...", ErrAmbiguous, prefix, matches[0], matches[1])
	}
}

// scanSummary reads the leading summary columns shared by List and
// Show.
func scanSummary(stmt *sqlite.Stmt) Summary {
	return Summary{
		ID:       stmt.ColumnText(0),
		Started:  time.Unix(0, stmt.ColumnInt64(1)).UTC(),
		Duration: time.Duration(stmt.ColumnInt64(2)),
		ExitCode: stmt.ColumnInt(3),
		Failed:   stmt.ColumnBool(4),
		Stages:   stmt.ColumnInt(5),
		Warnings: stmt.ColumnInt(6),
	}
}

// columnBlob copies a BLOB column out of the statement. The statement
// owns the underlying memory only until the next step.
func columnBlob(stmt *sqlite.Stmt, column int) []byte {
	data := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, data)
	return data
}
