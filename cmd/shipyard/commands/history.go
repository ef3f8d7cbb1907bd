// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/shipyard/cmd/shipyard/cli"
	"github.com/bureau-foundation/shipyard/lib/codec"
	"github.com/bureau-foundation/shipyard/lib/history"
	"github.com/bureau-foundation/shipyard/lib/report"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:    "history",
		Summary: "Inspect recorded runs",
		Description: `Inspect the run history kept in the state directory. Every run
records its report and a transcript of the external commands it ran.`,
		Subcommands: []*cli.Command{
			historyListCommand(),
			historyShowCommand(),
		},
	}
}

type historyListParams struct {
	configParams
	cli.JSONOutput
	Limit int `flag:"limit,n" desc:"maximum number of runs to list" default:"20"`
}

func historyListCommand() *cli.Command {
	var params historyListParams
	return &cli.Command{
		Name:    "list",
		Summary: "List recent runs, newest first",
		Usage:   "shipyard history list [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			store, err := params.openStore(logger)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(ctx, params.Limit)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(runs); done {
				return err
			}
			return writeRunList(os.Stdout, runs)
		},
	}
}

type historyShowParams struct {
	configParams
	cli.JSONOutput
	Transcript bool `flag:"transcript,t" desc:"print the recorded command transcript"`
	Diagnose   bool `flag:"diagnose" desc:"print the stored report in CBOR diagnostic notation"`
	NoColor    bool `flag:"no-color" desc:"disable colored output"`
}

// showOutput is the JSON shape of "shipyard history show".
type showOutput struct {
	history.Summary
	Digest     string                    `json:"digest"`
	Report     report.RunReport          `json:"report"`
	Transcript []history.TranscriptEntry `json:"transcript,omitempty"`
}

func historyShowCommand() *cli.Command {
	var params historyShowParams
	return &cli.Command{
		Name:    "show",
		Summary: "Show one run's report",
		Description: `Show the stored report of one run. The run ID may be abbreviated to
any unambiguous prefix.`,
		Usage: "shipyard history show <run-id> [flags]",
		Examples: []cli.Example{
			{Description: "Show a run with its command transcript", Command: "shipyard history show 0192 --transcript"},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("show", &params)
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return &cli.UsageError{Err: errors.New("usage: shipyard history show <run-id>")}
			}
			store, err := params.openStore(logger)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Show(ctx, args[0])
			if err != nil {
				return err
			}
			var transcript []history.TranscriptEntry
			if params.Transcript {
				transcript, err = store.Transcript(ctx, run.ID)
				if err != nil {
					return err
				}
			}

			if done, err := params.EmitJSON(showOutput{
				Summary:    run.Summary,
				Digest:     run.Digest.String(),
				Report:     run.Report,
				Transcript: transcript,
			}); done {
				return err
			}

			if params.Diagnose {
				// Deterministic encoding: re-encoding yields the stored bytes.
				data, err := codec.Marshal(run.Report)
				if err != nil {
					return err
				}
				diagnostic, err := codec.Diagnose(data)
				if err != nil {
					return err
				}
				fmt.Fprintln(os.Stdout, diagnostic)
				return nil
			}

			writeRunHeader(os.Stdout, run)
			options := cli.SummaryOptions{
				Color:   !params.NoColor && cli.IsTerminal(os.Stdout),
				Details: true,
				Width:   cli.TerminalWidth(os.Stdout),
			}
			if err := cli.RenderSummary(os.Stdout, run.Report, options); err != nil {
				return err
			}
			if params.Transcript {
				fmt.Fprintf(os.Stdout, "\ntranscript (%d commands):\n", len(transcript))
				return history.WriteTranscript(os.Stdout, transcript)
			}
			return nil
		},
	}
}

func (p *configParams) openStore(logger *slog.Logger) (*history.Store, error) {
	cfg, err := p.read()
	if err != nil {
		return nil, err
	}
	layout, err := cfg.Layout()
	if err != nil {
		return nil, &cli.UsageError{Err: err}
	}
	if _, err := os.Stat(layout.StateDir); err != nil {
		return nil, fmt.Errorf("no run history at %s", layout.StateDir)
	}
	return openHistory(cfg, logger)
}

func writeRunList(w io.Writer, runs []history.Summary) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tDURATION\tEXIT\tSTAGES\tWARNINGS")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
			run.ID,
			run.Started.Local().Format(time.DateTime),
			run.Duration.Round(100*time.Millisecond),
			run.ExitCode,
			run.Stages,
			run.Warnings,
		)
	}
	return tw.Flush()
}

func writeRunHeader(w io.Writer, run history.Run) {
	fmt.Fprintf(w, "run:       %s\n", run.ID)
	fmt.Fprintf(w, "started:   %s\n", run.Started.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "digest:    %s\n", run.Digest)
	if run.TranscriptSize > 0 {
		fmt.Fprintf(w, "transcript: %d bytes (%s)\n", run.TranscriptSize, run.Compression)
	}
	fmt.Fprintln(w)
}
