// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestBindFlags_BasicTypes(t *testing.T) {
	type params struct {
		Config   string   `flag:"config,c" desc:"config file"`
		Verbose  bool     `flag:"verbose,v" desc:"enable verbose output"`
		Limit    int      `flag:"limit" desc:"number of runs"`
		Targets  []string `flag:"targets" desc:"target list"`
		Untagged string   // no flag tag, skipped
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}

	err := flagSet.Parse([]string{
		"-c", "shipyard.yaml",
		"-v",
		"--limit", "42",
		"--targets", "native,cli",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Config != "shipyard.yaml" {
		t.Errorf("Config = %q, want %q", p.Config, "shipyard.yaml")
	}
	if !p.Verbose {
		t.Error("Verbose = false, want true")
	}
	if p.Limit != 42 {
		t.Errorf("Limit = %d, want 42", p.Limit)
	}
	if len(p.Targets) != 2 || p.Targets[0] != "native" || p.Targets[1] != "cli" {
		t.Errorf("Targets = %v, want [native cli]", p.Targets)
	}
	if flagSet.Lookup("untagged") != nil {
		t.Error("untagged field was bound")
	}
}

func TestBindFlags_Defaults(t *testing.T) {
	type params struct {
		Branch  string   `flag:"branch" desc:"branch" default:"master"`
		Limit   int      `flag:"limit" desc:"limit" default:"20"`
		Publish bool     `flag:"publish" desc:"publish" default:"true"`
		Targets []string `flag:"targets" desc:"targets" default:"native,gui"`
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}
	if err := flagSet.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.Branch != "master" {
		t.Errorf("Branch = %q, want master", p.Branch)
	}
	if p.Limit != 20 {
		t.Errorf("Limit = %d, want 20", p.Limit)
	}
	if !p.Publish {
		t.Error("Publish = false, want true")
	}
	if len(p.Targets) != 2 || p.Targets[1] != "gui" {
		t.Errorf("Targets = %v, want [native gui]", p.Targets)
	}
}

type SignBinder struct {
	Sign    bool
	flagSet *pflag.FlagSet
}

func (b *SignBinder) AddFlags(flagSet *pflag.FlagSet) {
	b.flagSet = flagSet
	flagSet.BoolVar(&b.Sign, "sign", false, "sign artifacts")
}

func TestBindFlags_FlagBinderSeesChanged(t *testing.T) {
	type params struct {
		SignBinder
		JSONOutput
	}

	var p params
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(&p, flagSet); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}
	if err := flagSet.Parse([]string{"--sign=false", "--json"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.flagSet == nil || !p.flagSet.Changed("sign") {
		t.Error("explicit --sign=false not reported as changed")
	}
	if p.Sign {
		t.Error("Sign = true, want false")
	}
	if !p.OutputJSON {
		t.Error("embedded JSONOutput not bound")
	}
}

func TestBindFlags_Errors(t *testing.T) {
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)

	var notStruct int
	if err := BindFlags(&notStruct, flagSet); err == nil {
		t.Error("BindFlags(*int) = nil, want error")
	}

	type params struct{ Name string }
	if err := BindFlags(params{}, flagSet); err == nil {
		t.Error("BindFlags(struct value) = nil, want error")
	}

	type badDefault struct {
		Limit int `flag:"limit" default:"many"`
	}
	err := BindFlags(&badDefault{}, flagSet)
	if err == nil || !strings.Contains(err.Error(), "--limit") {
		t.Errorf("BindFlags(bad default) = %v, want error naming --limit", err)
	}

	type unsupported struct {
		Ratio float64 `flag:"ratio"`
	}
	if err := BindFlags(&unsupported{}, flagSet); err == nil {
		t.Error("BindFlags(float64) = nil, want unsupported type error")
	}
}

func TestFlagsFromParams_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("FlagsFromParams(non-pointer) did not panic")
		}
	}()
	FlagsFromParams("test", struct{}{})
}

func TestFlagsFromParams_PositionalArgsRemain(t *testing.T) {
	var p struct {
		Transcript bool `flag:"transcript"`
	}
	flagSet := FlagsFromParams("show", &p)
	if err := flagSet.Parse([]string{"0192ab", "--transcript"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !p.Transcript {
		t.Error("Transcript = false, want true")
	}
	if args := flagSet.Args(); len(args) != 1 || args[0] != "0192ab" {
		t.Errorf("Args() = %v, want [0192ab]", args)
	}
}
