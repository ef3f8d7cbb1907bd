// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/shipyard/cmd/shipyard/cli"
	"github.com/bureau-foundation/shipyard/lib/config"
)

// configParams locates and adjusts the pipeline configuration. Every
// command that reads the configuration embeds it.
type configParams struct {
	Config  string `flag:"config,c" desc:"configuration file (default: $SHIPYARD_CONFIG, then built-in defaults)"`
	Verbose bool   `flag:"verbose,v" desc:"log at debug level"`
	Overrides
}

// Overrides are command-line values layered over the loaded
// configuration. Only flags the user actually set are applied, so
// --sign=false turns signing off while an absent --sign leaves the
// configured value alone.
type Overrides struct {
	SourceRoot    string
	BuildRoot     string
	InstallRoot   string
	VersionedRoot string
	SourceURL     string
	SourceBranch  string
	Owner         string
	Repo          string

	Force       bool
	BuildNative bool
	BuildCLI    bool
	BuildGUI    bool
	Sign        bool
	Publish     bool

	flagSet *pflag.FlagSet
}

// AddFlags registers the override flags.
func (o *Overrides) AddFlags(flagSet *pflag.FlagSet) {
	o.flagSet = flagSet
	flagSet.StringVar(&o.SourceRoot, "source-root", "", "source root directory")
	flagSet.StringVar(&o.BuildRoot, "build-root", "", "build root directory")
	flagSet.StringVar(&o.InstallRoot, "install-root", "", "install root directory")
	flagSet.StringVar(&o.VersionedRoot, "versioned-root", "", "versioned (published) root directory")
	flagSet.StringVar(&o.SourceURL, "url", "", "upstream source repository URL")
	flagSet.StringVar(&o.SourceBranch, "branch", "", "upstream source branch")
	flagSet.StringVar(&o.Owner, "owner", "", "publish repository owner")
	flagSet.StringVar(&o.Repo, "repo", "", "publish repository name")
	flagSet.BoolVar(&o.Force, "force", false, "discard local changes in the source checkout")
	flagSet.BoolVar(&o.BuildNative, "build-native", false, "compile the native driver target")
	flagSet.BoolVar(&o.BuildCLI, "build-cli", false, "compile the command-line target")
	flagSet.BoolVar(&o.BuildGUI, "build-gui", false, "compile the GUI target")
	flagSet.BoolVar(&o.Sign, "sign", false, "sign installed artifacts")
	flagSet.BoolVar(&o.Publish, "publish", false, "publish the versioned root")
}

// Apply copies every explicitly set override into cfg. Root paths are
// resolved against the working directory, like paths given on any
// other command line.
func (o *Overrides) Apply(cfg *config.PipelineConfig) error {
	if o.flagSet == nil {
		return nil
	}
	workingDirectory, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}

	paths := []struct {
		flag   string
		value  string
		target *string
	}{
		{"source-root", o.SourceRoot, &cfg.Roots.Source},
		{"build-root", o.BuildRoot, &cfg.Roots.Build},
		{"install-root", o.InstallRoot, &cfg.Roots.Install},
		{"versioned-root", o.VersionedRoot, &cfg.Roots.Versioned},
	}
	for _, path := range paths {
		if o.flagSet.Changed(path.flag) {
			*path.target = config.ResolvePath(workingDirectory, path.value)
		}
	}

	values := []struct {
		flag   string
		value  string
		target *string
	}{
		{"url", o.SourceURL, &cfg.Source.URL},
		{"branch", o.SourceBranch, &cfg.Source.Branch},
		{"owner", o.Owner, &cfg.Publish.Owner},
		{"repo", o.Repo, &cfg.Publish.Repo},
	}
	for _, value := range values {
		if o.flagSet.Changed(value.flag) {
			*value.target = value.value
		}
	}

	switches := []struct {
		flag   string
		value  bool
		target *bool
	}{
		{"force", o.Force, &cfg.Capabilities.Force},
		{"build-native", o.BuildNative, &cfg.Capabilities.BuildNative},
		{"build-cli", o.BuildCLI, &cfg.Capabilities.BuildCLI},
		{"build-gui", o.BuildGUI, &cfg.Capabilities.BuildGUI},
		{"sign", o.Sign, &cfg.Capabilities.Sign},
		{"publish", o.Publish, &cfg.Capabilities.Publish},
	}
	for _, value := range switches {
		if o.flagSet.Changed(value.flag) {
			*value.target = value.value
		}
	}
	return nil
}

// read loads the configuration and applies overrides without
// validating it. layout and doctor inspect configurations that are
// not yet runnable.
func (p *configParams) read() (*config.PipelineConfig, error) {
	cfg, err := config.Load(p.Config)
	if err != nil {
		return nil, &cli.UsageError{Err: err}
	}
	if err := p.Overrides.Apply(cfg); err != nil {
		return nil, &cli.UsageError{Err: err}
	}
	return cfg, nil
}

// load is read followed by validation. Every failure is a
// *cli.UsageError: nothing has run yet.
func (p *configParams) load() (*config.PipelineConfig, error) {
	cfg, err := p.read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, &cli.UsageError{Err: err}
	}
	return cfg, nil
}
