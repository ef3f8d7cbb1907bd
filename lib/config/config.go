// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/shipyard/lib/workspace"
)

// EnvConfigPath names the environment variable holding the config path.
const EnvConfigPath = "SHIPYARD_CONFIG"

// PipelineConfig is the complete configuration for one pipeline run.
type PipelineConfig struct {
	// Roots are the four workspace directories. Relative values are
	// resolved against the config file's directory.
	Roots RootsConfig `yaml:"roots" json:"roots"`

	// Source describes the upstream tree to synchronize.
	Source SourceConfig `yaml:"source" json:"source"`

	// Capabilities gate whole stages.
	Capabilities Capabilities `yaml:"capabilities" json:"capabilities"`

	Compile CompileConfig `yaml:"compile" json:"compile"`
	Package PackageConfig `yaml:"package" json:"package"`
	Sign    SignConfig    `yaml:"sign" json:"sign"`
	Publish PublishConfig `yaml:"publish" json:"publish"`
	History HistoryConfig `yaml:"history" json:"history"`

	// StateDir holds run history and the result log. Relative values
	// are resolved against the build root.
	StateDir string `yaml:"state_dir" json:"state_dir"`

	// path is the file this config was loaded from, if any.
	path string
}

// RootsConfig are the workspace roots.
type RootsConfig struct {
	Source    string `yaml:"source" json:"source"`
	Build     string `yaml:"build" json:"build"`
	Install   string `yaml:"install" json:"install"`
	Versioned string `yaml:"versioned" json:"versioned"`
}

// SourceConfig describes the upstream source repository.
type SourceConfig struct {
	URL    string `yaml:"url" json:"url"`
	Branch string `yaml:"branch" json:"branch"`

	// Subtree is the directory name under the source root that holds
	// the checkout.
	Subtree string `yaml:"subtree" json:"subtree"`

	// Depth, when positive, makes fresh clones shallow.
	Depth int `yaml:"depth" json:"depth"`
}

// Capabilities are the stage gates.
type Capabilities struct {
	Force       bool `yaml:"force" json:"force"`
	BuildNative bool `yaml:"build_native" json:"build_native"`
	BuildCLI    bool `yaml:"build_cli" json:"build_cli"`
	BuildGUI    bool `yaml:"build_gui" json:"build_gui"`
	Sign        bool `yaml:"sign" json:"sign"`
	Publish     bool `yaml:"publish" json:"publish"`
}

// TargetEnabled reports whether the named compile target is enabled.
func (c Capabilities) TargetEnabled(target string) bool {
	switch target {
	case workspace.TargetNative:
		return c.BuildNative
	case workspace.TargetCLI:
		return c.BuildCLI
	case workspace.TargetGUI:
		return c.BuildGUI
	default:
		return false
	}
}

// AnyBuild reports whether at least one compile target is enabled.
func (c Capabilities) AnyBuild() bool {
	return c.BuildNative || c.BuildCLI || c.BuildGUI
}

// CompileConfig configures the compiler adapter.
type CompileConfig struct {
	// Configuration is substituted for {configuration} in target
	// commands (e.g. "Release").
	Configuration string `yaml:"configuration" json:"configuration"`

	// Targets maps target name (native, cli, gui) to its command.
	Targets map[string]TargetConfig `yaml:"targets" json:"targets"`
}

// TargetConfig is the compile command for one target. Arguments may
// contain {source}, {output}, {profile}, and {configuration}.
type TargetConfig struct {
	Command []string `yaml:"command" json:"command"`

	// Dir is the working directory. Defaults to {source}.
	Dir string `yaml:"dir" json:"dir"`
}

// PackageConfig configures artifact classification.
type PackageConfig struct {
	Executables   []string `yaml:"executables" json:"executables"`
	Libraries     []string `yaml:"libraries" json:"libraries"`
	Configuration []string `yaml:"configuration" json:"configuration"`

	// ProfileFile is the shell profile activate.sh appends the PATH
	// export to. "~/" is expanded at activation time, not load time.
	ProfileFile string `yaml:"profile_file" json:"profile_file"`
}

// SignConfig configures the signing adapter.
type SignConfig struct {
	// Command is run once per file with {file} substituted.
	Command []string `yaml:"command" json:"command"`
}

// Creator names for PublishConfig.Creator.
const (
	CreatorAuto = "auto"
	CreatorAPI  = "api"
	CreatorGH   = "gh"
)

// PublishConfig configures the publisher.
type PublishConfig struct {
	Owner  string `yaml:"owner" json:"owner"`
	Repo   string `yaml:"repo" json:"repo"`
	Branch string `yaml:"branch" json:"branch"`
	Remote string `yaml:"remote" json:"remote"`

	// URLTemplate builds the remote URL from {owner} and {repo}.
	URLTemplate string `yaml:"url_template" json:"url_template"`

	// Creator selects the repository-creation capability: "api" (REST
	// with a token), "gh" (GitHub CLI), or "auto" (api when a token is
	// present, gh otherwise).
	Creator     string `yaml:"creator" json:"creator"`
	APIURL      string `yaml:"api_url" json:"api_url"`
	TokenEnv    string `yaml:"token_env" json:"token_env"`
	Private     bool   `yaml:"private" json:"private"`
	Description string `yaml:"description" json:"description"`

	// InstallCommand installs the creation tool when it is missing.
	// Empty skips the install step of the fallback chain.
	InstallCommand []string `yaml:"install_command" json:"install_command"`

	// ForceOnReject retries a rejected push once with --force.
	ForceOnReject bool `yaml:"force_on_reject" json:"force_on_reject"`

	CommitPrefix string `yaml:"commit_prefix" json:"commit_prefix"`
	AuthorName   string `yaml:"author_name" json:"author_name"`
	AuthorEmail  string `yaml:"author_email" json:"author_email"`
}

// RemoteURL expands URLTemplate with the owner and repo.
func (p PublishConfig) RemoteURL() string {
	return strings.NewReplacer("{owner}", p.Owner, "{repo}", p.Repo).Replace(p.URLTemplate)
}

// Token returns the API token from the configured environment variable.
func (p PublishConfig) Token() string {
	if p.TokenEnv == "" {
		return ""
	}
	return os.Getenv(p.TokenEnv)
}

// HistoryConfig configures the run history store.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Compression for stored tool transcripts: zstd, lz4, or none.
	Compression string `yaml:"compression" json:"compression"`
}

// Default returns a configuration with every optional value filled in.
// Roots are relative to the workspace directory; [Load] and [LoadFile]
// make them absolute.
func Default() *PipelineConfig {
	return &PipelineConfig{
		Roots: RootsConfig{
			Source:    "source",
			Build:     "build",
			Install:   "install",
			Versioned: ".",
		},
		Source: SourceConfig{
			Branch:  "master",
			Subtree: "ImDisk",
		},
		Capabilities: Capabilities{
			BuildNative: true,
			BuildCLI:    true,
			BuildGUI:    true,
			Sign:        true,
			Publish:     true,
		},
		Compile: CompileConfig{
			Configuration: "Release",
			Targets:       map[string]TargetConfig{},
		},
		Package: PackageConfig{
			Executables:   []string{".exe", ".sys", ".cpl"},
			Libraries:     []string{".dll", ".so", ".dylib", ".lib", ".a"},
			Configuration: []string{".inf", ".ini", ".cfg", ".conf", ".config"},
			ProfileFile:   "~/.profile",
		},
		Sign: SignConfig{
			Command: []string{"signtool", "sign", "/fd", "SHA256", "/a", "{file}"},
		},
		Publish: PublishConfig{
			Branch:        "main",
			Remote:        "origin",
			URLTemplate:   "https://github.com/{owner}/{repo}.git",
			Creator:       CreatorAuto,
			APIURL:        "https://api.github.com",
			TokenEnv:      "GITHUB_TOKEN",
			Private:       true,
			ForceOnReject: true,
			CommitPrefix:  "shipyard: publish build",
		},
		History: HistoryConfig{
			Enabled:     true,
			Compression: "zstd",
		},
	}
}

// Load returns the configuration named by explicitPath, falling back
// to SHIPYARD_CONFIG, falling back to Default resolved against the
// current directory.
func Load(explicitPath string) (*PipelineConfig, error) {
	path := explicitPath
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		return LoadFile(path)
	}

	cfg := Default()
	cfg.expandVariables()
	cfg.applyEnvironmentOverrides()
	workingDirectory, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: determining working directory: %w", err)
	}
	cfg.resolvePaths(workingDirectory)
	return cfg, nil
}

// LoadFile loads configuration from path over the defaults.
func LoadFile(path string) (*PipelineConfig, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolving %s: %w", path, err)
	}

	cfg := Default()
	if err := cfg.loadFile(absolute); err != nil {
		return nil, err
	}
	cfg.path = absolute
	cfg.expandVariables()
	cfg.applyEnvironmentOverrides()
	cfg.resolvePaths(filepath.Dir(absolute))
	return cfg, nil
}

// Path returns the file the configuration was loaded from, or "".
func (c *PipelineConfig) Path() string {
	return c.path
}

func (c *PipelineConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(c); err != nil {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return nil
}

// applyEnvironmentOverrides lets CI jobs retarget a run without editing
// the file. Only the identity and source coordinates are overridable.
func (c *PipelineConfig) applyEnvironmentOverrides() {
	overrides := []struct {
		name   string
		target *string
	}{
		{"SHIPYARD_SOURCE_URL", &c.Source.URL},
		{"SHIPYARD_SOURCE_BRANCH", &c.Source.Branch},
		{"SHIPYARD_PUBLISH_OWNER", &c.Publish.Owner},
		{"SHIPYARD_PUBLISH_REPO", &c.Publish.Repo},
		{"SHIPYARD_PUBLISH_BRANCH", &c.Publish.Branch},
	}
	for _, override := range overrides {
		if value := os.Getenv(override.name); value != "" {
			*override.target = value
		}
	}
	if value := os.Getenv("SHIPYARD_AUTO_PUBLISH"); value != "" {
		if enabled, err := strconv.ParseBool(value); err == nil {
			c.Capabilities.Publish = enabled
		}
	}
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func (c *PipelineConfig) expandVariables() {
	fields := []*string{
		&c.Roots.Source, &c.Roots.Build, &c.Roots.Install, &c.Roots.Versioned,
		&c.Source.URL, &c.Source.Branch, &c.Source.Subtree,
		&c.Publish.Owner, &c.Publish.Repo, &c.Publish.Branch,
		&c.Publish.APIURL, &c.Publish.Description,
		&c.Publish.AuthorName, &c.Publish.AuthorEmail,
		&c.StateDir,
	}
	for _, field := range fields {
		*field = expandVars(*field)
	}
	for name, target := range c.Compile.Targets {
		target.Command = expandAll(target.Command)
		target.Dir = expandVars(target.Dir)
		c.Compile.Targets[name] = target
	}
	c.Sign.Command = expandAll(c.Sign.Command)
	c.Publish.InstallCommand = expandAll(c.Publish.InstallCommand)
}

func expandAll(values []string) []string {
	for i, value := range values {
		values[i] = expandVars(value)
	}
	return values
}

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

func (c *PipelineConfig) resolvePaths(base string) {
	for _, root := range []*string{&c.Roots.Source, &c.Roots.Build, &c.Roots.Install, &c.Roots.Versioned} {
		*root = ResolvePath(base, *root)
	}
}

// ResolvePath makes path absolute relative to base. Empty stays empty;
// a leading "~/" expands to the home directory.
func ResolvePath(base, path string) string {
	if path == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

// Layout derives the workspace layout.
func (c *PipelineConfig) Layout() (workspace.Layout, error) {
	return workspace.New(workspace.Roots{
		Source:    c.Roots.Source,
		Build:     c.Roots.Build,
		Install:   c.Roots.Install,
		Versioned: c.Roots.Versioned,
	}, c.Source.Subtree, c.StateDir)
}

// Validate checks the configuration for the stages its capabilities
// enable. All problems are reported together.
func (c *PipelineConfig) Validate() error {
	var errs []error

	if _, err := c.Layout(); err != nil {
		errs = append(errs, err)
	}

	if c.Source.URL == "" {
		errs = append(errs, errors.New("source.url is required"))
	}
	if c.Source.Branch == "" {
		errs = append(errs, errors.New("source.branch is required"))
	}
	if c.Source.Depth < 0 {
		errs = append(errs, fmt.Errorf("source.depth must not be negative (got %d)", c.Source.Depth))
	}

	for name, target := range c.Compile.Targets {
		if !isTarget(name) {
			errs = append(errs, fmt.Errorf("compile.targets: unknown target %q (want one of %s)",
				name, strings.Join(workspace.Targets, ", ")))
		}
		if len(target.Command) == 0 {
			errs = append(errs, fmt.Errorf("compile.targets.%s: command is empty", name))
		}
	}

	if c.Capabilities.Sign {
		if len(c.Sign.Command) == 0 {
			errs = append(errs, errors.New("sign.command is required when signing is enabled"))
		} else if !containsPlaceholder(c.Sign.Command, "{file}") {
			errs = append(errs, errors.New("sign.command must contain the {file} placeholder"))
		}
	}

	for field, extensions := range map[string][]string{
		"package.executables":   c.Package.Executables,
		"package.libraries":     c.Package.Libraries,
		"package.configuration": c.Package.Configuration,
	} {
		for _, extension := range extensions {
			if !strings.HasPrefix(extension, ".") {
				errs = append(errs, fmt.Errorf("%s: extension %q must start with a dot", field, extension))
			}
		}
	}

	if c.Capabilities.Publish {
		if c.Publish.Owner == "" {
			errs = append(errs, errors.New("publish.owner is required when publishing is enabled"))
		}
		if c.Publish.Repo == "" {
			errs = append(errs, errors.New("publish.repo is required when publishing is enabled"))
		}
		if c.Publish.Branch == "" {
			errs = append(errs, errors.New("publish.branch is required when publishing is enabled"))
		}
		if c.Publish.Remote == "" {
			errs = append(errs, errors.New("publish.remote is required when publishing is enabled"))
		}
		switch c.Publish.Creator {
		case CreatorAuto, CreatorAPI, CreatorGH:
		default:
			errs = append(errs, fmt.Errorf("publish.creator: unknown creator %q (want auto, api, or gh)", c.Publish.Creator))
		}
	}

	switch c.History.Compression {
	case "zstd", "lz4", "none":
	default:
		errs = append(errs, fmt.Errorf("history.compression: unknown compression %q (want zstd, lz4, or none)", c.History.Compression))
	}

	return errors.Join(errs...)
}

func isTarget(name string) bool {
	for _, target := range workspace.Targets {
		if target == name {
			return true
		}
	}
	return false
}

func containsPlaceholder(args []string, placeholder string) bool {
	for _, arg := range args {
		if strings.Contains(arg, placeholder) {
			return true
		}
	}
	return false
}
