// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bureau-foundation/shipyard/lib/compile"
	"github.com/bureau-foundation/shipyard/lib/git"
	"github.com/bureau-foundation/shipyard/lib/packager"
	"github.com/bureau-foundation/shipyard/lib/publisher"
	"github.com/bureau-foundation/shipyard/lib/report"
	"github.com/bureau-foundation/shipyard/lib/sanitize"
	"github.com/bureau-foundation/shipyard/lib/signer"
	"github.com/bureau-foundation/shipyard/lib/sourcesync"
	"github.com/bureau-foundation/shipyard/lib/workspace"
)

func (p *Pipeline) syncSource(ctx context.Context) (report.StageReport, error) {
	stageReport := report.New(StageSync, p.clock.Now())
	syncer := sourcesync.New(p.runner, p.logger.With("stage", StageSync))
	result, err := syncer.Sync(ctx, sourcesync.Options{
		URL:    p.cfg.Source.URL,
		Branch: p.cfg.Source.Branch,
		Dir:    p.layout.SourceTree,
		Force:  p.cfg.Capabilities.Force,
		Depth:  p.cfg.Source.Depth,
	})
	if err != nil {
		stageReport.Fail(report.SourceSyncFailure, err)
		return p.finish(stageReport), err
	}
	stageReport.Message = fmt.Sprintf("%s %s at %s", result.Action, p.cfg.Source.Branch, shortCommit(result.Commit))
	return p.finish(stageReport), nil
}

// sanitizeSource strips nested metadata from the synced tree. A tree
// that cannot be walked at all is as unusable as a failed sync.
func (p *Pipeline) sanitizeSource(ctx context.Context) (report.StageReport, error) {
	stageReport := report.New(StageSanitize, p.clock.Now())
	sanitizer := sanitize.New(sanitize.DefaultMarkers, p.logger.With("stage", StageSanitize))
	result, err := sanitizer.Sanitize(p.layout.SourceTree)
	stageReport.Add("removed", len(result.Removed))
	for _, failure := range result.Failed {
		stageReport.Warn("could not remove %s: %s", failure.Path, failure.Err)
	}
	if err != nil {
		stageReport.Fail(report.SourceSyncFailure, err)
		return p.finish(stageReport), err
	}
	return p.finish(stageReport), nil
}

// enabledTargets returns the compile targets whose capability flag is
// on, in build order.
func (p *Pipeline) enabledTargets() []compile.Target {
	var targets []compile.Target
	for _, name := range workspace.Targets {
		if !p.cfg.Capabilities.TargetEnabled(name) {
			continue
		}
		configured := p.cfg.Compile.Targets[name]
		targets = append(targets, compile.Target{
			Name:    name,
			Command: configured.Command,
			Dir:     configured.Dir,
			Output:  p.layout.BuildOutput(name),
		})
	}
	return targets
}

func (p *Pipeline) compileTargets(ctx context.Context) (report.StageReport, error) {
	targets := p.enabledTargets()
	if len(targets) == 0 {
		return report.Skipped(StageCompile, "no compile targets enabled"), nil
	}

	stageReport := report.New(StageCompile, p.clock.Now())
	compiler := compile.New(p.runner, p.layout.SourceTree, p.cfg.Compile.Configuration, p.logger.With("stage", StageCompile))
	failed := 0
	for _, result := range compiler.BuildAll(ctx, targets) {
		switch result.Status {
		case compile.StatusOK:
			stageReport.Add("built", 1)
		case compile.StatusSkipped:
			stageReport.Add("skipped", 1)
			stageReport.Warn("target %s: %s", result.Target, result.Error)
		case compile.StatusFailed:
			failed++
			stageReport.Add("failed", 1)
			stageReport.Error(report.CompileFailure, fmt.Errorf("target %s: %s", result.Target, result.Error))
		}
	}
	if failed > 0 {
		err := fmt.Errorf("%d of %d compile targets failed", failed, len(targets))
		stageReport.Fail(report.CompileFailure, err)
		return p.finish(stageReport), err
	}
	return p.finish(stageReport), nil
}

func (p *Pipeline) classifier() packager.Classifier {
	return packager.NewClassifier(p.cfg.Package.Executables, p.cfg.Package.Libraries, p.cfg.Package.Configuration)
}

// packageArtifacts stages the enabled targets' output. A copy failure
// fails the stage but not the run: the install root keeps whatever an
// earlier build put there.
func (p *Pipeline) packageArtifacts(ctx context.Context) (report.StageReport, error) {
	stageReport := report.New(StagePackage, p.clock.Now())

	var outputs []string
	for _, target := range p.enabledTargets() {
		outputs = append(outputs, target.Output)
	}

	result, err := packager.New(p.classifier(), p.logger.With("stage", StagePackage)).Package(packager.Options{
		Outputs:     outputs,
		Install:     p.layout.Install,
		Bin:         p.layout.InstallBin,
		Lib:         p.layout.InstallLib,
		ProfileFile: p.cfg.Package.ProfileFile,
	})
	for _, kind := range []packager.Kind{packager.Executable, packager.Library, packager.Configuration} {
		stageReport.Add(string(kind), len(result.Copied.ByKind(kind)))
	}
	for _, missing := range result.MissingOutputs {
		stageReport.Warn("compiler output %s does not exist", missing)
	}
	for _, replaced := range result.Replaced {
		stageReport.Warn("%s was produced by more than one output; the last one wins", replaced)
	}
	if err != nil {
		stageReport.Status = report.StatusFailed
		stageReport.Message = err.Error()
		return p.finish(stageReport), err
	}
	stageReport.Message = fmt.Sprintf("%d artifacts staged in %s", result.Copied.Len(), p.layout.Install)
	return p.finish(stageReport), nil
}

// signArtifacts signs every executable and library under the install
// root, then rewrites the manifest so it carries the signed digests.
func (p *Pipeline) signArtifacts(ctx context.Context) (report.StageReport, error) {
	stageReport := report.New(StageSign, p.clock.Now())
	logger := p.logger.With("stage", StageSign)
	classifier := p.classifier()
	roots := []string{p.layout.InstallBin, p.layout.InstallLib}

	result, err := signer.New(p.runner, p.cfg.Sign.Command, logger).SignAll(ctx, roots, classifier)
	if err != nil {
		stageReport.Fail(report.SignFailure, err)
		return p.finish(stageReport), err
	}
	if result.Skipped {
		stageReport.Warn("signing skipped: %s", result.SkipReason)
		return p.finish(stageReport), nil
	}

	stageReport.Add("signed", result.Signed)
	stageReport.Add("failed", result.Failed)
	for _, artifact := range result.Failures() {
		stageReport.Error(report.SignFailure, fmt.Errorf("%s: %s", artifact.Destination, artifact.SignError))
	}
	if result.Signed > 0 {
		if _, err := packager.WriteManifest(p.layout.Install, roots, classifier); err != nil {
			stageReport.Warn("rewriting manifest after signing: %v", err)
		}
	}
	stageReport.Message = fmt.Sprintf("%d of %d files signed", result.Signed, result.Artifacts.Len())
	return p.finish(stageReport), nil
}

func (p *Pipeline) publish(ctx context.Context) (report.StageReport, error) {
	stageReport := report.New(StagePublish, p.clock.Now())
	logger := p.logger.With("stage", StagePublish)
	settings := p.cfg.Publish

	creator := p.creator
	if creator == nil {
		var err error
		creator, err = NewCreator(settings, p.runner, logger)
		if err != nil {
			stageReport.Warn("no repository creator: %v", err)
		}
	}

	result, err := publisher.New(p.runner, creator, p.clock, logger).Publish(ctx, publisher.Options{
		Dir:            p.layout.Versioned,
		Owner:          settings.Owner,
		Repo:           settings.Repo,
		URL:            settings.RemoteURL(),
		Remote:         settings.Remote,
		Branch:         settings.Branch,
		Exclude:        Excludes(p.layout),
		Identity:       git.Identity{Name: settings.AuthorName, Email: settings.AuthorEmail},
		CommitPrefix:   settings.CommitPrefix,
		ForceOnReject:  settings.ForceOnReject,
		InstallCommand: settings.InstallCommand,
		Description:    settings.Description,
		Private:        settings.Private,
	})
	for _, warning := range result.Warnings {
		stageReport.Warn("%s", warning)
	}
	if result.Created {
		stageReport.Add("created", 1)
	}
	if result.Commit != "" {
		stageReport.Add("commits", 1)
	}
	if result.Forced {
		stageReport.Add("forced_pushes", 1)
	}
	if err != nil {
		stageReport.Fail(report.PublishFailure, err)
		return p.finish(stageReport), err
	}

	if result.Commit == "" {
		stageReport.Message = fmt.Sprintf("nothing new to commit; %s is up to date", result.RemoteURL)
	} else {
		stageReport.Message = fmt.Sprintf("pushed %s to %s", shortCommit(result.Commit), result.RemoteURL)
	}
	return p.finish(stageReport), nil
}

// Excludes returns the directories inside the versioned root that are
// never committed, relative to it: the build root with its compiler
// intermediates, and the state directory. The sanitized source tree is
// committed; that is what sanitizing is for.
func Excludes(layout workspace.Layout) []string {
	var excludes []string
	for _, dir := range []string{layout.Build, layout.StateDir} {
		if dir == layout.Versioned || !workspace.Within(layout.Versioned, dir) {
			continue
		}
		if workspace.Within(dir, layout.Install) {
			// Never hide the published tree.
			continue
		}
		relative, err := filepath.Rel(layout.Versioned, dir)
		if err != nil {
			continue
		}
		relative = filepath.ToSlash(relative)
		if !slices.ContainsFunc(excludes, func(existing string) bool {
			return existing == relative || strings.HasPrefix(relative, existing+"/")
		}) {
			excludes = append(excludes, relative)
		}
	}
	return excludes
}

func shortCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}
