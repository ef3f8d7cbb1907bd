// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package packager stages compiler output into the install root.
//
// Files are classified by extension: executables and configuration go
// to install/bin (configuration sits next to the programs that read
// it), libraries to install/lib. File names are preserved and existing
// files are always overwritten; the install root is regenerable. A
// compiler output directory that does not exist is a warning, not an
// error, so whatever a previous build left in the install root is
// still signed and published.
//
// Every run also rewrites the activation scripts and MANIFEST. Their
// content depends only on the layout and the installed bytes, so an
// unchanged build leaves the install root byte-identical.
package packager

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/shipyard/lib/binhash"
)

// Options describes one packaging pass.
type Options struct {
	// Outputs are compiler output directories, walked recursively in
	// order. Later directories win on name collisions.
	Outputs []string

	Install string
	Bin     string
	Lib     string

	// ProfileFile is the shell profile activate.sh appends to.
	ProfileFile string
}

// Result is the outcome of a packaging pass.
type Result struct {
	// Copied are the artifacts staged this run.
	Copied ArtifactSet `json:"copied"`

	// MissingOutputs lists output directories that did not exist.
	MissingOutputs []string `json:"missing_outputs,omitempty"`

	// Replaced lists destinations written more than once this run.
	Replaced []string `json:"replaced,omitempty"`

	// Scripts and Manifest are the generated files.
	Scripts  []string `json:"scripts"`
	Manifest string   `json:"manifest"`
}

// Packager copies artifacts.
type Packager struct {
	classifier Classifier
	logger     *slog.Logger
}

// New returns a Packager using classifier.
func New(classifier Classifier, logger *slog.Logger) *Packager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Packager{classifier: classifier, logger: logger}
}

// Package copies every classified file from the outputs into the
// install root and regenerates the activation scripts and manifest.
// A missing output directory is recorded in the result; an I/O failure
// while copying is returned as an error.
func (p *Packager) Package(options Options) (Result, error) {
	var result Result

	for _, directory := range []string{options.Bin, options.Lib} {
		if err := os.MkdirAll(directory, 0o755); err != nil {
			return result, fmt.Errorf("creating %s: %w", directory, err)
		}
	}

	for _, output := range options.Outputs {
		info, err := os.Stat(output)
		if errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("compiler output directory missing", "output", output)
			result.MissingOutputs = append(result.MissingOutputs, output)
			continue
		}
		if err != nil {
			return result, fmt.Errorf("inspecting %s: %w", output, err)
		}
		if !info.IsDir() {
			return result, fmt.Errorf("compiler output %s is not a directory", output)
		}
		if err := p.collect(output, options, &result); err != nil {
			return result, err
		}
	}

	scripts, err := writeActivationScripts(options.Install, options.Bin, options.ProfileFile)
	if err != nil {
		return result, err
	}
	result.Scripts = scripts

	manifest, err := WriteManifest(options.Install, []string{options.Bin, options.Lib}, p.classifier)
	if err != nil {
		return result, err
	}
	result.Manifest = manifest

	p.logger.Info("artifacts packaged",
		"copied", result.Copied.Len(),
		"missing_outputs", len(result.MissingOutputs),
	)
	return result, nil
}

func (p *Packager) collect(output string, options Options, result *Result) error {
	return filepath.WalkDir(output, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		kind, ok := p.classifier.Classify(entry.Name())
		if !ok {
			return nil
		}

		destinationDir := options.Bin
		if kind == Library {
			destinationDir = options.Lib
		}
		destination := filepath.Join(destinationDir, entry.Name())

		digest, err := copyFile(path, destination)
		if err != nil {
			return err
		}
		replaced := result.Copied.Put(Artifact{
			Kind:        kind,
			Source:      path,
			Destination: destination,
			Digest:      binhash.FormatDigest(digest),
		})
		if replaced {
			p.logger.Warn("artifact name collision, later output wins",
				"destination", destination,
				"source", path,
			)
			result.Replaced = append(result.Replaced, destination)
		}
		p.logger.Debug("artifact copied", "kind", string(kind), "source", path, "destination", destination)
		return nil
	})
}

// copyFile copies source to destination through a temporary file and
// rename, so a reader never sees a half-written artifact. The source
// mode bits are preserved.
func copyFile(source, destination string) (binhash.Digest, error) {
	in, err := os.Open(source)
	if err != nil {
		return binhash.Digest{}, fmt.Errorf("opening %s: %w", source, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return binhash.Digest{}, fmt.Errorf("inspecting %s: %w", source, err)
	}

	temporary, err := os.CreateTemp(filepath.Dir(destination), ".shipyard-copy-*")
	if err != nil {
		return binhash.Digest{}, fmt.Errorf("staging %s: %w", destination, err)
	}
	defer os.Remove(temporary.Name())

	hashing := binhash.NewHashingWriter()
	if _, err := io.Copy(io.MultiWriter(temporary, hashing), in); err != nil {
		temporary.Close()
		return binhash.Digest{}, fmt.Errorf("copying %s to %s: %w", source, destination, err)
	}
	if err := temporary.Chmod(info.Mode().Perm()); err != nil {
		temporary.Close()
		return binhash.Digest{}, fmt.Errorf("setting mode on %s: %w", destination, err)
	}
	if err := temporary.Close(); err != nil {
		return binhash.Digest{}, fmt.Errorf("writing %s: %w", destination, err)
	}
	if err := os.Rename(temporary.Name(), destination); err != nil {
		return binhash.Digest{}, fmt.Errorf("installing %s: %w", destination, err)
	}
	return hashing.Digest(), nil
}

// writeFileIfChanged writes data unless path already holds exactly
// data, leaving the modification time of unchanged files alone.
func writeFileIfChanged(path string, data []byte, mode fs.FileMode) error {
	existing, err := os.ReadFile(path)
	if err == nil && string(existing) == string(data) {
		return nil
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
