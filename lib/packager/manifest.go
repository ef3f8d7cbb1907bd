// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package packager

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bureau-foundation/shipyard/lib/binhash"
)

// ManifestName is the manifest file name in the install root.
const ManifestName = "MANIFEST"

// ManifestEntry is one MANIFEST line.
type ManifestEntry struct {
	Digest string `json:"digest"`
	Kind   Kind   `json:"kind"`
	Path   string `json:"path"`
}

// Scan walks directories and returns every classified regular file as
// an artifact with its current digest, sorted by path. Missing
// directories contribute nothing.
func Scan(directories []string, classifier Classifier) (ArtifactSet, error) {
	var set ArtifactSet
	for _, directory := range directories {
		err := filepath.WalkDir(directory, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				if path == directory && errors.Is(err, fs.ErrNotExist) {
					return fs.SkipDir
				}
				return err
			}
			if !entry.Type().IsRegular() {
				return nil
			}
			kind, ok := classifier.Classify(entry.Name())
			if !ok {
				return nil
			}
			digest, err := binhash.HashFile(path)
			if err != nil {
				return err
			}
			set.Artifacts = append(set.Artifacts, Artifact{
				Kind:        kind,
				Destination: path,
				Digest:      binhash.FormatDigest(digest),
			})
			return nil
		})
		if err != nil {
			return set, fmt.Errorf("scanning %s: %w", directory, err)
		}
	}
	slices.SortFunc(set.Artifacts, func(a, b Artifact) int {
		return strings.Compare(a.Destination, b.Destination)
	})
	return set, nil
}

// WriteManifest records the digest of every classified file under
// directories in <install>/MANIFEST. Lines are "<digest>  <kind>
// <path>" with paths relative to install, sorted.
func WriteManifest(install string, directories []string, classifier Classifier) (string, error) {
	set, err := Scan(directories, classifier)
	if err != nil {
		return "", err
	}
	var builder strings.Builder
	for _, artifact := range set.Artifacts {
		relative, err := filepath.Rel(install, artifact.Destination)
		if err != nil {
			return "", fmt.Errorf("manifest path for %s: %w", artifact.Destination, err)
		}
		fmt.Fprintf(&builder, "%s  %s  %s\n", artifact.Digest, artifact.Kind, filepath.ToSlash(relative))
	}
	path := filepath.Join(install, ManifestName)
	if err := writeFileIfChanged(path, []byte(builder.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// ReadManifest parses a MANIFEST file.
func ReadManifest(path string) ([]ManifestEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	defer file.Close()

	var entries []ManifestEntry
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.SplitN(scanner.Text(), "  ", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("%s:%d: malformed manifest line", path, line)
		}
		if _, err := binhash.ParseDigest(fields[0]); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		entries = append(entries, ManifestEntry{Digest: fields[0], Kind: Kind(fields[1]), Path: fields[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return entries, nil
}
