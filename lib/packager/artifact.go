// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package packager

import (
	"path/filepath"
	"slices"
	"strings"
)

// Kind is an artifact's role, which decides where it is installed.
type Kind string

const (
	Executable    Kind = "executable"
	Library       Kind = "library"
	Configuration Kind = "configuration"
)

// Signable reports whether artifacts of this kind are code-signed.
func (k Kind) Signable() bool {
	return k == Executable || k == Library
}

// Artifact is one installed file.
type Artifact struct {
	Kind        Kind   `json:"kind"`
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination"`
	Digest      string `json:"digest,omitempty"`

	// Signed flips to true only when the signer succeeds for this
	// file. SignError holds the failure otherwise.
	Signed    bool   `json:"signed"`
	SignError string `json:"sign_error,omitempty"`
}

// ArtifactSet is an ordered artifact collection.
type ArtifactSet struct {
	Artifacts []Artifact `json:"artifacts"`
}

// Put adds an artifact, replacing any earlier one with the same
// destination (a later output directory overwrites an earlier one on
// disk too). Returns true when it replaced.
func (s *ArtifactSet) Put(artifact Artifact) bool {
	for i := range s.Artifacts {
		if s.Artifacts[i].Destination == artifact.Destination {
			s.Artifacts[i] = artifact
			return true
		}
	}
	s.Artifacts = append(s.Artifacts, artifact)
	return false
}

// ByKind returns the artifacts of kind, in order.
func (s ArtifactSet) ByKind(kind Kind) []Artifact {
	var matched []Artifact
	for _, artifact := range s.Artifacts {
		if artifact.Kind == kind {
			matched = append(matched, artifact)
		}
	}
	return matched
}

// Len is the number of artifacts.
func (s ArtifactSet) Len() int { return len(s.Artifacts) }

// Classifier maps file extensions to artifact kinds.
type Classifier struct {
	kinds map[string]Kind
}

// NewClassifier builds a Classifier. Extensions are matched
// case-insensitively and include the leading dot. When an extension
// appears in more than one list, the earlier list wins.
func NewClassifier(executables, libraries, configuration []string) Classifier {
	kinds := make(map[string]Kind)
	for _, group := range []struct {
		kind       Kind
		extensions []string
	}{
		{Executable, executables},
		{Library, libraries},
		{Configuration, configuration},
	} {
		for _, extension := range group.extensions {
			extension = strings.ToLower(extension)
			if _, taken := kinds[extension]; !taken {
				kinds[extension] = group.kind
			}
		}
	}
	return Classifier{kinds: kinds}
}

// Classify returns the kind for a file name.
func (c Classifier) Classify(name string) (Kind, bool) {
	kind, ok := c.kinds[strings.ToLower(filepath.Ext(name))]
	return kind, ok
}

// Extensions returns the extensions mapped to kind, sorted.
func (c Classifier) Extensions(kind Kind) []string {
	var extensions []string
	for extension, mapped := range c.kinds {
		if mapped == kind {
			extensions = append(extensions, extension)
		}
	}
	slices.Sort(extensions)
	return extensions
}
