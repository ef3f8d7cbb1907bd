// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package publisher

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/shipyard/lib/github"
	"github.com/bureau-foundation/shipyard/lib/tool"
)

// ErrCreatorUnavailable is returned (wrapped) by a Creator whose
// tooling is not installed. The publisher responds by running the
// configured installer and trying once more.
var ErrCreatorUnavailable = errors.New("repository creation tool unavailable")

// CreateRequest describes the repository to create.
type CreateRequest struct {
	Owner       string
	Repo        string
	Description string
	Private     bool
}

// Creator provisions a remote repository.
type Creator interface {
	// Name identifies the creator in logs and reports.
	Name() string

	// Create makes owner/repo. An existing repository of that name is
	// not an error.
	Create(ctx context.Context, request CreateRequest) error
}

// APICreator creates repositories through the GitHub REST API.
type APICreator struct {
	Client *github.Client
}

func (c *APICreator) Name() string { return "api" }

func (c *APICreator) Create(ctx context.Context, request CreateRequest) error {
	_, err := c.Client.CreateRepository(ctx, request.Owner, github.CreateRepositoryRequest{
		Name:        request.Repo,
		Description: request.Description,
		Private:     request.Private,
	})
	if github.IsAlreadyExists(err) {
		return nil
	}
	return err
}

// GHCreator creates repositories with the GitHub CLI.
type GHCreator struct {
	Runner tool.Runner

	// Program is the gh binary name. Defaults to "gh".
	Program string

	// Available reports whether a program is installed. Defaults to
	// tool.Available.
	Available func(name string) bool
}

func (c *GHCreator) Name() string { return "gh" }

func (c *GHCreator) program() string {
	if c.Program == "" {
		return "gh"
	}
	return c.Program
}

func (c *GHCreator) Create(ctx context.Context, request CreateRequest) error {
	available := c.Available
	if available == nil {
		available = tool.Available
	}
	if !available(c.program()) {
		return fmt.Errorf("%s: %w", c.program(), ErrCreatorUnavailable)
	}

	visibility := "--public"
	if request.Private {
		visibility = "--private"
	}
	args := []string{"repo", "create", request.Owner + "/" + request.Repo, visibility}
	if request.Description != "" {
		args = append(args, "--description", request.Description)
	}
	result, err := c.Runner.Run(ctx, tool.Invocation{Name: c.program(), Args: args})
	if err != nil {
		// Lost between the lookup and the call.
		return fmt.Errorf("%w: %w", ErrCreatorUnavailable, err)
	}
	return result.Err()
}
