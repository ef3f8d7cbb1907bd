// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// User is a GitHub account.
type User struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
	Type  string `json:"type"` // "User" or "Organization"
}

// Repository is the subset of a GitHub repository the publisher reads.
type Repository struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Owner         User   `json:"owner"`
	Private       bool   `json:"private"`
	HTMLURL       string `json:"html_url"`
	CloneURL      string `json:"clone_url"`
	DefaultBranch string `json:"default_branch"`
}

// CreateRepositoryRequest is the body of a repository creation call.
type CreateRepositoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Private     bool   `json:"private"`

	// AutoInit is always false: the publisher pushes the first commit.
	AutoInit bool `json:"auto_init"`
}

// AuthenticatedUser returns the account the token belongs to.
func (client *Client) AuthenticatedUser(ctx context.Context) (*User, error) {
	var user User
	if err := client.get(ctx, "/user", &user); err != nil {
		return nil, fmt.Errorf("getting authenticated user: %w", err)
	}
	return &user, nil
}

// GetRepository returns owner/repo. A repository that does not exist, or
// that the token cannot see, fails with an error satisfying IsNotFound.
func (client *Client) GetRepository(ctx context.Context, owner, repo string) (*Repository, error) {
	var repository Repository
	path := fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(repo))
	if err := client.get(ctx, path, &repository); err != nil {
		return nil, fmt.Errorf("getting repository %s/%s: %w", owner, repo, err)
	}
	return &repository, nil
}

// CreateRepository creates a repository under owner. When owner is the
// authenticated user the repository is created with POST /user/repos;
// otherwise owner is treated as an organization.
func (client *Client) CreateRepository(ctx context.Context, owner string, request CreateRepositoryRequest) (*Repository, error) {
	user, err := client.AuthenticatedUser(ctx)
	if err != nil {
		return nil, err
	}

	path := "/user/repos"
	if !strings.EqualFold(user.Login, owner) {
		path = fmt.Sprintf("/orgs/%s/repos", url.PathEscape(owner))
	}

	var repository Repository
	if err := client.post(ctx, path, request, &repository); err != nil {
		return nil, fmt.Errorf("creating repository %s/%s: %w", owner, request.Name, err)
	}
	client.logger.Info("created repository",
		"repository", repository.FullName,
		"private", repository.Private,
	)
	return &repository, nil
}
