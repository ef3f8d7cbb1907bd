// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package github is a small client for the parts of the GitHub REST API
// the publisher needs: looking up the authenticated user, and reading
// and creating repositories.
//
// Requests authenticate with a personal access token sent as a Bearer
// header. The client refuses non-HTTPS base URLs, so a token is never
// sent in the clear.
package github
