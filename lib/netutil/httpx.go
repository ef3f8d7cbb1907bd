// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds HTTP I/O helpers shared by API clients.
//
// Response bodies are read with a fixed upper bound so a misbehaving
// server cannot make a client allocate without limit. The bound is for
// JSON API responses, not for downloads.
package netutil

import (
	"fmt"
	"io"
)

// MaxResponseSize bounds JSON API response body reads: 32 MB.
const MaxResponseSize int64 = 32 << 20

// ReadResponse reads a response body up to MaxResponseSize bytes. A body
// longer than the bound is an error rather than silently truncated.
func ReadResponse(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > MaxResponseSize {
		return nil, fmt.Errorf("response body exceeds %d bytes", MaxResponseSize)
	}
	return data, nil
}
