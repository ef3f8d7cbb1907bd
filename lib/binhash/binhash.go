// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package binhash

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 artifact digest.
type Digest [32]byte

// artifactDomainKey is the BLAKE3 key for artifact digests: the ASCII
// domain name zero-padded to 32 bytes. Changing it changes every
// recorded digest.
var artifactDomainKey = [32]byte{
	's', 'h', 'i', 'p', 'y', 'a', 'r', 'd', '.', 'a', 'r', 't', 'i', 'f', 'a', 'c',
	't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

func newHasher() hash.Hash {
	hasher, err := blake3.NewKeyed(artifactDomainKey[:])
	if err != nil {
		// NewKeyed only fails for a key that is not 32 bytes.
		panic("binhash: " + err.Error())
	}
	return hasher
}

// HashBytes returns the digest of data.
func HashBytes(data []byte) Digest {
	hasher := newHasher()
	hasher.Write(data)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// HashFile computes the digest of the file at path, streaming it
// through the hasher.
func HashFile(path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher := newHasher()
	if _, err := io.Copy(hasher, file); err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// HashingWriter hashes everything written through it.
type HashingWriter struct {
	hasher hash.Hash
}

// NewHashingWriter returns an empty HashingWriter. Use it as one side
// of an io.MultiWriter.
func NewHashingWriter() *HashingWriter {
	return &HashingWriter{hasher: newHasher()}
}

func (w *HashingWriter) Write(p []byte) (int, error) {
	return w.hasher.Write(p)
}

// Digest returns the digest of everything written so far.
func (w *HashingWriter) Digest() Digest {
	var digest Digest
	copy(digest[:], w.hasher.Sum(nil))
	return digest
}

// FormatDigest returns the lowercase hex form of a digest.
func FormatDigest(digest Digest) string {
	return hex.EncodeToString(digest[:])
}

// String implements fmt.Stringer.
func (d Digest) String() string {
	return FormatDigest(d)
}

// ParseDigest parses a 64-character hex digest.
func ParseDigest(hexString string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing artifact digest: %w", err)
	}
	if len(decoded) != len(digest) {
		return digest, fmt.Errorf("artifact digest is %d bytes, want %d", len(decoded), len(digest))
	}
	copy(digest[:], decoded)
	return digest, nil
}
