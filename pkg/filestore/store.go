// Package filestore provides versioned single-file storage with
// compare-and-swap writes.
package filestore

import (
	"context"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrNotFound        = errors.New("filestore: not found")
	ErrVersionMismatch = errors.New("filestore: version mismatch")
)

// File is the content of a path together with the version that identifies it.
type File struct {
	Path    string
	Content []byte
	Version string
}

// Store is a versioned file store.
//
// Contract:
//   - Get returns ErrNotFound when the path is absent.
//   - Put with an empty expectedVersion creates the path and fails with
//     ErrVersionMismatch if it already exists.
//   - Put with a non-empty expectedVersion replaces the content only if the
//     current version equals it, otherwise it fails with ErrVersionMismatch and
//     nothing is written.
//   - Put returns the version of the content it wrote.
type Store interface {
	Get(ctx context.Context, path string) (*File, error)
	Put(ctx context.Context, path string, content []byte, message, expectedVersion string) (string, error)
}

func IsNotFound(err error) bool        { return errors.Is(err, ErrNotFound) }
func IsVersionMismatch(err error) bool { return errors.Is(err, ErrVersionMismatch) }

// ContentVersion derives a version tag from the exact bytes of a file.
func ContentVersion(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}
