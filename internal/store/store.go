// Package store defines the scenario artifact repository and its in-memory
// and filesystem implementations.
//
// A store maps a sanitized scenario key to exactly one model artifact. Put
// overwrites without versioning, Get reports ErrNotFound for unknown keys,
// and Delete is idempotent. Stores are shared across requests without any
// transactional isolation: concurrent Puts to one key are last-writer-wins.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ArtifactExt is the file extension every stored model artifact carries.
const ArtifactExt = ".mdl"

var (
	// ErrNotFound is returned by Get when no artifact exists for a key.
	ErrNotFound = errors.New("scenario artifact not found")
	// ErrInvalidKey is returned for keys that cannot name an artifact.
	ErrInvalidKey = errors.New("invalid scenario key")
)

// ScenarioStore is the key -> artifact repository the scenario service
// persists uploaded models in.
type ScenarioStore interface {
	Put(ctx context.Context, key string, artifact []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// FileName derives the artifact name for key. Every backend addresses
// artifacts through it so the persisted layout stays <key>.mdl.
func FileName(key string) string {
	return key + ArtifactExt
}

// ValidateKey rejects keys that are empty or could escape a storage root.
// Keys produced by naming.Sanitize always pass unless empty.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: key is empty", ErrInvalidKey)
	case strings.ContainsAny(key, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidKey, key)
	}
	return nil
}
