package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists each artifact as <root>/<key>.mdl.
//
// Writes go through a temp file that is synced and renamed into place, so a
// concurrent reader sees either the previous artifact or the new one, never
// a partial write.
type FileStore struct {
	root string
}

var _ ScenarioStore = (*FileStore)(nil)

// NewFileStore prepares root, creating it if needed.
func NewFileStore(root string) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FileStore{root: filepath.Clean(root)}, nil
}

// Root returns the directory artifacts are written to.
func (s *FileStore) Root() string { return s.root }

// Path returns the on-disk location for key.
func (s *FileStore) Path(key string) string {
	return filepath.Join(s.root, FileName(key))
}

// Put writes artifact for key, replacing any previous artifact.
func (s *FileStore) Put(ctx context.Context, key string, artifact []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := writeFileAtomic(s.Path(key), artifact, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", FileName(key), err)
	}
	return nil
}

// Get reads the artifact for key.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateKey(key); err != nil {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read artifact %s: %w", FileName(key), err)
	}
	return data, nil
}

// Delete removes the artifact for key. A missing artifact is not an error.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return nil
	}
	if err := os.Remove(s.Path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove artifact %s: %w", FileName(key), err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
