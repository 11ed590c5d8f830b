package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// FSStorage implements ObjectStorage on an afero filesystem.
// Backed by afero.NewMemMapFs it serves QA runs and tests; by a BasePathFs
// it serves local development.
type FSStorage struct {
	fs        afero.Fs
	publicURL string
}

// NewMemoryStorage creates an in-memory storage.
func NewMemoryStorage(publicURL string) *FSStorage {
	return NewFSStorage(afero.NewMemMapFs(), publicURL)
}

// NewLocalStorage creates a storage rooted at dir on the local disk.
func NewLocalStorage(dir, publicURL string) (*FSStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return NewFSStorage(afero.NewBasePathFs(afero.NewOsFs(), dir), publicURL), nil
}

// NewFSStorage wraps an arbitrary afero filesystem.
func NewFSStorage(fs afero.Fs, publicURL string) *FSStorage {
	if publicURL == "" {
		publicURL = "memory://reports"
	}
	return &FSStorage{fs: fs, publicURL: strings.TrimSuffix(publicURL, "/")}
}

func cleanKey(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return clean, nil
}

// Upload writes the object, creating parent directories.
func (s *FSStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	f, err := s.fs.Create(name)
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// Download opens the object for reading.
func (s *FSStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to download object: %w", err)
	}
	return f, nil
}

// GetURL returns the URL under the configured public prefix.
func (s *FSStorage) GetURL(key string) string {
	return fmt.Sprintf("%s/%s", s.publicURL, strings.TrimPrefix(key, "/"))
}

// Delete removes the object.
func (s *FSStorage) Delete(ctx context.Context, key string) error {
	name, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Exists checks whether the object is present.
func (s *FSStorage) Exists(ctx context.Context, key string) (bool, error) {
	name, err := cleanKey(key)
	if err != nil {
		return false, err
	}
	ok, err := afero.Exists(s.fs, name)
	if err != nil {
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return ok, nil
}
