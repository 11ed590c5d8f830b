package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// ObjectStorage defines the interface for report artifact storage.
type ObjectStorage interface {
	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download downloads an object from storage
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the external URL for accessing an object
	GetURL(key string) string

	// Delete deletes an object from storage
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}

// StoredObject identifies an uploaded artifact.
type StoredObject struct {
	Key         string `json:"key"`
	ExternalURL string `json:"external_url"`
	Size        int64  `json:"size"`
}

// Store uploads data under key and returns its id and external URL.
func Store(ctx context.Context, s ObjectStorage, key string, data []byte, contentType string) (*StoredObject, error) {
	if key == "" {
		return nil, fmt.Errorf("storage key is required")
	}
	if err := s.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return nil, err
	}
	return &StoredObject{
		Key:         key,
		ExternalURL: s.GetURL(key),
		Size:        int64(len(data)),
	}, nil
}

// ReadAll downloads an object fully into memory.
func ReadAll(ctx context.Context, s ObjectStorage, key string) ([]byte, error) {
	rc, err := s.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}
