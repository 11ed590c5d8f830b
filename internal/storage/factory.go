package storage

import (
	"fmt"
	"strings"
)

// NewStorage creates an ObjectStorage instance based on the configuration.
func NewStorage(cfg *S3Config) (ObjectStorage, error) {
	if cfg.Type == "" {
		cfg.Type = detectStorageType(cfg.Endpoint)
	}

	switch cfg.Type {
	case StorageTypeMemory:
		return NewMemoryStorage(cfg.PublicURL), nil
	case StorageTypeLocal:
		if cfg.LocalPath == "" {
			return nil, fmt.Errorf("local storage requires a path")
		}
		return NewLocalStorage(cfg.LocalPath, cfg.PublicURL)
	case StorageTypeS3, StorageTypeR2, StorageTypeS3Compatible:
		return NewS3Storage(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case endpoint == "":
		return StorageTypeMemory
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
