package storage

import (
	"context"
	"errors"

	"golang.org/x/xerrors"
)

var ErrNotFound = errors.New("object not found")

type Storage interface {
	// Put stores data with the given key and returns the storage URL
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Get retrieves data from the given storage URL
	Get(ctx context.Context, url string) ([]byte, error)
	// URL returns the storage URL Put reports for key
	URL(key string) string
}

type Config struct {
	// Backend is "file" or "s3".
	Backend string
	File    FileConfig
	S3      S3Config
}

func New(ctx context.Context, c Config) (Storage, error) {
	switch c.Backend {
	case "", "file":
		return NewFileStorage(ctx, c.File)
	case "s3":
		return NewS3Storage(ctx, c.S3)
	default:
		return nil, xerrors.Errorf("unknown storage backend: %s", c.Backend)
	}
}
