// Package storage abstracts where binary allocation logs are fetched from
// and where exported JSON views are published to.
package storage

import (
	"context"
	"io"
	"path"
	"path/filepath"

	"github.com/alloctrace/pkg/config"
	"github.com/alloctrace/pkg/errors"
)

// Storage is the object store used for log intake and export publishing.
type Storage interface {
	// Upload streams data to the given key.
	Upload(ctx context.Context, key string, reader io.Reader) error

	// UploadFile uploads a local file to the given key.
	UploadFile(ctx context.Context, key string, localPath string) error

	// Download opens the object at the given key.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// DownloadFile copies the object at the given key to a local path.
	DownloadFile(ctx context.Context, key string, localPath string) error

	// Delete removes the object at the given key. Deleting a missing
	// object is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object exists at the given key.
	Exists(ctx context.Context, key string) (bool, error)

	// URL returns an addressable location for the given key.
	URL(key string) string
}

// Backend identifies a storage implementation.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendCOS   Backend = "cos"
)

// New builds a Storage from configuration. An empty type defaults to local.
func New(cfg *config.StorageConfig) (Storage, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	switch Backend(cfg.Type) {
	case BackendCOS:
		return NewCOSStorage(&COSConfig{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			SecretID:  cfg.SecretID,
			SecretKey: cfg.SecretKey,
			Domain:    cfg.Domain,
			Scheme:    cfg.Scheme,
		})
	default:
		return NewLocalStorage(cfg.LocalPath)
	}
}

func validate(cfg *config.StorageConfig) error {
	if cfg == nil {
		return errors.New(errors.CodeConfigError, "storage config is nil")
	}

	switch Backend(cfg.Type) {
	case BackendLocal, "":
		if cfg.LocalPath == "" {
			return errors.New(errors.CodeConfigError, "local storage path is required")
		}
	case BackendCOS:
		if cfg.Bucket == "" || cfg.Region == "" {
			return errors.New(errors.CodeConfigError, "COS bucket and region are required")
		}
		if cfg.SecretID == "" || cfg.SecretKey == "" {
			return errors.New(errors.CodeConfigError, "COS credentials are required")
		}
	default:
		return errors.Newf(errors.CodeConfigError, "unsupported storage type %q", cfg.Type)
	}
	return nil
}

// ExportKey returns the object key a run's view file is published under:
// exports/<run uuid>/<file name>.
func ExportKey(runUUID string, localPath string) string {
	return path.Join("exports", runUUID, filepath.Base(localPath))
}

// PublishExports uploads a run's view files and returns their keys in input
// order. Publishing stops at the first failure.
func PublishExports(ctx context.Context, store Storage, runUUID string, paths []string) ([]string, error) {
	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		key := ExportKey(runUUID, p)
		if err := store.UploadFile(ctx, key, p); err != nil {
			return keys, errors.Wrapf(errors.CodeUploadError, "failed to publish %s", err, p)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
