package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alloctrace/pkg/errors"
)

// LocalStorage keeps objects as plain files under a base directory. It is
// the default backend for single-machine runs and tests.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the base directory if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath == "" {
		basePath = "./storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, errors.Wrap(errors.CodeIOError, "failed to create storage directory "+basePath, err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// resolve maps a key to a path under the base directory. Keys that escape
// the base via ".." are rejected.
func (s *LocalStorage) resolve(key string) (string, error) {
	full := filepath.Join(s.basePath, filepath.FromSlash(key))
	base := filepath.Clean(s.basePath)
	if full != base && !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", errors.Newf(errors.CodeInvalidInput, "key %q escapes the storage root", key)
	}
	return full, nil
}

func (s *LocalStorage) Upload(ctx context.Context, key string, reader io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errors.Wrap(errors.CodeIOError, "failed to create directory for "+key, err)
	}

	file, err := os.Create(full)
	if err != nil {
		return errors.Wrap(errors.CodeIOError, "failed to create "+key, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return errors.Wrap(errors.CodeIOError, "failed to write "+key, err)
	}
	return nil
}

func (s *LocalStorage) UploadFile(ctx context.Context, key string, localPath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return errors.Wrap(errors.CodeIOError, "failed to open "+localPath, err)
	}
	defer src.Close()
	return s.Upload(ctx, key, src)
}

func (s *LocalStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.CodeNotFound, "object %q not found", key)
		}
		return nil, errors.Wrap(errors.CodeIOError, "failed to open "+key, err)
	}
	return file, nil
}

func (s *LocalStorage) DownloadFile(ctx context.Context, key string, localPath string) error {
	src, err := s.Download(ctx, key)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return errors.Wrap(errors.CodeIOError, "failed to create directory for "+localPath, err)
	}
	dst, err := os.Create(localPath)
	if err != nil {
		return errors.Wrap(errors.CodeIOError, "failed to create "+localPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return errors.Wrap(errors.CodeIOError, "failed to copy "+key, err)
	}
	return nil
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.CodeIOError, "failed to delete "+key, err)
	}
	return nil
}

func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(errors.CodeIOError, "failed to stat "+key, err)
	}
	return true, nil
}

// URL returns the filesystem path backing the key.
func (s *LocalStorage) URL(key string) string {
	full, err := s.resolve(key)
	if err != nil {
		return ""
	}
	return full
}

// BasePath returns the storage root directory.
func (s *LocalStorage) BasePath() string {
	return s.basePath
}
