package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// LocalStorage keeps archived objects in a directory tree. Used in
// development and single-node deployments.
type LocalStorage struct {
	root   string
	logger *slog.Logger
}

func NewLocalStorage(cfg LocalConfig, logger *slog.Logger) (*LocalStorage, error) {
	root, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("resolve archive path: %w", err)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	logger.Info("local archive ready", "path", root)
	return &LocalStorage{root: root, logger: logger}, nil
}

// Put writes data to a temporary file, then publishes it under key. Without
// Overwrite the file is published with a hard link, which fails when the key
// is taken, so two deliveries of one event cannot both win.
func (s *LocalStorage) Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error {
	const op = "put"
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.path(key)
	if err != nil {
		return opError(op, key, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return opError(op, key, err)
	}

	tmp, err := os.CreateTemp(dir, ".incoming-*")
	if err != nil {
		return opError(op, key, err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return opError(op, key, err)
	}

	if opts.Overwrite {
		err = os.Rename(tmp.Name(), path)
	} else if err = os.Link(tmp.Name(), path); errors.Is(err, fs.ErrExist) {
		err = ErrKeyExists
	}
	if err != nil {
		return opError(op, key, err)
	}

	s.logger.Debug("archived object", "key", key, "bytes", n)
	return nil
}

func (s *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	const op = "get"
	if err := ctx.Err(); err != nil {
		return nil, ObjectInfo{}, err
	}

	path, err := s.path(key)
	if err != nil {
		return nil, ObjectInfo{}, opError(op, key, err)
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		err = ErrNotFound
	}
	if err != nil {
		return nil, ObjectInfo{}, opError(op, key, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ObjectInfo{}, opError(op, key, err)
	}
	return f, ObjectInfo{
		Key:          key,
		Size:         st.Size(),
		ContentType:  contentTypeJSON,
		LastModified: st.ModTime(),
	}, nil
}

func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	const op = "exists"
	if err := ctx.Err(); err != nil {
		return false, err
	}

	path, err := s.path(key)
	if err != nil {
		return false, opError(op, key, err)
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, opError(op, key, err)
	}
}

// path maps key to a file below root. Absolute keys and keys that climb out
// with ".." are rejected.
func (s *LocalStorage) path(key string) (string, error) {
	if !filepath.IsLocal(key) {
		return "", ErrInvalidKey
	}
	clean := filepath.Clean(key)
	if clean == "." {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.root, clean), nil
}
