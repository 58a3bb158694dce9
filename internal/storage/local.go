package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/w3a11y/artisan-wordpress-sub001/internal/apperrors"
)

// Local stores media below a directory, one file per key
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media dir %s: %v", abs, err)
	}
	return &Local{root: abs}, nil
}

func (l *Local) Name() string {
	return "file://" + l.root
}

// path resolves key below root and rejects keys escaping it
func (l *Local) path(op, key string) (string, error) {
	p := filepath.Join(l.root, filepath.FromSlash(key))
	if p != l.root && !strings.HasPrefix(p, l.root+string(filepath.Separator)) {
		return "", apperrors.Validation(op, "invalid object key %q", key)
	}
	return p, nil
}

func (l *Local) Get(_ context.Context, key string) ([]byte, string, error) {
	p, err := l.path("storage.get", key)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", apperrors.New(apperrors.KindNotFound, "storage.get", fmt.Sprintf("object %s not found", key))
	}
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.KindStorage, "storage.get", key, err)
	}
	return data, ContentType(key), nil
}

func (l *Local) Put(_ context.Context, key string, data []byte, _ string, _ map[string]string) error {
	p, err := l.path("storage.put", key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "storage.put", key, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "storage.put", key, err)
	}
	return nil
}

func (l *Local) PutFile(_ context.Context, key, filePath, _ string, _ map[string]string) (int64, error) {
	p, err := l.path("storage.put_file", key)
	if err != nil {
		return 0, err
	}
	if p == filePath {
		info, err := os.Stat(p)
		if err != nil {
			return 0, apperrors.Wrap(apperrors.KindStorage, "storage.put_file", key, err)
		}
		return info.Size(), nil
	}

	src, err := os.Open(filePath)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindStorage, "storage.put_file", key, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return 0, apperrors.Wrap(apperrors.KindStorage, "storage.put_file", key, err)
	}
	dst, err := os.Create(p)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindStorage, "storage.put_file", key, err)
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindStorage, "storage.put_file", key, err)
	}
	return n, nil
}
