package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
)

type DiskStorage struct {
	dir string
}

func NewDisk(dir string) (*DiskStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStorage{dir: dir}, nil
}

func (d *DiskStorage) path(key string) (string, error) {
	if !ValidKey(key) {
		return "", ErrNotFound
	}
	return filepath.Join(d.dir, key), nil
}

func (d *DiskStorage) Save(_ context.Context, key, _ string, data []byte) error {
	p, err := d.path(key)
	if err != nil {
		return fmt.Errorf("invalid key %q", key)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}

func (d *DiskStorage) Open(_ context.Context, key string) (io.ReadCloser, string, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("open image: %w", err)
	}
	return f, mime.TypeByExtension(filepath.Ext(key)), nil
}

func (d *DiskStorage) Delete(_ context.Context, key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove image: %w", err)
	}
	return nil
}

func (d *DiskStorage) URL(key string) string {
	return "/uploads/" + key
}
