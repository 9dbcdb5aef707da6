package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// LocalStorage keeps artifacts in <basePath>/<prefix>/<name>. It serves as
// a remote backend for single-host setups and as the source for restores
// from a local directory.
type LocalStorage struct {
	basePath string
}

func NewLocal(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (l *LocalStorage) Type() string {
	return "local"
}

func (l *LocalStorage) Upload(ctx context.Context, localPath, prefix, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(l.basePath, prefix)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create prefix directory: %w", err)
	}
	return copyFile(localPath, filepath.Join(dir, name))
}

func (l *LocalStorage) Download(ctx context.Context, prefix, name, destPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return copyFile(l.GetPath(prefix, name), destPath)
}

// List returns the file names under prefix in ascending order. A prefix
// that was never written is empty, not an error.
func (l *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(l.basePath, prefix))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	return files, nil
}

func (l *LocalStorage) Copy(ctx context.Context, prefix, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return copyFile(l.GetPath(prefix, src), l.GetPath(prefix, dst))
}

func (l *LocalStorage) Delete(ctx context.Context, prefix, name string) error {
	if err := os.Remove(l.GetPath(prefix, name)); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (l *LocalStorage) GetPath(prefix, name string) string {
	return filepath.Join(l.basePath, prefix, name)
}

// copyFile writes src to a temporary name next to dst and renames it into
// place, so dst is either the old content or the complete new content.
func copyFile(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create dest: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, source); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to copy: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to copy: %w", err)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to move into place: %w", err)
	}
	return nil
}
