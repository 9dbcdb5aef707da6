// Package fsutil materializes restored file trees on the target host.
package fsutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// MirrorStats counts what Mirror changed in the destination.
type MirrorStats struct {
	Copied  int
	Removed int
}

// Mirror makes dst an exact copy of src. Entries in dst that do not exist
// in src are removed.
func Mirror(ctx context.Context, src, dst string) (MirrorStats, error) {
	var stats MirrorStats

	info, err := os.Stat(src)
	if err != nil {
		return stats, fmt.Errorf("failed to stat mirror source: %w", err)
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("mirror source %s is not a directory", src)
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return stats, fmt.Errorf("failed to create %s: %w", dst, err)
	}

	err = filepath.WalkDir(src, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)

		if err := clearMismatch(target, d.Type()); err != nil {
			return err
		}

		switch {
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(target, info.Mode().Perm()|0700); err != nil {
				return fmt.Errorf("failed to create %s: %w", target, err)
			}
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return fmt.Errorf("failed to read link %s: %w", p, err)
			}
			os.Remove(target)
			if err := os.Symlink(link, target); err != nil {
				return fmt.Errorf("failed to create link %s: %w", target, err)
			}
			stats.Copied++
		case d.Type().IsRegular():
			if err := copyRegular(p, target); err != nil {
				return err
			}
			stats.Copied++
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	removed, err := prune(ctx, src, dst)
	stats.Removed = removed
	return stats, err
}

// clearMismatch removes target when it exists with a different type than
// the source entry.
func clearMismatch(target string, want fs.FileMode) error {
	info, err := os.Lstat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode().Type() == want.Type() {
		return nil
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("failed to replace %s: %w", target, err)
	}
	return nil
}

// prune deletes every entry under dst with no counterpart under src.
func prune(ctx context.Context, src, dst string) (int, error) {
	removed := 0
	err := filepath.WalkDir(dst, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(dst, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		if _, err := os.Lstat(filepath.Join(src, rel)); err == nil {
			return nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
		removed++
		if d.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	return removed, err
}

func copyRegular(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", dst, err)
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
