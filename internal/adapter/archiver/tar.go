package archiver

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/semmidev/wpfleet/internal/domain"
)

// TarArchiver writes compressed tar streams. Entry names are relative to the
// source directory's parent, so the single top level entry is the source
// directory itself and extraction recreates it under its original name.
type TarArchiver struct {
	compressor domain.Compressor
}

func NewTar(compressor domain.Compressor) *TarArchiver {
	return &TarArchiver{compressor: compressor}
}

func (t *TarArchiver) Archive(ctx context.Context, srcDir string, w io.Writer) (err error) {
	srcDir = filepath.Clean(srcDir)
	info, err := os.Stat(srcDir)
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", srcDir)
	}

	cw, err := t.compressor.NewWriter(w)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(cw)
	defer func() {
		// Close tar before the compressor so the trailer is compressed too.
		if closeErr := tw.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("failed to finish tar stream: %w", closeErr)
		}
		if closeErr := cw.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("failed to finish compressed stream: %w", closeErr)
		}
	}()

	parent := filepath.Dir(srcDir)
	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return addEntry(tw, parent, path, d)
	})
}

func addEntry(tw *tar.Writer, parent, path string, d fs.DirEntry) error {
	mode := d.Type()
	if !mode.IsRegular() && !mode.IsDir() && mode&fs.ModeSymlink == 0 {
		// sockets, fifos and devices have no place in a site tree
		return nil
	}

	info, err := d.Info()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	var link string
	if mode&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return fmt.Errorf("failed to read link %s: %w", path, err)
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return fmt.Errorf("failed to build header for %s: %w", path, err)
	}

	rel, err := filepath.Rel(parent, path)
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(rel)
	if info.IsDir() {
		hdr.Name += "/"
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write header for %s: %w", path, err)
	}

	if !mode.IsRegular() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to archive %s: %w", path, err)
	}
	return nil
}

func (t *TarArchiver) Extract(ctx context.Context, r io.Reader, destDir string) error {
	cr, err := t.compressor.NewReader(r)
	if err != nil {
		return err
	}
	defer cr.Close()

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	tr := tar.NewReader(cr)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar entry: %w", err)
		}

		if err := extractEntry(tr, hdr, destDir); err != nil {
			return err
		}
	}
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, destDir string) error {
	target, err := destPath(destDir, hdr.Name)
	if err != nil {
		return err
	}
	if err := checkParents(destDir, target); err != nil {
		return err
	}
	mode := hdr.FileInfo().Mode().Perm()

	switch hdr.Typeflag {
	case tar.TypeDir:
		if info, err := os.Lstat(target); err == nil && info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("invalid file path in archive: %s is a symlink", hdr.Name)
		}
		if err := mkdirAll(destDir, target, mode|0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", hdr.Name, err)
		}
		return os.Chmod(target, mode|0700)

	case tar.TypeReg:
		if err := mkdirAll(destDir, filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", hdr.Name, err)
		}
		return writeFile(tr, target, mode, hdr)

	case tar.TypeSymlink:
		if err := checkLinkTarget(destDir, target, hdr.Linkname); err != nil {
			return fmt.Errorf("%w: %s", err, hdr.Name)
		}
		if err := mkdirAll(destDir, filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", hdr.Name, err)
		}
		_ = os.Remove(target)
		if err := os.Symlink(hdr.Linkname, target); err != nil {
			return fmt.Errorf("failed to create symlink %s: %w", hdr.Name, err)
		}
		return nil

	case tar.TypeLink:
		source, err := destPath(destDir, hdr.Linkname)
		if err != nil {
			return err
		}
		if err := checkParents(destDir, source); err != nil {
			return err
		}
		if err := mkdirAll(destDir, filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", hdr.Name, err)
		}
		_ = os.Remove(target)
		if err := os.Link(source, target); err != nil {
			return fmt.Errorf("failed to create hard link %s: %w", hdr.Name, err)
		}
		return nil
	}

	return nil
}

func writeFile(r io.Reader, target string, mode fs.FileMode, hdr *tar.Header) error {
	// A symlink left at target by an earlier entry is replaced, never followed.
	if info, err := os.Lstat(target); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("failed to replace %s: %w", hdr.Name, err)
		}
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|syscall.O_NOFOLLOW, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", hdr.Name, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to extract %s: %w", hdr.Name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", hdr.Name, err)
	}

	return os.Chtimes(target, hdr.ModTime, hdr.ModTime)
}

// destPath joins name under dir and refuses entries that would escape it.
func destPath(dir, name string) (string, error) {
	target := filepath.Join(dir, name)
	if !within(dir, target) {
		return "", fmt.Errorf("invalid file path in archive: %s", name)
	}
	return target, nil
}

func within(dir, path string) bool {
	clean := filepath.Clean(dir)
	return path == clean || strings.HasPrefix(path, clean+string(os.PathSeparator))
}

// checkParents refuses a target whose existing ancestors below dir include a
// symlink, since writing through it would land outside dir.
func checkParents(dir, target string) error {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Dir(target))
	if err != nil || rel == "." {
		return err
	}

	cur := filepath.Clean(dir)
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("invalid file path in archive: %s passes through symlink %s", target, cur)
		}
	}
	return nil
}

// checkLinkTarget accepts relative symlinks that resolve inside dir.
func checkLinkTarget(dir, target, linkname string) error {
	if linkname == "" || filepath.IsAbs(linkname) {
		return fmt.Errorf("invalid symlink target %q in archive", linkname)
	}
	if !within(dir, filepath.Join(filepath.Dir(target), linkname)) {
		return fmt.Errorf("invalid symlink target %q in archive", linkname)
	}
	return nil
}

// mkdirAll creates path and re-checks that no component became a symlink
// between the walk and the creation.
func mkdirAll(dir, path string, mode fs.FileMode) error {
	if err := os.MkdirAll(path, mode); err != nil {
		return err
	}
	return checkParents(dir, filepath.Join(path, "x"))
}
