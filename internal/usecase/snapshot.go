package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/semmidev/wpfleet/internal/domain"
)

// SnapshotWriter produces the database dump and the file archive of one
// site. Both are written under temporary names and renamed into place only
// when both succeeded.
type SnapshotWriter struct {
	dumper     domain.DatabaseDumper
	archiver   domain.Archiver
	compressor domain.Compressor
	logger     Logger
}

func NewSnapshotWriter(
	dumper domain.DatabaseDumper,
	archiver domain.Archiver,
	compressor domain.Compressor,
	logger Logger,
) *SnapshotWriter {
	return &SnapshotWriter{
		dumper:     dumper,
		archiver:   archiver,
		compressor: compressor,
		logger:     logger,
	}
}

// Write creates both artifacts of site in dir. On failure nothing is left
// in dir and the error wraps ErrDumpFailed or ErrArchiveFailed, whichever
// half failed first.
func (w *SnapshotWriter) Write(ctx context.Context, site domain.Site, class domain.BackupClass, at time.Time, dir string) (domain.BackupSet, error) {
	set := domain.NewBackupSet(site.Domain, class, at)
	dbPath := filepath.Join(dir, set.Database.Name())
	filesPath := filepath.Join(dir, set.Files.Name())

	// The first half to fail cancels the other; its error is the one reported.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.dump(gctx, site, dbPath+".part"); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrDumpFailed, err)
		}
		return nil
	})
	g.Go(func() error {
		if err := w.archive(gctx, site, filesPath+".part"); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrArchiveFailed, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		os.Remove(dbPath + ".part")
		os.Remove(filesPath + ".part")
		return set, err
	}

	if err := os.Rename(dbPath+".part", dbPath); err != nil {
		os.Remove(dbPath + ".part")
		os.Remove(filesPath + ".part")
		return set, fmt.Errorf("%w: %w", domain.ErrDumpFailed, err)
	}
	if err := os.Rename(filesPath+".part", filesPath); err != nil {
		os.Remove(dbPath)
		os.Remove(filesPath + ".part")
		return set, fmt.Errorf("%w: %w", domain.ErrArchiveFailed, err)
	}

	return set, nil
}

func (w *SnapshotWriter) dump(ctx context.Context, site domain.Site, path string) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create dump file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	zw, err := w.compressor.NewWriter(f)
	if err != nil {
		return err
	}

	if err := w.dumper.Dump(ctx, site.Database, zw); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish dump: %w", err)
	}

	if info, statErr := f.Stat(); statErr == nil {
		w.logger.Infof("[%s] Database dump complete, size: %.2f MB", site.Domain, float64(info.Size())/(1024*1024))
	}
	return nil
}

func (w *SnapshotWriter) archive(ctx context.Context, site domain.Site, path string) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = closeErr
		}
	}()

	if err := w.archiver.Archive(ctx, site.RootPath, f); err != nil {
		return err
	}

	if info, statErr := f.Stat(); statErr == nil {
		w.logger.Infof("[%s] File archive complete, size: %.2f MB", site.Domain, float64(info.Size())/(1024*1024))
	}
	return nil
}
