package usecase

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/semmidev/wpfleet/internal/domain"
)

// RemoteSync moves artifacts between local directories and one storage
// backend. Prefixes are site domains.
type RemoteSync struct {
	storage domain.Storage
	logger  Logger
}

func NewRemoteSync(storage domain.Storage, logger Logger) *RemoteSync {
	return &RemoteSync{storage: storage, logger: logger}
}

func (s *RemoteSync) Type() string {
	return s.storage.Type()
}

// UploadDir uploads every regular file in localDir under prefix, in name
// order. It returns the names that made it; on error the slice holds the
// ones uploaded before the failure.
func (s *RemoteSync) UploadDir(ctx context.Context, localDir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
	}

	var uploaded []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return uploaded, fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
		}

		name := entry.Name()
		if err := s.storage.Upload(ctx, filepath.Join(localDir, name), prefix, name); err != nil {
			return uploaded, fmt.Errorf("%w: %s: %w", domain.ErrUploadFailed, name, err)
		}
		uploaded = append(uploaded, name)
	}

	return uploaded, nil
}

// List returns the names under prefix matching the glob pattern, sorted.
// An empty pattern matches everything.
func (s *RemoteSync) List(ctx context.Context, prefix, pattern string) ([]string, error) {
	names, err := s.storage.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s on %s: %w", prefix, s.storage.Type(), err)
	}

	var matched []string
	for _, name := range names {
		if pattern != "" {
			ok, err := path.Match(pattern, name)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
			}
			if !ok {
				continue
			}
		}
		matched = append(matched, name)
	}
	sort.Strings(matched)

	return matched, nil
}

// Artifacts lists and parses the artifacts of one site, oldest first.
// Foreign or malformed names are ignored.
func (s *RemoteSync) Artifacts(ctx context.Context, site string) ([]domain.Artifact, error) {
	names, err := s.List(ctx, site, site+"-*")
	if err != nil {
		return nil, err
	}

	var artifacts []domain.Artifact
	for _, name := range names {
		a, err := domain.ParseArtifactName(name)
		if err != nil || a.Domain != site {
			continue
		}
		artifacts = append(artifacts, a)
	}
	domain.SortArtifacts(artifacts)

	return artifacts, nil
}

// Download fetches name into localDir and returns the local path.
func (s *RemoteSync) Download(ctx context.Context, prefix, name, localDir string) (string, error) {
	dest := filepath.Join(localDir, name)
	if err := s.storage.Download(ctx, prefix, name, dest); err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrDownloadFailed, name, err)
	}
	return dest, nil
}

func (s *RemoteSync) Copy(ctx context.Context, prefix, src, dst string) error {
	return s.storage.Copy(ctx, prefix, src, dst)
}

func (s *RemoteSync) Delete(ctx context.Context, prefix, name string) error {
	if err := s.storage.Delete(ctx, prefix, name); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrDeleteFailed, name, err)
	}
	return nil
}
