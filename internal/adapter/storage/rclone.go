package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	appconfig "github.com/semmidev/wpfleet/internal/config"
	"github.com/semmidev/wpfleet/internal/infrastructure/execx"
)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// RcloneStorage drives the rclone CLI against a configured remote, which
// lets any rclone backend hold the artifacts.
type RcloneStorage struct {
	binary string
	remote string
	root   string
	run    Runner
}

func NewRclone(cfg *appconfig.RemoteConfig) *RcloneStorage {
	return NewRcloneWithRunner(cfg, execx.Run)
}

func NewRcloneWithRunner(cfg *appconfig.RemoteConfig, run Runner) *RcloneStorage {
	binary := cfg.RcloneBinary
	if binary == "" {
		binary = "rclone"
	}
	return &RcloneStorage{
		binary: binary,
		remote: strings.TrimSuffix(cfg.RcloneRemote, ":"),
		root:   strings.Trim(cfg.Root, "/"),
		run:    run,
	}
}

func (r *RcloneStorage) Type() string {
	return "rclone"
}

// target renders remote:root/prefix/name.
func (r *RcloneStorage) target(prefix, name string) string {
	return r.remote + ":" + path.Join(r.root, prefix, name)
}

func (r *RcloneStorage) Upload(ctx context.Context, localPath, prefix, name string) error {
	if _, err := os.Stat(localPath); err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	if _, err := r.run(ctx, r.binary, "copyto", localPath, r.target(prefix, name)); err != nil {
		return fmt.Errorf("failed to upload via rclone: %w", err)
	}
	return nil
}

func (r *RcloneStorage) Download(ctx context.Context, prefix, name, destPath string) error {
	tmp := filepath.Join(filepath.Dir(destPath), "."+filepath.Base(destPath)+".part")
	defer os.Remove(tmp)

	if _, err := r.run(ctx, r.binary, "copyto", r.target(prefix, name), tmp); err != nil {
		return fmt.Errorf("failed to download via rclone: %w", err)
	}
	if err := os.Rename(tmp, destPath); err != nil {
		return fmt.Errorf("failed to move download into place: %w", err)
	}
	return nil
}

func (r *RcloneStorage) List(ctx context.Context, prefix string) ([]string, error) {
	out, err := r.run(ctx, r.binary, "lsf", "--files-only", r.target(prefix, ""))
	if err != nil {
		// rclone reports a missing directory as an error; for us it is an
		// empty prefix.
		if strings.Contains(strings.ToLower(string(out)), "directory not found") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list via rclone: %w", err)
	}

	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	return files, nil
}

func (r *RcloneStorage) Copy(ctx context.Context, prefix, src, dst string) error {
	if _, err := r.run(ctx, r.binary, "copyto", r.target(prefix, src), r.target(prefix, dst)); err != nil {
		return fmt.Errorf("failed to copy via rclone: %w", err)
	}
	return nil
}

func (r *RcloneStorage) Delete(ctx context.Context, prefix, name string) error {
	if _, err := r.run(ctx, r.binary, "deletefile", r.target(prefix, name)); err != nil {
		return fmt.Errorf("failed to delete via rclone: %w", err)
	}
	return nil
}
