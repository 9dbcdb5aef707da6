package fsutil

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"
)

const (
	DirMode    fs.FileMode = 0755
	FileMode   fs.FileMode = 0644
	MarkerMode fs.FileMode = 0600
)

// Identity is a numeric owner and group.
type Identity struct {
	UID int
	GID int
}

// OwnerOf returns the owner of an existing path. ok is false when the path
// does not exist.
func OwnerOf(path string) (id Identity, ok bool, err error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return Identity{}, false, nil
	}
	if err != nil {
		return Identity{}, false, err
	}

	st, isUnix := info.Sys().(*syscall.Stat_t)
	if !isUnix {
		return Identity{}, false, fmt.Errorf("ownership of %s is not available", path)
	}
	return Identity{UID: int(st.Uid), GID: int(st.Gid)}, true, nil
}

// LookupIdentity resolves user and group names to numeric ids.
func LookupIdentity(owner, group string) (Identity, error) {
	u, err := user.Lookup(owner)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to look up user %s: %w", owner, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid uid %q for %s", u.Uid, owner)
	}

	gidStr := u.Gid
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			return Identity{}, fmt.Errorf("failed to look up group %s: %w", group, err)
		}
		gidStr = g.Gid
	}
	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid gid %q for %s", gidStr, group)
	}

	return Identity{UID: uid, GID: gid}, nil
}

// Reconcile chowns everything under root to id and normalizes modes:
// directories DirMode, files FileMode and files named marker MarkerMode.
// Symlinks are chowned but never followed.
func Reconcile(ctx context.Context, root string, id Identity, marker string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := os.Lchown(p, id.UID, id.GID); err != nil {
			return fmt.Errorf("failed to chown %s: %w", p, err)
		}

		var mode fs.FileMode
		switch {
		case d.IsDir():
			mode = DirMode
		case d.Type().IsRegular() && d.Name() == marker:
			mode = MarkerMode
		case d.Type().IsRegular():
			mode = FileMode
		default:
			return nil
		}

		if err := os.Chmod(p, mode); err != nil {
			return fmt.Errorf("failed to chmod %s: %w", p, err)
		}
		return nil
	})
}
