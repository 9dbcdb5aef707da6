package domain

import (
	"context"
	"io"
)

// DatabaseDumper streams a logical SQL dump of one database to w.
type DatabaseDumper interface {
	Dump(ctx context.Context, creds Credentials, w io.Writer) error
}

// DatabaseProvisioner recreates a site's database on the restore target.
type DatabaseProvisioner interface {
	EnsureDatabase(ctx context.Context, name string) error
	// EnsureUser creates the user if missing, resets its password and grants
	// privileges on creds.Name only.
	EnsureUser(ctx context.Context, creds Credentials) error
	Import(ctx context.Context, name string, r io.Reader) error
}

// Archiver packs a directory tree into a compressed stream whose top level
// entry is the directory's own name, and unpacks it again.
type Archiver interface {
	Archive(ctx context.Context, srcDir string, w io.Writer) error
	Extract(ctx context.Context, r io.Reader, destDir string) error
}

type Compressor interface {
	NewWriter(w io.Writer) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// Storage is a path-addressable remote store. Every site owns one prefix.
type Storage interface {
	Upload(ctx context.Context, localPath, prefix, name string) error
	Download(ctx context.Context, prefix, name, destPath string) error
	List(ctx context.Context, prefix string) ([]string, error)
	// Copy duplicates src onto dst within the prefix, overwriting dst.
	Copy(ctx context.Context, prefix, src, dst string) error
	Delete(ctx context.Context, prefix, name string) error
	Type() string
}

type TransferResult struct {
	Files int
	Bytes int64
}

// Transport pushes a local backup tree to another host. Check connects and
// disconnects without transferring anything.
type Transport interface {
	Check(ctx context.Context, host string, port int) error
	Push(ctx context.Context, localRoot, host string, port int, remotePath string) (*TransferResult, error)
}

type Notifier interface {
	Notify(ctx context.Context, message string) error
}
