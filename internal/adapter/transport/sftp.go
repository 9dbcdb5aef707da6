package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/semmidev/wpfleet/internal/config"
	"github.com/semmidev/wpfleet/internal/domain"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
}

// SFTPTransport pushes a local backup tree to another host over SSH.
type SFTPTransport struct {
	config *config.MigrationConfig
	logger Logger
}

func NewSFTP(cfg *config.MigrationConfig, logger Logger) *SFTPTransport {
	return &SFTPTransport{config: cfg, logger: logger}
}

func (t *SFTPTransport) clientConfig() (*ssh.ClientConfig, error) {
	callback, err := HostKeyCallback(t.config.KnownHosts, t.config.TrustOnFirstUse, t.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure host key verification: %w", err)
	}

	cfg := &ssh.ClientConfig{
		User:            t.config.User,
		HostKeyCallback: callback,
		Timeout:         t.config.Timeout,
	}

	switch {
	case t.config.KeyPath != "":
		keyData, err := os.ReadFile(t.config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key: %w", err)
		}
		cfg.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	case t.config.Password != "":
		cfg.Auth = []ssh.AuthMethod{ssh.Password(t.config.Password)}
	default:
		return nil, fmt.Errorf("no authentication method provided for SFTP")
	}

	return cfg, nil
}

// connect dials, completes the SSH handshake and asks the server for its
// working directory. Any failure here means the host is unreachable.
func (t *SFTPTransport) connect(ctx context.Context, host string, port int) (*ssh.Client, *sftp.Client, error) {
	cfg, err := t.clientConfig()
	if err != nil {
		return nil, nil, err
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := net.Dialer{Timeout: t.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", domain.ErrUnreachable, addr, err)
	}

	if t.config.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(t.config.Timeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("%w: %s: %w", domain.ErrUnreachable, addr, err)
	}
	conn.SetDeadline(time.Time{})
	sshClient := ssh.NewClient(c, chans, reqs)

	sftpClient, err := sftp.NewClient(sshClient,
		sftp.UseConcurrentWrites(true),
		sftp.MaxConcurrentRequestsPerFile(64),
	)
	if err != nil {
		sshClient.Close()
		return nil, nil, fmt.Errorf("%w: %s: %w", domain.ErrUnreachable, addr, err)
	}

	if _, err := sftpClient.Getwd(); err != nil {
		sftpClient.Close()
		sshClient.Close()
		return nil, nil, fmt.Errorf("%w: %s: %w", domain.ErrUnreachable, addr, err)
	}

	return sshClient, sftpClient, nil
}

func (t *SFTPTransport) Check(ctx context.Context, host string, port int) error {
	sshClient, sftpClient, err := t.connect(ctx, host, port)
	if err != nil {
		return err
	}
	sftpClient.Close()
	sshClient.Close()
	return nil
}

// Push copies every file under localRoot to remotePath on host, keeping
// relative paths. Nothing on the remote side is deleted.
func (t *SFTPTransport) Push(ctx context.Context, localRoot, host string, port int, remotePath string) (*domain.TransferResult, error) {
	if _, err := os.Stat(localRoot); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransferFailed, err)
	}

	sshClient, sftpClient, err := t.connect(ctx, host, port)
	if err != nil {
		return nil, err
	}
	defer sshClient.Close()
	defer sftpClient.Close()

	// Closing the connection unblocks an in-flight write on cancellation.
	stop := context.AfterFunc(ctx, func() { sshClient.Close() })
	defer stop()

	t.logger.Infof("Pushing %s to %s:%s", localRoot, host, remotePath)
	result, err := upload(ctx, sftpClient, localRoot, remotePath)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return result, fmt.Errorf("%w: %w", domain.ErrTransferFailed, err)
	}

	t.logger.Infof("Pushed %d file(s), %d bytes to %s", result.Files, result.Bytes, host)
	return result, nil
}

func upload(ctx context.Context, client *sftp.Client, localRoot, remotePath string) (*domain.TransferResult, error) {
	result := &domain.TransferResult{}

	if err := client.MkdirAll(remotePath); err != nil {
		return result, fmt.Errorf("failed to create remote directory %s: %w", remotePath, err)
	}

	err := filepath.WalkDir(localRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(localRoot, p)
		if err != nil {
			return err
		}
		dst := path.Join(remotePath, filepath.ToSlash(rel))

		if d.IsDir() {
			if err := client.MkdirAll(dst); err != nil {
				return fmt.Errorf("failed to create remote directory %s: %w", dst, err)
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		n, err := uploadFile(client, p, dst)
		if err != nil {
			return err
		}
		result.Files++
		result.Bytes += n
		return nil
	})

	return result, err
}

// uploadFile writes to a temporary name and renames it, so a partial
// transfer never appears under the final name.
func uploadFile(client *sftp.Client, src, dst string) (int64, error) {
	local, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer local.Close()

	tmp := dst + ".part"
	remote, err := client.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("failed to create remote file %s: %w", tmp, err)
	}

	n, err := io.Copy(remote, local)
	if closeErr := remote.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		client.Remove(tmp)
		return n, fmt.Errorf("failed to write remote file %s: %w", dst, err)
	}

	if err := client.PosixRename(tmp, dst); err != nil {
		var statusErr *sftp.StatusError
		if !errors.As(err, &statusErr) {
			client.Remove(tmp)
			return n, fmt.Errorf("failed to rename remote file %s: %w", dst, err)
		}
		// Servers without the posix-rename extension refuse to overwrite.
		client.Remove(dst)
		if err := client.Rename(tmp, dst); err != nil {
			client.Remove(tmp)
			return n, fmt.Errorf("failed to rename remote file %s: %w", dst, err)
		}
	}

	return n, nil
}
