package storage

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	appconfig "github.com/semmidev/wpfleet/internal/config"
)

type MinioStorage struct {
	client *minio.Client
	bucket string
	root   string
}

// NewMinio connects to an S3-compatible endpoint and checks that the bucket
// exists before any artifact is written.
func NewMinio(ctx context.Context, cfg *appconfig.RemoteConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", cfg.Bucket)
	}

	return &MinioStorage{
		client: client,
		bucket: cfg.Bucket,
		root:   strings.Trim(cfg.Root, "/"),
	}, nil
}

func (m *MinioStorage) Type() string {
	return "minio"
}

func (m *MinioStorage) key(prefix, name string) string {
	return path.Join(m.root, prefix, name)
}

func (m *MinioStorage) Upload(ctx context.Context, localPath, prefix, name string) error {
	_, err := m.client.FPutObject(ctx, m.bucket, m.key(prefix, name), localPath, minio.PutObjectOptions{
		ContentType: "application/gzip",
	})
	if err != nil {
		return fmt.Errorf("failed to upload to Minio: %w", err)
	}
	return nil
}

// Download relies on FGetObject, which writes to a temporary file and
// renames it once the object is complete.
func (m *MinioStorage) Download(ctx context.Context, prefix, name, destPath string) error {
	if err := m.client.FGetObject(ctx, m.bucket, m.key(prefix, name), destPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to download from Minio: %w", err)
	}
	return nil
}

func (m *MinioStorage) List(ctx context.Context, prefix string) ([]string, error) {
	dir := m.key(prefix, "") + "/"

	var files []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: dir}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("error listing object: %w", obj.Err)
		}
		name := strings.TrimPrefix(obj.Key, dir)
		if name != "" && !strings.HasSuffix(name, "/") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	return files, nil
}

func (m *MinioStorage) Copy(ctx context.Context, prefix, src, dst string) error {
	_, err := m.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: m.bucket, Object: m.key(prefix, dst)},
		minio.CopySrcOptions{Bucket: m.bucket, Object: m.key(prefix, src)},
	)
	if err != nil {
		return fmt.Errorf("failed to copy Minio object: %w", err)
	}
	return nil
}

func (m *MinioStorage) Delete(ctx context.Context, prefix, name string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, m.key(prefix, name), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete from Minio: %w", err)
	}
	return nil
}
