package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/semmidev/wpfleet/internal/config"
)

type S3Storage struct {
	client     *s3.Client
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
	bucket     string
	root       string
}

// NewS3 creates a new S3Storage instance using AWS SDK v2. Static keys are
// used when configured, otherwise the default credential chain applies. A
// custom endpoint switches to path-style addressing for S3-compatible
// services.
func NewS3(ctx context.Context, cfg *appconfig.RemoteConfig) (*S3Storage, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client:     client,
		uploader:   s3manager.NewUploader(client),
		downloader: s3manager.NewDownloader(client),
		bucket:     cfg.Bucket,
		root:       strings.Trim(cfg.Root, "/"),
	}, nil
}

func (s *S3Storage) Type() string {
	return "s3"
}

func (s *S3Storage) key(prefix, name string) string {
	return path.Join(s.root, prefix, name)
}

func (s *S3Storage) Upload(ctx context.Context, localPath, prefix, name string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(prefix, name)),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	return nil
}

func (s *S3Storage) Download(ctx context.Context, prefix, name, destPath string) error {
	tmp, err := os.CreateTemp(filepath.Dir(destPath), "."+filepath.Base(destPath)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = s.downloader.Download(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(prefix, name)),
	})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to download from S3: %w", err)
	}

	return os.Rename(tmp.Name(), destPath)
}

// List returns object names directly under prefix, sorted.
func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	dir := s.key(prefix, "") + "/"

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(dir),
	})

	var files []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list S3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), dir)
			if name != "" && !strings.Contains(name, "/") {
				files = append(files, name)
			}
		}
	}
	sort.Strings(files)

	return files, nil
}

// Copy duplicates an object server side. An existing destination is replaced.
func (s *S3Storage) Copy(ctx context.Context, prefix, src, dst string) error {
	source := s.bucket + "/" + s.key(prefix, src)

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(s.key(prefix, dst)),
		CopySource: aws.String(url.PathEscape(source)),
	})
	if err != nil {
		return fmt.Errorf("failed to copy S3 object: %w", err)
	}

	return nil
}

func (s *S3Storage) Delete(ctx context.Context, prefix, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(prefix, name)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	return nil
}
