// Package archive keeps a durable copy of every rendered digest. The
// database remains the serving source; the archive is the artifact
// trail operators browse after the fact.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jsnider89/ai-news-digest/internal/config"
)

// Archiver stores one rendered digest and reports where it landed.
type Archiver interface {
	Store(ctx context.Context, runID string, html []byte, at time.Time) (string, error)
}

// New picks S3 when a bucket is configured, the local directory
// otherwise.
func New(ctx context.Context, cfg config.ArchiveConfig) (Archiver, error) {
	if cfg.S3Bucket != "" {
		return NewS3Archive(ctx, cfg)
	}
	return NewLocalArchive(cfg.LocalDir), nil
}

// objectKey partitions digests by UTC date so listings stay browsable.
func objectKey(runID string, at time.Time) string {
	return fmt.Sprintf("%s/%s.html", at.UTC().Format("2006/01/02"), runID)
}

// LocalArchive writes digests under a data directory.
type LocalArchive struct {
	dir string
}

func NewLocalArchive(dir string) *LocalArchive {
	if dir == "" {
		dir = filepath.Join("data", "digests")
	}
	return &LocalArchive{dir: dir}
}

func (a *LocalArchive) Store(_ context.Context, runID string, html []byte, at time.Time) (string, error) {
	path := filepath.Join(a.dir, filepath.FromSlash(objectKey(runID, at)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return "", fmt.Errorf("write digest archive: %w", err)
	}
	return path, nil
}

// s3API is the slice of the S3 client the archive needs.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive writes digests to a bucket, keyed by date and run id.
type S3Archive struct {
	client s3API
	bucket string
}

func NewS3Archive(ctx context.Context, cfg config.ArchiveConfig) (*S3Archive, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config for archive: %w", err)
	}
	return &S3Archive{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.S3Bucket,
	}, nil
}

func (a *S3Archive) Store(ctx context.Context, runID string, html []byte, at time.Time) (string, error) {
	key := objectKey(runID, at)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(html),
		ContentType: aws.String("text/html; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("putting digest to S3: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}
