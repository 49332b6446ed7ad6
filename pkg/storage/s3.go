// Package storage keeps the raw tender document blobs in S3-compatible
// object storage. The relational store keeps only metadata and extracted
// text; the original bytes live here.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Uploader is the slice of the transfer manager used for writes.
type Uploader interface {
	Upload(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Downloader is the slice of the transfer manager used for reads.
type Downloader interface {
	Download(ctx context.Context, w io.WriterAt, params *s3.GetObjectInput, optFns ...func(*manager.Downloader)) (int64, error)
}

// S3API covers the direct client calls the store makes.
type S3API interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Config holds the object store settings.
type Config struct {
	Region string
	Bucket string
	// Endpoint overrides the AWS endpoint, for MinIO/LocalStack setups.
	Endpoint string
	// Prefix is prepended to every key.
	Prefix string
}

// S3Store stores document blobs under {prefix}/{key}.
type S3Store struct {
	client     S3API
	uploader   Uploader
	downloader Downloader
	cfg        Config
}

// NewS3Store creates the store. Credentials come from the default AWS chain;
// a custom endpoint switches to path-style addressing.
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		cfg:        cfg,
	}, nil
}

// NewS3StoreFromParts builds a store over injected API slices, for tests.
func NewS3StoreFromParts(client S3API, uploader Uploader, downloader Downloader, cfg Config) *S3Store {
	return &S3Store{client: client, uploader: uploader, downloader: downloader, cfg: cfg}
}

func (s *S3Store) key(key string) string {
	return path.Join(s.cfg.Prefix, key)
}

// Put uploads one blob and returns its full object key.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	fullKey := s.key(key)

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(fullKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", fullKey, err)
	}
	return fullKey, nil
}

// Get downloads one blob.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	fullKey := s.key(key)
	buf := manager.NewWriteAtBuffer(nil)

	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fullKey, err)
	}
	return buf.Bytes(), nil
}

// Exists reports whether the blob is present.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		// Best effort: callers re-upload on a miss.
		return false, nil
	}
	return true, nil
}

// Delete removes one blob. Deleting an absent key is not an error.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", s.key(key), err)
	}
	return nil
}
