// Package storage reads and writes uploaded medical documents in S3.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

// DefaultMaxObjectBytes caps downloads; larger documents are rejected rather than buffered.
const DefaultMaxObjectBytes int64 = 32 << 20

var (
	ErrEmptyPath      = errors.New("storage: path is required")
	ErrObjectTooLarge = errors.New("storage: object exceeds size limit")
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store addresses objects by an opaque per-user path inside a default bucket. A path of the
// form "s3://bucket/key" targets another bucket explicitly.
type Store struct {
	s3Client S3API
	bucket   string
	maxBytes int64
	logger   *logging.Logger
}

type Option func(*Store)

func WithMaxObjectBytes(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

func NewStore(s3Client S3API, bucket string, logger *logging.Logger, opts ...Option) *Store {
	if s3Client == nil {
		panic("storage: s3 client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{
		s3Client: s3Client,
		bucket:   strings.TrimSpace(bucket),
		maxBytes: DefaultMaxObjectBytes,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Download returns the full object body for path.
func (s *Store) Download(ctx context.Context, path string) ([]byte, error) {
	bucket, key, err := s.resolve(path)
	if err != nil {
		return nil, err
	}

	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: get %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	if out.ContentLength != nil && *out.ContentLength > s.maxBytes {
		return nil, fmt.Errorf("%w: %s/%s is %d bytes", ErrObjectTooLarge, bucket, key, *out.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(out.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("storage: read %s/%s: %w", bucket, key, err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectTooLarge, bucket, key)
	}

	s.logger.Debug("downloaded object", "bucket", bucket, "key", key, "bytes", len(data))
	return data, nil
}

// Upload writes data at path. healthctl stages local documents with it; app clients upload directly.
func (s *Store) Upload(ctx context.Context, path, contentType string, data []byte) error {
	bucket, key, err := s.resolve(path)
	if err != nil {
		return err
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("storage: put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *Store) resolve(path string) (bucket, key string, err error) {
	path = strings.TrimSpace(path)
	if rest, ok := strings.CutPrefix(path, "s3://"); ok {
		bucket, key, _ = strings.Cut(rest, "/")
		if bucket == "" || key == "" {
			return "", "", fmt.Errorf("storage: invalid object url %q", path)
		}
		return bucket, key, nil
	}
	key = strings.TrimLeft(path, "/")
	if key == "" {
		return "", "", ErrEmptyPath
	}
	if s.bucket == "" {
		return "", "", errors.New("storage: default bucket is not configured")
	}
	return s.bucket, key, nil
}
