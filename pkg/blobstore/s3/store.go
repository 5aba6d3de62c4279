// Package s3 provides the remote blob backend stored in an S3 compatible
// object store. Objects are grouped into containers (top level key
// prefixes) by a blobstore.Sharder.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/blobgc/internal/logger"
	"github.com/marmos91/blobgc/pkg/blobstore"
	"github.com/marmos91/blobgc/pkg/loop"
	"github.com/marmos91/blobgc/pkg/metrics"
)

// Config holds configuration for the S3 blob backend.
type Config struct {
	// Bucket is the S3 bucket name.
	Bucket string

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services).
	Endpoint string

	// AccessKeyID and SecretAccessKey are optional static credentials. When
	// empty the SDK default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle forces path-style addressing (required for Localstack/MinIO).
	ForcePathStyle bool

	// Sharder maps content ids to containers and keys. Required.
	Sharder blobstore.Sharder

	// Name overrides the backend name. Defaults to "remote".
	Name string
}

// Store is the S3 implementation of blobstore.Backend.
type Store struct {
	client  *s3.Client
	bucket  string
	sharder blobstore.Sharder
	name    string
	metrics metrics.BackendMetrics

	mu     sync.RWMutex
	closed bool
}

var _ blobstore.Backend = (*Store)(nil)

// New creates an S3 backend with an existing client. m may be nil.
func New(client *s3.Client, cfg Config, m metrics.BackendMetrics) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if cfg.Sharder == nil {
		return nil, errors.New("sharder is required")
	}
	name := cfg.Name
	if name == "" {
		name = "remote"
	}
	return &Store{
		client:  client,
		bucket:  cfg.Bucket,
		sharder: cfg.Sharder,
		name:    name,
		metrics: m,
	}, nil
}

// NewFromConfig creates an S3 backend, building the client from cfg.
func NewFromConfig(ctx context.Context, cfg Config, m metrics.BackendMetrics) (*Store, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(client, cfg, m)
}

// NewClient builds an S3 client from cfg.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// Name implements blobstore.Backend.
func (s *Store) Name() string { return s.name }

// Bucket returns the bucket name.
func (s *Store) Bucket() string { return s.bucket }

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return blobstore.ErrStoreClosed
	}
	return nil
}

// observe records an operation and classifies its error. Retryable errors
// are marked transient so the chunk loop can retry them.
func (s *Store) observe(op, key string, start time.Time, err error) error {
	metrics.ObserveOperation(s.metrics, s.name, op, time.Since(start), err)
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("s3 %s %s: %w", op, key, err)
	if isRetryableError(err) {
		return loop.Transient(wrapped)
	}
	return wrapped
}

// Exists implements blobstore.Backend.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	key := s.sharder.Key(id)

	start := time.Now()
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFoundError(err) {
		metrics.ObserveOperation(s.metrics, s.name, "HeadObject", time.Since(start), nil)
		return false, nil
	}
	if err := s.observe("HeadObject", key, start, err); err != nil {
		return false, err
	}
	return true, nil
}

// Open implements blobstore.Backend.
func (s *Store) Open(ctx context.Context, id int64) (io.ReadCloser, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	key := s.sharder.Key(id)

	start := time.Now()
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if isNotFoundError(err) {
		metrics.ObserveOperation(s.metrics, s.name, "GetObject", time.Since(start), nil)
		return nil, blobstore.ErrNotFound
	}
	if err := s.observe("GetObject", key, start, err); err != nil {
		return nil, err
	}
	return &countingReader{ReadCloser: resp.Body, store: s}, nil
}

// Delete implements blobstore.Backend. S3 deletes succeed for absent keys,
// so presence is checked first to report ErrNotFound.
func (s *Store) Delete(ctx context.Context, id int64) error {
	ok, err := s.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return blobstore.ErrNotFound
	}

	key := s.sharder.Key(id)
	start := time.Now()
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err := s.observe("DeleteObject", key, start, err); err != nil {
		return err
	}

	logger.DebugCtx(ctx, "deleted remote blob", logger.Backend(s.name),
		logger.KeyBucket, s.bucket, logger.KeyKey, key)
	return nil
}

// HealthCheck verifies the S3 bucket is accessible.
// Performs a HeadBucket call to check connectivity and permissions.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	start := time.Now()
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err := s.observe("HeadBucket", s.bucket, start, err); err != nil {
		return fmt.Errorf("S3 health check failed: %w", err)
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// countingReader records bytes read from a GetObject body.
type countingReader struct {
	io.ReadCloser
	store *Store
	n     int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.n += int64(n)
	return n, err
}

func (r *countingReader) Close() error {
	metrics.RecordBytes(r.store.metrics, r.store.name, "GetObject", r.n)
	return r.ReadCloser.Close()
}
