// Package s3store is the object-store adapter (spec.md §6) backed by
// Amazon S3 or an S3-compatible service. Adapted from the teacher's
// storage/persistence-s3.go S3Storage: same lazy-open-on-first-use
// client construction, same optional custom endpoint/path-style support
// for MinIO-alikes, retargeted from the teacher's shard/column blob
// layout to the plain bucket/key get-put-list surface
// objectstore.ObjectStore needs.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/timmylev/dataclient-go/objectstore"
)

// Config carries the credentials and endpoint overrides a deployment
// needs to reach its bucket(s). Region/AccessKeyID/SecretAccessKey empty
// means "use the default AWS credential chain".
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Endpoint        string
	ForcePathStyle  bool
}

// Store is an objectstore.ObjectStore backed by a single lazily-opened
// S3 client, shared across every bucket it's asked to address (bucket is
// a per-call parameter, not baked into the client).
type Store struct {
	cfg Config

	mu     sync.Mutex
	client *s3.Client
	opened bool
	openErr error
}

func New(cfg Config) *Store {
	return &Store{cfg: cfg}
}

func (s *Store) ensureOpen(ctx context.Context) (*s3.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return s.client, s.openErr
	}
	s.opened = true

	var opts []func(*config.LoadOptions) error
	if s.cfg.Region != "" {
		opts = append(opts, config.WithRegion(s.cfg.Region))
	}
	if s.cfg.AccessKeyID != "" && s.cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		s.openErr = fmt.Errorf("s3store: loading aws config: %w", err)
		return nil, s.openErr
	}

	var s3Opts []func(*s3.Options)
	if s.cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(s.cfg.Endpoint)
		})
	}
	if s.cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	s.client = s3.NewFromConfig(awsCfg, s3Opts...)
	return s.client, nil
}

// transientErr wraps an S3 error that looks like a transport hiccup
// rather than a recognized service exception, so the file cache's retry
// wrapper (cache.classifyFetchErr) knows to retry it.
type transientErr struct{ err error }

func (t *transientErr) Error() string  { return t.err.Error() }
func (t *transientErr) Unwrap() error  { return t.err }
func (t *transientErr) Transient() bool { return true }

var _ objectstore.Transient = (*transientErr)(nil)

func classify(err error) error {
	if err == nil {
		return nil
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return objectstore.ErrNoSuchKey
	}
	var apiErr interface {
		ErrorCode() string
	}
	if errors.As(err, &apiErr) {
		// a recognized S3 API error (AccessDenied, NoSuchBucket, ...) is a
		// domain error, not a transient transport failure.
		return err
	}
	return &transientErr{err: err}
}

func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	client, err := s.ensureOpen(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, classify(err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, classify(err)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, bucket, key string, data []byte) error {
	client, err := s.ensureOpen(ctx)
	if err != nil {
		return err
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	client, err := s.ensureOpen(ctx)
	if err != nil {
		return nil, err
	}
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (s *Store) ListPrefixes(ctx context.Context, bucket, parent, delimiter string) ([]string, error) {
	client, err := s.ensureOpen(ctx)
	if err != nil {
		return nil, err
	}
	if delimiter == "" {
		delimiter = "/"
	}
	var prefixes []string
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(parent),
		Delimiter: aws.String(delimiter),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(err)
		}
		for _, cp := range page.CommonPrefixes {
			prefixes = append(prefixes, aws.ToString(cp.Prefix))
		}
	}
	return prefixes, nil
}

var _ objectstore.ObjectStore = (*Store)(nil)
