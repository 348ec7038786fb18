// Package storage adapts S3 to the blob store used by the pipelines.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/media-pipelines/media-pipelines-go/internal/retry"
	"github.com/media-pipelines/media-pipelines-go/pkg/logger"
)

// S3API is the subset of the S3 client the store needs.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	s3.ListObjectsV2APIClient
}

// Object is one blob to upload.
type Object struct {
	Bucket      string
	Key         string
	Data        []byte
	ContentType string
	Tags        map[string]string
}

// BlobStore is what the pipelines need from object storage.
type BlobStore interface {
	Upload(ctx context.Context, obj Object) error
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	ListKeys(ctx context.Context, bucket, prefix string) iter.Seq2[string, error]
}

// S3Store implements BlobStore over S3. Uploads overwrite: the last write
// for a key wins.
type S3Store struct {
	client  S3API
	invoker *retry.Invoker
	acl     types.ObjectCannedACL
}

// S3Option customises an S3Store.
type S3Option func(*S3Store)

// WithACL sets a canned ACL on every upload. Buckets with object ownership
// enforced reject ACLs, so none is sent by default.
func WithACL(acl types.ObjectCannedACL) S3Option {
	return func(s *S3Store) {
		s.acl = acl
	}
}

// NewS3Store creates a store.
func NewS3Store(client S3API, invoker *retry.Invoker, opts ...S3Option) *S3Store {
	s := &S3Store{
		client:  client,
		invoker: invoker,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload writes obj.Data at obj.Bucket/obj.Key with the tags as user metadata.
func (s *S3Store) Upload(ctx context.Context, obj Object) error {
	err := s.invoker.Run(ctx, "s3.PutObject", func(ctx context.Context) error {
		input := &s3.PutObjectInput{
			Bucket:        aws.String(obj.Bucket),
			Key:           aws.String(obj.Key),
			Body:          bytes.NewReader(obj.Data),
			ContentLength: aws.Int64(int64(len(obj.Data))),
			Metadata:      obj.Tags,
		}
		if obj.ContentType != "" {
			input.ContentType = aws.String(obj.ContentType)
		}
		if s.acl != "" {
			input.ACL = s.acl
		}
		_, err := s.client.PutObject(ctx, input)
		return err
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", obj.Bucket, obj.Key, err)
	}

	logger.Log.Debug("Uploaded object",
		zap.String("bucket", obj.Bucket),
		zap.String("key", obj.Key),
		zap.Int("bytes", len(obj.Data)),
	)
	return nil
}

// Download reads a whole object into memory.
func (s *S3Store) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	data, err := retry.Do(ctx, s.invoker, "s3.GetObject", func(ctx context.Context) ([]byte, error) {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, err
		}
		defer out.Body.Close()

		body, err := io.ReadAll(out.Body)
		if err != nil {
			return nil, &retry.TransientError{Op: "s3 read body", Err: err}
		}
		return body, nil
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("download s3://%s/%s: %w", bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// ListKeys lazily yields every key under prefix. Pages are fetched on demand;
// a page error is yielded once and ends the sequence.
func (s *S3Store) ListKeys(ctx context.Context, bucket, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(bucket),
			Prefix: aws.String(prefix),
		})

		for paginator.HasMorePages() {
			page, err := retry.Do(ctx, s.invoker, "s3.ListObjectsV2", func(ctx context.Context) (*s3.ListObjectsV2Output, error) {
				return paginator.NextPage(ctx)
			})
			if err != nil {
				yield("", fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err))
				return
			}

			for _, obj := range page.Contents {
				if !yield(aws.ToString(obj.Key), nil) {
					return
				}
			}
		}
	}
}

// Health checks that the bucket is reachable.
func (s *S3Store) Health(ctx context.Context, bucket string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		return fmt.Errorf("head bucket %s: %w", bucket, err)
	}
	return nil
}
