package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/coral-mesh/profilestore/internal/retry"
	"github.com/coral-mesh/profilestore/internal/xerrors"
)

var s3Retry = retry.Config{
	MaxRetries:     3,
	InitialBackoff: 50 * time.Millisecond,
	MaxBackoff:     500 * time.Millisecond,
	Jitter:         0.2,
}

// retryTransient retries fn unless it already failed with a NotFound kind,
// which is never transient.
func retryTransient(ctx context.Context, fn func() error) error {
	return retry.Do(ctx, s3Retry, fn, func(err error) bool {
		return !xerrors.Is(err, xerrors.NotFound)
	})
}

// S3Client is the subset of *s3.Client used by S3, to allow test doubles.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 is a Store backed by an S3-compatible bucket.
type S3 struct {
	Client S3Client
	Bucket string
}

// NewS3 loads the default AWS config for region and credentials and returns
// an S3-backed Store for bucket.
func NewS3(ctx context.Context, region, bucket string) (*S3, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.Internal, err, "load AWS config")
	}
	return &S3{Client: s3.NewFromConfig(cfg), Bucket: bucket}, nil
}

// Get implements Store.
func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := retryTransient(ctx, func() error {
		out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var nsk *types.NoSuchKey
			if errors.As(err, &nsk) {
				return xerrors.New(xerrors.NotFound, "object %q not found", key)
			}
			return xerrors.Wrap(xerrors.Internal, err, "get object %q", key)
		}
		defer out.Body.Close() // nolint:errcheck

		body, err := io.ReadAll(out.Body)
		if err != nil {
			return xerrors.Wrap(xerrors.Internal, err, "read object %q body", key)
		}
		data = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Put implements Store.
func (s *S3) Put(ctx context.Context, key string, value []byte) error {
	return retryTransient(ctx, func() error {
		_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(value),
		})
		if err != nil {
			return xerrors.Wrap(xerrors.Internal, err, "put object %q", key)
		}
		return nil
	})
}

// List implements Store.
func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := s.Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.Bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, xerrors.Wrap(xerrors.Internal, err, "list prefix %q", prefix)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		token = out.NextContinuationToken
	}
	sort.Strings(keys)
	return keys, nil
}
