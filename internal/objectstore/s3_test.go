package objectstore

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/profilestore/internal/xerrors"
)

type fakeS3Client struct {
	getCalls int
	getErrs  []error // dequeued in order, nil entries succeed
	getBody  []byte

	putCalls int
	putErr   error

	listOut []types.Object
	listErr error
}

func (f *fakeS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	var err error
	if f.getCalls < len(f.getErrs) {
		err = f.getErrs[f.getCalls]
	}
	f.getCalls++
	if err != nil {
		return nil, err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(f.getBody))}, nil
}

func (f *fakeS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putCalls++
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &s3.ListObjectsV2Output{Contents: f.listOut}, nil
}

func TestS3GetReturnsBody(t *testing.T) {
	fake := &fakeS3Client{getBody: []byte("hello")}
	store := &S3{Client: fake, Bucket: "b"}

	got, err := store.Get(t.Context(), "k")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
	require.Equal(t, 1, fake.getCalls)
}

func TestS3GetNoSuchKeyIsNotFoundWithoutRetry(t *testing.T) {
	fake := &fakeS3Client{getErrs: []error{&types.NoSuchKey{}}}
	store := &S3{Client: fake, Bucket: "b"}

	_, err := store.Get(t.Context(), "missing")
	require.True(t, xerrors.Is(err, xerrors.NotFound))
	require.Equal(t, 1, fake.getCalls)
}

func TestS3GetRetriesTransientFailureThenSucceeds(t *testing.T) {
	fake := &fakeS3Client{
		getErrs: []error{assertErr("boom")},
		getBody: []byte("payload"),
	}
	store := &S3{Client: fake, Bucket: "b"}

	got, err := store.Get(t.Context(), "k")
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)
	require.Equal(t, 2, fake.getCalls)
}

func TestS3PutWritesBody(t *testing.T) {
	fake := &fakeS3Client{}
	store := &S3{Client: fake, Bucket: "b"}

	err := store.Put(t.Context(), "k", []byte("v"))
	require.NoError(t, err)
	require.Equal(t, 1, fake.putCalls)
}

func TestS3ListSortsKeys(t *testing.T) {
	fake := &fakeS3Client{listOut: []types.Object{
		{Key: aws.String("b")},
		{Key: aws.String("a")},
	}}
	store := &S3{Client: fake, Bucket: "bucket"}

	keys, err := store.List(t.Context(), "")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, keys)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
