package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	objects map[string][]byte
	headErr error
	deleted []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{objects: map[string][]byte{}}
}

func (f *fakeBackend) Upload(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*params.Key] = data
	return &manager.UploadOutput{}, nil
}

func (f *fakeBackend) Download(ctx context.Context, w io.WriterAt, params *s3.GetObjectInput, optFns ...func(*manager.Downloader)) (int64, error) {
	data, ok := f.objects[*params.Key]
	if !ok {
		return 0, errors.New("NoSuchKey")
	}
	n, err := w.WriteAt(data, 0)
	return int64(n), err
}

func (f *fakeBackend) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if _, ok := f.objects[*params.Key]; !ok {
		return nil, errors.New("NotFound")
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeBackend) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *params.Key)
	f.deleted = append(f.deleted, *params.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func newTestStore(backend *fakeBackend) *S3Store {
	return NewS3StoreFromParts(backend, backend, backend, Config{
		Bucket: "licitahub-docs",
		Prefix: "documents",
	})
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	store := newTestStore(backend)

	key, err := store.Put(ctx, "abc123.pdf", []byte("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "documents/abc123.pdf", key)

	data, err := store.Get(ctx, "abc123.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)
}

func TestPutRequiresKey(t *testing.T) {
	store := newTestStore(newFakeBackend())
	_, err := store.Put(context.Background(), "", []byte("x"), "text/plain")
	assert.Error(t, err)
}

func TestGetMissingKey(t *testing.T) {
	store := newTestStore(newFakeBackend())
	_, err := store.Get(context.Background(), "nope.pdf")
	assert.Error(t, err)
}

func TestExistsIsBestEffort(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	store := newTestStore(backend)

	ok, err := store.Exists(ctx, "nope.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Put(ctx, "sim.pdf", []byte("x"), "application/pdf")
	require.NoError(t, err)

	ok, err = store.Exists(ctx, "sim.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	backend.headErr = errors.New("aws down")
	ok, err = store.Exists(ctx, "sim.pdf")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	store := newTestStore(backend)

	_, err := store.Put(ctx, "tmp.pdf", []byte("x"), "application/pdf")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "tmp.pdf"))
	assert.Equal(t, []string{"documents/tmp.pdf"}, backend.deleted)
	assert.Empty(t, backend.objects)
}
