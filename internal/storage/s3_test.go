package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockS3Client stores objects keyed by "bucket/key".
type mockS3Client struct {
	objects  map[string][]byte
	getCalls int
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(input.Body)
	m.objects[*input.Bucket+"/"+*input.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.getCalls++
	data, ok := m.objects[*input.Bucket+"/"+*input.Key]
	if !ok {
		return nil, &notFoundError{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

type notFoundError struct{}

func (e *notFoundError) Error() string { return "NoSuchKey: The specified key does not exist." }

func TestStore_DownloadFromDefaultBucket(t *testing.T) {
	mock := newMockS3()
	mock.objects["medical-records/user-1/analitica.pdf"] = []byte("%PDF-1.7")
	store := NewStore(mock, "medical-records", nil)

	data, err := store.Download(context.Background(), "user-1/analitica.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7"), data)
}

func TestStore_DownloadExplicitBucket(t *testing.T) {
	mock := newMockS3()
	mock.objects["other/a/b.m4a"] = []byte("audio")
	store := NewStore(mock, "medical-records", nil)

	data, err := store.Download(context.Background(), "s3://other/a/b.m4a")
	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), data)
}

func TestStore_DownloadPreservesProviderMessage(t *testing.T) {
	store := NewStore(newMockS3(), "medical-records", nil)

	_, err := store.Download(context.Background(), "user-1/missing.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NoSuchKey: The specified key does not exist.")
}

func TestStore_DownloadRejectsOversizedObject(t *testing.T) {
	mock := newMockS3()
	mock.objects["medical-records/big.pdf"] = bytes.Repeat([]byte("x"), 64)
	store := NewStore(mock, "medical-records", nil, WithMaxObjectBytes(16))

	_, err := store.Download(context.Background(), "big.pdf")
	assert.ErrorIs(t, err, ErrObjectTooLarge)
}

func TestStore_EmptyPath(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "medical-records", nil)

	_, err := store.Download(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyPath)
	assert.Equal(t, 0, mock.getCalls)
}

func TestStore_UploadThenDownload(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "medical-records", nil)

	require.NoError(t, store.Upload(context.Background(), "/user-2/nota.txt", "text/plain", []byte("hola")))
	data, err := store.Download(context.Background(), "user-2/nota.txt")
	require.NoError(t, err)
	assert.Equal(t, "hola", string(data))
}
