package kvstore

import (
	"bytes"
	"context"
	"io/ioutil"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"

	cierrors "github.com/cicoord/cicoord/pkg/errors"
)

// mockS3Client keeps objects in a map, and answers like S3 does for
// absent keys and buckets.
type mockS3Client struct {
	s3iface.S3API
	bucket string

	mu      sync.Mutex
	objects map[string][]byte
}

func newMockS3Client(bucket string) *mockS3Client {
	return &mockS3Client{bucket: bucket, objects: map[string][]byte{}}
}

func (m *mockS3Client) checkBucket(bucket *string) error {
	if aws.StringValue(bucket) != m.bucket {
		return awserr.New(s3.ErrCodeNoSuchBucket, "The specified bucket does not exist", nil)
	}
	return nil
}

func (m *mockS3Client) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	if err := m.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	return &s3.GetObjectOutput{Body: ioutil.NopCloser(bytes.NewReader(value))}, nil
}

func (m *mockS3Client) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	if err := m.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	value, err := ioutil.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[aws.StringValue(in.Key)] = value
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) DeleteObjectWithContext(ctx aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	if err := m.checkBucket(in.Bucket); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// S3 deletes are idempotent
	delete(m.objects, aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	checkStore(t, NewS3StoreFromClient(newMockS3Client("locks"), "locks"))
}

func TestS3Store_MissingBucket(t *testing.T) {
	s := NewS3StoreFromClient(newMockS3Client("locks"), "nonesuch")
	_, err := s.Get(context.Background(), ".lockfile")
	assert.Error(t, err)
	assert.True(t, cierrors.IsUser(err), "missing bucket should be a user error, got %v", err)
}

func TestS3Store_OtherErrorsAreWrapped(t *testing.T) {
	s := NewS3StoreFromClient(&failingS3Client{}, "locks")
	err := s.Put(context.Background(), ".lockfile", []byte("{}"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "s3://locks/.lockfile")
	assert.NotEqual(t, ErrNotFound, err)
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(S3Config{Host: "object.example.com"})
	assert.True(t, cierrors.IsUser(err))
}

func TestNewS3Store(t *testing.T) {
	s, err := NewS3Store(S3Config{
		Host:      "object.example.com",
		Bucket:    "locks",
		AccessKey: "AKIA",
		SecretKey: "secret",
	})
	assert.NoError(t, err)
	assert.Equal(t, "s3://locks", s.String())
}

type failingS3Client struct {
	s3iface.S3API
}

func (failingS3Client) PutObjectWithContext(aws.Context, *s3.PutObjectInput, ...request.Option) (*s3.PutObjectOutput, error) {
	return nil, awserr.New("InternalError", "We encountered an internal error. Please try again.", nil)
}
