package kvstore

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"

	cierrors "github.com/cicoord/cicoord/pkg/errors"
)

const defaultS3Region = "us-east-1"

// S3Config describes how to reach an S3 (or S3-compatible) bucket.
// Fields may be left empty, in which case the AWS SDK defaults apply
// (environment, shared config, instance metadata).
type S3Config struct {
	// Host is the endpoint host, e.g., object.example.com; leave
	// empty to use AWS itself.
	Host      string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// Insecure talks plain HTTP to Host.
	Insecure bool
}

// S3Store keeps each key as an object in a single bucket.
type S3Store struct {
	client s3iface.S3API
	bucket string
}

// NewS3Store builds an S3 client from config. The bucket must already
// exist; it is not created.
func NewS3Store(config S3Config) (*S3Store, error) {
	if config.Bucket == "" {
		return nil, NoBucketError("", errors.New("no S3 bucket given"))
	}
	region := config.Region
	if region == "" {
		region = defaultS3Region
	}
	awsConfig := &aws.Config{Region: aws.String(region)}
	if config.Host != "" {
		scheme := "https"
		if config.Insecure {
			scheme = "http"
		}
		awsConfig.Endpoint = aws.String(scheme + "://" + config.Host)
		// Most S3-compatible services don't do virtual-hosted buckets
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}
	if config.AccessKey != "" || config.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}
	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, errors.Wrap(err, "creating AWS session")
	}
	return NewS3StoreFromClient(s3.New(sess), config.Bucket), nil
}

func NewS3StoreFromClient(client s3iface.S3API, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.translate(err, "fetching", key)
	}
	defer out.Body.Close()
	value, err := ioutil.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", s.location(key))
	}
	return value, nil
}

func (s *S3Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(value),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return s.translate(err, "writing", key)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		err = s.translate(err, "deleting", key)
		if err == ErrNotFound {
			return nil
		}
		return err
	}
	return nil
}

func (s *S3Store) String() string {
	return "s3://" + s.bucket
}

func (s *S3Store) location(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}

func (s *S3Store) translate(err error, doing, key string) error {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return ErrNotFound
		case s3.ErrCodeNoSuchBucket:
			return NoBucketError(s.bucket, err)
		}
	}
	return errors.Wrapf(err, "%s %s", doing, s.location(key))
}

// NoBucketError is returned when the configured bucket does not
// exist, or none was configured.
func NoBucketError(bucket string, actual error) error {
	return &cierrors.Error{
		Type: cierrors.User,
		Err:  actual,
		Help: `The S3 bucket could not be found

The lock keeps its lease in an existing S3 bucket, which is not
created on demand. Check that the bucket

    ` + bucket + `

exists on the configured host, and that the credentials given (via
--s3-access-key/--s3-secret-key or S3_ACCESS_KEY/S3_SECRET_KEY) can
read, write and delete objects in it.
`,
	}
}
