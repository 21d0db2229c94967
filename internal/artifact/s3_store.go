package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// S3Config configures the S3-compatible blob store client.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseTLS    bool
}

// S3Store implements Store against an S3-compatible endpoint using
// aws-sdk-go-v2, the client the example pack's NSW backend wires up for
// exactly this purpose (PutObject/GetObject/bucket existence check).
type S3Store struct {
	client *s3.Client
	bucket string
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
		o.UsePathStyle = true
	})

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if HeadBucket reports it missing,
// mirroring the blob contract's "bucket_exists/make_bucket" startup step.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &s.bucket})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &s.bucket})
	if err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// isNotFound reports whether err is an HTTP 404 from the S3 endpoint, the
// only HeadBucket failure that should trigger CreateBucket rather than
// propagate.
func isNotFound(err error) bool {
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == http.StatusNotFound
	}
	return false
}

func (s *S3Store) FGetObject(ctx context.Context, objectName, filePath string) error {
	if objectName == "" {
		return newObjectError("fget", objectName, ErrInvalidObjectName)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &objectName})
	if err != nil {
		if isNotFound(err) {
			err = fmt.Errorf("%w: %v", ErrObjectNotFound, err)
		}
		return newObjectError("fget", objectName, err)
	}
	defer out.Body.Close()

	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return newObjectError("fget", objectName, fmt.Errorf("mkdir %s: %w", dir, err))
		}
	}

	f, err := os.Create(filePath)
	if err != nil {
		return newObjectError("fget", objectName, fmt.Errorf("create %s: %w", filePath, err))
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		return newObjectError("fget", objectName, fmt.Errorf("write %s: %w", filePath, err))
	}
	return nil
}

func (s *S3Store) FPutObject(ctx context.Context, objectName, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return newObjectError("fput", objectName, fmt.Errorf("open %s: %w", filePath, err))
	}
	defer f.Close()

	return s.PutReader(ctx, objectName, f)
}

func (s *S3Store) PutReader(ctx context.Context, objectName string, r io.Reader) error {
	if objectName == "" {
		return newObjectError("put", objectName, ErrInvalidObjectName)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &objectName,
		Body:   r,
	})
	if err != nil {
		return newObjectError("put", objectName, err)
	}
	return nil
}
