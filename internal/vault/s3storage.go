package vault

import (
	"context"
	"fmt"
	"io"
	"strconv"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// S3Storage archives payloads as objects in a single bucket, one object
// per file-id. Location encodes "bucket/key" as the opaque target string;
// Copy streams through an s3manager.Uploader.
//
// Grounded on the teacher's HetznerUploadFile/HetznerUploaderFile pair:
// region-qualified static credentials plus a custom endpoint resolver,
// trimmed down from the teacher's bulk-sync surface to the single
// location/copy contract the worker needs.
type S3Storage struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Storage builds an S3Storage from cfg. When S3Endpoint is set, a
// custom endpoint resolver is installed so the same driver also serves
// S3-compatible stores (MinIO, Hetzner) as the teacher's storage package
// does.
func NewS3Storage(cfg Config) (*S3Storage, error) {
	ctx := context.Background()

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}
	if cfg.S3Endpoint != "" {
		endpoint := cfg.S3Endpoint
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(
			awssdk.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (awssdk.Endpoint, error) {
					return awssdk.Endpoint{
						URL:               endpoint,
						SigningRegion:     region,
						HostnameImmutable: true,
					}, nil
				},
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading S3 configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Storage{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.S3Bucket,
		prefix:   cfg.S3PathPrefix,
	}, nil
}

// Location returns "bucket/key" for fileID, key namespaced under prefix.
func (s *S3Storage) Location(fileID int64) (string, error) {
	key := strconv.FormatInt(fileID, 10)
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	return s.bucket + "/" + key, nil
}

// Copy uploads r to the bucket/key encoded in target via the S3 manager
// uploader, which chunks and retries multipart uploads internally.
func (s *S3Storage) Copy(r io.Reader, target string) (int64, error) {
	bucket, key, err := splitTarget(target)
	if err != nil {
		return 0, err
	}

	counter := &countingReader{r: r}
	_, err = s.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: awssdk.String(bucket),
		Key:    awssdk.String(key),
		Body:   counter,
	})
	if err != nil {
		return 0, fmt.Errorf("uploading to s3://%s: %w", target, err)
	}

	logrus.Debugf("vault copy complete: s3://%s (%s)", target, humanize.Bytes(uint64(counter.n)))
	return counter.n, nil
}

func splitTarget(target string) (bucket, key string, err error) {
	for i := 0; i < len(target); i++ {
		if target[i] == '/' {
			return target[:i], target[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("malformed vault target %q, expected bucket/key", target)
}

// countingReader wraps an io.Reader to track bytes read, since
// manager.Uploader does not return a byte count for streamed bodies of
// unknown length.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
