package objectclient

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	cfg "github.com/markdave123-py/Kaleem/internal/config"
	"github.com/markdave123-py/Kaleem/internal/core"
)

type S3Client struct {
	client   *s3.Client
	presign  *s3.PresignClient
	uploader *manager.Uploader
	region   string
	bucket   string
	endpoint string
	timeout  time.Duration
}

var _ core.ObjectClient = (*S3Client)(nil)

func NewS3Client(ctx context.Context, cfg *cfg.Config) (*S3Client, error) {
	if cfg.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AwsRegion)}
	// Without static keys the default provider chain applies (env, shared config, IAM role).
	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	timeout := cfg.BlobTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return newS3Client(awsCfg, cfg.BucketName, cfg.S3Endpoint, cfg.S3ForcePathStyle, timeout), nil
}

func newS3Client(awsCfg aws.Config, bucket, endpoint string, pathStyle bool, timeout time.Duration) *S3Client {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
	})
	return &S3Client{
		client:   client,
		presign:  s3.NewPresignClient(client),
		uploader: manager.NewUploader(client),
		region:   awsCfg.Region,
		bucket:   bucket,
		endpoint: strings.TrimRight(endpoint, "/"),
		timeout:  timeout,
	}
}

// Upload stores data under key and returns where it landed.
func (c *S3Client) Upload(ctx context.Context, key string, data []byte, contentType string) (core.UploadResult, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}

	ctxUpload, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.uploader.Upload(ctxUpload, input)
	if err != nil {
		return core.UploadResult{}, newBlobError("upload", key, err)
	}

	location := c.objectURL(key)
	if out != nil && out.Location != "" {
		location = out.Location
	}
	return core.UploadResult{Key: key, Location: location, Size: int64(len(data))}, nil
}

// SignedURL presigns a GET for an existing object. Missing keys fail with reason not_found.
func (c *S3Client) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", &BlobError{Op: "sign", Key: key, Reason: ReasonInvalid, Err: fmt.Errorf("ttl must be positive, got %s", ttl)}
	}

	ctxSign, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.client.HeadObject(ctxSign, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return "", newBlobError("sign", key, err)
	}

	req, err := c.presign.PresignGetObject(ctxSign, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", newBlobError("sign", key, err)
	}
	return req.URL, nil
}

func (c *S3Client) Delete(ctx context.Context, key string) error {
	ctxDel, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.client.DeleteObject(ctxDel, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return newBlobError("delete", key, err)
	}
	return nil
}

func (c *S3Client) objectURL(key string) string {
	if c.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", c.endpoint, c.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.bucket, c.region, key)
}
