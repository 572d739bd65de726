// Package s3 stores investigation exports in S3 or an S3-compatible store.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Config holds S3 connection and behavior configuration.
type Config struct {
	Region string `json:"region" yaml:"region"`
	Bucket string `json:"bucket" yaml:"bucket"`

	// Prefix is prepended to every object key.
	Prefix string `json:"prefix" yaml:"prefix"`

	// Endpoint is an optional custom endpoint (MinIO, LocalStack).
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	AccessKeyID     string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`
	SessionToken    string `json:"session_token,omitempty" yaml:"session_token,omitempty"`

	StorageClass string `json:"storage_class" yaml:"storage_class"`

	// ServerSideEncryption type (AES256 or aws:kms).
	ServerSideEncryption string `json:"server_side_encryption,omitempty" yaml:"server_side_encryption,omitempty"`
	KMSKeyID             string `json:"kms_key_id,omitempty" yaml:"kms_key_id,omitempty"`

	UsePathStyle     bool          `json:"use_path_style" yaml:"use_path_style"`
	RetryMaxAttempts int           `json:"retry_max_attempts" yaml:"retry_max_attempts"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Region:           "us-east-1",
		Bucket:           "fraud-workbench-exports",
		Prefix:           "cases/",
		StorageClass:     "STANDARD",
		RetryMaxAttempts: 3,
		Timeout:          time.Minute,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Region == "" {
		return errors.New("s3: region is required")
	}
	if c.Bucket == "" {
		return errors.New("s3: bucket is required")
	}
	switch c.ServerSideEncryption {
	case "", "AES256", "aws:kms":
	default:
		return fmt.Errorf("s3: unsupported server side encryption: %s", c.ServerSideEncryption)
	}
	return nil
}

// GetStorageClass returns the S3 storage class type.
func (c *Config) GetStorageClass() types.StorageClass {
	switch strings.ToUpper(c.StorageClass) {
	case "STANDARD_IA":
		return types.StorageClassStandardIa
	case "ONEZONE_IA":
		return types.StorageClassOnezoneIa
	case "INTELLIGENT_TIERING":
		return types.StorageClassIntelligentTiering
	case "GLACIER":
		return types.StorageClassGlacier
	case "GLACIER_IR":
		return types.StorageClassGlacierIr
	default:
		return types.StorageClassStandard
	}
}

// API is the subset of the S3 client used here.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Client wraps an S3 API with the configured bucket and prefix.
type Client struct {
	api    API
	config *Config
	logger *slog.Logger

	bytesUploaded   atomic.Int64
	objectsUploaded atomic.Int64
	errors          atomic.Int64
}

// NewClient loads AWS configuration and creates a client.
func NewClient(ctx context.Context, cfg *Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	if cfg.RetryMaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cfg.RetryMaxAttempts))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to load AWS config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	logger.Info("s3 client initialized", "bucket", cfg.Bucket, "region", cfg.Region)
	return NewClientWithAPI(api, cfg, logger), nil
}

// NewClientWithAPI creates a client around an existing API implementation.
func NewClientWithAPI(api API, cfg *Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{api: api, config: cfg, logger: logger}
}

// UploadInput contains parameters for uploading an object.
type UploadInput struct {
	Key             string
	Body            []byte
	ContentType     string
	ContentEncoding string
	Metadata        map[string]string
}

// UploadOutput contains the result of an upload operation.
type UploadOutput struct {
	Key      string
	ETag     string
	Location string
	Size     int64
}

// Upload puts an object under the configured prefix.
func (c *Client) Upload(ctx context.Context, input *UploadInput) (*UploadOutput, error) {
	key := c.config.Prefix + input.Key
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	put := &s3.PutObjectInput{
		Bucket:        aws.String(c.config.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(input.Body),
		ContentLength: aws.Int64(int64(len(input.Body))),
		StorageClass:  c.config.GetStorageClass(),
	}
	if input.ContentType != "" {
		put.ContentType = aws.String(input.ContentType)
	}
	if input.ContentEncoding != "" {
		put.ContentEncoding = aws.String(input.ContentEncoding)
	}
	if len(input.Metadata) > 0 {
		put.Metadata = input.Metadata
	}
	switch c.config.ServerSideEncryption {
	case "AES256":
		put.ServerSideEncryption = types.ServerSideEncryptionAes256
	case "aws:kms":
		put.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if c.config.KMSKeyID != "" {
			put.SSEKMSKeyId = aws.String(c.config.KMSKeyID)
		}
	}

	result, err := c.api.PutObject(ctx, put)
	if err != nil {
		c.errors.Add(1)
		return nil, fmt.Errorf("s3: failed to upload object %s: %w", key, err)
	}

	size := int64(len(input.Body))
	c.bytesUploaded.Add(size)
	c.objectsUploaded.Add(1)
	c.logger.Debug("uploaded object", "key", key, "size", size)

	return &UploadOutput{
		Key:      key,
		ETag:     aws.ToString(result.ETag),
		Location: fmt.Sprintf("s3://%s/%s", c.config.Bucket, key),
		Size:     size,
	}, nil
}

// Download reads an object under the configured prefix.
func (c *Client) Download(ctx context.Context, key string) ([]byte, error) {
	fullKey := c.config.Prefix + key
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	result, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.config.Bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		c.errors.Add(1)
		return nil, fmt.Errorf("s3: failed to download object %s: %w", fullKey, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to read object %s: %w", fullKey, err)
	}
	return data, nil
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// List returns objects whose key starts with the configured prefix plus prefix.
func (c *Client) List(ctx context.Context, prefix string, maxKeys int) ([]ObjectInfo, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.config.Bucket),
		Prefix: aws.String(c.config.Prefix + prefix),
	}
	if maxKeys > 0 {
		in.MaxKeys = aws.Int32(int32(maxKeys))
	}

	result, err := c.api.ListObjectsV2(ctx, in)
	if err != nil {
		c.errors.Add(1)
		return nil, fmt.Errorf("s3: failed to list objects: %w", err)
	}

	objects := make([]ObjectInfo, 0, len(result.Contents))
	for _, obj := range result.Contents {
		objects = append(objects, ObjectInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}
	return objects, nil
}

// HealthCheck verifies the bucket is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if _, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.config.Bucket)}); err != nil {
		return fmt.Errorf("s3: bucket %s unreachable: %w", c.config.Bucket, err)
	}
	return nil
}

// Metrics holds client counters.
type Metrics struct {
	BytesUploaded   int64
	ObjectsUploaded int64
	Errors          int64
}

// GetMetrics returns current client counters.
func (c *Client) GetMetrics() Metrics {
	return Metrics{
		BytesUploaded:   c.bytesUploaded.Load(),
		ObjectsUploaded: c.objectsUploaded.Load(),
		Errors:          c.errors.Load(),
	}
}

// Bucket returns the configured bucket.
func (c *Client) Bucket() string {
	return c.config.Bucket
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.config.Timeout)
}
