// Package s3 archives completed case reports to object storage and reads
// them back. Reports are keyed under a configurable prefix, one object per
// generated report.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Config holds connection settings for the report archive bucket.
type Config struct {
	Region string `json:"region" yaml:"region"`
	Bucket string `json:"bucket" yaml:"bucket"`

	// Prefix is prepended to every object key.
	Prefix string `json:"prefix" yaml:"prefix"`

	// Endpoint overrides the AWS endpoint for S3-compatible stores
	// such as MinIO.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// Static credentials. Left empty, the ambient AWS credential chain
	// is used instead.
	AccessKeyID     string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`
	SessionToken    string `json:"session_token,omitempty" yaml:"session_token,omitempty"`

	// StorageClass for archived reports. Reports are written once and
	// read rarely, so the default tiers them automatically.
	StorageClass string `json:"storage_class" yaml:"storage_class"`

	// UsePathStyle forces path-style addressing, required by MinIO.
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`

	RetryMaxAttempts int `json:"retry_max_attempts" yaml:"retry_max_attempts"`
}

func DefaultConfig() *Config {
	return &Config{
		Region:           "us-east-1",
		Bucket:           "iris-triage-archive",
		Prefix:           "cases/",
		StorageClass:     "INTELLIGENT_TIERING",
		RetryMaxAttempts: 3,
	}
}

func (c *Config) Validate() error {
	if c.Region == "" {
		return errors.New("s3: region is required")
	}
	if c.Bucket == "" {
		return errors.New("s3: bucket is required")
	}
	return nil
}

var storageClasses = map[string]types.StorageClass{
	"STANDARD":            types.StorageClassStandard,
	"STANDARD_IA":         types.StorageClassStandardIa,
	"ONEZONE_IA":          types.StorageClassOnezoneIa,
	"INTELLIGENT_TIERING": types.StorageClassIntelligentTiering,
	"GLACIER":             types.StorageClassGlacier,
	"GLACIER_IR":          types.StorageClassGlacierIr,
	"DEEP_ARCHIVE":        types.StorageClassDeepArchive,
}

func (c *Config) storageClass() types.StorageClass {
	if sc, ok := storageClasses[strings.ToUpper(c.StorageClass)]; ok {
		return sc
	}
	return types.StorageClassStandard
}

// Client wraps the AWS SDK client with the bucket, prefix, and storage
// class the archive is configured for.
type Client struct {
	api    *s3.Client
	config *Config
	logger *slog.Logger
}

func NewClient(ctx context.Context, cfg *Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	if cfg.RetryMaxAttempts > 0 {
		loadOpts = append(loadOpts, config.WithRetryMaxAttempts(cfg.RetryMaxAttempts))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to load AWS config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	logger.Info("report archive client ready",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"storage_class", cfg.StorageClass,
	)

	return &Client{api: api, config: cfg, logger: logger}, nil
}

// Prefix returns the configured key prefix. Keys handed back by ListKeys
// already have it stripped.
func (c *Client) Prefix() string {
	return c.config.Prefix
}

// PutResult describes where a stored object landed.
type PutResult struct {
	Key      string
	Location string
	Size     int64
}

// Put stores an object under the configured prefix.
func (c *Client) Put(ctx context.Context, key, contentType string, data []byte, metadata map[string]string) (*PutResult, error) {
	fullKey := c.config.Prefix + key

	input := &s3.PutObjectInput{
		Bucket:       aws.String(c.config.Bucket),
		Key:          aws.String(fullKey),
		Body:         bytes.NewReader(data),
		StorageClass: c.config.storageClass(),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if len(metadata) > 0 {
		input.Metadata = metadata
	}

	if _, err := c.api.PutObject(ctx, input); err != nil {
		return nil, fmt.Errorf("s3: failed to store object %s: %w", fullKey, err)
	}

	c.logger.Debug("stored archive object", "key", fullKey, "size", len(data))

	return &PutResult{
		Key:      fullKey,
		Location: fmt.Sprintf("s3://%s/%s", c.config.Bucket, fullKey),
		Size:     int64(len(data)),
	}, nil
}

// Get reads an object stored under the configured prefix.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	fullKey := c.config.Prefix + key

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.config.Bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: failed to fetch object %s: %w", fullKey, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to read object %s: %w", fullKey, err)
	}
	return data, nil
}

// ListKeys lists object keys under prefix, relative to the configured
// client prefix.
func (c *Client) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := c.config.Prefix + prefix

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.config.Bucket),
		Prefix: aws.String(fullPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3: failed to list objects under %s: %w", fullPrefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), c.config.Prefix))
		}
	}

	return keys, nil
}
