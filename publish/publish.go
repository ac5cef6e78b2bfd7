// Package publish mirrors promoted best images to S3 or an S3-compatible
// store.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Publisher uploads one file of a run and returns its location.
type Publisher interface {
	Publish(ctx context.Context, requestID, name string, data []byte) (string, error)
}

// Config configures the S3 publisher.
type Config struct {
	Bucket string `yaml:"bucket"`
	// Prefix is prepended to every key. Default: "vizopt".
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
	// Endpoint targets an S3-compatible store (MinIO, R2, LocalStack).
	Endpoint string `yaml:"endpoint"`
	// PathStyle forces path-style addressing, needed by most
	// S3-compatible stores.
	PathStyle bool `yaml:"path_style"`
}

// Enabled reports whether a bucket is configured.
func (c Config) Enabled() bool { return c.Bucket != "" }

// putObjectAPI is the part of *s3.Client the publisher uses.
type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads to one bucket.
type S3 struct {
	client putObjectAPI
	bucket string
	prefix string
}

// NewS3 loads the default AWS configuration (environment, shared config,
// instance role) and returns a publisher for cfg.Bucket.
func NewS3(ctx context.Context, cfg Config) (*S3, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("publish: bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("publish: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3(client, cfg), nil
}

func newS3(client putObjectAPI, cfg Config) *S3 {
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "vizopt"
	}
	return &S3{client: client, bucket: cfg.Bucket, prefix: prefix}
}

// Key returns the object key of a run file.
func (p *S3) Key(requestID, name string) string {
	return path.Join(p.prefix, requestID, name)
}

// Publish uploads data as image/jpeg and returns its s3:// URI.
func (p *S3) Publish(ctx context.Context, requestID, name string, data []byte) (string, error) {
	key := p.Key(requestID, name)
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		return "", fmt.Errorf("publish: put s3://%s/%s: %w", p.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", p.bucket, key), nil
}
