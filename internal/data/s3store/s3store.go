// Package s3store keeps versioned JSON documents in an S3 bucket. Writes use
// conditional PutObject so the object ETag serves as the version token.
package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/colonyops/roadmap/internal/core/kv"
)

// API is the subset of the S3 client used by Store.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Config selects the bucket and endpoint.
type Config struct {
	Bucket         string
	Region         string
	Endpoint       string
	ForcePathStyle bool
}

// Store implements kv.Versioned on S3 objects.
type Store struct {
	api    API
	bucket string
}

// New loads AWS credentials from the default chain and returns a Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return NewWithAPI(client, cfg.Bucket), nil
}

// NewWithAPI returns a Store using api for all calls.
func NewWithAPI(api API, bucket string) *Store {
	return &Store{api: api, bucket: bucket}
}

// GetVersioned implements kv.Versioned.
func (s *Store) GetVersioned(ctx context.Context, key string, dest any) (kv.Version, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return kv.NoVersion, nil
		}
		return kv.NoVersion, fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return kv.NoVersion, fmt.Errorf("read s3://%s/%s: %w", s.bucket, key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return kv.NoVersion, fmt.Errorf("decode s3://%s/%s: %w", s.bucket, key, err)
	}

	return kv.Version(aws.ToString(out.ETag)), nil
}

// PutIfVersion implements kv.Versioned with If-Match / If-None-Match.
func (s *Store) PutIfVersion(ctx context.Context, key string, value any, expected kv.Version) (kv.Version, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return kv.NoVersion, fmt.Errorf("encode %q: %w", key, err)
	}

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}
	if expected == kv.NoVersion {
		in.IfNoneMatch = aws.String("*")
	} else {
		in.IfMatch = aws.String(string(expected))
	}

	out, err := s.api.PutObject(ctx, in)
	if err != nil {
		if isPreconditionFailed(err) {
			return kv.NoVersion, s.conflict(ctx, key, expected)
		}
		return kv.NoVersion, fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}

	return kv.Version(aws.ToString(out.ETag)), nil
}

func (s *Store) conflict(ctx context.Context, key string, expected kv.Version) error {
	cerr := &kv.ConflictError{Key: key, Expected: expected}
	head, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		cerr.Current = kv.Version(aws.ToString(head.ETag))
	}
	return cerr
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	return errors.As(err, &nf)
}

// S3 reports a failed If-Match or If-None-Match as 412 PreconditionFailed
// and a concurrent conditional write to the same key as 409
// ConditionalRequestConflict.
func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}
