package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sethvargo/go-retry"

	"github.com/hibana-share/hibana/internal/common"
)

// S3Options configures the S3-compatible backend (AWS or MinIO-style
// deployments with a custom base endpoint).
type S3Options struct {
	Bucket       string
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
}

// S3Store keeps blobs as objects under files/<file_id>.enc.
type S3Store struct {
	client *s3.Client
	bucket string
}

func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey, opts.SecretKey, "",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: opts.Bucket}, nil
}

func objectKey(fileID string) string {
	return "files/" + fileID + ".enc"
}

// Put uploads in one PutObject call; S3 object creation is already
// all-or-nothing, a failed upload leaves no key behind. Not retried:
// the caller treats put failures as fatal for the upload.
func (s *S3Store) Put(ctx context.Context, fileID string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(fileID)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3 put: %w", err)
	}
	return nil
}

// Get downloads the object, retrying transient failures with backoff.
// Reads are idempotent so the retry is safe.
func (s *S3Store) Get(ctx context.Context, fileID string) ([]byte, error) {
	var data []byte

	err := retry.Do(ctx, backoff(), func(ctx context.Context) error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectKey(fileID)),
		})
		if err != nil {
			var noKey *types.NoSuchKey
			if errors.As(err, &noKey) {
				return common.ErrNotFound
			}
			return retry.RetryableError(err)
		}
		defer out.Body.Close()

		data, err = io.ReadAll(out.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get: %w", err)
	}
	return data, nil
}

// Delete is idempotent: S3 DeleteObject on an absent key succeeds.
func (s *S3Store) Delete(ctx context.Context, fileID string) error {
	err := retry.Do(ctx, backoff(), func(ctx context.Context) error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectKey(fileID)),
		})
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("s3 delete: %w", err)
	}
	return nil
}

func backoff() retry.Backoff {
	return retry.WithMaxRetries(3, retry.NewExponential(100*time.Millisecond))
}
