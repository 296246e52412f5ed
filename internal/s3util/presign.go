package s3util

import (
	"context"
	"fmt"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PresignGetObjectAPI is satisfied by *s3.PresignClient.
type PresignGetObjectAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Presigner issues time-limited GET URLs for uploaded assets.
type Presigner struct {
	client PresignGetObjectAPI
	bucket string
	ttl    time.Duration
}

// NewPresigner returns a Presigner for bucket with the given URL lifetime.
func NewPresigner(client PresignGetObjectAPI, bucket string, ttl time.Duration) *Presigner {
	return &Presigner{client: client, bucket: bucket, ttl: ttl}
}

// AssetURL returns a presigned GET URL for key.
func (p *Presigner) AssetURL(ctx context.Context, key string) (string, error) {
	return GeneratePresignedURL(ctx, p.client, p.bucket, key, p.ttl)
}

// GeneratePresignedURL creates a presigned GET URL for an S3 object.
func GeneratePresignedURL(ctx context.Context, client PresignGetObjectAPI, bucket, key string, expiry time.Duration) (string, error) {
	result, err := client.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket, Key: &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("s3 presign GetObject %s/%s: %w", bucket, key, err)
	}
	return result.URL, nil
}
