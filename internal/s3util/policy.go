// Package s3util holds the S3 helpers used by the decision engine: policy
// text retrieval, presigned asset URLs and asset review tags.
package s3util

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// maxPolicyBytes bounds the policy document read into memory.
const maxPolicyBytes = 1 << 20

// GetObjectAPI is the subset of the S3 client used to read objects.
type GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// PolicyStore reads policy documents from a bucket.
type PolicyStore struct {
	client GetObjectAPI
	bucket string
}

// NewPolicyStore returns a PolicyStore for bucket.
func NewPolicyStore(client GetObjectAPI, bucket string) *PolicyStore {
	return &PolicyStore{client: client, bucket: bucket}
}

// GetPolicy returns the policy text stored under key.
func (p *PolicyStore) GetPolicy(ctx context.Context, key string) (string, error) {
	log.Debug().Str("bucket", p.bucket).Str("key", key).Msg("Loading policy from S3")
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &p.bucket, Key: &key})
	if err != nil {
		return "", fmt.Errorf("s3 GetObject %s/%s: %w", p.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxPolicyBytes))
	if err != nil {
		return "", fmt.Errorf("s3 read %s/%s: %w", p.bucket, key, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("s3 object %s/%s: empty policy document", p.bucket, key)
	}
	log.Debug().Str("key", key).Int("bytes", len(data)).Msg("Policy loaded")
	return text, nil
}
