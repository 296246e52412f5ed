package s3util

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Tag keys written on reviewed assets.
const (
	TagReviewDecision = "ReviewDecision"
	TagTicketID       = "TicketId"
)

// PutObjectTaggingAPI is the subset of the S3 client used for tagging.
type PutObjectTaggingAPI interface {
	PutObjectTagging(ctx context.Context, params *s3.PutObjectTaggingInput, optFns ...func(*s3.Options)) (*s3.PutObjectTaggingOutput, error)
}

// AssetTagger records review outcomes on uploaded assets so lifecycle rules
// can expire rejected uploads.
type AssetTagger struct {
	client PutObjectTaggingAPI
	bucket string
}

// NewAssetTagger returns an AssetTagger for bucket.
func NewAssetTagger(client PutObjectTaggingAPI, bucket string) *AssetTagger {
	return &AssetTagger{client: client, bucket: bucket}
}

// TagDecision replaces the tag set of key with the ticket and decision.
func (t *AssetTagger) TagDecision(ctx context.Context, key, ticketID, decision string) error {
	_, err := t.client.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket: &t.bucket,
		Key:    &key,
		Tagging: &s3types.Tagging{
			TagSet: []s3types.Tag{
				{Key: aws.String(TagTicketID), Value: aws.String(ticketID)},
				{Key: aws.String(TagReviewDecision), Value: aws.String(decision)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("s3 PutObjectTagging %s/%s: %w", t.bucket, key, err)
	}
	return nil
}
