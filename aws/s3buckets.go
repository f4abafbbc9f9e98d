package aws

import (
	"context"
	"errors"
	"fmt"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/phlukman/inventory-tag/inventory"
)

// BucketClient is the subset of the S3 API used by BucketSource.
type BucketClient interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	GetBucketTagging(ctx context.Context, params *s3.GetBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error)
}

// BucketSource inventories the account's S3 buckets and their tag
// sets.
type BucketSource struct {
	clients func(inventory.Session) BucketClient
}

// NewBucketSource returns a BucketSource that builds per-session S3
// clients from the assumed-role credentials.
func NewBucketSource(base awsv2.Config) *BucketSource {
	return &BucketSource{clients: func(sess inventory.Session) BucketClient {
		return s3.NewFromConfig(SessionConfig(base, sess))
	}}
}

func (s *BucketSource) Name() string { return "s3-buckets" }

// ListPage lists one page of bucket names.
func (s *BucketSource) ListPage(ctx context.Context, sess inventory.Session, cursor string) (inventory.Page, error) {
	in := &s3.ListBucketsInput{MaxBuckets: awsv2.Int32(1000)}
	if cursor != "" {
		in.ContinuationToken = awsv2.String(cursor)
	}

	out, err := s.clients(sess).ListBuckets(ctx, in)
	if err != nil {
		return inventory.Page{}, fmt.Errorf("list buckets in %s: %w", sess.AccountID, err)
	}

	page := inventory.Page{NextCursor: awsv2.ToString(out.ContinuationToken)}
	for _, b := range out.Buckets {
		page.Items = append(page.Items, inventory.Item{ID: awsv2.ToString(b.Name)})
	}
	return page, nil
}

// GetDetail fetches the bucket's tag set. A bucket with no tag set at
// all is a record with no tags, not an error.
func (s *BucketSource) GetDetail(ctx context.Context, sess inventory.Session, item inventory.Item) (inventory.Record, error) {
	record := inventory.Record{
		ID:        item.ID,
		AccountID: sess.AccountID,
		Region:    sess.Region,
		Service:   s.Name(),
	}

	out, err := s.clients(sess).GetBucketTagging(ctx, &s3.GetBucketTaggingInput{
		Bucket: awsv2.String(item.ID),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchTagSet" {
			return record, nil
		}
		return inventory.Record{}, fmt.Errorf("get tagging for bucket %s: %w", item.ID, err)
	}

	record.Tags = s3TagMap(out.TagSet)
	return record, nil
}

func s3TagMap(tags []s3types.Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[awsv2.ToString(t.Key)] = awsv2.ToString(t.Value)
	}
	return m
}

var _ inventory.Source = (*BucketSource)(nil)
