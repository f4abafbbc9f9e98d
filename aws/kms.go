package aws

import (
	"context"
	"fmt"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/phlukman/inventory-tag/inventory"
)

// KMSClient is the subset of the KMS API used by KeySource.
type KMSClient interface {
	ListKeys(ctx context.Context, params *kms.ListKeysInput, optFns ...func(*kms.Options)) (*kms.ListKeysOutput, error)
	DescribeKey(ctx context.Context, params *kms.DescribeKeyInput, optFns ...func(*kms.Options)) (*kms.DescribeKeyOutput, error)
	ListResourceTags(ctx context.Context, params *kms.ListResourceTagsInput, optFns ...func(*kms.Options)) (*kms.ListResourceTagsOutput, error)
}

// KeySource inventories KMS keys and their tags.
type KeySource struct {
	clients func(inventory.Session) KMSClient
}

// NewKeySource returns a KeySource that builds per-session KMS clients
// from the assumed-role credentials.
func NewKeySource(base awsv2.Config) *KeySource {
	return &KeySource{clients: func(sess inventory.Session) KMSClient {
		return kms.NewFromConfig(SessionConfig(base, sess))
	}}
}

func (s *KeySource) Name() string { return "kms-keys" }

// ListPage lists one page of key ids. The cursor is the KMS marker.
func (s *KeySource) ListPage(ctx context.Context, sess inventory.Session, cursor string) (inventory.Page, error) {
	in := &kms.ListKeysInput{}
	if cursor != "" {
		in.Marker = awsv2.String(cursor)
	}

	out, err := s.clients(sess).ListKeys(ctx, in)
	if err != nil {
		return inventory.Page{}, fmt.Errorf("list keys in %s: %w", sess.AccountID, err)
	}

	page := inventory.Page{}
	for _, k := range out.Keys {
		page.Items = append(page.Items, inventory.Item{ID: awsv2.ToString(k.KeyId)})
	}
	if out.Truncated {
		page.NextCursor = awsv2.ToString(out.NextMarker)
	}
	return page, nil
}

// GetDetail describes the key and fetches its resource tags. Tag
// listing is denied for AWS-managed keys; those come back with no tags
// rather than failing the key.
func (s *KeySource) GetDetail(ctx context.Context, sess inventory.Session, item inventory.Item) (inventory.Record, error) {
	client := s.clients(sess)

	desc, err := client.DescribeKey(ctx, &kms.DescribeKeyInput{
		KeyId: awsv2.String(item.ID),
	})
	if err != nil {
		return inventory.Record{}, fmt.Errorf("describe key %s: %w", item.ID, err)
	}
	meta := desc.KeyMetadata

	record := inventory.Record{
		ID:        item.ID,
		AccountID: sess.AccountID,
		Region:    sess.Region,
		Service:   s.Name(),
		Attributes: map[string]string{
			"arn":         awsv2.ToString(meta.Arn),
			"description": awsv2.ToString(meta.Description),
			"key_state":   string(meta.KeyState),
			"key_manager": string(meta.KeyManager),
		},
	}

	if meta.KeyManager == kmstypes.KeyManagerTypeAws {
		return record, nil
	}

	tags, err := client.ListResourceTags(ctx, &kms.ListResourceTagsInput{
		KeyId: awsv2.String(item.ID),
	})
	if err != nil {
		return inventory.Record{}, fmt.Errorf("list tags for key %s: %w", item.ID, err)
	}
	record.Tags = kmsTagMap(tags.Tags)
	return record, nil
}

func kmsTagMap(tags []kmstypes.Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[awsv2.ToString(t.TagKey)] = awsv2.ToString(t.TagValue)
	}
	return m
}

var _ inventory.Source = (*KeySource)(nil)
