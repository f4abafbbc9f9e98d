package aws

import (
	"context"
	"fmt"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/phlukman/inventory-tag/inventory"
)

// IAMClient is the subset of the IAM API used by PolicySource.
type IAMClient interface {
	ListPolicies(ctx context.Context, params *iam.ListPoliciesInput, optFns ...func(*iam.Options)) (*iam.ListPoliciesOutput, error)
	ListPolicyTags(ctx context.Context, params *iam.ListPolicyTagsInput, optFns ...func(*iam.Options)) (*iam.ListPolicyTagsOutput, error)
}

// PolicySource inventories customer-managed IAM policies and their
// tags.
type PolicySource struct {
	clients func(inventory.Session) IAMClient
}

// NewPolicySource returns a PolicySource that builds per-session IAM
// clients from the assumed-role credentials.
func NewPolicySource(base awsv2.Config) *PolicySource {
	return &PolicySource{clients: func(sess inventory.Session) IAMClient {
		return iam.NewFromConfig(SessionConfig(base, sess))
	}}
}

func (s *PolicySource) Name() string { return "iam-policies" }

// ListPage lists one page of customer-managed policies. The cursor is
// the IAM marker.
func (s *PolicySource) ListPage(ctx context.Context, sess inventory.Session, cursor string) (inventory.Page, error) {
	in := &iam.ListPoliciesInput{Scope: iamtypes.PolicyScopeTypeLocal}
	if cursor != "" {
		in.Marker = awsv2.String(cursor)
	}

	out, err := s.clients(sess).ListPolicies(ctx, in)
	if err != nil {
		return inventory.Page{}, fmt.Errorf("list policies in %s: %w", sess.AccountID, err)
	}

	page := inventory.Page{}
	for _, p := range out.Policies {
		page.Items = append(page.Items, inventory.Item{
			ID: awsv2.ToString(p.Arn),
			Attributes: map[string]string{
				"policy_name": awsv2.ToString(p.PolicyName),
				"policy_id":   awsv2.ToString(p.PolicyId),
			},
		})
	}
	if out.IsTruncated {
		page.NextCursor = awsv2.ToString(out.Marker)
	}
	return page, nil
}

// GetDetail fetches the policy's tags and produces the final record.
func (s *PolicySource) GetDetail(ctx context.Context, sess inventory.Session, item inventory.Item) (inventory.Record, error) {
	out, err := s.clients(sess).ListPolicyTags(ctx, &iam.ListPolicyTagsInput{
		PolicyArn: awsv2.String(item.ID),
	})
	if err != nil {
		return inventory.Record{}, fmt.Errorf("list tags for %s: %w", item.ID, err)
	}

	return inventory.Record{
		ID:         item.ID,
		AccountID:  sess.AccountID,
		Region:     sess.Region,
		Service:    s.Name(),
		Attributes: item.Attributes,
		Tags:       tagMap(out.Tags),
	}, nil
}

func tagMap(tags []iamtypes.Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[awsv2.ToString(t.Key)] = awsv2.ToString(t.Value)
	}
	return m
}

var _ inventory.Source = (*PolicySource)(nil)
