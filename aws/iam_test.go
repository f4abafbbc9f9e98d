package aws

import (
	"context"
	"testing"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phlukman/inventory-tag/inventory"
)

type fakeIAM struct {
	// pages maps marker ("" for the first page) to its output.
	pages map[string]*iam.ListPoliciesOutput
	tags  map[string][]iamtypes.Tag
}

func (f *fakeIAM) ListPolicies(ctx context.Context, params *iam.ListPoliciesInput, optFns ...func(*iam.Options)) (*iam.ListPoliciesOutput, error) {
	return f.pages[awsv2.ToString(params.Marker)], nil
}

func (f *fakeIAM) ListPolicyTags(ctx context.Context, params *iam.ListPolicyTagsInput, optFns ...func(*iam.Options)) (*iam.ListPolicyTagsOutput, error) {
	return &iam.ListPolicyTagsOutput{Tags: f.tags[awsv2.ToString(params.PolicyArn)]}, nil
}

func iamSource(client IAMClient) *PolicySource {
	return &PolicySource{clients: func(inventory.Session) IAMClient { return client }}
}

func testSession() inventory.Session {
	return inventory.Session{AccountID: "123456789012", Region: "us-east-1"}
}

func TestPolicySource_Pagination(t *testing.T) {
	client := &fakeIAM{pages: map[string]*iam.ListPoliciesOutput{
		"": {
			Policies:    []iamtypes.Policy{{Arn: awsv2.String("arn:p1"), PolicyName: awsv2.String("p1")}},
			IsTruncated: true,
			Marker:      awsv2.String("m1"),
		},
		"m1": {
			Policies: []iamtypes.Policy{{Arn: awsv2.String("arn:p2"), PolicyName: awsv2.String("p2")}},
		},
	}}
	s := iamSource(client)

	page1, err := s.ListPage(context.Background(), testSession(), "")
	require.NoError(t, err)
	assert.Equal(t, "m1", page1.NextCursor)
	require.Len(t, page1.Items, 1)
	assert.Equal(t, "arn:p1", page1.Items[0].ID)
	assert.Equal(t, "p1", page1.Items[0].Attributes["policy_name"])

	page2, err := s.ListPage(context.Background(), testSession(), page1.NextCursor)
	require.NoError(t, err)
	assert.Empty(t, page2.NextCursor)
	require.Len(t, page2.Items, 1)
	assert.Equal(t, "arn:p2", page2.Items[0].ID)
}

func TestPolicySource_GetDetail(t *testing.T) {
	client := &fakeIAM{tags: map[string][]iamtypes.Tag{
		"arn:p1": {{Key: awsv2.String("Team"), Value: awsv2.String("infra")}},
	}}
	s := iamSource(client)

	rec, err := s.GetDetail(context.Background(), testSession(), inventory.Item{
		ID:         "arn:p1",
		Attributes: map[string]string{"policy_name": "p1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "arn:p1", rec.ID)
	assert.Equal(t, "123456789012", rec.AccountID)
	assert.Equal(t, "iam-policies", rec.Service)
	assert.Equal(t, map[string]string{"Team": "infra"}, rec.Tags)
	assert.True(t, rec.Tagged())
}

func TestPolicySource_UntaggedPolicy(t *testing.T) {
	s := iamSource(&fakeIAM{})

	rec, err := s.GetDetail(context.Background(), testSession(), inventory.Item{ID: "arn:p1"})
	require.NoError(t, err)
	assert.Nil(t, rec.Tags)
	assert.False(t, rec.Tagged())
}
