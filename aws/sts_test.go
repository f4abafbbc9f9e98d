package aws

import (
	"context"
	"testing"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSTS struct {
	calls  int
	expiry time.Time
	err    error

	lastInput *sts.AssumeRoleInput
}

func (f *fakeSTS) AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	f.calls++
	f.lastInput = params
	if f.err != nil {
		return nil, f.err
	}
	return &sts.AssumeRoleOutput{
		Credentials: &ststypes.Credentials{
			AccessKeyId:     awsv2.String("AKIAEXAMPLE"),
			SecretAccessKey: awsv2.String("secret"),
			SessionToken:    awsv2.String("token"),
			Expiration:      awsv2.Time(f.expiry),
		},
	}, nil
}

func TestAssumer_BuildsRoleARN(t *testing.T) {
	client := &fakeSTS{expiry: time.Now().Add(time.Hour)}
	a := NewAssumer(client)

	creds, err := a.AssumeRole(context.Background(), "123456789012", "InventoryRole")
	require.NoError(t, err)

	assert.Equal(t, "arn:aws:iam::123456789012:role/InventoryRole", awsv2.ToString(client.lastInput.RoleArn))
	assert.Equal(t, "AWSAutoInventorySession", awsv2.ToString(client.lastInput.RoleSessionName))
	assert.EqualValues(t, 3600, awsv2.ToInt32(client.lastInput.DurationSeconds))
	assert.Equal(t, "AKIAEXAMPLE", creds.AccessKeyID)
}

func TestAssumer_CachesUntilNearExpiry(t *testing.T) {
	now := time.Now()
	client := &fakeSTS{expiry: now.Add(time.Hour)}
	a := NewAssumer(client)
	a.now = func() time.Time { return now }

	_, err := a.AssumeRole(context.Background(), "123456789012", "InventoryRole")
	require.NoError(t, err)
	_, err = a.AssumeRole(context.Background(), "123456789012", "InventoryRole")
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls, "second call should hit the cache")

	// Move to within the expiry margin: cache entry is discarded.
	a.now = func() time.Time { return now.Add(time.Hour - time.Minute) }
	_, err = a.AssumeRole(context.Background(), "123456789012", "InventoryRole")
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
}

func TestAssumer_CacheIsPerAccountAndRole(t *testing.T) {
	client := &fakeSTS{expiry: time.Now().Add(time.Hour)}
	a := NewAssumer(client)

	_, err := a.AssumeRole(context.Background(), "111111111111", "InventoryRole")
	require.NoError(t, err)
	_, err = a.AssumeRole(context.Background(), "222222222222", "InventoryRole")
	require.NoError(t, err)
	_, err = a.AssumeRole(context.Background(), "111111111111", "AuditRole")
	require.NoError(t, err)

	assert.Equal(t, 3, client.calls)
}

func TestAssumer_ErrorNotCached(t *testing.T) {
	client := &fakeSTS{err: assert.AnError}
	a := NewAssumer(client)

	_, err := a.AssumeRole(context.Background(), "123456789012", "InventoryRole")
	require.Error(t, err)

	client.err = nil
	client.expiry = time.Now().Add(time.Hour)
	_, err = a.AssumeRole(context.Background(), "123456789012", "InventoryRole")
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
}
