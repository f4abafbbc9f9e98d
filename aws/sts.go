package aws

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/phlukman/inventory-tag/inventory"
)

const (
	roleSessionName = "AWSAutoInventorySession"
	sessionDuration = 3600 // seconds

	// Cached credentials are discarded this long before they expire so
	// a session handed out near the end of its lifetime stays usable.
	expiryMargin = 5 * time.Minute
)

// STSClient is the subset of the STS API used for role assumption.
type STSClient interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// Assumer assumes a named role in member accounts and caches the
// resulting credentials until shortly before they expire. Safe for
// concurrent use.
type Assumer struct {
	client STSClient

	mu    sync.Mutex
	cache map[string]inventory.Credentials
	now   func() time.Time
}

// NewAssumer returns an Assumer backed by the given STS client.
func NewAssumer(client STSClient) *Assumer {
	return &Assumer{
		client: client,
		cache:  make(map[string]inventory.Credentials),
		now:    time.Now,
	}
}

// AssumeRole returns credentials for roleName in accountID, reusing a
// cached set when one is still comfortably within its lifetime.
func (a *Assumer) AssumeRole(ctx context.Context, accountID, roleName string) (inventory.Credentials, error) {
	key := accountID + "/" + roleName

	a.mu.Lock()
	cached, ok := a.cache[key]
	a.mu.Unlock()
	if ok && a.now().Add(expiryMargin).Before(cached.Expiration) {
		return cached, nil
	}

	roleArn := fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, roleName)
	out, err := a.client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         awsv2.String(roleArn),
		RoleSessionName: awsv2.String(roleSessionName),
		DurationSeconds: awsv2.Int32(sessionDuration),
	})
	if err != nil {
		return inventory.Credentials{}, fmt.Errorf("assume %s: %w", roleArn, err)
	}
	if out.Credentials == nil {
		return inventory.Credentials{}, fmt.Errorf("assume %s: no credentials returned", roleArn)
	}

	creds := inventory.Credentials{
		AccessKeyID:     awsv2.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: awsv2.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    awsv2.ToString(out.Credentials.SessionToken),
		Expiration:      awsv2.ToTime(out.Credentials.Expiration),
	}

	a.mu.Lock()
	a.cache[key] = creds
	a.mu.Unlock()

	return creds, nil
}

var _ inventory.RoleAssumer = (*Assumer)(nil)
