package aws

import (
	"context"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/phlukman/inventory-tag/inventory"
)

// options holds optional overrides for AWS config loading.
type options struct {
	profile string
	region  string
	retryer func() awsv2.Retryer
}

// Option customizes how AWS config is loaded.
// Default behavior (no options) inherits the shell environment and
// shared config chain (AWS_PROFILE, ~/.aws/config, IMDS, etc.).
type Option func(*options)

// WithProfile sets the shared config profile.
func WithProfile(profile string) Option {
	return func(o *options) { o.profile = profile }
}

// WithRegion sets the region override.
func WithRegion(region string) Option {
	return func(o *options) { o.region = region }
}

// WithRetryer injects a custom retryer; if not set, SDK defaults apply.
func WithRetryer(newRetryer func() awsv2.Retryer) Option {
	return func(o *options) { o.retryer = newRetryer }
}

// LoadConfig loads AWS SDK v2 config for the caller's own account. By
// default it inherits the ambient AWS setup; options can override
// profile, region, and retryer without changing callers.
func LoadConfig(ctx context.Context, opts ...Option) (awsv2.Config, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var loadOpts []func(*config.LoadOptions) error
	if o.profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(o.profile))
	}
	if o.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(o.region))
	}
	if o.retryer != nil {
		loadOpts = append(loadOpts, config.WithRetryer(o.retryer))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return awsv2.Config{}, err
	}
	return cfg, nil
}

// SessionConfig derives an SDK config for a member-account session from
// its assumed-role credentials. The returned config targets the
// session's region.
func SessionConfig(base awsv2.Config, sess inventory.Session) awsv2.Config {
	cfg := base.Copy()
	cfg.Region = sess.Region
	cfg.Credentials = credentials.NewStaticCredentialsProvider(
		sess.Credentials.AccessKeyID,
		sess.Credentials.SecretAccessKey,
		sess.Credentials.SessionToken,
	)
	return cfg
}
