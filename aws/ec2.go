package aws

import (
	"context"
	"fmt"
	"strconv"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/phlukman/inventory-tag/inventory"
)

// EC2Client is the subset of the EC2 API used by ImageSource.
type EC2Client interface {
	DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
}

// ImageSource inventories the account's own AMIs and their tags.
type ImageSource struct {
	clients func(inventory.Session) EC2Client
}

// NewImageSource returns an ImageSource that builds per-session EC2
// clients from the assumed-role credentials.
func NewImageSource(base awsv2.Config) *ImageSource {
	return &ImageSource{clients: func(sess inventory.Session) EC2Client {
		return ec2.NewFromConfig(SessionConfig(base, sess))
	}}
}

func (s *ImageSource) Name() string { return "ec2-images" }

// ListPage lists one page of images owned by the account.
func (s *ImageSource) ListPage(ctx context.Context, sess inventory.Session, cursor string) (inventory.Page, error) {
	in := &ec2.DescribeImagesInput{
		Owners:     []string{"self"},
		MaxResults: awsv2.Int32(100),
	}
	if cursor != "" {
		in.NextToken = awsv2.String(cursor)
	}

	out, err := s.clients(sess).DescribeImages(ctx, in)
	if err != nil {
		return inventory.Page{}, fmt.Errorf("describe images in %s: %w", sess.AccountID, err)
	}

	page := inventory.Page{NextCursor: awsv2.ToString(out.NextToken)}
	for _, img := range out.Images {
		page.Items = append(page.Items, inventory.Item{ID: awsv2.ToString(img.ImageId)})
	}
	return page, nil
}

// GetDetail describes a single image and extracts its metadata and
// tags.
func (s *ImageSource) GetDetail(ctx context.Context, sess inventory.Session, item inventory.Item) (inventory.Record, error) {
	out, err := s.clients(sess).DescribeImages(ctx, &ec2.DescribeImagesInput{
		ImageIds: []string{item.ID},
	})
	if err != nil {
		return inventory.Record{}, fmt.Errorf("describe image %s: %w", item.ID, err)
	}
	if len(out.Images) == 0 {
		return inventory.Record{}, fmt.Errorf("describe image %s: not found", item.ID)
	}
	img := out.Images[0]

	return inventory.Record{
		ID:        item.ID,
		AccountID: sess.AccountID,
		Region:    sess.Region,
		Service:   s.Name(),
		Attributes: map[string]string{
			"name":          awsv2.ToString(img.Name),
			"creation_date": awsv2.ToString(img.CreationDate),
			"state":         string(img.State),
			"public":        strconv.FormatBool(awsv2.ToBool(img.Public)),
		},
		Tags: ec2TagMap(img.Tags),
	}, nil
}

func ec2TagMap(tags []ec2types.Tag) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		m[awsv2.ToString(t.Key)] = awsv2.ToString(t.Value)
	}
	return m
}

var _ inventory.Source = (*ImageSource)(nil)
