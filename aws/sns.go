package aws

import (
	"context"
	"fmt"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/phlukman/inventory-tag/observe"
)

// SNSClient is the subset of the SNS API used by Publisher.
type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher sends run notifications to an SNS topic.
type Publisher struct {
	client   SNSClient
	topicARN string
	log      observe.Logger
}

// NewPublisher returns a Publisher for the given topic.
func NewPublisher(client SNSClient, topicARN string, log observe.Logger) *Publisher {
	if log == nil {
		log = observe.NewNop()
	}
	return &Publisher{client: client, topicARN: topicARN, log: log}
}

// Publish sends one message with the given string attributes and
// returns the SNS message id.
func (p *Publisher) Publish(ctx context.Context, message string, attributes map[string]string) (string, error) {
	in := &sns.PublishInput{
		TopicArn: awsv2.String(p.topicARN),
		Message:  awsv2.String(message),
	}
	if len(attributes) > 0 {
		in.MessageAttributes = make(map[string]snstypes.MessageAttributeValue, len(attributes))
		for k, v := range attributes {
			in.MessageAttributes[k] = snstypes.MessageAttributeValue{
				DataType:    awsv2.String("String"),
				StringValue: awsv2.String(v),
			}
		}
	}

	out, err := p.client.Publish(ctx, in)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", p.topicARN, err)
	}
	return awsv2.ToString(out.MessageId), nil
}

// PublishResult is the outcome of one message in a batch.
type PublishResult struct {
	Index     int
	MessageID string
	Err       error
}

// BatchSummary aggregates a batch publish: every message attempted,
// split by outcome.
type BatchSummary struct {
	Total      int
	Successful []PublishResult
	Failed     []PublishResult
}

// PublishBatch publishes the messages one by one with shared
// attributes. A failed message does not stop the batch; each failure
// is recorded in the summary.
func (p *Publisher) PublishBatch(ctx context.Context, messages []string, attributes map[string]string) BatchSummary {
	summary := BatchSummary{Total: len(messages)}
	for i, msg := range messages {
		id, err := p.Publish(ctx, msg, attributes)
		if err != nil {
			p.log.Error(ctx, "batch message failed",
				observe.Field{Key: "index", Value: i},
				observe.Field{Key: "topic", Value: p.topicARN},
				observe.Field{Key: "error", Value: err.Error()},
			)
			summary.Failed = append(summary.Failed, PublishResult{Index: i, Err: err})
			continue
		}
		summary.Successful = append(summary.Successful, PublishResult{Index: i, MessageID: id})
	}
	return summary
}
