package events

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"complexityofneed.org/internal/config"
)

// Publisher delivers an event to its destination.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// SNSClient is the subset of the SNS API used here.
type SNSClient interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher sends events to an SNS topic.
type SNSPublisher struct {
	client   SNSClient
	topicARN string
}

// NewSNSPublisher wraps an SNS client.
func NewSNSPublisher(client SNSClient, topicARN string) *SNSPublisher {
	return &SNSPublisher{client: client, topicARN: topicARN}
}

// NewSNSClient builds a client from the default AWS credential chain.
func NewSNSClient(ctx context.Context, cfg config.EventsConfig) (*sns.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("events: load aws config: %w", err)
	}
	return sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

func (p *SNSPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := evt.Message()
	if err != nil {
		return err
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(p.topicARN),
		Message:           aws.String(body),
		MessageAttributes: attributes(evt),
	})
	if err != nil {
		return fmt.Errorf("events: sns publish: %w", err)
	}
	return nil
}

func attributes(evt Event) map[string]types.MessageAttributeValue {
	str := func(v string) types.MessageAttributeValue {
		return types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}
	return map[string]types.MessageAttributeValue{
		"eventType": str(EventType),
		"version": {
			DataType:    aws.String("Number"),
			StringValue: aws.String(strconv.Itoa(Version)),
		},
		"occurredAt": str(evt.OccurredAt.UTC().Format(time.RFC3339)),
		"detailURL":  str(evt.DetailURL),
	}
}

// LogPublisher writes events to the log. Used when no topic is configured.
type LogPublisher struct {
	Log *slog.Logger
}

func (p LogPublisher) Publish(_ context.Context, evt Event) error {
	body, err := evt.Message()
	if err != nil {
		return err
	}
	p.Log.Info("domain event", "event_type", EventType, "message", body, "detail_url", evt.DetailURL)
	return nil
}
