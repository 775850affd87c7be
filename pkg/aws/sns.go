package aws

import (
	"context"
	"errors"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSPublisher publishes a raw message body to a topic.
type SNSPublisher interface {
	Publish(ctx context.Context, topicArn string, message []byte) error
}

type snsAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

var ErrNoTopic = errors.New("sns: topic arn is empty")

type SNSClient struct {
	api snsAPI
}

func NewSNSClient(cfg sdkaws.Config) *SNSClient {
	return &SNSClient{api: sns.NewFromConfig(cfg)}
}

func (s *SNSClient) Publish(ctx context.Context, topicArn string, message []byte) error {
	if topicArn == "" {
		return ErrNoTopic
	}
	in := &sns.PublishInput{TopicArn: &topicArn, Message: sdkaws.String(string(message))}
	if _, err := s.api.Publish(ctx, in); err != nil {
		return fmt.Errorf("publish to %s: %w", topicArn, err)
	}
	return nil
}
