package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/insightora-auth/internal/config"
	"github.com/insightora-auth/internal/domain"
)

// publisher is the subset of the SNS client the sender needs.
type publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, opts ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// TopicMailer hands rendered emails to an SNS topic; a subscriber performs
// the actual delivery.
type TopicMailer struct {
	client   publisher
	topicARN string
}

func NewTopicMailer(ctx context.Context, cfg *config.Config) (*TopicMailer, error) {
	if cfg.SNSMailTopicARN == "" {
		return nil, errors.New("SNS_MAIL_TOPIC_ARN is required for the sns notifier")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.SNSRegion)}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	clientOpts := []func(*sns.Options){}
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		})
	}
	return &TopicMailer{client: sns.NewFromConfig(awsCfg, clientOpts...), topicARN: cfg.SNSMailTopicARN}, nil
}

func (s *TopicMailer) Send(ctx context.Context, e domain.Email) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}
	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind": {DataType: aws.String("String"), StringValue: aws.String("email")},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
