package events

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snsTypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSPublisher struct {
	client   snsAPI
	topicArn string
}

func NewSNSPublisher(client snsAPI, topicArn string) *SNSPublisher {
	return &SNSPublisher{client: client, topicArn: topicArn}
}

func (s *SNSPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := e.Marshal()
	if err != nil {
		return err
	}
	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicArn),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]snsTypes.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(string(e.Type))},
			"booking_id": {DataType: aws.String("String"), StringValue: aws.String(e.BookingID)},
		},
	})
	return err
}
