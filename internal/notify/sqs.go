package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSAPI is the subset of the SQS client the publisher calls.
type SQSAPI interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends messages to SQS queues addressed by name or URL.
type SQSPublisher struct {
	client SQSAPI

	mu sync.Mutex
	// queue name -> URL
	queueURLs map[string]string
}

// NewSQSPublisher creates an SQSPublisher.
func NewSQSPublisher(client SQSAPI) *SQSPublisher {
	return &SQSPublisher{
		client:    client,
		queueURLs: make(map[string]string),
	}
}

func (p *SQSPublisher) queueURL(ctx context.Context, target string) (string, error) {
	if strings.HasPrefix(target, "https://") || strings.HasPrefix(target, "http://") {
		return target, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if url, ok := p.queueURLs[target]; ok {
		return url, nil
	}

	result, err := p.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(target),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get queue URL for %s: %w", target, err)
	}

	p.queueURLs[target] = aws.ToString(result.QueueUrl)
	return p.queueURLs[target], nil
}

// Publish sends body as a single message.
func (p *SQSPublisher) Publish(ctx context.Context, target string, body []byte) error {
	url, err := p.queueURL(ctx, target)
	if err != nil {
		return err
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close is a no-op; the SQS client holds no connection.
func (p *SQSPublisher) Close() error {
	return nil
}
