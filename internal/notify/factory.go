package notify

import (
	"fmt"

	"sportsdatalake/internal/config"
)

// NewPublisher creates the publisher selected by cfg.Adapter. It returns
// nil when notifications are disabled.
func NewPublisher(cfg config.NotifyConfig, sqsClient SQSAPI) (Publisher, error) {
	switch cfg.Adapter {
	case "", config.NotifyAdapterNone:
		return nil, nil
	case config.NotifyAdapterSQS:
		return NewSQSPublisher(sqsClient), nil
	case config.NotifyAdapterRabbitMQ:
		pub, err := DialRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			return nil, err
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("unsupported notify adapter: %s", cfg.Adapter)
	}
}
