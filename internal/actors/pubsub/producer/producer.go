package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/rbroggi/userdir/internal/core/model"
)

// NewProducer creates a new producer.
func NewProducer(topic *pubsub.Topic) (*Producer, error) {
	if topic == nil {
		return nil, errors.New("topic is nil")
	}
	return &Producer{topic: topic}, nil
}

// Producer publishes notifications on a pubsub topic, JSON-encoded. A mailer worker
// on the other end performs the actual delivery.
type Producer struct {
	topic *pubsub.Topic
}

func (p *Producer) Send(ctx context.Context, notification model.Notification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("error marshaling notification: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
	})
	// Block until the result is returned and a server-generated
	// ID is returned for the published message.
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("pubsub: result.Get: %w", err)
	}
	return nil
}
