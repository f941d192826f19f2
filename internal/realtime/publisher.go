package realtime

import (
	"context"
	"fmt"

	"github.com/jwalitptl/lifedrop-api/pkg/messaging"
)

// Publisher addresses rooms on every instance by publishing to the relay
// topic.
type Publisher struct {
	broker messaging.Broker
	topic  string
}

func NewPublisher(broker messaging.Broker, topic string) *Publisher {
	return &Publisher{broker: broker, topic: topic}
}

func (p *Publisher) Publish(ctx context.Context, room, event string, payload interface{}) error {
	env, err := messaging.NewEnvelope(room, event, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	if err := p.broker.Publish(ctx, p.topic, env); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event, err)
	}
	return nil
}
