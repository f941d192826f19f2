package messaging

import (
	"context"
	"fmt"
)

// Consume subscribes to topic and hands each message to handle until ctx is
// done or the subscription closes. Handler errors go to onErr and do not stop
// consumption.
func Consume(ctx context.Context, broker Broker, topic string, handle func([]byte) error, onErr func(error)) error {
	msgChan, err := broker.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgChan:
			if !ok {
				return nil
			}
			if err := handle(msg); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}
