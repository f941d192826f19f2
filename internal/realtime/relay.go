package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jwalitptl/lifedrop-api/pkg/logger"
	"github.com/jwalitptl/lifedrop-api/pkg/messaging"
)

var errSubscriptionClosed = errors.New("relay subscription closed")

// Relay forwards envelopes published on the broker topic to the local
// registry. It resubscribes with exponential backoff when the subscription
// drops.
type Relay struct {
	broker   messaging.Broker
	topic    string
	registry *Registry
	log      *logger.Logger

	// MaxInterval caps the wait between resubscribe attempts.
	MaxInterval time.Duration
}

func NewRelay(broker messaging.Broker, topic string, registry *Registry, log *logger.Logger) *Relay {
	return &Relay{
		broker:      broker,
		topic:       topic,
		registry:    registry,
		log:         log.With("component", "realtime_relay"),
		MaxInterval: 30 * time.Second,
	}
}

// Run blocks until ctx is done or the broker is closed.
func (r *Relay) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = r.MaxInterval
	b.MaxElapsedTime = 0

	op := func() error {
		started := time.Now()
		err := messaging.Consume(ctx, r.broker, r.topic, r.deliver, func(err error) {
			r.log.Warn("dropping malformed realtime envelope", "error", err.Error())
		})
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if errors.Is(err, messaging.ErrClosed) {
			return backoff.Permanent(err)
		}
		if time.Since(started) > time.Minute {
			b.Reset()
		}
		if err == nil {
			err = errSubscriptionClosed
		}
		return err
	}

	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		r.log.Warn("realtime relay resubscribing", "error", err.Error(), "wait", wait.String())
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (r *Relay) deliver(raw []byte) error {
	var env messaging.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Room == "" || env.Event == "" {
		return fmt.Errorf("envelope missing room or event")
	}
	r.registry.Emit(env.Room, env.Event, env.Payload)
	return nil
}
