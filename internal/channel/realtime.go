package channel

import (
	"context"

	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/realtime"
)

// Realtime publishes the notification to the recipient's room. Every API
// instance relays the topic to its own connected sessions.
type Realtime struct {
	publisher *realtime.Publisher
}

func NewRealtime(publisher *realtime.Publisher) *Realtime {
	return &Realtime{publisher: publisher}
}

func (r *Realtime) Name() string { return NameRealtime }

func (r *Realtime) Send(ctx context.Context, recipient *model.User, n *model.Notification) error {
	return r.publisher.Publish(ctx, realtime.UserRoom(recipient.ID), realtime.EventNotification, n)
}
