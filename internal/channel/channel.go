// Package channel delivers persisted notifications to users over the
// out-of-band channels: realtime sessions, push and email.
package channel

import (
	"context"
	"errors"

	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/pkg/circuitbreaker"
)

const (
	NameRealtime = "in_app"
	NamePush     = "push"
	NameEmail    = "email"
)

// ErrSkipped means the channel did not apply to the recipient, for example a
// user without a device token. It is not a delivery failure.
var ErrSkipped = errors.New("channel skipped")

type Channel interface {
	Name() string
	Send(ctx context.Context, recipient *model.User, n *model.Notification) error
}

// Enabled reports whether methods selects the channel named name.
func Enabled(methods model.DeliveryMethods, name string) bool {
	switch name {
	case NameRealtime:
		return methods.InApp
	case NamePush:
		return methods.Push
	case NameEmail:
		return methods.Email
	}
	return false
}

type guarded struct {
	Channel
	cb *circuitbreaker.CircuitBreaker
}

// WithBreaker fails fast while ch keeps failing. Skips do not count as
// failures.
func WithBreaker(ch Channel, cb *circuitbreaker.CircuitBreaker) Channel {
	return &guarded{Channel: ch, cb: cb}
}

func (g *guarded) Send(ctx context.Context, recipient *model.User, n *model.Notification) error {
	skipped := false
	err := g.cb.Execute(func() error {
		err := g.Channel.Send(ctx, recipient, n)
		if errors.Is(err, ErrSkipped) {
			skipped = true
			return nil
		}
		return err
	})
	if skipped {
		return ErrSkipped
	}
	return err
}
