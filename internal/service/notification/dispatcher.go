package notification

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/lifedrop-api/internal/channel"
	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/realtime"
	"github.com/jwalitptl/lifedrop-api/internal/repository"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
	"github.com/jwalitptl/lifedrop-api/pkg/logger"
	"github.com/jwalitptl/lifedrop-api/pkg/metrics"
)

const (
	defaultChannelTimeout = 5 * time.Second
	defaultConcurrency    = 16
)

// Intent is what to notify about. Title and message always come from the
// type's template rendered with Data.
type Intent struct {
	Type           model.NotificationType
	Data           model.JSONMap
	BloodRequestID *uuid.UUID
	HospitalID     *uuid.UUID
	SenderType     model.SenderType
	SenderID       *uuid.UUID
	ActionURL      string
	// ExpiresAt overrides the type's default lifetime.
	ExpiresAt *time.Time
}

func (i Intent) Validate() error {
	if !i.Type.Valid() {
		return errors.NewValidation("invalid notification intent").Field("type", fmt.Sprintf("unknown notification type %q", i.Type))
	}
	return nil
}

type ChannelOutcome string

const (
	OutcomeSent    ChannelOutcome = "sent"
	OutcomeSkipped ChannelOutcome = "skipped"
	OutcomeFailed  ChannelOutcome = "failed"
)

// Delivery is the outcome for one recipient.
type Delivery struct {
	UserID         uuid.UUID                 `json:"user_id"`
	NotificationID *uuid.UUID                `json:"notification_id,omitempty"`
	Channels       map[string]ChannelOutcome `json:"channels,omitempty"`
	Error          string                    `json:"error,omitempty"`

	// Err is a *errors.PersistenceFailure when the record was not stored.
	Err error `json:"-"`
	// ChannelErrors holds one *errors.DeliveryChannelFailure per failed channel.
	ChannelErrors []error `json:"-"`
}

type DispatchResult struct {
	Notifications []*model.Notification `json:"notifications"`
	Deliveries    []Delivery            `json:"deliveries"`
	// Failed and Sent count recipients per channel.
	Failed          map[string]int `json:"failed"`
	Sent            map[string]int `json:"sent"`
	Skipped         map[string]int `json:"skipped"`
	PersistFailures int            `json:"persist_failures"`
}

type Dispatcher interface {
	// Dispatch persists one notification per resolved recipient and pushes
	// each over the enabled channels. It fails only for an invalid intent or
	// audience, or when the audience cannot be resolved; per-recipient and
	// per-channel failures are reported in the result.
	Dispatch(ctx context.Context, intent Intent, audience Audience, methods model.DeliveryMethods) (*DispatchResult, error)
}

// RoomPublisher broadcasts to realtime rooms.
type RoomPublisher interface {
	Publish(ctx context.Context, room, event string, payload interface{}) error
}

type Options struct {
	ChannelTimeout time.Duration
	MaxConcurrency int
}

type dispatcher struct {
	repo      repository.NotificationRepository
	resolver  resolver
	channels  []channel.Channel
	publisher RoomPublisher
	opts      Options
	log       *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewDispatcher(
	repo repository.NotificationRepository,
	users repository.UserRepository,
	channels []channel.Channel,
	publisher RoomPublisher,
	opts Options,
	log *logger.Logger,
	m *metrics.Metrics,
) Dispatcher {
	if opts.ChannelTimeout <= 0 {
		opts.ChannelTimeout = defaultChannelTimeout
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultConcurrency
	}
	return &dispatcher{
		repo:      repo,
		resolver:  resolver{users: users},
		channels:  channels,
		publisher: publisher,
		opts:      opts,
		log:       log.With("component", "notification_dispatcher"),
		metrics:   m,
		now:       time.Now,
	}
}

func (d *dispatcher) Dispatch(ctx context.Context, intent Intent, audience Audience, methods model.DeliveryMethods) (*DispatchResult, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if err := audience.Validate(); err != nil {
		return nil, err
	}
	if !methods.Any() {
		methods = model.AllDeliveryMethods()
	}

	// Delivery outlives the caller; only the per-channel timeouts bound it.
	ctx = context.WithoutCancel(ctx)
	started := time.Now()
	now := d.now().UTC()

	users, err := d.resolver.resolve(ctx, audience, now)
	if err != nil {
		return nil, err
	}

	deliveries := make([]Delivery, len(users))
	notifications := make([]*model.Notification, len(users))

	var g errgroup.Group
	g.SetLimit(d.opts.MaxConcurrency)
	for i, u := range users {
		g.Go(func() error {
			deliveries[i], notifications[i] = d.deliver(ctx, intent, u, methods, now)
			return nil
		})
	}
	_ = g.Wait()

	result := &DispatchResult{
		Notifications: make([]*model.Notification, 0, len(users)),
		Deliveries:    deliveries,
		Failed:        make(map[string]int),
		Sent:          make(map[string]int),
		Skipped:       make(map[string]int),
	}
	for i, del := range deliveries {
		if notifications[i] == nil {
			result.PersistFailures++
			continue
		}
		result.Notifications = append(result.Notifications, notifications[i])
		for name, outcome := range del.Channels {
			switch outcome {
			case OutcomeSent:
				result.Sent[name]++
			case OutcomeSkipped:
				result.Skipped[name]++
			case OutcomeFailed:
				result.Failed[name]++
			}
		}
	}

	d.broadcast(ctx, intent, audience, methods)

	d.metrics.NotificationsDispatched.WithLabelValues(string(intent.Type)).Inc()
	d.metrics.DispatchLatency.Observe(time.Since(started).Seconds())
	d.log.Info("notification dispatched",
		"type", intent.Type,
		"audience", audience.Kind,
		"recipients", len(users),
		"persisted", len(result.Notifications),
		"persist_failures", result.PersistFailures,
		"channel_failures", result.Failed,
	)
	return result, nil
}

func (d *dispatcher) deliver(ctx context.Context, intent Intent, user *model.User, methods model.DeliveryMethods, now time.Time) (Delivery, *model.Notification) {
	del := Delivery{UserID: user.ID}

	n, err := compose(intent, user.ID, methods, now)
	if err == nil {
		err = d.repo.Create(ctx, n)
	}
	if err != nil {
		d.metrics.NotificationsPersisted.WithLabelValues("failed").Inc()
		d.log.Error(err, "failed to persist notification", "user_id", user.ID, "type", intent.Type)
		del.Err = &errors.PersistenceFailure{Entity: "notification", Err: err}
		del.Error = del.Err.Error()
		return del, nil
	}
	d.metrics.NotificationsPersisted.WithLabelValues("ok").Inc()
	id := n.ID
	del.NotificationID = &id

	enabled := make([]channel.Channel, 0, len(d.channels))
	for _, ch := range d.channels {
		if channel.Enabled(methods, ch.Name()) {
			enabled = append(enabled, ch)
		}
	}
	outcomes := make([]ChannelOutcome, len(enabled))
	failures := make([]error, len(enabled))

	var g errgroup.Group
	for i, ch := range enabled {
		g.Go(func() error {
			outcomes[i], failures[i] = d.send(ctx, ch, user, n)
			return nil
		})
	}
	_ = g.Wait()

	del.Channels = make(map[string]ChannelOutcome, len(enabled))
	anySent := false
	for i, ch := range enabled {
		del.Channels[ch.Name()] = outcomes[i]
		if outcomes[i] == OutcomeSent {
			anySent = true
		}
		if failures[i] != nil {
			del.ChannelErrors = append(del.ChannelErrors, failures[i])
		}
	}

	if anySent {
		sentAt := d.now().UTC()
		if err := d.repo.MarkSent(ctx, n.ID, sentAt); err != nil {
			d.log.Warn("failed to mark notification sent", "notification_id", n.ID, "error", err.Error())
		} else {
			n.IsSent = true
			n.SentAt = &sentAt
		}
	}
	return del, n
}

func (d *dispatcher) send(ctx context.Context, ch channel.Channel, user *model.User, n *model.Notification) (ChannelOutcome, error) {
	cctx, cancel := context.WithTimeout(ctx, d.opts.ChannelTimeout)
	defer cancel()

	started := time.Now()
	err := ch.Send(cctx, user, n)
	d.metrics.ChannelLatency.WithLabelValues(ch.Name()).Observe(time.Since(started).Seconds())

	switch {
	case err == nil:
		d.metrics.ChannelSends.WithLabelValues(ch.Name(), string(OutcomeSent)).Inc()
		return OutcomeSent, nil
	case stderrors.Is(err, channel.ErrSkipped):
		d.metrics.ChannelSends.WithLabelValues(ch.Name(), string(OutcomeSkipped)).Inc()
		return OutcomeSkipped, nil
	}

	d.metrics.ChannelSends.WithLabelValues(ch.Name(), string(OutcomeFailed)).Inc()
	d.log.Warn("notification channel failed",
		"channel", ch.Name(), "user_id", user.ID, "notification_id", n.ID, "error", err.Error())
	return OutcomeFailed, &errors.DeliveryChannelFailure{Channel: ch.Name(), UserID: user.ID.String(), Err: err}
}

// broadcast emits one room event for group audiences so clients that joined
// the room see it even if they are not recipients.
func (d *dispatcher) broadcast(ctx context.Context, intent Intent, audience Audience, methods model.DeliveryMethods) {
	room := audience.Room()
	if room == "" || !methods.InApp || d.publisher == nil {
		return
	}

	c, err := render(intent.Type, intent.Data)
	if err != nil {
		return
	}
	event := realtime.EventNotification
	switch intent.Type {
	case model.NotificationBloodRequestCreated:
		event = realtime.EventNewBloodRequest
	case model.NotificationUrgentBloodNeeded, model.NotificationEmergencyAlert:
		event = realtime.EventUrgentRequest
	}

	payload := map[string]interface{}{
		"type":             intent.Type,
		"title":            c.Title,
		"message":          c.Message,
		"priority":         c.Priority,
		"blood_request_id": intent.BloodRequestID,
		"data":             intent.Data,
	}
	if err := d.publisher.Publish(ctx, room, event, payload); err != nil {
		d.log.Warn("room broadcast failed", "room", room, "error", err.Error())
	}
}

func compose(intent Intent, userID uuid.UUID, methods model.DeliveryMethods, now time.Time) (*model.Notification, error) {
	c, err := render(intent.Type, intent.Data)
	if err != nil {
		return nil, err
	}

	data := make(model.JSONMap, len(intent.Data))
	for k, v := range intent.Data {
		data[k] = v
	}
	sender := intent.SenderType
	if sender == "" {
		sender = model.SenderSystem
	}

	n := &model.Notification{
		Base:            model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		UserID:          userID,
		Type:            intent.Type,
		Title:           c.Title,
		Message:         c.Message,
		Priority:        c.Priority,
		Category:        c.Category,
		BloodRequestID:  intent.BloodRequestID,
		HospitalID:      intent.HospitalID,
		Data:            data,
		ActionRequired:  c.ActionRequired,
		ActionType:      c.ActionType,
		ActionURL:       intent.ActionURL,
		DeliveryMethods: methods,
		SenderType:      sender,
		SenderID:        intent.SenderID,
		ExpiresAt:       intent.ExpiresAt,
	}
	if n.ExpiresAt == nil && c.TTL > 0 {
		exp := now.Add(c.TTL)
		n.ExpiresAt = &exp
	}
	return n, nil
}
