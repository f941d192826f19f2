package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/realtime"
	"github.com/jwalitptl/lifedrop-api/internal/repository"
	"github.com/jwalitptl/lifedrop-api/pkg/logger"
)

// Service is the read side of a user's inbox.
type Service interface {
	List(ctx context.Context, filter model.NotificationFilter) ([]*model.Notification, int, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Stats(ctx context.Context, userID uuid.UUID) (*model.NotificationStats, error)
	// PurgeExpired deletes up to limit notifications past their expiry.
	PurgeExpired(ctx context.Context, limit int) (int64, error)
}

type service struct {
	repo      repository.NotificationRepository
	publisher RoomPublisher
	log       *logger.Logger
	now       func() time.Time
}

func NewService(repo repository.NotificationRepository, publisher RoomPublisher, log *logger.Logger) Service {
	return &service{repo: repo, publisher: publisher, log: log, now: time.Now}
}

func (s *service) List(ctx context.Context, filter model.NotificationFilter) ([]*model.Notification, int, error) {
	filter.Pagination = filter.Pagination.Normalize()
	now := s.now().UTC()
	filter.ActiveAt = &now
	notifications, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, total, nil
}

// MarkRead also tells the user's other sessions so their badges update.
func (s *service) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	if err := s.repo.MarkRead(ctx, id, userID, s.now().UTC()); err != nil {
		return err
	}
	s.announce(ctx, userID, map[string]interface{}{"notification_id": id})
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.announce(ctx, userID, map[string]interface{}{"all": true, "count": n})
	}
	return n, nil
}

func (s *service) Stats(ctx context.Context, userID uuid.UUID) (*model.NotificationStats, error) {
	return s.repo.Stats(ctx, userID, s.now().UTC())
}

func (s *service) PurgeExpired(ctx context.Context, limit int) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now().UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired notifications: %w", err)
	}
	if n > 0 {
		s.log.Info("expired notifications purged", "count", n)
	}
	return n, nil
}

func (s *service) announce(ctx context.Context, userID uuid.UUID, payload map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, realtime.UserRoom(userID), realtime.EventNotificationRead, payload); err != nil {
		s.log.Warn("failed to announce notification read", "user_id", userID, "error", err.Error())
	}
}
