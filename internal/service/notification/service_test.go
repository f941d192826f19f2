package notification

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/repository/mocks"
	apperrors "github.com/jwalitptl/lifedrop-api/pkg/errors"
	"github.com/jwalitptl/lifedrop-api/pkg/logger"
)

func TestServiceListNormalizesPagingAndHidesExpired(t *testing.T) {
	repo := &mocks.NotificationRepository{}
	svc := NewService(repo, nil, logger.Nop()).(*service)
	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	user := uuid.New()

	repo.On("List", mock.Anything, mock.MatchedBy(func(f model.NotificationFilter) bool {
		return f.UserID == user && f.UnreadOnly &&
			f.Pagination == model.Pagination{Page: 1, PageSize: 20} &&
			f.ActiveAt != nil && f.ActiveAt.Equal(clock)
	})).Return([]*model.Notification{{UserID: user}}, 1, nil)

	list, total, err := svc.List(context.Background(), model.NotificationFilter{UserID: user, UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, total)
}

func TestServiceMarkReadAnnounces(t *testing.T) {
	repo := &mocks.NotificationRepository{}
	pub := &fakePublisher{}
	svc := NewService(repo, pub, logger.Nop())
	user, id := uuid.New(), uuid.New()

	repo.On("MarkRead", mock.Anything, id, user, mock.Anything).Return(nil)
	require.NoError(t, svc.MarkRead(context.Background(), id, user))
	assert.Equal(t, []string{"user_" + user.String()}, pub.rooms)
	assert.Equal(t, []string{"notification_read"}, pub.events)
}

func TestServiceMarkReadNotFound(t *testing.T) {
	repo := &mocks.NotificationRepository{}
	pub := &fakePublisher{}
	svc := NewService(repo, pub, logger.Nop())

	repo.On("MarkRead", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(apperrors.NotFound("notification", nil))
	err := svc.MarkRead(context.Background(), uuid.New(), uuid.New())
	assert.True(t, apperrors.IsNotFound(err))
	assert.Empty(t, pub.rooms)
}

func TestServiceMarkAllRead(t *testing.T) {
	repo := &mocks.NotificationRepository{}
	pub := &fakePublisher{}
	svc := NewService(repo, pub, logger.Nop())
	user := uuid.New()

	repo.On("MarkAllRead", mock.Anything, user, mock.Anything).Return(int64(0), nil).Once()
	n, err := svc.MarkAllRead(context.Background(), user)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, pub.rooms)

	repo.On("MarkAllRead", mock.Anything, user, mock.Anything).Return(int64(4), nil).Once()
	n, err = svc.MarkAllRead(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Len(t, pub.rooms, 1)
}

func TestServiceStatsCountsLiveNotifications(t *testing.T) {
	repo := &mocks.NotificationRepository{}
	svc := NewService(repo, nil, logger.Nop()).(*service)
	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	user := uuid.New()

	repo.On("Stats", mock.Anything, user, clock).Return(&model.NotificationStats{Total: 2}, nil)
	stats, err := svc.Stats(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	repo.AssertExpectations(t)
}

func TestServicePurgeExpired(t *testing.T) {
	repo := &mocks.NotificationRepository{}
	svc := NewService(repo, nil, logger.Nop()).(*service)
	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	repo.On("DeleteExpired", mock.Anything, clock, 50).Return(int64(3), nil).Once()
	n, err := svc.PurgeExpired(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	repo.On("DeleteExpired", mock.Anything, clock, 50).Return(int64(0), stderrors.New("connection reset")).Once()
	_, err = svc.PurgeExpired(context.Background(), 50)
	assert.ErrorContains(t, err, "failed to purge expired notifications")
	repo.AssertExpectations(t)
}
