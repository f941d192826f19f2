package notification

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lifedrop-api/internal/handler/handlertest"
	"github.com/jwalitptl/lifedrop-api/internal/middleware"
	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
)

type mockService struct{ mock.Mock }

func (m *mockService) List(ctx context.Context, filter model.NotificationFilter) ([]*model.Notification, int, error) {
	args := m.Called(ctx, filter)
	ns, _ := args.Get(0).([]*model.Notification)
	return ns, args.Int(1), args.Error(2)
}

func (m *mockService) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	return m.Called(ctx, id, userID).Error(0)
}

func (m *mockService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockService) Stats(ctx context.Context, userID uuid.UUID) (*model.NotificationStats, error) {
	args := m.Called(ctx, userID)
	s, _ := args.Get(0).(*model.NotificationStats)
	return s, args.Error(1)
}

func (m *mockService) PurgeExpired(ctx context.Context, limit int) (int64, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).(int64), args.Error(1)
}

func setup(t *testing.T) (*mockService, *gin.Engine, model.Actor) {
	svc := &mockService{}
	me := model.Actor{UserID: uuid.New(), Role: model.RoleDonor}
	h := NewHandler(svc)
	r := handlertest.Router(t, handlertest.Tokens{"me": me},
		func(g *gin.RouterGroup, mw *middleware.AuthMiddleware) { h.RegisterRoutes(g, mw) })
	t.Cleanup(func() { svc.AssertExpectations(t) })
	return svc, r, me
}

func TestListIsScopedToCaller(t *testing.T) {
	svc, r, me := setup(t)
	svc.On("List", mock.Anything, model.NotificationFilter{
		UserID:     me.UserID,
		UnreadOnly: true,
		Category:   model.CategoryEmergency,
		Pagination: model.Pagination{Page: 1, PageSize: 5},
	}).Return([]*model.Notification{}, 0, nil)

	w := handlertest.Do(t, r, http.MethodGet, "/api/v1/notifications?unread_only=true&category=emergency&limit=5", "me", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestMarkReadOfSomeoneElsesNotification(t *testing.T) {
	svc, r, me := setup(t)
	id := uuid.New()
	svc.On("MarkRead", mock.Anything, id, me.UserID).Return(errors.NotFound("notification", nil))

	w := handlertest.Do(t, r, http.MethodPatch, "/api/v1/notifications/"+id.String()+"/read", "me", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarkAllReadAndStats(t *testing.T) {
	svc, r, me := setup(t)
	svc.On("MarkAllRead", mock.Anything, me.UserID).Return(int64(3), nil)
	svc.On("Stats", mock.Anything, me.UserID).Return(&model.NotificationStats{Total: 7, UnreadCount: 0}, nil)

	w := handlertest.Do(t, r, http.MethodPatch, "/api/v1/notifications/read-all", "me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Updated int64 `json:"updated"`
	}
	handlertest.Decode(t, w).Into(t, &res)
	assert.Equal(t, int64(3), res.Updated)

	w = handlertest.Do(t, r, http.MethodGet, "/api/v1/notifications/stats", "me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats model.NotificationStats
	handlertest.Decode(t, w).Into(t, &stats)
	assert.Equal(t, 7, stats.Total)
}
