package notification

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lifedrop-api/internal/handler"
	"github.com/jwalitptl/lifedrop-api/internal/middleware"
	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/service/notification"
	"github.com/jwalitptl/lifedrop-api/pkg/httputil"
)

type Handler struct {
	service notification.Service
}

func NewHandler(service notification.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, mw *middleware.AuthMiddleware) {
	n := r.Group("/notifications", mw.Authenticate())
	{
		n.GET("", h.List)
		n.GET("/stats", h.Stats)
		n.PATCH("/read-all", h.MarkAllRead)
		n.PATCH("/:id/read", h.MarkRead)
	}
}

type listQuery struct {
	UnreadOnly bool   `form:"unread_only"`
	Type       string `form:"type"`
	Category   string `form:"category" binding:"omitempty,oneof=blood_request donation system emergency general"`
	Page       int    `form:"page"`
	// Limit is accepted as an alias of page_size.
	Limit    int `form:"limit"`
	PageSize int `form:"page_size"`
}

// List returns the caller's own notifications, newest first.
func (h *Handler) List(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var q listQuery
	if !handler.BindQuery(c, &q) {
		return
	}
	size := q.PageSize
	if size == 0 {
		size = q.Limit
	}

	filter := model.NotificationFilter{
		UserID:     actor.UserID,
		UnreadOnly: q.UnreadOnly,
		Type:       model.NotificationType(q.Type),
		Category:   model.Category(q.Category),
		Pagination: model.Pagination{Page: q.Page, PageSize: size}.Normalize(),
	}
	ns, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithPagination(c, ns, filter.Page, filter.PageSize, total)
}

func (h *Handler) Stats(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	stats, err := h.service.Stats(c.Request.Context(), actor.UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, stats)
}

func (h *Handler) MarkRead(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), id, actor.UserID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"id": id, "is_read": true})
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	n, err := h.service.MarkAllRead(c.Request.Context(), actor.UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"updated": n})
}
