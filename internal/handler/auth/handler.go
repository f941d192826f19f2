package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lifedrop-api/internal/handler"
	"github.com/jwalitptl/lifedrop-api/internal/middleware"
	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/service/auth"
	"github.com/jwalitptl/lifedrop-api/internal/service/user"
	"github.com/jwalitptl/lifedrop-api/pkg/httputil"
)

type Handler struct {
	auth  auth.Service
	users user.Service
}

func NewHandler(authSvc auth.Service, users user.Service) *Handler {
	return &Handler{auth: authSvc, users: users}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, mw *middleware.AuthMiddleware) {
	g := r.Group("/auth")
	{
		g.POST("/register", h.Register)
		g.POST("/login", h.Login)
		g.GET("/me", mw.Authenticate(), h.Me)
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	u, err := h.users.Register(c.Request.Context(), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, u)
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	token, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, token)
}

func (h *Handler) Me(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	u, err := h.users.Get(c.Request.Context(), actor.UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, u)
}
