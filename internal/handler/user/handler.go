package user

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lifedrop-api/internal/handler"
	"github.com/jwalitptl/lifedrop-api/internal/middleware"
	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/service/user"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
	"github.com/jwalitptl/lifedrop-api/pkg/httputil"
)

type Handler struct {
	service         user.Service
	defaultRadiusKm float64
}

func NewHandler(service user.Service, defaultRadiusKm float64) *Handler {
	return &Handler{service: service, defaultRadiusKm: defaultRadiusKm}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, mw *middleware.AuthMiddleware) {
	users := r.Group("/users", mw.Authenticate())
	{
		users.GET("/:id", h.GetUser)
		users.PUT("/:id", h.UpdateUser)
		users.GET("/:id/eligibility", h.Eligibility)
		users.PATCH("/:id/verify", mw.RequireRoles(model.RoleAdmin), h.SetVerified)
	}

	donors := r.Group("/donors", mw.Authenticate(), mw.RequireRoles(model.RoleHospitalAdmin, model.RoleAdmin))
	{
		donors.GET("/nearby", h.NearbyDonors)
	}
}

func (h *Handler) GetUser(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	// Donor profiles are visible to hospital staff; everyone else sees only
	// their own.
	if actor.UserID != id && actor.Role == model.RoleDonor {
		httputil.RespondWithError(c, errors.Forbidden("cannot view another user's profile"))
		return
	}

	u, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, u)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UserUpdate
	if !handler.BindJSON(c, &req) {
		return
	}

	u, err := h.service.Update(c.Request.Context(), actor, id, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, u)
}

func (h *Handler) Eligibility(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	if actor.UserID != id && actor.Role == model.RoleDonor {
		httputil.RespondWithError(c, errors.Forbidden("cannot view another donor's eligibility"))
		return
	}

	e, err := h.service.Eligibility(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, e)
}

type verifyRequest struct {
	Verified *bool `json:"verified" binding:"required"`
}

func (h *Handler) SetVerified(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req verifyRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	if err := h.service.SetVerified(c.Request.Context(), id, *req.Verified); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"id": id, "is_verified": *req.Verified})
}

type nearbyQuery struct {
	handler.LocationQuery
	BloodType  string `form:"blood_type"`
	Compatible bool   `form:"compatible"`
}

func (h *Handler) NearbyDonors(c *gin.Context) {
	var q nearbyQuery
	if !handler.BindQuery(c, &q) {
		return
	}
	gq, err := q.Geo(h.defaultRadiusKm)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	matches, err := h.service.NearbyDonors(c.Request.Context(), handler.QueryBloodType(q.BloodType), q.Compatible, gq)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, matches)
}
