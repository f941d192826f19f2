package hospital

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lifedrop-api/internal/handler"
	"github.com/jwalitptl/lifedrop-api/internal/middleware"
	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/service/hospital"
	"github.com/jwalitptl/lifedrop-api/pkg/httputil"
)

type Handler struct {
	service         hospital.Service
	defaultRadiusKm float64
}

func NewHandler(service hospital.Service, defaultRadiusKm float64) *Handler {
	return &Handler{service: service, defaultRadiusKm: defaultRadiusKm}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, mw *middleware.AuthMiddleware) {
	hospitals := r.Group("/hospitals")
	{
		// Registration is open; hospitals stay unverified until an admin
		// reviews them.
		hospitals.POST("", h.Register)
		hospitals.GET("", h.List)
		hospitals.GET("/nearby", h.Nearby)
		hospitals.GET("/with-stock", h.WithStock)
		hospitals.GET("/:id", h.Get)
		hospitals.GET("/:id/stock", h.Stock)

		hospitals.PUT("/:id/stock", mw.Authenticate(), mw.RequireRoles(model.RoleHospitalAdmin, model.RoleAdmin), h.SetStock)
		hospitals.PATCH("/:id/verify", mw.Authenticate(), mw.RequireRoles(model.RoleAdmin), h.Verify)
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterHospitalInput
	if !handler.BindJSON(c, &req) {
		return
	}

	hosp, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, hosp)
}

type listQuery struct {
	City         string `form:"city"`
	State        string `form:"state"`
	OnlyVerified bool   `form:"verified"`
	model.Pagination
}

func (h *Handler) List(c *gin.Context) {
	var q listQuery
	if !handler.BindQuery(c, &q) {
		return
	}

	filter := model.HospitalFilter{
		City:         q.City,
		State:        q.State,
		OnlyVerified: q.OnlyVerified,
		OnlyActive:   true,
		Pagination:   q.Pagination.Normalize(),
	}
	hs, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithPagination(c, hs, filter.Page, filter.PageSize, total)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	hosp, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, hosp)
}

func (h *Handler) Stock(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	stock, err := h.service.Stock(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, stock)
}

func (h *Handler) SetStock(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.StockUpdate
	if !handler.BindJSON(c, &req) {
		return
	}

	stock, err := h.service.SetStock(c.Request.Context(), actor, id, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, stock)
}

func (h *Handler) Verify(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	hosp, err := h.service.Verify(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, hosp)
}

type nearbyQuery struct {
	handler.LocationQuery
	OnlyVerified bool `form:"verified"`
}

func (h *Handler) Nearby(c *gin.Context) {
	var q nearbyQuery
	if !handler.BindQuery(c, &q) {
		return
	}
	gq, err := q.Geo(h.defaultRadiusKm)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	matches, err := h.service.Nearby(c.Request.Context(), gq, q.OnlyVerified)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, matches)
}

type stockQuery struct {
	BloodType string `form:"blood_type" binding:"required"`
	MinUnits  int    `form:"min_units" binding:"min=0"`
}

func (h *Handler) WithStock(c *gin.Context) {
	var q stockQuery
	if !handler.BindQuery(c, &q) {
		return
	}

	hs, err := h.service.WithStock(c.Request.Context(), handler.QueryBloodType(q.BloodType), q.MinUnits)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, hs)
}
