package donation

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/lifedrop-api/internal/handler"
	"github.com/jwalitptl/lifedrop-api/internal/middleware"
	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/service/donation"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
	"github.com/jwalitptl/lifedrop-api/pkg/httputil"
)

type Handler struct {
	service donation.Service
}

func NewHandler(service donation.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, mw *middleware.AuthMiddleware) {
	staff := mw.RequireRoles(model.RoleHospitalAdmin, model.RoleAdmin)

	donations := r.Group("/donations", mw.Authenticate())
	{
		donations.POST("", staff, h.Record)
		donations.GET("", h.List)
		donations.GET("/:id", h.Get)
		donations.POST("/:id/use", staff, h.MarkUsed)
		donations.POST("/:id/discard", staff, h.MarkDiscarded)
	}

	r.GET("/hospitals/:id/inventory", mw.Authenticate(), staff, h.Inventory)
	r.GET("/users/:id/donations", mw.Authenticate(), h.DonorHistory)
}

func (h *Handler) Record(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.RecordDonationInput
	if !handler.BindJSON(c, &req) {
		return
	}

	d, err := h.service.Record(c.Request.Context(), actor, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, d)
}

type listQuery struct {
	DonorID     string            `form:"donor_id"`
	HospitalID  string            `form:"hospital_id"`
	BloodType   string            `form:"blood_type"`
	UsageStatus model.UsageStatus `form:"usage_status" binding:"omitempty,oneof=available used discarded expired"`
	model.Pagination
}

// List returns donations. Donors only ever see their own; hospital admins
// only their hospital's.
func (h *Handler) List(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var q listQuery
	if !handler.BindQuery(c, &q) {
		return
	}

	filter := model.DonationFilter{
		BloodType:   handler.QueryBloodType(q.BloodType),
		UsageStatus: q.UsageStatus,
		Pagination:  q.Pagination.Normalize(),
	}
	var err error
	if filter.DonorID, err = optionalID("donor_id", q.DonorID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if filter.HospitalID, err = optionalID("hospital_id", q.HospitalID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	switch actor.Role {
	case model.RoleDonor:
		filter.DonorID = &actor.UserID
	case model.RoleHospitalAdmin:
		if actor.HospitalID == nil {
			httputil.RespondWithError(c, errors.Forbidden("account is not linked to a hospital"))
			return
		}
		filter.HospitalID = actor.HospitalID
	}

	ds, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithPagination(c, ds, filter.Page, filter.PageSize, total)
}

func (h *Handler) Get(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	d, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if d.DonorID != actor.UserID && !actor.ManagesHospital(d.HospitalID) {
		httputil.RespondWithError(c, errors.Forbidden("cannot view this donation"))
		return
	}
	httputil.RespondWithSuccess(c, d)
}

func (h *Handler) MarkUsed(c *gin.Context) {
	h.retire(c, h.service.MarkUsed)
}

func (h *Handler) MarkDiscarded(c *gin.Context) {
	h.retire(c, h.service.MarkDiscarded)
}

func (h *Handler) retire(c *gin.Context, fn func(ctx context.Context, actor model.Actor, id uuid.UUID, in model.UsageInput) (*model.Donation, error)) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UsageInput
	if !handler.BindOptionalJSON(c, &req) {
		return
	}

	d, err := fn(c.Request.Context(), actor, id, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, d)
}

func (h *Handler) Inventory(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	if !actor.ManagesHospital(id) {
		httputil.RespondWithError(c, errors.Forbidden("cannot view another hospital's inventory"))
		return
	}
	var page model.Pagination
	if !handler.BindQuery(c, &page) {
		return
	}
	page = page.Normalize()

	ds, total, err := h.service.Available(c.Request.Context(), id, handler.QueryBloodType(c.Query("blood_type")), page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithPagination(c, ds, page.Page, page.PageSize, total)
}

func (h *Handler) DonorHistory(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	if actor.UserID != id && actor.Role == model.RoleDonor {
		httputil.RespondWithError(c, errors.Forbidden("cannot view another donor's history"))
		return
	}
	var page model.Pagination
	if !handler.BindQuery(c, &page) {
		return
	}

	filter := model.DonationFilter{DonorID: &id, Pagination: page.Normalize()}
	ds, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithPagination(c, ds, filter.Page, filter.PageSize, total)
}

func optionalID(field, raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, errors.NewValidation("invalid filter").Field(field, "must be a valid UUID")
	}
	return &id, nil
}
