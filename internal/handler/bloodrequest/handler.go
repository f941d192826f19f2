package bloodrequest

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/lifedrop-api/internal/handler"
	"github.com/jwalitptl/lifedrop-api/internal/middleware"
	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/service/bloodrequest"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
	"github.com/jwalitptl/lifedrop-api/pkg/httputil"
)

// Profiles looks up the caller's own profile, used to default searches to
// the donor's blood type.
type Profiles interface {
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type Handler struct {
	service         bloodrequest.Service
	profiles        Profiles
	defaultRadiusKm float64
}

func NewHandler(service bloodrequest.Service, profiles Profiles, defaultRadiusKm float64) *Handler {
	return &Handler{service: service, profiles: profiles, defaultRadiusKm: defaultRadiusKm}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, mw *middleware.AuthMiddleware) {
	requests := r.Group("/blood-requests", mw.Authenticate())
	{
		requests.POST("", h.Create)
		requests.GET("", h.List)
		requests.GET("/urgent", h.Urgent)
		requests.GET("/matching", mw.RequireRoles(model.RoleDonor), h.Matching)
		requests.GET("/:id", h.Get)

		requests.POST("/:id/accept", h.Accept)
		requests.POST("/:id/reject", h.Reject)
		requests.POST("/:id/complete", h.Complete)
		requests.POST("/:id/cancel", h.Cancel)
	}
}

func (h *Handler) Create(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var req model.CreateBloodRequestInput
	if !handler.BindJSON(c, &req) {
		return
	}

	created, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, created)
}

type listQuery struct {
	City       string `form:"city"`
	HospitalID string `form:"hospital_id"`
	// Mine limits the list to requests the caller raised or accepted.
	Mine bool `form:"mine"`
	model.Pagination
}

func (h *Handler) List(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var q listQuery
	if !handler.BindQuery(c, &q) {
		return
	}

	filter := model.BloodRequestFilter{City: q.City, Pagination: q.Pagination}
	for _, s := range handler.QueryList(c, "status") {
		filter.Status = append(filter.Status, model.RequestStatus(s))
	}
	for _, bt := range handler.QueryList(c, "blood_type") {
		filter.BloodTypes = append(filter.BloodTypes, handler.QueryBloodType(bt))
	}
	for _, u := range handler.QueryList(c, "urgency_level") {
		filter.Urgencies = append(filter.Urgencies, model.Urgency(u))
	}
	if q.HospitalID != "" {
		id, err := uuid.Parse(q.HospitalID)
		if err != nil {
			httputil.RespondWithError(c, errors.NewValidation("invalid filter").Field("hospital_id", "must be a valid UUID"))
			return
		}
		filter.HospitalID = &id
	}
	if q.Mine {
		switch actor.Role {
		case model.RoleDonor:
			filter.DonorID = &actor.UserID
		default:
			filter.RequesterID = &actor.UserID
		}
	}

	reqs, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	page := filter.Pagination.Normalize()
	httputil.RespondWithPagination(c, reqs, page.Page, page.PageSize, total)
}

func (h *Handler) Urgent(c *gin.Context) {
	limit, ok := handler.QueryInt(c, "limit", 20)
	if !ok {
		return
	}
	reqs, err := h.service.Urgent(c.Request.Context(), c.Query("city"), limit)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, reqs)
}

type matchingQuery struct {
	handler.LocationQuery
	BloodType string `form:"blood_type"`
}

// Matching lists open requests the calling donor could give to. Location
// and blood type default to the donor's profile.
func (h *Handler) Matching(c *gin.Context) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	var q matchingQuery
	if !handler.BindQuery(c, &q) {
		return
	}

	bt := handler.QueryBloodType(q.BloodType)
	if bt == "" || (q.Latitude == nil && q.City == "") {
		donor, err := h.profiles.Get(c.Request.Context(), actor.UserID)
		if err != nil {
			httputil.RespondWithError(c, err)
			return
		}
		if bt == "" {
			bt = donor.BloodType
		}
		if q.Latitude == nil && q.City == "" {
			q.Latitude, q.Longitude, q.City = donor.Latitude, donor.Longitude, donor.City
		}
	}
	gq, err := q.Geo(h.defaultRadiusKm)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	matches, err := h.service.Matching(c.Request.Context(), bt, gq)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, matches)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	req, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, req)
}

type transition func(ctx context.Context, actor model.Actor, id uuid.UUID, action model.RequestAction) (*model.BloodRequest, error)

func (h *Handler) act(c *gin.Context, fn transition) {
	actor, ok := handler.Actor(c)
	if !ok {
		return
	}
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var action model.RequestAction
	if !handler.BindOptionalJSON(c, &action) {
		return
	}

	req, err := fn(c.Request.Context(), actor, id, action)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, req)
}

func (h *Handler) Accept(c *gin.Context)   { h.act(c, h.service.Accept) }
func (h *Handler) Reject(c *gin.Context)   { h.act(c, h.service.Reject) }
func (h *Handler) Complete(c *gin.Context) { h.act(c, h.service.Complete) }
func (h *Handler) Cancel(c *gin.Context)   { h.act(c, h.service.Cancel) }
