package bloodrequest

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lifedrop-api/internal/geo"
	"github.com/jwalitptl/lifedrop-api/internal/handler/handlertest"
	"github.com/jwalitptl/lifedrop-api/internal/middleware"
	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
)

type mockService struct{ mock.Mock }

func (m *mockService) result(args mock.Arguments) (*model.BloodRequest, error) {
	r, _ := args.Get(0).(*model.BloodRequest)
	return r, args.Error(1)
}

func (m *mockService) Create(ctx context.Context, actor model.Actor, in model.CreateBloodRequestInput) (*model.BloodRequest, error) {
	return m.result(m.Called(ctx, actor, in))
}

func (m *mockService) Get(ctx context.Context, id uuid.UUID) (*model.BloodRequest, error) {
	return m.result(m.Called(ctx, id))
}

func (m *mockService) List(ctx context.Context, filter model.BloodRequestFilter) ([]*model.BloodRequest, int, error) {
	args := m.Called(ctx, filter)
	rs, _ := args.Get(0).([]*model.BloodRequest)
	return rs, args.Int(1), args.Error(2)
}

func (m *mockService) Urgent(ctx context.Context, city string, limit int) ([]*model.BloodRequest, error) {
	args := m.Called(ctx, city, limit)
	rs, _ := args.Get(0).([]*model.BloodRequest)
	return rs, args.Error(1)
}

func (m *mockService) Matching(ctx context.Context, bt model.BloodType, q geo.Query) ([]geo.Match[*model.BloodRequest], error) {
	args := m.Called(ctx, bt, q)
	rs, _ := args.Get(0).([]geo.Match[*model.BloodRequest])
	return rs, args.Error(1)
}

func (m *mockService) Accept(ctx context.Context, actor model.Actor, id uuid.UUID, action model.RequestAction) (*model.BloodRequest, error) {
	return m.result(m.Called(ctx, actor, id, action))
}

func (m *mockService) Reject(ctx context.Context, actor model.Actor, id uuid.UUID, action model.RequestAction) (*model.BloodRequest, error) {
	return m.result(m.Called(ctx, actor, id, action))
}

func (m *mockService) Complete(ctx context.Context, actor model.Actor, id uuid.UUID, action model.RequestAction) (*model.BloodRequest, error) {
	return m.result(m.Called(ctx, actor, id, action))
}

func (m *mockService) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID, action model.RequestAction) (*model.BloodRequest, error) {
	return m.result(m.Called(ctx, actor, id, action))
}

func (m *mockService) ExpireOverdue(ctx context.Context, limit int) ([]model.ExpiryOutcome, error) {
	args := m.Called(ctx, limit)
	out, _ := args.Get(0).([]model.ExpiryOutcome)
	return out, args.Error(1)
}

type mockProfiles struct{ mock.Mock }

func (m *mockProfiles) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

type fixture struct {
	svc      *mockService
	profiles *mockProfiles
	router   *gin.Engine
	donor    model.Actor
	staff    model.Actor
}

func newFixture(t *testing.T) *fixture {
	hospitalID := uuid.New()
	f := &fixture{
		svc:      &mockService{},
		profiles: &mockProfiles{},
		donor:    model.Actor{UserID: uuid.New(), Role: model.RoleDonor},
		staff:    model.Actor{UserID: uuid.New(), Role: model.RoleHospitalAdmin, HospitalID: &hospitalID},
	}
	h := NewHandler(f.svc, f.profiles, 25)
	f.router = handlertest.Router(t, handlertest.Tokens{"donor": f.donor, "staff": f.staff},
		func(r *gin.RouterGroup, mw *middleware.AuthMiddleware) { h.RegisterRoutes(r, mw) })
	t.Cleanup(func() {
		f.svc.AssertExpectations(t)
		f.profiles.AssertExpectations(t)
	})
	return f
}

func validCreateBody(hospitalID uuid.UUID) map[string]interface{} {
	return map[string]interface{}{
		"hospital_id":    hospitalID,
		"blood_type":     "O-",
		"quantity":       2,
		"urgency_level":  "critical",
		"patient_name":   "R. Kumar",
		"patient_age":    54,
		"patient_gender": "male",
		"contact_person": "Dr. Shah",
		"contact_phone":  "+919800000000",
		"required_by":    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		"location":       "Ward 4",
		"city":           "Pune",
		"state":          "MH",
	}
}

func TestCreateReturnsCreatedEnvelope(t *testing.T) {
	f := newFixture(t)
	hospitalID := *f.staff.HospitalID
	created := &model.BloodRequest{Base: model.Base{ID: uuid.New()}, BloodType: model.BloodTypeONeg, Status: model.RequestStatusPending}

	f.svc.On("Create", mock.Anything, f.staff, mock.MatchedBy(func(in model.CreateBloodRequestInput) bool {
		return in.HospitalID == hospitalID && in.Urgency == model.UrgencyCritical && in.Quantity == 2
	})).Return(created, nil)

	w := handlertest.Do(t, f.router, http.MethodPost, "/api/v1/blood-requests", "staff", validCreateBody(hospitalID))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	env := handlertest.Decode(t, w)
	assert.True(t, env.Success)
	var got model.BloodRequest
	env.Into(t, &got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, model.RequestStatusPending, got.Status)
}

func TestCreateRejectsBadBindingWithFields(t *testing.T) {
	f := newFixture(t)
	body := validCreateBody(uuid.New())
	body["blood_type"] = "Q+"
	body["urgency_level"] = "whenever"
	body["quantity"] = 11

	w := handlertest.Do(t, f.router, http.MethodPost, "/api/v1/blood-requests", "staff", body)

	require.Equal(t, http.StatusBadRequest, w.Code)
	env := handlertest.Decode(t, w)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error.Fields, "blood_type")
	assert.Contains(t, env.Error.Fields, "urgency_level")
	assert.Equal(t, "must be at most 10", env.Error.Fields["quantity"])
}

func TestRequiresAuthentication(t *testing.T) {
	f := newFixture(t)

	w := handlertest.Do(t, f.router, http.MethodGet, "/api/v1/blood-requests", "", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, handlertest.Decode(t, w).Success)
}

func TestAcceptMapsLifecycleErrors(t *testing.T) {
	id := uuid.New()
	expiresAt := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"expired", &errors.RequestExpired{RequestID: id.String(), ExpiresAt: expiresAt}, http.StatusGone},
		{"already taken", &errors.InvalidStateTransition{Entity: "blood_request", From: "accepted", To: "accepted"}, http.StatusConflict},
		{"missing", errors.NotFound("blood request", nil), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.svc.On("Accept", mock.Anything, f.donor, id, model.RequestAction{}).Return(nil, tt.err)

			w := handlertest.Do(t, f.router, http.MethodPost, "/api/v1/blood-requests/"+id.String()+"/accept", "donor", nil)

			assert.Equal(t, tt.status, w.Code)
			env := handlertest.Decode(t, w)
			assert.False(t, env.Success)
			assert.Equal(t, tt.status, env.Error.Code)
		})
	}
}

func TestCancelPassesReason(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	cancelled := &model.BloodRequest{Base: model.Base{ID: id}, Status: model.RequestStatusCancelled}
	f.svc.On("Cancel", mock.Anything, f.staff, id, model.RequestAction{Reason: "patient transferred"}).Return(cancelled, nil)

	w := handlertest.Do(t, f.router, http.MethodPost, "/api/v1/blood-requests/"+id.String()+"/cancel", "staff",
		map[string]string{"reason": "patient transferred"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestListParsesFilters(t *testing.T) {
	f := newFixture(t)
	f.svc.On("List", mock.Anything, mock.MatchedBy(func(filter model.BloodRequestFilter) bool {
		return assert.ObjectsAreEqual([]model.RequestStatus{model.RequestStatusPending, model.RequestStatusAccepted}, filter.Status) &&
			assert.ObjectsAreEqual([]model.BloodType{model.BloodTypeAPos}, filter.BloodTypes) &&
			filter.City == "Pune" &&
			filter.DonorID != nil && *filter.DonorID == f.donor.UserID &&
			filter.Page == 2
	})).Return([]*model.BloodRequest{}, 41, nil)

	// "A+" arrives unescaped, so the plus decodes to a space.
	w := handlertest.Do(t, f.router, http.MethodGet,
		"/api/v1/blood-requests?status=pending,accepted&blood_type=A+&city=Pune&mine=true&page=2", "donor", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page struct {
		Pagination struct {
			Total      int `json:"total"`
			TotalPages int `json:"total_pages"`
		} `json:"pagination"`
	}
	handlertest.Decode(t, w).Into(t, &page)
	assert.Equal(t, 41, page.Pagination.Total)
	assert.Equal(t, 3, page.Pagination.TotalPages)
}

func TestMatchingDefaultsToDonorProfile(t *testing.T) {
	f := newFixture(t)
	lat, lng := 18.52, 73.85
	f.profiles.On("Get", mock.Anything, f.donor.UserID).Return(&model.User{
		BloodType: model.BloodTypeONeg, Latitude: &lat, Longitude: &lng, City: "Pune",
	}, nil)
	f.svc.On("Matching", mock.Anything, model.BloodTypeONeg, mock.MatchedBy(func(q geo.Query) bool {
		return q.Center != nil && q.Center.Lat == lat && q.RadiusKm == 25 && q.City == "Pune"
	})).Return([]geo.Match[*model.BloodRequest]{}, nil)

	w := handlertest.Do(t, f.router, http.MethodGet, "/api/v1/blood-requests/matching", "donor", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestMatchingIsForDonors(t *testing.T) {
	f := newFixture(t)

	w := handlertest.Do(t, f.router, http.MethodGet, "/api/v1/blood-requests/matching?blood_type=O-&city=Pune", "staff", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetRejectsMalformedID(t *testing.T) {
	f := newFixture(t)

	w := handlertest.Do(t, f.router, http.MethodGet, "/api/v1/blood-requests/not-a-uuid", "donor", nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "must be a valid UUID", handlertest.Decode(t, w).Error.Fields["id"])
}
