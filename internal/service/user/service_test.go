package user

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lifedrop-api/internal/geo"
	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/repository/mocks"
	"github.com/jwalitptl/lifedrop-api/internal/service/notification"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
	"github.com/jwalitptl/lifedrop-api/pkg/logger"
	"github.com/jwalitptl/lifedrop-api/pkg/security"
)

type fakeDispatcher struct{ intents []notification.Intent }

func (f *fakeDispatcher) Dispatch(_ context.Context, intent notification.Intent, _ notification.Audience, _ model.DeliveryMethods) (*notification.DispatchResult, error) {
	f.intents = append(f.intents, intent)
	return &notification.DispatchResult{}, nil
}

func newTestService(t *testing.T) (*mocks.UserRepository, *mocks.HospitalRepository, *fakeDispatcher, *service) {
	t.Helper()
	users, hospitals, d := &mocks.UserRepository{}, &mocks.HospitalRepository{}, &fakeDispatcher{}
	svc := NewService(users, hospitals, security.NewBcryptHasher(4), d, logger.Nop()).(*service)
	return users, hospitals, d, svc
}

func ptr[T any](v T) *T { return &v }

func registration() model.RegisterRequest {
	return model.RegisterRequest{
		FirstName: "Meera",
		LastName:  "Iyer",
		Email:     "Meera@Example.com",
		Password:  "s3cret-pass",
		Phone:     "+91 90000 00000",
		BloodType: model.BloodTypeONeg,
		City:      " Pune ",
		State:     "MH",
	}
}

func TestRegisterHashesAndNormalizes(t *testing.T) {
	users, _, _, svc := newTestService(t)
	users.On("GetByEmail", mock.Anything, "meera@example.com").Return(nil, errors.NotFound("user", nil))
	users.On("Create", mock.Anything, mock.AnythingOfType("*model.User")).Return(nil)

	u, err := svc.Register(context.Background(), registration())
	require.NoError(t, err)
	assert.Equal(t, "meera@example.com", u.Email)
	assert.Equal(t, "Pune", u.City)
	assert.Equal(t, model.RoleDonor, u.Role)
	assert.True(t, u.IsAvailable)
	assert.NotEqual(t, "s3cret-pass", u.PasswordHash)
	assert.NoError(t, security.NewBcryptHasher(4).Compare(u.PasswordHash, "s3cret-pass"))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	users, _, _, svc := newTestService(t)
	users.On("GetByEmail", mock.Anything, "meera@example.com").Return(&model.User{}, nil)

	_, err := svc.Register(context.Background(), registration())
	assert.True(t, errors.IsConflict(err))
}

func TestRegisterValidation(t *testing.T) {
	_, _, _, svc := newTestService(t)
	in := registration()
	in.BloodType = ""
	in.Password = "short"
	in.Role = model.RoleHospitalAdmin

	_, err := svc.Register(context.Background(), in)
	var verr *errors.ValidationError
	require.True(t, stderrors.As(err, &verr))
	assert.Contains(t, verr.Fields, "password")
	assert.Contains(t, verr.Fields, "hospital_id")
}

func TestUpdateOwnProfileOnly(t *testing.T) {
	users, _, d, svc := newTestService(t)
	id := uuid.New()
	_, err := svc.Update(context.Background(), model.Actor{UserID: uuid.New(), Role: model.RoleDonor}, id, model.UserUpdate{})
	assert.Equal(t, 403, errors.HTTPStatus(err))

	current := &model.User{Base: model.Base{ID: id}, City: "Pune", IsAvailable: true}
	users.On("GetByID", mock.Anything, id).Return(current, nil)
	users.On("Update", mock.Anything, current).Return(nil)

	got, err := svc.Update(context.Background(), model.Actor{UserID: id, Role: model.RoleDonor}, id, model.UserUpdate{
		IsAvailable: ptr(false),
		City:        ptr("Mumbai "),
	})
	require.NoError(t, err)
	assert.False(t, got.IsAvailable)
	assert.Equal(t, "Mumbai", got.City)
	require.Len(t, d.intents, 1)
	assert.Equal(t, model.NotificationProfileUpdated, d.intents[0].Type)
}

func TestUpdateTokenOnlyIsQuiet(t *testing.T) {
	users, _, d, svc := newTestService(t)
	id := uuid.New()
	current := &model.User{Base: model.Base{ID: id}}
	users.On("GetByID", mock.Anything, id).Return(current, nil)
	users.On("Update", mock.Anything, current).Return(nil)

	got, err := svc.Update(context.Background(), model.Actor{UserID: id, Role: model.RoleDonor}, id, model.UserUpdate{FCMToken: ptr("tok")})
	require.NoError(t, err)
	assert.Equal(t, "tok", got.FCMToken)
	assert.Empty(t, d.intents)
}

func TestUpdateRejectsHalfCoordinates(t *testing.T) {
	users, _, _, svc := newTestService(t)
	id := uuid.New()
	users.On("GetByID", mock.Anything, id).Return(&model.User{Base: model.Base{ID: id}}, nil)

	_, err := svc.Update(context.Background(), model.Actor{UserID: id}, id, model.UserUpdate{Latitude: ptr(18.5)})
	var verr *errors.ValidationError
	assert.True(t, stderrors.As(err, &verr))
	users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestEligibility(t *testing.T) {
	users, _, _, svc := newTestService(t)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	recent := &model.User{Base: model.Base{ID: uuid.New()}, Role: model.RoleDonor, LastDonationDate: ptr(now.Add(-50 * 24 * time.Hour))}
	never := &model.User{Base: model.Base{ID: uuid.New()}, Role: model.RoleDonor}
	users.On("GetByID", mock.Anything, recent.ID).Return(recent, nil)
	users.On("GetByID", mock.Anything, never.ID).Return(never, nil)

	e, err := svc.Eligibility(context.Background(), recent.ID)
	require.NoError(t, err)
	assert.False(t, e.CanDonate)
	assert.Equal(t, 6, e.DaysRemaining)
	assert.Equal(t, now.Add(6*24*time.Hour), *e.NextEligibleDate)

	e, err = svc.Eligibility(context.Background(), never.ID)
	require.NoError(t, err)
	assert.True(t, e.CanDonate)
	assert.Nil(t, e.NextEligibleDate)
	assert.Zero(t, e.DaysRemaining)
}

func TestNearbyDonorsUsesBoxAndOrdersByLastDonation(t *testing.T) {
	users, _, _, svc := newTestService(t)
	center := geo.Point{Lat: 18.52, Lng: 73.85}
	now := time.Now()
	near := &model.User{Base: model.Base{ID: uuid.New()}, Latitude: ptr(18.53), Longitude: ptr(73.86), LastDonationDate: ptr(now.Add(-100 * 24 * time.Hour))}
	fresh := &model.User{Base: model.Base{ID: uuid.New()}, Latitude: ptr(18.54), Longitude: ptr(73.87)}
	far := &model.User{Base: model.Base{ID: uuid.New()}, Latitude: ptr(21.0), Longitude: ptr(79.0)}

	users.On("FindDonors", mock.Anything, mock.MatchedBy(func(f model.DonorFilter) bool {
		return f.Box != nil && f.OnlyAvailable && f.OnlyVerified && len(f.BloodTypes) == 4
	})).Return([]*model.User{near, far, fresh}, nil)

	matches, err := svc.NearbyDonors(context.Background(), model.BloodTypeAPos, true, geo.Query{Center: &center, RadiusKm: 10})
	require.NoError(t, err)
	assert.Equal(t, []*model.User{fresh, near}, geo.Items(matches))
}

func TestNearbyDonorsNearAntimeridianKeepsOtherCities(t *testing.T) {
	users, _, _, svc := newTestService(t)
	center := geo.Point{Lat: -16.80, Lng: 179.95}
	donor := &model.User{Base: model.Base{ID: uuid.New()}, City: "Somosomo", Latitude: ptr(-16.85), Longitude: ptr(179.90)}

	users.On("FindDonors", mock.Anything, mock.MatchedBy(func(f model.DonorFilter) bool {
		return f.Box == nil && f.City == "" && f.FallbackCity == ""
	})).Return([]*model.User{donor}, nil)

	matches, err := svc.NearbyDonors(context.Background(), model.BloodTypeAPos, false,
		geo.Query{Center: &center, RadiusKm: 25, City: "Waiyevo"})
	require.NoError(t, err)
	assert.Equal(t, []*model.User{donor}, geo.Items(matches))
}
