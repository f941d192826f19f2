package hospital

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lifedrop-api/internal/geo"
	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/repository"
	"github.com/jwalitptl/lifedrop-api/internal/service/notification"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
	"github.com/jwalitptl/lifedrop-api/pkg/logger"
)

type Service interface {
	Register(ctx context.Context, in model.RegisterHospitalInput) (*model.Hospital, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Hospital, error)
	List(ctx context.Context, filter model.HospitalFilter) ([]*model.Hospital, int, error)
	Verify(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Hospital, error)
	Stock(ctx context.Context, id uuid.UUID) (model.BloodStock, error)
	SetStock(ctx context.Context, actor model.Actor, id uuid.UUID, in model.StockUpdate) (model.BloodStock, error)
	Nearby(ctx context.Context, q geo.Query, onlyVerified bool) ([]geo.Match[*model.Hospital], error)
	// WithStock lists active hospitals holding at least minUnits of bt, most
	// stocked first.
	WithStock(ctx context.Context, bt model.BloodType, minUnits int) ([]*model.Hospital, error)
}

type service struct {
	hospitals  repository.HospitalRepository
	users      repository.UserRepository
	dispatcher notification.Dispatcher
	log        *logger.Logger
	now        func() time.Time
}

func NewService(
	hospitals repository.HospitalRepository,
	users repository.UserRepository,
	dispatcher notification.Dispatcher,
	log *logger.Logger,
) Service {
	return &service{
		hospitals:  hospitals,
		users:      users,
		dispatcher: dispatcher,
		log:        log.With("component", "hospital_service"),
		now:        time.Now,
	}
}

func (s *service) Register(ctx context.Context, in model.RegisterHospitalInput) (*model.Hospital, error) {
	if err := validateRegister(in); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if in.Type == "" {
		in.Type = model.HospitalTypePrivate
	}

	h := &model.Hospital{
		Base:               model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		Name:               strings.TrimSpace(in.Name),
		RegistrationNumber: strings.TrimSpace(in.RegistrationNumber),
		Email:              strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:              in.Phone,
		Address:            in.Address,
		City:               strings.TrimSpace(in.City),
		State:              in.State,
		Pincode:            in.Pincode,
		Latitude:           in.Latitude,
		Longitude:          in.Longitude,
		Type:               in.Type,
		Website:            in.Website,
		EmergencyServices:  in.EmergencyServices,
		IsActive:           true,
		Stock:              model.NewBloodStock(),
	}
	for bt, units := range in.Stock {
		h.Stock[bt] = units
	}

	if err := s.hospitals.Create(ctx, h); err != nil {
		return nil, fmt.Errorf("failed to create hospital: %w", err)
	}
	s.log.Info("hospital registered", "hospital_id", h.ID, "city", h.City)
	return h, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*model.Hospital, error) {
	h, err := s.hospitals.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get hospital: %w", err)
	}
	return h, nil
}

func (s *service) List(ctx context.Context, filter model.HospitalFilter) ([]*model.Hospital, int, error) {
	filter.Pagination = filter.Pagination.Normalize()
	hs, total, err := s.hospitals.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list hospitals: %w", err)
	}
	return hs, total, nil
}

func (s *service) Verify(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Hospital, error) {
	if !actor.IsAdmin() {
		return nil, errors.Forbidden("only admins can verify hospitals")
	}
	if err := s.hospitals.SetVerified(ctx, id, true); err != nil {
		return nil, fmt.Errorf("failed to verify hospital: %w", err)
	}
	h, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log.Info("hospital verified", "hospital_id", id)

	admins, err := s.users.ListHospitalAdmins(ctx, id)
	if err != nil {
		s.log.Warn("failed to list hospital admins", "hospital_id", id, "error", err.Error())
		return h, nil
	}
	if len(admins) == 0 {
		return h, nil
	}
	ids := make([]uuid.UUID, len(admins))
	for i, a := range admins {
		ids[i] = a.ID
	}
	hid, sender := h.ID, actor.UserID
	_, err = s.dispatcher.Dispatch(ctx, notification.Intent{
		Type:       model.NotificationHospitalVerified,
		Data:       model.JSONMap{"hospital_name": h.Name, "hospital_id": h.ID.String()},
		HospitalID: &hid,
		SenderType: model.SenderUser,
		SenderID:   &sender,
	}, notification.ToUsers(ids...), model.DeliveryMethods{})
	if err != nil {
		s.log.Error(err, "failed to notify hospital verification", "hospital_id", id)
	}
	return h, nil
}

func (s *service) Stock(ctx context.Context, id uuid.UUID) (model.BloodStock, error) {
	stock, err := s.hospitals.GetStock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}
	return stock, nil
}

func (s *service) SetStock(ctx context.Context, actor model.Actor, id uuid.UUID, in model.StockUpdate) (model.BloodStock, error) {
	if !actor.ManagesHospital(id) {
		return nil, errors.Forbidden("only the hospital's admins can change its stock")
	}
	v := errors.NewValidation("invalid stock update")
	if !in.BloodType.Valid() {
		v.Field("blood_type", "unknown blood type")
	}
	if in.Units < 0 {
		v.Field("units", "must not be negative")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}
	if err := s.hospitals.SetStock(ctx, id, in.BloodType, in.Units); err != nil {
		return nil, fmt.Errorf("failed to set stock: %w", err)
	}
	return s.Stock(ctx, id)
}

func (s *service) Nearby(ctx context.Context, q geo.Query, onlyVerified bool) ([]geo.Match[*model.Hospital], error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	filter := model.HospitalFilter{OnlyActive: true, OnlyVerified: onlyVerified}
	if box, ok := q.Box(); ok {
		filter.Box = &box
		filter.FallbackCity = strings.TrimSpace(q.City)
	} else if q.Center == nil {
		filter.City = strings.TrimSpace(q.City)
	}
	candidates, _, err := s.hospitals.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list hospitals: %w", err)
	}
	return geo.Filter(q, candidates, nil, byDistanceThenName)
}

func byDistanceThenName(a, b geo.Match[*model.Hospital]) bool {
	if geo.ByDistance(a, b) {
		return true
	}
	if geo.ByDistance(b, a) {
		return false
	}
	return a.Item.Name < b.Item.Name
}

func (s *service) WithStock(ctx context.Context, bt model.BloodType, minUnits int) ([]*model.Hospital, error) {
	if !bt.Valid() {
		return nil, errors.NewValidation("invalid search").Field("blood_type", "unknown blood type")
	}
	if minUnits < 1 {
		minUnits = 1
	}
	hs, err := s.hospitals.ListWithStock(ctx, bt, minUnits)
	if err != nil {
		return nil, fmt.Errorf("failed to list hospitals with stock: %w", err)
	}
	return hs, nil
}

func validateRegister(in model.RegisterHospitalInput) error {
	v := errors.NewValidation("invalid hospital")
	if strings.TrimSpace(in.Name) == "" {
		v.Field("name", "is required")
	}
	if strings.TrimSpace(in.RegistrationNumber) == "" {
		v.Field("registration_number", "is required")
	}
	if !strings.Contains(in.Email, "@") {
		v.Field("email", "must be a valid email")
	}
	if strings.TrimSpace(in.City) == "" {
		v.Field("city", "is required")
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		v.Field("latitude", "latitude and longitude must be set together")
	} else if in.Latitude != nil {
		if _, ok := geo.PointOf(in.Latitude, in.Longitude); !ok {
			v.Field("latitude", "must be a valid coordinate")
		}
	}
	for bt, units := range in.Stock {
		if !bt.Valid() {
			v.Field("current_blood_stock", fmt.Sprintf("unknown blood type %q", bt))
		} else if units < 0 {
			v.Field("current_blood_stock", fmt.Sprintf("%s units must not be negative", bt))
		}
	}
	return v.OrNil()
}
