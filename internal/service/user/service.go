package user

import (
	"context"
	stderrors "errors"
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
	"github.com/jwalitptl/lifedrop-api/pkg/security"
)

type Service interface {
	Register(ctx context.Context, in model.RegisterRequest) (*model.User, error)
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	Update(ctx context.Context, actor model.Actor, id uuid.UUID, in model.UserUpdate) (*model.User, error)
	SetVerified(ctx context.Context, id uuid.UUID, verified bool) error
	Eligibility(ctx context.Context, id uuid.UUID) (*Eligibility, error)
	// NearbyDonors finds available verified donors for bt around q, those who
	// waited longest first.
	NearbyDonors(ctx context.Context, bt model.BloodType, compatible bool, q geo.Query) ([]geo.Match[*model.User], error)
}

// Eligibility summarises whether a donor can give blood now.
type Eligibility struct {
	UserID           uuid.UUID  `json:"user_id"`
	CanDonate        bool       `json:"can_donate"`
	LastDonationDate *time.Time `json:"last_donation_date,omitempty"`
	NextEligibleDate *time.Time `json:"next_eligible_date,omitempty"`
	DaysRemaining    int        `json:"days_remaining"`
}

type service struct {
	users      repository.UserRepository
	hospitals  repository.HospitalRepository
	hasher     security.PasswordHasher
	dispatcher notification.Dispatcher
	log        *logger.Logger
	now        func() time.Time
}

func NewService(
	users repository.UserRepository,
	hospitals repository.HospitalRepository,
	hasher security.PasswordHasher,
	dispatcher notification.Dispatcher,
	log *logger.Logger,
) Service {
	return &service{
		users:      users,
		hospitals:  hospitals,
		hasher:     hasher,
		dispatcher: dispatcher,
		log:        log.With("component", "user_service"),
		now:        time.Now,
	}
}

func (s *service) Register(ctx context.Context, in model.RegisterRequest) (*model.User, error) {
	now := s.now().UTC()
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Role == "" {
		in.Role = model.RoleDonor
	}
	if err := validateRegister(in); err != nil {
		return nil, err
	}

	if in.Role == model.RoleHospitalAdmin {
		if _, err := s.hospitals.GetByID(ctx, *in.HospitalID); err != nil {
			if errors.IsNotFound(err) {
				return nil, errors.NewValidation("invalid registration").Field("hospital_id", "hospital does not exist")
			}
			return nil, fmt.Errorf("failed to get hospital: %w", err)
		}
	}

	existing, err := s.users.GetByEmail(ctx, in.Email)
	switch {
	case err == nil && existing != nil:
		return nil, errors.Conflict("email is already registered", nil)
	case err != nil && !errors.IsNotFound(err):
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if stderrors.Is(err, security.ErrPasswordTooShort) {
			return nil, errors.NewValidation("invalid registration").Field("password", "must be at least 8 characters")
		}
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &model.User{
		Base:         model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        in.Email,
		PasswordHash: hash,
		Phone:        in.Phone,
		Role:         in.Role,
		BloodType:    in.BloodType,
		DateOfBirth:  in.DateOfBirth,
		Gender:       in.Gender,
		Address:      in.Address,
		City:         strings.TrimSpace(in.City),
		State:        in.State,
		Pincode:      in.Pincode,
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		IsAvailable:  in.Role == model.RoleDonor,
		HospitalID:   in.HospitalID,
		NotificationPreferences: model.NotificationPreferences{
			Email: true,
			Push:  true,
		},
	}
	if in.Role != model.RoleHospitalAdmin {
		u.HospitalID = nil
	}

	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.log.Info("user registered", "user_id", u.ID, "role", u.Role)
	return u, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (s *service) Update(ctx context.Context, actor model.Actor, id uuid.UUID, in model.UserUpdate) (*model.User, error) {
	if actor.UserID != id && !actor.IsAdmin() {
		return nil, errors.Forbidden("cannot update another user's profile")
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	in.Apply(u)
	u.City = strings.TrimSpace(u.City)
	if (u.Latitude == nil) != (u.Longitude == nil) {
		return nil, errors.NewValidation("invalid profile").Field("latitude", "latitude and longitude must be set together")
	}
	if u.Latitude != nil {
		if _, ok := u.Coordinates(); !ok {
			return nil, errors.NewValidation("invalid profile").Field("latitude", "must be a valid coordinate")
		}
	}
	u.UpdatedAt = s.now().UTC()

	if err := s.users.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	// A device token change is not worth a notification.
	if in.FCMToken == nil || profileChanged(in) {
		_, err := s.dispatcher.Dispatch(ctx, notification.Intent{Type: model.NotificationProfileUpdated},
			notification.ToUsers(u.ID), model.DeliveryMethods{InApp: true})
		if err != nil {
			s.log.Warn("failed to notify profile update", "user_id", u.ID, "error", err.Error())
		}
	}
	return u, nil
}

func profileChanged(in model.UserUpdate) bool {
	in.FCMToken = nil
	return in != (model.UserUpdate{})
}

func (s *service) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	if err := s.users.SetVerified(ctx, id, verified); err != nil {
		return fmt.Errorf("failed to set user verification: %w", err)
	}
	s.log.Info("user verification changed", "user_id", id, "verified", verified)
	return nil
}

func (s *service) Eligibility(ctx context.Context, id uuid.UUID) (*Eligibility, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Role != model.RoleDonor {
		return nil, errors.BadRequest("user is not a donor", nil)
	}
	now := s.now().UTC()
	e := &Eligibility{
		UserID:           u.ID,
		CanDonate:        u.CanDonate(now),
		LastDonationDate: u.LastDonationDate,
		NextEligibleDate: u.NextEligibleDate(),
	}
	if !e.CanDonate && e.NextEligibleDate != nil {
		remaining := e.NextEligibleDate.Sub(now)
		e.DaysRemaining = int((remaining + 24*time.Hour - 1) / (24 * time.Hour))
	}
	return e, nil
}

func (s *service) NearbyDonors(ctx context.Context, bt model.BloodType, compatible bool, q geo.Query) ([]geo.Match[*model.User], error) {
	if bt != "" && !bt.Valid() {
		return nil, errors.NewValidation("invalid search").Field("blood_type", "unknown blood type")
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	f := model.DonorFilter{OnlyAvailable: true, OnlyVerified: true}
	switch {
	case bt == "":
	case compatible:
		f.BloodTypes = model.CompatibleDonors(bt)
	default:
		f.BloodTypes = []model.BloodType{bt}
	}
	if box, ok := q.Box(); ok {
		f.Box = &box
		f.FallbackCity = strings.TrimSpace(q.City)
	} else if q.Center == nil {
		f.City = strings.TrimSpace(q.City)
	}

	candidates, err := s.users.FindDonors(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to find donors: %w", err)
	}
	return geo.Filter(q, candidates, nil, notification.ByLastDonation)
}

func validateRegister(in model.RegisterRequest) error {
	v := errors.NewValidation("invalid registration")
	if strings.TrimSpace(in.FirstName) == "" {
		v.Field("first_name", "is required")
	}
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		v.Field("email", "must be a valid email")
	}
	if len(in.Password) < security.MinPasswordLen {
		v.Field("password", "must be at least 8 characters")
	}
	switch in.Role {
	case model.RoleDonor:
		if !in.BloodType.Valid() {
			v.Field("blood_type", "donors must give a valid blood type")
		}
	case model.RoleHospitalAdmin:
		if in.HospitalID == nil {
			v.Field("hospital_id", "hospital admins must name their hospital")
		}
	default:
		v.Field("role", "must be donor or hospital_admin")
	}
	if strings.TrimSpace(in.City) == "" {
		v.Field("city", "is required")
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		v.Field("latitude", "latitude and longitude must be set together")
	}
	return v.OrNil()
}
