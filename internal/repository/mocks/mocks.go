// Package mocks holds testify mocks of the repository interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/repository"
)

var (
	_ repository.UserRepository         = (*UserRepository)(nil)
	_ repository.HospitalRepository     = (*HospitalRepository)(nil)
	_ repository.BloodRequestRepository = (*BloodRequestRepository)(nil)
	_ repository.DonationRepository     = (*DonationRepository)(nil)
	_ repository.NotificationRepository = (*NotificationRepository)(nil)
)

func users(args mock.Arguments, i int) []*model.User {
	if v := args.Get(i); v != nil {
		return v.([]*model.User)
	}
	return nil
}

type UserRepository struct{ mock.Mock }

func (m *UserRepository) Create(ctx context.Context, user *model.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *UserRepository) Update(ctx context.Context, user *model.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *UserRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *UserRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.User, error) {
	args := m.Called(ctx, ids)
	return users(args, 0), args.Error(1)
}

func (m *UserRepository) ListByCity(ctx context.Context, city string) ([]*model.User, error) {
	args := m.Called(ctx, city)
	return users(args, 0), args.Error(1)
}

func (m *UserRepository) ListHospitalAdmins(ctx context.Context, hospitalID uuid.UUID) ([]*model.User, error) {
	args := m.Called(ctx, hospitalID)
	return users(args, 0), args.Error(1)
}

func (m *UserRepository) FindDonors(ctx context.Context, filter model.DonorFilter) ([]*model.User, error) {
	args := m.Called(ctx, filter)
	return users(args, 0), args.Error(1)
}

func (m *UserRepository) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	return m.Called(ctx, id, verified).Error(0)
}

type HospitalRepository struct{ mock.Mock }

func (m *HospitalRepository) Create(ctx context.Context, h *model.Hospital) error {
	return m.Called(ctx, h).Error(0)
}

func (m *HospitalRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Hospital, error) {
	args := m.Called(ctx, id)
	h, _ := args.Get(0).(*model.Hospital)
	return h, args.Error(1)
}

func (m *HospitalRepository) List(ctx context.Context, filter model.HospitalFilter) ([]*model.Hospital, int, error) {
	args := m.Called(ctx, filter)
	hs, _ := args.Get(0).([]*model.Hospital)
	return hs, args.Int(1), args.Error(2)
}

func (m *HospitalRepository) Update(ctx context.Context, h *model.Hospital) error {
	return m.Called(ctx, h).Error(0)
}

func (m *HospitalRepository) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	return m.Called(ctx, id, verified).Error(0)
}

func (m *HospitalRepository) GetStock(ctx context.Context, id uuid.UUID) (model.BloodStock, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(model.BloodStock)
	return s, args.Error(1)
}

func (m *HospitalRepository) SetStock(ctx context.Context, id uuid.UUID, bt model.BloodType, units int) error {
	return m.Called(ctx, id, bt, units).Error(0)
}

func (m *HospitalRepository) AdjustStock(ctx context.Context, id uuid.UUID, bt model.BloodType, delta int) (int, error) {
	args := m.Called(ctx, id, bt, delta)
	return args.Int(0), args.Error(1)
}

func (m *HospitalRepository) ListWithStock(ctx context.Context, bt model.BloodType, minUnits int) ([]*model.Hospital, error) {
	args := m.Called(ctx, bt, minUnits)
	hs, _ := args.Get(0).([]*model.Hospital)
	return hs, args.Error(1)
}

type BloodRequestRepository struct{ mock.Mock }

func (m *BloodRequestRepository) Create(ctx context.Context, req *model.BloodRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *BloodRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.BloodRequest, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*model.BloodRequest)
	return r, args.Error(1)
}

func (m *BloodRequestRepository) List(ctx context.Context, filter model.BloodRequestFilter) ([]*model.BloodRequest, int, error) {
	args := m.Called(ctx, filter)
	rs, _ := args.Get(0).([]*model.BloodRequest)
	return rs, args.Int(1), args.Error(2)
}

func (m *BloodRequestRepository) Transition(ctx context.Context, t model.RequestTransition) (bool, error) {
	args := m.Called(ctx, t)
	return args.Bool(0), args.Error(1)
}

func (m *BloodRequestRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*model.BloodRequest, error) {
	args := m.Called(ctx, now, limit)
	rs, _ := args.Get(0).([]*model.BloodRequest)
	return rs, args.Error(1)
}

type DonationRepository struct{ mock.Mock }

func (m *DonationRepository) Record(ctx context.Context, d *model.Donation) error {
	return m.Called(ctx, d).Error(0)
}

func (m *DonationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Donation, error) {
	args := m.Called(ctx, id)
	d, _ := args.Get(0).(*model.Donation)
	return d, args.Error(1)
}

func (m *DonationRepository) List(ctx context.Context, filter model.DonationFilter) ([]*model.Donation, int, error) {
	args := m.Called(ctx, filter)
	ds, _ := args.Get(0).([]*model.Donation)
	return ds, args.Int(1), args.Error(2)
}

func (m *DonationRepository) ChangeUsage(ctx context.Context, change model.UsageChange) (bool, error) {
	args := m.Called(ctx, change)
	return args.Bool(0), args.Error(1)
}

func (m *DonationRepository) ListExpiredAvailable(ctx context.Context, now time.Time, limit int) ([]*model.Donation, error) {
	args := m.Called(ctx, now, limit)
	ds, _ := args.Get(0).([]*model.Donation)
	return ds, args.Error(1)
}

type NotificationRepository struct{ mock.Mock }

func (m *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *NotificationRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *NotificationRepository) List(ctx context.Context, filter model.NotificationFilter) ([]*model.Notification, int, error) {
	args := m.Called(ctx, filter)
	ns, _ := args.Get(0).([]*model.Notification)
	return ns, args.Int(1), args.Error(2)
}

func (m *NotificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID, at time.Time) error {
	return m.Called(ctx, id, userID, at).Error(0)
}

func (m *NotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	args := m.Called(ctx, userID, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *NotificationRepository) Stats(ctx context.Context, userID uuid.UUID, at time.Time) (*model.NotificationStats, error) {
	args := m.Called(ctx, userID, at)
	s, _ := args.Get(0).(*model.NotificationStats)
	return s, args.Error(1)
}

func (m *NotificationRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int64, error) {
	args := m.Called(ctx, before, limit)
	return args.Get(0).(int64), args.Error(1)
}
