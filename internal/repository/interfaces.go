package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lifedrop-api/internal/model"
)

type (
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		Update(ctx context.Context, user *model.User) error
		UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
		ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.User, error)
		ListByCity(ctx context.Context, city string) ([]*model.User, error)
		ListHospitalAdmins(ctx context.Context, hospitalID uuid.UUID) ([]*model.User, error)
		FindDonors(ctx context.Context, filter model.DonorFilter) ([]*model.User, error)
		SetVerified(ctx context.Context, id uuid.UUID, verified bool) error
	}

	HospitalRepository interface {
		Create(ctx context.Context, hospital *model.Hospital) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.Hospital, error)
		List(ctx context.Context, filter model.HospitalFilter) ([]*model.Hospital, int, error)
		Update(ctx context.Context, hospital *model.Hospital) error
		SetVerified(ctx context.Context, id uuid.UUID, verified bool) error
		GetStock(ctx context.Context, id uuid.UUID) (model.BloodStock, error)
		SetStock(ctx context.Context, id uuid.UUID, bt model.BloodType, units int) error
		// AdjustStock applies delta atomically and returns the new unit count.
		// A delta that would take the count below zero fails with a conflict.
		AdjustStock(ctx context.Context, id uuid.UUID, bt model.BloodType, delta int) (int, error)
		ListWithStock(ctx context.Context, bt model.BloodType, minUnits int) ([]*model.Hospital, error)
	}

	BloodRequestRepository interface {
		Create(ctx context.Context, req *model.BloodRequest) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.BloodRequest, error)
		List(ctx context.Context, filter model.BloodRequestFilter) ([]*model.BloodRequest, int, error)
		// Transition writes the new status only while the stored status is
		// one of t.From. It returns false when no row matched.
		Transition(ctx context.Context, t model.RequestTransition) (bool, error)
		ListOverdue(ctx context.Context, now time.Time, limit int) ([]*model.BloodRequest, error)
	}

	DonationRepository interface {
		// Record stores the donation, credits hospital stock and moves the
		// donor's last donation date in a single transaction.
		Record(ctx context.Context, donation *model.Donation) error
		GetByID(ctx context.Context, id uuid.UUID) (*model.Donation, error)
		List(ctx context.Context, filter model.DonationFilter) ([]*model.Donation, int, error)
		// ChangeUsage moves an available unit to a final state and debits
		// stock. It returns false when the unit was not available.
		ChangeUsage(ctx context.Context, change model.UsageChange) (bool, error)
		ListExpiredAvailable(ctx context.Context, now time.Time, limit int) ([]*model.Donation, error)
	}

	NotificationRepository interface {
		Create(ctx context.Context, n *model.Notification) error
		MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
		List(ctx context.Context, filter model.NotificationFilter) ([]*model.Notification, int, error)
		MarkRead(ctx context.Context, id, userID uuid.UUID, at time.Time) error
		MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
		// Stats counts the notifications still live at the given time.
		Stats(ctx context.Context, userID uuid.UUID, at time.Time) (*model.NotificationStats, error)
		// DeleteExpired removes up to limit notifications whose expiry is at
		// or before the given time.
		DeleteExpired(ctx context.Context, before time.Time, limit int) (int64, error)
	}
)
