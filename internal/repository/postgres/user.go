package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/repository"
)

const userColumns = `
	id, first_name, last_name, email, password_hash, phone, role, blood_type,
	date_of_birth, gender, address, city, state, pincode, latitude, longitude,
	is_available, is_verified, email_verified, last_donation_date, hospital_id,
	fcm_token, notify_email, notify_push, last_login_at, created_at, updated_at`

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (
			:id, :first_name, :last_name, :email, :password_hash, :phone, :role, :blood_type,
			:date_of_birth, :gender, :address, :city, :state, :pincode, :latitude, :longitude,
			:is_available, :is_verified, :email_verified, :last_donation_date, :hospital_id,
			:fcm_token, :notify_email, :notify_push, :last_login_at, :created_at, :updated_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return mapError("user", fmt.Errorf("failed to create user: %w", err))
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, mapError("user", err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, mapError("user", err)
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users SET
			first_name = :first_name, last_name = :last_name, phone = :phone,
			blood_type = :blood_type, date_of_birth = :date_of_birth, gender = :gender,
			address = :address, city = :city, state = :state, pincode = :pincode,
			latitude = :latitude, longitude = :longitude, is_available = :is_available,
			fcm_token = :fcm_token, notify_email = :notify_email, notify_push = :notify_push,
			hospital_id = :hospital_id, updated_at = :updated_at
		WHERE id = :id`

	res, err := r.db.NamedExecContext(ctx, query, user)
	if err != nil {
		return mapError("user", fmt.Errorf("failed to update user: %w", err))
	}
	return rowsAffected(res, "user")
}

func (r *userRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return rowsAffected(res, "user")
}

func (r *userRepository) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_verified = $1, updated_at = NOW() WHERE id = $2`, verified, id)
	if err != nil {
		return fmt.Errorf("failed to verify user: %w", err)
	}
	return rowsAffected(res, "user")
}

func (r *userRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	var users []*model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1::uuid[])`
	if err := r.db.SelectContext(ctx, &users, query, pq.Array(strIDs)); err != nil {
		return nil, fmt.Errorf("failed to list users by id: %w", err)
	}
	return users, nil
}

func (r *userRepository) ListByCity(ctx context.Context, city string) ([]*model.User, error) {
	var users []*model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE city = $1 ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &users, query, city); err != nil {
		return nil, fmt.Errorf("failed to list users by city: %w", err)
	}
	return users, nil
}

func (r *userRepository) ListHospitalAdmins(ctx context.Context, hospitalID uuid.UUID) ([]*model.User, error) {
	var users []*model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE role = $1 AND hospital_id = $2`
	if err := r.db.SelectContext(ctx, &users, query, model.RoleHospitalAdmin, hospitalID); err != nil {
		return nil, fmt.Errorf("failed to list hospital admins: %w", err)
	}
	return users, nil
}

// FindDonors returns donor candidates. Inside a bounding box search, donors
// without coordinates are kept only for the fallback city.
func (r *userRepository) FindDonors(ctx context.Context, f model.DonorFilter) ([]*model.User, error) {
	w := &where{}
	w.add("role = ?", model.RoleDonor)

	if len(f.BloodTypes) > 0 {
		types := make([]string, len(f.BloodTypes))
		for i, bt := range f.BloodTypes {
			types[i] = string(bt)
		}
		w.add("blood_type = ANY(?)", pq.Array(types))
	}
	if f.OnlyAvailable {
		w.add("is_available = TRUE")
	}
	if f.OnlyVerified {
		w.add("is_verified = TRUE")
	}
	if f.EligibleAt != nil {
		w.add("(last_donation_date IS NULL OR last_donation_date <= ?)", f.EligibleAt.Add(-model.DonationInterval))
	}
	if f.LastDonationAfter != nil {
		w.add("last_donation_date > ?", *f.LastDonationAfter)
	}
	if f.LastDonationBefore != nil {
		w.add("last_donation_date <= ?", *f.LastDonationBefore)
	}

	switch {
	case f.Box != nil:
		w.addBox(f.Box, f.FallbackCity)
	case f.City != "":
		w.add("city = ?", f.City)
	}

	query := `SELECT ` + userColumns + ` FROM users` + w.String() +
		` ORDER BY last_donation_date ASC NULLS FIRST, created_at ASC`
	args := w.args
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	var users []*model.User
	if err := r.db.SelectContext(ctx, &users, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to find donors: %w", err)
	}
	return users, nil
}
