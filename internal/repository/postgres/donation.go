package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/repository"
)

const donationColumns = `
	id, donor_id, hospital_id, blood_request_id, donation_date, blood_type, quantity,
	volume_ml, donation_type, donation_method, collection_method, bag_number,
	expiry_date, next_eligible_date, usage_status, usage_date, usage_purpose,
	recipient_hospital, notes, created_at, updated_at`

type donationRepository struct {
	BaseRepository
}

func NewDonationRepository(base BaseRepository) repository.DonationRepository {
	return &donationRepository{base}
}

func (r *donationRepository) Record(ctx context.Context, d *model.Donation) error {
	insert := `
		INSERT INTO donations (` + donationColumns + `)
		VALUES (
			:id, :donor_id, :hospital_id, :blood_request_id, :donation_date, :blood_type, :quantity,
			:volume_ml, :donation_type, :donation_method, :collection_method, :bag_number,
			:expiry_date, :next_eligible_date, :usage_status, :usage_date, :usage_purpose,
			:recipient_hospital, :notes, :created_at, :updated_at
		)`

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insert, d); err != nil {
			return mapError("donation", fmt.Errorf("failed to record donation: %w", err))
		}
		if _, err := adjustStock(ctx, tx, d.HospitalID, d.BloodType, d.Quantity); err != nil {
			return err
		}

		// Backfilled history never moves the date backwards.
		res, err := tx.ExecContext(ctx, `
			UPDATE users
			SET last_donation_date = GREATEST(COALESCE(last_donation_date, $1), $1), updated_at = NOW()
			WHERE id = $2`, d.DonationDate, d.DonorID)
		if err != nil {
			return fmt.Errorf("failed to update last donation date: %w", err)
		}
		return rowsAffected(res, "donor")
	})
}

func (r *donationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Donation, error) {
	var d model.Donation
	query := `SELECT ` + donationColumns + ` FROM donations WHERE id = $1`
	if err := r.db.GetContext(ctx, &d, query, id); err != nil {
		return nil, mapError("donation", err)
	}
	return &d, nil
}

func (r *donationRepository) List(ctx context.Context, f model.DonationFilter) ([]*model.Donation, int, error) {
	w := &where{}
	if f.DonorID != nil {
		w.add("donor_id = ?", *f.DonorID)
	}
	if f.HospitalID != nil {
		w.add("hospital_id = ?", *f.HospitalID)
	}
	if f.BloodType != "" {
		w.add("blood_type = ?", f.BloodType)
	}
	if f.UsageStatus != "" {
		w.add("usage_status = ?", f.UsageStatus)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM donations`+w.String()), w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count donations: %w", err)
	}

	p := f.Pagination.Normalize()
	query := `SELECT ` + donationColumns + ` FROM donations` + w.String() +
		` ORDER BY donation_date DESC LIMIT ? OFFSET ?`
	args := append(w.args, p.PageSize, p.Offset())

	var donations []*model.Donation
	if err := r.db.SelectContext(ctx, &donations, r.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list donations: %w", err)
	}
	return donations, total, nil
}

func (r *donationRepository) ChangeUsage(ctx context.Context, c model.UsageChange) (bool, error) {
	changed := false
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var unit struct {
			HospitalID uuid.UUID       `db:"hospital_id"`
			BloodType  model.BloodType `db:"blood_type"`
			Quantity   int             `db:"quantity"`
		}
		err := tx.GetContext(ctx, &unit, `
			UPDATE donations
			SET usage_status = $1, usage_date = $2, usage_purpose = $3,
				recipient_hospital = $4, updated_at = $2
			WHERE id = $5 AND usage_status = $6
			RETURNING hospital_id, blood_type, quantity`,
			c.To, c.At, c.Purpose, c.RecipientHospital, c.DonationID, model.UsageStatusAvailable)
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to change donation usage: %w", err)
		}

		if c.To == model.UsageStatusExpired {
			// Stock may have been corrected by hand; expiry only drains what is left.
			if _, err := drainStock(ctx, tx, unit.HospitalID, unit.BloodType, unit.Quantity); err != nil {
				return err
			}
		} else if _, err := adjustStock(ctx, tx, unit.HospitalID, unit.BloodType, -unit.Quantity); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (r *donationRepository) ListExpiredAvailable(ctx context.Context, now time.Time, limit int) ([]*model.Donation, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `
		SELECT ` + donationColumns + `
		FROM donations
		WHERE usage_status = $1 AND expiry_date <= $2
		ORDER BY expiry_date ASC
		LIMIT $3`

	var donations []*model.Donation
	if err := r.db.SelectContext(ctx, &donations, query, model.UsageStatusAvailable, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list expired donations: %w", err)
	}
	return donations, nil
}

// drainStock removes up to units, stopping at zero.
func drainStock(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID, bt model.BloodType, units int) (int, error) {
	query := `
		UPDATE hospital_blood_stock
		SET units = GREATEST(units - $3, 0), updated_at = NOW()
		WHERE hospital_id = $1 AND blood_type = $2
		RETURNING units`

	var left int
	err := sqlx.GetContext(ctx, q, &left, query, id, bt, units)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to drain stock: %w", err)
	}
	return left, nil
}
