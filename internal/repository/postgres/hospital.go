package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/repository"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
)

const hospitalColumns = `
	id, name, registration_number, email, phone, address, city, state, pincode,
	latitude, longitude, hospital_type, website, emergency_services, is_verified,
	is_active, created_at, updated_at`

type hospitalRepository struct {
	BaseRepository
}

func NewHospitalRepository(base BaseRepository) repository.HospitalRepository {
	return &hospitalRepository{base}
}

func (r *hospitalRepository) Create(ctx context.Context, h *model.Hospital) error {
	query := `
		INSERT INTO hospitals (` + hospitalColumns + `)
		VALUES (
			:id, :name, :registration_number, :email, :phone, :address, :city, :state, :pincode,
			:latitude, :longitude, :hospital_type, :website, :emergency_services, :is_verified,
			:is_active, :created_at, :updated_at
		)`

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, query, h); err != nil {
			return mapError("hospital", fmt.Errorf("failed to create hospital: %w", err))
		}
		for bt, units := range h.Stock {
			if _, err := adjustStock(ctx, tx, h.ID, bt, units); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *hospitalRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Hospital, error) {
	var h model.Hospital
	query := `SELECT ` + hospitalColumns + ` FROM hospitals WHERE id = $1`
	if err := r.db.GetContext(ctx, &h, query, id); err != nil {
		return nil, mapError("hospital", err)
	}
	if err := r.attachStock(ctx, []*model.Hospital{&h}); err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *hospitalRepository) List(ctx context.Context, f model.HospitalFilter) ([]*model.Hospital, int, error) {
	w := &where{}
	if f.City != "" {
		w.add("city = ?", f.City)
	}
	if f.State != "" {
		w.add("state = ?", f.State)
	}
	if f.OnlyVerified {
		w.add("is_verified = TRUE")
	}
	if f.OnlyActive {
		w.add("is_active = TRUE")
	}
	if f.Box != nil {
		w.addBox(f.Box, f.FallbackCity)
	}

	var total int
	countQuery := r.db.Rebind(`SELECT COUNT(*) FROM hospitals` + w.String())
	if err := r.db.GetContext(ctx, &total, countQuery, w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count hospitals: %w", err)
	}

	query := `SELECT ` + hospitalColumns + ` FROM hospitals` + w.String() + ` ORDER BY name ASC`
	args := w.args
	if f.PageSize > 0 {
		p := f.Pagination.Normalize()
		query += ` LIMIT ? OFFSET ?`
		args = append(args, p.PageSize, p.Offset())
	}

	var hospitals []*model.Hospital
	if err := r.db.SelectContext(ctx, &hospitals, r.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list hospitals: %w", err)
	}
	if err := r.attachStock(ctx, hospitals); err != nil {
		return nil, 0, err
	}
	return hospitals, total, nil
}

func (r *hospitalRepository) Update(ctx context.Context, h *model.Hospital) error {
	query := `
		UPDATE hospitals SET
			name = :name, email = :email, phone = :phone, address = :address, city = :city,
			state = :state, pincode = :pincode, latitude = :latitude, longitude = :longitude,
			hospital_type = :hospital_type, website = :website,
			emergency_services = :emergency_services, is_active = :is_active,
			updated_at = :updated_at
		WHERE id = :id`

	res, err := r.db.NamedExecContext(ctx, query, h)
	if err != nil {
		return mapError("hospital", fmt.Errorf("failed to update hospital: %w", err))
	}
	return rowsAffected(res, "hospital")
}

func (r *hospitalRepository) SetVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE hospitals SET is_verified = $1, updated_at = NOW() WHERE id = $2`, verified, id)
	if err != nil {
		return fmt.Errorf("failed to verify hospital: %w", err)
	}
	return rowsAffected(res, "hospital")
}

func (r *hospitalRepository) GetStock(ctx context.Context, id uuid.UUID) (model.BloodStock, error) {
	h := &model.Hospital{Base: model.Base{ID: id}}
	if err := r.attachStock(ctx, []*model.Hospital{h}); err != nil {
		return nil, err
	}
	return h.Stock, nil
}

func (r *hospitalRepository) SetStock(ctx context.Context, id uuid.UUID, bt model.BloodType, units int) error {
	if units < 0 {
		return errors.NewValidation("invalid stock").Field("units", "must not be negative")
	}
	query := `
		INSERT INTO hospital_blood_stock (hospital_id, blood_type, units, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (hospital_id, blood_type)
		DO UPDATE SET units = EXCLUDED.units, updated_at = NOW()`
	if _, err := r.db.ExecContext(ctx, query, id, bt, units); err != nil {
		return mapError("hospital stock", fmt.Errorf("failed to set stock: %w", err))
	}
	return nil
}

func (r *hospitalRepository) AdjustStock(ctx context.Context, id uuid.UUID, bt model.BloodType, delta int) (int, error) {
	return adjustStock(ctx, r.db, id, bt, delta)
}

// adjustStock moves units by delta in one statement. The table's CHECK keeps
// the count from going negative under concurrent updates.
func adjustStock(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID, bt model.BloodType, delta int) (int, error) {
	query := `
		INSERT INTO hospital_blood_stock (hospital_id, blood_type, units, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (hospital_id, blood_type)
		DO UPDATE SET units = hospital_blood_stock.units + EXCLUDED.units, updated_at = NOW()
		RETURNING units`

	var units int
	if err := sqlx.GetContext(ctx, q, &units, query, id, bt, delta); err != nil {
		err = mapError("hospital stock", err)
		if errors.IsConflict(err) {
			return 0, errors.Conflict(fmt.Sprintf("insufficient %s stock", bt), err)
		}
		return 0, fmt.Errorf("failed to adjust stock: %w", err)
	}
	return units, nil
}

func (r *hospitalRepository) ListWithStock(ctx context.Context, bt model.BloodType, minUnits int) ([]*model.Hospital, error) {
	if minUnits < 1 {
		minUnits = 1
	}
	query := `
		SELECT ` + prefixed("h", hospitalColumns) + `
		FROM hospitals h
		JOIN hospital_blood_stock s ON s.hospital_id = h.id
		WHERE s.blood_type = $1 AND s.units >= $2 AND h.is_verified AND h.is_active
		ORDER BY h.name ASC`

	var hospitals []*model.Hospital
	if err := r.db.SelectContext(ctx, &hospitals, query, bt, minUnits); err != nil {
		return nil, fmt.Errorf("failed to list hospitals with stock: %w", err)
	}
	if err := r.attachStock(ctx, hospitals); err != nil {
		return nil, err
	}
	return hospitals, nil
}

func (r *hospitalRepository) attachStock(ctx context.Context, hospitals []*model.Hospital) error {
	if len(hospitals) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*model.Hospital, len(hospitals))
	ids := make([]string, 0, len(hospitals))
	for _, h := range hospitals {
		h.Stock = model.NewBloodStock()
		byID[h.ID] = h
		ids = append(ids, h.ID.String())
	}

	var levels []model.StockLevel
	query := `
		SELECT hospital_id, blood_type, units, updated_at
		FROM hospital_blood_stock
		WHERE hospital_id = ANY($1::uuid[])`
	if err := r.db.SelectContext(ctx, &levels, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to load stock: %w", err)
	}
	for _, l := range levels {
		if h, ok := byID[l.HospitalID]; ok {
			h.Stock[l.BloodType] = l.Units
		}
	}
	return nil
}
