package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/repository"
)

const bloodRequestColumns = `
	id, requester_id, hospital_id, donor_id, blood_type, quantity, urgency_level,
	patient_name, patient_age, patient_gender, medical_condition, contact_person,
	contact_phone, contact_email, required_by, location, city, state, pincode,
	latitude, longitude, is_emergency, status, status_reason, hospital_response,
	donor_response, expires_at, responded_at, completed_at, cancelled_at,
	created_at, updated_at`

const urgencyOrder = `
	CASE urgency_level
		WHEN 'critical' THEN 0
		WHEN 'high' THEN 1
		WHEN 'medium' THEN 2
		ELSE 3
	END`

type bloodRequestRepository struct {
	BaseRepository
}

func NewBloodRequestRepository(base BaseRepository) repository.BloodRequestRepository {
	return &bloodRequestRepository{base}
}

func (r *bloodRequestRepository) Create(ctx context.Context, req *model.BloodRequest) error {
	query := `
		INSERT INTO blood_requests (` + bloodRequestColumns + `)
		VALUES (
			:id, :requester_id, :hospital_id, :donor_id, :blood_type, :quantity, :urgency_level,
			:patient_name, :patient_age, :patient_gender, :medical_condition, :contact_person,
			:contact_phone, :contact_email, :required_by, :location, :city, :state, :pincode,
			:latitude, :longitude, :is_emergency, :status, :status_reason, :hospital_response,
			:donor_response, :expires_at, :responded_at, :completed_at, :cancelled_at,
			:created_at, :updated_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return mapError("blood request", fmt.Errorf("failed to create blood request: %w", err))
	}
	return nil
}

func (r *bloodRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.BloodRequest, error) {
	var req model.BloodRequest
	query := `SELECT ` + bloodRequestColumns + ` FROM blood_requests WHERE id = $1`
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, mapError("blood request", err)
	}
	return &req, nil
}

func (r *bloodRequestRepository) List(ctx context.Context, f model.BloodRequestFilter) ([]*model.BloodRequest, int, error) {
	w := &where{}
	if len(f.Status) > 0 {
		w.add("status = ANY(?)", pq.Array(toStrings(f.Status)))
	}
	if f.HospitalID != nil {
		w.add("hospital_id = ?", *f.HospitalID)
	}
	if f.RequesterID != nil {
		w.add("requester_id = ?", *f.RequesterID)
	}
	if f.DonorID != nil {
		w.add("donor_id = ?", *f.DonorID)
	}
	if len(f.BloodTypes) > 0 {
		w.add("blood_type = ANY(?)", pq.Array(toStrings(f.BloodTypes)))
	}
	if len(f.Urgencies) > 0 {
		w.add("urgency_level = ANY(?)", pq.Array(toStrings(f.Urgencies)))
	}
	if f.City != "" {
		w.add("city = ?", f.City)
	}
	if f.ActiveAt != nil {
		w.add("expires_at > ?", *f.ActiveAt)
	}
	if f.Box != nil {
		w.addBox(f.Box, f.FallbackCity)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM blood_requests`+w.String()), w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count blood requests: %w", err)
	}

	query := `SELECT ` + bloodRequestColumns + ` FROM blood_requests` + w.String() +
		` ORDER BY ` + urgencyOrder + `, required_by ASC, created_at ASC`
	args := w.args
	if f.PageSize > 0 {
		p := f.Pagination.Normalize()
		query += ` LIMIT ? OFFSET ?`
		args = append(args, p.PageSize, p.Offset())
	}

	var reqs []*model.BloodRequest
	if err := r.db.SelectContext(ctx, &reqs, r.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list blood requests: %w", err)
	}
	return reqs, total, nil
}

// Transition is a compare-and-set on status. Accepting additionally requires
// the request to still be inside its expiry window.
func (r *bloodRequestRepository) Transition(ctx context.Context, t model.RequestTransition) (bool, error) {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{t.To, t.At}

	switch t.To {
	case model.RequestStatusAccepted, model.RequestStatusRejected:
		sets = append(sets, "responded_at = ?")
		args = append(args, t.At)
	case model.RequestStatusCompleted:
		sets = append(sets, "completed_at = ?")
		args = append(args, t.At)
	case model.RequestStatusCancelled:
		sets = append(sets, "cancelled_at = ?")
		args = append(args, t.At)
	}
	if t.DonorID != nil {
		sets = append(sets, "donor_id = ?")
		args = append(args, *t.DonorID)
	}
	if t.StatusReason != "" {
		sets = append(sets, "status_reason = ?")
		args = append(args, t.StatusReason)
	}
	if t.HospitalResponse != "" {
		sets = append(sets, "hospital_response = ?")
		args = append(args, t.HospitalResponse)
	}
	if t.DonorResponse != "" {
		sets = append(sets, "donor_response = ?")
		args = append(args, t.DonorResponse)
	}

	query := `UPDATE blood_requests SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? AND status = ANY(?)`
	args = append(args, t.ID, pq.Array(toStrings(t.From)))
	if t.To == model.RequestStatusAccepted {
		query += ` AND expires_at > ?`
		args = append(args, t.At)
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition blood request: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *bloodRequestRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*model.BloodRequest, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `
		SELECT ` + bloodRequestColumns + `
		FROM blood_requests
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at ASC
		LIMIT $3`

	var reqs []*model.BloodRequest
	if err := r.db.SelectContext(ctx, &reqs, query, model.RequestStatusPending, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list overdue blood requests: %w", err)
	}
	return reqs, nil
}

func toStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}
