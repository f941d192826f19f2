package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lifedrop-api/internal/geo"
	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
)

func newMock(t *testing.T) (BaseRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBaseRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestBloodRequestTransition(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	donor := uuid.New()

	t.Run("matching status updates the row", func(t *testing.T) {
		base, mock := newMock(t)
		repo := NewBloodRequestRepository(base)
		id := uuid.New()

		mock.ExpectExec(regexp.QuoteMeta(
			`UPDATE blood_requests SET status = $1, updated_at = $2, responded_at = $3, donor_id = $4 WHERE id = $5 AND status = ANY($6) AND expires_at > $7`)).
			WithArgs(model.RequestStatusAccepted, now, now, donor, id, sqlmock.AnyArg(), now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.Transition(ctx, model.RequestTransition{
			ID:      id,
			From:    []model.RequestStatus{model.RequestStatusPending},
			To:      model.RequestStatusAccepted,
			At:      now,
			DonorID: &donor,
		})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale status leaves the row alone", func(t *testing.T) {
		base, mock := newMock(t)
		repo := NewBloodRequestRepository(base)

		mock.ExpectExec(regexp.QuoteMeta(`UPDATE blood_requests SET status = $1, updated_at = $2, completed_at = $3`)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.Transition(ctx, model.RequestTransition{
			ID:   uuid.New(),
			From: []model.RequestStatus{model.RequestStatusAccepted},
			To:   model.RequestStatusCompleted,
			At:   now,
		})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBloodRequestGetByIDNotFound(t *testing.T) {
	base, mock := newMock(t)
	repo := NewBloodRequestRepository(base)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .* FROM blood_requests WHERE id = \$1`).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), id)
	assert.True(t, errors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustStockInsufficient(t *testing.T) {
	base, mock := newMock(t)
	repo := NewHospitalRepository(base)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO hospital_blood_stock`)).
		WithArgs(id, model.BloodTypeONeg, -3).
		WillReturnError(&pq.Error{Code: pqCheckViolation, Constraint: "stock_non_negative"})

	_, err := repo.AdjustStock(context.Background(), id, model.BloodTypeONeg, -3)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	assert.Contains(t, err.Error(), "insufficient O- stock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindDonorsWithBox(t *testing.T) {
	base, mock := newMock(t)
	repo := NewUserRepository(base)
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	box := geo.Box{MinLat: 1, MaxLat: 2, MinLng: 3, MaxLng: 4}

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE role = $1 AND blood_type = ANY($2) AND is_available = TRUE AND is_verified = TRUE AND (last_donation_date IS NULL OR last_donation_date <= $3) AND ((latitude BETWEEN $4 AND $5 AND longitude BETWEEN $6 AND $7) OR ((latitude IS NULL OR longitude IS NULL) AND city = $8))`)).
		WithArgs(model.RoleDonor, sqlmock.AnyArg(), at.Add(-model.DonationInterval), 1.0, 2.0, 3.0, 4.0, "Pune", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name", "role", "blood_type"}).
			AddRow(uuid.New().String(), "Asha", "donor", "O-"))

	users, err := repo.FindDonors(context.Background(), model.DonorFilter{
		BloodTypes:    []model.BloodType{model.BloodTypeONeg},
		OnlyAvailable: true,
		OnlyVerified:  true,
		EligibleAt:    &at,
		Box:           &box,
		FallbackCity:  "Pune",
		City:          "ignored",
		Limit:         50,
	})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Asha", users[0].FirstName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBoxWithoutFallbackCityDropsRowsWithoutCoordinates(t *testing.T) {
	base, mock := newMock(t)
	repo := NewBloodRequestRepository(base)
	box := geo.Box{MinLat: 1, MaxLat: 2, MinLng: 3, MaxLng: 4}

	where := regexp.QuoteMeta(` WHERE status = ANY($1) AND (latitude BETWEEN $2 AND $3 AND longitude BETWEEN $4 AND $5)`)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM blood_requests` + where + `$`).
		WithArgs(sqlmock.AnyArg(), 1.0, 2.0, 3.0, 4.0).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`FROM blood_requests` + where + ` ORDER BY`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, total, err := repo.List(context.Background(), model.BloodRequestFilter{
		Status: []model.RequestStatus{model.RequestStatusPending},
		Box:    &box,
	})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonationRecord(t *testing.T) {
	base, mock := newMock(t)
	repo := NewDonationRepository(base)
	d := &model.Donation{
		Base:         model.Base{ID: uuid.New()},
		DonorID:      uuid.New(),
		HospitalID:   uuid.New(),
		DonationDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		BloodType:    model.BloodTypeAPos,
		BagNumber:    "BAG-1",
	}
	d.Derive()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO donations`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO hospital_blood_stock`)).
		WithArgs(d.HospitalID, model.BloodTypeAPos, 1).
		WillReturnRows(sqlmock.NewRows([]string{"units"}).AddRow(4))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users`)).
		WithArgs(d.DonationDate, d.DonorID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Record(context.Background(), d))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonationRecordRollsBackOnStockFailure(t *testing.T) {
	base, mock := newMock(t)
	repo := NewDonationRepository(base)
	d := &model.Donation{Base: model.Base{ID: uuid.New()}, BloodType: model.BloodTypeBPos, Quantity: 1}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO donations`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO hospital_blood_stock`)).
		WillReturnError(&pq.Error{Code: pqForeignKey})
	mock.ExpectRollback()

	require.Error(t, repo.Record(context.Background(), d))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDonationChangeUsage(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("available unit debits stock", func(t *testing.T) {
		base, mock := newMock(t)
		repo := NewDonationRepository(base)
		hospital := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE donations`)).
			WillReturnRows(sqlmock.NewRows([]string{"hospital_id", "blood_type", "quantity"}).
				AddRow(hospital.String(), "AB+", 2))
		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO hospital_blood_stock`)).
			WithArgs(hospital, model.BloodTypeABPos, -2).
			WillReturnRows(sqlmock.NewRows([]string{"units"}).AddRow(1))
		mock.ExpectCommit()

		ok, err := repo.ChangeUsage(ctx, model.UsageChange{DonationID: uuid.New(), To: model.UsageStatusUsed, At: now})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expired unit drains stock without failing at zero", func(t *testing.T) {
		base, mock := newMock(t)
		repo := NewDonationRepository(base)
		hospital := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE donations`)).
			WillReturnRows(sqlmock.NewRows([]string{"hospital_id", "blood_type", "quantity"}).
				AddRow(hospital.String(), "O+", 1))
		mock.ExpectQuery(regexp.QuoteMeta(`SET units = GREATEST(units - $3, 0)`)).
			WithArgs(hospital, model.BloodTypeOPos, 1).
			WillReturnRows(sqlmock.NewRows([]string{"units"}).AddRow(0))
		mock.ExpectCommit()

		ok, err := repo.ChangeUsage(ctx, model.UsageChange{DonationID: uuid.New(), To: model.UsageStatusExpired, At: now})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unit no longer available", func(t *testing.T) {
		base, mock := newMock(t)
		repo := NewDonationRepository(base)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(`UPDATE donations`)).
			WillReturnRows(sqlmock.NewRows([]string{"hospital_id", "blood_type", "quantity"}))
		mock.ExpectCommit()

		ok, err := repo.ChangeUsage(ctx, model.UsageChange{DonationID: uuid.New(), To: model.UsageStatusDiscarded, At: now})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNotificationStats(t *testing.T) {
	base, mock := newMock(t)
	repo := NewNotificationRepository(base)
	user := uuid.New()

	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE user_id = $1 AND (expires_at IS NULL OR expires_at > $2)`)).
		WithArgs(user, at).
		WillReturnRows(sqlmock.NewRows([]string{"category", "priority", "total", "unread"}).
			AddRow("blood_request", "high", 3, 2).
			AddRow("blood_request", "critical", 1, 1).
			AddRow("donation", "medium", 4, 0))

	stats, err := repo.Stats(context.Background(), user, at)
	require.NoError(t, err)
	assert.Equal(t, 8, stats.Total)
	assert.Equal(t, 3, stats.UnreadCount)
	assert.Equal(t, 4, stats.ByCategory[model.CategoryBloodRequest])
	assert.Equal(t, 4, stats.ByCategory[model.CategoryDonation])
	assert.Equal(t, 1, stats.ByPriority[model.PriorityCritical])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationMarkReadScopedToOwner(t *testing.T) {
	base, mock := newMock(t)
	repo := NewNotificationRepository(base)
	now := time.Now()
	id, other := uuid.New(), uuid.New()

	mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $2 AND user_id = $3`)).
		WithArgs(now, id, other).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkRead(context.Background(), id, other, now)
	assert.True(t, errors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationListHidesExpired(t *testing.T) {
	base, mock := newMock(t)
	repo := NewNotificationRepository(base)
	user := uuid.New()
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND (expires_at IS NULL OR expires_at > $2)`)).
		WithArgs(user, at).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(`AND (expires_at IS NULL OR expires_at > $2) ORDER BY created_at DESC LIMIT $3 OFFSET $4`)).
		WithArgs(user, at, 20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, total, err := repo.List(context.Background(), model.NotificationFilter{UserID: user, ActiveAt: &at})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationDeleteExpired(t *testing.T) {
	base, mock := newMock(t)
	repo := NewNotificationRepository(base)
	before := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`WHERE expires_at IS NOT NULL AND expires_at <= $1`)).
		WithArgs(before, 100).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteExpired(context.Background(), before, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
