package donation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/repository"
	"github.com/jwalitptl/lifedrop-api/internal/service/notification"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
	"github.com/jwalitptl/lifedrop-api/pkg/logger"
	"github.com/jwalitptl/lifedrop-api/pkg/metrics"
)

const (
	defaultLowStockThreshold = 5
	defaultReminderWindow    = 24 * time.Hour
	defaultSweepLimit        = 200
)

type Service interface {
	Record(ctx context.Context, actor model.Actor, in model.RecordDonationInput) (*model.Donation, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Donation, error)
	List(ctx context.Context, filter model.DonationFilter) ([]*model.Donation, int, error)
	// Available lists usable units held by a hospital, optionally of one type.
	Available(ctx context.Context, hospitalID uuid.UUID, bt model.BloodType, page model.Pagination) ([]*model.Donation, int, error)

	MarkUsed(ctx context.Context, actor model.Actor, id uuid.UUID, in model.UsageInput) (*model.Donation, error)
	MarkDiscarded(ctx context.Context, actor model.Actor, id uuid.UUID, in model.UsageInput) (*model.Donation, error)

	// ExpireUnits retires available units past their expiry date.
	ExpireUnits(ctx context.Context, limit int) ([]model.UnitExpiryOutcome, error)
	// SendReminders notifies donors who became eligible again during the
	// last reminder window.
	SendReminders(ctx context.Context) ([]ReminderOutcome, error)
}

type ReminderOutcome struct {
	UserID uuid.UUID `json:"user_id"`
	Sent   bool      `json:"sent"`
	Error  string    `json:"error,omitempty"`
}

type Options struct {
	// LowStockThreshold alerts hospital admins when a type drops below it.
	LowStockThreshold int
	// ReminderWindow should match how often SendReminders runs so every donor
	// is reminded once.
	ReminderWindow time.Duration
}

type service struct {
	donations  repository.DonationRepository
	users      repository.UserRepository
	hospitals  repository.HospitalRepository
	requests   repository.BloodRequestRepository
	dispatcher notification.Dispatcher
	opts       Options
	log        *logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewService(
	donations repository.DonationRepository,
	users repository.UserRepository,
	hospitals repository.HospitalRepository,
	requests repository.BloodRequestRepository,
	dispatcher notification.Dispatcher,
	opts Options,
	log *logger.Logger,
	m *metrics.Metrics,
) Service {
	if opts.LowStockThreshold <= 0 {
		opts.LowStockThreshold = defaultLowStockThreshold
	}
	if opts.ReminderWindow <= 0 {
		opts.ReminderWindow = defaultReminderWindow
	}
	return &service{
		donations:  donations,
		users:      users,
		hospitals:  hospitals,
		requests:   requests,
		dispatcher: dispatcher,
		opts:       opts,
		log:        log.With("component", "donation_service"),
		metrics:    m,
		now:        time.Now,
	}
}

func (s *service) Record(ctx context.Context, actor model.Actor, in model.RecordDonationInput) (*model.Donation, error) {
	now := s.now().UTC()
	if !actor.ManagesHospital(in.HospitalID) {
		return nil, errors.Forbidden("only the collecting hospital can record a donation")
	}

	date := now
	if in.DonationDate != nil {
		date = in.DonationDate.UTC()
	}
	if err := validateRecord(in, date, now); err != nil {
		return nil, err
	}

	donor, err := s.users.GetByID(ctx, in.DonorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get donor: %w", err)
	}
	v := errors.NewValidation("donor cannot donate")
	switch {
	case donor.Role != model.RoleDonor:
		v.Field("donor_id", "user is not a donor")
	case !donor.BloodType.Valid():
		v.Field("donor_id", "donor has no blood type on record")
	case !donor.CanDonate(date):
		v.Field("donation_date", "donor is inside the minimum donation interval")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	hospital, err := s.hospitals.GetByID(ctx, in.HospitalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get hospital: %w", err)
	}
	if !hospital.IsActive {
		return nil, errors.BadRequest("hospital is not active", nil)
	}

	if in.BloodRequestID != nil {
		req, err := s.requests.GetByID(ctx, *in.BloodRequestID)
		if err != nil {
			return nil, fmt.Errorf("failed to get blood request: %w", err)
		}
		if req.HospitalID != hospital.ID {
			return nil, errors.NewValidation("invalid donation").Field("blood_request_id", "request belongs to another hospital")
		}
	}

	d := &model.Donation{
		Base:             model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		DonorID:          donor.ID,
		HospitalID:       hospital.ID,
		BloodRequestID:   in.BloodRequestID,
		DonationDate:     date,
		BloodType:        donor.BloodType,
		Quantity:         in.Quantity,
		VolumeML:         in.VolumeML,
		DonationType:     in.DonationType,
		DonationMethod:   in.DonationMethod,
		CollectionMethod: in.CollectionMethod,
		BagNumber:        strings.TrimSpace(in.BagNumber),
		Notes:            in.Notes,
	}
	d.Derive()

	if err := s.donations.Record(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to record donation: %w", err)
	}
	s.log.Info("donation recorded",
		"donation_id", d.ID,
		"donor_id", d.DonorID,
		"hospital_id", d.HospitalID,
		"blood_type", d.BloodType,
		"expiry_date", d.ExpiryDate,
	)

	hid := hospital.ID
	s.dispatch(ctx, notification.Intent{
		Type: model.NotificationDonationCompleted,
		Data: model.JSONMap{
			"donation_id":        d.ID.String(),
			"hospital_name":      hospital.Name,
			"blood_type":         string(d.BloodType),
			"next_eligible_date": d.NextEligibleDate.Format("2006-01-02"),
		},
		HospitalID: &hid,
		SenderType: model.SenderHospital,
		SenderID:   &hid,
		ActionURL:  "/donations/" + d.ID.String(),
	}, notification.ToUsers(donor.ID))
	return d, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*model.Donation, error) {
	d, err := s.donations.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get donation: %w", err)
	}
	return d, nil
}

func (s *service) List(ctx context.Context, filter model.DonationFilter) ([]*model.Donation, int, error) {
	filter.Pagination = filter.Pagination.Normalize()
	if filter.BloodType != "" && !filter.BloodType.Valid() {
		return nil, 0, errors.NewValidation("invalid filter").Field("blood_type", "unknown blood type")
	}
	ds, total, err := s.donations.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list donations: %w", err)
	}
	return ds, total, nil
}

func (s *service) Available(ctx context.Context, hospitalID uuid.UUID, bt model.BloodType, page model.Pagination) ([]*model.Donation, int, error) {
	return s.List(ctx, model.DonationFilter{
		HospitalID:  &hospitalID,
		BloodType:   bt,
		UsageStatus: model.UsageStatusAvailable,
		Pagination:  page,
	})
}

func (s *service) MarkUsed(ctx context.Context, actor model.Actor, id uuid.UUID, in model.UsageInput) (*model.Donation, error) {
	return s.retire(ctx, actor, id, model.UsageStatusUsed, in)
}

func (s *service) MarkDiscarded(ctx context.Context, actor model.Actor, id uuid.UUID, in model.UsageInput) (*model.Donation, error) {
	return s.retire(ctx, actor, id, model.UsageStatusDiscarded, in)
}

func (s *service) retire(ctx context.Context, actor model.Actor, id uuid.UUID, to model.UsageStatus, in model.UsageInput) (*model.Donation, error) {
	now := s.now().UTC()
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.ManagesHospital(d.HospitalID) {
		return nil, errors.Forbidden("only the holding hospital can change a unit")
	}
	if d.UsageStatus != model.UsageStatusAvailable {
		return nil, &errors.InvalidStateTransition{Entity: "donation", From: string(d.UsageStatus), To: string(to)}
	}
	if to == model.UsageStatusUsed && !d.IsUsable(now) {
		return nil, errors.Conflict("unit is past its expiry date", nil)
	}

	ok, err := s.donations.ChangeUsage(ctx, model.UsageChange{
		DonationID:        d.ID,
		To:                to,
		At:                now,
		Purpose:           in.Purpose,
		RecipientHospital: in.RecipientHospital,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update donation usage: %w", err)
	}
	if !ok {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &errors.InvalidStateTransition{Entity: "donation", From: string(current.UsageStatus), To: string(to)}
	}

	d.UsageStatus = to
	d.UsageDate = &now
	d.UsagePurpose = in.Purpose
	d.RecipientHospital = in.RecipientHospital
	d.UpdatedAt = now
	s.log.Info("donation unit retired", "donation_id", d.ID, "usage_status", to)

	s.checkStock(ctx, d.HospitalID, d.BloodType)
	return d, nil
}

func (s *service) ExpireUnits(ctx context.Context, limit int) ([]model.UnitExpiryOutcome, error) {
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	started := time.Now()
	now := s.now().UTC()
	defer func() {
		s.metrics.SweepDuration.WithLabelValues("unit_expiry").Observe(time.Since(started).Seconds())
	}()

	units, err := s.donations.ListExpiredAvailable(ctx, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired units: %w", err)
	}

	type stockKey struct {
		hospital uuid.UUID
		bt       model.BloodType
	}
	touched := make(map[stockKey]struct{})
	outcomes := make([]model.UnitExpiryOutcome, 0, len(units))
	for _, d := range units {
		out := model.UnitExpiryOutcome{DonationID: d.ID, HospitalID: d.HospitalID, BloodType: d.BloodType}
		ok, err := s.donations.ChangeUsage(ctx, model.UsageChange{
			DonationID: d.ID,
			To:         model.UsageStatusExpired,
			At:         now,
			Purpose:    "expired",
		})
		switch {
		case err != nil:
			out.Error = err.Error()
			s.metrics.SweepItems.WithLabelValues("unit_expiry", "failed").Inc()
			s.log.Error(err, "failed to expire donation unit", "donation_id", d.ID)
		case !ok:
			s.metrics.SweepItems.WithLabelValues("unit_expiry", "skipped").Inc()
		default:
			out.Expired = true
			touched[stockKey{d.HospitalID, d.BloodType}] = struct{}{}
			s.metrics.SweepItems.WithLabelValues("unit_expiry", "expired").Inc()
		}
		outcomes = append(outcomes, out)
	}

	for k := range touched {
		s.checkStock(ctx, k.hospital, k.bt)
	}
	return outcomes, nil
}

func (s *service) SendReminders(ctx context.Context) ([]ReminderOutcome, error) {
	started := time.Now()
	now := s.now().UTC()
	defer func() {
		s.metrics.SweepDuration.WithLabelValues("donation_reminder").Observe(time.Since(started).Seconds())
	}()

	before := now.Add(-model.DonationInterval)
	after := before.Add(-s.opts.ReminderWindow)
	donors, err := s.users.FindDonors(ctx, model.DonorFilter{
		OnlyAvailable:      true,
		OnlyVerified:       true,
		LastDonationAfter:  &after,
		LastDonationBefore: &before,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find donors due a reminder: %w", err)
	}

	outcomes := make([]ReminderOutcome, 0, len(donors))
	for _, donor := range donors {
		out := ReminderOutcome{UserID: donor.ID}
		data := model.JSONMap{}
		if donor.LastDonationDate != nil {
			data["last_donation_date"] = donor.LastDonationDate.Format("2006-01-02")
		}
		res, err := s.dispatcher.Dispatch(ctx, notification.Intent{
			Type:      model.NotificationDonationReminder,
			Data:      data,
			ActionURL: "/blood-requests",
		}, notification.ToUsers(donor.ID), model.DeliveryMethods{})
		switch {
		case err != nil:
			out.Error = err.Error()
		case res.PersistFailures > 0:
			out.Error = res.Deliveries[0].Error
		default:
			out.Sent = true
		}
		outcome := "sent"
		if !out.Sent {
			outcome = "failed"
		}
		s.metrics.SweepItems.WithLabelValues("donation_reminder", outcome).Inc()
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

// checkStock alerts the hospital's admins when bt has fallen below the
// threshold.
func (s *service) checkStock(ctx context.Context, hospitalID uuid.UUID, bt model.BloodType) {
	stock, err := s.hospitals.GetStock(ctx, hospitalID)
	if err != nil {
		s.log.Warn("failed to read stock after debit", "hospital_id", hospitalID, "error", err.Error())
		return
	}
	units := stock[bt]
	if units >= s.opts.LowStockThreshold {
		return
	}

	admins, err := s.users.ListHospitalAdmins(ctx, hospitalID)
	if err != nil {
		s.log.Warn("failed to list hospital admins", "hospital_id", hospitalID, "error", err.Error())
		return
	}
	if len(admins) == 0 {
		return
	}
	ids := make([]uuid.UUID, len(admins))
	for i, a := range admins {
		ids[i] = a.ID
	}

	hid := hospitalID
	s.log.Warn("blood stock low", "hospital_id", hospitalID, "blood_type", bt, "units", units)
	s.dispatch(ctx, notification.Intent{
		Type: model.NotificationBloodStockLow,
		Data: model.JSONMap{
			"blood_type": string(bt),
			"units":      units,
			"threshold":  s.opts.LowStockThreshold,
		},
		HospitalID: &hid,
	}, notification.ToUsers(ids...))
}

func (s *service) dispatch(ctx context.Context, intent notification.Intent, audience notification.Audience) {
	if _, err := s.dispatcher.Dispatch(ctx, intent, audience, model.DeliveryMethods{}); err != nil {
		s.log.Error(err, "failed to dispatch notification", "type", intent.Type)
	}
}

func validateRecord(in model.RecordDonationInput, date, now time.Time) error {
	v := errors.NewValidation("invalid donation")
	if in.DonorID == uuid.Nil {
		v.Field("donor_id", "is required")
	}
	if in.HospitalID == uuid.Nil {
		v.Field("hospital_id", "is required")
	}
	if strings.TrimSpace(in.BagNumber) == "" {
		v.Field("bag_number", "is required")
	}
	if in.DonationType != "" && !in.DonationType.Valid() {
		v.Field("donation_type", "unknown donation type")
	}
	if in.Quantity < 0 || in.Quantity > 4 {
		v.Field("quantity", "must be between 1 and 4")
	}
	if date.After(now.Add(time.Minute)) {
		v.Field("donation_date", "must not be in the future")
	}
	return v.OrNil()
}
