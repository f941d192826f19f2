package bloodrequest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lifedrop-api/internal/geo"
	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/realtime"
	"github.com/jwalitptl/lifedrop-api/internal/repository"
	"github.com/jwalitptl/lifedrop-api/internal/service/notification"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
	"github.com/jwalitptl/lifedrop-api/pkg/logger"
	"github.com/jwalitptl/lifedrop-api/pkg/metrics"
)

const (
	defaultSearchRadiusKm = 25
	defaultSweepLimit     = 200
	entity                = "blood_request"
)

type Service interface {
	Create(ctx context.Context, actor model.Actor, in model.CreateBloodRequestInput) (*model.BloodRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*model.BloodRequest, error)
	List(ctx context.Context, filter model.BloodRequestFilter) ([]*model.BloodRequest, int, error)
	// Urgent lists open critical and high requests, most urgent first.
	Urgent(ctx context.Context, city string, limit int) ([]*model.BloodRequest, error)
	// Matching lists open requests a donor of bt could serve near q.
	Matching(ctx context.Context, bt model.BloodType, q geo.Query) ([]geo.Match[*model.BloodRequest], error)

	Accept(ctx context.Context, actor model.Actor, id uuid.UUID, action model.RequestAction) (*model.BloodRequest, error)
	Reject(ctx context.Context, actor model.Actor, id uuid.UUID, action model.RequestAction) (*model.BloodRequest, error)
	Complete(ctx context.Context, actor model.Actor, id uuid.UUID, action model.RequestAction) (*model.BloodRequest, error)
	Cancel(ctx context.Context, actor model.Actor, id uuid.UUID, action model.RequestAction) (*model.BloodRequest, error)

	// ExpireOverdue moves pending requests past their expiry to expired and
	// reports one outcome per candidate.
	ExpireOverdue(ctx context.Context, limit int) ([]model.ExpiryOutcome, error)
}

type Options struct {
	// SearchRadiusKm is the donor alert radius when a request does not set one.
	SearchRadiusKm float64
	// Async runs notification dispatch off the request path.
	Async bool
}

type service struct {
	requests   repository.BloodRequestRepository
	users      repository.UserRepository
	hospitals  repository.HospitalRepository
	dispatcher notification.Dispatcher
	publisher  notification.RoomPublisher
	opts       Options
	log        *logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewService(
	requests repository.BloodRequestRepository,
	users repository.UserRepository,
	hospitals repository.HospitalRepository,
	dispatcher notification.Dispatcher,
	publisher notification.RoomPublisher,
	opts Options,
	log *logger.Logger,
	m *metrics.Metrics,
) Service {
	if opts.SearchRadiusKm <= 0 {
		opts.SearchRadiusKm = defaultSearchRadiusKm
	}
	return &service{
		requests:   requests,
		users:      users,
		hospitals:  hospitals,
		dispatcher: dispatcher,
		publisher:  publisher,
		opts:       opts,
		log:        log.With("component", "blood_request_service"),
		metrics:    m,
		now:        time.Now,
	}
}

func (s *service) Create(ctx context.Context, actor model.Actor, in model.CreateBloodRequestInput) (*model.BloodRequest, error) {
	now := s.now().UTC()
	if err := validateCreate(in, now); err != nil {
		return nil, err
	}

	hospital, err := s.hospitals.GetByID(ctx, in.HospitalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get hospital: %w", err)
	}
	if !hospital.IsActive {
		return nil, errors.BadRequest("hospital is not accepting requests", nil)
	}
	if actor.Role == model.RoleHospitalAdmin && !actor.ManagesHospital(hospital.ID) {
		return nil, errors.Forbidden("hospital admins can only raise requests for their own hospital")
	}

	req := &model.BloodRequest{
		Base:             model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		RequesterID:      actor.UserID,
		HospitalID:       hospital.ID,
		BloodType:        in.BloodType,
		Quantity:         in.Quantity,
		Urgency:          in.Urgency,
		PatientName:      strings.TrimSpace(in.PatientName),
		PatientAge:       in.PatientAge,
		PatientGender:    in.PatientGender,
		MedicalCondition: in.MedicalCondition,
		ContactPerson:    in.ContactPerson,
		ContactPhone:     in.ContactPhone,
		ContactEmail:     in.ContactEmail,
		RequiredBy:       in.RequiredBy.UTC(),
		Location:         in.Location,
		City:             strings.TrimSpace(in.City),
		State:            in.State,
		Pincode:          in.Pincode,
		Latitude:         in.Latitude,
		Longitude:        in.Longitude,
		IsEmergency:      in.IsEmergency,
		Status:           model.RequestStatusPending,
		ExpiresAt:        model.ExpiryFor(now, in.Urgency),
	}
	// A request without its own coordinates is searched from the hospital.
	if _, ok := req.Coordinates(); !ok {
		if _, ok := hospital.Coordinates(); ok {
			req.Latitude, req.Longitude = hospital.Latitude, hospital.Longitude
		}
	}

	if err := s.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create blood request: %w", err)
	}
	s.metrics.RequestTransitions.WithLabelValues(string(model.RequestStatusPending)).Inc()
	s.log.Info("blood request created",
		"request_id", req.ID,
		"blood_type", req.BloodType,
		"urgency", req.Urgency,
		"expires_at", req.ExpiresAt,
	)

	radius := in.SearchRadiusKm
	if radius <= 0 {
		radius = s.opts.SearchRadiusKm
	}
	s.alertDonors(ctx, req, hospital, radius)
	return req, nil
}

// alertDonors notifies compatible eligible donors around the request.
func (s *service) alertDonors(ctx context.Context, req *model.BloodRequest, hospital *model.Hospital, radiusKm float64) {
	kind := model.NotificationBloodRequestCreated
	if req.IsUrgent() {
		kind = model.NotificationEmergencyAlert
	}

	var center *geo.Point
	if p, ok := req.Coordinates(); ok {
		center = &p
	}
	audience := notification.ByRadius(req.BloodType, center, radiusKm, req.City)
	audience.Compatible = true
	audience.OnlyEligible = true
	audience.Exclude = []uuid.UUID{req.RequesterID}

	intent := s.intent(kind, req, hospital)
	sender := req.RequesterID
	intent.SenderType = model.SenderUser
	intent.SenderID = &sender

	s.dispatch(ctx, intent, audience)
	s.announce(ctx, req, intent)
}

// announce tells clients watching the request's blood type and city rooms.
// Those clients are not necessarily recipients of the alert.
func (s *service) announce(ctx context.Context, req *model.BloodRequest, intent notification.Intent) {
	if s.publisher == nil {
		return
	}
	event := realtime.EventNewBloodRequest
	if req.IsUrgent() {
		event = realtime.EventUrgentRequest
	}
	payload := map[string]interface{}{
		"type":             intent.Type,
		"blood_request_id": req.ID,
		"data":             intent.Data,
	}
	rooms := []string{realtime.BloodTypeRoom(req.BloodType)}
	if req.City != "" {
		rooms = append(rooms, realtime.LocationRoom(req.City))
	}
	for _, room := range rooms {
		if err := s.publisher.Publish(ctx, room, event, payload); err != nil {
			s.log.Warn("room broadcast failed", "room", room, "error", err.Error())
		}
	}
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*model.BloodRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get blood request: %w", err)
	}
	return req, nil
}

func (s *service) List(ctx context.Context, filter model.BloodRequestFilter) ([]*model.BloodRequest, int, error) {
	filter.Pagination = filter.Pagination.Normalize()
	for _, st := range filter.Status {
		if !st.Valid() {
			return nil, 0, errors.NewValidation("invalid filter").Field("status", fmt.Sprintf("unknown status %q", st))
		}
	}
	for _, bt := range filter.BloodTypes {
		if !bt.Valid() {
			return nil, 0, errors.NewValidation("invalid filter").Field("blood_type", fmt.Sprintf("unknown blood type %q", bt))
		}
	}
	reqs, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list blood requests: %w", err)
	}
	return reqs, total, nil
}

func (s *service) Urgent(ctx context.Context, city string, limit int) ([]*model.BloodRequest, error) {
	now := s.now().UTC()
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	reqs, _, err := s.requests.List(ctx, model.BloodRequestFilter{
		Status:     []model.RequestStatus{model.RequestStatusPending},
		Urgencies:  []model.Urgency{model.UrgencyCritical, model.UrgencyHigh},
		City:       strings.TrimSpace(city),
		ActiveAt:   &now,
		Pagination: model.Pagination{Page: 1, PageSize: limit},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list urgent requests: %w", err)
	}
	return reqs, nil
}

func (s *service) Matching(ctx context.Context, bt model.BloodType, q geo.Query) ([]geo.Match[*model.BloodRequest], error) {
	if !bt.Valid() {
		return nil, errors.NewValidation("invalid search").Field("blood_type", "unknown blood type")
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	filter := model.BloodRequestFilter{
		Status:   []model.RequestStatus{model.RequestStatusPending},
		ActiveAt: &now,
	}
	for _, recipient := range model.BloodTypes {
		if bt.CanDonateTo(recipient) {
			filter.BloodTypes = append(filter.BloodTypes, recipient)
		}
	}
	if box, ok := q.Box(); ok {
		filter.Box = &box
		filter.FallbackCity = strings.TrimSpace(q.City)
	} else if q.Center == nil {
		filter.City = strings.TrimSpace(q.City)
	}

	candidates, _, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate requests: %w", err)
	}
	return geo.Filter(q, candidates, nil, byUrgencyThenDeadline)
}

func byUrgencyThenDeadline(a, b geo.Match[*model.BloodRequest]) bool {
	ra, rb := a.Item.Urgency.Rank(), b.Item.Urgency.Rank()
	if ra != rb {
		return ra < rb
	}
	if !a.Item.RequiredBy.Equal(b.Item.RequiredBy) {
		return a.Item.RequiredBy.Before(b.Item.RequiredBy)
	}
	return geo.ByDistance(a, b)
}

func (s *service) Accept(ctx context.Context, actor model.Actor, id uuid.UUID, action model.RequestAction) (*model.BloodRequest, error) {
	now := s.now().UTC()
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	donorID := actor.UserID
	if action.DonorID != nil && *action.DonorID != actor.UserID {
		if !s.canManage(actor, req) {
			return nil, errors.Forbidden("only the requester or the hospital can assign another donor")
		}
		donorID = *action.DonorID
	} else if actor.Role != model.RoleDonor {
		return nil, errors.NewValidation("invalid acceptance").Field("donor_id", "a donor must be assigned")
	}

	if err := acceptable(req, now); err != nil {
		return nil, err
	}

	donor, err := s.users.GetByID(ctx, donorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get donor: %w", err)
	}
	if err := eligible(donor, req, now); err != nil {
		return nil, err
	}

	t := model.RequestTransition{
		ID:            req.ID,
		From:          []model.RequestStatus{model.RequestStatusPending},
		To:            model.RequestStatusAccepted,
		At:            now,
		DonorID:       &donor.ID,
		DonorResponse: action.Response,
	}
	if err := s.write(ctx, req, t); err != nil {
		return nil, err
	}
	req.DonorID = &donor.ID
	req.DonorResponse = action.Response

	hospital := s.hospital(ctx, req.HospitalID)
	intent := s.intent(model.NotificationBloodRequestAccepted, req, hospital)
	intent.Data["donor_name"] = donor.FullName()
	intent.SenderType, intent.SenderID = model.SenderUser, &donor.ID
	s.dispatch(ctx, intent, notification.ToUsers(req.RequesterID))
	s.notifyHospital(ctx, model.NotificationDonorFound, req, hospital)
	return req, nil
}

func (s *service) Reject(ctx context.Context, actor model.Actor, id uuid.UUID, action model.RequestAction) (*model.BloodRequest, error) {
	return s.move(ctx, actor, id, model.RequestStatusRejected, action, model.NotificationBloodRequestRejected)
}

func (s *service) Complete(ctx context.Context, actor model.Actor, id uuid.UUID, action model.RequestAction) (*model.BloodRequest, error) {
	return s.move(ctx, actor, id, model.RequestStatusCompleted, action, model.NotificationBloodRequestCompleted)
}

func (s *service) Cancel(ctx context.Context, actor model.Actor, id uuid.UUID, action model.RequestAction) (*model.BloodRequest, error) {
	return s.move(ctx, actor, id, model.RequestStatusCancelled, action, model.NotificationBloodRequestCancelled)
}

// move applies a requester or hospital driven transition and notifies the
// requester and the assigned donor.
func (s *service) move(ctx context.Context, actor model.Actor, id uuid.UUID, to model.RequestStatus, action model.RequestAction, kind model.NotificationType) (*model.BloodRequest, error) {
	now := s.now().UTC()
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canManage(actor, req) {
		return nil, errors.Forbidden("not allowed to change this blood request")
	}
	if !req.Status.CanTransitionTo(to) {
		return nil, &errors.InvalidStateTransition{Entity: entity, From: string(req.Status), To: string(to)}
	}

	t := model.RequestTransition{
		ID:           req.ID,
		From:         []model.RequestStatus{req.Status},
		To:           to,
		At:           now,
		StatusReason: action.Reason,
	}
	if actor.ManagesHospital(req.HospitalID) {
		t.HospitalResponse = action.Response
	} else {
		t.DonorResponse = action.Response
	}
	if err := s.write(ctx, req, t); err != nil {
		return nil, err
	}
	req.StatusReason = action.Reason
	if t.HospitalResponse != "" {
		req.HospitalResponse = t.HospitalResponse
	}

	recipients := []uuid.UUID{req.RequesterID}
	if req.DonorID != nil {
		recipients = append(recipients, *req.DonorID)
	}
	intent := s.intent(kind, req, s.hospital(ctx, req.HospitalID))
	if action.Reason != "" {
		intent.Data["reason"] = action.Reason
	}
	sender := actor.UserID
	intent.SenderID = &sender
	intent.SenderType = model.SenderUser
	if actor.ManagesHospital(req.HospitalID) {
		intent.SenderType = model.SenderHospital
	}
	s.dispatch(ctx, intent, notification.ToUsers(recipients...))
	return req, nil
}

// write performs the conditional status update. When no row matched the
// stored request is reloaded to explain why.
func (s *service) write(ctx context.Context, req *model.BloodRequest, t model.RequestTransition) error {
	ok, err := s.requests.Transition(ctx, t)
	if err != nil {
		return fmt.Errorf("failed to update blood request status: %w", err)
	}
	if !ok {
		current, gerr := s.requests.GetByID(ctx, req.ID)
		if gerr != nil {
			return fmt.Errorf("failed to reload blood request: %w", gerr)
		}
		if t.To == model.RequestStatusAccepted {
			if err := acceptable(current, t.At); err != nil {
				return err
			}
		}
		return &errors.InvalidStateTransition{Entity: entity, From: string(current.Status), To: string(t.To)}
	}

	req.Apply(t.To, t.At)
	s.metrics.RequestTransitions.WithLabelValues(string(t.To)).Inc()
	s.log.Info("blood request status changed", "request_id", req.ID, "to", t.To)
	return nil
}

func (s *service) ExpireOverdue(ctx context.Context, limit int) ([]model.ExpiryOutcome, error) {
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	started := time.Now()
	now := s.now().UTC()
	defer func() {
		s.metrics.SweepDuration.WithLabelValues("request_expiry").Observe(time.Since(started).Seconds())
	}()

	overdue, err := s.requests.ListOverdue(ctx, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue requests: %w", err)
	}

	outcomes := make([]model.ExpiryOutcome, 0, len(overdue))
	for _, req := range overdue {
		out := model.ExpiryOutcome{RequestID: req.ID}
		ok, err := s.requests.Transition(ctx, model.RequestTransition{
			ID:   req.ID,
			From: []model.RequestStatus{model.RequestStatusPending},
			To:   model.RequestStatusExpired,
			At:   now,
		})
		switch {
		case err != nil:
			out.Error = err.Error()
			s.metrics.SweepItems.WithLabelValues("request_expiry", "failed").Inc()
			s.log.Error(err, "failed to expire blood request", "request_id", req.ID)
		case !ok:
			// Another sweeper or a concurrent accept got there first.
			s.metrics.SweepItems.WithLabelValues("request_expiry", "skipped").Inc()
		default:
			out.Expired = true
			req.Apply(model.RequestStatusExpired, now)
			s.metrics.SweepItems.WithLabelValues("request_expiry", "expired").Inc()
			s.metrics.RequestTransitions.WithLabelValues(string(model.RequestStatusExpired)).Inc()

			intent := s.intent(model.NotificationBloodRequestExpired, req, nil)
			s.dispatch(ctx, intent, notification.ToUsers(req.RequesterID))
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

func (s *service) canManage(actor model.Actor, req *model.BloodRequest) bool {
	return actor.UserID == req.RequesterID || actor.ManagesHospital(req.HospitalID)
}

func (s *service) hospital(ctx context.Context, id uuid.UUID) *model.Hospital {
	h, err := s.hospitals.GetByID(ctx, id)
	if err != nil {
		s.log.Warn("failed to load hospital for notification", "hospital_id", id, "error", err.Error())
		return nil
	}
	return h
}

func (s *service) notifyHospital(ctx context.Context, kind model.NotificationType, req *model.BloodRequest, hospital *model.Hospital) {
	admins, err := s.users.ListHospitalAdmins(ctx, req.HospitalID)
	if err != nil {
		s.log.Warn("failed to list hospital admins", "hospital_id", req.HospitalID, "error", err.Error())
		return
	}
	ids := make([]uuid.UUID, 0, len(admins))
	for _, a := range admins {
		ids = append(ids, a.ID)
	}
	if len(ids) == 0 {
		return
	}
	s.dispatch(ctx, s.intent(kind, req, hospital), notification.ToUsers(ids...))
}

func (s *service) intent(kind model.NotificationType, req *model.BloodRequest, hospital *model.Hospital) notification.Intent {
	id, hid := req.ID, req.HospitalID
	location := req.Location
	data := model.JSONMap{
		"blood_request_id": req.ID.String(),
		"blood_type":       string(req.BloodType),
		"quantity":         req.Quantity,
		"urgency":          string(req.Urgency),
		"patient_name":     req.PatientName,
		"city":             req.City,
		"required_by":      req.RequiredBy.Format(time.RFC3339),
		"expires_at":       req.ExpiresAt.Format(time.RFC3339),
		"status":           string(req.Status),
	}
	if hospital != nil {
		data["hospital_name"] = hospital.Name
		if location == "" {
			location = hospital.Name
		}
	}
	data["location"] = location
	return notification.Intent{
		Type:           kind,
		Data:           data,
		BloodRequestID: &id,
		HospitalID:     &hid,
		ActionURL:      "/blood-requests/" + req.ID.String(),
	}
}

func (s *service) dispatch(ctx context.Context, intent notification.Intent, audience notification.Audience) {
	run := func(ctx context.Context) {
		if _, err := s.dispatcher.Dispatch(ctx, intent, audience, model.DeliveryMethods{}); err != nil {
			s.log.Error(err, "failed to dispatch notification", "type", intent.Type, "audience", audience.Kind)
		}
	}
	if s.opts.Async {
		go run(context.WithoutCancel(ctx))
		return
	}
	run(ctx)
}

// acceptable explains why req cannot be accepted at now, or returns nil.
func acceptable(req *model.BloodRequest, now time.Time) error {
	if req.CanBeAccepted(now) {
		return nil
	}
	if req.Status == model.RequestStatusExpired || (req.Status == model.RequestStatusPending && req.IsExpired(now)) {
		return &errors.RequestExpired{RequestID: req.ID.String(), ExpiresAt: req.ExpiresAt}
	}
	return &errors.InvalidStateTransition{Entity: entity, From: string(req.Status), To: string(model.RequestStatusAccepted)}
}

func eligible(donor *model.User, req *model.BloodRequest, now time.Time) error {
	v := errors.NewValidation("donor cannot accept this request")
	switch {
	case donor.Role != model.RoleDonor:
		v.Field("donor_id", "user is not a donor")
	case !donor.IsAvailable:
		v.Field("donor_id", "donor is not available")
	case !donor.BloodType.Valid():
		v.Field("blood_type", "donor has no blood type on record")
	case !donor.BloodType.CanDonateTo(req.BloodType):
		v.Field("blood_type", fmt.Sprintf("%s cannot donate to %s", donor.BloodType, req.BloodType))
	case !donor.CanDonate(now):
		v.Field("last_donation_date", "donor is inside the minimum donation interval")
	}
	return v.OrNil()
}

func validateCreate(in model.CreateBloodRequestInput, now time.Time) error {
	v := errors.NewValidation("invalid blood request")
	if in.HospitalID == uuid.Nil {
		v.Field("hospital_id", "is required")
	}
	if !in.BloodType.Valid() {
		v.Field("blood_type", "unknown blood type")
	}
	if in.Quantity < 1 || in.Quantity > 10 {
		v.Field("quantity", "must be between 1 and 10")
	}
	if !in.Urgency.Valid() {
		v.Field("urgency_level", "unknown urgency")
	}
	if strings.TrimSpace(in.PatientName) == "" {
		v.Field("patient_name", "is required")
	}
	if in.PatientAge < 0 || in.PatientAge > 120 {
		v.Field("patient_age", "must be between 0 and 120")
	}
	if strings.TrimSpace(in.ContactPhone) == "" {
		v.Field("contact_phone", "is required")
	}
	if strings.TrimSpace(in.City) == "" {
		v.Field("city", "is required")
	}
	if in.RequiredBy.IsZero() {
		v.Field("required_by", "is required")
	} else if in.RequiredBy.Before(now.Add(-time.Minute)) {
		v.Field("required_by", "must not be in the past")
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		v.Field("latitude", "latitude and longitude must be set together")
	} else if in.Latitude != nil {
		if _, ok := geo.PointOf(in.Latitude, in.Longitude); !ok {
			v.Field("latitude", "must be a valid coordinate")
		}
	}
	return v.OrNil()
}
