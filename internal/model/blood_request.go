package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lifedrop-api/internal/geo"
)

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusAccepted  RequestStatus = "accepted"
	RequestStatusRejected  RequestStatus = "rejected"
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusCancelled RequestStatus = "cancelled"
	RequestStatusExpired   RequestStatus = "expired"
)

// requestTransitions lists the allowed moves out of each non-terminal state.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending:  {RequestStatusAccepted, RequestStatusRejected, RequestStatusCancelled, RequestStatusExpired},
	RequestStatusAccepted: {RequestStatusCompleted, RequestStatusCancelled},
}

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusAccepted, RequestStatusRejected,
		RequestStatusCompleted, RequestStatusCancelled, RequestStatusExpired:
		return true
	}
	return false
}

func (s RequestStatus) CanTransitionTo(to RequestStatus) bool {
	for _, next := range requestTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s RequestStatus) IsTerminal() bool {
	return len(requestTransitions[s]) == 0
}

// SourcesFor returns the states from which to is reachable.
func SourcesFor(to RequestStatus) []RequestStatus {
	var out []RequestStatus
	for from, nexts := range requestTransitions {
		for _, n := range nexts {
			if n == to {
				out = append(out, from)
			}
		}
	}
	return out
}

type BloodRequest struct {
	Base
	RequesterID      uuid.UUID     `json:"requester_id" db:"requester_id"`
	HospitalID       uuid.UUID     `json:"hospital_id" db:"hospital_id"`
	DonorID          *uuid.UUID    `json:"donor_id,omitempty" db:"donor_id"`
	BloodType        BloodType     `json:"blood_type" db:"blood_type"`
	Quantity         int           `json:"quantity" db:"quantity"`
	Urgency          Urgency       `json:"urgency_level" db:"urgency_level"`
	PatientName      string        `json:"patient_name" db:"patient_name"`
	PatientAge       int           `json:"patient_age" db:"patient_age"`
	PatientGender    string        `json:"patient_gender" db:"patient_gender"`
	MedicalCondition string        `json:"medical_condition,omitempty" db:"medical_condition"`
	ContactPerson    string        `json:"contact_person" db:"contact_person"`
	ContactPhone     string        `json:"contact_phone" db:"contact_phone"`
	ContactEmail     string        `json:"contact_email,omitempty" db:"contact_email"`
	RequiredBy       time.Time     `json:"required_by" db:"required_by"`
	Location         string        `json:"location" db:"location"`
	City             string        `json:"city" db:"city"`
	State            string        `json:"state" db:"state"`
	Pincode          string        `json:"pincode,omitempty" db:"pincode"`
	Latitude         *float64      `json:"latitude,omitempty" db:"latitude"`
	Longitude        *float64      `json:"longitude,omitempty" db:"longitude"`
	IsEmergency      bool          `json:"is_emergency" db:"is_emergency"`
	Status           RequestStatus `json:"status" db:"status"`
	StatusReason     string        `json:"status_reason,omitempty" db:"status_reason"`
	HospitalResponse string        `json:"hospital_response,omitempty" db:"hospital_response"`
	DonorResponse    string        `json:"donor_response,omitempty" db:"donor_response"`
	ExpiresAt        time.Time     `json:"expires_at" db:"expires_at"`
	RespondedAt      *time.Time    `json:"responded_at,omitempty" db:"responded_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	CancelledAt      *time.Time    `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// ExpiryFor returns the expiry of a request created at createdAt.
func ExpiryFor(createdAt time.Time, urgency Urgency) time.Time {
	return createdAt.Add(time.Duration(urgency.Hours()) * time.Hour)
}

// IsExpired reports whether the request's window has closed at now.
func (r *BloodRequest) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

func (r *BloodRequest) CanBeAccepted(now time.Time) bool {
	return r.Status == RequestStatusPending && !r.IsExpired(now)
}

func (r *BloodRequest) CanBeCompleted() bool {
	return r.Status == RequestStatusAccepted
}

func (r *BloodRequest) CanBeCancelled() bool {
	return r.Status == RequestStatusPending || r.Status == RequestStatusAccepted
}

// IsUrgent covers critical requests and anything flagged as an emergency.
func (r *BloodRequest) IsUrgent() bool {
	return r.IsEmergency || r.Urgency == UrgencyCritical
}

// Apply moves r to status to at now and stamps the matching timestamp. It
// does not check the transition table.
func (r *BloodRequest) Apply(to RequestStatus, now time.Time) {
	r.Status = to
	r.UpdatedAt = now
	switch to {
	case RequestStatusAccepted, RequestStatusRejected:
		r.RespondedAt = &now
	case RequestStatusCompleted:
		r.CompletedAt = &now
	case RequestStatusCancelled:
		r.CancelledAt = &now
	}
}

func (r *BloodRequest) Coordinates() (geo.Point, bool) {
	return geo.PointOf(r.Latitude, r.Longitude)
}

func (r *BloodRequest) CityName() string { return r.City }

// BloodRequestFilter narrows request listings.
type BloodRequestFilter struct {
	Status      []RequestStatus
	HospitalID  *uuid.UUID
	RequesterID *uuid.UUID
	DonorID     *uuid.UUID
	BloodTypes  []BloodType
	City        string
	Urgencies   []Urgency
	// ActiveAt excludes requests whose expiry has passed at the given time.
	ActiveAt *time.Time
	Box      *geo.Box
	// FallbackCity is the only city a row without coordinates may have
	// inside a Box search. Empty drops such rows.
	FallbackCity string
	Pagination
}

// RequestTransition is a conditional status write: it only applies while the
// stored status is one of From.
type RequestTransition struct {
	ID           uuid.UUID
	From         []RequestStatus
	To           RequestStatus
	At           time.Time
	DonorID      *uuid.UUID
	StatusReason string
	// Response is stored as hospital_response or donor_response by actor.
	HospitalResponse string
	DonorResponse    string
}

// ExpiryOutcome is the per-request result of an expiry sweep.
type ExpiryOutcome struct {
	RequestID uuid.UUID `json:"request_id"`
	Expired   bool      `json:"expired"`
	Error     string    `json:"error,omitempty"`
}

// CreateBloodRequestInput is what a requester submits. Status and expiry are
// always derived.
type CreateBloodRequestInput struct {
	HospitalID       uuid.UUID `json:"hospital_id" binding:"required"`
	BloodType        BloodType `json:"blood_type" binding:"required,blood_type"`
	Quantity         int       `json:"quantity" binding:"required,min=1,max=10"`
	Urgency          Urgency   `json:"urgency_level" binding:"required,urgency"`
	PatientName      string    `json:"patient_name" binding:"required,max=100"`
	PatientAge       int       `json:"patient_age" binding:"min=0,max=120"`
	PatientGender    string    `json:"patient_gender" binding:"required,oneof=male female other"`
	MedicalCondition string    `json:"medical_condition"`
	ContactPerson    string    `json:"contact_person" binding:"required"`
	ContactPhone     string    `json:"contact_phone" binding:"required"`
	ContactEmail     string    `json:"contact_email" binding:"omitempty,email"`
	RequiredBy       time.Time `json:"required_by" binding:"required"`
	Location         string    `json:"location" binding:"required"`
	City             string    `json:"city" binding:"required"`
	State            string    `json:"state" binding:"required"`
	Pincode          string    `json:"pincode"`
	Latitude         *float64  `json:"latitude" binding:"omitempty,latitude"`
	Longitude        *float64  `json:"longitude" binding:"omitempty,longitude"`
	IsEmergency      bool      `json:"is_emergency"`
	// SearchRadiusKm bounds the donor alert. Zero uses the service default.
	SearchRadiusKm float64 `json:"search_radius_km" binding:"omitempty,gt=0,lte=500"`
}

// RequestAction carries the optional free text sent with a transition.
type RequestAction struct {
	DonorID  *uuid.UUID `json:"donor_id"`
	Reason   string     `json:"reason" binding:"max=500"`
	Response string     `json:"response" binding:"max=1000"`
}
