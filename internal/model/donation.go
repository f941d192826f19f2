package model

import (
	"time"

	"github.com/google/uuid"
)

type DonationType string

const (
	DonationTypeWholeBlood  DonationType = "whole_blood"
	DonationTypePlasma      DonationType = "plasma"
	DonationTypePlatelets   DonationType = "platelets"
	DonationTypeRedCells    DonationType = "red_cells"
	DonationTypeGranulocyte DonationType = "granulocytes"
)

func (t DonationType) Valid() bool {
	switch t {
	case DonationTypeWholeBlood, DonationTypePlasma, DonationTypePlatelets,
		DonationTypeRedCells, DonationTypeGranulocyte:
		return true
	}
	return false
}

// ShelfLife is how long a unit of this type stays usable.
func (t DonationType) ShelfLife() time.Duration {
	day := 24 * time.Hour
	switch t {
	case DonationTypePlasma:
		return 365 * day
	case DonationTypePlatelets:
		return 5 * day
	case DonationTypeRedCells:
		return 42 * day
	case DonationTypeGranulocyte:
		return 1 * day
	default:
		return 35 * day
	}
}

// RecoveryPeriod is the gap before the donor may donate again.
func (t DonationType) RecoveryPeriod() time.Duration {
	if t == DonationTypeWholeBlood {
		return DonationInterval
	}
	return 14 * 24 * time.Hour
}

type DonationMethod string

const (
	DonationMethodVoluntary   DonationMethod = "voluntary"
	DonationMethodReplacement DonationMethod = "replacement"
	DonationMethodEmergency   DonationMethod = "emergency"
	DonationMethodAutologous  DonationMethod = "autologous"
)

type CollectionMethod string

const (
	CollectionMethodManual    CollectionMethod = "manual"
	CollectionMethodAutomated CollectionMethod = "automated"
)

type UsageStatus string

const (
	UsageStatusAvailable UsageStatus = "available"
	UsageStatusUsed      UsageStatus = "used"
	UsageStatusDiscarded UsageStatus = "discarded"
	UsageStatusExpired   UsageStatus = "expired"
)

// Donation is one entry of a donor's donation history and the stock unit it
// produced.
type Donation struct {
	Base
	DonorID           uuid.UUID        `json:"donor_id" db:"donor_id"`
	HospitalID        uuid.UUID        `json:"hospital_id" db:"hospital_id"`
	BloodRequestID    *uuid.UUID       `json:"blood_request_id,omitempty" db:"blood_request_id"`
	DonationDate      time.Time        `json:"donation_date" db:"donation_date"`
	BloodType         BloodType        `json:"blood_type" db:"blood_type"`
	Quantity          int              `json:"quantity" db:"quantity"`
	VolumeML          int              `json:"volume_ml" db:"volume_ml"`
	DonationType      DonationType     `json:"donation_type" db:"donation_type"`
	DonationMethod    DonationMethod   `json:"donation_method" db:"donation_method"`
	CollectionMethod  CollectionMethod `json:"collection_method" db:"collection_method"`
	BagNumber         string           `json:"bag_number" db:"bag_number"`
	ExpiryDate        time.Time        `json:"expiry_date" db:"expiry_date"`
	NextEligibleDate  time.Time        `json:"next_eligible_date" db:"next_eligible_date"`
	UsageStatus       UsageStatus      `json:"usage_status" db:"usage_status"`
	UsageDate         *time.Time       `json:"usage_date,omitempty" db:"usage_date"`
	UsagePurpose      string           `json:"usage_purpose,omitempty" db:"usage_purpose"`
	RecipientHospital string           `json:"recipient_hospital,omitempty" db:"recipient_hospital"`
	Notes             string           `json:"notes,omitempty" db:"notes"`
}

// Derive fills the fields that are always computed from the donation date
// and type. Caller supplied values are overwritten.
func (d *Donation) Derive() {
	if d.Quantity == 0 {
		d.Quantity = 1
	}
	if d.VolumeML == 0 {
		d.VolumeML = 450
	}
	if d.DonationType == "" {
		d.DonationType = DonationTypeWholeBlood
	}
	if d.DonationMethod == "" {
		d.DonationMethod = DonationMethodVoluntary
	}
	if d.CollectionMethod == "" {
		d.CollectionMethod = CollectionMethodManual
	}
	d.ExpiryDate = d.DonationDate.Add(d.DonationType.ShelfLife())
	d.NextEligibleDate = d.DonationDate.Add(d.DonationType.RecoveryPeriod())
	d.UsageStatus = UsageStatusAvailable
}

// IsUsable reports whether the unit can still be issued at now.
func (d *Donation) IsUsable(now time.Time) bool {
	return d.UsageStatus == UsageStatusAvailable && now.Before(d.ExpiryDate)
}

type DonationFilter struct {
	DonorID     *uuid.UUID
	HospitalID  *uuid.UUID
	BloodType   BloodType
	UsageStatus UsageStatus
	Pagination
}

// UsageChange moves an available unit to a final usage state.
type UsageChange struct {
	DonationID        uuid.UUID
	To                UsageStatus
	At                time.Time
	Purpose           string
	RecipientHospital string
}

// UnitExpiryOutcome is the per-unit result of the unit expiry sweep.
type UnitExpiryOutcome struct {
	DonationID uuid.UUID `json:"donation_id"`
	HospitalID uuid.UUID `json:"hospital_id"`
	BloodType  BloodType `json:"blood_type"`
	Expired    bool      `json:"expired"`
	Error      string    `json:"error,omitempty"`
}

// RecordDonationInput is what a hospital submits after a collection. Expiry
// and next eligibility are never taken from the caller.
type RecordDonationInput struct {
	DonorID           uuid.UUID        `json:"donor_id" binding:"required"`
	HospitalID        uuid.UUID        `json:"hospital_id" binding:"required"`
	BloodRequestID    *uuid.UUID       `json:"blood_request_id"`
	DonationDate      *time.Time       `json:"donation_date"`
	Quantity          int              `json:"quantity" binding:"omitempty,min=1,max=4"`
	VolumeML          int              `json:"volume_ml" binding:"omitempty,min=100,max=1000"`
	DonationType      DonationType     `json:"donation_type" binding:"omitempty,oneof=whole_blood plasma platelets red_cells granulocytes"`
	DonationMethod    DonationMethod   `json:"donation_method" binding:"omitempty,oneof=voluntary replacement emergency autologous"`
	CollectionMethod  CollectionMethod `json:"collection_method" binding:"omitempty,oneof=manual automated"`
	BagNumber         string           `json:"bag_number" binding:"required,max=50"`
	Notes             string           `json:"notes" binding:"max=1000"`
}

// UsageInput describes how a unit left the available stock.
type UsageInput struct {
	Purpose           string `json:"usage_purpose" binding:"max=255"`
	RecipientHospital string `json:"recipient_hospital" binding:"max=255"`
}
