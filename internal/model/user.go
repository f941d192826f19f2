package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lifedrop-api/internal/geo"
)

type Role string

const (
	RoleDonor         Role = "donor"
	RoleHospitalAdmin Role = "hospital_admin"
	RoleAdmin         Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleDonor, RoleHospitalAdmin, RoleAdmin:
		return true
	}
	return false
}

// DonationInterval is the minimum gap between two donations by one donor.
const DonationInterval = 56 * 24 * time.Hour

// NotificationPreferences are the per-user opt-ins for out-of-app channels.
type NotificationPreferences struct {
	Email bool `json:"email" db:"notify_email"`
	Push  bool `json:"push" db:"notify_push"`
}

type User struct {
	Base
	FirstName        string     `json:"first_name" db:"first_name"`
	LastName         string     `json:"last_name" db:"last_name"`
	Email            string     `json:"email" db:"email"`
	PasswordHash     string     `json:"-" db:"password_hash"`
	Phone            string     `json:"phone" db:"phone"`
	Role             Role       `json:"role" db:"role"`
	BloodType        BloodType  `json:"blood_type,omitempty" db:"blood_type"`
	DateOfBirth      *time.Time `json:"date_of_birth,omitempty" db:"date_of_birth"`
	Gender           string     `json:"gender,omitempty" db:"gender"`
	Address          string     `json:"address,omitempty" db:"address"`
	City             string     `json:"city" db:"city"`
	State            string     `json:"state" db:"state"`
	Pincode          string     `json:"pincode,omitempty" db:"pincode"`
	Latitude         *float64   `json:"latitude,omitempty" db:"latitude"`
	Longitude        *float64   `json:"longitude,omitempty" db:"longitude"`
	IsAvailable      bool       `json:"is_available" db:"is_available"`
	IsVerified       bool       `json:"is_verified" db:"is_verified"`
	EmailVerified    bool       `json:"email_verified" db:"email_verified"`
	LastDonationDate *time.Time `json:"last_donation_date,omitempty" db:"last_donation_date"`
	HospitalID       *uuid.UUID `json:"hospital_id,omitempty" db:"hospital_id"`
	FCMToken         string     `json:"-" db:"fcm_token"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	NotificationPreferences `json:"notification_preferences"`
}

func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// CanDonate reports whether the donation interval has elapsed at now.
// A donor who never donated can donate.
func (u *User) CanDonate(now time.Time) bool {
	if u.LastDonationDate == nil {
		return true
	}
	return !now.Before(u.LastDonationDate.Add(DonationInterval))
}

// NextEligibleDate is when the donor may donate again, nil if already eligible
// from their history.
func (u *User) NextEligibleDate() *time.Time {
	if u.LastDonationDate == nil {
		return nil
	}
	next := u.LastDonationDate.Add(DonationInterval)
	return &next
}

// IsActiveDonor is a donor who is available and verified.
func (u *User) IsActiveDonor() bool {
	return u.Role == RoleDonor && u.IsAvailable && u.IsVerified
}

func (u *User) Coordinates() (geo.Point, bool) {
	return geo.PointOf(u.Latitude, u.Longitude)
}

func (u *User) CityName() string { return u.City }

// DonorFilter narrows donor lookups in storage. Geographic radius checks are
// applied afterwards by geo.Filter. Box wins over City; inside a Box search
// donors without coordinates are returned only when they live in FallbackCity.
type DonorFilter struct {
	BloodTypes    []BloodType
	City          string
	Box           *geo.Box
	FallbackCity  string
	OnlyAvailable bool
	OnlyVerified  bool
	// EligibleAt excludes donors still inside the donation interval.
	EligibleAt *time.Time
	// LastDonationAfter and LastDonationBefore bound last_donation_date and
	// exclude donors who never donated.
	LastDonationAfter  *time.Time
	LastDonationBefore *time.Time
	Limit              int
}

// UserUpdate carries the profile fields a user may change.
type UserUpdate struct {
	FirstName   *string                  `json:"first_name"`
	LastName    *string                  `json:"last_name"`
	Phone       *string                  `json:"phone"`
	Address     *string                  `json:"address"`
	City        *string                  `json:"city"`
	State       *string                  `json:"state"`
	Pincode     *string                  `json:"pincode"`
	Latitude    *float64                 `json:"latitude" binding:"omitempty,latitude"`
	Longitude   *float64                 `json:"longitude" binding:"omitempty,longitude"`
	IsAvailable *bool                    `json:"is_available"`
	FCMToken    *string                  `json:"fcm_token"`
	Preferences *NotificationPreferences `json:"notification_preferences"`
}

// Apply copies the set fields onto u.
func (p UserUpdate) Apply(u *User) {
	setString(&u.FirstName, p.FirstName)
	setString(&u.LastName, p.LastName)
	setString(&u.Phone, p.Phone)
	setString(&u.Address, p.Address)
	setString(&u.City, p.City)
	setString(&u.State, p.State)
	setString(&u.Pincode, p.Pincode)
	setString(&u.FCMToken, p.FCMToken)
	if p.Latitude != nil {
		u.Latitude = p.Latitude
	}
	if p.Longitude != nil {
		u.Longitude = p.Longitude
	}
	if p.IsAvailable != nil {
		u.IsAvailable = *p.IsAvailable
	}
	if p.Preferences != nil {
		u.NotificationPreferences = *p.Preferences
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
