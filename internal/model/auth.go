package model

import (
	"time"

	"github.com/google/uuid"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID     uuid.UUID
	Role       Role
	HospitalID *uuid.UUID
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// ManagesHospital reports whether a may act on behalf of hospital id.
func (a Actor) ManagesHospital(id uuid.UUID) bool {
	if a.IsAdmin() {
		return true
	}
	return a.Role == RoleHospitalAdmin && a.HospitalID != nil && *a.HospitalID == id
}

// RegisterRequest is the public sign-up payload.
type RegisterRequest struct {
	FirstName   string     `json:"first_name" binding:"required,max=50"`
	LastName    string     `json:"last_name" binding:"required,max=50"`
	Email       string     `json:"email" binding:"required,email"`
	Password    string     `json:"password" binding:"required,min=8,max=72"`
	Phone       string     `json:"phone" binding:"required"`
	Role        Role       `json:"role" binding:"omitempty,oneof=donor hospital_admin"`
	BloodType   BloodType  `json:"blood_type" binding:"omitempty,blood_type"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	Gender      string     `json:"gender" binding:"omitempty,oneof=male female other"`
	Address     string     `json:"address"`
	City        string     `json:"city" binding:"required"`
	State       string     `json:"state" binding:"required"`
	Pincode     string     `json:"pincode"`
	Latitude    *float64   `json:"latitude" binding:"omitempty,latitude"`
	Longitude   *float64   `json:"longitude" binding:"omitempty,longitude"`
	HospitalID  *uuid.UUID `json:"hospital_id"`
}
