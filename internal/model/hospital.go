package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lifedrop-api/internal/geo"
)

type HospitalType string

const (
	HospitalTypeGovernment HospitalType = "government"
	HospitalTypePrivate    HospitalType = "private"
	HospitalTypeTrust      HospitalType = "trust"
	HospitalTypeMilitary   HospitalType = "military"
)

type Hospital struct {
	Base
	Name               string       `json:"name" db:"name"`
	RegistrationNumber string       `json:"registration_number" db:"registration_number"`
	Email              string       `json:"email" db:"email"`
	Phone              string       `json:"phone" db:"phone"`
	Address            string       `json:"address" db:"address"`
	City               string       `json:"city" db:"city"`
	State              string       `json:"state" db:"state"`
	Pincode            string       `json:"pincode" db:"pincode"`
	Latitude           *float64     `json:"latitude,omitempty" db:"latitude"`
	Longitude          *float64     `json:"longitude,omitempty" db:"longitude"`
	Type               HospitalType `json:"hospital_type" db:"hospital_type"`
	Website            string       `json:"website,omitempty" db:"website"`
	EmergencyServices  bool         `json:"emergency_services" db:"emergency_services"`
	IsVerified         bool         `json:"is_verified" db:"is_verified"`
	IsActive           bool         `json:"is_active" db:"is_active"`
	Stock              BloodStock   `json:"current_blood_stock" db:"-"`
}

func (h *Hospital) Coordinates() (geo.Point, bool) {
	return geo.PointOf(h.Latitude, h.Longitude)
}

func (h *Hospital) CityName() string { return h.City }

// HasBloodAvailable reports whether at least quantity units of bt are held.
func (h *Hospital) HasBloodAvailable(bt BloodType, quantity int) bool {
	return h.Stock.Has(bt, quantity)
}

// BloodStock holds unit counts per blood type. Counts are never negative.
type BloodStock map[BloodType]int

// NewBloodStock returns a stock with every type present at zero.
func NewBloodStock() BloodStock {
	s := make(BloodStock, len(BloodTypes))
	for _, bt := range BloodTypes {
		s[bt] = 0
	}
	return s
}

func (s BloodStock) Has(bt BloodType, quantity int) bool {
	if quantity < 1 {
		quantity = 1
	}
	return s[bt] >= quantity
}

// StockLevel is one row of hospital stock.
type StockLevel struct {
	HospitalID uuid.UUID `json:"hospital_id" db:"hospital_id"`
	BloodType  BloodType `json:"blood_type" db:"blood_type"`
	Units      int       `json:"units" db:"units"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

type HospitalFilter struct {
	City         string
	State        string
	OnlyVerified bool
	OnlyActive   bool
	Box          *geo.Box
	// FallbackCity is the only city a hospital without coordinates may have
	// inside a Box search. Empty drops such hospitals.
	FallbackCity string
	Pagination
}

type RegisterHospitalInput struct {
	Name               string       `json:"name" binding:"required,max=200"`
	RegistrationNumber string       `json:"registration_number" binding:"required,max=50"`
	Email              string       `json:"email" binding:"required,email"`
	Phone              string       `json:"phone" binding:"required"`
	Address            string       `json:"address" binding:"required"`
	City               string       `json:"city" binding:"required"`
	State              string       `json:"state" binding:"required"`
	Pincode            string       `json:"pincode" binding:"required"`
	Latitude           *float64     `json:"latitude" binding:"omitempty,latitude"`
	Longitude          *float64     `json:"longitude" binding:"omitempty,longitude"`
	Type               HospitalType `json:"hospital_type" binding:"omitempty,oneof=government private trust military"`
	Website            string       `json:"website" binding:"omitempty,url"`
	EmergencyServices  bool         `json:"emergency_services"`
	// Stock seeds the initial unit counts.
	Stock map[BloodType]int `json:"current_blood_stock"`
}

type StockUpdate struct {
	BloodType BloodType `json:"blood_type" binding:"required,blood_type"`
	Units     int       `json:"units" binding:"min=0"`
}
