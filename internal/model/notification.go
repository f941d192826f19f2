package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationBloodRequestCreated   NotificationType = "blood_request_created"
	NotificationBloodRequestAccepted  NotificationType = "blood_request_accepted"
	NotificationBloodRequestRejected  NotificationType = "blood_request_rejected"
	NotificationBloodRequestCompleted NotificationType = "blood_request_completed"
	NotificationBloodRequestCancelled NotificationType = "blood_request_cancelled"
	NotificationBloodRequestExpired   NotificationType = "blood_request_expired"
	NotificationDonationReminder      NotificationType = "donation_reminder"
	NotificationUrgentBloodNeeded     NotificationType = "urgent_blood_needed"
	NotificationDonationScheduled     NotificationType = "donation_scheduled"
	NotificationDonationCompleted     NotificationType = "donation_completed"
	NotificationDonorFound            NotificationType = "donor_found"
	NotificationHospitalVerified      NotificationType = "hospital_verified"
	NotificationProfileUpdated        NotificationType = "profile_updated"
	NotificationSystem                NotificationType = "system_notification"
	NotificationEmergencyAlert        NotificationType = "emergency_alert"
	NotificationBloodStockLow         NotificationType = "blood_stock_low"
	NotificationDonationCamp          NotificationType = "donation_camp_announcement"
)

// NotificationTypes lists the closed set of notification kinds.
var NotificationTypes = []NotificationType{
	NotificationBloodRequestCreated,
	NotificationBloodRequestAccepted,
	NotificationBloodRequestRejected,
	NotificationBloodRequestCompleted,
	NotificationBloodRequestCancelled,
	NotificationBloodRequestExpired,
	NotificationDonationReminder,
	NotificationUrgentBloodNeeded,
	NotificationDonationScheduled,
	NotificationDonationCompleted,
	NotificationDonorFound,
	NotificationHospitalVerified,
	NotificationProfileUpdated,
	NotificationSystem,
	NotificationEmergencyAlert,
	NotificationBloodStockLow,
	NotificationDonationCamp,
}

func (t NotificationType) Valid() bool {
	for _, known := range NotificationTypes {
		if t == known {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

type Category string

const (
	CategoryBloodRequest Category = "blood_request"
	CategoryDonation     Category = "donation"
	CategorySystem       Category = "system"
	CategoryEmergency    Category = "emergency"
	CategoryGeneral      Category = "general"
)

type ActionType string

const (
	ActionAccept  ActionType = "accept"
	ActionReject  ActionType = "reject"
	ActionRespond ActionType = "respond"
	ActionUpdate  ActionType = "update"
	ActionConfirm ActionType = "confirm"
	ActionNone    ActionType = "none"
)

type SenderType string

const (
	SenderUser     SenderType = "user"
	SenderHospital SenderType = "hospital"
	SenderSystem   SenderType = "system"
)

// DeliveryMethods selects the channels a notification goes out on.
type DeliveryMethods struct {
	Push  bool `json:"push" db:"delivery_push"`
	Email bool `json:"email" db:"delivery_email"`
	InApp bool `json:"in_app" db:"delivery_in_app"`
}

// AllDeliveryMethods enables every channel.
func AllDeliveryMethods() DeliveryMethods {
	return DeliveryMethods{Push: true, Email: true, InApp: true}
}

func (d DeliveryMethods) Any() bool {
	return d.Push || d.Email || d.InApp
}

type Notification struct {
	Base
	UserID          uuid.UUID        `json:"user_id" db:"user_id"`
	Type            NotificationType `json:"type" db:"type"`
	Title           string           `json:"title" db:"title"`
	Message         string           `json:"message" db:"message"`
	Priority        Priority         `json:"priority" db:"priority"`
	Category        Category         `json:"category" db:"category"`
	BloodRequestID  *uuid.UUID       `json:"blood_request_id,omitempty" db:"blood_request_id"`
	HospitalID      *uuid.UUID       `json:"hospital_id,omitempty" db:"hospital_id"`
	Data            JSONMap          `json:"data" db:"data"`
	ActionRequired  bool             `json:"action_required" db:"action_required"`
	ActionType      ActionType       `json:"action_type" db:"action_type"`
	ActionURL       string           `json:"action_url,omitempty" db:"action_url"`
	DeliveryMethods `json:"delivery_method"`
	IsRead          bool       `json:"is_read" db:"is_read"`
	ReadAt          *time.Time `json:"read_at,omitempty" db:"read_at"`
	IsSent          bool       `json:"is_sent" db:"is_sent"`
	SentAt          *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	SenderType      SenderType `json:"sender_type" db:"sender_type"`
	SenderID        *uuid.UUID `json:"sender_id,omitempty" db:"sender_id"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty" db:"expires_at"`
}

type NotificationFilter struct {
	UserID     uuid.UUID
	UnreadOnly bool
	Type       NotificationType
	Category   Category
	// ActiveAt hides notifications whose expiry has passed at that time.
	ActiveAt *time.Time
	Pagination
}

type NotificationStats struct {
	Total       int              `json:"total"`
	UnreadCount int              `json:"unread_count"`
	ByCategory  map[Category]int `json:"by_category"`
	ByPriority  map[Priority]int `json:"by_priority"`
}
