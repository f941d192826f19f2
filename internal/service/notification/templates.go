package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/lifedrop-api/internal/model"
)

// content is what a notification type renders to before it is addressed to a
// user.
type content struct {
	Title          string
	Message        string
	Priority       model.Priority
	Category       model.Category
	ActionRequired bool
	ActionType     model.ActionType
	// TTL is the default lifetime. Zero means the notification never expires.
	TTL time.Duration
}

const day = 24 * time.Hour

// render builds the content for t from data. Every notification type has a
// case here; an unknown type is an error.
func render(t model.NotificationType, data model.JSONMap) (content, error) {
	bt := field(data, "blood_type", "blood")
	patient := field(data, "patient_name", "the patient")
	location := field(data, "location", "your area")

	switch t {
	case model.NotificationBloodRequestCreated:
		return content{
			Title:          fmt.Sprintf("Urgent: %s Blood Needed", bt),
			Message:        fmt.Sprintf("%s blood is urgently needed for %s at %s. Please respond if you can help.", bt, patient, location),
			Priority:       requestPriority(data),
			Category:       model.CategoryBloodRequest,
			ActionRequired: true,
			ActionType:     model.ActionRespond,
			TTL:            7 * day,
		}, nil
	case model.NotificationBloodRequestAccepted:
		return content{
			Title:      "Blood Request Accepted",
			Message:    "Your blood request has been accepted. Please contact the hospital for next steps.",
			Priority:   model.PriorityHigh,
			Category:   model.CategoryBloodRequest,
			ActionType: model.ActionNone,
		}, nil
	case model.NotificationBloodRequestRejected:
		return content{
			Title:      "Blood Request Declined",
			Message:    "Your blood request has been declined. Please try contacting other nearby hospitals.",
			Priority:   model.PriorityHigh,
			Category:   model.CategoryBloodRequest,
			ActionType: model.ActionNone,
		}, nil
	case model.NotificationBloodRequestCompleted:
		return content{
			Title:      "Blood Donation Completed",
			Message:    fmt.Sprintf("Blood donation for %s has been completed successfully. Thank you for your contribution.", patient),
			Priority:   model.PriorityMedium,
			Category:   model.CategoryBloodRequest,
			ActionType: model.ActionNone,
		}, nil
	case model.NotificationBloodRequestCancelled:
		return content{
			Title:      "Blood Request Cancelled",
			Message:    fmt.Sprintf("The blood request for %s has been cancelled.", patient),
			Priority:   model.PriorityMedium,
			Category:   model.CategoryBloodRequest,
			ActionType: model.ActionNone,
		}, nil
	case model.NotificationBloodRequestExpired:
		return content{
			Title:      "Blood Request Expired",
			Message:    fmt.Sprintf("The %s blood request for %s expired before a donor accepted it.", bt, patient),
			Priority:   model.PriorityMedium,
			Category:   model.CategoryBloodRequest,
			ActionType: model.ActionUpdate,
		}, nil
	case model.NotificationDonationReminder:
		return content{
			Title:      "Time to Donate Blood Again",
			Message:    fmt.Sprintf("You are eligible to donate blood again. Your last donation was on %s.", field(data, "last_donation_date", "record")),
			Priority:   model.PriorityMedium,
			Category:   model.CategoryDonation,
			ActionType: model.ActionNone,
			TTL:        3 * day,
		}, nil
	case model.NotificationUrgentBloodNeeded:
		return content{
			Title:          "Emergency Blood Request",
			Message:        fmt.Sprintf("Critical shortage of %s blood in %s. Immediate donors needed.", bt, location),
			Priority:       model.PriorityCritical,
			Category:       model.CategoryEmergency,
			ActionRequired: true,
			ActionType:     model.ActionRespond,
			TTL:            day,
		}, nil
	case model.NotificationDonationScheduled:
		return content{
			Title:      "Donation Appointment Scheduled",
			Message:    fmt.Sprintf("Your blood donation appointment has been scheduled for %s.", field(data, "appointment_date", "the agreed date")),
			Priority:   model.PriorityMedium,
			Category:   model.CategoryDonation,
			ActionType: model.ActionConfirm,
		}, nil
	case model.NotificationDonationCompleted:
		return content{
			Title:      "Thank You for Donating Blood",
			Message:    "Thank you for your blood donation. Your contribution will help save lives.",
			Priority:   model.PriorityLow,
			Category:   model.CategoryDonation,
			ActionType: model.ActionNone,
		}, nil
	case model.NotificationDonorFound:
		return content{
			Title:      "Donor Found for Blood Request",
			Message:    fmt.Sprintf("A donor has been found for the %s request for %s. They will be contacted shortly.", bt, patient),
			Priority:   model.PriorityHigh,
			Category:   model.CategoryBloodRequest,
			ActionType: model.ActionNone,
		}, nil
	case model.NotificationHospitalVerified:
		return content{
			Title:      "Hospital Account Verified",
			Message:    fmt.Sprintf("%s has been verified and is now active.", field(data, "hospital_name", "Your hospital account")),
			Priority:   model.PriorityMedium,
			Category:   model.CategorySystem,
			ActionType: model.ActionNone,
		}, nil
	case model.NotificationProfileUpdated:
		return content{
			Title:      "Profile Updated",
			Message:    "Your profile details were updated.",
			Priority:   model.PriorityLow,
			Category:   model.CategorySystem,
			ActionType: model.ActionNone,
		}, nil
	case model.NotificationSystem:
		return content{
			Title:      field(data, "title", "LifeDrop update"),
			Message:    field(data, "message", "You have a new notification."),
			Priority:   model.PriorityLow,
			Category:   model.CategoryGeneral,
			ActionType: model.ActionNone,
		}, nil
	case model.NotificationEmergencyAlert:
		return content{
			Title:          fmt.Sprintf("EMERGENCY: %s Blood Needed Immediately", bt),
			Message:        fmt.Sprintf("A critical %s blood request for %s at %s needs donors now.", bt, patient, location),
			Priority:       model.PriorityCritical,
			Category:       model.CategoryEmergency,
			ActionRequired: true,
			ActionType:     model.ActionRespond,
			TTL:            6 * time.Hour,
		}, nil
	case model.NotificationBloodStockLow:
		return content{
			Title:      "Low Blood Stock Alert",
			Message:    fmt.Sprintf("%s blood stock is running low (%s units left). Please encourage donors to donate.", bt, field(data, "units", "few")),
			Priority:   model.PriorityHigh,
			Category:   model.CategoryBloodRequest,
			ActionType: model.ActionNone,
			TTL:        2 * day,
		}, nil
	case model.NotificationDonationCamp:
		return content{
			Title:      "Blood Donation Camp",
			Message:    fmt.Sprintf("Blood donation camp at %s on %s. Join us to save lives.", location, field(data, "date", "the announced date")),
			Priority:   model.PriorityLow,
			Category:   model.CategoryGeneral,
			ActionType: model.ActionNone,
		}, nil
	}
	return content{}, fmt.Errorf("unknown notification type %q", t)
}

func requestPriority(data model.JSONMap) model.Priority {
	if model.Urgency(field(data, "urgency", "")) == model.UrgencyCritical {
		return model.PriorityCritical
	}
	return model.PriorityHigh
}

func field(data model.JSONMap, key, fallback string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return fallback
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return fallback
	}
	return s
}
