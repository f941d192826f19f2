package realtime

import (
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/lifedrop-api/internal/model"
)

// Event names pushed to sessions.
const (
	EventNotification     = "notification"
	EventNewBloodRequest  = "new_blood_request"
	EventUrgentRequest    = "urgent_blood_request"
	EventNotificationRead = "notification_read"
)

func UserRoom(id uuid.UUID) string {
	return "user_" + id.String()
}

func BloodTypeRoom(bt model.BloodType) string {
	return "blood_type_" + string(bt)
}

// LocationRoom matches cities the same way geo does: trimmed, exact case.
func LocationRoom(city string) string {
	return "location_" + strings.TrimSpace(city)
}
