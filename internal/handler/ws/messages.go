package ws

import (
	"github.com/google/uuid"
	"github.com/shenikar/emergency_dispatch/internal/models"
)

// Входящие сообщения клиента

type locationMessage struct {
	Longitude *float64 `json:"longitude"`
	Latitude  *float64 `json:"latitude"`
}

func (m locationMessage) point() (models.Point, bool) {
	if m.Longitude == nil || m.Latitude == nil {
		return models.Point{}, false
	}
	return models.Point{Longitude: *m.Longitude, Latitude: *m.Latitude}, true
}

type availabilityMessage struct {
	AvailabilityStatus *bool `json:"availabilityStatus"`
}

type roomMessage struct {
	EmergencyID uuid.UUID `json:"emergencyId"`
}

type responseStatusMessage struct {
	EmergencyID uuid.UUID `json:"emergencyId"`
	Status      string    `json:"status"`
}

type reportLocation struct {
	locationMessage
	Address string `json:"address"`
}

type sosMessage struct {
	Location  reportLocation `json:"location"`
	Timestamp int64          `json:"timestamp"`
}

type voiceMessage struct {
	Text     string         `json:"text"`
	Audio    string         `json:"audio"`
	Location reportLocation `json:"location"`
}

// Ответы сервера

type pongPayload struct {
	Timestamp int64 `json:"timestamp"`
}

type locationAck struct {
	Success  bool          `json:"success"`
	Location *models.Point `json:"location,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type availabilityAck struct {
	Success            bool   `json:"success"`
	AvailabilityStatus bool   `json:"availabilityStatus"`
	Error              string `json:"error,omitempty"`
}
