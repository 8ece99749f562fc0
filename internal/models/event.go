package models

import "github.com/google/uuid"

// EventKind - имя события live-канала
type EventKind string

const (
	EventConnect    EventKind = "connect"
	EventDisconnect EventKind = "disconnect"
	EventPing       EventKind = "ping"
	EventPong       EventKind = "pong"

	EventUpdateLocation  EventKind = "update_location"
	EventLocationUpdated EventKind = "location_updated"

	EventUpdateAvailability  EventKind = "update_availability"
	EventAvailabilityUpdated EventKind = "availability_updated"

	EventNewEmergency           EventKind = "new_emergency"
	EventEmergencyCreated       EventKind = "emergency_created"
	EventEmergencyStatusUpdated EventKind = "emergency_status_updated"
	EventEmergencyResolved      EventKind = "emergency_resolved"

	EventSendSOSAlert     EventKind = "send_sos_alert"
	EventSOSAlertReceived EventKind = "sos_alert_received"

	EventJoinEmergency          EventKind = "join_emergency"
	EventLeaveEmergency         EventKind = "leave_emergency"
	EventResponderAdded         EventKind = "responder_added"
	EventResponderUpdated       EventKind = "responder_updated"
	EventUpdateResponseStatus   EventKind = "update_response_status"
	EventResponderStatusUpdated EventKind = "responder_status_updated"

	EventVoiceAssistantAudio  EventKind = "voice_assistant_audio"
	EventVoiceAssistantResult EventKind = "voice_assistant_result"
)

// EmergencyCreatedPayload - широковещательное событие для слоя карты
type EmergencyCreatedPayload struct {
	EmergencyID   uuid.UUID    `json:"emergencyId"`
	EmergencyType IncidentType `json:"emergencyType"`
	Location      [2]float64   `json:"location"`
}

// EmergencyPayload - адресное событие с кратким описанием происшествия
type EmergencyPayload struct {
	Emergency IncidentSummary `json:"emergency"`
}

// ResponderRef - участник в событиях комнаты происшествия
type ResponderRef struct {
	ID     uuid.UUID       `json:"_id"`
	Status ResponderStatus `json:"status"`
}

// ResponderEventPayload - responder_added / responder_updated
type ResponderEventPayload struct {
	EmergencyID uuid.UUID    `json:"emergencyId"`
	Responder   ResponderRef `json:"responder"`
}

// StatusUpdatedPayload - emergency_status_updated
type StatusUpdatedPayload struct {
	EmergencyID uuid.UUID      `json:"emergencyId"`
	Status      IncidentStatus `json:"status"`
	UpdatedBy   uuid.UUID      `json:"updatedBy"`
}

// ResolvedPayload - emergency_resolved
type ResolvedPayload struct {
	EmergencyID uuid.UUID `json:"emergencyId"`
}

// ResponderStatusRelayPayload - responder_status_updated (не сохраняется)
type ResponderStatusRelayPayload struct {
	ResponderID   uuid.UUID `json:"responderId"`
	ResponderName string    `json:"responderName"`
	Status        string    `json:"status"`
}

// VoiceResultPayload - voice_assistant_result
type VoiceResultPayload struct {
	Success     bool       `json:"success"`
	EmergencyID *uuid.UUID `json:"emergencyId,omitempty"`
	Message     string     `json:"message"`
	Text        string     `json:"text,omitempty"`
	Error       string     `json:"error,omitempty"`
}
