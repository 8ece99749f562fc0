package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType - тип уведомления
type NotificationType string

const (
	NotificationEmergencyAlert  NotificationType = "emergency_alert"
	NotificationSOSAlert        NotificationType = "sos_alert"
	NotificationResponseUpdate  NotificationType = "response_update"
	NotificationSystem          NotificationType = "system"
	NotificationFeedbackRequest NotificationType = "feedback_request"
)

// NotificationStatus - статус доставки уведомления
type NotificationStatus string

const (
	NotificationSent      NotificationStatus = "sent"
	NotificationDelivered NotificationStatus = "delivered"
	NotificationRead      NotificationStatus = "read"
)

var notificationOrder = map[NotificationStatus]int{
	NotificationSent:      0,
	NotificationDelivered: 1,
	NotificationRead:      2,
}

// Before сообщает, что статус s предшествует next (статусы меняются только вперед)
func (s NotificationStatus) Before(next NotificationStatus) bool {
	return notificationOrder[s] < notificationOrder[next]
}

// Notification - запись уведомления пользователя
type Notification struct {
	ID          uuid.UUID          `json:"id"`
	UserID      uuid.UUID          `json:"userId"`
	IncidentID  *uuid.UUID         `json:"emergencyId,omitempty"`
	Type        NotificationType   `json:"type"`
	Title       string             `json:"title"`
	Message     string             `json:"message"`
	Status      NotificationStatus `json:"status"`
	SentAt      time.Time          `json:"sentAt"`
	DeliveredAt *time.Time         `json:"deliveredAt,omitempty"`
	ReadAt      *time.Time         `json:"readAt,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// NewIncidentNotification создает уведомление, привязанное к происшествию
func NewIncidentNotification(userID, incidentID uuid.UUID, typ NotificationType, title, message string, now time.Time) *Notification {
	id := incidentID
	return &Notification{
		ID:         uuid.New(),
		UserID:     userID,
		IncidentID: &id,
		Type:       typ,
		Title:      title,
		Message:    message,
		Status:     NotificationSent,
		SentAt:     now,
		CreatedAt:  now,
	}
}
