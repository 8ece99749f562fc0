package v1

import (
	"time"

	"github.com/google/uuid"
)

// CreateEmergencyRequest DTO для регистрации происшествия
// @Description DTO для регистрации происшествия
type CreateEmergencyRequest struct {
	EmergencyType string   `json:"emergencyType" validate:"required,oneof=fire medical security natural_disaster sos other"`
	Description   string   `json:"description" validate:"required,max=2000"`
	Longitude     *float64 `json:"longitude" validate:"required,longitude"`
	Latitude      *float64 `json:"latitude" validate:"required,latitude"`
	Address       string   `json:"address,omitempty" validate:"max=500"`
}

// NearbyEmergenciesQuery параметры поиска происшествий рядом с точкой
type NearbyEmergenciesQuery struct {
	Longitude   *float64 `form:"longitude" validate:"required,longitude"`
	Latitude    *float64 `form:"latitude" validate:"required,latitude"`
	MaxDistance float64  `form:"maxDistance" validate:"omitempty,gt=0"`
}

// UpdateStatusRequest DTO для смены статуса происшествия
// @Description DTO для смены статуса происшествия
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active responding resolved cancelled"`
}

// FeedbackRequest DTO для отзыва о работе участника
// @Description DTO для отзыва о работе участника
type FeedbackRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment,omitempty" validate:"max=1000"`
}

// UpdateLocationRequest DTO для обновления геопозиции пользователя
// @Description DTO для обновления геопозиции пользователя
type UpdateLocationRequest struct {
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
}

// UpdateAvailabilityRequest DTO для смены флага доступности
// @Description DTO для смены флага доступности
type UpdateAvailabilityRequest struct {
	AvailabilityStatus *bool `json:"availabilityStatus" validate:"required"`
}

// LocationResponse DTO точки с адресом
type LocationResponse struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Address   string  `json:"address"`
}

// UserSummaryResponse DTO публичных данных пользователя
type UserSummaryResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Latitude  *float64  `json:"latitude,omitempty"`
}

// ETAResponse DTO расчетного времени прибытия
type ETAResponse struct {
	Seconds   float64   `json:"seconds"`
	Timestamp time.Time `json:"timestamp"`
}

// FeedbackResponse DTO отзыва
type FeedbackResponse struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// ResponderResponse DTO участника происшествия
type ResponderResponse struct {
	UserID      uuid.UUID            `json:"userId"`
	Status      string               `json:"status"`
	NotifiedAt  *time.Time           `json:"notifiedAt,omitempty"`
	RespondedAt *time.Time           `json:"respondedAt,omitempty"`
	ArrivedAt   *time.Time           `json:"arrivedAt,omitempty"`
	CompletedAt *time.Time           `json:"completedAt,omitempty"`
	ETA         *ETAResponse         `json:"eta,omitempty"`
	Feedback    *FeedbackResponse    `json:"feedback,omitempty"`
	User        *UserSummaryResponse `json:"user,omitempty"`
}

// EmergencyResponse DTO для ответа с информацией о происшествии
// @Description DTO для ответа с информацией о происшествии
type EmergencyResponse struct {
	ID            uuid.UUID            `json:"id"`
	CreatedBy     uuid.UUID            `json:"createdBy"`
	Creator       *UserSummaryResponse `json:"creator,omitempty"`
	EmergencyType string               `json:"emergencyType"`
	Description   string               `json:"description"`
	Location      LocationResponse     `json:"location"`
	Status        string               `json:"status"`
	Responders    []ResponderResponse  `json:"responders"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
	ResolvedAt    *time.Time           `json:"resolvedAt,omitempty"`
}

// DispatchResponse DTO результата регистрации происшествия
type DispatchResponse struct {
	Emergency     *EmergencyResponse `json:"emergency"`
	NotifiedUsers int                `json:"notifiedUsers"`
}

// NotificationResponse DTO уведомления
type NotificationResponse struct {
	ID          uuid.UUID  `json:"id"`
	EmergencyID *uuid.UUID `json:"emergencyId,omitempty"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Status      string     `json:"status"`
	SentAt      time.Time  `json:"sentAt"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// MarkAllReadResponse DTO результата массовой отметки
type MarkAllReadResponse struct {
	UpdatedCount int64 `json:"updatedCount"`
}

// SuccessResponse - успешный ответ API
type SuccessResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse - ответ API с ошибкой
type ErrorResponse struct {
	Success bool   `json:"success" example:"false"`
	Message string `json:"message"`
	Error   string `json:"error"`
}
