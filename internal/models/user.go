package models

import (
	"time"

	"github.com/google/uuid"
)

// User - пользователь с последним известным местоположением и флагами присутствия
type User struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	Phone             string     `json:"phone,omitempty"`
	Location          *Point     `json:"currentLocation,omitempty"`
	LocationUpdatedAt *time.Time `json:"locationUpdatedAt,omitempty"`
	Available         bool       `json:"availabilityStatus"`
	IsOnline          bool       `json:"isOnline"`
	LastOnline        *time.Time `json:"lastOnline,omitempty"`
}

// Summary возвращает публичные данные пользователя
func (u *User) Summary() *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{
		ID:       u.ID,
		Name:     u.Name,
		Phone:    u.Phone,
		Location: u.Location,
	}
}

// UserSummary - данные пользователя, раскрываемые в деталях происшествия
type UserSummary struct {
	ID       uuid.UUID `json:"_id"`
	Name     string    `json:"name"`
	Phone    string    `json:"phone,omitempty"`
	Location *Point    `json:"currentLocation,omitempty"`
}

// NearbyUsersQuery - параметры поиска пользователей рядом с точкой
type NearbyUsersQuery struct {
	Point        Point
	RadiusMeters float64
	ExcludeID    uuid.UUID
	// OnlyAvailable ограничивает выборку пользователями с флагом доступности
	OnlyAvailable bool
	// FreshSince, если задан, отсекает пользователей с устаревшей геопозицией
	FreshSince *time.Time
}
