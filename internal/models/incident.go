package models

import (
	"time"

	"github.com/google/uuid"
)

// IncidentType - тип происшествия
type IncidentType string

const (
	IncidentTypeFire            IncidentType = "fire"
	IncidentTypeMedical         IncidentType = "medical"
	IncidentTypeSecurity        IncidentType = "security"
	IncidentTypeNaturalDisaster IncidentType = "natural_disaster"
	IncidentTypeSOS             IncidentType = "sos"
	IncidentTypeOther           IncidentType = "other"
)

// Valid проверяет, что тип входит в перечисление
func (t IncidentType) Valid() bool {
	switch t {
	case IncidentTypeFire, IncidentTypeMedical, IncidentTypeSecurity,
		IncidentTypeNaturalDisaster, IncidentTypeSOS, IncidentTypeOther:
		return true
	}
	return false
}

// UnknownAddress подставляется, когда адрес определить не удалось
const UnknownAddress = "Unknown location"

// Point - географическая точка (долгота, широта)
type Point struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// Valid проверяет диапазоны координат
func (p Point) Valid() bool {
	return p.Longitude >= -180 && p.Longitude <= 180 &&
		p.Latitude >= -90 && p.Latitude <= 90
}

// Coordinates возвращает пару [lng, lat] в порядке GeoJSON
func (p Point) Coordinates() [2]float64 {
	return [2]float64{p.Longitude, p.Latitude}
}

// Location - точка происшествия вместе с адресом
type Location struct {
	Point
	Address string `json:"address"`
}

// Incident - происшествие (emergency) со встроенным списком откликнувшихся
type Incident struct {
	ID          uuid.UUID      `json:"id"`
	CreatedBy   uuid.UUID      `json:"createdBy"`
	Type        IncidentType   `json:"emergencyType"`
	Description string         `json:"description"`
	Location    Location       `json:"location"`
	Status      IncidentStatus `json:"status"`
	Responders  []Responder    `json:"responders"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	ResolvedAt  *time.Time     `json:"resolvedAt,omitempty"`

	// Version используется для оптимистичной блокировки при обновлении
	Version int64 `json:"-"`
}

// Responder возвращает запись откликнувшегося пользователя или nil
func (i *Incident) Responder(userID uuid.UUID) *Responder {
	for idx := range i.Responders {
		if i.Responders[idx].UserID == userID {
			return &i.Responders[idx]
		}
	}
	return nil
}

// IsClosed сообщает, находится ли происшествие в терминальном статусе
func (i *Incident) IsClosed() bool {
	return i.Status.Terminal()
}

// CanChangeStatus - создатель или активный участник (en_route / on_scene)
func (i *Incident) CanChangeStatus(userID uuid.UUID) bool {
	if i.CreatedBy == userID {
		return true
	}
	r := i.Responder(userID)
	return r != nil && r.Status.Active()
}

// IncidentSummary - краткое представление для push-уведомлений получателям
type IncidentSummary struct {
	ID          uuid.UUID      `json:"_id"`
	Type        IncidentType   `json:"emergencyType"`
	Description string         `json:"description"`
	Location    Location       `json:"location"`
	CreatedAt   time.Time      `json:"createdAt"`
	Status      IncidentStatus `json:"status,omitempty"`
	CreatedBy   *UserSummary   `json:"createdBy,omitempty"`
}

// Summary собирает краткое представление происшествия
func (i *Incident) Summary() IncidentSummary {
	return IncidentSummary{
		ID:          i.ID,
		Type:        i.Type,
		Description: i.Description,
		Location:    i.Location,
		CreatedAt:   i.CreatedAt,
	}
}

// IncidentReport - входные данные для регистрации происшествия
type IncidentReport struct {
	CreatorID   uuid.UUID
	Type        IncidentType
	Description string
	Point       Point
	// Address, если задан, используется вместо обратного геокодирования
	Address string
}

// DispatchResult - результат регистрации и рассылки
type DispatchResult struct {
	Incident      *Incident `json:"emergency"`
	NotifiedUsers int       `json:"notifiedUsers"`
}

// IncidentDetails - происшествие с раскрытыми данными пользователей
type IncidentDetails struct {
	*Incident
	Creator          *UserSummary       `json:"creator,omitempty"`
	ResponderDetails []ResponderDetails `json:"responderDetails"`
}

// ResponderDetails - запись участника вместе с данными пользователя
type ResponderDetails struct {
	Responder
	User *UserSummary `json:"user,omitempty"`
}
