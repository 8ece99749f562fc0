package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/emergency_dispatch/internal/models"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/interfaces.go -package=mocks

// ErrVersionConflict возвращается хранилищем, если происшествие изменили
// между чтением и записью
var ErrVersionConflict = errors.New("emergency version conflict")

// IncidentRepository определяет контракт для работы с бд происшествий
type IncidentRepository interface {
	Create(ctx context.Context, incident *models.Incident) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	// Update сохраняет изменения, если версия в бд совпадает с incident.Version,
	// и увеличивает incident.Version. Иначе возвращает ErrVersionConflict.
	Update(ctx context.Context, incident *models.Incident) error
	ListActive(ctx context.Context) ([]*models.Incident, error)
	FindNearby(ctx context.Context, p models.Point, maxDistance float64) ([]*models.Incident, error)

	GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.IncidentDetails, error)
	SetIncidentCache(ctx context.Context, details *models.IncidentDetails) error
	InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error
}

// UserRepository - геоиндекс пользователей и флаги присутствия
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.User, error)
	FindNearby(ctx context.Context, q models.NearbyUsersQuery) ([]*models.User, error)
	UpdateLocation(ctx context.Context, id uuid.UUID, p models.Point, at time.Time) error
	UpdateAvailability(ctx context.Context, id uuid.UUID, available bool) error
	SetOnline(ctx context.Context, id uuid.UUID) error
	SetOffline(ctx context.Context, id uuid.UUID, lastSeen time.Time) error
}

// NotificationRepository - хранилище уведомлений
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	BulkInsert(ctx context.Context, notifications []*models.Notification) (int64, error)
	ListByRecipient(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID, at time.Time) (*models.Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error)
}

// Pusher доставляет события подключенным клиентам без подтверждений
type Pusher interface {
	SendToUser(userID uuid.UUID, kind models.EventKind, payload any)
	SendToIncidentRoom(incidentID uuid.UUID, kind models.EventKind, payload any)
	BroadcastAll(kind models.EventKind, payload any)
}

// Geocoder - обратное геокодирование без гарантии результата
type Geocoder interface {
	Address(ctx context.Context, p models.Point) (string, bool)
}

// Router - расчет времени в пути без гарантии результата
type Router interface {
	TravelTime(ctx context.Context, from, to models.Point) (time.Duration, bool)
}
