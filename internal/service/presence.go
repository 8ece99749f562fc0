package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/emergency_dispatch/internal/apperror"
	"github.com/shenikar/emergency_dispatch/internal/models"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -source=presence.go -destination=mocks/presence.go -package=mocks

// TokenVerifier проверяет bearer-токен и возвращает ID пользователя
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// PresenceService определяет контракт аутентификации и флагов присутствия пользователя
type PresenceService interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
	Connected(ctx context.Context, userID uuid.UUID) error
	Disconnected(ctx context.Context, userID uuid.UUID) error
	UpdateLocation(ctx context.Context, userID uuid.UUID, p models.Point) error
	UpdateAvailability(ctx context.Context, userID uuid.UUID, available bool) error
}

type presenceService struct {
	users    UserRepository
	verifier TokenVerifier
	logger   *logrus.Logger
	now      func() time.Time
}

func NewPresenceService(users UserRepository, verifier TokenVerifier, logger *logrus.Logger) PresenceService {
	return &presenceService{users: users, verifier: verifier, logger: logger, now: time.Now}
}

// Authenticate проверяет токен и существование пользователя
func (s *presenceService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, apperror.Auth("authentication token is required")
	}

	userID, err := s.verifier.Verify(token)
	if err != nil {
		s.logger.WithError(err).Debug("Token verification failed")
		return nil, apperror.Auth("invalid or expired token")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return nil, apperror.Auth("user not found")
		}
		return nil, apperror.Persistence(err, "failed to load user")
	}
	return user, nil
}

// Connected отмечает пользователя онлайн
func (s *presenceService) Connected(ctx context.Context, userID uuid.UUID) error {
	if err := s.users.SetOnline(ctx, userID); err != nil {
		return apperror.Persistence(err, "failed to mark user online")
	}
	return nil
}

// Disconnected отмечает пользователя офлайн и запоминает время последнего подключения
func (s *presenceService) Disconnected(ctx context.Context, userID uuid.UUID) error {
	if err := s.users.SetOffline(ctx, userID, s.now()); err != nil {
		return apperror.Persistence(err, "failed to mark user offline")
	}
	return nil
}

// UpdateLocation сохраняет текущую позицию пользователя
func (s *presenceService) UpdateLocation(ctx context.Context, userID uuid.UUID, p models.Point) error {
	if !p.Valid() {
		return apperror.Validation("invalid coordinates")
	}
	if err := s.users.UpdateLocation(ctx, userID, p, s.now()); err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return err
		}
		return apperror.Persistence(err, "failed to update location")
	}
	return nil
}

// UpdateAvailability меняет флаг готовности откликаться на происшествия
func (s *presenceService) UpdateAvailability(ctx context.Context, userID uuid.UUID, available bool) error {
	if err := s.users.UpdateAvailability(ctx, userID, available); err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return err
		}
		return apperror.Persistence(err, "failed to update availability")
	}
	return nil
}
