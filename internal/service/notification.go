package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/emergency_dispatch/internal/apperror"
	"github.com/shenikar/emergency_dispatch/internal/models"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -source=notification.go -destination=mocks/notification.go -package=mocks

// notificationPageSize - сколько последних уведомлений возвращает список
const notificationPageSize = 50

// NotificationService определяет контракт для работы пользователя со своими уведомлениями
type NotificationService interface {
	List(ctx context.Context, userID uuid.UUID) ([]*models.Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) (*models.Notification, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type notificationService struct {
	repo   NotificationRepository
	logger *logrus.Logger
	now    func() time.Time
}

func NewNotificationService(repo NotificationRepository, logger *logrus.Logger) NotificationService {
	return &notificationService{repo: repo, logger: logger, now: time.Now}
}

// List возвращает последние уведомления пользователя, новые первыми
func (s *notificationService) List(ctx context.Context, userID uuid.UUID) ([]*models.Notification, error) {
	notifications, err := s.repo.ListByRecipient(ctx, userID, notificationPageSize)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"service": "notification",
			"method":  "List",
			"user_id": userID,
		}).Error("Failed to list notifications")
		return nil, apperror.Persistence(err, "failed to list notifications")
	}
	return notifications, nil
}

// MarkRead отмечает уведомление прочитанным. Чужое уведомление неотличимо от несуществующего.
func (s *notificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) (*models.Notification, error) {
	n, err := s.repo.MarkRead(ctx, id, userID, s.now())
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return nil, err
		}
		s.logger.WithError(err).WithFields(logrus.Fields{
			"service":         "notification",
			"method":          "MarkRead",
			"notification_id": id,
		}).Error("Failed to mark notification as read")
		return nil, apperror.Persistence(err, "failed to update notification")
	}
	return n, nil
}

// MarkAllRead отмечает прочитанными все непрочитанные уведомления пользователя
func (s *notificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := s.repo.MarkAllRead(ctx, userID, s.now())
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"service": "notification",
			"method":  "MarkAllRead",
			"user_id": userID,
		}).Error("Failed to mark notifications as read")
		return 0, apperror.Persistence(err, "failed to update notifications")
	}
	return count, nil
}
