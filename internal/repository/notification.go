package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/emergency_dispatch/internal/apperror"
	"github.com/shenikar/emergency_dispatch/internal/models"
	"github.com/shenikar/emergency_dispatch/internal/service"
)

const notificationColumns = `
	id,
	user_id,
	incident_id,
	type,
	title,
	message,
	status,
	sent_at,
	delivered_at,
	read_at,
	created_at`

// notificationCopyColumns - порядок колонок для COPY, совпадает с notificationRow
var notificationCopyColumns = []string{
	"id", "user_id", "incident_id", "type", "title", "message", "status", "sent_at", "created_at",
}

type NotificationRepository struct {
	db *pgxpool.Pool
}

func NewNotificationRepository(db *pgxpool.Pool) service.NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create сохраняет одно уведомление
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, incident_id, type, title, message, status, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	if _, err := r.db.Exec(ctx, query, notificationRow(n)...); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// BulkInsert сохраняет уведомления одной операцией COPY
func (r *NotificationRepository) BulkInsert(ctx context.Context, notifications []*models.Notification) (int64, error) {
	if len(notifications) == 0 {
		return 0, nil
	}

	count, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"notifications"},
		notificationCopyColumns,
		pgx.CopyFromSlice(len(notifications), func(i int) ([]any, error) {
			return notificationRow(notifications[i]), nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk insert notifications: %w", err)
	}
	return count, nil
}

func notificationRow(n *models.Notification) []any {
	return []any{n.ID, n.UserID, n.IncidentID, n.Type, n.Title, n.Message, n.Status, n.SentAt, n.CreatedAt}
}

// ListByRecipient возвращает последние уведомления пользователя
func (r *NotificationRepository) ListByRecipient(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2;
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	list := make([]*models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return list, nil
}

// MarkRead отмечает уведомление получателя прочитанным. Повторная отметка не меняет read_at.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID, at time.Time) (*models.Notification, error) {
	query := `
		UPDATE notifications SET
			status = 'read',
			read_at = COALESCE(read_at, $1)
		WHERE id = $2 AND user_id = $3
		RETURNING ` + notificationColumns + `;
	`
	n, err := scanNotification(r.db.QueryRow(ctx, query, at, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("notification not found")
		}
		return nil, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return n, nil
}

// MarkAllRead отмечает все непрочитанные уведомления пользователя
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	query := `
		UPDATE notifications SET
			status = 'read',
			read_at = $1
		WHERE user_id = $2 AND status <> 'read';
	`
	cmdTag, err := r.db.Exec(ctx, query, at, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}

func scanNotification(row pgx.Row) (*models.Notification, error) {
	n := &models.Notification{}
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.IncidentID,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.Status,
		&n.SentAt,
		&n.DeliveredAt,
		&n.ReadAt,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return n, nil
}
