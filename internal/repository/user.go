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

const userColumns = `
	id,
	name,
	COALESCE(phone, '') AS phone,
	ST_X(location::geometry) AS longitude,
	ST_Y(location::geometry) AS latitude,
	location_updated_at,
	availability_status,
	is_online,
	last_online`

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) service.UserRepository {
	return &UserRepository{db: db}
}

// GetByID возвращает пользователя по UUID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1;`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user %s not found", id)
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, nil
}

// GetByIDs возвращает найденных пользователей; отсутствующие ID пропускаются
func (r *UserRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.User, error) {
	users := make(map[uuid.UUID]*models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1);`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get users by ids: %w", err)
	}
	list, err := collectUsers(rows)
	if err != nil {
		return nil, err
	}
	for _, u := range list {
		users[u.ID] = u
	}
	return users, nil
}

// FindNearby выбирает пользователей в радиусе от точки, исключая ExcludeID
func (r *UserRepository) FindNearby(ctx context.Context, q models.NearbyUsersQuery) ([]*models.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE
			location IS NOT NULL
			AND id <> $4
			AND ST_DWithin(
				location,
				ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography,
				$3
			)
			AND ($5::boolean = FALSE OR availability_status)
			AND ($6::timestamptz IS NULL OR location_updated_at >= $6::timestamptz);
	`
	rows, err := r.db.Query(ctx, query,
		q.Point.Longitude,
		q.Point.Latitude,
		q.RadiusMeters,
		q.ExcludeID,
		q.OnlyAvailable,
		q.FreshSince,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find users nearby: %w", err)
	}
	return collectUsers(rows)
}

// UpdateLocation сохраняет текущую точку пользователя и время ее обновления
func (r *UserRepository) UpdateLocation(ctx context.Context, id uuid.UUID, p models.Point, at time.Time) error {
	query := `
		UPDATE users SET
			location = ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography,
			location_updated_at = $3
		WHERE id = $4;
	`
	return r.exec(ctx, "update user location", id, query, p.Longitude, p.Latitude, at, id)
}

func (r *UserRepository) UpdateAvailability(ctx context.Context, id uuid.UUID, available bool) error {
	query := `UPDATE users SET availability_status = $1 WHERE id = $2;`
	return r.exec(ctx, "update user availability", id, query, available, id)
}

func (r *UserRepository) SetOnline(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET is_online = TRUE WHERE id = $1;`
	return r.exec(ctx, "mark user online", id, query, id)
}

func (r *UserRepository) SetOffline(ctx context.Context, id uuid.UUID, lastSeen time.Time) error {
	query := `UPDATE users SET is_online = FALSE, last_online = $1 WHERE id = $2;`
	return r.exec(ctx, "mark user offline", id, query, lastSeen, id)
}

func (r *UserRepository) exec(ctx context.Context, action string, id uuid.UUID, query string, args ...any) error {
	cmdTag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperror.NotFound("user %s not found", id)
	}
	return nil
}

func collectUsers(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return users, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	var lng, lat *float64
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Phone,
		&lng,
		&lat,
		&user.LocationUpdatedAt,
		&user.Available,
		&user.IsOnline,
		&user.LastOnline,
	)
	if err != nil {
		return nil, err
	}
	user.Location = pointFromNullable(lng, lat)
	return user, nil
}

// pointFromNullable собирает точку из nullable-колонок ST_X/ST_Y
func pointFromNullable(lng, lat *float64) *models.Point {
	if lng == nil || lat == nil {
		return nil
	}
	return &models.Point{Longitude: *lng, Latitude: *lat}
}
