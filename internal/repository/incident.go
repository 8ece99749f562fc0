package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/emergency_dispatch/internal/apperror"
	"github.com/shenikar/emergency_dispatch/internal/models"
	"github.com/shenikar/emergency_dispatch/internal/service"
)

const defaultCacheTTL = 5 * time.Minute

const incidentColumns = `
	id,
	created_by,
	emergency_type,
	description,
	ST_X(location::geometry) AS longitude,
	ST_Y(location::geometry) AS latitude,
	address,
	status,
	responders,
	version,
	created_at,
	updated_at,
	resolved_at`

type IncidentRepository struct {
	db          *pgxpool.Pool
	redisClient *redis.Client
	cacheTTL    time.Duration
}

func NewIncidentRepository(db *pgxpool.Pool, redisClient *redis.Client, cacheTTL time.Duration) service.IncidentRepository {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &IncidentRepository{
		db:          db,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
	}
}

// Create сохраняет новое происшествие; версия начинается с 1
func (r *IncidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	responders, err := encodeResponders(incident.Responders)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO incidents (id, created_by, emergency_type, description, location, address, status, responders, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, ST_SetSRID(ST_MakePoint($5, $6), 4326)::geography, $7, $8, $9, 1, $10, $11)
		RETURNING version;
	`
	err = r.db.QueryRow(ctx, query,
		incident.ID,
		incident.CreatedBy,
		incident.Type,
		incident.Description,
		incident.Location.Longitude,
		incident.Location.Latitude,
		incident.Location.Address,
		incident.Status,
		responders,
		incident.CreatedAt,
		incident.UpdatedAt,
	).Scan(&incident.Version)
	if err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

// GetByID возвращает происшествие по его UUID
func (r *IncidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1;`

	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("emergency %s not found", id)
		}
		return nil, fmt.Errorf("failed to get incident by id: %w", err)
	}
	return incident, nil
}

// Update сохраняет изменяемые поля, если версия в бд не изменилась
func (r *IncidentRepository) Update(ctx context.Context, incident *models.Incident) error {
	responders, err := encodeResponders(incident.Responders)
	if err != nil {
		return err
	}

	query := `
		UPDATE incidents SET
			status = $1,
			responders = $2,
			updated_at = $3,
			resolved_at = $4,
			version = version + 1
		WHERE id = $5 AND version = $6;
	`
	cmdTag, err := r.db.Exec(ctx, query,
		incident.Status,
		responders,
		incident.UpdatedAt,
		incident.ResolvedAt,
		incident.ID,
		incident.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update incident: %w", err)
	}

	// Ни одной строки: либо происшествия нет, либо его успели изменить
	if cmdTag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM incidents WHERE id = $1);`, incident.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check incident existence: %w", err)
		}
		if !exists {
			return apperror.NotFound("emergency %s not found", incident.ID)
		}
		return service.ErrVersionConflict
	}

	incident.Version++
	return nil
}

// ListActive возвращает происшествия в статусах active и responding, новые первыми
func (r *IncidentRepository) ListActive(ctx context.Context) ([]*models.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE status IN ('active', 'responding')
		ORDER BY created_at DESC;
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active incidents: %w", err)
	}
	return collectIncidents(rows)
}

// FindNearby находит незакрытые происшествия в радиусе maxDistance метров от точки
func (r *IncidentRepository) FindNearby(ctx context.Context, p models.Point, maxDistance float64) ([]*models.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE
			status IN ('active', 'responding')
			AND ST_DWithin(
				location,
				ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography,
				$3
			)
		ORDER BY created_at DESC;
	`
	rows, err := r.db.Query(ctx, query, p.Longitude, p.Latitude, maxDistance)
	if err != nil {
		return nil, fmt.Errorf("failed to find incidents nearby: %w", err)
	}
	return collectIncidents(rows)
}

func collectIncidents(rows pgx.Rows) ([]*models.Incident, error) {
	defer rows.Close()

	incidents := make([]*models.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident row: %w", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return incidents, nil
}

func scanIncident(row pgx.Row) (*models.Incident, error) {
	incident := &models.Incident{}
	var responders []byte
	err := row.Scan(
		&incident.ID,
		&incident.CreatedBy,
		&incident.Type,
		&incident.Description,
		&incident.Location.Longitude,
		&incident.Location.Latitude,
		&incident.Location.Address,
		&incident.Status,
		&responders,
		&incident.Version,
		&incident.CreatedAt,
		&incident.UpdatedAt,
		&incident.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if incident.Responders, err = decodeResponders(responders); err != nil {
		return nil, err
	}
	return incident, nil
}

func encodeResponders(responders []models.Responder) ([]byte, error) {
	if responders == nil {
		responders = []models.Responder{}
	}
	b, err := json.Marshal(responders)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal responders: %w", err)
	}
	return b, nil
}

func decodeResponders(raw []byte) ([]models.Responder, error) {
	responders := []models.Responder{}
	if len(raw) == 0 {
		return responders, nil
	}
	if err := json.Unmarshal(raw, &responders); err != nil {
		return nil, fmt.Errorf("failed to unmarshal responders: %w", err)
	}
	return responders, nil
}

func incidentCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("incident:%s", id.String())
}

// GetIncidentFromCache пытается получить происшествие из Redis; промах - (nil, nil)
func (r *IncidentRepository) GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.IncidentDetails, error) {
	val, err := r.redisClient.Get(ctx, incidentCacheKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get incident from cache: %w", err)
	}

	details := &models.IncidentDetails{}
	if err := json.Unmarshal(val, details); err != nil {
		return nil, fmt.Errorf("failed to unmarshal incident from cache: %w", err)
	}
	if details.Incident == nil {
		return nil, nil
	}
	return details, nil
}

// SetIncidentCache сохраняет происшествие в Redis
func (r *IncidentRepository) SetIncidentCache(ctx context.Context, details *models.IncidentDetails) error {
	val, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal incident for cache: %w", err)
	}
	if err := r.redisClient.Set(ctx, incidentCacheKey(details.ID), val, r.cacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set incident in cache: %w", err)
	}
	return nil
}

// InvalidateIncidentCache удаляет происшествие из Redis кэша
func (r *IncidentRepository) InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error {
	if err := r.redisClient.Del(ctx, incidentCacheKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate incident cache: %w", err)
	}
	return nil
}
