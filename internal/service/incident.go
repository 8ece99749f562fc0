package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/emergency_dispatch/internal/apperror"
	"github.com/shenikar/emergency_dispatch/internal/metrics"
	"github.com/shenikar/emergency_dispatch/internal/models"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -source=incident.go -destination=mocks/incident.go -package=mocks

// maxUpdateAttempts - сколько раз повторяется чтение-изменение-запись при конфликте версий
const maxUpdateAttempts = 3

const incidentCacheType = "incident"

// IncidentService определяет контракт для запросов к происшествиям и действий участников
type IncidentService interface {
	GetIncident(ctx context.Context, id uuid.UUID) (*models.IncidentDetails, error)
	ListActive(ctx context.Context) ([]*models.Incident, error)
	ListNearby(ctx context.Context, p models.Point, maxDistance float64) ([]*models.Incident, error)
	Respond(ctx context.Context, actorID, incidentID uuid.UUID) (*models.Incident, error)
	UpdateStatus(ctx context.Context, actorID, incidentID uuid.UUID, status models.IncidentStatus) (*models.Incident, error)
	SubmitFeedback(ctx context.Context, actorID, incidentID, responderID uuid.UUID, fb models.Feedback) (*models.Incident, error)
}

type incidentService struct {
	repo          IncidentRepository
	users         UserRepository
	notifications NotificationRepository
	pusher        Pusher
	router        Router
	logger        *logrus.Logger
	now           func() time.Time
}

func NewIncidentService(
	repo IncidentRepository,
	users UserRepository,
	notifications NotificationRepository,
	pusher Pusher,
	router Router,
	logger *logrus.Logger,
) IncidentService {
	return &incidentService{
		repo:          repo,
		users:         users,
		notifications: notifications,
		pusher:        pusher,
		router:        router,
		logger:        logger,
		now:           time.Now,
	}
}

// GetIncident получает происшествие с данными создателя и участников
func (s *incidentService) GetIncident(ctx context.Context, id uuid.UUID) (*models.IncidentDetails, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":      "incident",
		"method":       "GetIncident",
		"emergency_id": id,
	})

	cached, err := s.repo.GetIncidentFromCache(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to read emergency from cache")
	}
	if cached != nil {
		metrics.RecordCacheLookup(incidentCacheType, true)
		return cached, nil
	}
	metrics.RecordCacheLookup(incidentCacheType, false)

	incident, err := s.load(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to get emergency")
		return nil, err
	}

	details := s.expand(ctx, log, incident)
	if err := s.repo.SetIncidentCache(ctx, details); err != nil {
		log.WithError(err).Warn("Failed to cache emergency")
	}
	return details, nil
}

// expand подтягивает данные пользователей. Без них ответ все равно полезен,
// поэтому ошибка только логируется.
func (s *incidentService) expand(ctx context.Context, log *logrus.Entry, incident *models.Incident) *models.IncidentDetails {
	ids := make([]uuid.UUID, 0, len(incident.Responders)+1)
	ids = append(ids, incident.CreatedBy)
	for _, r := range incident.Responders {
		ids = append(ids, r.UserID)
	}

	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		log.WithError(err).Warn("Failed to load emergency participants")
		users = map[uuid.UUID]*models.User{}
	}

	details := &models.IncidentDetails{
		Incident:         incident,
		Creator:          users[incident.CreatedBy].Summary(),
		ResponderDetails: make([]models.ResponderDetails, 0, len(incident.Responders)),
	}
	for _, r := range incident.Responders {
		details.ResponderDetails = append(details.ResponderDetails, models.ResponderDetails{
			Responder: r,
			User:      users[r.UserID].Summary(),
		})
	}
	return details
}

// ListActive возвращает происшествия в статусах active и responding
func (s *incidentService) ListActive(ctx context.Context) ([]*models.Incident, error) {
	incidents, err := s.repo.ListActive(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("method", "ListActive").Error("Failed to list active emergencies")
		return nil, apperror.Persistence(err, "failed to list emergencies")
	}
	return incidents, nil
}

// ListNearby возвращает открытые происшествия в радиусе maxDistance метров
func (s *incidentService) ListNearby(ctx context.Context, p models.Point, maxDistance float64) ([]*models.Incident, error) {
	if !p.Valid() {
		return nil, apperror.Validation("invalid coordinates")
	}
	if maxDistance <= 0 {
		return nil, apperror.Validation("maxDistance must be positive")
	}

	incidents, err := s.repo.FindNearby(ctx, p, maxDistance)
	if err != nil {
		s.logger.WithError(err).WithField("method", "ListNearby").Error("Failed to find nearby emergencies")
		return nil, apperror.Persistence(err, "failed to list emergencies")
	}
	return incidents, nil
}

// Respond продвигает участника на один шаг: новый -> en_route -> on_scene -> completed
func (s *incidentService) Respond(ctx context.Context, actorID, incidentID uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":      "incident",
		"method":       "Respond",
		"emergency_id": incidentID,
		"user_id":      actorID,
	})

	var (
		outcome     models.RespondOutcome
		eta         *models.ETA
		etaResolved bool
	)
	incident, changed, err := s.mutate(ctx, incidentID, func(inc *models.Incident) (bool, error) {
		now := s.now()
		out, err := inc.ApplyRespond(actorID, now)
		if err != nil {
			return false, err
		}
		outcome = out
		if out.EnteredEnRoute() {
			// Маршрут запрашивается один раз, даже если запись повторяется
			if !etaResolved {
				eta = s.estimateArrival(ctx, actorID, inc.Location.Point, now)
				etaResolved = true
			}
			if eta != nil {
				inc.SetResponderETA(actorID, *eta)
			}
		}
		return out.Changed || out.IncidentStatusChanged, nil
	})
	if err != nil {
		log.WithError(err).Warn("Failed to respond to emergency")
		return nil, err
	}
	if !changed {
		log.Info("Responder already completed, nothing to do")
		return incident, nil
	}

	metrics.ResponderTransitions.WithLabelValues(string(outcome.Responder.Status)).Inc()
	log.WithField("responder_status", outcome.Responder.Status).Info("Responder status changed")

	n := models.NewIncidentNotification(incident.CreatedBy, incident.ID, models.NotificationResponseUpdate,
		"Someone is responding to your emergency", "A responder is on the way to help you.", s.now())
	if err := s.notifications.Create(ctx, n); err != nil {
		log.WithError(err).Error("Failed to store response notification")
	} else {
		metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()
	}

	payload := models.ResponderEventPayload{
		EmergencyID: incident.ID,
		Responder:   models.ResponderRef{ID: actorID, Status: outcome.Responder.Status},
	}
	s.pusher.SendToUser(incident.CreatedBy, models.EventResponderAdded, payload)
	s.pusher.SendToIncidentRoom(incident.ID, models.EventResponderUpdated, payload)

	s.invalidate(ctx, log, incident.ID)
	return incident, nil
}

// estimateArrival считает ETA от последней известной позиции участника
func (s *incidentService) estimateArrival(ctx context.Context, userID uuid.UUID, dest models.Point, now time.Time) *models.ETA {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil || user.Location == nil {
		return nil
	}
	d, ok := s.router.TravelTime(ctx, *user.Location, dest)
	if !ok {
		return nil
	}
	return &models.ETA{Seconds: d.Seconds(), Timestamp: now.Add(d)}
}

// UpdateStatus выполняет ручную смену статуса создателем или активным участником
func (s *incidentService) UpdateStatus(ctx context.Context, actorID, incidentID uuid.UUID, status models.IncidentStatus) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":      "incident",
		"method":       "UpdateStatus",
		"emergency_id": incidentID,
		"user_id":      actorID,
		"status":       status,
	})

	if !status.Valid() {
		return nil, apperror.Validation("invalid status %q", status)
	}

	incident, changed, err := s.mutate(ctx, incidentID, func(inc *models.Incident) (bool, error) {
		if !inc.CanChangeStatus(actorID) {
			return false, apperror.Authorization("not authorized to update this emergency")
		}
		return inc.ApplyStatus(status, s.now())
	})
	if err != nil {
		log.WithError(err).Warn("Failed to update emergency status")
		return nil, err
	}
	if !changed {
		return incident, nil
	}
	log.Info("Emergency status updated")

	s.pusher.SendToIncidentRoom(incident.ID, models.EventEmergencyStatusUpdated, models.StatusUpdatedPayload{
		EmergencyID: incident.ID,
		Status:      incident.Status,
		UpdatedBy:   actorID,
	})

	if incident.Status == models.IncidentResolved {
		s.pusher.BroadcastAll(models.EventEmergencyResolved, models.ResolvedPayload{EmergencyID: incident.ID})
		if len(incident.Responders) > 0 {
			n := models.NewIncidentNotification(incident.CreatedBy, incident.ID, models.NotificationFeedbackRequest,
				"How did the responders do?", "Your emergency has been resolved. Please rate the people who helped you.", s.now())
			if err := s.notifications.Create(ctx, n); err != nil {
				log.WithError(err).Error("Failed to store feedback request")
			} else {
				metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()
			}
		}
	}

	s.invalidate(ctx, log, incident.ID)
	return incident, nil
}

// SubmitFeedback сохраняет оценку участника. Оставить ее может только создатель.
func (s *incidentService) SubmitFeedback(ctx context.Context, actorID, incidentID, responderID uuid.UUID, fb models.Feedback) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":      "incident",
		"method":       "SubmitFeedback",
		"emergency_id": incidentID,
		"responder_id": responderID,
	})

	incident, _, err := s.mutate(ctx, incidentID, func(inc *models.Incident) (bool, error) {
		if inc.CreatedBy != actorID {
			return false, apperror.Authorization("only the emergency creator can leave feedback")
		}
		if err := inc.ApplyFeedback(responderID, fb); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		log.WithError(err).Warn("Failed to submit feedback")
		return nil, err
	}

	s.invalidate(ctx, log, incident.ID)
	return incident, nil
}

// mutate выполняет чтение-изменение-запись с оптимистичной блокировкой.
// fn возвращает false, если сохранять нечего.
func (s *incidentService) mutate(ctx context.Context, id uuid.UUID, fn func(*models.Incident) (bool, error)) (*models.Incident, bool, error) {
	for attempt := 1; ; attempt++ {
		incident, err := s.load(ctx, id)
		if err != nil {
			return nil, false, err
		}

		changed, err := fn(incident)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return incident, false, nil
		}

		incident.UpdatedAt = s.now()
		err = s.repo.Update(ctx, incident)
		if err == nil {
			return incident, true, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, false, apperror.Persistence(err, "failed to update emergency")
		}
		if attempt == maxUpdateAttempts {
			return nil, false, apperror.Conflict("emergency was modified concurrently, please retry")
		}
		metrics.OptimisticRetries.Inc()
	}
}

func (s *incidentService) load(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindNotFound {
			return nil, err
		}
		return nil, apperror.Persistence(err, "failed to load emergency")
	}
	return incident, nil
}

func (s *incidentService) invalidate(ctx context.Context, log *logrus.Entry, id uuid.UUID) {
	if err := s.repo.InvalidateIncidentCache(ctx, id); err != nil {
		log.WithError(err).Warn("Failed to invalidate emergency cache")
	}
}
