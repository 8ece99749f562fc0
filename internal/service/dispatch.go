package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/emergency_dispatch/internal/apperror"
	"github.com/shenikar/emergency_dispatch/internal/metrics"
	"github.com/shenikar/emergency_dispatch/internal/models"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -source=dispatch.go -destination=mocks/dispatch.go -package=mocks

const (
	sosDescription      = "SOS ALERT: User needs immediate assistance!"
	sosAlertTitle       = "URGENT SOS ALERT NEARBY"
	unknownSenderName   = "Someone"
	defaultRadiusMeters = 5000
)

// DispatchConfig - параметры поиска получателей
type DispatchConfig struct {
	RadiusMeters      float64
	LocationFreshness time.Duration
}

// DispatchService определяет контракт регистрации происшествий и рассылки оповещений
type DispatchService interface {
	ReportIncident(ctx context.Context, report models.IncidentReport) (*models.DispatchResult, error)
	ReportSOS(ctx context.Context, creatorID uuid.UUID, p models.Point, address string) (*models.DispatchResult, error)
	ReportVoice(ctx context.Context, creatorID uuid.UUID, transcript string, p models.Point, address string) (*models.DispatchResult, error)
}

type dispatchService struct {
	incidents     IncidentRepository
	users         UserRepository
	notifications NotificationRepository
	pusher        Pusher
	geocoder      Geocoder
	cfg           DispatchConfig
	logger        *logrus.Logger
	now           func() time.Time
}

// NewDispatchService создает сервис рассылки
func NewDispatchService(
	incidents IncidentRepository,
	users UserRepository,
	notifications NotificationRepository,
	pusher Pusher,
	geocoder Geocoder,
	cfg DispatchConfig,
	logger *logrus.Logger,
) DispatchService {
	if cfg.RadiusMeters <= 0 {
		cfg.RadiusMeters = defaultRadiusMeters
	}
	return &dispatchService{
		incidents:     incidents,
		users:         users,
		notifications: notifications,
		pusher:        pusher,
		geocoder:      geocoder,
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
	}
}

// alert описывает адресную часть рассылки: уведомление и live-событие каждому получателю
type alert struct {
	notificationType models.NotificationType
	title            string
	message          string
	event            models.EventKind
	payload          any
}

// ReportIncident регистрирует происшествие и оповещает доступных пользователей поблизости
func (s *dispatchService) ReportIncident(ctx context.Context, report models.IncidentReport) (*models.DispatchResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":       "dispatch",
		"method":        "ReportIncident",
		"creator_id":    report.CreatorID,
		"emergencyType": report.Type,
	})

	if err := validateReport(report); err != nil {
		log.WithError(err).Warn("Emergency report rejected")
		return nil, err
	}

	address := report.Address
	if address == "" {
		var ok bool
		if address, ok = s.geocoder.Address(ctx, report.Point); !ok {
			address = models.UnknownAddress
		}
	}

	incident := s.newIncident(report.CreatorID, report.Type, strings.TrimSpace(report.Description), report.Point, address)
	if err := s.incidents.Create(ctx, incident); err != nil {
		log.WithError(err).Error("Failed to create emergency in repository")
		return nil, apperror.Persistence(err, "failed to save emergency")
	}
	metrics.IncidentsReported.WithLabelValues(string(incident.Type)).Inc()
	log = log.WithField("emergency_id", incident.ID)
	log.Info("Emergency created")

	freshSince := s.now().Add(-s.cfg.LocationFreshness)
	query := models.NearbyUsersQuery{
		Point:         report.Point,
		RadiusMeters:  s.cfg.RadiusMeters,
		ExcludeID:     report.CreatorID,
		OnlyAvailable: true,
	}
	if s.cfg.LocationFreshness > 0 {
		query.FreshSince = &freshSince
	}

	summary := incident.Summary()
	notified := s.fanOut(ctx, log, incident, query, alert{
		notificationType: models.NotificationEmergencyAlert,
		title:            fmt.Sprintf("%s EMERGENCY NEARBY", strings.ToUpper(string(incident.Type))),
		message: fmt.Sprintf("Someone needs help with a %s emergency about %s. Can you respond?",
			incident.Type, incident.Location.Address),
		event:   models.EventNewEmergency,
		payload: models.EmergencyPayload{Emergency: summary},
	})

	s.broadcastCreated(incident)

	log.WithField("notified_users", notified).Info("Emergency dispatched")
	return &models.DispatchResult{Incident: incident, NotifiedUsers: notified}, nil
}

// ReportSOS регистрирует SOS-сигнал: без геокодирования и без фильтров доступности
func (s *dispatchService) ReportSOS(ctx context.Context, creatorID uuid.UUID, p models.Point, address string) (*models.DispatchResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":    "dispatch",
		"method":     "ReportSOS",
		"creator_id": creatorID,
	})

	if !p.Valid() {
		return nil, apperror.Validation("invalid coordinates")
	}
	if address == "" {
		address = models.UnknownAddress
	}

	senderName := unknownSenderName
	sender, err := s.users.GetByID(ctx, creatorID)
	if err != nil {
		log.WithError(err).Warn("Failed to load SOS sender, using anonymous name")
	} else {
		senderName = sender.Name
	}

	incident := s.newIncident(creatorID, models.IncidentTypeSOS, sosDescription, p, address)
	if err := s.incidents.Create(ctx, incident); err != nil {
		log.WithError(err).Error("Failed to create SOS emergency in repository")
		return nil, apperror.Persistence(err, "failed to save emergency")
	}
	metrics.IncidentsReported.WithLabelValues(string(incident.Type)).Inc()
	log = log.WithField("emergency_id", incident.ID)
	log.Info("SOS emergency created")

	summary := incident.Summary()
	summary.CreatedBy = &models.UserSummary{ID: creatorID, Name: senderName}

	notified := s.fanOut(ctx, log, incident, models.NearbyUsersQuery{
		Point:        p,
		RadiusMeters: s.cfg.RadiusMeters,
		ExcludeID:    creatorID,
	}, alert{
		notificationType: models.NotificationSOSAlert,
		title:            sosAlertTitle,
		message:          fmt.Sprintf("%s has sent an SOS alert and needs immediate assistance!", senderName),
		event:            models.EventSOSAlertReceived,
		payload:          models.EmergencyPayload{Emergency: summary},
	})

	s.broadcastCreated(incident)

	echo := incident.Summary()
	echo.Status = incident.Status
	s.pusher.SendToUser(creatorID, models.EventNewEmergency, models.EmergencyPayload{Emergency: echo})

	log.WithField("notified_users", notified).Info("SOS dispatched")
	return &models.DispatchResult{Incident: incident, NotifiedUsers: notified}, nil
}

// ReportVoice классифицирует расшифровку речи и регистрирует происшествие обычным путем
func (s *dispatchService) ReportVoice(ctx context.Context, creatorID uuid.UUID, transcript string, p models.Point, address string) (*models.DispatchResult, error) {
	text := strings.TrimSpace(transcript)
	if text == "" {
		return nil, apperror.Validation("could not recognize any speech")
	}
	return s.ReportIncident(ctx, models.IncidentReport{
		CreatorID:   creatorID,
		Type:        ClassifyTranscript(text),
		Description: text,
		Point:       p,
		Address:     address,
	})
}

func (s *dispatchService) newIncident(creatorID uuid.UUID, typ models.IncidentType, description string, p models.Point, address string) *models.Incident {
	now := s.now()
	return &models.Incident{
		ID:          uuid.New(),
		CreatedBy:   creatorID,
		Type:        typ,
		Description: description,
		Location:    models.Location{Point: p, Address: address},
		Status:      models.IncidentActive,
		Responders:  []models.Responder{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// fanOut находит получателей, сохраняет уведомления и рассылает live-события.
// Ошибки здесь не отменяют уже созданное происшествие: они логируются,
// а число оповещенных становится 0.
func (s *dispatchService) fanOut(ctx context.Context, log *logrus.Entry, incident *models.Incident, q models.NearbyUsersQuery, a alert) int {
	recipients, err := s.users.FindNearby(ctx, q)
	if err != nil {
		log.WithError(err).Error("Failed to find nearby users")
		metrics.DispatchPartialFailures.WithLabelValues("geo_index").Inc()
		return 0
	}
	if len(recipients) == 0 {
		return 0
	}

	now := s.now()
	batch := make([]*models.Notification, 0, len(recipients))
	for _, u := range recipients {
		batch = append(batch, models.NewIncidentNotification(u.ID, incident.ID, a.notificationType, a.title, a.message, now))
	}
	if _, err := s.notifications.BulkInsert(ctx, batch); err != nil {
		log.WithError(err).WithField("recipients", len(recipients)).Error("Failed to store notifications")
		metrics.DispatchPartialFailures.WithLabelValues("notification_store").Inc()
		return 0
	}
	metrics.NotificationsCreated.WithLabelValues(string(a.notificationType)).Add(float64(len(batch)))

	for _, u := range recipients {
		s.pusher.SendToUser(u.ID, a.event, a.payload)
	}
	return len(recipients)
}

func (s *dispatchService) broadcastCreated(incident *models.Incident) {
	s.pusher.BroadcastAll(models.EventEmergencyCreated, models.EmergencyCreatedPayload{
		EmergencyID:   incident.ID,
		EmergencyType: incident.Type,
		Location:      incident.Location.Coordinates(),
	})
}

func validateReport(r models.IncidentReport) error {
	if !r.Type.Valid() {
		return apperror.Validation("invalid emergency type %q", r.Type)
	}
	if strings.TrimSpace(r.Description) == "" {
		return apperror.Validation("description is required")
	}
	if !r.Point.Valid() {
		return apperror.Validation("invalid coordinates")
	}
	return nil
}
