package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/emergency_dispatch/internal/apperror"
	"github.com/shenikar/emergency_dispatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// incidentFixture возвращает функцию, которая на каждый вызов отдает свежую копию происшествия,
// как это делает настоящее хранилище
func incidentFixture(base models.Incident) func(context.Context, uuid.UUID) (*models.Incident, error) {
	return func(context.Context, uuid.UUID) (*models.Incident, error) {
		inc := base
		inc.Responders = append([]models.Responder(nil), base.Responders...)
		return &inc, nil
	}
}

func TestGetIncident_Success_FromCache(t *testing.T) {
	// Подготовка
	svc, d := newTestIncidentService(t)
	ctx := context.Background()
	incidentID := uuid.New()
	expected := &models.IncidentDetails{Incident: &models.Incident{ID: incidentID}}

	// Ожидания
	d.incidents.EXPECT().GetIncidentFromCache(ctx, incidentID).Return(expected, nil).Times(1)

	// Действие
	details, err := svc.GetIncident(ctx, incidentID)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expected, details)
}

func TestGetIncident_Success_FromDB(t *testing.T) {
	svc, d := newTestIncidentService(t)
	ctx := context.Background()
	creator := &models.User{ID: uuid.New(), Name: "Creator"}
	responder := &models.User{ID: uuid.New(), Name: "Responder", Phone: "+100"}
	incident := &models.Incident{
		ID:         uuid.New(),
		CreatedBy:  creator.ID,
		Status:     models.IncidentResponding,
		Responders: []models.Responder{{UserID: responder.ID, Status: models.ResponderEnRoute}},
	}

	// 1. Промах кеша
	d.incidents.EXPECT().GetIncidentFromCache(ctx, incident.ID).Return(nil, nil)
	// 2. Попадание в БД
	d.incidents.EXPECT().GetByID(ctx, incident.ID).Return(incident, nil)
	d.users.EXPECT().GetByIDs(ctx, []uuid.UUID{creator.ID, responder.ID}).
		Return(map[uuid.UUID]*models.User{creator.ID: creator, responder.ID: responder}, nil)
	// 3. Запись в кеш
	d.incidents.EXPECT().SetIncidentCache(ctx, gomock.Any()).Return(nil)

	details, err := svc.GetIncident(ctx, incident.ID)

	require.NoError(t, err)
	assert.Equal(t, "Creator", details.Creator.Name)
	require.Len(t, details.ResponderDetails, 1)
	assert.Equal(t, "+100", details.ResponderDetails[0].User.Phone)
	assert.Equal(t, models.ResponderEnRoute, details.ResponderDetails[0].Status)
}

func TestGetIncident_NotFound(t *testing.T) {
	svc, d := newTestIncidentService(t)
	ctx := context.Background()
	id := uuid.New()

	d.incidents.EXPECT().GetIncidentFromCache(ctx, id).Return(nil, errors.New("redis down"))
	d.incidents.EXPECT().GetByID(ctx, id).Return(nil, apperror.NotFound("emergency not found"))

	_, err := svc.GetIncident(ctx, id)

	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestListNearby_Validation(t *testing.T) {
	svc, _ := newTestIncidentService(t)

	_, err := svc.ListNearby(context.Background(), models.Point{Latitude: 91}, 100)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = svc.ListNearby(context.Background(), models.Point{}, 0)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestListActive_RepositoryError(t *testing.T) {
	svc, d := newTestIncidentService(t)
	d.incidents.EXPECT().ListActive(gomock.Any()).Return(nil, errors.New("db down"))

	_, err := svc.ListActive(context.Background())

	assert.Equal(t, apperror.KindPersistence, apperror.KindOf(err))
}

func TestRespond_FirstResponderOnActiveIncident(t *testing.T) {
	svc, d := newTestIncidentService(t)
	ctx := context.Background()
	creatorID, actorID := uuid.New(), uuid.New()
	base := models.Incident{
		ID:        uuid.New(),
		CreatedBy: creatorID,
		Status:    models.IncidentActive,
		Location:  models.Location{Point: models.Point{Longitude: 1, Latitude: 1}},
		Version:   1,
	}
	actorLocation := models.Point{Longitude: 1.01, Latitude: 1.01}

	d.incidents.EXPECT().GetByID(ctx, base.ID).DoAndReturn(incidentFixture(base))
	d.users.EXPECT().GetByID(ctx, actorID).Return(&models.User{ID: actorID, Location: &actorLocation}, nil)
	d.router.EXPECT().TravelTime(ctx, actorLocation, base.Location.Point).Return(10*time.Minute, true)
	d.incidents.EXPECT().Update(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, inc *models.Incident) error {
			assert.Equal(t, models.IncidentResponding, inc.Status)
			require.Len(t, inc.Responders, 1)
			r := inc.Responders[0]
			assert.Equal(t, models.ResponderEnRoute, r.Status)
			require.NotNil(t, r.ETA)
			assert.Equal(t, 600.0, r.ETA.Seconds)
			assert.Equal(t, fixedNow.Add(10*time.Minute), r.ETA.Timestamp)
			assert.Equal(t, fixedNow, *r.RespondedAt)
			return nil
		})
	d.notifications.EXPECT().Create(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, n *models.Notification) error {
			assert.Equal(t, creatorID, n.UserID)
			assert.Equal(t, models.NotificationResponseUpdate, n.Type)
			return nil
		})
	expectedPayload := models.ResponderEventPayload{
		EmergencyID: base.ID,
		Responder:   models.ResponderRef{ID: actorID, Status: models.ResponderEnRoute},
	}
	d.pusher.EXPECT().SendToUser(creatorID, models.EventResponderAdded, expectedPayload)
	d.pusher.EXPECT().SendToIncidentRoom(base.ID, models.EventResponderUpdated, expectedPayload)
	d.incidents.EXPECT().InvalidateIncidentCache(ctx, base.ID).Return(nil)

	incident, err := svc.Respond(ctx, actorID, base.ID)

	require.NoError(t, err)
	assert.Equal(t, models.IncidentResponding, incident.Status)
}

func TestRespond_RoutingFailureLeavesETAUnset(t *testing.T) {
	svc, d := newTestIncidentService(t)
	ctx := context.Background()
	creatorID, actorID := uuid.New(), uuid.New()
	base := models.Incident{
		ID:        uuid.New(),
		CreatedBy: creatorID,
		Status:    models.IncidentActive,
		Location:  models.Location{Point: models.Point{Longitude: 1, Latitude: 1}},
		Version:   1,
	}
	actorLocation := models.Point{Longitude: 1.02, Latitude: 1.02}

	d.incidents.EXPECT().GetByID(ctx, base.ID).DoAndReturn(incidentFixture(base))
	d.users.EXPECT().GetByID(ctx, actorID).Return(&models.User{ID: actorID, Location: &actorLocation}, nil)
	d.router.EXPECT().TravelTime(ctx, actorLocation, base.Location.Point).Return(time.Duration(0), false)
	d.incidents.EXPECT().Update(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, inc *models.Incident) error {
			require.Len(t, inc.Responders, 1)
			assert.Equal(t, models.ResponderEnRoute, inc.Responders[0].Status)
			assert.Nil(t, inc.Responders[0].ETA)
			return nil
		})
	d.notifications.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	d.pusher.EXPECT().SendToUser(creatorID, models.EventResponderAdded, gomock.Any())
	d.pusher.EXPECT().SendToIncidentRoom(base.ID, models.EventResponderUpdated, gomock.Any())
	d.incidents.EXPECT().InvalidateIncidentCache(ctx, base.ID).Return(nil)

	incident, err := svc.Respond(ctx, actorID, base.ID)

	require.NoError(t, err)
	assert.Equal(t, models.IncidentResponding, incident.Status)
	require.Len(t, incident.Responders, 1)
	assert.Equal(t, models.ResponderEnRoute, incident.Responders[0].Status)
	assert.Nil(t, incident.Responders[0].ETA)
}

func TestRespond_EnRouteAdvancesToOnScene(t *testing.T) {
	svc, d := newTestIncidentService(t)
	ctx := context.Background()
	actorID := uuid.New()
	respondedAt := fixedNow.Add(-5 * time.Minute)
	base := models.Incident{
		ID:        uuid.New(),
		CreatedBy: uuid.New(),
		Status:    models.IncidentResponding,
		Responders: []models.Responder{
			{UserID: actorID, Status: models.ResponderEnRoute, RespondedAt: &respondedAt},
		},
	}

	d.incidents.EXPECT().GetByID(ctx, base.ID).DoAndReturn(incidentFixture(base))
	d.incidents.EXPECT().Update(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, inc *models.Incident) error {
			r := inc.Responders[0]
			assert.Equal(t, models.ResponderOnScene, r.Status)
			assert.Equal(t, fixedNow, *r.ArrivedAt)
			assert.Equal(t, respondedAt, *r.RespondedAt)
			return nil
		})
	d.notifications.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	d.pusher.EXPECT().SendToUser(base.CreatedBy, models.EventResponderAdded, gomock.Any())
	d.pusher.EXPECT().SendToIncidentRoom(base.ID, models.EventResponderUpdated, gomock.Any())
	d.incidents.EXPECT().InvalidateIncidentCache(ctx, base.ID).Return(nil)

	_, err := svc.Respond(ctx, actorID, base.ID)

	require.NoError(t, err)
}

func TestRespond_CompletedIsNoOp(t *testing.T) {
	svc, d := newTestIncidentService(t)
	ctx := context.Background()
	actorID := uuid.New()
	base := models.Incident{
		ID:         uuid.New(),
		Status:     models.IncidentResponding,
		Responders: []models.Responder{{UserID: actorID, Status: models.ResponderCompleted}},
	}

	// Ничего кроме чтения: ни записи, ни событий
	d.incidents.EXPECT().GetByID(ctx, base.ID).DoAndReturn(incidentFixture(base))

	incident, err := svc.Respond(ctx, actorID, base.ID)

	require.NoError(t, err)
	assert.Equal(t, models.ResponderCompleted, incident.Responders[0].Status)
}

func TestRespond_ResolvedIncidentConflict(t *testing.T) {
	svc, d := newTestIncidentService(t)
	ctx := context.Background()
	base := models.Incident{ID: uuid.New(), Status: models.IncidentResolved}

	d.incidents.EXPECT().GetByID(ctx, base.ID).DoAndReturn(incidentFixture(base))

	_, err := svc.Respond(ctx, uuid.New(), base.ID)

	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "resolved")
}

func TestRespond_NotFound(t *testing.T) {
	svc, d := newTestIncidentService(t)
	id := uuid.New()
	d.incidents.EXPECT().GetByID(gomock.Any(), id).Return(nil, apperror.NotFound("emergency not found"))

	_, err := svc.Respond(context.Background(), uuid.New(), id)

	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestRespond_RetriesOnVersionConflict(t *testing.T) {
	svc, d := newTestIncidentService(t)
	ctx := context.Background()
	actorID := uuid.New()
	base := models.Incident{ID: uuid.New(), CreatedBy: uuid.New(), Status: models.IncidentActive}

	gomock.InOrder(
		d.incidents.EXPECT().GetByID(ctx, base.ID).DoAndReturn(incidentFixture(base)),
		d.incidents.EXPECT().Update(ctx, gomock.Any()).Return(ErrVersionConflict),
		d.incidents.EXPECT().GetByID(ctx, base.ID).DoAndReturn(incidentFixture(base)),
		d.incidents.EXPECT().Update(ctx, gomock.Any()).Return(nil),
	)
	// Позиция участника неизвестна: ETA не считается, но запрос пользователя один
	d.users.EXPECT().GetByID(ctx, actorID).Return(&models.User{ID: actorID}, nil).Times(1)
	d.notifications.EXPECT().Create(ctx, gomock.Any()).Return(nil)
	d.pusher.EXPECT().SendToUser(gomock.Any(), models.EventResponderAdded, gomock.Any())
	d.pusher.EXPECT().SendToIncidentRoom(base.ID, models.EventResponderUpdated, gomock.Any())
	d.incidents.EXPECT().InvalidateIncidentCache(ctx, base.ID).Return(nil)

	incident, err := svc.Respond(ctx, actorID, base.ID)

	require.NoError(t, err)
	require.Len(t, incident.Responders, 1)
	assert.Equal(t, models.ResponderEnRoute, incident.Responders[0].Status)
	assert.Nil(t, incident.Responders[0].ETA)
}

func TestRespond_GivesUpAfterRepeatedConflicts(t *testing.T) {
	svc, d := newTestIncidentService(t)
	ctx := context.Background()
	actorID := uuid.New()
	base := models.Incident{ID: uuid.New(), Status: models.IncidentActive}

	d.incidents.EXPECT().GetByID(ctx, base.ID).DoAndReturn(incidentFixture(base)).Times(maxUpdateAttempts)
	d.incidents.EXPECT().Update(ctx, gomock.Any()).Return(ErrVersionConflict).Times(maxUpdateAttempts)
	d.users.EXPECT().GetByID(ctx, actorID).Return(nil, apperror.NotFound("user not found"))

	_, err := svc.Respond(ctx, actorID, base.ID)

	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
}

func TestUpdateStatus_ResolveByCreator(t *testing.T) {
	svc, d := newTestIncidentService(t)
	ctx := context.Background()
	creatorID := uuid.New()
	base := models.Incident{
		ID:         uuid.New(),
		CreatedBy:  creatorID,
		Status:     models.IncidentResponding,
		Responders: []models.Responder{{UserID: uuid.New(), Status: models.ResponderOnScene}},
	}

	d.incidents.EXPECT().GetByID(ctx, base.ID).DoAndReturn(incidentFixture(base))
	d.incidents.EXPECT().Update(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, inc *models.Incident) error {
			assert.Equal(t, models.IncidentResolved, inc.Status)
			require.NotNil(t, inc.ResolvedAt)
			assert.Equal(t, fixedNow, *inc.ResolvedAt)
			return nil
		})
	d.pusher.EXPECT().SendToIncidentRoom(base.ID, models.EventEmergencyStatusUpdated, models.StatusUpdatedPayload{
		EmergencyID: base.ID,
		Status:      models.IncidentResolved,
		UpdatedBy:   creatorID,
	})
	d.pusher.EXPECT().BroadcastAll(models.EventEmergencyResolved, models.ResolvedPayload{EmergencyID: base.ID})
	d.notifications.EXPECT().Create(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, n *models.Notification) error {
			assert.Equal(t, models.NotificationFeedbackRequest, n.Type)
			assert.Equal(t, creatorID, n.UserID)
			return nil
		})
	d.incidents.EXPECT().InvalidateIncidentCache(ctx, base.ID).Return(nil)

	incident, err := svc.UpdateStatus(ctx, creatorID, base.ID, models.IncidentResolved)

	require.NoError(t, err)
	assert.Equal(t, models.IncidentResolved, incident.Status)
}

func TestUpdateStatus_CancelByActiveResponder(t *testing.T) {
	svc, d := newTestIncidentService(t)
	ctx := context.Background()
	responderID := uuid.New()
	base := models.Incident{
		ID:         uuid.New(),
		CreatedBy:  uuid.New(),
		Status:     models.IncidentResponding,
		Responders: []models.Responder{{UserID: responderID, Status: models.ResponderEnRoute}},
	}

	d.incidents.EXPECT().GetByID(ctx, base.ID).DoAndReturn(incidentFixture(base))
	d.incidents.EXPECT().Update(ctx, gomock.Any()).Return(nil)
	d.pusher.EXPECT().SendToIncidentRoom(base.ID, models.EventEmergencyStatusUpdated, gomock.Any())
	d.incidents.EXPECT().InvalidateIncidentCache(ctx, base.ID).Return(nil)

	incident, err := svc.UpdateStatus(ctx, responderID, base.ID, models.IncidentCancelled)

	require.NoError(t, err)
	assert.Nil(t, incident.ResolvedAt)
}

func TestUpdateStatus_Errors(t *testing.T) {
	creatorID, stranger := uuid.New(), uuid.New()
	tests := []struct {
		name   string
		actor  uuid.UUID
		from   models.IncidentStatus
		to     models.IncidentStatus
		kind   apperror.Kind
		noRepo bool
	}{
		{"invalid status", creatorID, models.IncidentActive, "archived", apperror.KindValidation, true},
		{"stranger", stranger, models.IncidentActive, models.IncidentResolved, apperror.KindAuthorization, false},
		{"terminal", creatorID, models.IncidentCancelled, models.IncidentResolved, apperror.KindConflict, false},
		{"backwards", creatorID, models.IncidentResponding, models.IncidentActive, apperror.KindConflict, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, d := newTestIncidentService(t)
			base := models.Incident{ID: uuid.New(), CreatedBy: creatorID, Status: tt.from}
			if !tt.noRepo {
				d.incidents.EXPECT().GetByID(gomock.Any(), base.ID).DoAndReturn(incidentFixture(base))
			}

			_, err := svc.UpdateStatus(context.Background(), tt.actor, base.ID, tt.to)

			require.Error(t, err)
			assert.Equal(t, tt.kind, apperror.KindOf(err))
		})
	}
}

func TestUpdateStatus_SameStatusIsNoOp(t *testing.T) {
	svc, d := newTestIncidentService(t)
	base := models.Incident{ID: uuid.New(), CreatedBy: uuid.New(), Status: models.IncidentResponding}
	d.incidents.EXPECT().GetByID(gomock.Any(), base.ID).DoAndReturn(incidentFixture(base))

	incident, err := svc.UpdateStatus(context.Background(), base.CreatedBy, base.ID, models.IncidentResponding)

	require.NoError(t, err)
	assert.Equal(t, models.IncidentResponding, incident.Status)
}

func TestSubmitFeedback(t *testing.T) {
	svc, d := newTestIncidentService(t)
	ctx := context.Background()
	creatorID, responderID := uuid.New(), uuid.New()
	base := models.Incident{
		ID:         uuid.New(),
		CreatedBy:  creatorID,
		Status:     models.IncidentResolved,
		Responders: []models.Responder{{UserID: responderID, Status: models.ResponderCompleted}},
	}

	d.incidents.EXPECT().GetByID(ctx, base.ID).DoAndReturn(incidentFixture(base))
	d.incidents.EXPECT().Update(ctx, gomock.Any()).Return(nil)
	d.incidents.EXPECT().InvalidateIncidentCache(ctx, base.ID).Return(nil)

	incident, err := svc.SubmitFeedback(ctx, creatorID, base.ID, responderID, models.Feedback{Rating: 5, Comment: "thanks"})

	require.NoError(t, err)
	assert.Equal(t, 5, incident.Responders[0].Feedback.Rating)
}

func TestSubmitFeedback_OnlyCreator(t *testing.T) {
	svc, d := newTestIncidentService(t)
	base := models.Incident{ID: uuid.New(), CreatedBy: uuid.New(), Status: models.IncidentResolved}
	d.incidents.EXPECT().GetByID(gomock.Any(), base.ID).DoAndReturn(incidentFixture(base))

	_, err := svc.SubmitFeedback(context.Background(), uuid.New(), base.ID, uuid.New(), models.Feedback{Rating: 3})

	assert.Equal(t, apperror.KindAuthorization, apperror.KindOf(err))
}
