package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/emergency_dispatch/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newActiveIncident() *Incident {
	return &Incident{
		ID:        uuid.New(),
		CreatedBy: uuid.New(),
		Type:      IncidentTypeFire,
		Status:    IncidentActive,
	}
}

func TestApplyRespond_NewResponderGoesEnRoute(t *testing.T) {
	inc := newActiveIncident()
	userID := uuid.New()
	now := time.Now()

	out, err := inc.ApplyRespond(userID, now)

	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.True(t, out.EnteredEnRoute())
	assert.True(t, out.IncidentStatusChanged)
	assert.Equal(t, IncidentResponding, inc.Status)
	require.Len(t, inc.Responders, 1)
	r := inc.Responders[0]
	assert.Equal(t, ResponderEnRoute, r.Status)
	require.NotNil(t, r.NotifiedAt)
	require.NotNil(t, r.RespondedAt)
	assert.Equal(t, now, *r.NotifiedAt)
	assert.Equal(t, now, *r.RespondedAt)
	assert.Nil(t, r.ArrivedAt)
}

func TestApplyRespond_AdvancesOneStepAndStampsOnce(t *testing.T) {
	inc := newActiveIncident()
	userID := uuid.New()
	t0 := time.Now()

	_, err := inc.ApplyRespond(userID, t0)
	require.NoError(t, err)

	t1 := t0.Add(time.Minute)
	out, err := inc.ApplyRespond(userID, t1)
	require.NoError(t, err)
	assert.Equal(t, ResponderOnScene, out.Responder.Status)
	assert.False(t, out.IncidentStatusChanged)
	assert.False(t, out.EnteredEnRoute())

	t2 := t1.Add(time.Minute)
	out, err = inc.ApplyRespond(userID, t2)
	require.NoError(t, err)
	assert.Equal(t, ResponderCompleted, out.Responder.Status)

	r := inc.Responder(userID)
	assert.Equal(t, t0, *r.RespondedAt)
	assert.Equal(t, t1, *r.ArrivedAt)
	assert.Equal(t, t2, *r.CompletedAt)
}

func TestApplyRespond_CompletedIsNoOp(t *testing.T) {
	inc := newActiveIncident()
	userID := uuid.New()
	completedAt := time.Now()
	inc.Status = IncidentResponding
	inc.Responders = []Responder{{UserID: userID, Status: ResponderCompleted, CompletedAt: &completedAt}}

	out, err := inc.ApplyRespond(userID, completedAt.Add(time.Hour))

	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Equal(t, ResponderCompleted, out.Responder.Status)
	assert.Equal(t, completedAt, *inc.Responders[0].CompletedAt)
}

func TestApplyRespond_ClosedIncidentConflict(t *testing.T) {
	for _, status := range []IncidentStatus{IncidentResolved, IncidentCancelled} {
		inc := newActiveIncident()
		inc.Status = status

		_, err := inc.ApplyRespond(uuid.New(), time.Now())

		require.Error(t, err)
		assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
		assert.Contains(t, err.Error(), string(status))
		assert.Empty(t, inc.Responders)
	}
}

func TestApplyStatus(t *testing.T) {
	tests := []struct {
		name    string
		from    IncidentStatus
		to      IncidentStatus
		changed bool
		kind    apperror.Kind
	}{
		{"active to resolved", IncidentActive, IncidentResolved, true, apperror.KindUnknown},
		{"active to cancelled", IncidentActive, IncidentCancelled, true, apperror.KindUnknown},
		{"responding to resolved", IncidentResponding, IncidentResolved, true, apperror.KindUnknown},
		{"same status is no-op", IncidentResponding, IncidentResponding, false, apperror.KindUnknown},
		{"backwards is conflict", IncidentResponding, IncidentActive, false, apperror.KindConflict},
		{"terminal is conflict", IncidentResolved, IncidentActive, false, apperror.KindConflict},
		{"terminal same is conflict", IncidentCancelled, IncidentCancelled, false, apperror.KindConflict},
		{"unknown status", IncidentActive, IncidentStatus("archived"), false, apperror.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inc := newActiveIncident()
			inc.Status = tt.from

			changed, err := inc.ApplyStatus(tt.to, time.Now())

			assert.Equal(t, tt.changed, changed)
			if tt.kind == apperror.KindUnknown {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.kind, apperror.KindOf(err))
			}
		})
	}
}

func TestApplyStatus_ResolvedStampsResolvedAt(t *testing.T) {
	inc := newActiveIncident()
	now := time.Now()

	_, err := inc.ApplyStatus(IncidentResolved, now)

	require.NoError(t, err)
	require.NotNil(t, inc.ResolvedAt)
	assert.Equal(t, now, *inc.ResolvedAt)

	inc = newActiveIncident()
	_, err = inc.ApplyStatus(IncidentCancelled, now)
	require.NoError(t, err)
	assert.Nil(t, inc.ResolvedAt)
}

func TestCanChangeStatus(t *testing.T) {
	inc := newActiveIncident()
	enRoute, onScene, done, stranger := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	inc.Responders = []Responder{
		{UserID: enRoute, Status: ResponderEnRoute},
		{UserID: onScene, Status: ResponderOnScene},
		{UserID: done, Status: ResponderCompleted},
	}

	assert.True(t, inc.CanChangeStatus(inc.CreatedBy))
	assert.True(t, inc.CanChangeStatus(enRoute))
	assert.True(t, inc.CanChangeStatus(onScene))
	assert.False(t, inc.CanChangeStatus(done))
	assert.False(t, inc.CanChangeStatus(stranger))
}

func TestApplyFeedback(t *testing.T) {
	inc := newActiveIncident()
	responderID := uuid.New()
	inc.Responders = []Responder{{UserID: responderID, Status: ResponderCompleted}}

	err := inc.ApplyFeedback(responderID, Feedback{Rating: 0})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	err = inc.ApplyFeedback(uuid.New(), Feedback{Rating: 5})
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))

	require.NoError(t, inc.ApplyFeedback(responderID, Feedback{Rating: 4, Comment: "fast"}))
	assert.Equal(t, &Feedback{Rating: 4, Comment: "fast"}, inc.Responders[0].Feedback)
}

func TestNotificationStatusBefore(t *testing.T) {
	assert.True(t, NotificationSent.Before(NotificationRead))
	assert.True(t, NotificationDelivered.Before(NotificationRead))
	assert.False(t, NotificationRead.Before(NotificationDelivered))
	assert.False(t, NotificationRead.Before(NotificationRead))
}

func TestPointValid(t *testing.T) {
	assert.True(t, Point{Longitude: 180, Latitude: -90}.Valid())
	assert.False(t, Point{Longitude: 181, Latitude: 0}.Valid())
	assert.False(t, Point{Longitude: 0, Latitude: 90.5}.Valid())
}
