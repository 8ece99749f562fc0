package ws

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shenikar/emergency_dispatch/internal/apperror"
	"github.com/shenikar/emergency_dispatch/internal/models"
	"github.com/shenikar/emergency_dispatch/internal/push"
	"github.com/shenikar/emergency_dispatch/internal/service/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type testEnv struct {
	server   *httptest.Server
	handler  *Handler
	gateway  *push.Gateway
	presence *mocks.MockPresenceService
	dispatch *mocks.MockDispatchService
	users    map[string]*models.User

	disconnected atomic.Int32
}

func newTestEnv(t *testing.T, tokens ...string) *testEnv {
	ctrl := gomock.NewController(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env := &testEnv{
		gateway:  push.NewGateway(nil, logger),
		presence: mocks.NewMockPresenceService(ctrl),
		dispatch: mocks.NewMockDispatchService(ctrl),
		users:    make(map[string]*models.User),
	}
	for i, token := range tokens {
		user := &models.User{ID: uuid.New(), Name: []string{"Alice", "Bob", "Carol"}[i%3]}
		env.users[token] = user
		env.presence.EXPECT().Authenticate(gomock.Any(), token).Return(user, nil).AnyTimes()
	}
	env.presence.EXPECT().Authenticate(gomock.Any(), gomock.Any()).Return(nil, apperror.Auth("invalid or expired token")).AnyTimes()
	env.presence.EXPECT().Connected(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	env.presence.EXPECT().Disconnected(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, uuid.UUID) error {
			env.disconnected.Add(1)
			return nil
		}).AnyTimes()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	env.handler = NewHandler(env.gateway, env.presence, env.dispatch, nil, logger)
	env.handler.RegisterRoutes(router)

	env.server = httptest.NewServer(router)
	t.Cleanup(func() {
		env.gateway.Close()
		env.server.Close()
	})
	return env
}

func (e *testEnv) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	// дожидаемся регистрации в шлюзе
	user := e.users[token]
	require.Eventually(t, func() bool {
		return e.gateway.RoomSize(push.UserRoom(user.ID)) > 0
	}, time.Second, 5*time.Millisecond)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event models.EventKind, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(push.Frame{Event: event, Data: raw})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func read(t *testing.T, conn *websocket.Conn) push.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var f push.Frame
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

func TestHandshake_RejectsWithoutToken(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, env.gateway.ClientCount())
}

func TestHandshake_BearerHeader(t *testing.T) {
	env := newTestEnv(t, "alice")

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"
	header := http.Header{"Authorization": []string{"Bearer alice"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	defer conn.Close()

	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
}

func TestPingPong(t *testing.T) {
	env := newTestEnv(t, "alice")
	conn := env.dial(t, "alice")

	send(t, conn, models.EventPing, nil)

	assert.Equal(t, models.EventPong, read(t, conn).Event)
}

func TestUpdateLocation_Ack(t *testing.T) {
	env := newTestEnv(t, "alice")
	user := env.users["alice"]
	env.presence.EXPECT().UpdateLocation(gomock.Any(), user.ID, models.Point{Longitude: 13.4, Latitude: 52.5}).Return(nil)
	conn := env.dial(t, "alice")

	send(t, conn, models.EventUpdateLocation, map[string]float64{"longitude": 13.4, "latitude": 52.5})

	f := read(t, conn)
	assert.Equal(t, models.EventLocationUpdated, f.Event)
	var ack locationAck
	require.NoError(t, json.Unmarshal(f.Data, &ack))
	assert.True(t, ack.Success)
}

func TestUpdateLocation_InvalidKeepsConnection(t *testing.T) {
	env := newTestEnv(t, "alice")
	conn := env.dial(t, "alice")

	send(t, conn, models.EventUpdateLocation, map[string]float64{"longitude": 13.4})
	f := read(t, conn)
	assert.Equal(t, models.EventLocationUpdated, f.Event)
	var ack locationAck
	require.NoError(t, json.Unmarshal(f.Data, &ack))
	assert.False(t, ack.Success)

	send(t, conn, models.EventPing, nil)
	assert.Equal(t, models.EventPong, read(t, conn).Event)
}

func TestUpdateAvailability_Ack(t *testing.T) {
	env := newTestEnv(t, "alice")
	user := env.users["alice"]
	env.presence.EXPECT().UpdateAvailability(gomock.Any(), user.ID, false).Return(nil)
	conn := env.dial(t, "alice")

	send(t, conn, models.EventUpdateAvailability, map[string]bool{"availabilityStatus": false})

	f := read(t, conn)
	assert.Equal(t, models.EventAvailabilityUpdated, f.Event)
	assert.JSONEq(t, `{"success":true,"availabilityStatus":false}`, string(f.Data))
}

func TestResponseStatusRelayedToRoomExceptSender(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	incidentID := uuid.New()
	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")

	send(t, alice, models.EventJoinEmergency, map[string]uuid.UUID{"emergencyId": incidentID})
	send(t, bob, models.EventJoinEmergency, map[string]uuid.UUID{"emergencyId": incidentID})
	require.Eventually(t, func() bool {
		return env.gateway.RoomSize(push.IncidentRoom(incidentID)) == 2
	}, time.Second, 5*time.Millisecond)

	send(t, bob, models.EventUpdateResponseStatus, map[string]string{"emergencyId": incidentID.String(), "status": "on_scene"})

	f := read(t, alice)
	assert.Equal(t, models.EventResponderStatusUpdated, f.Event)
	var payload models.ResponderStatusRelayPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, env.users["bob"].ID, payload.ResponderID)
	assert.Equal(t, "Bob", payload.ResponderName)
	assert.Equal(t, "on_scene", payload.Status)

	// отправитель свое событие не получает: следующий кадр у Bob - ответ на ping
	send(t, bob, models.EventPing, nil)
	assert.Equal(t, models.EventPong, read(t, bob).Event)

	send(t, alice, models.EventLeaveEmergency, map[string]uuid.UUID{"emergencyId": incidentID})
	require.Eventually(t, func() bool {
		return env.gateway.RoomSize(push.IncidentRoom(incidentID)) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRoomMessagesRequireFields(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	incidentID := uuid.New()
	alice := env.dial(t, "alice")
	bob := env.dial(t, "bob")

	send(t, alice, models.EventJoinEmergency, map[string]string{})
	send(t, alice, models.EventPing, nil)
	assert.Equal(t, models.EventPong, read(t, alice).Event)
	assert.Equal(t, 0, env.gateway.RoomSize(push.IncidentRoom(uuid.Nil)))

	send(t, alice, models.EventJoinEmergency, map[string]uuid.UUID{"emergencyId": incidentID})
	require.Eventually(t, func() bool {
		return env.gateway.RoomSize(push.IncidentRoom(incidentID)) == 1
	}, time.Second, 5*time.Millisecond)

	// Без статуса событие не пересылается: первым Alice получает следующее корректное
	send(t, bob, models.EventUpdateResponseStatus, map[string]string{"emergencyId": incidentID.String()})
	send(t, bob, models.EventUpdateResponseStatus, map[string]string{"status": "en_route"})
	send(t, bob, models.EventUpdateResponseStatus, map[string]string{"emergencyId": incidentID.String(), "status": "on_scene"})

	f := read(t, alice)
	assert.Equal(t, models.EventResponderStatusUpdated, f.Event)
	var payload models.ResponderStatusRelayPayload
	require.NoError(t, json.Unmarshal(f.Data, &payload))
	assert.Equal(t, "on_scene", payload.Status)
}

func TestWait_DrainsSessionsAfterGatewayClose(t *testing.T) {
	env := newTestEnv(t, "alice", "bob")
	env.dial(t, "alice")
	env.dial(t, "bob")

	env.gateway.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, env.handler.Wait(ctx))
	assert.Equal(t, int32(2), env.disconnected.Load())
}

func TestWait_NoSessions(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, env.handler.Wait(ctx))
}

func TestSendSOSAlert(t *testing.T) {
	env := newTestEnv(t, "alice")
	user := env.users["alice"]
	done := make(chan struct{})

	env.dispatch.EXPECT().
		ReportSOS(gomock.Any(), user.ID, models.Point{Longitude: 2.35, Latitude: 48.85}, "Rue de Rivoli").
		DoAndReturn(func(_ context.Context, creatorID uuid.UUID, p models.Point, address string) (*models.DispatchResult, error) {
			defer close(done)
			return &models.DispatchResult{Incident: &models.Incident{ID: uuid.New(), Type: models.IncidentTypeSOS}, NotifiedUsers: 1}, nil
		})
	conn := env.dial(t, "alice")

	send(t, conn, models.EventSendSOSAlert, map[string]any{
		"location":  map[string]any{"longitude": 2.35, "latitude": 48.85, "address": "Rue de Rivoli"},
		"timestamp": time.Now().UnixMilli(),
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ReportSOS was not called")
	}
}

func TestVoiceAssistant(t *testing.T) {
	t.Run("transcript creates emergency", func(t *testing.T) {
		env := newTestEnv(t, "alice")
		user := env.users["alice"]
		incidentID := uuid.New()
		env.dispatch.EXPECT().
			ReportVoice(gomock.Any(), user.ID, "there is smoke everywhere", models.Point{Longitude: 1, Latitude: 2}, "").
			Return(&models.DispatchResult{Incident: &models.Incident{
				ID: incidentID, Type: models.IncidentTypeFire, Description: "there is smoke everywhere",
			}}, nil)
		conn := env.dial(t, "alice")

		send(t, conn, models.EventVoiceAssistantAudio, map[string]any{
			"text":     "there is smoke everywhere",
			"location": map[string]float64{"longitude": 1, "latitude": 2},
		})

		f := read(t, conn)
		assert.Equal(t, models.EventVoiceAssistantResult, f.Event)
		var result models.VoiceResultPayload
		require.NoError(t, json.Unmarshal(f.Data, &result))
		assert.True(t, result.Success)
		assert.Equal(t, "Emergency report created: fire", result.Message)
		require.NotNil(t, result.EmergencyID)
		assert.Equal(t, incidentID, *result.EmergencyID)
	})

	t.Run("audio without transcript fails", func(t *testing.T) {
		env := newTestEnv(t, "alice")
		env.dispatch.EXPECT().ReportVoice(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		conn := env.dial(t, "alice")

		send(t, conn, models.EventVoiceAssistantAudio, map[string]any{
			"audio":    "UklGRiQAAABXQVZF",
			"location": map[string]float64{"longitude": 1, "latitude": 2},
		})

		f := read(t, conn)
		var result models.VoiceResultPayload
		require.NoError(t, json.Unmarshal(f.Data, &result))
		assert.False(t, result.Success)
		assert.NotEmpty(t, result.Error)
	})
}

func TestServerPushReachesConnectedUser(t *testing.T) {
	env := newTestEnv(t, "alice")
	user := env.users["alice"]
	conn := env.dial(t, "alice")

	env.gateway.SendToUser(user.ID, models.EventNewEmergency, models.EmergencyPayload{
		Emergency: models.IncidentSummary{ID: uuid.New(), Type: models.IncidentTypeMedical},
	})

	assert.Equal(t, models.EventNewEmergency, read(t, conn).Event)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example.com"})

	allowed := httptest.NewRequest(http.MethodGet, "/ws", nil)
	allowed.Header.Set("Origin", "https://app.example.com")
	denied := httptest.NewRequest(http.MethodGet, "/ws", nil)
	denied.Header.Set("Origin", "https://evil.example.com")

	assert.True(t, check(allowed))
	assert.False(t, check(denied))
	assert.True(t, originChecker(nil)(denied))
}
