// Package ws обслуживает live-канал: аутентификация при подключении и разбор входящих сообщений.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shenikar/emergency_dispatch/internal/apperror"
	"github.com/shenikar/emergency_dispatch/internal/auth"
	"github.com/shenikar/emergency_dispatch/internal/models"
	"github.com/shenikar/emergency_dispatch/internal/push"
	"github.com/shenikar/emergency_dispatch/internal/service"
	"github.com/sirupsen/logrus"
)

// messageTimeout ограничивает обработку одного входящего сообщения
const messageTimeout = 15 * time.Second

type Handler struct {
	gateway  *push.Gateway
	presence service.PresenceService
	dispatch service.DispatchService
	upgrader websocket.Upgrader
	logger   *logrus.Logger
	now      func() time.Time

	// sessions - открытые live-сессии, чьи финальные записи присутствия еще не завершены
	sessions sync.WaitGroup
}

// NewHandler создает обработчик live-канала. Пустой allowedOrigins разрешает любой Origin.
func NewHandler(
	gateway *push.Gateway,
	presence service.PresenceService,
	dispatch service.DispatchService,
	allowedOrigins []string,
	logger *logrus.Logger,
) *Handler {
	return &Handler{
		gateway:  gateway,
		presence: presence,
		dispatch: dispatch,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
		now:    time.Now,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// RegisterRoutes регистрирует endpoint live-канала
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws", h.serveWS)
}

// @Summary Live channel
// @Description WebSocket upgrade. Token is taken from the Authorization header or the token query parameter.
// @Tags Live
// @Param token query string false "Bearer token"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} map[string]any "Unauthorized"
// @Router /ws [get]
func (h *Handler) serveWS(c *gin.Context) {
	log := h.logger.WithField("method", "serveWS")

	token := auth.ExtractBearer(c.GetHeader("Authorization"))
	if token == "" {
		token = c.Query("token")
	}

	user, err := h.presence.Authenticate(c.Request.Context(), token)
	if err != nil {
		kind := apperror.KindOf(err)
		log.WithError(err).Warn("Live channel handshake rejected")
		c.AbortWithStatusJSON(kind.HTTPStatus(), gin.H{
			"success": false,
			"message": apperror.PublicMessage(err),
			"error":   kind.String(),
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("Failed to upgrade connection")
		return
	}
	h.sessions.Add(1)
	defer h.sessions.Done()

	log = log.WithField("user_id", user.ID)
	if err := h.presence.Connected(context.Background(), user.ID); err != nil {
		log.WithError(err).Warn("Failed to mark user online")
	}

	client := push.NewClient(h.gateway, conn, user)
	client.Run(h.handleFrame)

	ctx, cancel := context.WithTimeout(context.Background(), messageTimeout)
	defer cancel()
	if err := h.presence.Disconnected(ctx, user.ID); err != nil {
		log.WithError(err).Warn("Failed to mark user offline")
	}
}

// Wait ждет завершения всех live-сессий, включая отметку пользователей офлайн.
// Вызывается после закрытия шлюза и до закрытия пула бд.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("live sessions did not finish: %w", ctx.Err())
	}
}

// handleFrame маршрутизирует входящее сообщение. Ошибки только логируются: соединение остается открытым.
func (h *Handler) handleFrame(c *push.Client, frame push.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), messageTimeout)
	defer cancel()

	log := h.logger.WithFields(logrus.Fields{"user_id": c.UserID, "event": frame.Event})

	var err error
	switch frame.Event {
	case models.EventPing:
		h.gateway.Reply(c, models.EventPong, pongPayload{Timestamp: h.now().UnixMilli()})
	case models.EventUpdateLocation:
		err = h.onUpdateLocation(ctx, c, frame.Data)
	case models.EventUpdateAvailability:
		err = h.onUpdateAvailability(ctx, c, frame.Data)
	case models.EventJoinEmergency:
		err = h.onRoom(c, frame.Data, true)
	case models.EventLeaveEmergency:
		err = h.onRoom(c, frame.Data, false)
	case models.EventUpdateResponseStatus:
		err = h.onResponseStatus(c, frame.Data)
	case models.EventSendSOSAlert:
		err = h.onSOS(ctx, c, frame.Data)
	case models.EventVoiceAssistantAudio:
		err = h.onVoice(ctx, c, frame.Data)
	default:
		log.Debug("Unknown live event ignored")
		return
	}

	if err != nil {
		log.WithError(err).Warn("Failed to handle live event")
	}
}

func decode(data []byte, v any) error {
	if len(data) == 0 {
		return apperror.Validation("message payload is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperror.Validation("malformed message payload: %v", err)
	}
	return nil
}

func (h *Handler) onUpdateLocation(ctx context.Context, c *push.Client, data []byte) error {
	var msg locationMessage
	if err := decode(data, &msg); err != nil {
		h.gateway.Reply(c, models.EventLocationUpdated, locationAck{Error: apperror.PublicMessage(err)})
		return err
	}
	p, ok := msg.point()
	if !ok {
		err := apperror.Validation("longitude and latitude are required")
		h.gateway.Reply(c, models.EventLocationUpdated, locationAck{Error: apperror.PublicMessage(err)})
		return err
	}
	if err := h.presence.UpdateLocation(ctx, c.UserID, p); err != nil {
		h.gateway.Reply(c, models.EventLocationUpdated, locationAck{Error: apperror.PublicMessage(err)})
		return err
	}
	h.gateway.Reply(c, models.EventLocationUpdated, locationAck{Success: true, Location: &p})
	return nil
}

func (h *Handler) onUpdateAvailability(ctx context.Context, c *push.Client, data []byte) error {
	var msg availabilityMessage
	if err := decode(data, &msg); err != nil {
		return err
	}
	if msg.AvailabilityStatus == nil {
		return apperror.Validation("availabilityStatus is required")
	}
	available := *msg.AvailabilityStatus
	if err := h.presence.UpdateAvailability(ctx, c.UserID, available); err != nil {
		h.gateway.Reply(c, models.EventAvailabilityUpdated, availabilityAck{AvailabilityStatus: available, Error: apperror.PublicMessage(err)})
		return err
	}
	h.gateway.Reply(c, models.EventAvailabilityUpdated, availabilityAck{Success: true, AvailabilityStatus: available})
	return nil
}

func (h *Handler) onRoom(c *push.Client, data []byte, join bool) error {
	var msg roomMessage
	if err := decode(data, &msg); err != nil {
		return err
	}
	if msg.EmergencyID == uuid.Nil {
		return apperror.Validation("emergencyId is required")
	}
	room := push.IncidentRoom(msg.EmergencyID)
	if join {
		h.gateway.Join(c, room)
	} else {
		h.gateway.Leave(c, room)
	}
	return nil
}

// onResponseStatus пересылает статус участника в комнату происшествия, не сохраняя его
func (h *Handler) onResponseStatus(c *push.Client, data []byte) error {
	var msg responseStatusMessage
	if err := decode(data, &msg); err != nil {
		return err
	}
	if msg.EmergencyID == uuid.Nil || msg.Status == "" {
		return apperror.Validation("emergencyId and status are required")
	}
	h.gateway.SendToRoomExcept(push.IncidentRoom(msg.EmergencyID), c, models.EventResponderStatusUpdated,
		models.ResponderStatusRelayPayload{
			ResponderID:   c.UserID,
			ResponderName: c.Name,
			Status:        msg.Status,
		})
	return nil
}

func (h *Handler) onSOS(ctx context.Context, c *push.Client, data []byte) error {
	var msg sosMessage
	if err := decode(data, &msg); err != nil {
		return err
	}
	p, ok := msg.Location.point()
	if !ok {
		return apperror.Validation("SOS location is required")
	}
	result, err := h.dispatch.ReportSOS(ctx, c.UserID, p, msg.Location.Address)
	if err != nil {
		return fmt.Errorf("sos dispatch failed: %w", err)
	}
	h.logger.WithFields(logrus.Fields{
		"user_id":        c.UserID,
		"emergency_id":   result.Incident.ID,
		"notified_users": result.NotifiedUsers,
	}).Info("SOS alert handled")
	return nil
}

func (h *Handler) onVoice(ctx context.Context, c *push.Client, data []byte) error {
	var msg voiceMessage
	if err := decode(data, &msg); err != nil {
		h.replyVoiceFailure(c, "", err)
		return err
	}

	p, ok := msg.Location.point()
	if !ok {
		err := apperror.Validation("location is required")
		h.replyVoiceFailure(c, msg.Text, err)
		return err
	}
	if msg.Text == "" && msg.Audio != "" {
		err := apperror.Validation("speech recognition is not available, send a transcript")
		h.replyVoiceFailure(c, "", err)
		return err
	}

	result, err := h.dispatch.ReportVoice(ctx, c.UserID, msg.Text, p, msg.Location.Address)
	if err != nil {
		h.replyVoiceFailure(c, msg.Text, err)
		return err
	}

	id := result.Incident.ID
	h.gateway.Reply(c, models.EventVoiceAssistantResult, models.VoiceResultPayload{
		Success:     true,
		EmergencyID: &id,
		Message:     fmt.Sprintf("Emergency report created: %s", result.Incident.Type),
		Text:        result.Incident.Description,
	})
	return nil
}

func (h *Handler) replyVoiceFailure(c *push.Client, text string, err error) {
	h.gateway.Reply(c, models.EventVoiceAssistantResult, models.VoiceResultPayload{
		Success: false,
		Message: "Failed to process voice report",
		Text:    text,
		Error:   apperror.PublicMessage(err),
	})
}
