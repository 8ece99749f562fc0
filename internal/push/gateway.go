// Package push - шлюз live-событий: реестр подключений, комнаты и доставка без подтверждений.
package push

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shenikar/emergency_dispatch/internal/metrics"
	"github.com/shenikar/emergency_dispatch/internal/models"
	"github.com/sirupsen/logrus"
)

// relayPublishTimeout ограничивает публикацию в межсерверный канал
const relayPublishTimeout = 2 * time.Second

// Frame - кадр live-канала {"event": ..., "data": ...}
type Frame struct {
	Event models.EventKind `json:"event"`
	Data  json.RawMessage  `json:"data,omitempty"`
}

// EncodeFrame сериализует событие в кадр
func EncodeFrame(kind models.EventKind, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	return json.Marshal(Frame{Event: kind, Data: data})
}

// UserRoom - персональная комната пользователя
func UserRoom(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// IncidentRoom - комната участников происшествия
func IncidentRoom(incidentID uuid.UUID) string {
	return "incident:" + incidentID.String()
}

// Gateway хранит подключения и комнаты. Создается один раз при старте и передается
// всем, кому нужна рассылка.
type Gateway struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	instanceID string
	relay      Relay
	logger     *logrus.Logger
}

// NewGateway создает шлюз. relay может быть nil: тогда доставка только локальная.
func NewGateway(relay Relay, logger *logrus.Logger) *Gateway {
	return &Gateway{
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		instanceID: uuid.NewString(),
		relay:      relay,
		logger:     logger,
	}
}

// Start запускает прием событий от других экземпляров сервиса
func (g *Gateway) Start(ctx context.Context) {
	if g.relay == nil {
		return
	}
	g.logger.Info("Starting push relay subscriber...")
	go func() {
		err := g.relay.Subscribe(ctx, func(env Envelope) {
			if env.Origin == g.instanceID {
				return
			}
			g.deliver(env.Room, env.Frame, nil)
		})
		if err != nil && ctx.Err() == nil {
			g.logger.WithError(err).Error("Push relay subscriber stopped")
			return
		}
		g.logger.Info("Stopping push relay subscriber.")
	}()
}

// Register добавляет клиента и подписывает его на персональную комнату
func (g *Gateway) Register(c *Client) {
	g.mu.Lock()
	g.clients[c] = struct{}{}
	g.joinLocked(c, UserRoom(c.UserID))
	total := len(g.clients)
	g.mu.Unlock()

	metrics.WSConnections.Inc()
	g.logger.WithFields(logrus.Fields{"user_id": c.UserID, "total_clients": total}).Info("websocket client connected")
}

// Unregister удаляет клиента из всех комнат и закрывает его очередь отправки
func (g *Gateway) Unregister(c *Client) {
	g.mu.Lock()
	if _, ok := g.clients[c]; !ok {
		g.mu.Unlock()
		return
	}
	for room := range c.rooms {
		g.leaveLocked(c, room)
	}
	delete(g.clients, c)
	close(c.send)
	total := len(g.clients)
	g.mu.Unlock()

	metrics.WSConnections.Dec()
	g.logger.WithFields(logrus.Fields{"user_id": c.UserID, "total_clients": total}).Info("websocket client disconnected")
}

// Join подписывает клиента на комнату
func (g *Gateway) Join(c *Client, room string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.clients[c]; ok {
		g.joinLocked(c, room)
	}
}

// Leave отписывает клиента от комнаты
func (g *Gateway) Leave(c *Client, room string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaveLocked(c, room)
}

func (g *Gateway) joinLocked(c *Client, room string) {
	members, ok := g.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		g.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (g *Gateway) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	members, ok := g.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(g.rooms, room)
	}
}

// SendToUser отправляет событие во все подключения пользователя
func (g *Gateway) SendToUser(userID uuid.UUID, kind models.EventKind, payload any) {
	g.publish(UserRoom(userID), nil, kind, payload)
}

// SendToIncidentRoom отправляет событие участникам происшествия
func (g *Gateway) SendToIncidentRoom(incidentID uuid.UUID, kind models.EventKind, payload any) {
	g.publish(IncidentRoom(incidentID), nil, kind, payload)
}

// BroadcastAll отправляет событие всем подключенным клиентам
func (g *Gateway) BroadcastAll(kind models.EventKind, payload any) {
	g.publish("", nil, kind, payload)
}

// SendToRoomExcept отправляет событие в комнату, пропуская подключение-отправителя
func (g *Gateway) SendToRoomExcept(room string, except *Client, kind models.EventKind, payload any) {
	g.publish(room, except, kind, payload)
}

// Reply отправляет событие одному подключению (подтверждения, ответы на ping)
func (g *Gateway) Reply(c *Client, kind models.EventKind, payload any) {
	frame, err := EncodeFrame(kind, payload)
	if err != nil {
		g.logger.WithError(err).Error("Failed to encode reply frame")
		return
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.clients[c]; ok {
		g.enqueue(c, frame)
	}
}

func (g *Gateway) publish(room string, except *Client, kind models.EventKind, payload any) {
	frame, err := EncodeFrame(kind, payload)
	if err != nil {
		g.logger.WithError(err).WithField("event", kind).Error("Failed to encode push frame")
		return
	}

	g.deliver(room, frame, except)

	if g.relay == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), relayPublishTimeout)
	defer cancel()
	if err := g.relay.Publish(ctx, Envelope{Origin: g.instanceID, Room: room, Frame: frame}); err != nil {
		g.logger.WithError(err).WithField("event", kind).Warn("Failed to publish push frame to relay")
	}
}

// deliver раскладывает кадр по локальным подключениям. Пустая комната - все клиенты.
func (g *Gateway) deliver(room string, frame []byte, except *Client) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	targets := g.clients
	if room != "" {
		targets = g.rooms[room]
	}
	for c := range targets {
		if c == except {
			continue
		}
		g.enqueue(c, frame)
	}
}

// enqueue не блокируется: при заполненной очереди кадр отбрасывается
func (g *Gateway) enqueue(c *Client, frame []byte) {
	select {
	case c.send <- frame:
		metrics.WSMessagesSent.Inc()
	default:
		metrics.WSMessagesDropped.Inc()
		g.logger.WithField("user_id", c.UserID).Warn("Client send buffer full, dropping message")
	}
}

// ClientCount возвращает число локальных подключений
func (g *Gateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// RoomSize возвращает число подключений в комнате
func (g *Gateway) RoomSize(room string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms[room])
}

// Close закрывает все подключения при остановке сервиса
func (g *Gateway) Close() {
	g.mu.Lock()
	clients := make([]*Client, 0, len(g.clients))
	for c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	for _, c := range clients {
		g.Unregister(c)
	}
	g.logger.WithField("clients_closed", len(clients)).Info("push gateway stopped")
}
