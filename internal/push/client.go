package push

import (
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shenikar/emergency_dispatch/internal/metrics"
	"github.com/shenikar/emergency_dispatch/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 64
)

var clientIDCounter atomic.Uint64

// Client - одно live-подключение пользователя
type Client struct {
	id     uint64
	UserID uuid.UUID
	Name   string

	gateway *Gateway
	conn    *websocket.Conn
	send    chan []byte
	logger  *logrus.Logger

	// rooms защищено мьютексом шлюза
	rooms map[string]struct{}
}

// NewClient создает клиента для аутентифицированного пользователя
func NewClient(g *Gateway, conn *websocket.Conn, user *models.User) *Client {
	return &Client{
		id:      clientIDCounter.Add(1),
		UserID:  user.ID,
		Name:    user.Name,
		gateway: g,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		logger:  g.logger,
		rooms:   make(map[string]struct{}),
	}
}

// ID - уникальный номер подключения
func (c *Client) ID() uint64 {
	return c.id
}

// Run регистрирует клиента, запускает запись и читает входящие кадры, пока соединение живо.
// handle вызывается последовательно в горутине чтения.
func (c *Client) Run(handle func(*Client, Frame)) {
	c.gateway.Register(c)
	go c.writePump()
	c.readPump(handle)
}

func (c *Client) readPump(handle func(*Client, Frame)) {
	defer func() {
		c.gateway.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.WithError(err).Error("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WithError(err).WithField("user_id", c.UserID).Warn("unexpected websocket close error")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.logger.WithError(err).WithField("user_id", c.UserID).Warn("Malformed frame ignored")
			continue
		}
		metrics.WSMessagesReceived.WithLabelValues(string(frame.Event)).Inc()
		handle(c, frame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				// Шлюз закрыл очередь
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.WithError(err).WithField("user_id", c.UserID).Warn("failed to write frame")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
