package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"crm-dashboard/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second // Must be less than pongWait
	maxMessageSize = 512
)

// Conn is the part of *websocket.Conn a client uses
type Conn interface {
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one dashboard tab listening to a topic. The feed is read-only:
// apart from keepalive pings, inbound frames are ignored.
type Client struct {
	hub     *Hub
	conn    Conn
	send    chan []byte
	userID  string
	topic   string
	writeMu sync.Mutex
	closed  atomic.Bool
}

// ClientMessage is a frame sent by the browser
type ClientMessage struct {
	Type string `json:"type"`
}

// ServerMessage is a frame pushed to the browser
type ServerMessage struct {
	Type    string            `json:"type"`
	Topic   string            `json:"topic,omitempty"`
	Event   *domain.DealEvent `json:"event,omitempty"`
	Message string            `json:"message,omitempty"`
}

// NewClient creates a client subscribed to topic
func NewClient(hub *Hub, conn Conn, userID, topic string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 64),
		userID: userID,
		topic:  topic,
	}
}

// Serve registers the client and runs both pumps until the connection ends
func (c *Client) Serve() {
	c.hub.Register(c)
	c.reply(ServerMessage{Type: "subscribed", Topic: c.topic})
	go c.WritePump()
	c.ReadPump()
}

// reply writes a frame straight to the connection. The send channel
// belongs to the hub, which may close it at any time.
func (c *Client) reply(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal server message", slog.String("error", err.Error()))
		return
	}
	if err := c.writeMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("reply not delivered",
			slog.String("user_id", c.userID),
			slog.String("error", err.Error()))
	}
}

// ReadPump keeps the read deadline alive and answers pings until the peer goes away
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.closeConnection()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("failed to set read deadline",
			slog.String("error", err.Error()),
			slog.String("user_id", c.userID))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket error",
					slog.String("error", err.Error()),
					slog.String("user_id", c.userID))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("ignoring malformed frame", slog.String("user_id", c.userID))
			continue
		}
		if msg.Type == "ping" {
			c.reply(ServerMessage{Type: "pong"})
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				_ = c.writeMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return websocket.ErrCloseSent
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

func (c *Client) closeConnection() {
	if c.closed.CompareAndSwap(false, true) {
		c.writeMu.Lock()
		_ = c.conn.Close()
		c.writeMu.Unlock()
	}
}
