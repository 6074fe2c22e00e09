package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gymtalk/metrics"
	"gymtalk/middleware"
	"gymtalk/models"
	"gymtalk/presence"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

var (
	ErrClosed    = errors.New("channel closed")
	ErrQueueFull = errors.New("outbound queue full")
)

// Manager owns the websocket connections of this process and mirrors their
// membership into the presence registry.
type Manager struct {
	registry *presence.Registry
	secret   []byte
	buffer   int
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
}

func NewManager(registry *presence.Registry, jwtSecret string, buffer int, log *zap.Logger) *Manager {
	if buffer <= 0 {
		buffer = 256
	}
	return &Manager{
		registry: registry,
		secret:   []byte(jwtSecret),
		buffer:   buffer,
		log:      log.With(zap.String("component", "websocket")),
		upgrader: websocket.Upgrader{
			// browsers authenticate with ?token, so origin is not relied on
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*Client]struct{}),
	}
}

// Client is one live connection. It implements presence.Channel.
type Client struct {
	id      string
	userID  string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	manager *Manager

	// guarded by manager.mu; once set the client never rejoins presence
	closed bool
}

func (c *Client) ID() string { return c.id }

// Push enqueues env without blocking. A full queue means the peer is not
// reading and the push is reported as failed for this channel only.
func (c *Client) Push(ctx context.Context, env models.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

func (c *Client) reply(typ string, payload any) {
	_ = c.Push(context.Background(), models.Envelope{Type: typ, Payload: payload})
}

// WebSocketHandler authenticates the caller, upgrades the connection and
// joins it to the caller's room.
func WebSocketHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := middleware.TokenFromRequest(r)
		if err != nil {
			http.Error(w, "Token required", http.StatusUnauthorized)
			return
		}
		identity, err := middleware.ParseToken(m.secret, token)
		if err != nil {
			m.log.Debug("websocket connection rejected", zap.Error(err))
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := m.upgrader.Upgrade(w, r, nil)
		if err != nil {
			m.log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			id:      uuid.NewString(),
			userID:  identity.UserID,
			conn:    conn,
			send:    make(chan []byte, m.buffer),
			done:    make(chan struct{}),
			manager: m,
		}
		m.add(client)
		m.join(client)

		client.reply("connected", map[string]any{
			"userId":    identity.UserID,
			"channelId": client.id,
			"time":      time.Now().Unix(),
		})

		go client.writePump()
		go client.readPump()
	}
}

func (m *Manager) add(c *Client) {
	m.mu.Lock()
	m.clients[c] = struct{}{}
	m.mu.Unlock()
}

// join registers c in presence unless it has already been removed.
func (m *Manager) join(c *Client) bool {
	m.mu.Lock()
	if c.closed {
		m.mu.Unlock()
		return false
	}
	m.registry.Join(c.userID, c)
	m.mu.Unlock()

	m.updateGauges()
	m.log.Debug("channel joined", zap.String("user_id", c.userID), zap.String("channel", c.id))
	return true
}

func (m *Manager) leave(c *Client) {
	if m.registry.Leave(c) {
		m.log.Debug("channel left", zap.String("user_id", c.userID), zap.String("channel", c.id))
	}
	m.updateGauges()
}

func (m *Manager) updateGauges() {
	metrics.OnlineChannels.Set(float64(m.registry.Len()))
	metrics.OnlineUsers.Set(float64(m.registry.Users()))
}

// remove is called once per connection when either pump exits.
func (m *Manager) remove(c *Client) {
	c.once.Do(func() {
		m.mu.Lock()
		c.closed = true
		left := m.registry.Leave(c)
		delete(m.clients, c)
		m.mu.Unlock()

		close(c.done)
		m.updateGauges()
		if left {
			m.log.Debug("channel left", zap.String("user_id", c.userID), zap.String("channel", c.id))
		}
	})
}

// GetConnectedUsers returns the number of live connections.
func (m *Manager) GetConnectedUsers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// Shutdown closes every connection with a going-away frame.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	clients := make([]*Client, 0, len(m.clients))
	for c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()

	for _, c := range clients {
		m.remove(c)
	}
	m.log.Info("websocket connections closed", zap.Int("count", len(clients)))
}

type command struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type joinPayload struct {
	UserID string `json:"userId"`
}

func (c *Client) readPump() {
	defer func() {
		c.manager.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.manager.log.Warn("websocket read error", zap.String("channel", c.id), zap.Error(err))
			}
			return
		}

		var cmd command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.reply("error", map[string]any{"message": "malformed command"})
			continue
		}
		c.handle(cmd)
	}
}

func (c *Client) handle(cmd command) {
	switch cmd.Type {
	case "join":
		var p joinPayload
		if len(cmd.Payload) > 0 {
			_ = json.Unmarshal(cmd.Payload, &p)
		}
		if p.UserID != "" && p.UserID != c.userID {
			c.reply("error", map[string]any{"message": "cannot join another user's room"})
			return
		}
		if !c.manager.join(c) {
			return
		}
		c.reply("joined", map[string]any{"userId": c.userID})
	case "leave":
		c.manager.leave(c)
		c.reply("left", map[string]any{"userId": c.userID})
	case "ping":
		c.reply("pong", map[string]any{"time": time.Now().Unix()})
	default:
		c.reply("error", map[string]any{"message": "unknown command", "type": cmd.Type})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.manager.remove(c)
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}
