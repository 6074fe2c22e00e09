package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gymtalk/middleware"
	"gymtalk/models"
	"gymtalk/presence"
)

const secret = "ws-secret"

type frame struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func token(t *testing.T, userID string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		UserID: userID,
		Role:   models.RoleClient,
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func setup(t *testing.T, buffer int) (*presence.Registry, *Manager, string) {
	t.Helper()
	registry := presence.NewRegistry()
	manager := NewManager(registry, secret, buffer, zap.NewNop())
	srv := httptest.NewServer(WebSocketHandler(manager))
	t.Cleanup(srv.Close)
	return registry, manager, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, userID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token(t, userID), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWebSocket_Rejects_Missing_Or_Bad_Token(t *testing.T) {
	_, _, url := setup(t, 8)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=nope", nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_Connect_Push_And_Disconnect(t *testing.T) {
	req := require.New(t)
	registry, manager, url := setup(t, 8)

	// Given a client connected twice
	tab := dial(t, url, "c1")
	phone := dial(t, url, "c1")
	req.Equal("connected", read(t, tab).Type)
	req.Equal("connected", read(t, phone).Type)
	req.Len(registry.ChannelsFor("c1"), 2)
	req.Equal(2, manager.GetConnectedUsers())

	// When a message is pushed to the user
	for _, ch := range registry.ChannelsFor("c1") {
		req.NoError(ch.Push(context.Background(), models.Envelope{
			Type:    "new_message",
			Payload: models.Message{ID: "m1", Text: "Welcome"},
		}))
	}

	// Then both connections receive it
	for _, conn := range []*websocket.Conn{tab, phone} {
		f := read(t, conn)
		req.Equal("new_message", f.Type)
		req.Equal("Welcome", f.Payload["text"])
	}

	// and closing one leaves the other registered
	req.NoError(tab.Close())
	req.Eventually(func() bool { return len(registry.ChannelsFor("c1")) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_Commands(t *testing.T) {
	req := require.New(t)
	registry, _, url := setup(t, 8)
	conn := dial(t, url, "c1")
	read(t, conn)

	req.NoError(conn.WriteJSON(map[string]any{"type": "ping"}))
	req.Equal("pong", read(t, conn).Type)

	req.NoError(conn.WriteJSON(map[string]any{"type": "join", "payload": map[string]string{"userId": "someone-else"}}))
	req.Equal("error", read(t, conn).Type)

	req.NoError(conn.WriteJSON(map[string]any{"type": "leave"}))
	req.Equal("left", read(t, conn).Type)
	req.Empty(registry.ChannelsFor("c1"))

	req.NoError(conn.WriteJSON(map[string]any{"type": "join", "payload": map[string]string{"userId": "c1"}}))
	req.Equal("joined", read(t, conn).Type)
	req.Len(registry.ChannelsFor("c1"), 1)

	req.NoError(conn.WriteJSON(map[string]any{"type": "dance"}))
	req.Equal("error", read(t, conn).Type)
}

func TestClient_Push_Full_Queue_Fails_Without_Blocking(t *testing.T) {
	c := &Client{id: "x", send: make(chan []byte, 1), done: make(chan struct{})}

	require.NoError(t, c.Push(context.Background(), models.Envelope{Type: "a"}))
	require.ErrorIs(t, c.Push(context.Background(), models.Envelope{Type: "b"}), ErrQueueFull)

	close(c.done)
	require.ErrorIs(t, c.Push(context.Background(), models.Envelope{Type: "c"}), ErrClosed)
}

func TestManager_Shutdown_Unregisters_All(t *testing.T) {
	registry, manager, url := setup(t, 8)
	conn := dial(t, url, "c1")
	read(t, conn)

	manager.Shutdown()

	require.Empty(t, registry.ChannelsFor("c1"))
	require.Zero(t, manager.GetConnectedUsers())
}

func TestManager_Join_After_Remove_Is_Ignored(t *testing.T) {
	req := require.New(t)
	registry := presence.NewRegistry()
	manager := NewManager(registry, secret, 8, zap.NewNop())

	// Given a client whose write side already failed and was removed
	c := &Client{id: "ch-1", userID: "u1", send: make(chan []byte, 8), done: make(chan struct{}), manager: manager}
	manager.add(c)
	req.True(manager.join(c))
	manager.remove(c)

	// When a buffered join frame is handled afterwards
	c.handle(command{Type: "join"})

	// Then the dead client stays out of presence
	req.False(manager.join(c))
	req.Empty(registry.ChannelsFor("u1"))
	req.Zero(registry.Len())
	req.Zero(manager.GetConnectedUsers())
}

func TestManager_Join_Racing_Remove_Leaves_Nothing_Registered(t *testing.T) {
	registry := presence.NewRegistry()
	manager := NewManager(registry, secret, 8, zap.NewNop())

	for i := 0; i < 200; i++ {
		c := &Client{id: uuid.NewString(), userID: "u1", send: make(chan []byte, 8), done: make(chan struct{}), manager: manager}
		manager.add(c)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.handle(command{Type: "join"})
		}()
		go func() {
			defer wg.Done()
			manager.remove(c)
		}()
		wg.Wait()
	}

	require.Zero(t, registry.Len())
}
