package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"engagement-service/internal/models"
	"engagement-service/internal/repositories"
	"engagement-service/internal/repositories/memory"
	"engagement-service/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// ErrClosedConnection is returned when attempting to use a closed connection
var ErrClosedConnection = errors.New("connection closed")

// mockConn implements Conn. Frames pushed with deliver are returned by
// ReadMessage; text frames written by the client are kept in order.
type mockConn struct {
	mu       sync.Mutex
	messages [][]byte
	closed   bool
	inbound  chan []byte
	done     chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		inbound: make(chan []byte, 64),
		done:    make(chan struct{}),
	}
}

func (m *mockConn) deliver(frame []byte) {
	m.inbound <- frame
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-m.inbound:
		return websocket.TextMessage, data, nil
	case <-m.done:
		return 0, nil, ErrClosedConnection
	}
}

func (m *mockConn) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosedConnection
	}
	if messageType == websocket.TextMessage {
		m.messages = append(m.messages, data)
	}
	return nil
}

func (m *mockConn) SetReadLimit(int64) {}
func (m *mockConn) SetReadDeadline(time.Time) error { return nil }
func (m *mockConn) SetWriteDeadline(time.Time) error { return nil }
func (m *mockConn) SetPongHandler(func(string) error) {}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConn) getMessages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]byte, len(m.messages))
	copy(result, m.messages)
	return result
}

// messagesOfType decodes written frames whose type tag matches.
func (m *mockConn) messagesOfType(t MessageType) []map[string]interface{} {
	var out []map[string]interface{}
	for _, raw := range m.getMessages() {
		var msg map[string]interface{}
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg["type"] == string(t) {
			out = append(out, msg)
		}
	}
	return out
}

// hookedStore wraps a store so a test can slow down or fail user reads.
// Like the gorm store, it fails user calls once their context is done.
type hookedStore struct {
	repositories.Store
	onList func(ctx context.Context, sessionID string) error
}

func (s *hookedStore) GetUsersBySession(ctx context.Context, sessionID string) ([]models.User, error) {
	if s.onList != nil {
		if err := s.onList(ctx, sessionID); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Store.GetUsersBySession(ctx, sessionID)
}

func (s *hookedStore) EnsureUser(ctx context.Context, in models.NewUser) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Store.EnsureUser(ctx, in)
}

func (s *hookedStore) SetUserStatus(ctx context.Context, id uint, status string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Store.SetUserStatus(ctx, id, status)
}

// Helper functions for tests
func createTestHub(t *testing.T, cfg HubConfig, opts ...HubOption) (*Hub, *memory.Store) {
	t.Helper()
	store := memory.New()
	hub := NewHub(store, cfg, logger.Nop(), opts...)
	t.Cleanup(hub.Shutdown)
	return hub, store
}

// createTestClient attaches a client without running its pumps.
func createTestClient(hub *Hub, observe string) (*Client, *mockConn) {
	conn := newMockConn()
	c := NewClient(hub, conn, observe)
	hub.Attach(c)
	return c, conn
}

// startTestClient attaches a client and runs its pumps.
func startTestClient(hub *Hub, observe string) (*Client, *mockConn) {
	conn := newMockConn()
	c := NewClient(hub, conn, observe)
	c.Start()
	return c, conn
}

func frame(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func connectFrame(t *testing.T, userID, sessionID string) []byte {
	return frame(t, map[string]interface{}{
		"type":      "connection",
		"action":    "connect",
		"userId":    userID,
		"sessionId": sessionID,
		"timestamp": time.Now().UnixMilli(),
	})
}

func activityFrame(t *testing.T, userID, sessionID, eventType string) []byte {
	return frame(t, map[string]interface{}{
		"type":      "activity",
		"userId":    userID,
		"sessionId": sessionID,
		"eventType": eventType,
		"timestamp": time.Now().UnixMilli(),
	})
}

// drain empties the client's outbound queue.
func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case data := <-c.send:
			out = append(out, data)
		default:
			return out
		}
	}
}

func decodeAll(t *testing.T, frames [][]byte, want MessageType) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, raw := range frames {
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &msg))
		if msg["type"] == string(want) {
			out = append(out, msg)
		}
	}
	return out
}
