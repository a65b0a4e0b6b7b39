//go:build functional

package functional

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vyrodovalexey/inventory-catalog/internal/model"
)

const itemsFeedPath = "/ws/items"

// WebSocketClient wraps a WebSocket connection for testing.
type WebSocketClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// NewWebSocketClient creates a new WebSocket client connected to the given URL.
func NewWebSocketClient(t *testing.T, url string) (*WebSocketClient, error) {
	t.Helper()

	dialer := websocket.Dialer{
		HandshakeTimeout: DefaultWebSocketTimeout,
	}

	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}

	return &WebSocketClient{
		conn: conn,
		t:    t,
	}, nil
}

// ReadEvent reads a single item event from the WebSocket.
func (c *WebSocketClient) ReadEvent(timeout time.Duration) (*model.ItemEvent, error) {
	c.conn.SetReadDeadline(time.Now().Add(timeout))

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var event model.ItemEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}

	return &event, nil
}

// Close closes the WebSocket connection.
func (c *WebSocketClient) Close() error {
	return c.conn.Close()
}

// CloseGracefully sends a close message and waits for acknowledgment.
func (c *WebSocketClient) CloseGracefully() error {
	err := c.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	if err != nil {
		return err
	}

	// Wait briefly for close acknowledgment
	c.conn.SetReadDeadline(time.Now().Add(time.Second))
	c.conn.ReadMessage()

	return c.conn.Close()
}

// waitForSubscribers blocks until the event hub has registered n clients.
func waitForSubscribers(t *testing.T, ts *TestServer, n int) {
	t.Helper()

	deadline := time.Now().Add(DefaultWebSocketTimeout)
	for time.Now().Before(deadline) {
		if ts.Events.ClientCount() == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Expected %d subscribers, have %d", n, ts.Events.ClientCount())
}

// FT-WS-001: Every write produces an event.
func TestFunctional_WS_001_EventsFollowWrites(t *testing.T) {
	LogTestStart(t, "FT-WS-001", "Events for create, update and delete")
	defer LogTestEnd(t, "FT-WS-001")

	ts, client := startServer(t)
	ctx := context.Background()

	ws, err := NewWebSocketClient(t, ts.WSURL+itemsFeedPath)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer ws.Close()
	waitForSubscribers(t, ts, 1)

	created := MustCreate(ctx, t, client, "Laptop", "Electronics", 999.99)
	path := fmt.Sprintf("/api/items/%d", created.ID)

	resp, err := client.Put(ctx, path, map[string]any{"price": 899}, nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	AssertStatusCode(t, resp, http.StatusOK)

	resp, err = client.Delete(ctx, path, nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	AssertStatusCode(t, resp, http.StatusNoContent)

	want := []struct {
		eventType string
		price     float64
		hasItem   bool
	}{
		{model.EventItemCreated, 999.99, true},
		{model.EventItemUpdated, 899, true},
		{model.EventItemDeleted, 0, false},
	}

	for _, w := range want {
		event, err := ws.ReadEvent(3 * time.Second)
		if err != nil {
			t.Fatalf("Failed to read %s event: %v", w.eventType, err)
		}
		if event.Type != w.eventType || event.ID != created.ID {
			t.Errorf("event = %s/%d, want %s/%d", event.Type, event.ID, w.eventType, created.ID)
		}
		if (event.Item != nil) != w.hasItem {
			t.Errorf("%s event item present = %v, want %v", w.eventType, event.Item != nil, w.hasItem)
		}
		if event.Item != nil && event.Item.Price != w.price {
			t.Errorf("%s event price = %v, want %v", w.eventType, event.Item.Price, w.price)
		}
		if event.Timestamp.IsZero() {
			t.Errorf("%s event has no timestamp", w.eventType)
		}
	}
}

// FT-WS-002: Rejected writes produce no event.
func TestFunctional_WS_002_NoEventForRejectedWrite(t *testing.T) {
	LogTestStart(t, "FT-WS-002", "No event for rejected writes")
	defer LogTestEnd(t, "FT-WS-002")

	ts, client := startServer(t)
	ctx := context.Background()

	ws, err := NewWebSocketClient(t, ts.WSURL+itemsFeedPath)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer ws.Close()
	waitForSubscribers(t, ts, 1)

	resp, err := client.Post(ctx, "/api/items", map[string]any{"name": ""}, nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	AssertStatusCode(t, resp, http.StatusBadRequest)

	resp, err = client.Delete(ctx, "/api/items/12345", nil)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	AssertStatusCode(t, resp, http.StatusNotFound)

	event, err := ws.ReadEvent(300 * time.Millisecond)
	if err == nil {
		t.Fatalf("unexpected event %+v", event)
	}
	var netErr interface{ Timeout() bool }
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Errorf("expected read timeout, got %v", err)
	}
}

// FT-WS-003: Multiple concurrent subscribers receive the same event.
func TestFunctional_WS_003_MultipleSubscribers(t *testing.T) {
	LogTestStart(t, "FT-WS-003", "Multiple concurrent subscribers")
	defer LogTestEnd(t, "FT-WS-003")

	ts, client := startServer(t)
	ctx := context.Background()

	const numClients = 5
	clients := make([]*WebSocketClient, numClients)
	for i := range clients {
		ws, err := NewWebSocketClient(t, ts.WSURL+itemsFeedPath)
		if err != nil {
			t.Fatalf("Client %d failed to connect: %v", i, err)
		}
		defer ws.Close()
		clients[i] = ws
	}
	waitForSubscribers(t, ts, numClients)

	created := MustCreate(ctx, t, client, "Desk", "Furniture", 250)

	var wg sync.WaitGroup
	received := make([]int64, numClients)
	for i, ws := range clients {
		wg.Add(1)
		go func(i int, ws *WebSocketClient) {
			defer wg.Done()
			event, err := ws.ReadEvent(3 * time.Second)
			if err != nil {
				t.Errorf("Client %d failed to read event: %v", i, err)
				return
			}
			received[i] = event.ID
		}(i, ws)
	}
	wg.Wait()

	for i, id := range received {
		if id != created.ID {
			t.Errorf("client %d received ID %d, want %d", i, id, created.ID)
		}
	}
}

// FT-WS-004: Client disconnect is handled and the subscriber is removed.
func TestFunctional_WS_004_ClientDisconnect(t *testing.T) {
	LogTestStart(t, "FT-WS-004", "Client disconnect handling")
	defer LogTestEnd(t, "FT-WS-004")

	ts, client := startServer(t)
	ctx := context.Background()

	ws, err := NewWebSocketClient(t, ts.WSURL+itemsFeedPath)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	waitForSubscribers(t, ts, 1)

	if err := ws.CloseGracefully(); err != nil {
		t.Logf("Close error (may be expected): %v", err)
	}
	waitForSubscribers(t, ts, 0)

	// Writes keep working without subscribers
	MustCreate(ctx, t, client, "Lamp", "Home", 30)

	// Reconnect and receive new events
	ws2, err := NewWebSocketClient(t, ts.WSURL+itemsFeedPath)
	if err != nil {
		t.Fatalf("Failed to reconnect: %v", err)
	}
	defer ws2.Close()
	waitForSubscribers(t, ts, 1)

	created := MustCreate(ctx, t, client, "Rug", "Home", 90)
	event, err := ws2.ReadEvent(3 * time.Second)
	if err != nil {
		t.Fatalf("Failed to read event after reconnect: %v", err)
	}
	if event.ID != created.ID {
		t.Errorf("event ID = %d, want %d", event.ID, created.ID)
	}
}

// FT-WS-005: Server shutdown closes subscriber connections normally.
func TestFunctional_WS_005_ShutdownClosesConnections(t *testing.T) {
	LogTestStart(t, "FT-WS-005", "Shutdown closes connections")
	defer LogTestEnd(t, "FT-WS-005")

	ts := NewTestServer(t)
	ts.Start()

	ws, err := NewWebSocketClient(t, ts.WSURL+itemsFeedPath)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer ws.Close()
	waitForSubscribers(t, ts, 1)

	ts.Stop()

	_, err = ws.ReadEvent(3 * time.Second)
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		t.Errorf("expected close frame, got %v", err)
	}
}
