package api

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/reclaimarr/reclaimarr/internal/domain"
	"github.com/reclaimarr/reclaimarr/internal/eventbus"
)

func setupTestDBForWebSocket(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			aggregate_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_data JSON NOT NULL,
			event_version INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`
	_, err = db.Exec(schema)
	require.NoError(t, err)

	return db
}

func newTestHub(t *testing.T) (*WebSocketHub, *eventbus.EventBus) {
	t.Helper()

	db := setupTestDBForWebSocket(t)
	eb := eventbus.NewEventBus(db)
	t.Cleanup(eb.Shutdown)

	hub := NewWebSocketHub(eb)
	t.Cleanup(hub.Shutdown)
	return hub, eb
}

func TestNewWebSocketHub(t *testing.T) {
	hub, eb := newTestHub(t)

	require.NotNil(t, hub.clients)
	require.NotNil(t, hub.broadcast)
	require.NotNil(t, hub.register)
	require.NotNil(t, hub.unregister)
	require.Equal(t, eb, hub.eventBus)
}

func TestWebSocketHub_ClientCountEmpty(t *testing.T) {
	hub, _ := newTestHub(t)

	require.Equal(t, 0, hub.ClientCount())
}

func TestServerShutdownStopsHub(t *testing.T) {
	ts := newTestServer(t, nil)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ts.hub.HandleConnection(c) })

	server := httptest.NewServer(r)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for ts.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 1, ts.hub.ClientCount())

	// Server shutdown must stop the hub loop and drop its clients,
	// not just the HTTP listener.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ts.Shutdown(ctx))

	deadline = time.Now().Add(2 * time.Second)
	for ts.hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 0, ts.hub.ClientCount())

	// A second shutdown is a no-op rather than a panic.
	require.NoError(t, ts.Shutdown(ctx))
}

func TestWebSocketHub_ReceivesPublishedEvents(t *testing.T) {
	hub, eb := newTestHub(t)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { hub.HandleConnection(c) })

	server := httptest.NewServer(r)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// First message is the initial ping
	var initial map[string]interface{}
	require.NoError(t, conn.ReadJSON(&initial))
	require.Equal(t, "ping", initial["type"])

	// Wait for the registration to land before publishing
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 1, hub.ClientCount())

	require.NoError(t, eb.Publish(domain.Event{
		AggregateType: "scan",
		AggregateID:   "scan-1",
		EventType:     domain.ScanCompleted,
		EventData:     map[string]interface{}{"entries_seen": 3},
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg map[string]interface{}
		require.NoError(t, conn.ReadJSON(&msg))
		if msg["type"] != "event" {
			continue // log entries and pings can interleave
		}
		data, ok := msg["data"].(map[string]interface{})
		require.True(t, ok)
		require.Equal(t, string(domain.ScanCompleted), data["event_type"])
		return
	}
}
