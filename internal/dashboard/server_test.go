package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func testServer(t *testing.T, status StatusFunc) *Server {
	t.Helper()

	server := NewServer(Config{
		Addr:   "127.0.0.1:0",
		Status: status,
		Logger: log.New(io.Discard, "", 0),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func TestServerStartStop(t *testing.T) {
	server := testServer(t, nil)
	if server.Addr() == "" {
		t.Fatal("Server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestStatusSnapshotOnConnect(t *testing.T) {
	server := testServer(t, func() any {
		return map[string]any{"online": true, "pending_changes": 4}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read snapshot: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeStatus {
		t.Errorf("first message type = %s, want %s", msg.Type, MessageTypeStatus)
	}

	var snapshot map[string]any
	if err := json.Unmarshal(msg.Data, &snapshot); err != nil {
		t.Fatalf("Failed to unmarshal snapshot: %v", err)
	}
	if snapshot["online"] != true {
		t.Errorf("snapshot = %v, want online=true", snapshot)
	}
}

func TestBroadcastReachesClient(t *testing.T) {
	server := testServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	if count := server.ClientCount(); count != 1 {
		t.Errorf("ClientCount = %d, want 1", count)
	}

	server.BroadcastEvent(MessageTypeSyncResult, map[string]any{
		"success":      true,
		"synced_items": 12,
	})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeSyncResult {
		t.Errorf("message type = %s, want %s", msg.Type, MessageTypeSyncResult)
	}
	if msg.Timestamp.IsZero() {
		t.Error("broadcast timestamp not set")
	}

	var payload map[string]any
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("Failed to unmarshal payload: %v", err)
	}
	if payload["synced_items"] != float64(12) {
		t.Errorf("payload = %v, want synced_items 12", payload)
	}
}

func TestMultipleClients(t *testing.T) {
	server := testServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		dial(t, ctx, server)
	}
	if count := server.ClientCount(); count != 3 {
		t.Errorf("ClientCount = %d, want 3", count)
	}
}
