package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketHub is a broadcast push Sink the bot front-end connects to for
// live delivery, the core's half of that otherwise out-of-scope boundary
// (§4.8, §4.9). Each connection is registered under the recipientID its
// caller passes to ServeHTTP; a message only reaches connections
// registered under one of its Recipients.
type WebSocketHub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]map[*websocket.Conn]struct{}
}

func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns: make(map[string]map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the connection and registers it under recipientID
// until the client disconnects.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request, recipientID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}

	h.register(recipientID, conn)
	defer h.unregister(recipientID, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

func (h *WebSocketHub) register(recipientID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[recipientID] == nil {
		h.conns[recipientID] = make(map[*websocket.Conn]struct{})
	}
	h.conns[recipientID][conn] = struct{}{}
}

func (h *WebSocketHub) unregister(recipientID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[recipientID], conn)
	conn.Close()
}

func (h *WebSocketHub) Type() SinkType { return SinkTypeWebSocket }

// Send pushes msg to every currently-connected socket for each of
// msg.Recipients. Recipients with no open connection simply miss the push;
// the email Sink remains the durable delivery path (§4.8).
func (h *WebSocketHub) Send(_ context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("websocket: marshal message: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, recipient := range msg.Recipients {
		for conn := range h.conns[recipient] {
			_ = conn.WriteMessage(websocket.TextMessage, payload)
		}
	}
	return nil
}

// Test sends a throwaway push to recipient if it has an open connection.
func (h *WebSocketHub) Test(ctx context.Context, recipient string) error {
	return h.Send(ctx, Message{Kind: "test", Recipients: []string{recipient}, Body: "websocket channel test"})
}
