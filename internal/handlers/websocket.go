package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/neurondb/NeuronQuery/api/internal/chat"
	"github.com/neurondb/NeuronQuery/api/internal/security"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsMaxMessageSize = 64 << 10
)

// wsMessage is a server frame on the chat socket
type wsMessage struct {
	Type     string   `json:"type"`
	Response string   `json:"response,omitempty"`
	RowCount *int     `json:"row_count,omitempty"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// wsConn serializes writes; gorilla connections allow one concurrent writer
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) write(msg wsMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (h *ChatHandlers) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
}

// checkOrigin admits same-host callers and the configured CORS origins
func (h *ChatHandlers) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// allowFrame charges one frame against the chat limiter
func (h *ChatHandlers) allowFrame(r *http.Request) bool {
	if h.limiter == nil {
		return true
	}
	allowed, _, _ := h.limiter.Take(security.ClientIP(r, h.trustProxy))
	if !allowed {
		h.events.Log(r, security.EventRateLimited, map[string]interface{}{
			"limiter": h.limiter.Name(),
			"limit":   h.limiter.Limit(),
			"channel": "websocket",
		})
	}
	return allowed
}

// WebSocket handles GET /api/chat/ws. Every text frame {message} runs through
// the chat pipeline and is metered by the chat limiter like a POST /api/chat;
// one session ID covers the whole connection.
func (h *ChatHandlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := h.upgrader()
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	conn := &wsConn{conn: raw}
	defer raw.Close()

	base := question(r, "")
	h.logger.Info("Chat socket opened", map[string]interface{}{"session_id": base.SessionID})

	pongWait := h.pongWait
	extend := func() error {
		return raw.SetReadDeadline(time.Now().Add(pongWait))
	}
	raw.SetReadLimit(wsMaxMessageSize)
	extend()
	raw.SetPongHandler(func(string) error { return extend() })

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pongWait / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("Chat socket closed unexpectedly", map[string]interface{}{
					"session_id": base.SessionID,
					"error":      err.Error(),
				})
			}
			return
		}

		if !h.allowFrame(r) {
			if conn.write(wsMessage{Type: "error", Error: "Rate limit exceeded"}) != nil {
				return
			}
			continue
		}

		var req ChatRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if conn.write(wsMessage{Type: "error", Error: "Invalid message format"}) != nil {
				return
			}
			continue
		}

		q := base
		q.Message = req.Message
		answer, err := h.chat.Ask(r.Context(), q)
		// Pongs are not read while Ask runs
		extend()
		if err != nil {
			var chatErr *chat.Error
			if !errors.As(err, &chatErr) {
				chatErr = chat.NewError(chat.KindInternal, err)
			}
			if conn.write(wsMessage{Type: "error", Error: chatErr.Message, Warnings: chatErr.Warnings}) != nil {
				return
			}
			continue
		}

		rowCount := answer.RowCount
		if conn.write(wsMessage{Type: "response", Response: answer.Response, RowCount: &rowCount}) != nil {
			return
		}
	}
}
