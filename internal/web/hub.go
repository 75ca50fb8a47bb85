package web

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"desk-assistant-go/internal/worker"
)

// WSMessage is one event pushed to websocket clients.
type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub tracks websocket clients and broadcasts job events to them.
type Hub struct {
	log      logrus.FieldLogger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewHub returns an empty hub.
func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and keeps it registered until the client
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
	h.log.Debug("websocket client connected")

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		h.log.Debug("websocket client disconnected")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends an event to every client. Clients that fail to receive it
// are dropped.
func (h *Hub) Broadcast(kind string, data interface{}) {
	msg, err := json.Marshal(WSMessage{Type: kind, Data: data})
	if err != nil {
		h.log.Errorf("marshal websocket message: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Warnf("write websocket message: %v", err)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// JobDone is a worker.DoneHook that reports every finished job.
func (h *Hub) JobDone(res worker.Result) {
	data := map[string]interface{}{
		"job_id":      res.JobID,
		"name":        res.Name,
		"duration_ms": res.Duration.Milliseconds(),
		"success":     res.Err == nil,
	}
	kind := "job_completed"
	if res.Err != nil {
		kind = "job_failed"
	}
	h.Broadcast(kind, data)
}
