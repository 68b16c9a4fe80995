package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"trackship/internal/scheduler"
)

const (
	writeWait    = 5 * time.Second
	arrivalQueue = 64
)

// Feed message types.
const (
	FeedSnapshot = "snapshot"
	FeedArrival  = "arrival"
)

// FeedMessage is the envelope written to websocket clients.
type FeedMessage struct {
	Type string `json:"type"`
	At   string `json:"at"`
	Data any    `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub keeps the websocket clients and fans messages out to them.
type Hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	arrivals chan any
	log      *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:  make(map[*websocket.Conn]struct{}),
		arrivals: make(chan any, arrivalQueue),
		log:      logger.Named("ws"),
	}
}

// ServeWS upgrades the request and keeps the client until it disconnects.
// Clients only receive; anything they send is discarded.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Info("client connected", zap.String("remote", conn.RemoteAddr().String()), zap.Int("clients", total))

	for {
		if _, _, err := conn.NextReader(); err != nil {
			h.drop(conn)
			h.log.Info("client disconnected", zap.String("remote", conn.RemoteAddr().String()))
			return
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		_ = conn.Close()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast writes a message of the given type to every client. Clients
// that fail to receive it are dropped.
func (h *Hub) Broadcast(typ string, data any) {
	msg, err := json.Marshal(FeedMessage{
		Type: typ,
		At:   time.Now().UTC().Format(time.RFC3339),
		Data: data,
	})
	if err != nil {
		h.log.Error("marshal feed message", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		_ = client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.log.Warn("websocket write failed", zap.Error(err))
			_ = client.Close()
			delete(h.clients, client)
		}
	}
}

// Run broadcasts snapshot() every interval and forwards queued arrivals
// until ctx is done. No snapshot is built while no client is connected.
func (h *Hub) Run(ctx context.Context, interval time.Duration, snapshot func() any) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-h.arrivals:
			h.Broadcast(FeedArrival, data)
		case <-ticker.C:
			if h.Clients() == 0 {
				continue
			}
			h.Broadcast(FeedSnapshot, snapshot())
		}
	}
}

// ArrivalHook queues each dispatched arrival for Run to broadcast. It never
// writes to a client itself, so a slow client cannot hold up the scheduler.
// Arrivals are dropped when the queue is full.
func (h *Hub) ArrivalHook(_ context.Context, r scheduler.ArrivalReport) {
	if h.Clients() == 0 {
		return
	}
	data := map[string]any{
		"vessel":     r.Vessel,
		"recipients": r.Recipients,
		"sent":       r.Outcome.Sent,
		"errors":     r.Outcome.Errors,
	}
	select {
	case h.arrivals <- data:
	default:
		h.log.Warn("arrival feed queue full, dropping", zap.String("identity", r.Vessel.Identity))
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		_ = client.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = client.Close()
		delete(h.clients, client)
	}
}
