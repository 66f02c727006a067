// Package frontend is the single client-facing process: the HTTP surface
// clients call, the replication coordinator behind it, and the WebSocket
// relay that pushes double-auction outcomes to subscribed users.
package frontend

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/auctionhub/auction-engine/internal/metrics"
)

// Notifier delivers a settlement outcome to one subscribed user. Messages
// to users with no subscription are dropped silently — never queued, never
// retried.
type Notifier interface {
	Deliver(userID int, message string)
}

// Notification is the JSON frame pushed to a subscriber.
type Notification struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Relay maps user ids to their WebSocket connections. Registering again
// under the same id replaces the previous connection.
type Relay struct {
	mu    sync.RWMutex
	conns map[int]*websocket.Conn
}

// NewRelay creates an empty relay.
func NewRelay() *Relay {
	return &Relay{conns: make(map[int]*websocket.Conn)}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// HandleWS upgrades GET /api/v1/ws?user_id=N and registers the connection
// as that user's subscription.
func (r *Relay) HandleWS(w http.ResponseWriter, req *http.Request) {
	userID, err := strconv.Atoi(req.URL.Query().Get("user_id"))
	if err != nil {
		http.Error(w, "user_id query parameter required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}
	r.register(userID, conn)

	// Read pump: keep the connection alive and detect disconnects.
	go func() {
		defer r.unregister(userID, conn)
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Ping ticker to keep the connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if !r.subscribed(userID, conn) {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}

func (r *Relay) register(userID int, conn *websocket.Conn) {
	r.mu.Lock()
	if old, ok := r.conns[userID]; ok {
		old.Close()
	}
	r.conns[userID] = conn
	total := len(r.conns)
	r.mu.Unlock()

	metrics.Subscribers.Set(float64(total))
	slog.Info("subscriber registered", "user_id", userID, "total", total)
}

// unregister drops the subscription only if conn is still the registered
// one; a replacement registered in the meantime stays.
func (r *Relay) unregister(userID int, conn *websocket.Conn) {
	r.mu.Lock()
	if current, ok := r.conns[userID]; ok && current == conn {
		delete(r.conns, userID)
	}
	total := len(r.conns)
	r.mu.Unlock()

	conn.Close()
	metrics.Subscribers.Set(float64(total))
}

func (r *Relay) subscribed(userID int, conn *websocket.Conn) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[userID] == conn
}

// Deliver pushes one outcome message to the user's connection. Unknown
// users are dropped silently.
func (r *Relay) Deliver(userID int, message string) {
	r.mu.RLock()
	conn, ok := r.conns[userID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	frame := Notification{Type: "double_auction_result", Message: message}
	if err := conn.WriteJSON(frame); err != nil {
		slog.Warn("notification delivery failed", "user_id", userID, "err", err)
		r.unregister(userID, conn)
	}
}
