package kds

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/kitchen-display/models"
)

const writeWait = 5 * time.Second

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Hub menampung semua client websocket (chef, staff, admin, layar dapur)
// dan menyiarkan pesan ke semuanya.
type Hub struct {
	clients map[*websocket.Conn]string // conn -> role
	mutex   sync.Mutex
	log     logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		clients: make(map[*websocket.Conn]string),
		log:     log,
	}
}

// RegisterClient -> menambahkan connection ke set dengan role
func (h *Hub) RegisterClient(conn *websocket.Conn, role string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clients[conn] = role
}

// UnregisterClient -> melepaskan connection
func (h *Hub) UnregisterClient(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// BroadcastNewOrder -> order baru masuk dapur
func (h *Hub) BroadcastNewOrder(order models.Order) {
	h.Broadcast(Message{Event: models.EventNewOrder, Data: order})
}

// BroadcastStatusChange -> status order berubah
func (h *Hub) BroadcastStatusChange(id uint, status models.Status) {
	h.Broadcast(Message{Event: models.EventOrderStatusChanged, Data: models.StatusChange{ID: id, Status: status}})
}

// BroadcastRefreshHint asks every client to pull a fresh snapshot.
func (h *Hub) BroadcastRefreshHint() {
	h.Broadcast(Message{Event: models.EventRefreshHint})
}

// Broadcast sends msg to every client. Clients whose write fails are dropped.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Error("marshal hub message")
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.log.WithFields(logrus.Fields{"event": msg.Event, "clients": len(h.clients)}).Debug("broadcasting message")

	for conn, role := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.WithError(err).WithField("role", role).Warn("dropping websocket client")
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// HubListener pushes engine alerts and change hints to UI clients.
type HubListener struct {
	Hub *Hub
}

func (l HubListener) OnAlert(n models.Notification) {
	l.Hub.Broadcast(Message{Event: models.EventAlert, Data: n})
}

func (l HubListener) OnOrdersChanged() {
	l.Hub.Broadcast(Message{Event: models.EventOrdersChanged})
}
