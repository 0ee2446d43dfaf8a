package kds

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/cafe-orders/models"
	"github.com/yeremiapane/cafe-orders/utils"
)

// Topics, also used as event names
const (
	TopicNewOrder     = "orders.new"
	TopicStatusChange = "orders.status"
	TopicRefresh      = "orders.refresh"
)

var AllTopics = []string{TopicNewOrder, TopicStatusChange, TopicRefresh}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	defaultBufferSize = 32
)

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type client struct {
	conn   *websocket.Conn
	role   string
	topics map[string]bool
	send   chan []byte
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// KDSHub menampung semua client dashboard (kitchen, staff, admin) dan
// menyiarkan event order ke client yang berlangganan topiknya.
type KDSHub struct {
	clients    map[*client]struct{}
	mutex      sync.RWMutex
	bufferSize int
}

func NewHub(bufferSize int) *KDSHub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &KDSHub{
		clients:    make(map[*client]struct{}),
		bufferSize: bufferSize,
	}
}

// ParseTopics keeps the known topics from requested. Nothing known means all.
func ParseTopics(requested []string) map[string]bool {
	topics := make(map[string]bool)
	for _, t := range requested {
		for _, known := range AllTopics {
			if t == known {
				topics[t] = true
			}
		}
	}
	if len(topics) == 0 {
		for _, t := range AllTopics {
			topics[t] = true
		}
	}
	return topics
}

// Serve registers conn and blocks until the client disconnects.
func (h *KDSHub) Serve(conn *websocket.Conn, role string, topics map[string]bool) {
	c := &client{
		conn:   conn,
		role:   role,
		topics: topics,
		send:   make(chan []byte, h.bufferSize),
	}
	h.register(c)
	go c.writePump()
	c.readPump()
	h.unregister(c)
}

func (h *KDSHub) register(c *client) {
	h.mutex.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mutex.Unlock()

	utils.InfoLogger.WithFields(logrus.Fields{
		"role":    c.role,
		"clients": count,
	}).Info("KDS client connected")
}

func (h *KDSHub) unregister(c *client) {
	h.mutex.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	count := len(h.clients)
	h.mutex.Unlock()

	utils.InfoLogger.WithFields(logrus.Fields{
		"role":    c.role,
		"clients": count,
	}).Info("KDS client disconnected")
}

func (h *KDSHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Broadcast never blocks: a client whose buffer is full misses the message.
func (h *KDSHub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		utils.ErrorLogger.WithError(err).WithField("event", msg.Event).Error("Error marshaling KDS message")
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for c := range h.clients {
		if !c.topics[msg.Event] {
			continue
		}
		select {
		case c.send <- data:
		default:
			utils.InfoLogger.WithFields(logrus.Fields{
				"role":  c.role,
				"event": msg.Event,
			}).Warn("KDS client too slow, message dropped")
		}
	}
}

func (h *KDSHub) PublishNewOrder(order models.OrderSnapshot) {
	h.Broadcast(Message{Event: TopicNewOrder, Data: order})
}

func (h *KDSHub) PublishStatusChanged(order models.OrderSnapshot) {
	h.Broadcast(Message{Event: TopicStatusChange, Data: order})
}

// PublishRefreshHint tells dashboards to reload from the API.
func (h *KDSHub) PublishRefreshHint() {
	h.Broadcast(Message{Event: TopicRefresh})
}

func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// dashboards only listen; inbound frames are discarded
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
