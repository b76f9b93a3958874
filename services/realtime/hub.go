// Package realtime fans market snapshots and owner notifications out to websocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"market_pulse_backend/metrics"
	"market_pulse_backend/models"
)

// Constants for hub configuration
const (
	DefaultMaxClients = 100
	WriteTimeout      = 10 * time.Second
	PongTimeout       = 60 * time.Second
	PingInterval      = 30 * time.Second
	clientSendBuffer  = 64
	broadcastBuffer   = 256
)

// Event types pushed to clients
const (
	EventCryptoUpdate = "crypto_update"
	EventEquityUpdate = "equity_update"
	EventNotification = "notification"
)

// Message is the envelope written to every client
type Message struct {
	Type  string      `json:"type"`
	Topic string      `json:"topic"`
	Data  interface{} `json:"data"`
	Time  string      `json:"time"`
}

// MarketUpdate is the payload of a snapshot event
type MarketUpdate struct {
	AssetClass models.AssetClass    `json:"asset_class"`
	Assets     []models.CachedAsset `json:"assets"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

type outbound struct {
	topic string
	data  []byte
}

type client struct {
	id      string
	ownerID string
	conn    *websocket.Conn
	send    chan []byte
	mu      sync.RWMutex
	topics  map[string]bool
}

func (c *client) subscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics[topic]
}

// Hub tracks websocket clients and delivers best-effort, non-blocking publishes.
// There is no replay: a client only receives what is published after it subscribes.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan outbound
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	maxClients int
	logger     *zap.Logger
	now        func() time.Time
}

// NewHub creates a hub; call Run to start delivering
func NewHub(maxClients int, logger *zap.Logger) *Hub {
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan outbound, broadcastBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		maxClients: maxClients,
		logger:     logger,
		now:        time.Now,
	}
}

// MarketTopic is the topic carrying snapshots of class
func MarketTopic(class models.AssetClass) string {
	return string(class)
}

// OwnerTopic is the private topic of one owner
func OwnerTopic(ownerID string) string {
	return "user:" + ownerID
}

// Run delivers messages until ctx is cancelled, then closes every client
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= h.maxClients {
				h.mu.Unlock()
				close(c.send)
				h.logger.Warn("websocket client rejected: max clients reached", zap.Int("max_clients", h.maxClients))
				continue
			}
			h.clients[c] = true
			count := len(h.clients)
			h.mu.Unlock()
			metrics.RealtimeClients.Set(float64(count))
			h.logger.Debug("websocket client connected", zap.String("client_id", c.id), zap.Int("clients", count))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			metrics.RealtimeClients.Set(float64(count))
			h.logger.Debug("websocket client disconnected", zap.String("client_id", c.id), zap.Int("clients", count))

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg outbound) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var slow []*client
	for c := range h.clients {
		if !c.subscribed(msg.topic) {
			continue
		}
		select {
		case c.send <- msg.data:
		default:
			slow = append(slow, c)
		}
	}
	// a client that cannot keep up is dropped instead of delaying the others
	for _, c := range slow {
		delete(h.clients, c)
		close(c.send)
		h.logger.Info("dropping slow websocket client", zap.String("client_id", c.id))
	}
	if len(slow) > 0 {
		metrics.RealtimeClients.Set(float64(len(h.clients)))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	metrics.RealtimeClients.Set(0)
}

// Publish queues msgType/data for every subscriber of topic. It never blocks:
// when the hub is saturated the message is dropped.
func (h *Hub) Publish(topic, msgType string, data interface{}) {
	payload, err := json.Marshal(Message{
		Type:  msgType,
		Topic: topic,
		Data:  data,
		Time:  h.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Error("marshal broadcast message", zap.String("topic", topic), zap.Error(err))
		return
	}

	select {
	case h.broadcast <- outbound{topic: topic, data: payload}:
	default:
		h.logger.Warn("broadcast queue full, message dropped", zap.String("topic", topic), zap.String("type", msgType))
	}
}

// PublishSnapshot pushes a market snapshot, truncated to limit assets
func (h *Hub) PublishSnapshot(snapshot models.Snapshot, limit int) {
	msgType := EventCryptoUpdate
	if snapshot.AssetClass == models.AssetClassEquity {
		msgType = EventEquityUpdate
	}
	h.Publish(MarketTopic(snapshot.AssetClass), msgType, MarketUpdate{
		AssetClass: snapshot.AssetClass,
		Assets:     snapshot.Top(limit),
		UpdatedAt:  snapshot.UpdatedAt,
	})
}

// PublishToOwner pushes a private event to every session of ownerID
func (h *Hub) PublishToOwner(ownerID, msgType string, data interface{}) {
	h.Publish(OwnerTopic(ownerID), msgType, data)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and attaches the session of ownerID
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, ownerID string) {
	h.mu.RLock()
	atCapacity := len(h.clients) >= h.maxClients
	h.mu.RUnlock()
	if atCapacity {
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:      uuid.NewString(),
		ownerID: ownerID,
		conn:    conn,
		send:    make(chan []byte, clientSendBuffer),
		topics:  map[string]bool{},
	}
	if ownerID != "" {
		c.topics[OwnerTopic(ownerID)] = true
	}
	for _, topic := range strings.Split(r.URL.Query().Get("topics"), ",") {
		if isMarketTopic(topic) {
			c.topics[topic] = true
		}
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump(h)
}

func isMarketTopic(topic string) bool {
	_, ok := models.ParseAssetClass(topic)
	return ok && topic == strings.ToLower(strings.TrimSpace(topic))
}

// writePump writes messages to the websocket connection
func (c *client) writePump() {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump handles subscribe/unsubscribe commands until the connection closes
func (c *client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PongTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}

		var cmd struct {
			Action string   `json:"action"`
			Topics []string `json:"topics"`
		}
		if err := json.Unmarshal(message, &cmd); err != nil {
			continue
		}

		c.mu.Lock()
		for _, topic := range cmd.Topics {
			if !isMarketTopic(topic) {
				continue
			}
			switch cmd.Action {
			case "subscribe":
				c.topics[topic] = true
			case "unsubscribe":
				delete(c.topics, topic)
			}
		}
		c.mu.Unlock()
	}
}
