package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Dashboard events pushed to clients.
const (
	EventAdsReloaded = "ads_reloaded"
	EventStatusTick  = "status_tick"
	EventAdsChanged  = "ads_changed"
)

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishAdsEvent(event string, payload []byte) error
}

// RedisSubscriber subscribes to the ads channel and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeAds(handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub tracks connected dashboard sessions. Each session owns its refresh
// loop; the hub only fans out change notices so every session reloads.
// Uses Redis pub/sub for horizontal scaling when configured.
type Hub struct {
	clients   map[string]*Client
	cancelSub func()
	mu        sync.RWMutex
	logger    *zap.Logger
	redis     RedisPublisher
	redisSub  RedisSubscriber
}

// NewHub creates a new WebSocket hub. redisPub and redisSub may be nil.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:  make(map[string]*Client),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a session. Starts the Redis subscription on the first one.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if len(h.clients) == 0 && h.redisSub != nil && h.cancelSub == nil {
		cancel, err := h.redisSub.SubscribeAds(func(event string, payload []byte) {
			if event == EventAdsChanged {
				h.notifyLocal(json.RawMessage(payload))
			}
		})
		if err != nil {
			h.logger.Warn("subscribe ads channel failed", zap.Error(err))
		} else {
			h.cancelSub = cancel
		}
	}
	h.clients[c.ID] = c
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("dashboard session opened", zap.String("client_id", c.ID), zap.Int("sessions", count))
}

// Unregister removes a session. Cancels the Redis subscription when the last one leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	count := len(h.clients)
	if count == 0 && h.cancelSub != nil {
		h.cancelSub()
		h.cancelSub = nil
	}
	h.mu.Unlock()
	h.logger.Debug("dashboard session closed", zap.String("client_id", c.ID), zap.Int("sessions", count))
}

// Sessions returns the number of open dashboard sessions on this instance.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// AdsChanged tells every dashboard session, on every instance, to reload.
// With Redis the subscriber callback does the local fan-out once.
func (h *Hub) AdsChanged(ctx context.Context) {
	payload := json.RawMessage(`{}`)
	if h.redis != nil {
		err := h.redis.PublishAdsEvent(EventAdsChanged, payload)
		if err == nil {
			return
		}
		h.logger.Warn("publish ads_changed failed, notifying local sessions only", zap.Error(err))
	}
	h.notifyLocal(payload)
}

func (h *Hub) notifyLocal(payload json.RawMessage) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.push(EventAdsChanged, payload)
		if c.loop != nil {
			c.loop.Reload()
		}
	}
}
