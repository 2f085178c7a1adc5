package realtime

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/DPJMedia/springford-ads/internal/ads"
	"github.com/DPJMedia/springford-ads/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // sessions are authenticated by token
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// AdState is one advertisement with its status at push time.
type AdState struct {
	models.Advertisement
	Status models.Status `json:"status"`
}

// ReloadedPayload is sent after every full reload.
type ReloadedPayload struct {
	Ads      []AdState `json:"ads"`
	LoadedAt time.Time `json:"loaded_at"`
}

// TickPayload carries recomputed statuses between reloads.
type TickPayload struct {
	Statuses map[uuid.UUID]models.Status `json:"statuses"`
	At       time.Time                   `json:"at"`
}

// TokenValidator checks a bearer token and returns the user id and role.
type TokenValidator func(token string) (userID, role string, err error)

// LoopFactory builds a refresh loop wired to the given hooks.
type LoopFactory func(hooks ads.RefreshHooks) *ads.RefreshLoop

// Client represents a single dashboard WebSocket session.
type Client struct {
	ID       string
	UserID   uuid.UUID
	Role     string
	JoinedAt time.Time
	hub      *Hub
	loop     *ads.RefreshLoop
	conn     *websocket.Conn
	send     chan WSMessage
	done     chan struct{}
	once     sync.Once
	logger   *zap.Logger
}

// ServeWs handles the WebSocket upgrade and runs the session. Only admins and
// editors may open a dashboard session.
func ServeWs(hub *Hub, logger *zap.Logger, validate TokenValidator, newLoop LoopFactory) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
			return
		}
		userIDStr, role, err := validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if role != string(models.RoleAdmin) && role != string(models.RoleEditor) {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}
		userID, _ := uuid.Parse(userIDStr)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := newClient(hub, conn, userID, role, logger)
		client.loop = newLoop(client.hooks())
		hub.Register(client)
		go client.writePump()
		client.loop.Start()
		client.readPump()
	}
}

func newClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, role string, logger *zap.Logger) *Client {
	return &Client{
		ID:       uuid.New().String(),
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now(),
		hub:      hub,
		conn:     conn,
		send:     make(chan WSMessage, 64),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// hooks turns refresh loop callbacks into pushes. They never stop the loop.
func (c *Client) hooks() ads.RefreshHooks {
	return ads.RefreshHooks{
		OnReload: func(list []models.Advertisement, statuses map[uuid.UUID]models.Status) {
			c.push(EventAdsReloaded, reloadedPayload(list, statuses, time.Now()))
		},
		OnTick: func(statuses map[uuid.UUID]models.Status) {
			c.push(EventStatusTick, TickPayload{Statuses: statuses, At: time.Now().UTC()})
		},
	}
}

func reloadedPayload(list []models.Advertisement, statuses map[uuid.UUID]models.Status, at time.Time) ReloadedPayload {
	out := make([]AdState, 0, len(list))
	for _, a := range list {
		out = append(out, AdState{Advertisement: a, Status: statuses[a.ID]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return ReloadedPayload{Ads: out, LoadedAt: at.UTC()}
}

// push queues a message without blocking. Slow sessions drop messages; the
// next reload brings them current again.
func (c *Client) push(event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			c.logger.Warn("marshal ws payload", zap.String("event", event), zap.Error(err))
			return
		}
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
	default:
		c.logger.Debug("ws buffer full, dropping", zap.String("client_id", c.ID), zap.String("event", event))
	}
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		if c.loop != nil {
			c.loop.Stop()
		}
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "reload":
			c.loop.Reload()
		case "snapshot":
			list, statuses := c.loop.Snapshot()
			c.push(EventAdsReloaded, reloadedPayload(list, statuses, time.Now()))
		default:
			// ignore
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
