// Package stream fans engine events out to websocket subscribers. The
// hub owns every client connection; the scheduler pushes each batch's
// events and resolutions through Broadcast.
package stream

import (
	"net/http"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/oddslab/marketcore/pkg/types"
)

// clientBuffer bounds the per-client outbound queue; slow consumers are
// dropped rather than backpressuring the batch loop.
const clientBuffer = 256

// Hub broadcasts engine events to connected websocket clients.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: map[*client]struct{}{},
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and registers the subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket-upgrade-failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	SubscribersGauge.Set(float64(n))
	h.logger.Info("websocket-subscriber-connected", zap.Int("subscribers", n))

	go h.writeLoop(c)
	go h.readLoop(c)
}

// Broadcast serializes the events once and queues them to every client.
func (h *Hub) Broadcast(events []types.Event) {
	if len(events) == 0 {
		return
	}
	payload, err := json.Marshal(events)
	if err != nil {
		h.logger.Error("broadcast-marshal-failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
			EventsBroadcastTotal.Add(float64(len(events)))
		default:
			// Slow consumer: drop the connection, not the batch loop.
			h.dropLocked(c)
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	SubscribersGauge.Set(float64(len(h.clients)))
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		err := c.conn.WriteMessage(websocket.TextMessage, msg)
		if err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) readLoop(c *client) {
	// Subscribers never send payloads; the read loop only surfaces
	// disconnects.
	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			h.drop(c)
			return
		}
	}
}
