// Package ws streams engine frames to browser clients over websockets.
//
// Every message is a JSON object with a "type" field. The first message on
// a connection is the latest frame, so a client can render immediately;
// after that one "frame" message is sent per tick, throttled per client.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/couchcryptid/space-weather-engine/internal/domain"
	"github.com/couchcryptid/space-weather-engine/internal/engine"
	"github.com/couchcryptid/space-weather-engine/internal/observability"
	"github.com/couchcryptid/space-weather-engine/internal/orbit"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 512
	sendBuffer     = 4
)

// Frame is the wire form of one tick. Particle positions are flattened xyz
// triples; geometry is fetched separately when GeometryVersion changes.
type Frame struct {
	Type            string                      `json:"type"`
	Tick            uint64                      `json:"tick"`
	Parameters      domain.SimulationParameters `json:"parameters"`
	Compression     float64                     `json:"compression"`
	KpLevel         domain.KpLevel              `json:"kp_level"`
	EarthRotation   float64                     `json:"earth_rotation"`
	GeometryVersion uint64                      `json:"geometry_version"`
	Satellite       *orbit.Frame                `json:"satellite,omitempty"`
	Positions       []float32                   `json:"positions"`
}

// NewFrame converts a snapshot into its wire form.
func NewFrame(snap *engine.Snapshot) Frame {
	return Frame{
		Type:            "frame",
		Tick:            snap.Tick,
		Parameters:      snap.Parameters,
		Compression:     snap.Compression,
		KpLevel:         snap.KpLevel,
		EarthRotation:   snap.EarthRotation,
		GeometryVersion: snap.GeometryVersion,
		Satellite:       snap.Satellite,
		Positions:       snap.Particles.Positions,
	}
}

// SnapshotSource supplies the latest frame for newly connected clients.
type SnapshotSource interface {
	Snapshot() *engine.Snapshot
}

// Hub tracks connected clients and fans frames out to them.
type Hub struct {
	upgrader websocket.Upgrader
	source   SnapshotSource
	clock    clockwork.Clock
	maxFPS   int
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	remote  string
}

// NewHub creates a hub that sends each client at most maxFPS frames per
// second. clock drives throttling and keepalive pings.
func NewHub(source SnapshotSource, clock clockwork.Clock, maxFPS int, logger *slog.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		source:  source,
		clock:   clock,
		maxFPS:  maxFPS,
		logger:  logger,
		metrics: metrics,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and streams frames until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		h.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		limiter: rate.NewLimiter(rate.Limit(h.maxFPS), 1),
		remote:  r.RemoteAddr,
	}
	if snap := h.source.Snapshot(); snap != nil {
		if msg, err := json.Marshal(NewFrame(snap)); err == nil {
			c.send <- msg
		}
	}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// ObserveFrame implements engine.FrameObserver. The frame is encoded once
// and offered to every client without blocking.
func (h *Hub) ObserveFrame(snap *engine.Snapshot, _ engine.TickResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}

	msg, err := json.Marshal(NewFrame(snap))
	if err != nil {
		h.logger.Error("encode frame failed", "error", err, "tick", snap.Tick)
		return
	}
	for c := range h.clients {
		if !c.limiter.AllowN(h.clock.Now(), 1) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// slow client: drop this frame
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		h.unregister(c)
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.metrics.StreamClients.Set(float64(len(h.clients)))
	h.logger.Info("stream connected", "remote_addr", c.remote, "clients", len(h.clients))
	return true
}

// unregister removes c and closes its connection. Safe to call repeatedly.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	c.conn.Close()
	h.metrics.StreamClients.Set(float64(n))
	h.logger.Info("stream disconnected", "remote_addr", c.remote, "clients", n)
}

// readPump discards inbound messages and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := h.clock.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.unregister(c)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
			h.metrics.StreamFramesSent.Inc()
		case <-ticker.Chan():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
