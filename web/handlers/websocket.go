package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
)

// Event types pushed over the /ws feed.
const (
	EventRouteCycle    = "route_cycle"
	EventArchiveCycle  = "archive_cycle"
	EventPurgeFlagged  = "purge_flagged"
	EventPurgeApproved = "purge_approved"
	EventPurgeRejected = "purge_rejected"
)

// Event is the envelope broadcast to websocket subscribers.
type Event struct {
	Type string      `json:"type"`
	Time time.Time   `json:"time"`
	Data interface{} `json:"data,omitempty"`
}

const (
	// outboundBuffer is each subscriber's frame buffer. A subscriber that
	// falls this far behind is dropped instead of stalling the feed.
	outboundBuffer = 256

	// writeTimeout bounds a single frame write to a client connection.
	writeTimeout = 10 * time.Second
)

// wsOrigins lists the hosts browser clients may connect from.
var wsOrigins = []string{"localhost:7171", "127.0.0.1:7171"}

// subscriber is one receiver of broadcast frames. deliver reports false when
// the subscriber's buffer is full; the hub drops the subscriber then.
type subscriber interface {
	deliver(frame []byte) bool
	shutdown()
}

// WebSocketHub fans pipeline events out to connected websocket clients. The
// subscriber set is a plain locked map and Broadcast delivers synchronously
// into per-subscriber buffers, so there is no pump goroutine to start or
// drain; slow readers are dropped at delivery time.
type WebSocketHub struct {
	mu     sync.Mutex
	subs   map[subscriber]struct{}
	closed bool
}

// NewWebSocketHub creates an empty hub, ready for Register and Broadcast.
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{subs: make(map[subscriber]struct{})}
}

// Register adds a subscriber to the fan-out set. Registering on a stopped
// hub shuts the subscriber down immediately.
func (h *WebSocketHub) Register(sub subscriber) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.shutdown()
		return
	}
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	log.Printf("WebSocket client connected (total: %d)", n)
}

// Unregister removes a subscriber and shuts it down. Safe to call more than
// once; only the first call does anything.
func (h *WebSocketHub) Unregister(sub subscriber) {
	h.mu.Lock()
	_, present := h.subs[sub]
	if present {
		delete(h.subs, sub)
		sub.shutdown()
	}
	n := len(h.subs)
	h.mu.Unlock()
	if present {
		log.Printf("WebSocket client disconnected (total: %d)", n)
	}
}

// Stop shuts down every subscriber and refuses further registrations.
func (h *WebSocketHub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		sub.shutdown()
	}
	h.subs = make(map[subscriber]struct{})
}

// Broadcast marshals the message once and delivers it to every subscriber.
// Subscribers whose buffers are full are dropped.
func (h *WebSocketHub) Broadcast(message interface{}) {
	frame, err := json.Marshal(message)
	if err != nil {
		log.Printf("ERROR: Failed to marshal WebSocket message: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if !sub.deliver(frame) {
			delete(h.subs, sub)
			sub.shutdown()
			log.Println("WARNING: WebSocket subscriber lagging, dropped")
		}
	}
}

// BroadcastEvent wraps data in the standard event envelope and broadcasts it.
func (h *WebSocketHub) BroadcastEvent(eventType string, data interface{}) {
	h.Broadcast(Event{
		Type: eventType,
		Time: time.Now().UTC(),
		Data: data,
	})
}

// ServeHTTP upgrades the request to a websocket and serves it until the
// client goes away. Browser requests must come from an allowed origin;
// origin-less clients (curl, programmatic) are accepted.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := r.Header.Get("Origin"); origin != "" && !originAllowed(origin) {
		http.Error(w, "Forbidden: invalid origin", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{ //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		OriginPatterns: wsOrigins,
	})
	if err != nil {
		log.Printf("ERROR: WebSocket upgrade failed: %v", err)
		return
	}

	cl := &wsClient{conn: conn, out: make(chan []byte, outboundBuffer)}
	h.Register(cl)
	go cl.writeLoop(h)
	go cl.readLoop(h)
}

func originAllowed(origin string) bool {
	for _, host := range wsOrigins {
		if origin == "http://"+host {
			return true
		}
	}
	return false
}

// wsClient is a live websocket connection with a bounded outbound buffer.
type wsClient struct {
	conn *websocket.Conn //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	out  chan []byte
	once sync.Once
}

func (c *wsClient) deliver(frame []byte) bool {
	select {
	case c.out <- frame:
		return true
	default:
		return false
	}
}

// shutdown closes the outbound channel exactly once; writeLoop exits when
// it drains. The hub only calls this after removing the client from the
// subscriber set, so no delivery can race the close.
func (c *wsClient) shutdown() {
	c.once.Do(func() { close(c.out) })
}

// writeLoop pushes buffered frames to the connection until the buffer closes
// or a write fails.
func (c *wsClient) writeLoop(hub *WebSocketHub) {
	defer func() {
		hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}()

	for frame := range c.out {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.conn.Write(ctx, websocket.MessageText, frame) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		cancel()
		if err != nil {
			log.Printf("ERROR: WebSocket write failed: %v", err)
			return
		}
	}
}

// readLoop drains inbound frames so connection closure is noticed promptly.
// The feed is one-way; inbound payloads are discarded.
func (c *wsClient) readLoop(hub *WebSocketHub) {
	defer func() {
		hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}()

	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			return
		}
	}
}

// MockClient is a test double standing in for a connected client. Broadcast
// frames land on SendChan.
type MockClient struct {
	SendChan chan []byte
}

func (m *MockClient) deliver(frame []byte) bool {
	select {
	case m.SendChan <- frame:
		return true
	default:
		return false
	}
}

func (m *MockClient) shutdown() {}
