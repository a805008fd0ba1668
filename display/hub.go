package display

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/liamcoop/recalc/internal/logger"
	"github.com/liamcoop/recalc/recalc"
)

const (
	defaultWriteWait  = 10 * time.Second
	defaultPongWait   = 60 * time.Second
	defaultPingPeriod = 54 * time.Second
	outboundBuffer    = 32
	maxInboundMessage = 1024
)

// Message is what subscribers receive for every pass
type Message struct {
	Type   string         `json:"type"`
	Result *recalc.Result `json:"result"`
}

type subscriber struct {
	conn     *websocket.Conn
	outbound chan []byte
	closed   chan struct{}
	once     sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.closed) })
}

// Hub pushes pass results to websocket subscribers of a session. Each
// connection has a single writer goroutine that also sends pings.
type Hub struct {
	upgrader   websocket.Upgrader
	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration

	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

var _ recalc.Display = (*Hub)(nil)

type HubOption func(*Hub)

// WithKeepalive sets how often pings are sent and how long to wait for a
// pong. ping must be shorter than pong.
func WithKeepalive(ping, pong time.Duration) HubOption {
	return func(h *Hub) {
		if ping > 0 && pong > ping {
			h.pingPeriod = ping
			h.pongWait = pong
		}
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		writeWait:  defaultWriteWait,
		pongWait:   defaultPongWait,
		pingPeriod: defaultPingPeriod,
		subs:       make(map[string]map[*subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve upgrades the request and streams the passes of sessionID until
// the client goes away. It blocks for the life of the connection.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	sub := &subscriber{
		conn:     conn,
		outbound: make(chan []byte, outboundBuffer),
		closed:   make(chan struct{}),
	}
	h.add(sessionID, sub)
	defer h.remove(sessionID, sub)

	// reader: only handles pongs and notices the close
	conn.SetReadLimit(maxInboundMessage)
	conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})
	go func() {
		defer sub.close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.write(sub)
	return nil
}

func (h *Hub) write(sub *subscriber) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()
	defer sub.conn.Close()

	for {
		select {
		case msg := <-sub.outbound:
			sub.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := sub.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeWait)); err != nil {
				return
			}
		case <-sub.closed:
			sub.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.writeWait))
			return
		}
	}
}

// Refresh sends result to every subscriber of its session. A subscriber
// that cannot keep up is disconnected.
func (h *Hub) Refresh(ctx context.Context, result *recalc.Result) {
	h.mu.RLock()
	subs := h.subs[result.SessionID]
	if len(subs) == 0 {
		h.mu.RUnlock()
		return
	}
	targets := make([]*subscriber, 0, len(subs))
	for s := range subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	msg, err := json.Marshal(Message{Type: "recalculation", Result: result})
	if err != nil {
		logger.Error("Failed to encode pass result", "session", result.SessionID, "error", err)
		return
	}

	for _, s := range targets {
		select {
		case s.outbound <- msg:
		default:
			logger.Warn("Dropping slow subscriber", "session", result.SessionID)
			s.close()
		}
	}
}

// Subscribers returns the number of connections watching sessionID
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// Disconnect closes every connection watching sessionID
func (h *Hub) Disconnect(sessionID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[sessionID] {
		s.close()
	}
}

// Close disconnects everyone
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, subs := range h.subs {
		for s := range subs {
			s.close()
		}
	}
}

func (h *Hub) add(sessionID string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*subscriber]struct{})
	}
	h.subs[sessionID][s] = struct{}{}
}

func (h *Hub) remove(sessionID string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[sessionID], s)
	if len(h.subs[sessionID]) == 0 {
		delete(h.subs, sessionID)
	}
}
