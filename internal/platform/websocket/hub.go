// Package websocket pushes JSON events to browsers subscribed to a topic.
// Each connection follows exactly one topic, chosen when it is opened.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	sendBuffer = 32
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Event is one message sent to subscribers.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type client struct {
	topic string
	send  chan []byte
}

// Hub tracks open connections by topic.
type Hub struct {
	mu       sync.RWMutex
	topics   map[string]map[*client]struct{}
	upgrader gorillawebsocket.Upgrader
	logger   zerolog.Logger
}

// NewHub accepts handshakes from allowedOrigins. An empty list, or one
// containing "*", accepts any origin.
func NewHub(allowedOrigins []string, logger zerolog.Logger) *Hub {
	h := &Hub{
		topics: make(map[string]map[*client]struct{}),
		logger: logger.With().Str("component", "websocket").Logger(),
	}
	h.upgrader = gorillawebsocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			a = strings.TrimSpace(a)
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

func (h *Hub) subscribe(topic string) *client {
	cl := &client{topic: topic, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*client]struct{})
	}
	h.topics[topic][cl] = struct{}{}
	return cl
}

// unsubscribe removes cl and closes its send channel. Repeated calls are no-ops.
func (h *Hub) unsubscribe(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[cl.topic]
	if !ok {
		return
	}
	if _, ok := subs[cl]; !ok {
		return
	}
	delete(subs, cl)
	if len(subs) == 0 {
		delete(h.topics, cl.topic)
	}
	close(cl.send)
}

// Publish delivers e to every subscriber of e.Topic. Subscribers whose
// buffer is full miss the event.
func (h *Hub) Publish(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.topics[e.Topic] {
		select {
		case cl.send <- data:
		default:
			h.logger.Debug().Str("topic", e.Topic).Msg("subscriber buffer full, event dropped")
		}
	}
	return nil
}

// TopicCount returns how many connections follow topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Serve upgrades the request and streams topic to it. initial, when set, is
// the first message sent.
func (h *Hub) Serve(c echo.Context, topic string, initial *Event) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	cl := h.subscribe(topic)
	if initial != nil {
		if data, err := json.Marshal(initial); err == nil {
			cl.send <- data
		}
	}

	go h.writePump(cl, conn)
	go h.readPump(cl, conn)
	return nil
}

// readPump discards inbound messages and unsubscribes when the peer leaves.
func (h *Hub) readPump(cl *client, conn *gorillawebsocket.Conn) {
	defer func() {
		h.unsubscribe(cl)
		conn.Close()
	}()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(cl *client, conn *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-cl.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(gorillawebsocket.CloseMessage, nil)
				return
			}
			if err := conn.WriteMessage(gorillawebsocket.TextMessage, msg); err != nil {
				h.unsubscribe(cl)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				h.unsubscribe(cl)
				return
			}
		}
	}
}
