// Package relay pushes the latest message of each feed topic to WebSocket
// subscribers.
package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	ikafka "github.com/yeonjoon13/swim-adsb/internal/kafka"
	"github.com/yeonjoon13/swim-adsb/internal/logging"
	"github.com/yeonjoon13/swim-adsb/internal/metrics"
	"github.com/yeonjoon13/swim-adsb/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub keeps the newest message per topic and fans new messages out to the
// clients subscribed to that topic.
type Hub struct {
	log   zerolog.Logger
	known map[string]struct{}

	mu      sync.Mutex
	latest  map[string]model.Message
	clients map[string]map[*client]struct{}
}

type client struct {
	conn   *websocket.Conn
	remote string
	topic  string
	send   chan []byte
}

// NewHub creates a hub. When topics is non-empty, subscriptions to any
// other topic are refused.
func NewHub(topics ...string) *Hub {
	known := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		known[t] = struct{}{}
	}
	return &Hub{
		log:     logging.Component("relay"),
		known:   known,
		latest:  make(map[string]model.Message),
		clients: make(map[string]map[*client]struct{}),
	}
}

// Publish stores msg as the latest of its topic and forwards it to the
// topic's subscribers. Clients whose buffer is full are dropped.
func (h *Hub) Publish(_ context.Context, msg model.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest[msg.Topic] = msg
	for c := range h.clients[msg.Topic] {
		select {
		case c.send <- msg.Body:
		default:
			h.log.Warn().Str("topic", msg.Topic).Str("remote", c.remote).Msg("dropping slow client")
			h.removeLocked(c)
		}
	}
	return nil
}

// Latest returns the newest message seen for topic.
func (h *Hub) Latest(topic string) (model.Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg, ok := h.latest[topic]
	return msg, ok
}

// Clients returns the number of subscribers of topic.
func (h *Hub) Clients(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[topic])
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.clients[c.topic]
	if !ok {
		subs = make(map[*client]struct{})
		h.clients[c.topic] = subs
	}
	subs[c] = struct{}{}
	metrics.RelayClients.Inc()

	if msg, ok := h.latest[c.topic]; ok {
		c.send <- msg.Body
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	subs := h.clients[c.topic]
	if _, ok := subs[c]; !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.clients, c.topic)
	}
	close(c.send)
	metrics.RelayClients.Dec()
}

// ServeHTTP upgrades the request and subscribes it to the topic named by
// the "topic" query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		http.Error(w, "missing topic parameter", http.StatusBadRequest)
		return
	}
	if len(h.known) > 0 {
		if _, ok := h.known[topic]; !ok {
			http.Error(w, "unknown topic", http.StatusNotFound)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, remote: conn.RemoteAddr().String(), topic: topic, send: make(chan []byte, sendBuffer)}
	h.add(c)
	h.log.Info().Str("topic", topic).Str("remote", c.remote).Msg("client connected")

	go c.writePump()
	c.readPump()

	h.remove(c)
	h.log.Info().Str("topic", topic).Str("remote", c.remote).Msg("client disconnected")
}

// readPump discards inbound frames and returns once the peer goes away.
func (c *client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
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
		case body, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Reader is the part of *kafka.Reader the relay consumes from.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Consume feeds every message read from r into the hub until ctx is done.
func (h *Hub) Consume(ctx context.Context, r Reader) error {
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			h.log.Error().Err(err).Msg("kafka read failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		_ = h.Publish(ctx, model.Message{
			Topic:       m.Topic,
			Body:        m.Value,
			ContentType: ikafka.ContentType(m),
		})
		h.log.Debug().Str("topic", m.Topic).Int("bytes", len(m.Value)).Msg("relayed message")
	}
}

// Handler routes /ws to the hub and exposes /healthz.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
