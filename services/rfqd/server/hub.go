package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"rfqdesk/core/events"
	"rfqdesk/observability/metrics"
)

const (
	wsWriteTimeout     = 10 * time.Second
	defaultSubscriberQ = 64
)

// StreamMessage is the JSON frame pushed to websocket subscribers.
type StreamMessage struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type subscriber struct {
	ch chan []byte
}

// Hub fans engine notifications out to websocket subscribers. It implements
// events.Emitter and never blocks the emitter: a subscriber whose queue is
// full misses the frame.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	queue  int
	logger *slog.Logger
}

// NewHub constructs a hub with per-subscriber queue depth queue.
func NewHub(queue int, logger *slog.Logger) *Hub {
	if queue <= 0 {
		queue = defaultSubscriberQ
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[*subscriber]struct{}), queue: queue, logger: logger}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	data, err := json.Marshal(StreamMessage{Type: payload.Type, Attributes: payload.Attributes})
	if err != nil {
		h.logger.Error("hub: encode notification", slog.Any("error", err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.ch <- data:
			metrics.Stream().Delivered()
		default:
			metrics.Stream().Dropped("slow_consumer")
		}
	}
}

// Subscribe registers a new queue. The returned cancel func must be called.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	sub := &subscriber{ch: make(chan []byte, h.queue)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	metrics.Stream().SubscriberJoined()
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
			metrics.Stream().SubscriberLeft()
		})
	}
}

// Subscribers reports the number of connected queues.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	updates, cancel := h.Subscribe()
	defer cancel()
	if err := h.stream(ctx, conn, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (h *Hub) stream(ctx context.Context, conn *websocket.Conn, updates <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-updates:
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
