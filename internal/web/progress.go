package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/jkaninda/mtafiti/internal/pipeline"
)

const subscriberBuffer = 16

// Hub broadcasts pipeline progress events to WebSocket subscribers.
// It implements pipeline.Notifier: Notify never blocks, events are
// dropped for subscribers that fall behind.
type Hub struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	events chan pipeline.ProgressEvent

	// reportID, when non-empty, limits delivery to events for that report.
	reportID string
}

var _ pipeline.Notifier = (*Hub)(nil)

// NewHub creates an empty progress hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
	}
}

// Notify fans out an event to all subscribers without blocking.
func (h *Hub) Notify(event pipeline.ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if sub.reportID != "" && sub.reportID != event.ReportID.String() {
			continue
		}
		select {
		case sub.events <- event:
		default:
			// Subscriber is behind; drop the event.
		}
	}
}

// Handler returns an http.Handler that upgrades to WebSocket and streams
// progress events as JSON messages.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(h.handleUpgrade)
}

func (h *Hub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Error("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "connection closed")

	sub := &subscriber{
		events:   make(chan pipeline.ProgressEvent, subscriberBuffer),
		reportID: r.URL.Query().Get("report_id"),
	}
	h.subscribe(sub)
	defer h.unsubscribe(sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain incoming frames so close handshakes are processed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-sub.events:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn("encoding progress event", slog.String("error", err.Error()))
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}

func (h *Hub) subscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[sub] = struct{}{}
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
