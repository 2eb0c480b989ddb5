package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cicadagallery/internal/infrastructure"
	"cicadagallery/pkg/contracts/events"
)

var (
	ErrHubStopped = errors.New("websocket hub stopped")
	ErrQueueFull  = errors.New("websocket broadcast queue full")
)

// Hub maintains the set of connected license screens and pushes events to
// all of them.
type Hub struct {
	clients map[*Client]struct{}

	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client

	mu       sync.RWMutex
	logger   *slog.Logger
	metrics  *Metrics
	snapshot func() *events.WebSocketMessage

	done     chan struct{}
	stopOnce sync.Once
}

type outbound struct {
	msgType events.MessageType
	data    []byte
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubMetrics records connection and message counts.
func WithHubMetrics(m *Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithSnapshot sends the message returned by fn to every newly registered
// client, after the connect message.
func WithSnapshot(fn func() *events.WebSocketMessage) HubOption {
	return func(h *Hub) { h.snapshot = fn }
}

// NewHub creates a hub. Call Run to start it.
func NewHub(logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan outbound, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run serves register, unregister and broadcast requests until ctx is done
// or Stop is called. All client send channels are closed on return.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.Stop()
		h.closeAll()
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub shutting down", slog.String("reason", ctx.Err().Error()))
			return
		case <-h.done:
			h.logger.Info("hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()

			cctx := client.context()
			h.metrics.connected(cctx, 1)
			h.logger.InfoContext(cctx, "client registered",
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr),
				slog.Int("total_clients", count))

			h.greet(client)

		case client := <-h.unregister:
			h.remove(client, "closed")

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// greet sends the connect message and the optional snapshot.
func (h *Hub) greet(client *Client) {
	connect := events.NewMessage(events.MessageTypeConnect, map[string]string{
		"client_id": client.id,
		"status":    "connected",
	})
	connect.TraceID = client.traceID

	msgs := []*events.WebSocketMessage{&connect}
	if h.snapshot != nil {
		if snap := h.snapshot(); snap != nil {
			msgs = append(msgs, snap)
		}
	}

	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			h.logger.Error("failed to marshal greeting", slog.String("error", err.Error()))
			continue
		}
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client buffer full during greeting", slog.String("client_id", client.id))
		}
	}
}

func (h *Hub) fanOut(msg outbound) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		select {
		case client.send <- msg.data:
			sent++
		default:
			h.metrics.droppedClient(client.context())
			h.remove(client, "send buffer full")
		}
	}

	h.metrics.sent(context.Background(), string(msg.msgType), sent)
	h.logger.Debug("event broadcast",
		slog.String("type", string(msg.msgType)),
		slog.Int("recipients", sent),
		slog.Int("size", len(msg.data)))
}

func (h *Hub) remove(client *Client, reason string) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	cctx := client.context()
	h.metrics.connected(cctx, -1)
	h.logger.InfoContext(cctx, "client unregistered",
		slog.String("client_id", client.id),
		slog.String("reason", reason),
		slog.Int("total_clients", count))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
		h.metrics.connected(context.Background(), -1)
	}
}

// Broadcast queues msg for every connected client. It never blocks on
// slow clients; it fails only when the hub is stopped or its queue is full.
func (h *Hub) Broadcast(msg events.WebSocketMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", msg.Type, err)
	}

	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	select {
	case h.broadcast <- outbound{msgType: msg.Type, data: data}:
		return nil
	default:
		h.logger.Warn("broadcast queue full, event dropped", slog.String("type", string(msg.Type)))
		return ErrQueueFull
	}
}

// Register adds client to the hub. It returns false once the hub stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop ends Run. It is safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}
