package websocket

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts connections and pushed events.
type Metrics struct {
	connections metric.Int64UpDownCounter
	messages    metric.Int64Counter
	dropped     metric.Int64Counter
}

// NewMetrics registers the websocket instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	connections, err := meter.Int64UpDownCounter(
		"websocket_connections_active",
		metric.WithDescription("Number of connected license screen clients"),
	)
	if err != nil {
		return nil, err
	}

	messages, err := meter.Int64Counter(
		"websocket_messages_sent_total",
		metric.WithDescription("Events pushed to clients, by type"),
	)
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter(
		"websocket_clients_dropped_total",
		metric.WithDescription("Clients disconnected because their send buffer was full"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{connections: connections, messages: messages, dropped: dropped}, nil
}

func (m *Metrics) connected(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.connections.Add(ctx, delta)
}

func (m *Metrics) sent(ctx context.Context, msgType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.messages.Add(ctx, int64(n), metric.WithAttributes(attribute.String("type", msgType)))
}

func (m *Metrics) droppedClient(ctx context.Context) {
	if m == nil {
		return
	}
	m.dropped.Add(ctx, 1)
}
