package websocket

import (
	"context"
	"log/slog"

	"cicadagallery/internal/services"
	"cicadagallery/pkg/contracts/domain"
	"cicadagallery/pkg/contracts/events"
)

// BindLicenseEvents pushes gate changes and activation outcomes from svc to
// every client of hub. It also makes the hub greet new clients with the
// current status. Call it before Run.
func BindLicenseEvents(hub *Hub, svc services.LicenseService, lang string) {
	hub.snapshot = func() *events.WebSocketMessage {
		msg := events.NewMessage(events.MessageTypeLicenseStatus, svc.GetStatus(context.Background(), lang))
		return &msg
	}

	svc.OnStatusChange(func(st *domain.LicenseStatus) {
		publish(hub, events.NewMessage(events.MessageTypeLicenseStatus, st))
	})
	svc.OnActivation(func(ev events.ActivationEvent) {
		publish(hub, events.NewMessage(events.MessageTypeActivation, ev))
	})
}

func publish(hub *Hub, msg events.WebSocketMessage) {
	if err := hub.Broadcast(msg); err != nil {
		hub.logger.Warn("license event not delivered",
			slog.String("type", string(msg.Type)),
			slog.String("error", err.Error()))
	}
}
