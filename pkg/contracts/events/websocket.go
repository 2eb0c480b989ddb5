// Package events contains the WebSocket event contracts pushed to the
// desktop frontend.
package events

import (
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// MessageTypeLicenseStatus carries a domain.LicenseStatus whenever the
	// feature gate changes.
	MessageTypeLicenseStatus MessageType = "license:status"

	// MessageTypeActivation reports the outcome of an activation attempt.
	MessageTypeActivation MessageType = "license:activation"

	MessageTypeConnect MessageType = "connect"
	MessageTypeError   MessageType = "error"
)

// BaseMessage represents the base structure for all WebSocket messages
type BaseMessage struct {
	ID        string      `json:"id,omitempty"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// WebSocketMessage represents a complete WebSocket message
type WebSocketMessage struct {
	BaseMessage
	Data interface{} `json:"data,omitempty"`
}

// ActivationEvent is the payload of MessageTypeActivation.
type ActivationEvent struct {
	Success   bool   `json:"success"`
	ErrorType string `json:"error_type,omitempty"`
	Message   string `json:"message"`
}

// NewMessage stamps a message with the current time.
func NewMessage(t MessageType, data interface{}) WebSocketMessage {
	return WebSocketMessage{
		BaseMessage: BaseMessage{Type: t, Timestamp: time.Now().UTC()},
		Data:        data,
	}
}
