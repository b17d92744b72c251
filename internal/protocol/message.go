package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a server-originated message with the current timestamp.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Server → Client message types.
const (
	TypeFrame        = "image"
	TypeAlert        = "new_notification"
	TypeServerStatus = "server_status"
	TypeError        = "error"
)

// Client → Server message types.
const (
	TypeStatusRequest = "status.request"
)

// Error codes.
const (
	ErrInvalidMessage = "INVALID_MESSAGE"
)

// Server → Client payloads.

// FramePayload carries one annotated camera frame.
type FramePayload struct {
	Image  string `json:"image"` // base64-encoded JPEG
	Label  string `json:"label"`
	Advice string `json:"advice"`
}

// AlertPayload carries one disease alert notification.
type AlertPayload struct {
	Message   string `json:"message"`
	CreatedAt string `json:"createdAt"`
}

// ServerStatusPayload is pushed to a subscriber once on connect and in
// reply to a status request.
type ServerStatusPayload struct {
	Status string `json:"status"`
	Active bool   `json:"active"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}
