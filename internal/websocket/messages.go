package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/satriahrh/studylive/domain/entities"
)

// MessageType defines the type of an inbound UI message
type MessageType string

// Supported message types
const (
	MessageTypeTalkStart    MessageType = "talk_start"
	MessageTypeTalkStop     MessageType = "talk_stop"
	MessageTypePlayerUpdate MessageType = "player_update"
	MessageTypePing         MessageType = "ping"
	MessageTypePong         MessageType = "pong"
	MessageTypeError        MessageType = "error"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type" validate:"required"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

// TalkMessage opens or closes the push-to-talk gate
type TalkMessage struct {
	BaseMessage
}

// PlayerUpdateMessage reports what the player currently shows
type PlayerUpdateMessage struct {
	BaseMessage
	VideoPath       string           `json:"video_path"`
	PositionSeconds float64          `json:"position_seconds" validate:"min=0"`
	Container       entities.Size    `json:"container"`
	Outline         []entities.Point `json:"outline,omitempty"`
}

// View converts the message to the player view it describes
func (m *PlayerUpdateMessage) View() entities.ViewState {
	return entities.ViewState{
		VideoPath: m.VideoPath,
		Position:  time.Duration(m.PositionSeconds * float64(time.Second)),
		Container: m.Container,
		Outline:   m.Outline,
	}
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	// First parse as base message to get type
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeTalkStart, MessageTypeTalkStop:
		return &TalkMessage{BaseMessage: base}, nil

	case MessageTypePlayerUpdate:
		var msg PlayerUpdateMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid player update message: %w", err)
		}
		if err := v.validatePlayerUpdate(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// validatePlayerUpdate validates player update message fields
func (v *MessageValidator) validatePlayerUpdate(msg *PlayerUpdateMessage) error {
	if msg.PositionSeconds < 0 {
		return fmt.Errorf("position_seconds must not be negative")
	}
	if msg.Container.Width < 0 || msg.Container.Height < 0 {
		return fmt.Errorf("container size must not be negative")
	}
	if len(msg.Outline) == 1 {
		return fmt.Errorf("outline needs at least two points")
	}
	return nil
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeError,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Code:    code,
		Message: message,
		Details: details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePong,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Data: data,
	}
}
