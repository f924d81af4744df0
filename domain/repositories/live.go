package repositories

import (
	"context"

	"github.com/satriahrh/studylive/domain/entities"
)

// LiveConfig configures a duplex live connection
type LiveConfig struct {
	Model             string
	SystemInstruction string
	Voice             string
	Tools             []ToolDeclaration
}

// ToolDeclaration describes a function the remote model may call
type ToolDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// LiveTransport opens duplex connections to the remote conversational endpoint
type LiveTransport interface {
	// Open returns once the setup handshake completes or fails.
	Open(ctx context.Context, config LiveConfig, handler LiveEventHandler) (LiveConnection, error)
}

// LiveConnection is an open duplex connection
type LiveConnection interface {
	SendMedia(chunk entities.MediaChunk) error
	SendToolResponse(responses []entities.ToolResponse) error
	// Close is idempotent.
	Close() error
}

// LiveEventHandler receives inbound events in delivery order
type LiveEventHandler interface {
	OnAudio(chunk entities.MediaChunk)
	OnTranscript(role entities.Role, text string, finished bool)
	OnTurnComplete()
	OnToolCall(calls []entities.ToolCall)
	OnInterrupted()
	OnError(err error)
	OnClose()
}
