package api

import (
	"time"

	"github.com/satriahrh/studylive/domain/entities"
)

// TokenRequest represents the request payload for UI authentication
type TokenRequest struct {
	ClientID string `json:"client_id"`
	Secret   string `json:"secret" validate:"required"`
}

// TokenResponse represents the response payload for UI authentication
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ClientID  string    `json:"client_id"`
}

// ConnectRequest starts a live session
type ConnectRequest struct {
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// SessionResponse describes the live session
type SessionResponse struct {
	Session entities.Session `json:"session"`
}

// PlayerRequest reports what the player currently shows
type PlayerRequest struct {
	VideoPath       string           `json:"video_path"`
	PositionSeconds float64          `json:"position_seconds"`
	Container       entities.Size    `json:"container"`
	Outline         []entities.Point `json:"outline,omitempty"`
}

// ScriptLine is one script line on the wire, in seconds
type ScriptLine struct {
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	Text         string  `json:"text"`
}

// ScriptRequest replaces the script of the loaded video
type ScriptRequest struct {
	Lines []ScriptLine `json:"lines"`
}

// AskRequest is one question about the video
type AskRequest struct {
	Query string `json:"query" validate:"required"`
	Tier  string `json:"tier,omitempty"`
	// Defaults to true.
	IncludeFrame *bool `json:"include_frame,omitempty"`
}

// AskResponse is the answer card plus the tier to use if the user asks again
type AskResponse struct {
	entities.AnswerCard
	Tier     entities.Tier `json:"tier"`
	NextTier entities.Tier `json:"next_tier"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
