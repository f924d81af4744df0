package entities

import "time"

// SessionEventKind classifies events pushed to the UI
type SessionEventKind string

const (
	EventTranscript SessionEventKind = "transcript"
	EventVolume     SessionEventKind = "volume"
	EventState      SessionEventKind = "state"
	EventTool       SessionEventKind = "tool"
)

// VolumeSource distinguishes microphone and speaker levels
type VolumeSource string

const (
	VolumeInput  VolumeSource = "input"
	VolumeOutput VolumeSource = "output"
)

// SessionEvent is one outbound notification for the UI layer
type SessionEvent struct {
	Kind       SessionEventKind `json:"kind"`
	SessionID  string           `json:"session_id,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
	Transcript *TranscriptEvent `json:"transcript,omitempty"`
	Volume     *VolumeEvent     `json:"volume,omitempty"`
	State      *StateEvent      `json:"state,omitempty"`
	Tool       *ToolEvent       `json:"tool,omitempty"`
}

// TranscriptEvent carries one reconciled transcript change
type TranscriptEvent struct {
	IsUser         bool   `json:"isUser"`
	MessageID      string `json:"messageId"`
	TextFragment   string `json:"textFragment"`
	Text           string `json:"text"`
	IsTurnComplete bool   `json:"isTurnComplete"`
}

// VolumeEvent is an instantaneous level reading
type VolumeEvent struct {
	Source VolumeSource `json:"source"`
	Level  float64      `json:"level"`
}

// StateEvent reports a connection state change
type StateEvent struct {
	State  ConnectionState `json:"state"`
	Reason string          `json:"reason,omitempty"`
}

// ToolEvent asks the UI to perform an action requested by the model
type ToolEvent struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}
