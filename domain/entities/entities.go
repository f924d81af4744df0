package entities

import (
	"errors"
	"time"
)

// Role identifies the speaker of a transcript turn
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Audio formats used on the wire
const (
	CaptureSampleRate  = 16000
	PlaybackSampleRate = 24000
	CaptureBufferSize  = 4096

	MIMETypeJPEG = "image/jpeg"
)

// AudioFrame is a block of linear PCM samples, one slice per channel
type AudioFrame struct {
	SampleRate int
	Channels   [][]float32
}

// Mono returns the first channel of the frame
func (f AudioFrame) Mono() []float32 {
	if len(f.Channels) == 0 {
		return nil
	}
	return f.Channels[0]
}

// Len returns the number of sample frames
func (f AudioFrame) Len() int {
	return len(f.Mono())
}

// Duration returns the playback length of the frame
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Len()) * time.Second / time.Duration(f.SampleRate)
}

// MediaChunk is an encoded payload sent over or received from the live channel
type MediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64 encoded
}

// TranscriptTurn is one contiguous utterance by one speaker
type TranscriptTurn struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Tier names a context-window size
type Tier string

const (
	TierS Tier = "S"
	TierM Tier = "M"
	TierL Tier = "L"
)

// TimeWindow is a span of the video timeline
type TimeWindow struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// ScriptLine is one line of the video script
type ScriptLine struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

// ContextualBundle is the context attached to a single query
type ContextualBundle struct {
	Tier        Tier          `json:"tier"`
	Position    time.Duration `json:"position"`
	Window      TimeWindow    `json:"window"`
	ScriptLines []ScriptLine  `json:"script_lines"`
	Image       []byte        `json:"-"`
}

// KeyTerm is a glossary entry attached to an answer
type KeyTerm struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// AnswerCard is the structured answer of the non-live query path
type AnswerCard struct {
	Title                string    `json:"title"`
	Answer               string    `json:"answer"`
	KeyTerms             []KeyTerm `json:"key_terms,omitempty"`
	Confidence           float64   `json:"confidence"`
	SuggestedFollowups   []string  `json:"suggested_followups,omitempty"`
	NeedsMoreContext     bool      `json:"needs_more_context"`
	SuggestedContextTier Tier      `json:"suggested_context_tier,omitempty"`
	SuggestedRewindTime  *float64  `json:"suggested_rewind_time,omitempty"`
	IsError              bool      `json:"is_error,omitempty"`
}

// Validate validates the answer card content
func (a *AnswerCard) Validate() error {
	if a.Title == "" {
		return errors.New("title is required")
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return errors.New("confidence must be between 0 and 1")
	}
	switch a.SuggestedContextTier {
	case "", TierS, TierM, TierL:
	default:
		return errors.New("invalid suggested context tier")
	}
	return nil
}

// ToolCall is a function call requested by the remote model
type ToolCall struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// ToolResponse answers a ToolCall
type ToolResponse struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

// Point is a screen or source space coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ViewState is what the player currently shows
type ViewState struct {
	VideoPath string        `json:"video_path"`
	Position  time.Duration `json:"position"`
	Container Size          `json:"container"`
	Outline   []Point       `json:"outline,omitempty"`
}
