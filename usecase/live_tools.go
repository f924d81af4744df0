package usecase

import (
	"go.uber.org/zap"

	"github.com/satriahrh/studylive/domain/entities"
	"github.com/satriahrh/studylive/domain/repositories"
	"github.com/satriahrh/studylive/internal/contexttier"
	"github.com/satriahrh/studylive/internal/metrics"
)

// Tool names exposed to the live model
const (
	ToolGetVideoContext = "get_video_context"
	ToolSeekVideo       = "seek_video"
)

// LiveToolDeclarations returns the functions the live model may call
func LiveToolDeclarations() []repositories.ToolDeclaration {
	return []repositories.ToolDeclaration{
		{
			Name:        ToolGetVideoContext,
			Description: "Returns the script lines and time window around the current playback position.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"tier": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"S", "M", "L"},
						"description": "How much surrounding context to include: S (narrow), M, or L (wide).",
					},
				},
				"required": []string{"tier"},
			},
		},
		{
			Name:        ToolSeekVideo,
			Description: "Moves the video player to the given time so the student can rewatch it.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"seconds": map[string]interface{}{
						"type":        "number",
						"description": "Target playback position in seconds from the start of the video.",
					},
				},
				"required": []string{"seconds"},
			},
		},
	}
}

func ackResponse(call entities.ToolCall) entities.ToolResponse {
	return entities.ToolResponse{
		ID:       call.ID,
		Name:     call.Name,
		Response: map[string]interface{}{"result": "ok"},
	}
}

// handleToolCall answers one tool call. Malformed or unknown calls are
// logged and acknowledged neutrally so the model's turn is never left
// waiting.
func (m *LiveSessionManager) handleToolCall(s *liveSession, call entities.ToolCall) entities.ToolResponse {
	logger := m.logger.With(zap.String("tool", call.Name), zap.String("callID", call.ID))

	switch call.Name {
	case ToolGetVideoContext:
		raw, _ := call.Args["tier"].(string)
		tier, err := contexttier.ParseTier(raw)
		if err != nil {
			logger.Warn("Malformed tool arguments", zap.Any("args", call.Args), zap.Error(err))
			metrics.ToolCalls.WithLabelValues(call.Name, "malformed").Inc()
			return ackResponse(call)
		}

		view, script := m.View(), m.Script()
		bundle := m.tiers.Assemble(tier, view.Position, script, nil)

		metrics.ToolCalls.WithLabelValues(call.Name, "ok").Inc()
		return entities.ToolResponse{
			ID:   call.ID,
			Name: call.Name,
			Response: map[string]interface{}{
				"result": contexttier.Render(bundle),
				"tier":   string(bundle.Tier),
			},
		}

	case ToolSeekVideo:
		seconds, ok := call.Args["seconds"].(float64)
		if !ok || seconds < 0 {
			logger.Warn("Malformed tool arguments", zap.Any("args", call.Args))
			metrics.ToolCalls.WithLabelValues(call.Name, "malformed").Inc()
			return ackResponse(call)
		}

		m.publish(s, entities.SessionEvent{
			Kind: entities.EventTool,
			Tool: &entities.ToolEvent{
				Name: ToolSeekVideo,
				Args: map[string]interface{}{"seconds": seconds},
			},
		})
		metrics.ToolCalls.WithLabelValues(call.Name, "ok").Inc()
		return ackResponse(call)

	default:
		logger.Warn("Unknown tool called")
		metrics.ToolCalls.WithLabelValues("unknown", "ignored").Inc()
		return ackResponse(call)
	}
}
