package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/satriahrh/studylive/domain/entities"
	"github.com/satriahrh/studylive/domain/repositories"
)

// MockAnswerGenerator is a placeholder generator for running without an API key
type MockAnswerGenerator struct{}

// NewMockAnswerGenerator creates a new mock answer generator
func NewMockAnswerGenerator() repositories.AnswerGenerator {
	return &MockAnswerGenerator{}
}

// GenerateAnswer implements repositories.AnswerGenerator
func (g *MockAnswerGenerator) GenerateAnswer(ctx context.Context, request repositories.AnswerRequest) ([]byte, error) {
	card := entities.AnswerCard{
		Title:              "Offline answer",
		Answer:             fmt.Sprintf("No model is configured, so I can't answer %q yet.", request.Query),
		Confidence:         0,
		SuggestedFollowups: []string{"Set GEMINI_API_KEY and ask again."},
		NeedsMoreContext:   request.Bundle.Tier != entities.TierL,
	}
	if card.NeedsMoreContext {
		card.SuggestedContextTier = entities.TierL
	}
	return json.Marshal(card)
}
