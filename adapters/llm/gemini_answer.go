package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/studylive/domain/entities"
	"github.com/satriahrh/studylive/domain/repositories"
	"github.com/satriahrh/studylive/internal/contexttier"
)

const answerSystemPrompt = `You are a study assistant helping a student understand a lecture video.
Answer the student's question using the attached frame and script excerpt.
Keep answers short and concrete. Set needs_more_context when the excerpt is
not enough to answer well, and suggest a larger context tier (S, M or L) or a
time in seconds to rewind to when that would help.`

// responseSchema mirrors the answer card fields
var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":  {Type: genai.TypeString},
		"answer": {Type: genai.TypeString},
		"key_terms": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"term":       {Type: genai.TypeString},
					"definition": {Type: genai.TypeString},
				},
				Required: []string{"term", "definition"},
			},
		},
		"confidence": {
			Type:    genai.TypeNumber,
			Minimum: genai.Ptr(0.0),
			Maximum: genai.Ptr(1.0),
		},
		"suggested_followups": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
		"needs_more_context": {Type: genai.TypeBoolean},
		"suggested_context_tier": {
			Type: genai.TypeString,
			Enum: []string{"S", "M", "L"},
		},
		"suggested_rewind_time": {
			Type:     genai.TypeNumber,
			Nullable: genai.Ptr(true),
		},
	},
	Required: []string{"title", "answer", "confidence", "needs_more_context"},
	PropertyOrdering: []string{
		"title", "answer", "key_terms", "confidence", "suggested_followups",
		"needs_more_context", "suggested_context_tier", "suggested_rewind_time",
	},
}

// GeminiAnswerGenerator produces schema-constrained answers with GenerateContent
type GeminiAnswerGenerator struct {
	client          *genai.Client
	logger          *zap.Logger
	model           string
	temperature     float32
	maxOutputTokens int
	timeout         time.Duration
}

var _ repositories.AnswerGenerator = (*GeminiAnswerGenerator)(nil)

// NewGeminiAnswerGenerator creates an answer generator with config defaults applied
func NewGeminiAnswerGenerator(client *genai.Client, config GeminiConfig, logger *zap.Logger) (*GeminiAnswerGenerator, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	model := config.Model
	if model == "" {
		model = defaultModel
		logger.Info("Using default model", zap.String("model", model))
	}

	temperature := config.Temperature
	if temperature == 0 {
		temperature = float32(defaultTemperature)
		logger.Info("Using default temperature", zap.Float32("temperature", temperature))
	}

	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = defaultMaxTokens
		logger.Info("Using default maxOutputTokens", zap.Int("maxOutputTokens", maxOutputTokens))
	}

	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
		logger.Info("Using default timeoutSeconds", zap.Int("timeoutSeconds", timeoutSeconds))
	}

	return &GeminiAnswerGenerator{
		client:          client,
		logger:          logger,
		model:           model,
		temperature:     temperature,
		maxOutputTokens: maxOutputTokens,
		timeout:         time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// GenerateAnswer sends the query with its context and returns the raw JSON body
func (g *GeminiAnswerGenerator) GenerateAnswer(ctx context.Context, request repositories.AnswerRequest) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(answerSystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
		MaxOutputTokens:   int32(g.maxOutputTokens),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema,
	}

	response, err := g.client.Models.GenerateContent(ctx, g.model, buildContents(request), config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", wrapAPIError(err))
	}

	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%w: no candidates returned", entities.ErrSchema)
	}

	var text strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	g.logger.Debug("Answer generated",
		zap.String("query", truncate(request.Query, 50)),
		zap.Int("responseBytes", text.Len()))

	return []byte(text.String()), nil
}

func buildContents(request repositories.AnswerRequest) []*genai.Content {
	parts := []*genai.Part{
		genai.NewPartFromText(contexttier.Render(request.Bundle)),
	}
	if len(request.Bundle.Image) > 0 {
		parts = append(parts, genai.NewPartFromBytes(request.Bundle.Image, entities.MIMETypeJPEG))
	}
	parts = append(parts, genai.NewPartFromText("Question: "+request.Query))

	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}
