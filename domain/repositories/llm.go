package repositories

import (
	"context"

	"github.com/satriahrh/studylive/domain/entities"
)

// AnswerGenerator abstracts the single-shot structured query provider
type AnswerGenerator interface {
	// GenerateAnswer returns the raw JSON body produced for the request.
	// The body is expected to follow the answer schema but is not trusted.
	GenerateAnswer(ctx context.Context, request AnswerRequest) ([]byte, error)
}

// AnswerRequest is one question plus the context attached to it
type AnswerRequest struct {
	Query  string
	Bundle entities.ContextualBundle
}

// StatusCoder is implemented by provider errors that carry an HTTP status
type StatusCoder interface {
	StatusCode() int
}
