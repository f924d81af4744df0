package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/satriahrh/studylive/domain/entities"
	"github.com/satriahrh/studylive/domain/repositories"
	"github.com/satriahrh/studylive/internal/metrics"
)

const (
	defaultAskAttempts        = 3
	defaultAskInitialInterval = 500 * time.Millisecond
	defaultAskMultiplier      = 2.0
)

// AskConfig holds retry configuration for the ask path
type AskConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
}

// AskService answers one-off questions about the video with a structured card
type AskService struct {
	generator repositories.AnswerGenerator
	schema    *gojsonschema.Schema
	config    AskConfig
	logger    *zap.Logger

	// notify observes each retry delay.
	notify func(err error, delay time.Duration)
}

// NewAskService creates an ask service
func NewAskService(generator repositories.AnswerGenerator, config AskConfig, logger *zap.Logger) (*AskService, error) {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultAskAttempts
		logger.Info("Using default ask attempts", zap.Int("maxAttempts", config.MaxAttempts))
	}
	if config.InitialInterval <= 0 {
		config.InitialInterval = defaultAskInitialInterval
		logger.Info("Using default ask retry interval", zap.Duration("initialInterval", config.InitialInterval))
	}
	if config.Multiplier <= 1 {
		config.Multiplier = defaultAskMultiplier
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(AnswerSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile answer schema: %w", err)
	}

	return &AskService{
		generator: generator,
		schema:    schema,
		config:    config,
		logger:    logger,
	}, nil
}

// Ask returns an answer card for query. Failures never escape as errors:
// they produce a card with IsError set.
func (s *AskService) Ask(ctx context.Context, query string, bundle entities.ContextualBundle) entities.AnswerCard {
	started := time.Now()
	defer func() { metrics.AskDuration.Observe(time.Since(started).Seconds()) }()

	request := repositories.AnswerRequest{Query: query, Bundle: bundle}

	raw, err := s.generateWithRetry(ctx, request)
	if err != nil {
		s.logger.Error("Failed to generate answer", zap.Error(err))
		metrics.Errors.WithLabelValues("ask", "generate").Inc()
		return errorCard(bundle.Tier)
	}

	card, err := s.parse(raw)
	if err != nil {
		s.logger.Warn("Answer rejected", zap.Error(err), zap.ByteString("raw", truncate(raw, 512)))
		metrics.Errors.WithLabelValues("ask", "schema").Inc()
		return errorCard(bundle.Tier)
	}
	return card
}

func (s *AskService) generateWithRetry(ctx context.Context, request repositories.AnswerRequest) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.config.InitialInterval
	policy.Multiplier = s.config.Multiplier
	policy.RandomizationFactor = 0

	attempt := 0
	operation := func() ([]byte, error) {
		attempt++
		raw, err := s.generator.GenerateAnswer(ctx, request)
		if err == nil {
			return raw, nil
		}
		if !IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		s.logger.Warn("Transient ask failure", zap.Int("attempt", attempt), zap.Error(err))
		return nil, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(s.config.MaxAttempts)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			metrics.AskRetries.Inc()
			if s.notify != nil {
				s.notify(err, delay)
			}
		}),
	)
}

func (s *AskService) parse(raw []byte) (entities.AnswerCard, error) {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return entities.AnswerCard{}, fmt.Errorf("%w: %v", entities.ErrSchema, err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return entities.AnswerCard{}, fmt.Errorf("%w: %s", entities.ErrSchema, strings.Join(details, "; "))
	}

	var card entities.AnswerCard
	if err := json.Unmarshal(raw, &card); err != nil {
		return entities.AnswerCard{}, fmt.Errorf("%w: %v", entities.ErrSchema, err)
	}
	if err := card.Validate(); err != nil {
		return entities.AnswerCard{}, fmt.Errorf("%w: %v", entities.ErrSchema, err)
	}
	card.IsError = false
	return card, nil
}

func errorCard(tier entities.Tier) entities.AnswerCard {
	return entities.AnswerCard{
		Title:                "Something went wrong",
		Answer:               "I couldn't answer that right now. Please try asking again.",
		Confidence:           0,
		SuggestedContextTier: tier,
		IsError:              true,
	}
}

// IsTransient reports whether a generation failure is worth retrying: server
// side (5xx) or rate limit (429) statuses, and transport-level failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var status repositories.StatusCoder
	if errors.As(err, &status) {
		code := status.StatusCode()
		return code >= 500 || code == 429
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, signature := range []string{"timeout", "connection reset", "connection refused", "eof", "unavailable"} {
		if strings.Contains(msg, signature) {
			return true
		}
	}
	return false
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
