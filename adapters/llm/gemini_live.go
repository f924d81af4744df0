package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/studylive/domain/entities"
	"github.com/satriahrh/studylive/domain/repositories"
)

const defaultLiveSetupTimeout = 10 * time.Second

// GeminiLiveTransport opens live sessions through the genai SDK
type GeminiLiveTransport struct {
	client       *genai.Client
	setupTimeout time.Duration
	logger       *zap.Logger
}

var _ repositories.LiveTransport = (*GeminiLiveTransport)(nil)

// NewGeminiLiveTransport creates a genai backed live transport
func NewGeminiLiveTransport(client *genai.Client, logger *zap.Logger) *GeminiLiveTransport {
	return &GeminiLiveTransport{
		client:       client,
		setupTimeout: defaultLiveSetupTimeout,
		logger:       logger,
	}
}

// Open connects and waits for setupComplete
func (t *GeminiLiveTransport) Open(ctx context.Context, config repositories.LiveConfig, handler repositories.LiveEventHandler) (repositories.LiveConnection, error) {
	session, err := t.client.Live.Connect(ctx, config.Model, liveConnectConfig(config))
	if err != nil {
		return nil, fmt.Errorf("failed to connect live session: %w", wrapAPIError(err))
	}

	if err := t.awaitSetup(ctx, session); err != nil {
		session.Close()
		return nil, err
	}

	c := &geminiLiveConnection{
		session: session,
		done:    make(chan struct{}),
		handler: handler,
		logger:  t.logger.With(zap.String("model", config.Model)),
	}
	go c.receive()

	c.logger.Info("Live session open")
	return c, nil
}

func (t *GeminiLiveTransport) awaitSetup(ctx context.Context, session *genai.Session) error {
	type result struct {
		msg *genai.LiveServerMessage
		err error
	}
	first := make(chan result, 1)
	go func() {
		msg, err := session.Receive()
		first <- result{msg, err}
	}()

	timer := time.NewTimer(t.setupTimeout)
	defer timer.Stop()

	select {
	case r := <-first:
		if r.err != nil {
			return fmt.Errorf("failed to receive setup response: %w", r.err)
		}
		if r.msg.SetupComplete == nil {
			return errors.New("invalid setup response: setupComplete not received")
		}
		return nil
	case <-timer.C:
		return errors.New("timed out waiting for setupComplete")
	case <-ctx.Done():
		return fmt.Errorf("failed to receive setup response: %w", ctx.Err())
	}
}

func liveConnectConfig(config repositories.LiveConfig) *genai.LiveConnectConfig {
	live := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}

	if config.Voice != "" {
		live.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: config.Voice},
			},
		}
	}
	if config.SystemInstruction != "" {
		live.SystemInstruction = genai.NewContentFromText(config.SystemInstruction, genai.RoleUser)
	}
	if len(config.Tools) > 0 {
		declarations := make([]*genai.FunctionDeclaration, 0, len(config.Tools))
		for _, tool := range config.Tools {
			declarations = append(declarations, &genai.FunctionDeclaration{
				Name:                 tool.Name,
				Description:          tool.Description,
				ParametersJsonSchema: tool.Parameters,
			})
		}
		live.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}
	}
	return live
}

// geminiLiveConnection adapts a genai.Session to LiveConnection
type geminiLiveConnection struct {
	session *genai.Session
	mu      sync.Mutex
	done    chan struct{}
	once    sync.Once
	handler repositories.LiveEventHandler
	logger  *zap.Logger
}

var _ repositories.LiveConnection = (*geminiLiveConnection)(nil)

func (c *geminiLiveConnection) SendMedia(chunk entities.MediaChunk) error {
	data, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		return fmt.Errorf("failed to decode media chunk: %w", err)
	}

	blob := &genai.Blob{MIMEType: chunk.MIMEType, Data: data}
	input := genai.LiveRealtimeInput{}
	if strings.HasPrefix(chunk.MIMEType, "audio/") {
		input.Audio = blob
	} else {
		input.Video = blob
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed() {
		return entities.ErrTransportClosed
	}
	if err := c.session.SendRealtimeInput(input); err != nil {
		return fmt.Errorf("failed to send realtime input: %w", err)
	}
	return nil
}

func (c *geminiLiveConnection) SendToolResponse(responses []entities.ToolResponse) error {
	functionResponses := make([]*genai.FunctionResponse, 0, len(responses))
	for _, r := range responses {
		functionResponses = append(functionResponses, &genai.FunctionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: r.Response,
		})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed() {
		return entities.ErrTransportClosed
	}
	if err := c.session.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: functionResponses}); err != nil {
		return fmt.Errorf("failed to send tool response: %w", err)
	}
	return nil
}

func (c *geminiLiveConnection) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		err = c.session.Close()
		c.mu.Unlock()
		c.logger.Info("Live session closed")
	})
	return err
}

func (c *geminiLiveConnection) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *geminiLiveConnection) receive() {
	for {
		msg, err := c.session.Receive()
		if err != nil {
			switch {
			case c.closed():
			case errors.Is(err, io.EOF) || strings.Contains(err.Error(), "close 1000"):
				c.logger.Info("Live endpoint closed the session", zap.Error(err))
				c.handler.OnClose()
			default:
				c.logger.Error("Live session receive failed", zap.Error(err))
				c.handler.OnError(fmt.Errorf("%w: %v", entities.ErrTransportClosed, err))
			}
			return
		}
		c.dispatch(msg)
	}
}

func (c *geminiLiveConnection) dispatch(msg *genai.LiveServerMessage) {
	if content := msg.ServerContent; content != nil {
		if content.Interrupted {
			c.handler.OnInterrupted()
		}
		if t := content.InputTranscription; t != nil {
			c.handler.OnTranscript(entities.RoleUser, t.Text, t.Finished)
		}
		if t := content.OutputTranscription; t != nil {
			c.handler.OnTranscript(entities.RoleModel, t.Text, t.Finished)
		}
		if content.ModelTurn != nil {
			for _, part := range content.ModelTurn.Parts {
				if part.InlineData == nil {
					continue
				}
				c.handler.OnAudio(entities.MediaChunk{
					MIMEType: part.InlineData.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(part.InlineData.Data),
				})
			}
		}
		if content.TurnComplete {
			c.handler.OnTurnComplete()
		}
	}

	if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
		calls := make([]entities.ToolCall, 0, len(msg.ToolCall.FunctionCalls))
		for _, call := range msg.ToolCall.FunctionCalls {
			calls = append(calls, entities.ToolCall{ID: call.ID, Name: call.Name, Args: call.Args})
		}
		c.handler.OnToolCall(calls)
	}

	if msg.GoAway != nil {
		c.logger.Warn("Live endpoint is going away")
	}
}
