package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/studylive/domain/entities"
	"github.com/satriahrh/studylive/domain/repositories"
)

const (
	// DefaultURL is the public BidiGenerateContent endpoint.
	DefaultURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	defaultSetupTimeout = 10 * time.Second

	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next message or pong from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Inbound audio turns can be large.
	maxMessageSize = 16 * 1024 * 1024

	sendQueueSize = 256
)

// Config holds configuration for the websocket live transport
type Config struct {
	URL          string
	APIKey       string
	SetupTimeout time.Duration
}

// ValidateConfig validates the transport configuration
func ValidateConfig(config Config) error {
	if config.APIKey == "" && config.URL == "" {
		return fmt.Errorf("API key is required for the default live endpoint")
	}
	if config.SetupTimeout < 0 {
		return fmt.Errorf("setup timeout must be positive, got %s", config.SetupTimeout)
	}
	return nil
}

// Transport dials BidiGenerateContent websocket connections
type Transport struct {
	config Config
	dialer *websocket.Dialer
	logger *zap.Logger
}

var _ repositories.LiveTransport = (*Transport)(nil)

// NewTransport creates a websocket live transport
func NewTransport(config Config, logger *zap.Logger) (*Transport, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}

	if config.URL == "" {
		config.URL = DefaultURL
		logger.Info("Using default live URL", zap.String("url", config.URL))
	}
	if config.SetupTimeout == 0 {
		config.SetupTimeout = defaultSetupTimeout
		logger.Info("Using default setup timeout", zap.Duration("setupTimeout", config.SetupTimeout))
	}

	return &Transport{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.SetupTimeout,
		},
		logger: logger,
	}, nil
}

// Open dials the endpoint, sends the setup message and waits for
// setupComplete. ctx bounds the handshake only.
func (t *Transport) Open(ctx context.Context, config repositories.LiveConfig, handler repositories.LiveEventHandler) (repositories.LiveConnection, error) {
	header := http.Header{}
	header.Set("x-goog-api-key", t.config.APIKey)

	conn, _, err := t.dialer.DialContext(ctx, t.config.URL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial live endpoint: %w", err)
	}

	if err := t.handshake(ctx, conn, config); err != nil {
		conn.Close()
		return nil, err
	}

	c := &connection{
		conn:    conn,
		send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
		handler: handler,
		logger:  t.logger.With(zap.String("model", config.Model)),
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.writePump()
	go c.readPump()

	c.logger.Info("Live connection open")
	return c, nil
}

func (t *Transport) handshake(ctx context.Context, conn *websocket.Conn, config repositories.LiveConfig) error {
	// Unblocks the setup read if ctx ends first.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	deadline := time.Now().Add(t.config.SetupTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(clientMessage{Setup: newSetup(config)}); err != nil {
		return fmt.Errorf("failed to send setup message: %w", err)
	}

	conn.SetReadDeadline(deadline)
	var response serverMessage
	if err := conn.ReadJSON(&response); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("failed to receive setup response: %w", ctx.Err())
		}
		return fmt.Errorf("failed to receive setup response: %w", err)
	}
	if response.SetupComplete == nil {
		return errors.New("invalid setup response: setupComplete not received")
	}

	conn.SetWriteDeadline(time.Time{})
	return nil
}

// connection is an open BidiGenerateContent stream. A single reader
// goroutine delivers inbound events; a single writer goroutine owns writes.
type connection struct {
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	handler repositories.LiveEventHandler
	logger  *zap.Logger
}

var _ repositories.LiveConnection = (*connection)(nil)

func (c *connection) SendMedia(chunk entities.MediaChunk) error {
	return c.write(clientMessage{RealtimeInput: &realtimeInput{MediaChunks: []entities.MediaChunk{chunk}}})
}

func (c *connection) SendToolResponse(responses []entities.ToolResponse) error {
	return c.write(clientMessage{ToolResponse: &toolResponse{FunctionResponses: responses}})
}

func (c *connection) write(message clientMessage) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	select {
	case <-c.done:
		return entities.ErrTransportClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return entities.ErrTransportClosed
	}
}

// Close sends a close frame and tears the socket down. It does not wait
// for the reader goroutine.
func (c *connection) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.conn.Close()
		c.logger.Info("Live connection closed")
	})
	return nil
}

func (c *connection) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *connection) readPump() {
	defer c.conn.Close()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			switch {
			case c.closed():
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				c.logger.Info("Live endpoint closed the connection", zap.Error(err))
				c.handler.OnClose()
			default:
				c.logger.Error("Live connection read failed", zap.Error(err))
				c.handler.OnError(fmt.Errorf("%w: %v", entities.ErrTransportClosed, err))
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.logger.Warn("Failed to parse server message", zap.Error(err))
			continue
		}
		c.dispatch(msg)
	}
}

func (c *connection) dispatch(msg serverMessage) {
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
			for _, p := range content.ModelTurn.Parts {
				if p.InlineData != nil {
					c.handler.OnAudio(*p.InlineData)
				}
			}
		}
		if content.TurnComplete {
			c.handler.OnTurnComplete()
		}
	}

	if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
		c.handler.OnToolCall(msg.ToolCall.FunctionCalls)
	}

	if msg.GoAway != nil {
		c.logger.Warn("Live endpoint is going away", zap.String("timeLeft", msg.GoAway.TimeLeft))
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				if !c.closed() {
					c.logger.Error("Failed to write message", zap.Error(err))
				}
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
