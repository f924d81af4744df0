package usecase

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/studylive/domain/entities"
	"github.com/satriahrh/studylive/domain/repositories"
)

type pendingState int

const (
	pendingOpening pendingState = iota
	pendingOpen
	pendingFailed
	pendingClosed
)

// outbound is one queued send
type outbound struct {
	media *entities.MediaChunk
	tools []entities.ToolResponse
}

// PendingConnection stands in for a live connection whose handshake may not
// have completed yet. Every sender goes through it, so sends issued before
// the handshake are queued and flushed in order once the connection
// resolves.
type PendingConnection struct {
	logger *zap.Logger

	mu    sync.Mutex
	state pendingState
	queue []outbound
	conn  repositories.LiveConnection
}

var _ repositories.LiveConnection = (*PendingConnection)(nil)

// NewPendingConnection creates a connection handle in the opening state
func NewPendingConnection(logger *zap.Logger) *PendingConnection {
	return &PendingConnection{logger: logger}
}

// SendMedia queues or sends a media chunk
func (p *PendingConnection) SendMedia(chunk entities.MediaChunk) error {
	return p.send(outbound{media: &chunk})
}

// SendToolResponse queues or sends tool responses
func (p *PendingConnection) SendToolResponse(responses []entities.ToolResponse) error {
	return p.send(outbound{tools: responses})
}

func (p *PendingConnection) send(msg outbound) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case pendingOpening:
		p.queue = append(p.queue, msg)
		return nil
	case pendingOpen:
		return p.dispatch(msg)
	default:
		return entities.ErrTransportClosed
	}
}

// dispatch must be called with mu held so sends reach the wire in order
func (p *PendingConnection) dispatch(msg outbound) error {
	if msg.media != nil {
		return p.conn.SendMedia(*msg.media)
	}
	return p.conn.SendToolResponse(msg.tools)
}

// Resolve attaches the opened connection and flushes the queue in order
func (p *PendingConnection) Resolve(conn repositories.LiveConnection) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != pendingOpening {
		return fmt.Errorf("pending connection already resolved")
	}

	p.conn = conn
	p.state = pendingOpen

	queued := p.queue
	p.queue = nil
	for _, msg := range queued {
		if err := p.dispatch(msg); err != nil {
			p.logger.Warn("Failed to flush queued send", zap.Error(err))
		}
	}

	if len(queued) > 0 {
		p.logger.Debug("Flushed queued sends", zap.Int("count", len(queued)))
	}
	return nil
}

// Fail discards every queued send after the handshake failed
func (p *PendingConnection) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != pendingOpening {
		return
	}
	p.state = pendingFailed

	if len(p.queue) > 0 {
		p.logger.Info("Discarding queued sends after failed connect",
			zap.Int("count", len(p.queue)),
			zap.Error(err))
	}
	p.queue = nil
}

// Close closes the underlying connection if one was attached. Further sends
// fail with ErrTransportClosed.
func (p *PendingConnection) Close() error {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.state = pendingClosed
	p.queue = nil
	p.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Queued returns the number of sends waiting for the handshake
func (p *PendingConnection) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}
