package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/satriahrh/studylive/domain/entities"
	"github.com/satriahrh/studylive/domain/repositories"
)

// fakeConn records everything sent on a live connection
type fakeConn struct {
	mu     sync.Mutex
	media  []entities.MediaChunk
	tools  [][]entities.ToolResponse
	order  []string
	closes int
}

func (c *fakeConn) SendMedia(chunk entities.MediaChunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.media = append(c.media, chunk)
	c.order = append(c.order, "media:"+chunk.Data)
	return nil
}

func (c *fakeConn) SendToolResponse(responses []entities.ToolResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = append(c.tools, responses)
	c.order = append(c.order, "tools")
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *fakeConn) toolResponses() [][]entities.ToolResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]entities.ToolResponse(nil), c.tools...)
}

func (c *fakeConn) mediaChunks() []entities.MediaChunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]entities.MediaChunk(nil), c.media...)
}

// fakeTransport hands out a fakeConn or fails. When block is set, Open
// reports on opening and then waits for block to close, ignoring ctx like a
// handshake stuck in a slow network call.
type fakeTransport struct {
	mu      sync.Mutex
	err     error
	conn    *fakeConn
	handler repositories.LiveEventHandler
	config  repositories.LiveConfig
	opens   int
	block   chan struct{}
	opening chan struct{}
}

func (t *fakeTransport) Open(ctx context.Context, config repositories.LiveConfig, handler repositories.LiveEventHandler) (repositories.LiveConnection, error) {
	t.mu.Lock()
	block, opening := t.block, t.opening
	t.mu.Unlock()
	if block != nil {
		if opening != nil {
			opening <- struct{}{}
		}
		<-block
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.opens++
	t.config = config
	if t.err != nil {
		return nil, t.err
	}
	t.conn = &fakeConn{}
	t.handler = handler
	return t.conn, nil
}

func (t *fakeTransport) current() (*fakeConn, repositories.LiveEventHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn, t.handler
}

// fakeOutputDevice is a wall-clock output that never plays anything
type fakeOutputDevice struct {
	mu      sync.Mutex
	start   time.Time
	next    repositories.SegmentHandle
	stopped int
	closed  bool
}

func (d *fakeOutputDevice) Now() time.Duration { return time.Since(d.start) }

func (d *fakeOutputDevice) Schedule(samples []float32, at time.Duration, ended func(repositories.SegmentHandle)) (repositories.SegmentHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	return d.next, nil
}

func (d *fakeOutputDevice) Stop(handle repositories.SegmentHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped++
}

func (d *fakeOutputDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeOutputDevice) state() (stopped int, closed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped, d.closed
}

type fakeInputStream struct {
	frames chan float32
	closed chan struct{}
	once   sync.Once
}

func (s *fakeInputStream) Read(buf []float32) error {
	select {
	case v := <-s.frames:
		for i := range buf {
			buf[i] = v
		}
		return nil
	case <-s.closed:
		return errors.New("stream closed")
	}
}

func (s *fakeInputStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeInputStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeInputDevice struct {
	sys *fakeAudioSystem
}

func (d *fakeInputDevice) Open(ctx context.Context, config repositories.InputConfig) (repositories.InputStream, error) {
	d.sys.mu.Lock()
	defer d.sys.mu.Unlock()
	if d.sys.inputErr != nil {
		return nil, d.sys.inputErr
	}
	d.sys.input = &fakeInputStream{frames: make(chan float32), closed: make(chan struct{})}
	return d.sys.input, nil
}

// fakeAudioSystem tracks the devices a session acquires
type fakeAudioSystem struct {
	mu        sync.Mutex
	outputErr error
	inputErr  error
	output    *fakeOutputDevice
	input     *fakeInputStream
}

func (a *fakeAudioSystem) OpenOutput(ctx context.Context, sampleRate int) (repositories.OutputDevice, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.outputErr != nil {
		return nil, a.outputErr
	}
	a.output = &fakeOutputDevice{start: time.Now()}
	return a.output, nil
}

func (a *fakeAudioSystem) Input() repositories.InputDevice {
	return &fakeInputDevice{sys: a}
}

func (a *fakeAudioSystem) devices() (*fakeOutputDevice, *fakeInputStream) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.output, a.input
}

// fakeSink collects published events
type fakeSink struct {
	mu     sync.Mutex
	events []entities.SessionEvent
}

func (s *fakeSink) Publish(event entities.SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *fakeSink) ofKind(kind entities.SessionEventKind) []entities.SessionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entities.SessionEvent
	for _, e := range s.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out: %s", msg)
}
