package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/studylive/domain/entities"
	"github.com/satriahrh/studylive/domain/repositories"
	"github.com/satriahrh/studylive/internal/audio"
	"github.com/satriahrh/studylive/internal/capture"
	"github.com/satriahrh/studylive/internal/contexttier"
	"github.com/satriahrh/studylive/internal/metrics"
	"github.com/satriahrh/studylive/internal/playback"
	"github.com/satriahrh/studylive/internal/saga"
	"github.com/satriahrh/studylive/internal/snapshot"
	"github.com/satriahrh/studylive/internal/transcript"
)

const (
	defaultLiveModel = "gemini-2.0-flash-live-001"
	defaultLiveVoice = "Puck"
	eventQueueSize   = 256
)

// LiveSessionConfig holds configuration for the live session manager
type LiveSessionConfig struct {
	Model    string
	Voice    string
	Capture  capture.Config
	Snapshot snapshot.Config
}

// EventSink receives events for the UI layer
type EventSink interface {
	Publish(event entities.SessionEvent)
}

// LiveSessionManager owns at most one live session at a time
type LiveSessionManager struct {
	transport repositories.LiveTransport
	audio     repositories.AudioSystem
	frames    repositories.FrameSource
	tiers     *contexttier.Policy
	sink      EventSink
	sagas     *saga.Manager
	config    LiveSessionConfig
	logger    *zap.Logger

	mu      sync.Mutex
	session *liveSession

	viewMu sync.RWMutex
	view   entities.ViewState
	script []entities.ScriptLine
}

// NewLiveSessionManager creates a session manager. frames may be nil to
// disable periodic snapshots.
func NewLiveSessionManager(
	transport repositories.LiveTransport,
	audioSystem repositories.AudioSystem,
	frames repositories.FrameSource,
	tiers *contexttier.Policy,
	sink EventSink,
	config LiveSessionConfig,
	logger *zap.Logger,
) *LiveSessionManager {
	if config.Model == "" {
		config.Model = defaultLiveModel
		logger.Info("Using default live model", zap.String("model", config.Model))
	}
	if config.Voice == "" {
		config.Voice = defaultLiveVoice
		logger.Info("Using default voice", zap.String("voice", config.Voice))
	}
	if config.Snapshot == (snapshot.Config{}) {
		config.Snapshot = snapshot.DefaultConfig()
	}

	return &LiveSessionManager{
		transport: transport,
		audio:     audioSystem,
		frames:    frames,
		tiers:     tiers,
		sink:      sink,
		sagas:     saga.NewManager(logger),
		config:    config,
		logger:    logger,
	}
}

// liveSession is the state owned by one connection. Reconciler and
// playback state are only touched from the event loop goroutine.
type liveSession struct {
	entity *entities.Session

	ctx    context.Context
	cancel context.CancelFunc
	events chan func()
	quit   chan struct{}
	once   sync.Once

	pending     *PendingConnection
	output      repositories.OutputDevice
	scheduler   *playback.Scheduler
	capture     *capture.Pipeline
	snapshotter *snapshot.Snapshotter
	reconciler  *transcript.Reconciler

	mu       sync.Mutex
	instance *saga.Instance
}

func newLiveSession(systemPrompt string, logger *zap.Logger) *liveSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &liveSession{
		entity:     entities.NewSession(systemPrompt),
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan func(), eventQueueSize),
		quit:       make(chan struct{}),
		pending:    NewPendingConnection(logger),
		reconciler: transcript.NewReconciler(),
	}
	go s.loop()
	return s
}

// loop runs posted handlers one at a time in the order they were posted
func (s *liveSession) loop() {
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-s.quit:
			return
		}
	}
}

// post schedules fn on the event loop. It gives up once the session ends.
func (s *liveSession) post(fn func()) {
	select {
	case s.events <- fn:
	case <-s.quit:
	}
}

func (s *liveSession) stop() {
	s.once.Do(func() {
		s.cancel()
		close(s.quit)
	})
}

func (s *liveSession) touch() {
	s.mu.Lock()
	s.entity.Touch()
	s.mu.Unlock()
}

func (s *liveSession) current() entities.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.entity
}

// attach records the acquired resources. It fails if the session ended
// while Connect was still running.
func (s *liveSession) attach(instance *saga.Instance) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.entity.IsActive() {
		return false
	}
	s.instance = instance
	s.entity.State = entities.ConnectionStateOpen
	s.entity.Touch()
	return true
}

// Connect opens a live session. It fails with ErrSessionActive while another
// session is connecting or open.
func (m *LiveSessionManager) Connect(ctx context.Context, systemPrompt string) (entities.Session, error) {
	m.mu.Lock()
	if m.session != nil {
		m.mu.Unlock()
		return entities.Session{}, entities.ErrSessionActive
	}
	s := newLiveSession(systemPrompt, m.logger)
	m.session = s
	m.mu.Unlock()

	logger := m.logger.With(zap.String("sessionID", s.entity.ID))
	logger.Info("Connecting live session", zap.String("model", m.config.Model))
	m.publishState(s, entities.ConnectionStateConnecting, "")

	// The session context outlives the request; a client disconnect during
	// the handshake is honored through Disconnect instead.
	connectCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stopOnCaller := context.AfterFunc(ctx, cancel)
	defer stopOnCaller()

	data := saga.SagaData{
		DataKeySessionID:    s.entity.ID,
		DataKeySystemPrompt: systemPrompt,
	}

	instance, err := m.sagas.Run(connectCtx, &connectDefinition{manager: m, session: s}, data)
	if err != nil {
		logger.Error("Failed to connect live session", zap.Error(err))
		metrics.Errors.WithLabelValues("connect", errorKind(err)).Inc()
		m.endSession(s, entities.ConnectionStateErrored, err.Error())
		// Run has compensated every step, so the devices are free again.
		m.vacate(s)
		return entities.Session{}, err
	}

	if !s.attach(instance) {
		if err := m.sagas.Release(context.Background(), instance); err != nil {
			logger.Error("Failed to release session resources", zap.Error(err))
		}
		m.vacate(s)
		logger.Info("Session ended while connecting")
		return entities.Session{}, fmt.Errorf("failed to connect live session: %w", entities.ErrTransportClosed)
	}

	metrics.SessionsActive.Inc()
	m.publishState(s, entities.ConnectionStateOpen, "")
	logger.Info("Live session open")
	return s.current(), nil
}

// Disconnect closes the active session. It is a no-op without one.
func (m *LiveSessionManager) Disconnect() error {
	return m.DisconnectWithReason("client disconnect")
}

// DisconnectWithReason closes the active session recording why
func (m *LiveSessionManager) DisconnectWithReason(reason string) error {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()

	if s == nil {
		return nil
	}
	m.endSession(s, entities.ConnectionStateClosed, reason)
	return nil
}

// endSession ends s exactly once. The manager keeps s registered until its
// devices are released so that a new Connect cannot race the old session for
// them. An open session is released here in the order transport, capture,
// playback, devices. A session still connecting is only canceled: Connect
// owns its resources until the saga has unwound and vacates the slot itself.
func (m *LiveSessionManager) endSession(s *liveSession, state entities.ConnectionState, reason string) {
	s.mu.Lock()
	wasOpen := s.entity.State == entities.ConnectionStateOpen
	ended := s.entity.End(state, reason)
	instance := s.instance
	s.mu.Unlock()

	if !ended {
		return
	}

	s.stop()
	if instance != nil {
		if err := m.sagas.Release(context.Background(), instance); err != nil {
			m.logger.Error("Failed to release session resources", zap.Error(err))
		}
		m.vacate(s)
	}

	if wasOpen {
		metrics.SessionsActive.Dec()
	}
	metrics.SessionsTotal.WithLabelValues(string(state)).Inc()

	m.logger.Info("Live session ended",
		zap.String("sessionID", s.entity.ID),
		zap.String("state", string(state)),
		zap.String("reason", reason))
	m.publishState(s, state, reason)
}

// vacate frees the session slot if s still holds it
func (m *LiveSessionManager) vacate(s *liveSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == s {
		m.session = nil
	}
}

// StartInputAudio opens the push-to-talk gate
func (m *LiveSessionManager) StartInputAudio() error {
	return m.setInputEnabled(true)
}

// StopInputAudio closes the push-to-talk gate
func (m *LiveSessionManager) StopInputAudio() error {
	return m.setInputEnabled(false)
}

func (m *LiveSessionManager) setInputEnabled(enabled bool) error {
	s, err := m.openSession()
	if err != nil {
		return err
	}
	s.capture.SetInputEnabled(enabled)
	s.touch()
	m.logger.Debug("Push-to-talk toggled", zap.Bool("enabled", enabled))
	return nil
}

// SendImage sends a JPEG still to the live model
func (m *LiveSessionManager) SendImage(jpeg []byte) error {
	if len(jpeg) == 0 {
		return fmt.Errorf("image is empty")
	}
	s, err := m.openSession()
	if err != nil {
		return err
	}

	chunk := entities.MediaChunk{MIMEType: entities.MIMETypeJPEG, Data: base64.StdEncoding.EncodeToString(jpeg)}
	if err := s.pending.SendMedia(chunk); err != nil {
		return fmt.Errorf("failed to send image: %w", err)
	}
	s.touch()
	return nil
}

func (m *LiveSessionManager) openSession() (*liveSession, error) {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()

	if s == nil {
		return nil, entities.ErrNoSession
	}
	s.mu.Lock()
	open := s.entity.State == entities.ConnectionStateOpen
	s.mu.Unlock()
	if !open {
		return nil, entities.ErrNoSession
	}
	return s, nil
}

// Active returns a copy of the current session
func (m *LiveSessionManager) Active() (entities.Session, bool) {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()

	if s == nil {
		return entities.Session{}, false
	}
	return s.current(), true
}

// UpdateView records what the player currently shows
func (m *LiveSessionManager) UpdateView(view entities.ViewState) {
	m.viewMu.Lock()
	defer m.viewMu.Unlock()
	m.view = view
}

// View returns the last recorded player view
func (m *LiveSessionManager) View() entities.ViewState {
	m.viewMu.RLock()
	defer m.viewMu.RUnlock()
	return m.view
}

// CaptureFrame renders the frame the player currently shows as a JPEG,
// with the user's outline drawn on it.
func (m *LiveSessionManager) CaptureFrame(ctx context.Context) ([]byte, error) {
	if m.frames == nil {
		return nil, entities.ErrNoFrame
	}

	view := m.View()
	frame, err := m.frames.Frame(ctx, view.VideoPath, view.Position)
	if err != nil {
		return nil, err
	}
	return snapshot.Render(frame, view, m.config.Snapshot)
}

// SetScript replaces the script of the loaded video
func (m *LiveSessionManager) SetScript(lines []entities.ScriptLine) {
	m.viewMu.Lock()
	defer m.viewMu.Unlock()
	m.script = append([]entities.ScriptLine(nil), lines...)
}

// Script returns the script of the loaded video
func (m *LiveSessionManager) Script() []entities.ScriptLine {
	m.viewMu.RLock()
	defer m.viewMu.RUnlock()
	return m.script
}

func (m *LiveSessionManager) publish(s *liveSession, event entities.SessionEvent) {
	if m.sink == nil {
		return
	}
	event.SessionID = s.entity.ID
	event.Timestamp = time.Now()
	m.sink.Publish(event)
}

func (m *LiveSessionManager) publishState(s *liveSession, state entities.ConnectionState, reason string) {
	m.publish(s, entities.SessionEvent{
		Kind:  entities.EventState,
		State: &entities.StateEvent{State: state, Reason: reason},
	})
}

func (m *LiveSessionManager) publishTranscript(s *liveSession, event transcript.Event) {
	m.publish(s, entities.SessionEvent{
		Kind: entities.EventTranscript,
		Transcript: &entities.TranscriptEvent{
			IsUser:         event.Turn.Role == entities.RoleUser,
			MessageID:      event.Turn.ID,
			TextFragment:   event.Fragment,
			Text:           event.Turn.Text,
			IsTurnComplete: event.Kind == transcript.TurnFinalized,
		},
	})
}

func errorKind(err error) string {
	switch {
	case entities.IsDeviceError(err):
		return "device"
	case entities.IsTransportError(err):
		return "transport"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}

// sessionHandler forwards transport callbacks onto the session event loop
type sessionHandler struct {
	manager *LiveSessionManager
	session *liveSession
}

var _ repositories.LiveEventHandler = (*sessionHandler)(nil)

func (h *sessionHandler) OnAudio(chunk entities.MediaChunk) {
	h.session.post(func() {
		h.session.touch()
		metrics.AudioChunksReceived.Inc()

		frame, err := audio.DecodeChunk(chunk, 1, entities.PlaybackSampleRate)
		if err != nil {
			h.manager.logger.Warn("Failed to decode model audio", zap.Error(err))
			return
		}
		if _, err := h.session.scheduler.Enqueue(frame); err != nil {
			h.manager.logger.Debug("Failed to schedule model audio", zap.Error(err))
			return
		}
		h.manager.publish(h.session, entities.SessionEvent{
			Kind:   entities.EventVolume,
			Volume: &entities.VolumeEvent{Source: entities.VolumeOutput, Level: audio.RMS(frame.Mono(), 4)},
		})
	})
}

func (h *sessionHandler) OnTranscript(role entities.Role, text string, finished bool) {
	h.session.post(func() {
		h.session.touch()
		if event, ok := h.session.reconciler.Apply(role, text); ok {
			h.manager.publishTranscript(h.session, event)
		}
	})
}

func (h *sessionHandler) OnTurnComplete() {
	h.session.post(func() {
		for _, event := range h.session.reconciler.Complete() {
			h.manager.publishTranscript(h.session, event)
		}
	})
}

func (h *sessionHandler) OnToolCall(calls []entities.ToolCall) {
	h.session.post(func() {
		h.session.touch()
		responses := make([]entities.ToolResponse, 0, len(calls))
		for _, call := range calls {
			responses = append(responses, h.manager.handleToolCall(h.session, call))
		}
		if err := h.session.pending.SendToolResponse(responses); err != nil {
			h.manager.logger.Warn("Failed to send tool response", zap.Error(err))
		}
	})
}

func (h *sessionHandler) OnInterrupted() {
	h.session.post(func() {
		h.manager.logger.Debug("Model output interrupted")
		h.session.scheduler.Interrupt()
	})
}

func (h *sessionHandler) OnError(err error) {
	h.session.post(func() {
		h.manager.logger.Error("Live connection error", zap.Error(err))
		metrics.Errors.WithLabelValues("transport", "receive").Inc()
		h.manager.endSession(h.session, entities.ConnectionStateErrored, err.Error())
	})
}

func (h *sessionHandler) OnClose() {
	h.session.post(func() {
		h.manager.endSession(h.session, entities.ConnectionStateClosed, "remote closed")
	})
}
