package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/studylive/domain/entities"
	"github.com/satriahrh/studylive/internal/audio"
	"github.com/satriahrh/studylive/internal/capture"
	"github.com/satriahrh/studylive/internal/contexttier"
)

type liveFixture struct {
	manager   *LiveSessionManager
	transport *fakeTransport
	audio     *fakeAudioSystem
	sink      *fakeSink
}

func newLiveFixture(t *testing.T) *liveFixture {
	t.Helper()

	tiers, err := contexttier.NewPolicy(contexttier.DefaultConfig())
	if err != nil {
		t.Fatalf("NewPolicy failed: %v", err)
	}

	f := &liveFixture{
		transport: &fakeTransport{},
		audio:     &fakeAudioSystem{},
		sink:      &fakeSink{},
	}
	f.manager = NewLiveSessionManager(
		f.transport,
		f.audio,
		nil,
		tiers,
		f.sink,
		LiveSessionConfig{Capture: capture.Config{FramesPerBuffer: 16}},
		zaptest.NewLogger(t),
	)
	return f
}

func (f *liveFixture) connect(t *testing.T) {
	t.Helper()
	if _, err := f.manager.Connect(context.Background(), "You are a tutor."); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { f.manager.Disconnect() })
}

func TestConnectOpensSession(t *testing.T) {
	f := newLiveFixture(t)

	session, err := f.manager.Connect(context.Background(), "You are a tutor.")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer f.manager.Disconnect()

	if session.State != entities.ConnectionStateOpen {
		t.Errorf("Expected open state, got %s", session.State)
	}
	if f.transport.config.SystemInstruction != "You are a tutor." {
		t.Errorf("System prompt not forwarded: %q", f.transport.config.SystemInstruction)
	}
	if len(f.transport.config.Tools) != 2 {
		t.Errorf("Expected 2 tool declarations, got %d", len(f.transport.config.Tools))
	}

	states := f.sink.ofKind(entities.EventState)
	if len(states) != 2 || states[1].State.State != entities.ConnectionStateOpen {
		t.Errorf("Expected connecting then open, got %+v", states)
	}
}

func TestConnectRejectsSecondSession(t *testing.T) {
	f := newLiveFixture(t)
	f.connect(t)

	if _, err := f.manager.Connect(context.Background(), "again"); !errors.Is(err, entities.ErrSessionActive) {
		t.Fatalf("Expected ErrSessionActive, got %v", err)
	}
	if f.transport.opens != 1 {
		t.Errorf("Second connect must not open a transport, opens=%d", f.transport.opens)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	f := newLiveFixture(t)

	if err := f.manager.Disconnect(); err != nil {
		t.Fatalf("Disconnect without session failed: %v", err)
	}

	f.connect(t)
	conn, _ := f.transport.current()

	f.manager.Disconnect()
	f.manager.Disconnect()

	if conn.closeCount() != 1 {
		t.Errorf("Expected transport closed once, got %d", conn.closeCount())
	}
	output, input := f.audio.devices()
	if _, closed := output.state(); !closed {
		t.Error("Output device not released")
	}
	if !input.isClosed() {
		t.Error("Microphone not released")
	}
	if _, ok := f.manager.Active(); ok {
		t.Error("No session should be active")
	}

	closed := 0
	for _, e := range f.sink.ofKind(entities.EventState) {
		if e.State.State == entities.ConnectionStateClosed {
			closed++
		}
	}
	if closed != 1 {
		t.Errorf("Expected one closed event, got %d", closed)
	}

	// A fresh session can be opened afterwards.
	if _, err := f.manager.Connect(context.Background(), "again"); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
}

func TestDisconnectWhileConnectingHoldsSlotUntilReleased(t *testing.T) {
	f := newLiveFixture(t)
	f.transport.block = make(chan struct{})
	f.transport.opening = make(chan struct{}, 1)

	connectErr := make(chan error, 1)
	go func() {
		_, err := f.manager.Connect(context.Background(), "first")
		connectErr <- err
	}()

	select {
	case <-f.transport.opening:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the handshake to start")
	}

	if err := f.manager.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	_, input := f.audio.devices()
	if input == nil || input.isClosed() {
		t.Fatal("Microphone should still be held by the unfinished handshake")
	}
	if _, err := f.manager.Connect(context.Background(), "second"); !errors.Is(err, entities.ErrSessionActive) {
		t.Fatalf("Expected ErrSessionActive while the first session unwinds, got %v", err)
	}

	close(f.transport.block)

	select {
	case err := <-connectErr:
		if err == nil {
			t.Fatal("Expected the disconnected Connect to fail")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the first Connect to return")
	}

	if !input.isClosed() {
		t.Error("Microphone not released after the first Connect returned")
	}
	if _, ok := f.manager.Active(); ok {
		t.Error("Slot should be free once the first session is released")
	}

	f.transport.mu.Lock()
	f.transport.block = nil
	f.transport.mu.Unlock()
	f.connect(t)
}

func TestConnectFailureReleasesDevices(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(f *liveFixture)
		wantDevice    bool
		wantTransport bool
	}{
		{
			name:          "transport refused",
			setup:         func(f *liveFixture) { f.transport.err = errors.New("dial tcp: connection refused") },
			wantTransport: true,
		},
		{
			name:       "microphone permission denied",
			setup:      func(f *liveFixture) { f.audio.inputErr = entities.ErrDevicePermission },
			wantDevice: true,
		},
		{
			name:       "no output device",
			setup:      func(f *liveFixture) { f.audio.outputErr = errors.New("no default output") },
			wantDevice: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newLiveFixture(t)
			tt.setup(f)

			_, err := f.manager.Connect(context.Background(), "prompt")
			if err == nil {
				t.Fatal("Expected connect to fail")
			}
			if entities.IsDeviceError(err) != tt.wantDevice {
				t.Errorf("IsDeviceError = %v for %v", entities.IsDeviceError(err), err)
			}
			if entities.IsTransportError(err) != tt.wantTransport {
				t.Errorf("IsTransportError = %v for %v", entities.IsTransportError(err), err)
			}

			output, input := f.audio.devices()
			if output != nil {
				if _, closed := output.state(); !closed {
					t.Error("Output device leaked")
				}
			}
			if input != nil && !input.isClosed() {
				t.Error("Microphone leaked")
			}
			if _, ok := f.manager.Active(); ok {
				t.Error("Failed connect must not leave an active session")
			}
		})
	}
}

func TestTranscriptReconciliation(t *testing.T) {
	f := newLiveFixture(t)
	f.connect(t)
	_, handler := f.transport.current()

	handler.OnTranscript(entities.RoleUser, "H", false)
	handler.OnTranscript(entities.RoleUser, "He", false)
	handler.OnTranscript(entities.RoleUser, "Hello", false)
	handler.OnTranscript(entities.RoleModel, "Hel", false)
	handler.OnTranscript(entities.RoleModel, "lo wor", false)
	handler.OnTranscript(entities.RoleModel, "ld", false)
	handler.OnTurnComplete()
	handler.OnTranscript(entities.RoleUser, "Next", false)

	eventually(t, func() bool { return len(f.sink.ofKind(entities.EventTranscript)) == 9 }, "transcript events")

	events := f.sink.ofKind(entities.EventTranscript)
	user, model := events[6].Transcript, events[7].Transcript
	if !user.IsUser || !user.IsTurnComplete || user.Text != "Hello" {
		t.Errorf("Unexpected finalized user turn %+v", user)
	}
	if model.IsUser || !model.IsTurnComplete || model.Text != "Hello world" {
		t.Errorf("Unexpected finalized model turn %+v", model)
	}

	next := events[8].Transcript
	if next.MessageID == user.MessageID || next.IsTurnComplete || next.Text != "Next" {
		t.Errorf("Expected a new user turn after completion, got %+v", next)
	}
}

func TestInterruptFlushesPlayback(t *testing.T) {
	f := newLiveFixture(t)
	f.connect(t)
	_, handler := f.transport.current()

	chunk := audio.EncodeChunk(make([]float32, 2400), entities.PlaybackSampleRate)
	handler.OnAudio(chunk)
	handler.OnAudio(chunk)
	handler.OnInterrupted()

	output, _ := f.audio.devices()
	eventually(t, func() bool {
		stopped, _ := output.state()
		return stopped == 2
	}, "both segments stopped")

	if len(f.sink.ofKind(entities.EventVolume)) < 2 {
		t.Error("Expected output volume events")
	}
}

func TestToolCalls(t *testing.T) {
	f := newLiveFixture(t)
	f.manager.SetScript([]entities.ScriptLine{
		{Start: 0, End: 10 * time.Second, Text: "Welcome"},
		{Start: 10 * time.Second, End: 20 * time.Second, Text: "Entropy measures disorder"},
	})
	f.manager.UpdateView(entities.ViewState{Position: 12 * time.Second})
	f.connect(t)
	conn, handler := f.transport.current()

	handler.OnToolCall([]entities.ToolCall{
		{ID: "1", Name: ToolGetVideoContext, Args: map[string]interface{}{"tier": "S"}},
		{ID: "2", Name: ToolGetVideoContext, Args: map[string]interface{}{"tier": 42.0}},
		{ID: "3", Name: ToolSeekVideo, Args: map[string]interface{}{"seconds": 30.0}},
		{ID: "4", Name: ToolSeekVideo, Args: map[string]interface{}{"seconds": "soon"}},
		{ID: "5", Name: "open_browser"},
	})

	eventually(t, func() bool { return len(conn.toolResponses()) == 1 }, "tool responses")

	responses := conn.toolResponses()[0]
	if len(responses) != 5 {
		t.Fatalf("Expected 5 responses, got %d", len(responses))
	}
	for i, r := range responses {
		if r.ID == "" || r.Name == "" {
			t.Errorf("Response %d missing id or name: %+v", i, r)
		}
	}

	text, _ := responses[0].Response["result"].(string)
	if !strings.Contains(text, "Entropy measures disorder") {
		t.Errorf("Expected script context, got %q", text)
	}
	for _, i := range []int{1, 2, 3, 4} {
		if responses[i].Response["result"] != "ok" {
			t.Errorf("Expected neutral ack for call %s, got %+v", responses[i].ID, responses[i].Response)
		}
	}

	tools := f.sink.ofKind(entities.EventTool)
	if len(tools) != 1 || tools[0].Tool.Args["seconds"] != 30.0 {
		t.Errorf("Expected one seek event, got %+v", tools)
	}
}

func TestPushToTalk(t *testing.T) {
	f := newLiveFixture(t)

	if err := f.manager.StartInputAudio(); !errors.Is(err, entities.ErrNoSession) {
		t.Fatalf("Expected ErrNoSession, got %v", err)
	}

	f.connect(t)
	conn, _ := f.transport.current()
	_, input := f.audio.devices()

	// Gate closed: captured audio is not transmitted.
	input.frames <- 0.1
	if err := f.manager.StartInputAudio(); err != nil {
		t.Fatalf("StartInputAudio failed: %v", err)
	}
	input.frames <- 0.2

	eventually(t, func() bool {
		for _, c := range conn.mediaChunks() {
			if c.MIMEType == "audio/pcm;rate=16000" {
				return true
			}
		}
		return false
	}, "microphone chunk transmitted")

	if err := f.manager.StopInputAudio(); err != nil {
		t.Fatalf("StopInputAudio failed: %v", err)
	}
}

func TestSendImage(t *testing.T) {
	f := newLiveFixture(t)

	if err := f.manager.SendImage([]byte{0xff, 0xd8}); !errors.Is(err, entities.ErrNoSession) {
		t.Fatalf("Expected ErrNoSession, got %v", err)
	}

	f.connect(t)
	conn, _ := f.transport.current()

	if err := f.manager.SendImage([]byte{0xff, 0xd8}); err != nil {
		t.Fatalf("SendImage failed: %v", err)
	}
	chunks := conn.mediaChunks()
	if len(chunks) != 1 || chunks[0].MIMEType != entities.MIMETypeJPEG {
		t.Errorf("Expected one jpeg chunk, got %+v", chunks)
	}
}

func TestRemoteErrorEndsSession(t *testing.T) {
	f := newLiveFixture(t)
	f.connect(t)
	conn, handler := f.transport.current()

	handler.OnError(errors.New("websocket: close 1011"))
	handler.OnClose()

	eventually(t, func() bool {
		_, ok := f.manager.Active()
		return !ok
	}, "session torn down")

	if conn.closeCount() != 1 {
		t.Errorf("Expected transport closed once, got %d", conn.closeCount())
	}

	var errored bool
	for _, e := range f.sink.ofKind(entities.EventState) {
		if e.State.State == entities.ConnectionStateErrored {
			errored = true
		}
	}
	if !errored {
		t.Error("Expected errored state event")
	}
}

func TestIdleFor(t *testing.T) {
	f := newLiveFixture(t)
	if _, ok := f.manager.IdleFor(); ok {
		t.Error("No session should report no idle time")
	}

	f.connect(t)
	idle, ok := f.manager.IdleFor()
	if !ok || idle > time.Second {
		t.Errorf("Expected a fresh session, got idle=%v ok=%v", idle, ok)
	}
}
