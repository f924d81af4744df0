package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/studylive/domain/entities"
	"github.com/satriahrh/studylive/domain/repositories"
	"github.com/satriahrh/studylive/internal/audio"
	"github.com/satriahrh/studylive/internal/capture"
	"github.com/satriahrh/studylive/internal/metrics"
	"github.com/satriahrh/studylive/internal/playback"
	"github.com/satriahrh/studylive/internal/saga"
	"github.com/satriahrh/studylive/internal/snapshot"
)

// Data keys for the connect saga
const (
	DataKeySessionID    = "session_id"
	DataKeySystemPrompt = "system_prompt"
)

// connectDefinition acquires a session's resources. Its steps are released
// in reverse order on failure and again on disconnect, which yields the
// teardown order transport, capture, playback, devices.
type connectDefinition struct {
	manager *LiveSessionManager
	session *liveSession
}

func (d *connectDefinition) ID() string {
	return "live_connect"
}

func (d *connectDefinition) Timeout() time.Duration {
	return 30 * time.Second
}

func (d *connectDefinition) Steps() []saga.Step {
	return []saga.Step{
		&outputStep{manager: d.manager, session: d.session},
		&captureStep{manager: d.manager, session: d.session},
		&transportStep{manager: d.manager, session: d.session},
		&snapshotStep{manager: d.manager, session: d.session},
	}
}

// outputStep opens the speaker and the playback scheduler
type outputStep struct {
	manager *LiveSessionManager
	session *liveSession
}

func (s *outputStep) ID() saga.StepID { return "output_device" }

func (s *outputStep) Execute(ctx context.Context, data saga.SagaData) error {
	device, err := s.manager.audio.OpenOutput(ctx, entities.PlaybackSampleRate)
	if err != nil {
		if entities.IsDeviceError(err) {
			return fmt.Errorf("failed to open output device: %w", err)
		}
		return fmt.Errorf("failed to open output device: %w: %v", entities.ErrDeviceUnavailable, err)
	}

	s.session.output = device
	s.session.scheduler = playback.NewScheduler(device, s.manager.logger)
	return nil
}

func (s *outputStep) Compensate(ctx context.Context, data saga.SagaData) error {
	s.session.scheduler.Close()
	if err := s.session.output.Close(); err != nil {
		return fmt.Errorf("failed to close output device: %w", err)
	}
	return nil
}

// captureStep opens the microphone with the push-to-talk gate closed
type captureStep struct {
	manager *LiveSessionManager
	session *liveSession
}

func (s *captureStep) ID() saga.StepID { return "capture_device" }

func (s *captureStep) Execute(ctx context.Context, data saga.SagaData) error {
	session := s.session
	pipeline := capture.NewPipeline(s.manager.audio.Input(), s.manager.config.Capture, s.manager.logger)
	pipeline.SetVolumeHandler(func(rms float64) {
		session.post(func() {
			s.manager.publish(session, entities.SessionEvent{
				Kind:   entities.EventVolume,
				Volume: &entities.VolumeEvent{Source: entities.VolumeInput, Level: rms},
			})
		})
	})

	onFrame := func(frame entities.AudioFrame) {
		chunk := audio.EncodeChunk(frame.Mono(), frame.SampleRate)
		if err := session.pending.SendMedia(chunk); err != nil {
			s.manager.logger.Debug("Dropped microphone frame", zap.Error(err))
			return
		}
		session.touch()
		metrics.AudioChunksSent.Inc()
	}

	if err := pipeline.Start(ctx, onFrame); err != nil {
		return err
	}
	session.capture = pipeline
	return nil
}

func (s *captureStep) Compensate(ctx context.Context, data saga.SagaData) error {
	s.session.capture.Stop()
	return nil
}

// transportStep opens the live connection and flushes queued sends
type transportStep struct {
	manager *LiveSessionManager
	session *liveSession
}

func (s *transportStep) ID() saga.StepID { return "live_transport" }

func (s *transportStep) Execute(ctx context.Context, data saga.SagaData) error {
	prompt, _ := data[DataKeySystemPrompt].(string)
	config := repositories.LiveConfig{
		Model:             s.manager.config.Model,
		SystemInstruction: prompt,
		Voice:             s.manager.config.Voice,
		Tools:             LiveToolDeclarations(),
	}

	started := time.Now()
	conn, err := s.manager.transport.Open(ctx, config, &sessionHandler{manager: s.manager, session: s.session})
	if err != nil {
		s.session.pending.Fail(err)
		if entities.IsTransportError(err) {
			return fmt.Errorf("failed to open live connection: %w", err)
		}
		return fmt.Errorf("failed to open live connection: %w: %v", entities.ErrTransportOpen, err)
	}
	metrics.ConnectDuration.Observe(time.Since(started).Seconds())

	return s.session.pending.Resolve(conn)
}

func (s *transportStep) Compensate(ctx context.Context, data saga.SagaData) error {
	if err := s.session.pending.Close(); err != nil {
		return fmt.Errorf("failed to close live connection: %w", err)
	}
	return nil
}

// snapshotStep starts periodic frame snapshots
type snapshotStep struct {
	manager *LiveSessionManager
	session *liveSession
}

func (s *snapshotStep) ID() saga.StepID { return "frame_snapshots" }

func (s *snapshotStep) Execute(ctx context.Context, data saga.SagaData) error {
	if s.manager.frames == nil {
		return nil
	}

	session := s.session
	session.snapshotter = snapshot.New(
		s.manager.frames,
		s.manager.View,
		session.pending.SendMedia,
		s.manager.config.Snapshot,
		s.manager.logger,
	)
	session.snapshotter.Start(session.ctx)
	return nil
}

func (s *snapshotStep) Compensate(ctx context.Context, data saga.SagaData) error {
	if s.session.snapshotter != nil {
		s.session.snapshotter.Stop()
	}
	return nil
}
