// Package capture reads microphone frames and gates them behind push-to-talk.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/satriahrh/studylive/domain/entities"
	"github.com/satriahrh/studylive/domain/repositories"
	"github.com/satriahrh/studylive/internal/audio"
)

// Config represents capture pipeline configuration
type Config struct {
	SampleRate       int
	FramesPerBuffer  int
	RMSStride        int
	EchoCancellation bool
	NoiseSuppression bool
}

// DefaultConfig returns the 16 kHz mono configuration the live endpoint expects
func DefaultConfig() Config {
	return Config{
		SampleRate:       entities.CaptureSampleRate,
		FramesPerBuffer:  entities.CaptureBufferSize,
		RMSStride:        4,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

// FrameHandler receives gated microphone frames
type FrameHandler func(frame entities.AudioFrame)

// VolumeHandler receives the loudness estimate of every captured frame
type VolumeHandler func(rms float64)

// Pipeline owns one microphone stream
type Pipeline struct {
	device   repositories.InputDevice
	config   Config
	logger   *zap.Logger
	enabled  atomic.Bool
	onVolume atomic.Pointer[VolumeHandler]

	mu      sync.Mutex
	stream  repositories.InputStream
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// NewPipeline creates a capture pipeline for the given device
func NewPipeline(device repositories.InputDevice, config Config, logger *zap.Logger) *Pipeline {
	defaults := DefaultConfig()
	if config.SampleRate <= 0 {
		config.SampleRate = defaults.SampleRate
	}
	if config.FramesPerBuffer <= 0 {
		config.FramesPerBuffer = defaults.FramesPerBuffer
	}
	if config.RMSStride <= 0 {
		config.RMSStride = defaults.RMSStride
	}

	return &Pipeline{
		device: device,
		config: config,
		logger: logger,
	}
}

// SetVolumeHandler registers the volume callback
func (p *Pipeline) SetVolumeHandler(fn VolumeHandler) {
	p.onVolume.Store(&fn)
}

// SetInputEnabled opens or closes the push-to-talk gate
func (p *Pipeline) SetInputEnabled(enabled bool) {
	p.enabled.Store(enabled)
}

// InputEnabled reports whether frames are currently forwarded
func (p *Pipeline) InputEnabled() bool {
	return p.enabled.Load()
}

// Start acquires the microphone and begins reading frames. Frames are passed
// to onFrame only while the gate is open.
func (p *Pipeline) Start(ctx context.Context, onFrame FrameHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		return fmt.Errorf("capture already started")
	}
	if p.stopped {
		return fmt.Errorf("capture pipeline was stopped")
	}

	stream, err := p.device.Open(ctx, repositories.InputConfig{
		SampleRate:       p.config.SampleRate,
		Channels:         1,
		FramesPerBuffer:  p.config.FramesPerBuffer,
		EchoCancellation: p.config.EchoCancellation,
		NoiseSuppression: p.config.NoiseSuppression,
	})
	if err != nil {
		if entities.IsDeviceError(err) {
			return fmt.Errorf("failed to open microphone: %w", err)
		}
		return fmt.Errorf("failed to open microphone: %w: %v", entities.ErrDeviceUnavailable, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	p.stream = stream
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.readLoop(loopCtx, stream, onFrame, p.done)

	p.logger.Info("Microphone capture started",
		zap.Int("sampleRate", p.config.SampleRate),
		zap.Int("framesPerBuffer", p.config.FramesPerBuffer))
	return nil
}

func (p *Pipeline) readLoop(ctx context.Context, stream repositories.InputStream, onFrame FrameHandler, done chan struct{}) {
	defer close(done)

	buf := make([]float32, p.config.FramesPerBuffer)
	for {
		if err := stream.Read(buf); err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				p.logger.Error("Microphone read failed", zap.Error(err))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		samples := make([]float32, len(buf))
		copy(samples, buf)

		if fn := p.onVolume.Load(); fn != nil && *fn != nil {
			(*fn)(audio.RMS(samples, p.config.RMSStride))
		}

		if !p.enabled.Load() || onFrame == nil {
			continue
		}
		onFrame(entities.AudioFrame{
			SampleRate: p.config.SampleRate,
			Channels:   [][]float32{samples},
		})
	}
}

// Stop releases the microphone and waits for the read loop to exit. It is
// safe to call multiple times and before Start.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	stream, cancel, done := p.stream, p.cancel, p.done
	p.stream = nil
	p.mu.Unlock()

	p.enabled.Store(false)
	if stream == nil {
		return
	}

	cancel()
	if err := stream.Close(); err != nil {
		p.logger.Warn("Failed to close microphone stream", zap.Error(err))
	}
	<-done

	p.logger.Info("Microphone capture stopped")
}
