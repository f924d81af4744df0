//go:build portaudio

package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"go.uber.org/zap"

	"github.com/satriahrh/studylive/domain/entities"
	"github.com/satriahrh/studylive/domain/repositories"
)

// 20ms of audio at 24kHz
const outputFramesPerBuffer = 480

// System is the PortAudio backend. It owns library initialization.
type System struct {
	logger *zap.Logger
}

var _ repositories.AudioSystem = (*System)(nil)

// NewSystem initializes PortAudio
func NewSystem(logger *zap.Logger) (*System, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &System{logger: logger}, nil
}

// Close terminates PortAudio
func (s *System) Close() error {
	return portaudio.Terminate()
}

func (s *System) OpenOutput(ctx context.Context, sampleRate int) (repositories.OutputDevice, error) {
	out := make([]float32, outputFramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), len(out), out)
	if err != nil {
		return nil, deviceError("failed to open output stream", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, deviceError("failed to start output stream", err)
	}

	o := &portAudioOutput{
		stream: stream,
		out:    out,
		mixer:  newMixer(sampleRate),
		done:   make(chan struct{}),
		logger: s.logger,
	}
	o.wg.Add(1)
	go o.run()

	s.logger.Info("Audio output opened", zap.Int("sampleRate", sampleRate))
	return o, nil
}

func (s *System) Input() repositories.InputDevice {
	return &portAudioInput{logger: s.logger}
}

func deviceError(msg string, err error) error {
	return fmt.Errorf("%w: %s: %v", entities.ErrDeviceUnavailable, msg, err)
}

// portAudioOutput renders the mixer into a blocking PortAudio stream. The
// stream's blocking writes pace the sample clock.
type portAudioOutput struct {
	stream *portaudio.Stream
	out    []float32
	mixer  *mixer
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
	logger *zap.Logger
}

func (o *portAudioOutput) run() {
	defer o.wg.Done()
	for {
		select {
		case <-o.done:
			return
		default:
		}

		o.mixer.render(o.out)
		if err := o.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			o.logger.Error("Audio output write failed", zap.Error(err))
			return
		}
	}
}

func (o *portAudioOutput) Now() time.Duration {
	return o.mixer.now()
}

func (o *portAudioOutput) Schedule(samples []float32, at time.Duration, ended func(repositories.SegmentHandle)) (repositories.SegmentHandle, error) {
	return o.mixer.schedule(samples, at, ended)
}

func (o *portAudioOutput) Stop(handle repositories.SegmentHandle) {
	o.mixer.stop(handle)
}

func (o *portAudioOutput) Close() error {
	var err error
	o.once.Do(func() {
		close(o.done)
		o.wg.Wait()
		o.mixer.close()
		o.stream.Stop()
		err = o.stream.Close()
		o.logger.Info("Audio output closed")
	})
	return err
}

type portAudioInput struct {
	logger *zap.Logger
}

func (d *portAudioInput) Open(ctx context.Context, config repositories.InputConfig) (repositories.InputStream, error) {
	channels := max(config.Channels, 1)
	in := make([]float32, config.FramesPerBuffer*channels)

	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(config.SampleRate), config.FramesPerBuffer, in)
	if err != nil {
		return nil, deviceError("failed to open input stream", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, deviceError("failed to start input stream", err)
	}

	// PortAudio exposes no echo cancellation or noise suppression; the
	// flags are honored by platform input processing where available.
	d.logger.Info("Microphone opened",
		zap.Int("sampleRate", config.SampleRate),
		zap.Int("framesPerBuffer", config.FramesPerBuffer),
		zap.Bool("echoCancellation", config.EchoCancellation),
		zap.Bool("noiseSuppression", config.NoiseSuppression))

	return &portAudioInputStream{stream: stream, in: in}, nil
}

type portAudioInputStream struct {
	mu       sync.Mutex
	stream   *portaudio.Stream
	in       []float32
	buffered []float32
	closed   bool
}

// Read fills buf from one or more PortAudio buffers
func (s *portAudioInputStream) Read(buf []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filled := 0
	for filled < len(buf) {
		if s.closed {
			return errors.New("input stream closed")
		}
		if len(s.buffered) == 0 {
			if err := s.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
				return fmt.Errorf("failed to read input stream: %w", err)
			}
			s.buffered = s.in
		}
		n := copy(buf[filled:], s.buffered)
		s.buffered = s.buffered[n:]
		filled += n
	}
	return nil
}

// Close stops the stream. A Read in progress returns once PortAudio aborts it.
func (s *portAudioInputStream) Close() error {
	if err := s.stream.Abort(); err != nil {
		return fmt.Errorf("failed to abort input stream: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.stream.Close()
}
