//go:build !portaudio

package audio

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/studylive/domain/entities"
	"github.com/satriahrh/studylive/domain/repositories"
)

// System is the audio backend used when built without PortAudio. Output
// goes to a virtual device; there is no microphone.
type System struct {
	logger *zap.Logger
}

var _ repositories.AudioSystem = (*System)(nil)

// NewSystem creates the stub audio system
func NewSystem(logger *zap.Logger) (*System, error) {
	logger.Warn("Built without PortAudio, microphone capture is unavailable")
	return &System{logger: logger}, nil
}

func (s *System) OpenOutput(ctx context.Context, sampleRate int) (repositories.OutputDevice, error) {
	return NewVirtualOutput(sampleRate, s.logger), nil
}

func (s *System) Input() repositories.InputDevice {
	return noInput{}
}

// Close releases the backend
func (s *System) Close() error {
	return nil
}

type noInput struct{}

func (noInput) Open(ctx context.Context, config repositories.InputConfig) (repositories.InputStream, error) {
	return nil, fmt.Errorf("%w: built without PortAudio", entities.ErrDeviceUnavailable)
}
