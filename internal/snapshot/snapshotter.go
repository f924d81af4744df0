// Package snapshot periodically captures the visible video frame, draws the
// user's outline onto it and hands it to the live connection as a JPEG.
package snapshot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/studylive/domain/entities"
	"github.com/satriahrh/studylive/domain/repositories"
	"github.com/satriahrh/studylive/internal/metrics"
)

// Config represents snapshotter configuration
type Config struct {
	Interval  time.Duration
	MaxEdge   int
	Quality   int
	LineWidth float64
}

// DefaultConfig returns a 1 Hz, 1024 px, quality 80 configuration
func DefaultConfig() Config {
	return Config{
		Interval:  time.Second,
		MaxEdge:   DefaultMaxEdge,
		Quality:   DefaultQuality,
		LineWidth: DefaultLineWidth,
	}
}

// ViewProvider returns the current player view
type ViewProvider func() entities.ViewState

// Sender transmits an encoded image
type Sender func(chunk entities.MediaChunk) error

// Snapshotter captures frames on a fixed interval
type Snapshotter struct {
	source repositories.FrameSource
	view   ViewProvider
	send   Sender
	config Config
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a snapshotter
func New(source repositories.FrameSource, view ViewProvider, send Sender, config Config, logger *zap.Logger) *Snapshotter {
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.MaxEdge <= 0 {
		config.MaxEdge = defaults.MaxEdge
	}
	if config.Quality <= 0 {
		config.Quality = defaults.Quality
	}
	if config.LineWidth <= 0 {
		config.LineWidth = defaults.LineWidth
	}

	return &Snapshotter{
		source: source,
		view:   view,
		send:   send,
		config: config,
		logger: logger,
	}
}

// Start begins the capture ticker. Calling Start twice is a no-op.
func (s *Snapshotter) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, s.done)
}

// Stop halts the ticker and waits for an in-flight capture to finish
func (s *Snapshotter) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Snapshotter) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Snapshotter) tick(ctx context.Context) {
	data, err := s.Capture(ctx)
	if err != nil {
		if errors.Is(err, entities.ErrNoFrame) || ctx.Err() != nil {
			return
		}
		metrics.Errors.WithLabelValues("snapshot", "capture").Inc()
		s.logger.Warn("Frame capture failed, skipping tick", zap.Error(err))
		return
	}

	if err := s.send(entities.MediaChunk{MIMEType: entities.MIMETypeJPEG, Data: data}); err != nil {
		s.logger.Warn("Failed to send frame snapshot", zap.Error(err))
		return
	}
	metrics.SnapshotsSent.Inc()
}

// Capture grabs, annotates, scales and encodes one frame, returning the
// base64 JPEG payload.
func (s *Snapshotter) Capture(ctx context.Context) (string, error) {
	view := s.view()

	frame, err := s.source.Frame(ctx, view.VideoPath, view.Position)
	if err != nil {
		return "", err
	}

	jpegData, err := Render(frame, view, s.config)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(jpegData), nil
}

// Render draws the view's outline onto frame and returns the scaled JPEG
func Render(frame image.Image, view entities.ViewState, config Config) ([]byte, error) {
	if frame == nil {
		return nil, fmt.Errorf("frame is nil")
	}

	var img image.Image = frame
	if len(view.Outline) > 1 {
		bounds := frame.Bounds()
		source := entities.Size{Width: float64(bounds.Dx()), Height: float64(bounds.Dy())}
		container := view.Container
		if container.Width <= 0 || container.Height <= 0 {
			container = source
		}
		img = Annotate(frame, MapOutline(view.Outline, container, source), config.LineWidth)
	}

	return EncodeJPEG(Scale(img, config.MaxEdge), config.Quality)
}
