// Package playback schedules decoded audio back-to-back on an output clock.
package playback

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/studylive/domain/entities"
	"github.com/satriahrh/studylive/domain/repositories"
	"github.com/satriahrh/studylive/internal/metrics"
)

// Segment is one scheduled block of audio
type Segment struct {
	Handle   repositories.SegmentHandle
	Start    time.Duration
	Duration time.Duration
}

// End returns the clock position at which the segment finishes
func (s Segment) End() time.Duration {
	return s.Start + s.Duration
}

// Scheduler keeps a cursor on the output clock so that consecutive segments
// never overlap and never leave a gap unless the device starved.
type Scheduler struct {
	device repositories.OutputDevice
	logger *zap.Logger

	mu     sync.Mutex
	cursor time.Duration
	active map[repositories.SegmentHandle]Segment
	closed bool
}

// NewScheduler creates a scheduler on top of an open output device
func NewScheduler(device repositories.OutputDevice, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		device: device,
		logger: logger,
		active: make(map[repositories.SegmentHandle]Segment),
	}
}

// Enqueue schedules frame to start when the previous segment ends, or
// immediately if the cursor has fallen behind the device clock.
func (s *Scheduler) Enqueue(frame entities.AudioFrame) (Segment, error) {
	samples := frame.Mono()
	if len(samples) == 0 {
		return Segment{}, fmt.Errorf("empty audio frame")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Segment{}, fmt.Errorf("scheduler is closed")
	}

	now := s.device.Now()
	start := s.cursor
	if start < now {
		if s.cursor > 0 {
			metrics.PlaybackUnderruns.Inc()
			s.logger.Debug("Playback underrun",
				zap.Duration("cursor", s.cursor),
				zap.Duration("now", now))
		}
		start = now
	}

	handle, err := s.device.Schedule(samples, start, s.Ended)
	if err != nil {
		return Segment{}, fmt.Errorf("failed to schedule audio segment: %w", err)
	}

	segment := Segment{
		Handle:   handle,
		Start:    start,
		Duration: frame.Duration(),
	}
	s.active[handle] = segment
	s.cursor = segment.End()

	return segment, nil
}

// Ended removes a finished segment from the active set
func (s *Scheduler) Ended(handle repositories.SegmentHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, handle)
}

// Interrupt stops every scheduled segment and resets the cursor so that the
// next segment plays immediately.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.active) > 0 {
		metrics.PlaybackInterrupts.Inc()
	}
	for handle := range s.active {
		s.device.Stop(handle)
	}
	s.active = make(map[repositories.SegmentHandle]Segment)
	s.cursor = 0
}

// Cursor returns the clock position where the next segment will start
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Active returns the number of segments still playing or queued
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Close interrupts playback and refuses further segments. The output device
// itself is owned and released by the caller.
func (s *Scheduler) Close() {
	s.Interrupt()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
