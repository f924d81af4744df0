// Package audio provides the output and input devices a live session plays
// and records through.
//
// Output devices are driven by a sample clock: a renderer pulls fixed-size
// buffers from a mixer, and the number of samples rendered so far is the
// device's notion of "now". Segments are placed on that clock at absolute
// sample offsets, so back-to-back segments are sample-contiguous.
package audio

import (
	"errors"
	"sync"
	"time"

	"github.com/satriahrh/studylive/domain/repositories"
)

var errOutputClosed = errors.New("output device is closed")

type segment struct {
	handle  repositories.SegmentHandle
	start   int64
	samples []float32
	ended   func(repositories.SegmentHandle)
}

func (s *segment) end() int64 {
	return s.start + int64(len(s.samples))
}

// mixer places segments on a sample clock and renders them into buffers
type mixer struct {
	sampleRate int

	mu       sync.Mutex
	position int64
	next     repositories.SegmentHandle
	segments map[repositories.SegmentHandle]*segment
	closed   bool
}

func newMixer(sampleRate int) *mixer {
	return &mixer{
		sampleRate: sampleRate,
		segments:   make(map[repositories.SegmentHandle]*segment),
	}
}

// toSamples rounds to the nearest sample. Clock positions come back from
// now() truncated to the nanosecond, so flooring would land one sample early.
func (m *mixer) toSamples(d time.Duration) int64 {
	return (int64(d)*int64(m.sampleRate) + int64(time.Second)/2) / int64(time.Second)
}

func (m *mixer) now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Duration(m.position) * time.Second / time.Duration(m.sampleRate)
}

func (m *mixer) schedule(samples []float32, at time.Duration, ended func(repositories.SegmentHandle)) (repositories.SegmentHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, errOutputClosed
	}

	m.next++
	m.segments[m.next] = &segment{
		handle:  m.next,
		start:   max(m.toSamples(at), m.position),
		samples: samples,
		ended:   ended,
	}
	return m.next, nil
}

func (m *mixer) stop(handle repositories.SegmentHandle) {
	m.mu.Lock()
	s, ok := m.segments[handle]
	delete(m.segments, handle)
	m.mu.Unlock()

	if ok && s.ended != nil {
		go s.ended(handle)
	}
}

// render mixes the next len(buf) samples into buf and advances the clock.
// Finished segments are reported from a separate goroutine.
func (m *mixer) render(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}

	m.mu.Lock()
	from := m.position
	to := from + int64(len(buf))

	var finished []*segment
	for handle, s := range m.segments {
		lo, hi := max(s.start, from), min(s.end(), to)
		for p := lo; p < hi; p++ {
			buf[p-from] += s.samples[p-s.start]
		}
		if s.end() <= to {
			delete(m.segments, handle)
			finished = append(finished, s)
		}
	}
	m.position = to
	m.mu.Unlock()

	for i := range buf {
		buf[i] = max(-1, min(1, buf[i]))
	}

	if len(finished) > 0 {
		go func() {
			for _, s := range finished {
				if s.ended != nil {
					s.ended(s.handle)
				}
			}
		}()
	}
}

// close drops every pending segment and reports them as ended
func (m *mixer) close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	pending := m.segments
	m.segments = make(map[repositories.SegmentHandle]*segment)
	m.mu.Unlock()

	go func() {
		for _, s := range pending {
			if s.ended != nil {
				s.ended(s.handle)
			}
		}
	}()
}

func (m *mixer) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.segments)
}
