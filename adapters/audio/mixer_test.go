package audio

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/studylive/domain/entities"
	"github.com/satriahrh/studylive/domain/repositories"
	"github.com/satriahrh/studylive/internal/playback"
)

func ones(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = 1
	}
	return s
}

func TestMixerPlacesSegmentsOnSampleClock(t *testing.T) {
	m := newMixer(1000)
	ended := make(chan repositories.SegmentHandle, 2)
	onEnded := func(h repositories.SegmentHandle) { ended <- h }

	first, _ := m.schedule(ones(4), 2*time.Millisecond, onEnded)
	m.schedule(ones(2), 6*time.Millisecond, onEnded)

	buf := make([]float32, 10)
	m.render(buf)

	want := []float32{0, 0, 1, 1, 1, 1, 1, 1, 0, 0}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, buf)
		}
	}
	if m.now() != 10*time.Millisecond {
		t.Errorf("Expected clock at 10ms, got %s", m.now())
	}

	got := map[repositories.SegmentHandle]bool{}
	for i := 0; i < 2; i++ {
		select {
		case h := <-ended:
			got[h] = true
		case <-time.After(time.Second):
			t.Fatal("Timed out waiting for ended callbacks")
		}
	}
	if !got[first] || m.pending() != 0 {
		t.Errorf("Expected both segments ended, got %v pending=%d", got, m.pending())
	}
}

// mixerOutput drives a mixer by hand so rendering is deterministic
type mixerOutput struct{ *mixer }

func (o mixerOutput) Now() time.Duration { return o.now() }
func (o mixerOutput) Schedule(samples []float32, at time.Duration, ended func(repositories.SegmentHandle)) (repositories.SegmentHandle, error) {
	return o.schedule(samples, at, ended)
}
func (o mixerOutput) Stop(handle repositories.SegmentHandle) { o.stop(handle) }
func (o mixerOutput) Close() error                           { o.close(); return nil }

func TestSchedulerSegmentsAreContiguousOnMixer(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate int
		chunk      int
	}{
		{"1000 samples at 24kHz", 24000, 1000},
		{"1001 samples at 24kHz", 24000, 1001},
		{"4096 samples at 24kHz", 24000, 4096},
		{"333 samples at 16kHz", 16000, 333},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMixer(tt.sampleRate)
			scheduler := playback.NewScheduler(mixerOutput{m}, zaptest.NewLogger(t))

			const chunks = 50
			for i := 0; i < chunks; i++ {
				frame := entities.AudioFrame{SampleRate: tt.sampleRate, Channels: [][]float32{constant(tt.chunk, 0.25)}}
				if _, err := scheduler.Enqueue(frame); err != nil {
					t.Fatalf("Enqueue failed: %v", err)
				}
			}

			buf := make([]float32, chunks*tt.chunk+1)
			m.render(buf)

			for i := 0; i < chunks*tt.chunk; i++ {
				if buf[i] != 0.25 {
					t.Fatalf("sample %d = %v, want 0.25", i, buf[i])
				}
			}
			if buf[len(buf)-1] != 0 {
				t.Errorf("Expected silence after the last segment, got %v", buf[len(buf)-1])
			}
		})
	}
}

func constant(n int, v float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func TestMixerSegmentSpanningBuffers(t *testing.T) {
	m := newMixer(1000)
	m.schedule(ones(6), 0, nil)

	buf := make([]float32, 4)
	m.render(buf)
	if m.pending() != 1 {
		t.Fatal("Segment should still be playing")
	}
	m.render(buf)
	if buf[0] != 1 || buf[1] != 1 || buf[2] != 0 {
		t.Errorf("Expected tail of segment, got %v", buf)
	}
	if m.pending() != 0 {
		t.Error("Segment should have ended")
	}
}

func TestMixerLateScheduleStartsNow(t *testing.T) {
	m := newMixer(1000)
	m.render(make([]float32, 5))

	m.schedule(ones(1), time.Millisecond, nil)
	buf := make([]float32, 2)
	m.render(buf)
	if buf[0] != 1 {
		t.Errorf("Late segment should start at the current position, got %v", buf)
	}
}

func TestMixerStopReportsEndedAsynchronously(t *testing.T) {
	m := newMixer(1000)
	ended := make(chan repositories.SegmentHandle, 1)

	handle, _ := m.schedule(ones(100), 0, func(h repositories.SegmentHandle) { ended <- h })
	m.stop(handle)

	select {
	case h := <-ended:
		if h != handle {
			t.Errorf("Expected handle %d, got %d", handle, h)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for ended callback")
	}

	buf := make([]float32, 4)
	m.render(buf)
	if buf[0] != 0 {
		t.Error("Stopped segment should not be rendered")
	}
}

func TestMixerClose(t *testing.T) {
	m := newMixer(1000)
	m.schedule(ones(10), 0, nil)
	m.close()
	m.close()

	if m.pending() != 0 {
		t.Error("Close should drop pending segments")
	}
	if _, err := m.schedule(ones(1), 0, nil); err == nil {
		t.Error("Expected error scheduling on closed output")
	}
}

func TestVirtualOutputAdvances(t *testing.T) {
	output := NewVirtualOutput(24000, zaptest.NewLogger(t))
	defer output.Close()

	ended := make(chan repositories.SegmentHandle, 1)
	output.Schedule(make([]float32, 240), output.Now(), func(h repositories.SegmentHandle) { ended <- h })

	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("Virtual output never finished the segment")
	}
	if output.Now() <= 0 {
		t.Error("Clock should have advanced")
	}
}
