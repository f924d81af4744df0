package usecase

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type fakeIdleSessions struct {
	mu      sync.Mutex
	idle    time.Duration
	active  bool
	reasons []string
}

func (f *fakeIdleSessions) IdleFor() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idle, f.active
}

func (f *fakeIdleSessions) DisconnectWithReason(reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons = append(f.reasons, reason)
	f.active = false
	return nil
}

func TestIdleWatchdogCheck(t *testing.T) {
	tests := []struct {
		name   string
		idle   time.Duration
		active bool
		want   bool
	}{
		{"no session", time.Hour, false, false},
		{"recently active", time.Minute, true, false},
		{"idle too long", 11 * time.Minute, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &fakeIdleSessions{idle: tt.idle, active: tt.active}
			watchdog := NewIdleWatchdog(sessions, 10*time.Minute, 0, zaptest.NewLogger(t))

			if got := watchdog.check(); got != tt.want {
				t.Errorf("check() = %v, want %v", got, tt.want)
			}
			if tt.want && sessions.reasons[0] != "idle timeout" {
				t.Errorf("Unexpected reason %v", sessions.reasons)
			}
		})
	}
}

func TestIdleWatchdogLoop(t *testing.T) {
	sessions := &fakeIdleSessions{idle: time.Second, active: true}
	watchdog := NewIdleWatchdog(sessions, 500*time.Millisecond, 5*time.Millisecond, zaptest.NewLogger(t))

	watchdog.Start()
	defer watchdog.Stop()

	eventually(t, func() bool {
		_, active := sessions.IdleFor()
		return !active
	}, "idle session disconnected")

	watchdog.Stop()
}
