package usecase

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// IdleFor reports how long the active session has gone without activity
func (m *LiveSessionManager) IdleFor() (time.Duration, bool) {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()

	if s == nil {
		return 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.entity.IsActive() {
		return 0, false
	}
	return s.entity.IdleFor(), true
}

// IdleSessions is the part of the session manager the watchdog needs
type IdleSessions interface {
	IdleFor() (time.Duration, bool)
	DisconnectWithReason(reason string) error
}

// IdleWatchdog disconnects sessions that have been idle too long
type IdleWatchdog struct {
	sessions IdleSessions
	timeout  time.Duration
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewIdleWatchdog creates a watchdog checking every interval. A zero
// interval checks four times per timeout, capped at 30 seconds.
func NewIdleWatchdog(sessions IdleSessions, timeout, interval time.Duration, logger *zap.Logger) *IdleWatchdog {
	if interval <= 0 {
		interval = min(timeout/4, 30*time.Second)
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &IdleWatchdog{
		sessions: sessions,
		timeout:  timeout,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background check loop
func (w *IdleWatchdog) Start() {
	go w.loop()
	w.logger.Info("Idle watchdog started", zap.Duration("timeout", w.timeout))
}

// Stop gracefully stops the watchdog
func (w *IdleWatchdog) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.logger.Info("Idle watchdog stopped")
	})
}

func (w *IdleWatchdog) loop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check disconnects the active session if it exceeded the idle timeout
func (w *IdleWatchdog) check() bool {
	idle, ok := w.sessions.IdleFor()
	if !ok || idle < w.timeout {
		return false
	}

	w.logger.Info("Disconnecting idle session", zap.Duration("idle", idle))
	if err := w.sessions.DisconnectWithReason("idle timeout"); err != nil {
		w.logger.Error("Failed to disconnect idle session", zap.Error(err))
		return false
	}
	return true
}
