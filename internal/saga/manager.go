package saga

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager runs step lists, compensating in reverse order on failure
type Manager struct {
	logger *zap.Logger
	mu     sync.Mutex
}

// NewManager creates a new saga manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger}
}

// Run executes the definition's steps in order. When a step fails every
// previously completed step is compensated in reverse order and the step's
// error is returned unchanged, so callers can classify it with errors.Is.
func (m *Manager) Run(ctx context.Context, def Definition, data SagaData) (*Instance, error) {
	steps := def.Steps()
	instance := &Instance{
		Definition: def.ID(),
		State:      SagaStateRunning,
		Data:       data,
		Steps:      make([]StepExecution, len(steps)),
		StartedAt:  time.Now(),
		steps:      steps,
	}
	for i, step := range steps {
		instance.Steps[i] = StepExecution{ID: step.ID(), State: StepStatePending}
	}

	runCtx := ctx
	if timeout := def.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for i, step := range steps {
		if err := step.Execute(runCtx, data); err != nil {
			m.logger.Error("Step failed",
				zap.String("saga", def.ID()),
				zap.String("stepID", string(step.ID())),
				zap.Error(err))

			instance.Steps[i].State = StepStateFailed
			instance.Steps[i].Error = err.Error()

			// Compensation must run even if the caller's context was the cause.
			m.compensate(context.WithoutCancel(ctx), instance)
			instance.State = SagaStateCompensated
			return instance, err
		}

		instance.Steps[i].State = StepStateCompleted
		instance.completed = i + 1
		m.logger.Debug("Step completed",
			zap.String("saga", def.ID()),
			zap.String("stepID", string(step.ID())))
	}

	instance.State = SagaStateCompleted
	m.logger.Info("Saga completed", zap.String("saga", def.ID()))
	return instance, nil
}

// Release compensates every completed step of a finished saga in reverse
// order. Calling it more than once is a no-op.
func (m *Manager) Release(ctx context.Context, instance *Instance) error {
	if instance == nil {
		return fmt.Errorf("saga instance is nil")
	}

	m.compensate(ctx, instance)
	if instance.State == SagaStateCompleted {
		instance.State = SagaStateReleased
	}
	return nil
}

func (m *Manager) compensate(ctx context.Context, instance *Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := instance.completed - 1; i >= 0; i-- {
		step := instance.steps[i]

		if err := step.Compensate(ctx, instance.Data); err != nil {
			m.logger.Error("Compensation failed",
				zap.String("saga", instance.Definition),
				zap.String("stepID", string(step.ID())),
				zap.Error(err))
		}
		instance.Steps[i].State = StepStateCompensated
	}
	instance.completed = 0
}
