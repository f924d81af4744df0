package saga

import (
	"context"
	"time"
)

// SagaState represents the current state of a saga execution
type SagaState string

const (
	SagaStateRunning     SagaState = "running"
	SagaStateCompleted   SagaState = "completed"
	SagaStateCompensated SagaState = "compensated"
	SagaStateReleased    SagaState = "released"
)

// StepState represents the state of an individual step
type StepState string

const (
	StepStatePending     StepState = "pending"
	StepStateCompleted   StepState = "completed"
	StepStateFailed      StepState = "failed"
	StepStateCompensated StepState = "compensated"
)

// StepID uniquely identifies a step within a saga
type StepID string

// SagaData holds the shared data for a saga execution
type SagaData map[string]interface{}

// Step acquires one resource. Compensate releases it again and is only
// called for steps whose Execute succeeded.
type Step interface {
	ID() StepID
	Execute(ctx context.Context, data SagaData) error
	Compensate(ctx context.Context, data SagaData) error
}

// Definition names an ordered list of steps
type Definition interface {
	ID() string
	Steps() []Step
	Timeout() time.Duration
}

// Instance is a completed acquisition whose steps can be released later
type Instance struct {
	Definition string
	State      SagaState
	Data       SagaData
	Steps      []StepExecution
	StartedAt  time.Time

	steps     []Step
	completed int
}

// StepExecution represents the execution state of a step
type StepExecution struct {
	ID    StepID
	State StepState
	Error string
}
