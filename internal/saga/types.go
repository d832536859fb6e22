package saga

import (
	"context"
	"time"
)

// SagaID identifies one run of a saga
type SagaID string

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
	StepStateRunning     StepState = "running"
	StepStateCompleted   StepState = "completed"
	StepStateFailed      StepState = "failed"
	StepStateCompensated StepState = "compensated"
)

// StepID uniquely identifies a step within a saga
type StepID string

// Step acquires one resource. Compensate releases what Execute acquired and
// is only called after Execute succeeded.
type Step interface {
	ID() StepID
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

// StepFunc adapts a pair of functions to Step. A nil compensate is a no-op.
type StepFunc struct {
	StepID       StepID
	ExecuteFn    func(ctx context.Context) error
	CompensateFn func(ctx context.Context) error
}

func (s StepFunc) ID() StepID { return s.StepID }

func (s StepFunc) Execute(ctx context.Context) error {
	return s.ExecuteFn(ctx)
}

func (s StepFunc) Compensate(ctx context.Context) error {
	if s.CompensateFn == nil {
		return nil
	}
	return s.CompensateFn(ctx)
}

// NewStep builds a StepFunc
func NewStep(id StepID, execute, compensate func(ctx context.Context) error) Step {
	return StepFunc{StepID: id, ExecuteFn: execute, CompensateFn: compensate}
}

// SagaInstance records one run
type SagaInstance struct {
	ID          SagaID          `json:"id"`
	Name        string          `json:"name"`
	State       SagaState       `json:"state"`
	Steps       []StepExecution `json:"steps"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// StepExecution represents the execution state of a step
type StepExecution struct {
	ID          StepID     `json:"id"`
	State       StepState  `json:"state"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}
