package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager runs sagas synchronously. A saga either acquires every step and
// returns a Scope owning them, or compensates the completed steps in
// reverse order and returns the failure.
type Manager struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewManager creates a new saga manager
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger, now: time.Now}
}

// Run executes steps in order
func (m *Manager) Run(ctx context.Context, name string, steps ...Step) (*Scope, error) {
	id := SagaID(uuid.NewString())
	s := &Scope{
		steps:  steps,
		logger: m.logger.With(zap.String("saga", name), zap.String("sagaID", string(id))),
		now:    m.now,
		instance: SagaInstance{
			ID:        id,
			Name:      name,
			State:     SagaStateRunning,
			Steps:     make([]StepExecution, len(steps)),
			StartedAt: m.now(),
		},
	}
	for i, step := range steps {
		s.instance.Steps[i] = StepExecution{ID: step.ID(), State: StepStatePending}
	}

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, s.abort(ctx, i, step, err)
		}
		if err := s.executeStep(ctx, i, step); err != nil {
			return nil, s.abort(ctx, i, step, err)
		}
	}

	s.mu.Lock()
	s.instance.State = SagaStateCompleted
	now := s.now()
	s.instance.CompletedAt = &now
	s.mu.Unlock()

	s.logger.Info("Saga completed", zap.Int("steps", len(steps)))
	return s, nil
}

// Scope owns the resources acquired by a completed saga
type Scope struct {
	mu        sync.Mutex
	steps     []Step
	completed int
	instance  SagaInstance

	releaseOnce sync.Once
	releaseErr  error

	logger *zap.Logger
	now    func() time.Time
}

// Release compensates every acquired step in reverse order. Only the first
// call does any work; later calls return the same result.
func (s *Scope) Release(ctx context.Context) error {
	s.releaseOnce.Do(func() {
		s.releaseErr = s.compensate(ctx, s.completed-1)

		s.mu.Lock()
		s.instance.State = SagaStateReleased
		s.mu.Unlock()

		s.logger.Info("Saga released")
	})
	return s.releaseErr
}

// Instance returns a snapshot of the run
func (s *Scope) Instance() SagaInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst := s.instance
	inst.Steps = append([]StepExecution(nil), s.instance.Steps...)
	return inst
}

func (s *Scope) executeStep(ctx context.Context, i int, step Step) error {
	start := s.now()
	s.setStep(i, func(e *StepExecution) {
		e.State = StepStateRunning
		e.StartedAt = &start
	})

	err := step.Execute(ctx)

	end := s.now()
	if err != nil {
		s.setStep(i, func(e *StepExecution) {
			e.State = StepStateFailed
			e.CompletedAt = &end
			e.Error = err.Error()
		})
		return err
	}

	s.setStep(i, func(e *StepExecution) {
		e.State = StepStateCompleted
		e.CompletedAt = &end
	})
	s.completed = i + 1

	s.logger.Debug("Step completed", zap.String("stepID", string(step.ID())))
	return nil
}

func (s *Scope) abort(ctx context.Context, i int, step Step, cause error) error {
	s.logger.Error("Step failed",
		zap.String("stepID", string(step.ID())),
		zap.Error(cause))

	// compensation must run even when ctx is what failed
	compErr := s.compensate(context.WithoutCancel(ctx), i-1)

	s.mu.Lock()
	s.instance.State = SagaStateCompensated
	s.instance.Error = cause.Error()
	now := s.now()
	s.instance.CompletedAt = &now
	s.mu.Unlock()

	s.logger.Info("Saga compensated")

	err := fmt.Errorf("step %s failed: %w", step.ID(), cause)
	if compErr != nil {
		return errors.Join(err, compErr)
	}
	return err
}

func (s *Scope) compensate(ctx context.Context, last int) error {
	var errs []error
	for i := last; i >= 0; i-- {
		step := s.steps[i]

		s.logger.Debug("Compensating step", zap.String("stepID", string(step.ID())))
		if err := step.Compensate(ctx); err != nil {
			s.logger.Error("Compensation failed",
				zap.String("stepID", string(step.ID())),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("compensate %s: %w", step.ID(), err))
			continue
		}
		s.setStep(i, func(e *StepExecution) { e.State = StepStateCompensated })
	}
	return errors.Join(errs...)
}

func (s *Scope) setStep(i int, fn func(e *StepExecution)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < len(s.instance.Steps) {
		fn(&s.instance.Steps[i])
	}
}
