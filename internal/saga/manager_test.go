package saga

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type recorder struct {
	calls []string
}

func (r *recorder) step(id string, failExec error, failComp error) Step {
	return NewStep(StepID(id),
		func(ctx context.Context) error {
			r.calls = append(r.calls, "exec:"+id)
			return failExec
		},
		func(ctx context.Context) error {
			r.calls = append(r.calls, "comp:"+id)
			return failComp
		})
}

func equalCalls(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Expected calls %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected calls %v, got %v", want, got)
		}
	}
}

func TestRunCompletesAndReleasesInReverse(t *testing.T) {
	r := &recorder{}
	m := NewManager(zap.NewNop())

	scope, err := m.Run(context.Background(), "startup",
		r.step("capture", nil, nil),
		r.step("playback", nil, nil),
		r.step("socket", nil, nil))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	inst := scope.Instance()
	if inst.ID == "" {
		t.Error("Expected a saga id")
	}
	if inst.State != SagaStateCompleted {
		t.Errorf("Expected state %s, got %s", SagaStateCompleted, inst.State)
	}
	for _, s := range inst.Steps {
		if s.State != StepStateCompleted {
			t.Errorf("Expected step %s completed, got %s", s.ID, s.State)
		}
	}

	if err := scope.Release(context.Background()); err != nil {
		t.Fatalf("Expected no release error, got %v", err)
	}
	if err := scope.Release(context.Background()); err != nil {
		t.Fatalf("Expected second release to be a no-op, got %v", err)
	}

	equalCalls(t, r.calls, []string{
		"exec:capture", "exec:playback", "exec:socket",
		"comp:socket", "comp:playback", "comp:capture",
	})
	if scope.Instance().State != SagaStateReleased {
		t.Errorf("Expected state %s, got %s", SagaStateReleased, scope.Instance().State)
	}
}

func TestRunFailureCompensatesCompletedSteps(t *testing.T) {
	r := &recorder{}
	m := NewManager(zap.NewNop())
	micErr := errors.New("microphone busy")

	scope, err := m.Run(context.Background(), "startup",
		r.step("session", nil, nil),
		r.step("capture", micErr, nil),
		r.step("playback", nil, nil))

	if scope != nil {
		t.Error("Expected no scope on failure")
	}
	if !errors.Is(err, micErr) {
		t.Errorf("Expected error to wrap %v, got %v", micErr, err)
	}

	// the failed step acquired nothing, so only earlier steps are compensated
	equalCalls(t, r.calls, []string{"exec:session", "exec:capture", "comp:session"})
}

func TestRunCancelledContext(t *testing.T) {
	r := &recorder{}
	m := NewManager(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	_, err := m.Run(ctx, "startup",
		r.step("a", nil, nil),
		NewStep("cancel", func(context.Context) error { cancel(); return nil }, func(context.Context) error {
			r.calls = append(r.calls, "comp:cancel")
			return nil
		}),
		r.step("b", nil, nil))

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	equalCalls(t, r.calls, []string{"exec:a", "comp:cancel", "comp:a"})
}

func TestReleaseCollectsCompensationErrors(t *testing.T) {
	r := &recorder{}
	m := NewManager(zap.NewNop())
	closeErr := errors.New("device already gone")

	scope, err := m.Run(context.Background(), "startup",
		r.step("a", nil, closeErr),
		r.step("b", nil, nil))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	err = scope.Release(context.Background())
	if !errors.Is(err, closeErr) {
		t.Errorf("Expected release error to wrap %v, got %v", closeErr, err)
	}
	equalCalls(t, r.calls, []string{"exec:a", "exec:b", "comp:b", "comp:a"})

	inst := scope.Instance()
	if inst.Steps[0].State != StepStateCompleted {
		t.Errorf("Expected failed compensation to leave step completed, got %s", inst.Steps[0].State)
	}
	if inst.Steps[1].State != StepStateCompensated {
		t.Errorf("Expected step b compensated, got %s", inst.Steps[1].State)
	}
}

func TestStepFuncNilCompensate(t *testing.T) {
	step := NewStep("noop", func(context.Context) error { return nil }, nil)
	if err := step.Compensate(context.Background()); err != nil {
		t.Errorf("Expected nil compensate to succeed, got %v", err)
	}
}

func TestRunAssignsDistinctIDs(t *testing.T) {
	m := NewManager(zap.NewNop())

	first, err := m.Run(context.Background(), "startup")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	second, err := m.Run(context.Background(), "startup")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if first.Instance().ID == second.Instance().ID {
		t.Errorf("Expected distinct saga ids, got %s twice", first.Instance().ID)
	}
}
