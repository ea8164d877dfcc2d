package sim

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/state"
)

func mustState(t *testing.T, v any) state.State {
	t.Helper()
	st, err := state.New(v)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	return st
}

func TestLedgerStep(t *testing.T) {
	current := mustState(t, map[string]any{"credits": 1000, "step": 2, "seed": "S1"})

	next, err := Ledger{}.Step(context.Background(), current, "S1", json.RawMessage(`{"credits":50}`))
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	want := mustState(t, map[string]any{"credits": 1050, "step": 3, "seed": "S1"})
	if !next.Equal(want) {
		t.Fatalf("expected %s, got %s", want, next)
	}
}

func TestLedgerStepWithoutActions(t *testing.T) {
	next, err := Ledger{}.Step(context.Background(), state.Default("S1"), "S1", nil)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	want := mustState(t, map[string]any{"credits": 0, "step": 1, "seed": "S1"})
	if !next.Equal(want) {
		t.Fatalf("expected %s, got %s", want, next)
	}
}

func TestLedgerIsDeterministic(t *testing.T) {
	current := mustState(t, map[string]any{"credits": 7, "step": 0})
	actions := json.RawMessage(`{"credits":-3}`)
	a, err := Ledger{}.Step(context.Background(), current, "S", actions)
	if err != nil {
		t.Fatalf("step a: %v", err)
	}
	b, err := Ledger{}.Step(context.Background(), current, "S", actions)
	if err != nil {
		t.Fatalf("step b: %v", err)
	}
	if !a.Equal(b) {
		t.Fatalf("expected identical results, got %s and %s", a, b)
	}
}

func TestLedgerRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	if _, err := (Ledger{}).Step(ctx, state.Default("S"), "S", json.RawMessage(`{"credits":"lots"}`)); !errors.Is(err, ErrInvalidActions) {
		t.Fatalf("expected ErrInvalidActions, got %v", err)
	}
	bad := mustState(t, map[string]any{"credits": "many"})
	if _, err := (Ledger{}).Step(ctx, bad, "S", nil); err == nil {
		t.Fatal("expected non-numeric credits to fail")
	}
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := (Ledger{}).Step(canceled, state.Default("S"), "S", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestStepFunc(t *testing.T) {
	var called bool
	var stepper Stepper = StepFunc(func(_ context.Context, current state.State, seed string, _ json.RawMessage) (state.State, error) {
		called = true
		if seed != "S9" {
			t.Fatalf("expected seed S9, got %q", seed)
		}
		return current, nil
	})
	if _, err := stepper.Step(context.Background(), state.Default("S9"), "S9", nil); err != nil {
		t.Fatalf("step: %v", err)
	}
	if !called {
		t.Fatal("expected function to be called")
	}
}
