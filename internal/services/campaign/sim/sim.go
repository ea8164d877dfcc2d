// Package sim defines the simulation collaborator the campaign store drives.
//
// The store never interprets state. A Stepper receives the resumed state and
// returns the next one; the store records the result as a simulation_step
// event.
package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/state"
)

// Stepper advances a campaign state by one step.
type Stepper interface {
	Step(ctx context.Context, current state.State, seed string, actions json.RawMessage) (state.State, error)
}

// StepFunc adapts a function to Stepper.
type StepFunc func(ctx context.Context, current state.State, seed string, actions json.RawMessage) (state.State, error)

// Step calls f.
func (f StepFunc) Step(ctx context.Context, current state.State, seed string, actions json.RawMessage) (state.State, error) {
	return f(ctx, current, seed, actions)
}

// ErrInvalidActions indicates actions the stepper cannot apply.
var ErrInvalidActions = errors.New("invalid step actions")

// LedgerActions are the actions understood by Ledger.
type LedgerActions struct {
	Credits int64 `json:"credits"`
}

// Ledger is a deterministic reference stepper. Each step increments "step"
// and adds actions.credits to "credits". Other state fields pass through.
type Ledger struct{}

// Step implements Stepper.
func (Ledger) Step(ctx context.Context, current state.State, _ string, actions json.RawMessage) (state.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var act LedgerActions
	if len(actions) > 0 && string(actions) != "null" {
		if err := json.Unmarshal(actions, &act); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidActions, err)
		}
	}

	var fields map[string]json.RawMessage
	if err := current.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	step, err := current.Step()
	if err != nil {
		return nil, err
	}
	credits, err := intField(fields, "credits")
	if err != nil {
		return nil, err
	}

	fields["step"] = json.RawMessage(fmt.Sprintf("%d", step+1))
	fields["credits"] = json.RawMessage(fmt.Sprintf("%d", credits+act.Credits))
	return state.New(fields)
}

func intField(fields map[string]json.RawMessage, name string) (int64, error) {
	raw, ok := fields[name]
	if !ok {
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("state %s must be a number: %w", name, err)
	}
	v, err := n.Int64()
	if err != nil {
		return 0, fmt.Errorf("state %s must be an integer: %w", name, err)
	}
	return v, nil
}
