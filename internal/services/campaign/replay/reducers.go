package replay

import (
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/event"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/state"
)

// Reducer folds one event onto the current state.
type Reducer func(current state.State, evt event.Event) (state.State, error)

// DefaultReducers returns the reducers for the event types this binary
// writes. Both replace the state wholesale with the value the event recorded,
// so replay never re-runs simulation logic.
func DefaultReducers() map[event.Type]Reducer {
	return map[event.Type]Reducer{
		event.TypeCampaignCreated: applyCampaignCreated,
		event.TypeSimulationStep:  applySimulationStep,
	}
}

func applyCampaignCreated(current state.State, evt event.Event) (state.State, error) {
	var payload event.CampaignCreatedPayload
	if err := event.DecodePayload(evt, &payload); err != nil {
		return nil, err
	}
	if len(payload.InitialState) == 0 {
		return state.Default(payload.Seed), nil
	}
	return payload.InitialState, nil
}

func applySimulationStep(_ state.State, evt event.Event) (state.State, error) {
	var payload event.SimulationStepPayload
	if err := event.DecodePayload(evt, &payload); err != nil {
		return nil, err
	}
	if len(payload.ResultingState) == 0 {
		return nil, errMissingResultingState
	}
	return payload.ResultingState, nil
}
