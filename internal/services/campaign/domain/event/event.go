package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/core/encoding"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/state"
)

// Type names an event kind.
type Type string

const (
	// TypeCampaignCreated seeds a campaign with its initial state.
	TypeCampaignCreated Type = "campaign_created"
	// TypeSimulationStep records one step and its resulting state.
	TypeSimulationStep Type = "simulation_step"
)

// SchemaVersion is the newest payload schema this binary writes and reads.
const SchemaVersion = 1

// Event is one immutable, sequence-numbered record in a campaign log.
type Event struct {
	CampaignID     string          `json:"campaign_id"`
	Seq            uint64          `json:"seq"`
	Type           Type            `json:"type"`
	SchemaVersion  int             `json:"schema_version"`
	PayloadJSON    json.RawMessage `json:"payload"`
	Timestamp      time.Time       `json:"timestamp"`
	Checksum       string          `json:"checksum"`
	PrevHash       string          `json:"prev_hash,omitempty"`
	ChainHash      string          `json:"chain_hash"`
	Signature      string          `json:"signature"`
	SignatureKeyID string          `json:"signature_key_id"`
}

// CampaignCreatedPayload is the payload of TypeCampaignCreated.
type CampaignCreatedPayload struct {
	Name         string      `json:"name"`
	Seed         string      `json:"seed"`
	InitialState state.State `json:"initial_state"`
}

// SimulationStepPayload is the payload of TypeSimulationStep.
type SimulationStepPayload struct {
	Seed           string          `json:"seed"`
	Actions        json.RawMessage `json:"actions,omitempty"`
	ResultingState state.State     `json:"resulting_state"`
	Step           int64           `json:"step"`
}

// NewSimulationStep builds a step payload from the stepper output.
func NewSimulationStep(seed string, actions json.RawMessage, resulting state.State) (SimulationStepPayload, error) {
	step, err := resulting.Step()
	if err != nil {
		return SimulationStepPayload{}, err
	}
	return SimulationStepPayload{
		Seed:           seed,
		Actions:        actions,
		ResultingState: resulting,
		Step:           step,
	}, nil
}

// EncodePayload renders a payload as canonical JSON.
func EncodePayload(payload any) (json.RawMessage, error) {
	data, err := encoding.CanonicalJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode event payload: %w", err)
	}
	return data, nil
}

// DecodePayload unmarshals the event payload into v. Payloads written by a
// newer schema are rejected instead of being folded with missing fields.
func DecodePayload(evt Event, v any) error {
	if evt.SchemaVersion > SchemaVersion {
		return fmt.Errorf("event %s seq %d schema version %d is newer than supported %d",
			evt.Type, evt.Seq, evt.SchemaVersion, SchemaVersion)
	}
	if len(evt.PayloadJSON) == 0 {
		return fmt.Errorf("event %s seq %d payload is empty", evt.Type, evt.Seq)
	}
	if err := json.Unmarshal(evt.PayloadJSON, v); err != nil {
		return fmt.Errorf("decode %s payload seq %d: %w", evt.Type, evt.Seq, err)
	}
	return nil
}

// Validate checks the fields required before an event is sealed.
func (e Event) Validate() error {
	if strings.TrimSpace(e.CampaignID) == "" {
		return fmt.Errorf("campaign id is required")
	}
	if strings.TrimSpace(string(e.Type)) == "" {
		return fmt.Errorf("event type is required")
	}
	if e.SchemaVersion <= 0 {
		return fmt.Errorf("schema version must be positive")
	}
	if len(e.PayloadJSON) == 0 {
		return fmt.Errorf("payload is required")
	}
	return nil
}
