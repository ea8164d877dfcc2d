// Package state holds the opaque simulation state value recorded by the
// campaign store.
//
// A State is canonical JSON. The store never interprets fields beyond the
// top-level "step" counter, which branch points and snapshot bookkeeping read.
package state

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/core/encoding"
)

// State is a canonical JSON object.
type State []byte

// New encodes v into a canonical State.
func New(v any) (State, error) {
	data, err := encoding.CanonicalJSON(v)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return validateObject(data)
}

// Parse canonicalizes an encoded JSON object.
func Parse(raw []byte) (State, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("state is empty")
	}
	data, err := encoding.Canonicalize(raw)
	if err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return validateObject(data)
}

// Default is the initial state of a campaign that has no recorded state yet.
func Default(seed string) State {
	s, err := New(map[string]any{"seed": seed, "step": 0})
	if err != nil {
		// A string and an int always encode.
		panic(err)
	}
	return s
}

// Step reads the top-level step counter. A missing step is zero.
func (s State) Step() (int64, error) {
	var probe struct {
		Step *json.Number `json:"step"`
	}
	if err := json.Unmarshal(s, &probe); err != nil {
		return 0, fmt.Errorf("decode state step: %w", err)
	}
	if probe.Step == nil {
		return 0, nil
	}
	step, err := probe.Step.Int64()
	if err != nil {
		return 0, fmt.Errorf("state step must be an integer: %w", err)
	}
	return step, nil
}

// Decode unmarshals the state into v.
func (s State) Decode(v any) error {
	if len(s) == 0 {
		return fmt.Errorf("state is empty")
	}
	if err := json.Unmarshal(s, v); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	return nil
}

// Equal reports whether both states hold the same canonical bytes.
func (s State) Equal(other State) bool {
	return bytes.Equal(s, other)
}

// Clone returns an independent copy.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	return bytes.Clone(s)
}

// Checksum returns the content hash of the canonical bytes.
func (s State) Checksum() string {
	return encoding.HashCanonical(s)
}

// MarshalJSON embeds the state verbatim.
func (s State) MarshalJSON() ([]byte, error) {
	if len(s) == 0 {
		return []byte("null"), nil
	}
	return s, nil
}

// UnmarshalJSON canonicalizes the embedded object.
func (s *State) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = nil
		return nil
	}
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s State) String() string {
	return string(s)
}

func validateObject(data []byte) (State, error) {
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("state must be a json object")
	}
	return State(data), nil
}
