package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/jamnode/jam/state"
)

// cloneState returns a deep copy of s via a JSON marshal/unmarshal round
// trip. Every field of state.State is exported and JSON-representable, so
// this avoids hand-maintaining a deep-copy function in lockstep with the
// state package -- at the cost of being slower than a hand-rolled copy,
// which does not matter at the one-clone-per-block rate this pipeline
// runs at.
func cloneState(s *state.State) (*state.State, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	clone := &state.State{}
	if err := json.Unmarshal(raw, clone); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return clone, nil
}
