// Package history implements the C8 state-transition function: maintaining
// beta, the last-8-blocks history chain, and its backing Merkle Mountain
// Range of accumulate roots.
package history

import (
	"github.com/jamnode/jam/crypto"
	"github.com/jamnode/jam/log"
	"github.com/jamnode/jam/metrics"
	"github.com/jamnode/jam/mmr"
	"github.com/jamnode/jam/state"
	"github.com/jamnode/jam/types"
)

var logger = log.Default().Module("history")

// Input is the per-block input to the history STF.
type Input struct {
	HeaderHash       types.Hash
	ParentStateRoot  types.Hash
	AccumulateRoot   types.Hash
	WorkPackages     []state.ReportedItem
}

// Apply runs the history STF against s, mutating s.Beta in place.
//
// It clones beta, backfills the previous tip's state root (which was
// unknown until this block committed), folds accumulate_root into the
// running MMR, and appends the new tip, trimming to the last 8 entries.
func Apply(s *state.State, in Input) {
	beta := make([]state.BetaEntry, len(s.Beta))
	copy(beta, s.Beta)

	if len(beta) > 0 {
		beta[len(beta)-1].StateRoot = in.ParentStateRoot
	}

	var tailMMR state.MMR
	if len(beta) > 0 {
		tailMMR = beta[len(beta)-1].MMR
	}
	newMMR := mmr.Append(tailMMR, in.AccumulateRoot)

	stateRoot := crypto.Blake2b256Hash(in.HeaderHash[:], mmr.Peaks(newMMR))

	entry := state.BetaEntry{
		HeaderHash: in.HeaderHash,
		StateRoot:  stateRoot,
		MMR:        newMMR,
		Reported:   append([]state.ReportedItem(nil), in.WorkPackages...),
	}

	beta = append(beta, entry)
	if len(beta) > state.MaxBetaLength {
		beta = beta[len(beta)-state.MaxBetaLength:]
	}

	s.Beta = beta
	metrics.HistoryEntries.Set(int64(len(beta)))
	logger.Debug("appended history entry", "header_hash", in.HeaderHash.Hex(), "beta_len", len(beta))
}
