// Package grandpa implements C11: the two-phase (prevote/precommit) BFT
// finality gadget that selects a best chain head and finalizes it once a
// two-thirds supermajority of validators agree, following the same
// round structure GRANDPA uses in production chains.
package grandpa

import (
	"fmt"

	"github.com/jamnode/jam/types"
)

// Stage identifies which phase of a round a vote belongs to.
type Stage uint8

const (
	Prevote Stage = iota
	Precommit
)

func (s Stage) String() string {
	if s == Precommit {
		return "precommit"
	}
	return "prevote"
}

// Vote is one validator's opinion of the chain head for a given round and
// stage. A zero BlockHash means "vote nil" -- no acceptable candidate.
type Vote struct {
	Round     uint64
	Stage     Stage
	BlockHash types.Hash
	Height    uint64
	StateRoot types.Hash
}

// CanonicalMessage returns the exact byte string a vote's signature is
// computed over: "{round}|{stage}|{block_hash}|{height}|{state_root}",
// with the zero hash rendered as "nil" to match a vote for no candidate.
func CanonicalMessage(v Vote) []byte {
	bh := "nil"
	if !v.BlockHash.IsZero() {
		bh = v.BlockHash.Hex()
	}
	sr := "nil"
	if !v.StateRoot.IsZero() {
		sr = v.StateRoot.Hex()
	}
	return []byte(fmt.Sprintf("%d|%s|%s|%d|%s", v.Round, v.Stage, bh, v.Height, sr))
}

// SignedVote is a Vote plus the voter's identity and signature over its
// canonical message.
type SignedVote struct {
	Vote      Vote
	Voter     types.Ed25519Pub
	Signature types.Ed25519Sig
}

// Justification is the proof a block was finalized: the precommits that
// reached supermajority on it.
type Justification struct {
	Round      uint64
	BlockHash  types.Hash
	Height     uint64
	Precommits []SignedVote
}
