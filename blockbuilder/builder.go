package blockbuilder

import (
	"encoding/json"
	"fmt"

	"github.com/jamnode/jam/log"
	"github.com/jamnode/jam/metrics"
	"github.com/jamnode/jam/orchestrator"
	"github.com/jamnode/jam/state"
	"github.com/jamnode/jam/trie"
	"github.com/jamnode/jam/types"
)

var logger = log.Default().Module("blockbuilder")

// Builder assembles candidate blocks for slots this validator leads.
type Builder struct {
	Leader Leader
	Handle string
	Sealer Sealer
	Deps   orchestrator.Deps
}

// New returns a Builder.
func New(leader Leader, sealer Sealer, handle string, deps orchestrator.Deps) *Builder {
	return &Builder{Leader: leader, Handle: handle, Sealer: sealer, Deps: deps}
}

// Candidate is a fully-sealed block plus the post-state dry-running it
// produced -- the exact post-state the orchestrator reaches when it
// later imports this same block.
type Candidate struct {
	Block orchestrator.BlockDoc
	Post  *state.State
	Flow  orchestrator.Flow
}

// Build assembles and seals a block for slot if the local validator
// leads it. The seal covers only the parent hash, the slot and the
// extrinsics root; after sealing, Build dry-runs the full STF pipeline
// against pre and fills in the header's state root and offenders mark,
// which the seal therefore does not cover. It returns
// (nil, false, nil) when the local validator does not lead slot.
func (b *Builder) Build(pre *state.State, slot uint64, parentHash types.Hash, extrinsic orchestrator.Extrinsic) (*Candidate, bool, error) {
	if !b.Leader.IsLeader(pre, slot) {
		return nil, false, nil
	}

	extrinsicsRoot, err := hashExtrinsic(extrinsic)
	if err != nil {
		return nil, false, fmt.Errorf("blockbuilder: hash extrinsic: %w", err)
	}

	preimage := trie.EncodeCanonical([][]byte{
		parentHash.Bytes(),
		uint64Bytes(slot),
		extrinsicsRoot.Bytes(),
	})
	sig, vrfOutput, err := b.Sealer.Sign(b.Handle, preimage)
	if err != nil {
		return nil, false, fmt.Errorf("blockbuilder: seal: %w", err)
	}

	header := orchestrator.Header{
		ParentHash:     parentHash,
		Slot:           slot,
		VRFOutput:      vrfOutput,
		Seal:           sig,
		ExtrinsicsRoot: extrinsicsRoot,
	}
	doc := orchestrator.BlockDoc{Header: header, Extrinsic: extrinsic}

	post, flow, err := orchestrator.Apply(pre, doc, b.Deps)
	if err != nil {
		return nil, false, fmt.Errorf("blockbuilder: dry run: %w", err)
	}
	doc.Header.OffendersMark = flow.OffendersMark
	if len(post.Beta) > 0 {
		doc.Header.StateRoot = post.Beta[len(post.Beta)-1].StateRoot
	}

	logger.Info("built block", "slot", slot, "parent", parentHash.Hex(), "state_root", doc.Header.StateRoot.Hex())
	metrics.BlocksProduced.Inc()

	return &Candidate{Block: doc, Post: post, Flow: flow}, true, nil
}

func hashExtrinsic(e orchestrator.Extrinsic) (types.Hash, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return types.Hash{}, err
	}
	return trie.HashCanonical([][]byte{raw}), nil
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
