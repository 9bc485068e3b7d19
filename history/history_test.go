package history

import (
	"testing"

	"github.com/jamnode/jam/state"
	"github.com/jamnode/jam/types"
)

func hash(b byte) types.Hash {
	var h types.Hash
	h[0] = b
	return h
}

func TestApplyAppendsEntry(t *testing.T) {
	s := state.New(1)
	Apply(s, Input{
		HeaderHash:      hash(1),
		ParentStateRoot: hash(2),
		AccumulateRoot:  hash(3),
	})

	if len(s.Beta) != 1 {
		t.Fatalf("Beta len = %d, want 1", len(s.Beta))
	}
	if s.Beta[0].HeaderHash != hash(1) {
		t.Fatal("new entry should carry the given header hash")
	}
}

func TestApplyBackfillsPreviousStateRoot(t *testing.T) {
	s := state.New(1)
	Apply(s, Input{HeaderHash: hash(1), ParentStateRoot: hash(0), AccumulateRoot: hash(3)})
	Apply(s, Input{HeaderHash: hash(4), ParentStateRoot: hash(5), AccumulateRoot: hash(6)})

	if s.Beta[0].StateRoot != hash(5) {
		t.Fatal("the first entry's state root should be backfilled by the second call's parent_state_root")
	}
}

func TestApplyTrimsToEight(t *testing.T) {
	s := state.New(1)
	for i := byte(0); i < 10; i++ {
		Apply(s, Input{HeaderHash: hash(i), ParentStateRoot: hash(i), AccumulateRoot: hash(i)})
	}
	if len(s.Beta) != state.MaxBetaLength {
		t.Fatalf("Beta len = %d, want %d", len(s.Beta), state.MaxBetaLength)
	}
	if s.Beta[len(s.Beta)-1].HeaderHash != hash(9) {
		t.Fatal("trimming should keep the most recent entries")
	}
}

func TestApplyStateRootDependsOnMMR(t *testing.T) {
	s1 := state.New(1)
	Apply(s1, Input{HeaderHash: hash(1), ParentStateRoot: hash(0), AccumulateRoot: hash(3)})

	s2 := state.New(1)
	Apply(s2, Input{HeaderHash: hash(1), ParentStateRoot: hash(0), AccumulateRoot: hash(99)})

	if s1.Beta[0].StateRoot == s2.Beta[0].StateRoot {
		t.Fatal("different accumulate roots should yield different state roots")
	}
}
