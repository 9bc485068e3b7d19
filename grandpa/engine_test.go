package grandpa

import (
	"context"
	"testing"
	"time"

	"github.com/jamnode/jam/crypto"
	"github.com/jamnode/jam/state"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := OpenVoteStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenVoteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	pub, priv, err := crypto.GenerateEd25519Key()
	if err != nil {
		t.Fatalf("GenerateEd25519Key: %v", err)
	}
	validators := []state.ValidatorRecord{{Ed25519: pub}}
	cfg := Config{PrevoteTimeout: 20 * time.Millisecond, PrecommitTimeout: 20 * time.Millisecond}

	engine, err := New(cfg, store, validators, priv, pub, NewLoopbackNetwork())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return engine
}

func TestRunRoundFinalizesAuditedCandidate(t *testing.T) {
	engine := newTestEngine(t)
	engine.AddBlock(CandidateBlock{Hash: hash(1), Height: 1, Audited: true})

	just, err := engine.RunRound(context.Background())
	if err != nil {
		t.Fatalf("RunRound: %v", err)
	}
	if just == nil {
		t.Fatal("expected a justification for a lone validator's own candidate")
	}
	if just.BlockHash != hash(1) {
		t.Fatalf("finalized %v, want %v", just.BlockHash, hash(1))
	}
	if finalized, height := engine.Finalized(); finalized != hash(1) || height != 1 {
		t.Fatalf("engine.Finalized() = (%v, %d), want (%v, 1)", finalized, height, hash(1))
	}
}

func TestRunRoundDoesNotFinalizeUnauditedCandidate(t *testing.T) {
	engine := newTestEngine(t)
	engine.AddBlock(CandidateBlock{Hash: hash(1), Height: 1, Audited: false})

	just, err := engine.RunRound(context.Background())
	if err != nil {
		t.Fatalf("RunRound: %v", err)
	}
	if just != nil {
		t.Fatal("expected no justification: the only candidate is unaudited")
	}
}

func TestRunRoundVotesNilWithNoCandidates(t *testing.T) {
	engine := newTestEngine(t)

	just, err := engine.RunRound(context.Background())
	if err != nil {
		t.Fatalf("RunRound: %v", err)
	}
	if just != nil {
		t.Fatal("expected no justification with an empty tree")
	}
}

func TestRunRoundAdvancesRoundNumber(t *testing.T) {
	engine := newTestEngine(t)
	engine.AddBlock(CandidateBlock{Hash: hash(1), Height: 1, Audited: true})

	if _, err := engine.RunRound(context.Background()); err != nil {
		t.Fatalf("RunRound: %v", err)
	}
	if engine.round != 1 {
		t.Fatalf("round = %d, want 1", engine.round)
	}
}

func TestTallyPicksHighestCount(t *testing.T) {
	votes := []SignedVote{
		{Vote: Vote{BlockHash: hash(1)}},
		{Vote: Vote{BlockHash: hash(2)}},
		{Vote: Vote{BlockHash: hash(1)}},
	}
	winner, count := tally(votes)
	if winner != hash(1) || count != 2 {
		t.Fatalf("tally() = (%v, %d), want (%v, 2)", winner, count, hash(1))
	}
}
