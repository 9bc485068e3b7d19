package grandpa

import (
	"testing"

	"github.com/jamnode/jam/types"
)

func hash(b byte) types.Hash {
	var h types.Hash
	h[31] = b
	return h
}

func TestBestChainHeadPicksTallestAuditedBlock(t *testing.T) {
	tree := NewTree()
	tree.Add(CandidateBlock{Hash: hash(1), ParentHash: types.Hash{}, Height: 1, Audited: true})
	tree.Add(CandidateBlock{Hash: hash(2), ParentHash: hash(1), Height: 2, Audited: true})
	tree.Add(CandidateBlock{Hash: hash(3), ParentHash: hash(2), Height: 3, Audited: false})

	best := tree.BestChainHead(types.Hash{})
	if best == nil || best.Hash != hash(2) {
		t.Fatalf("expected best head %v, got %v", hash(2), best)
	}
}

func TestBestChainHeadRequiresFinalizedAncestor(t *testing.T) {
	tree := NewTree()
	tree.Add(CandidateBlock{Hash: hash(1), ParentHash: types.Hash{}, Height: 1, Audited: true})
	tree.Add(CandidateBlock{Hash: hash(2), ParentHash: hash(1), Height: 2, Audited: true})
	// A sibling fork at height 3 descending from an unrelated parent.
	tree.Add(CandidateBlock{Hash: hash(3), ParentHash: hash(9), Height: 3, Audited: true})

	best := tree.BestChainHead(hash(1))
	if best == nil || best.Hash != hash(2) {
		t.Fatalf("expected best head %v (descendant of finalized), got %v", hash(2), best)
	}
}

func TestContainsEquivocationBetweenDetectsSiblingFork(t *testing.T) {
	tree := NewTree()
	tree.Add(CandidateBlock{Hash: hash(1), ParentHash: types.Hash{}, Height: 1, Audited: true})
	tree.Add(CandidateBlock{Hash: hash(2), ParentHash: hash(1), Height: 2, Audited: true})
	tree.Add(CandidateBlock{Hash: hash(3), ParentHash: hash(1), Height: 2, Audited: true})

	if !tree.ContainsEquivocationBetween(hash(2), types.Hash{}) {
		t.Fatal("expected an equivocation between hash(2) and genesis: hash(1) has two children")
	}
}

func TestContainsEquivocationBetweenCleanChain(t *testing.T) {
	tree := NewTree()
	tree.Add(CandidateBlock{Hash: hash(1), ParentHash: types.Hash{}, Height: 1, Audited: true})
	tree.Add(CandidateBlock{Hash: hash(2), ParentHash: hash(1), Height: 2, Audited: true})

	if tree.ContainsEquivocationBetween(hash(2), types.Hash{}) {
		t.Fatal("expected no equivocation on a single-child chain")
	}
}

func TestBestChainHeadReturnsNilWithNoCandidates(t *testing.T) {
	tree := NewTree()
	if got := tree.BestChainHead(types.Hash{}); got != nil {
		t.Fatalf("expected nil best head on an empty tree, got %v", got)
	}
}
