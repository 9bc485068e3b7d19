package grandpa

import "github.com/jamnode/jam/types"

// CandidateBlock is the subset of a block's identity GRANDPA reasons
// about: its position in the tree and whether the orchestrator has
// admitted it (audited) yet. A block is never voted for until it is
// audited -- an unaudited block is still being assembled or checked.
type CandidateBlock struct {
	Hash       types.Hash
	ParentHash types.Hash
	Height     uint64
	StateRoot  types.Hash
	Audited    bool
}

// Tree tracks every candidate block GRANDPA has been told about, and the
// parent/child edges between them, so it can walk ancestor chains without
// consulting the orchestrator's canonical history on every vote.
type Tree struct {
	blocks   map[types.Hash]CandidateBlock
	children map[types.Hash][]types.Hash
}

// NewTree returns an empty Tree.
func NewTree() *Tree {
	return &Tree{
		blocks:   make(map[types.Hash]CandidateBlock),
		children: make(map[types.Hash][]types.Hash),
	}
}

// Add records b in the tree. Re-adding an already-known hash is a no-op,
// matching the idempotent block-import behavior blocks are gossiped with.
func (t *Tree) Add(b CandidateBlock) {
	if _, ok := t.blocks[b.Hash]; ok {
		return
	}
	t.blocks[b.Hash] = b
	t.children[b.ParentHash] = append(t.children[b.ParentHash], b.Hash)
}

// Get returns the recorded block for hash, if any.
func (t *Tree) Get(hash types.Hash) (CandidateBlock, bool) {
	b, ok := t.blocks[hash]
	return b, ok
}

// ContainsFinalizedAncestor reports whether finalized is an ancestor of
// hash (or whether finalized is the zero hash, meaning nothing is
// finalized yet and every block qualifies).
func (t *Tree) ContainsFinalizedAncestor(hash, finalized types.Hash) bool {
	if finalized.IsZero() {
		return true
	}
	cur := hash
	for {
		if cur == finalized {
			return true
		}
		b, ok := t.blocks[cur]
		if !ok || b.ParentHash.IsZero() {
			return false
		}
		cur = b.ParentHash
	}
}

// ContainsEquivocationBetween walks hash's ancestors down to (but
// excluding) finalized, and reports whether any ancestor's parent has
// more than one recorded child in that unfinalized window -- i.e. a
// sibling fork exists that GRANDPA has not yet resolved, disqualifying
// hash from being voted for.
func (t *Tree) ContainsEquivocationBetween(hash, finalized types.Hash) bool {
	cur := hash
	for cur != finalized && !cur.IsZero() {
		b, ok := t.blocks[cur]
		if !ok {
			return false
		}
		if !b.ParentHash.IsZero() {
			if len(t.children[b.ParentHash]) > 1 {
				return true
			}
		}
		cur = b.ParentHash
	}
	return false
}

// BestChainHead picks, among every audited block that descends from
// finalized with no equivocation in the unfinalized window, the one with
// the greatest height (ties broken by the lexicographically greater
// hash, for a deterministic total order). It returns nil if no candidate
// qualifies, meaning the round should vote nil.
func (t *Tree) BestChainHead(finalized types.Hash) *CandidateBlock {
	var best *CandidateBlock
	for _, b := range t.blocks {
		if !b.Audited {
			continue
		}
		if !t.ContainsFinalizedAncestor(b.Hash, finalized) {
			continue
		}
		if t.ContainsEquivocationBetween(b.Hash, finalized) {
			continue
		}
		b := b
		if best == nil || b.Height > best.Height || (b.Height == best.Height && best.Hash.Less(b.Hash)) {
			best = &b
		}
	}
	return best
}
