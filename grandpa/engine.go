package grandpa

import (
	"context"
	stded25519 "crypto/ed25519"
	"fmt"
	"time"

	"github.com/jamnode/jam/crypto"
	"github.com/jamnode/jam/log"
	"github.com/jamnode/jam/metrics"
	"github.com/jamnode/jam/state"
	"github.com/jamnode/jam/types"
)

var logger = log.Default().Module("grandpa")

// Config holds the round timing GRANDPA waits before tallying each
// stage. Overridable to 0 for deterministic test harnesses, where a
// zero-duration timer fires on the next tick instead of waiting.
type Config struct {
	PrevoteTimeout   time.Duration
	PrecommitTimeout time.Duration
}

// DefaultConfig returns GRANDPA's production timeouts.
func DefaultConfig() Config {
	return Config{PrevoteTimeout: 4 * time.Second, PrecommitTimeout: 4 * time.Second}
}

// Network is the seam between an Engine and however votes actually reach
// other validators. A full gossip/mempool design is out of scope; this
// interface is the narrow point a real transport plugs into, the same
// way safrole takes RingVerifier/RingCommitter rather than embedding an
// HTTP client directly.
type Network interface {
	Broadcast(v SignedVote) error
	Incoming() <-chan SignedVote
}

// LoopbackNetwork is a single-process Network: every broadcast vote is
// immediately its own incoming vote. It is enough to run a solo-validator
// round end-to-end and is the default for test harnesses.
type LoopbackNetwork struct {
	ch chan SignedVote
}

// NewLoopbackNetwork returns a LoopbackNetwork with a small buffer.
func NewLoopbackNetwork() *LoopbackNetwork {
	return &LoopbackNetwork{ch: make(chan SignedVote, 16)}
}

func (n *LoopbackNetwork) Broadcast(v SignedVote) error {
	n.ch <- v
	return nil
}

func (n *LoopbackNetwork) Incoming() <-chan SignedVote { return n.ch }

// Engine runs GRANDPA rounds against a block tree populated by AddBlock,
// persisting every vote it sends or sees and the finalized pointer to a
// VoteStore so a restart recovers without re-running finalized rounds.
type Engine struct {
	cfg        Config
	store      *VoteStore
	tree       *Tree
	validators []state.ValidatorRecord
	threshold  int
	network    Network

	selfPriv stded25519.PrivateKey
	selfPub  types.Ed25519Pub

	round           uint64
	finalized       types.Hash
	finalizedHeight uint64
}

// New creates an Engine and recovers its finalized pointer from store.
func New(cfg Config, store *VoteStore, validators []state.ValidatorRecord, selfPriv stded25519.PrivateKey, selfPub types.Ed25519Pub, network Network) (*Engine, error) {
	finalized, height, err := store.LoadFinalized()
	if err != nil {
		return nil, fmt.Errorf("grandpa: recover finalized pointer: %w", err)
	}
	if !finalized.IsZero() {
		logger.Info("recovered finalized pointer", "hash", finalized.Hex(), "height", height)
	}
	return &Engine{
		cfg:             cfg,
		store:           store,
		tree:            NewTree(),
		validators:      validators,
		threshold:       (2*len(validators))/3 + 1,
		network:         network,
		selfPriv:        selfPriv,
		selfPub:         selfPub,
		finalized:       finalized,
		finalizedHeight: height,
	}, nil
}

// AddBlock records a candidate block the engine may vote for. A block is
// never voted for until Audited is true.
func (e *Engine) AddBlock(b CandidateBlock) { e.tree.Add(b) }

// BestHead returns the current best chain head per spec §4.9's
// finalized-ancestor / audited / no-equivocation rule, or nil to vote
// nil.
func (e *Engine) BestHead() *CandidateBlock {
	return e.tree.BestChainHead(e.finalized)
}

// Finalized returns the most recently finalized block hash and height.
func (e *Engine) Finalized() (types.Hash, uint64) { return e.finalized, e.finalizedHeight }

func (e *Engine) sign(v Vote) SignedVote {
	sig := crypto.Ed25519Sign(e.selfPriv, CanonicalMessage(v))
	return SignedVote{Vote: v, Voter: e.selfPub, Signature: sig}
}

// RunRound runs one full prevote/precommit round and returns the
// resulting Justification if this round finalized a block, or nil if it
// did not (no supermajority, or the winning candidate failed the
// audited/equivocation check).
func (e *Engine) RunRound(ctx context.Context) (*Justification, error) {
	round := e.round
	logger.Info("starting round", "round", round)
	metrics.GrandpaRound.Set(int64(round))

	head := e.BestHead()
	headVote := voteFor(round, Prevote, head)
	if err := e.castAndStore(headVote); err != nil {
		return nil, err
	}
	if err := e.collectUntil(ctx, e.cfg.PrevoteTimeout, round, Prevote); err != nil {
		return nil, err
	}

	prevotes, err := e.store.VotesForRound(round, Prevote)
	if err != nil {
		return nil, fmt.Errorf("grandpa: read prevotes: %w", err)
	}
	winner, count := tally(prevotes)
	var candidate *CandidateBlock
	if count >= e.threshold && !winner.IsZero() {
		if b, ok := e.tree.Get(winner); ok {
			candidate = &b
		}
	}
	logger.Info("prevote tally", "round", round, "votes", count, "threshold", e.threshold)

	precommitVote := voteFor(round, Precommit, candidate)
	if err := e.castAndStore(precommitVote); err != nil {
		return nil, err
	}
	if err := e.collectUntil(ctx, e.cfg.PrecommitTimeout, round, Precommit); err != nil {
		return nil, err
	}

	precommits, err := e.store.VotesForRound(round, Precommit)
	if err != nil {
		return nil, fmt.Errorf("grandpa: read precommits: %w", err)
	}
	pcWinner, pcCount := tally(precommits)

	e.round++

	if pcCount < e.threshold || pcWinner.IsZero() {
		logger.Info("round did not finalize", "round", round)
		return nil, nil
	}
	b, ok := e.tree.Get(pcWinner)
	if !ok || !b.Audited {
		logger.Info("winning candidate not audited; not finalizing", "round", round, "hash", pcWinner.Hex())
		return nil, nil
	}
	if e.tree.ContainsEquivocationBetween(pcWinner, e.finalized) {
		logger.Warn("winning candidate has equivocation in unfinalized window; not finalizing", "round", round, "hash", pcWinner.Hex())
		metrics.GrandpaEquivocations.Inc()
		return nil, nil
	}

	e.finalized = pcWinner
	e.finalizedHeight = b.Height
	if err := e.store.SaveFinalized(pcWinner, b.Height); err != nil {
		return nil, fmt.Errorf("grandpa: persist finalized: %w", err)
	}
	metrics.GrandpaFinalized.Inc()

	var matching []SignedVote
	for _, v := range precommits {
		if v.Vote.BlockHash == pcWinner {
			matching = append(matching, v)
		}
	}
	logger.Info("finalized block", "round", round, "hash", pcWinner.Hex(), "height", b.Height, "precommits", len(matching))

	return &Justification{Round: round, BlockHash: pcWinner, Height: b.Height, Precommits: matching}, nil
}

func voteFor(round uint64, stage Stage, b *CandidateBlock) Vote {
	if b == nil {
		return Vote{Round: round, Stage: stage}
	}
	return Vote{Round: round, Stage: stage, BlockHash: b.Hash, Height: b.Height, StateRoot: b.StateRoot}
}

func (e *Engine) castAndStore(v Vote) error {
	signed := e.sign(v)
	if err := e.store.PutVote(signed); err != nil {
		return fmt.Errorf("grandpa: persist own vote: %w", err)
	}
	return e.network.Broadcast(signed)
}

// collectUntil drains network.Incoming() into the vote store for
// timeout, matching round and stage; it stops early if ctx is canceled.
func (e *Engine) collectUntil(ctx context.Context, timeout time.Duration, round uint64, stage Stage) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case v := <-e.network.Incoming():
			if v.Vote.Round != round || v.Vote.Stage != stage {
				continue
			}
			if !crypto.Ed25519Verify(v.Voter, CanonicalMessage(v.Vote), v.Signature) {
				logger.Warn("dropping vote with invalid signature", "voter", v.Voter.Hex())
				continue
			}
			if err := e.store.PutVote(v); err != nil {
				return fmt.Errorf("grandpa: persist received vote: %w", err)
			}
		}
	}
}

// tally returns the block hash with the most votes and its count,
// breaking ties in favor of whichever hash was seen first. An empty
// votes slice returns the zero hash and count -1.
func tally(votes []SignedVote) (types.Hash, int) {
	counts := make(map[types.Hash]int)
	var order []types.Hash
	for _, v := range votes {
		if _, seen := counts[v.Vote.BlockHash]; !seen {
			order = append(order, v.Vote.BlockHash)
		}
		counts[v.Vote.BlockHash]++
	}
	var winner types.Hash
	best := -1
	for _, h := range order {
		if counts[h] > best {
			winner = h
			best = counts[h]
		}
	}
	return winner, best
}
