// Package safrole implements the C4 state-transition function: entropy
// rotation, ticket admission, and epoch transition driving block-seal
// leadership selection.
package safrole

import (
	"encoding/binary"
	"sort"

	"github.com/jamnode/jam/crypto"
	"github.com/jamnode/jam/log"
	"github.com/jamnode/jam/metrics"
	"github.com/jamnode/jam/state"
	"github.com/jamnode/jam/staterr"
	"github.com/jamnode/jam/types"
)

var logger = log.Default().Module("safrole")

// RingVerifier batch-verifies ring-VRF ticket proofs against a commitment
// and ring set, returning per-ticket randomness outputs in input order.
// It returns staterr.ErrRustServerBatchVerifyFail if the underlying
// verification service is unreachable, and staterr.ErrBadTicketProof if
// any individual proof fails.
type RingVerifier interface {
	BatchVerify(commitment types.Hash, ring []state.ValidatorRecord, entropy types.Hash, tickets []state.Ticket) ([]types.Hash, error)
}

// RingCommitter computes a fresh ring commitment for a validator set via
// the Bandersnatch service.
type RingCommitter interface {
	Commit(ring []state.ValidatorRecord) (types.Hash, error)
}

// Input is the per-block input to the Safrole STF.
type Input struct {
	Slot       uint64
	HV         types.Hash // VRF output hash from the block seal
	Tickets    []state.Ticket
}

// Output carries the header marks produced this block.
type Output struct {
	EpochMark   *EpochMark
	TicketsMark []state.TicketMark
}

// EpochMark is emitted when the epoch changes.
type EpochMark struct {
	Entropy        types.Hash
	TicketsEntropy types.Hash
	Validators     []state.ValidatorRecord
}

// Apply runs the Safrole STF against s for the block at in.Slot, given the
// seal's VRF output HV.
func Apply(s *state.State, in Input, verifier RingVerifier, committer RingCommitter) (Output, error) {
	if in.Slot <= s.Tau {
		return Output{}, staterr.ErrBadSlot
	}

	prevEpoch := s.Epoch(s.Tau)
	prevPhase := s.SlotPhase(s.Tau)
	s.Tau = in.Slot

	// Entropy rotation: eta'_0 = H(eta_0 || HV).
	s.Eta[0] = crypto.Blake2b256Hash(s.Eta[0][:], in.HV[:])

	newPhase := s.SlotPhase(in.Slot)
	newEpoch := s.Epoch(in.Slot)

	if newPhase < s.Params.TicketSubmissionCut {
		if err := admitTickets(s, in.Tickets, verifier); err != nil {
			return Output{}, err
		}
	} else if len(in.Tickets) > 0 {
		return Output{}, staterr.ErrUnexpectedTicket
	}

	var out Output
	if newEpoch > prevEpoch {
		mark, err := transitionEpoch(s, committer, prevEpoch, newEpoch, prevPhase)
		if err != nil {
			return Output{}, err
		}
		out.EpochMark = mark
		metrics.EpochTransitions.Inc()
		if !s.GammaS.Ticketed() {
			metrics.FallbackSeals.Inc()
		}
		logger.Info("epoch transition", "epoch", newEpoch, "ticketed", s.GammaS.Ticketed())
	} else if newPhase >= s.Params.TicketSubmissionCut && prevPhase < s.Params.TicketSubmissionCut &&
		uint32(len(s.GammaA)) == s.Params.EpochLength {
		out.TicketsMark = zigZag(s.GammaA)
	}

	metrics.ChainHeight.Set(int64(in.Slot))
	return out, nil
}

func admitTickets(s *state.State, tickets []state.Ticket, verifier RingVerifier) error {
	if len(tickets) == 0 {
		return nil
	}
	for _, t := range tickets {
		if t.Index >= s.Params.TicketAttemptsPerNode {
			return staterr.ErrBadTicketAttempt
		}
	}

	randomness, err := verifier.BatchVerify(s.GammaZ, s.GammaK, s.Eta[2], tickets)
	if err != nil {
		if err == staterr.ErrRustServerBatchVerifyFail {
			return staterr.ErrRustServerBatchVerifyFail
		}
		return staterr.ErrBadTicketProof
	}
	if len(randomness) != len(tickets) {
		return staterr.ErrBadTicketProof
	}

	existing := make(map[types.Hash]struct{}, len(s.GammaA))
	for _, t := range s.GammaA {
		existing[t.Randomness] = struct{}{}
	}

	seen := make(map[types.Hash]struct{}, len(tickets))
	for i, t := range tickets {
		r := randomness[i]
		if _, dup := seen[r]; dup {
			return staterr.ErrDuplicateTicket
		}
		if _, dup := existing[r]; dup {
			return staterr.ErrDuplicateTicket
		}
		if i > 0 && !randomness[i-1].Less(r) {
			return staterr.ErrBadTicketOrder
		}
		seen[r] = struct{}{}
		t.Randomness = r
		s.GammaA = append(s.GammaA, t)
		metrics.TicketsSubmitted.Inc()
	}

	sort.Slice(s.GammaA, func(i, j int) bool { return s.GammaA[i].Randomness.Less(s.GammaA[j].Randomness) })
	if uint32(len(s.GammaA)) > s.Params.EpochLength {
		s.GammaA = s.GammaA[:s.Params.EpochLength]
	}
	return nil
}

func transitionEpoch(s *state.State, committer RingCommitter, prevEpoch, newEpoch uint64, prevPhase uint64) (*EpochMark, error) {
	preEta0, preEta1 := s.Eta[0], s.Eta[1]

	s.Lambda = s.Kappa
	s.Kappa = s.GammaK
	s.GammaK = replaceOffendersWithPadding(s.Iota, s.Psi.Offenders)

	commitment, err := committer.Commit(nonPaddingBandersnatch(s.GammaK))
	if err != nil {
		return nil, staterr.ErrRustServerBatchVerifyFail
	}
	s.GammaZ = commitment

	immediate := newEpoch == prevEpoch+1
	saturated := uint32(len(s.GammaA)) == s.Params.EpochLength
	if immediate && saturated && prevPhase >= uint64(s.Params.TicketSubmissionCut) {
		s.GammaS = state.SealKeys{Tickets: zigZag(s.GammaA)}
	} else {
		s.GammaS = state.SealKeys{Keys: fallbackKeys(s.Eta[2], s.Kappa, s.Params.EpochLength)}
	}

	s.GammaA = nil

	return &EpochMark{
		Entropy:        preEta0,
		TicketsEntropy: preEta1,
		Validators:     append([]state.ValidatorRecord(nil), s.GammaK...),
	}, nil
}

// replaceOffendersWithPadding zeroes out any candidate whose ed25519 key is
// a known offender, leaving a padding (zero) record in its place.
func replaceOffendersWithPadding(candidates []state.ValidatorRecord, offenders []types.Ed25519Pub) []state.ValidatorRecord {
	offSet := make(map[types.Ed25519Pub]struct{}, len(offenders))
	for _, o := range offenders {
		offSet[o] = struct{}{}
	}
	out := make([]state.ValidatorRecord, len(candidates))
	for i, c := range candidates {
		if _, bad := offSet[c.Ed25519]; bad {
			out[i] = state.ValidatorRecord{}
			continue
		}
		out[i] = c
	}
	return out
}

func nonPaddingBandersnatch(records []state.ValidatorRecord) []state.ValidatorRecord {
	out := make([]state.ValidatorRecord, 0, len(records))
	for _, r := range records {
		if !r.IsPadding() {
			out = append(out, r)
		}
	}
	return out
}

// zigZag interleaves gamma_a alternately from head and tail, producing the
// ticket-mark / ticketed-seal-key sequence.
func zigZag(tickets []state.Ticket) []state.TicketMark {
	out := make([]state.TicketMark, len(tickets))
	lo, hi := 0, len(tickets)-1
	for i := 0; i < len(tickets); i++ {
		var t state.Ticket
		if i%2 == 0 {
			t = tickets[lo]
			lo++
		} else {
			t = tickets[hi]
			hi--
		}
		out[i] = state.TicketMark{ID: t.Randomness, Attempt: t.Index, Signer: t.Signer}
	}
	return out
}

// fallbackKeys selects count validator bandersnatch keys via
// blake2b(eta2 || le32(i)) mod |kappa|, used when the epoch was not
// saturated with tickets.
func fallbackKeys(eta2 types.Hash, kappa []state.ValidatorRecord, count uint32) []types.BandersnatchPub {
	out := make([]types.BandersnatchPub, count)
	var idxBuf [4]byte
	for i := uint32(0); i < count; i++ {
		binary.LittleEndian.PutUint32(idxBuf[:], i)
		h := crypto.Blake2b256Hash(eta2[:], idxBuf[:])
		idx := selectIndex(h, len(kappa))
		out[i] = kappa[idx].Bandersnatch
	}
	return out
}

func selectIndex(h types.Hash, mod int) int {
	if mod == 0 {
		return 0
	}
	var v uint64
	for _, b := range h[:8] {
		v = v<<8 | uint64(b)
	}
	return int(v % uint64(mod))
}
