package safrole

import (
	"testing"

	"github.com/jamnode/jam/state"
	"github.com/jamnode/jam/staterr"
	"github.com/jamnode/jam/types"
)

type fakeVerifier struct {
	outputs []types.Hash
	err     error
}

func (f fakeVerifier) BatchVerify(types.Hash, []state.ValidatorRecord, types.Hash, []state.Ticket) ([]types.Hash, error) {
	return f.outputs, f.err
}

type fakeCommitter struct{ commitment types.Hash }

func (f fakeCommitter) Commit([]state.ValidatorRecord) (types.Hash, error) { return f.commitment, nil }

func hash(b byte) types.Hash {
	var h types.Hash
	h[0] = b
	return h
}

func TestApplyRejectsNonIncreasingSlot(t *testing.T) {
	s := state.New(1)
	s.Tau = 10
	_, err := Apply(s, Input{Slot: 10}, fakeVerifier{}, fakeCommitter{})
	if !staterr.Is(err, staterr.ErrBadSlot) {
		t.Fatalf("expected bad_slot, got %v", err)
	}
}

func TestApplyRotatesEntropy(t *testing.T) {
	s := state.New(1)
	before := s.Eta[0]
	_, err := Apply(s, Input{Slot: 1, HV: hash(7)}, fakeVerifier{}, fakeCommitter{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if s.Eta[0] == before {
		t.Fatal("eta[0] should rotate on every block")
	}
}

func TestApplyAdmitsTickets(t *testing.T) {
	s := state.New(1)
	s.Params.EpochLength = 600
	s.Params.TicketSubmissionCut = 500

	verifier := fakeVerifier{outputs: []types.Hash{hash(1), hash(2)}}
	tickets := []state.Ticket{{Index: 0}, {Index: 1}}

	_, err := Apply(s, Input{Slot: 1, Tickets: tickets}, verifier, fakeCommitter{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(s.GammaA) != 2 {
		t.Fatalf("GammaA len = %d, want 2", len(s.GammaA))
	}
}

func TestApplyRejectsBadTicketAttempt(t *testing.T) {
	s := state.New(1)
	tickets := []state.Ticket{{Index: 99}}
	_, err := Apply(s, Input{Slot: 1, Tickets: tickets}, fakeVerifier{}, fakeCommitter{})
	if !staterr.Is(err, staterr.ErrBadTicketAttempt) {
		t.Fatalf("expected bad_ticket_attempt, got %v", err)
	}
}

func TestApplyRejectsUnexpectedTicketAfterCutoff(t *testing.T) {
	s := state.New(1)
	s.Params.TicketSubmissionCut = 0
	tickets := []state.Ticket{{Index: 0}}
	_, err := Apply(s, Input{Slot: 1, Tickets: tickets}, fakeVerifier{outputs: []types.Hash{hash(1)}}, fakeCommitter{})
	if !staterr.Is(err, staterr.ErrUnexpectedTicket) {
		t.Fatalf("expected unexpected_ticket, got %v", err)
	}
}

func TestApplyDetectsDuplicateTicketOutput(t *testing.T) {
	s := state.New(1)
	verifier := fakeVerifier{outputs: []types.Hash{hash(1), hash(1)}}
	tickets := []state.Ticket{{Index: 0}, {Index: 1}}
	_, err := Apply(s, Input{Slot: 1, Tickets: tickets}, verifier, fakeCommitter{})
	if !staterr.Is(err, staterr.ErrDuplicateTicket) {
		t.Fatalf("expected duplicate_ticket, got %v", err)
	}
}

func TestApplyEpochTransitionRotatesValidatorSets(t *testing.T) {
	s := state.New(1)
	s.Params.EpochLength = 10
	s.Kappa = []state.ValidatorRecord{{}}
	s.GammaK = []state.ValidatorRecord{{}}
	s.Iota = []state.ValidatorRecord{{}}

	out, err := Apply(s, Input{Slot: 20}, fakeVerifier{}, fakeCommitter{commitment: hash(5)})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.EpochMark == nil {
		t.Fatal("expected an epoch mark on epoch transition")
	}
	if s.GammaZ != hash(5) {
		t.Fatal("gamma_z should be set from the committer")
	}
}

func TestZigZagInterleavesHeadAndTail(t *testing.T) {
	tickets := []state.Ticket{
		{Randomness: hash(1)}, {Randomness: hash(2)}, {Randomness: hash(3)}, {Randomness: hash(4)},
	}
	marks := zigZag(tickets)
	want := []types.Hash{hash(1), hash(4), hash(2), hash(3)}
	for i, m := range marks {
		if m.ID != want[i] {
			t.Fatalf("marks[%d] = %v, want %v", i, m.ID, want[i])
		}
	}
}
