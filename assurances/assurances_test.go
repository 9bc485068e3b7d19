package assurances

import (
	"testing"

	"github.com/jamnode/jam/state"
	"github.com/jamnode/jam/staterr"
	"github.com/jamnode/jam/types"
)

func alwaysValid(types.Ed25519Pub, []byte, types.Ed25519Sig) bool { return true }
func alwaysInvalid(types.Ed25519Pub, []byte, types.Ed25519Sig) bool { return false }

func newKappa(n int) []state.ValidatorRecord {
	return make([]state.ValidatorRecord, n)
}

func TestApplyEmptyAssurancesShortCircuits(t *testing.T) {
	s := state.New(1)
	out, err := Apply(s, Input{}, newKappa(3), alwaysValid)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out.Reported != nil {
		t.Fatal("expected empty reported set")
	}
}

func TestApplySweepsStaleAssignments(t *testing.T) {
	s := state.New(1)
	s.AvailAssignments[0] = &state.AvailAssignment{Timeout: 5}
	_, _ = Apply(s, Input{Slot: 10}, newKappa(3), alwaysValid)
	if s.AvailAssignments[0] != nil {
		t.Fatal("expired assignment should be swept")
	}
}

func TestApplyRejectsBadParent(t *testing.T) {
	s := state.New(1)
	in := Input{
		Parent:     types.Hash{1},
		Assurances: []Assurance{{ValidatorIndex: 0, Anchor: types.Hash{2}, Bitfield: []bool{false}}},
	}
	_, err := Apply(s, in, newKappa(3), alwaysValid)
	if !staterr.Is(err, staterr.ErrBadAttestationParent) {
		t.Fatalf("expected bad_attestation_parent, got %v", err)
	}
}

func TestApplyRejectsUnsortedValidators(t *testing.T) {
	s := state.New(1)
	in := Input{
		Assurances: []Assurance{
			{ValidatorIndex: 1, Bitfield: []bool{false}},
			{ValidatorIndex: 0, Bitfield: []bool{false}},
		},
	}
	_, err := Apply(s, in, newKappa(3), alwaysValid)
	if !staterr.Is(err, staterr.ErrNotSortedOrUniqueAssurers) {
		t.Fatalf("expected not_sorted_or_unique_assurers, got %v", err)
	}
}

func TestApplyRejectsBadSignature(t *testing.T) {
	s := state.New(1)
	in := Input{Assurances: []Assurance{{ValidatorIndex: 0, Bitfield: []bool{false}}}}
	_, err := Apply(s, in, newKappa(3), alwaysInvalid)
	if !staterr.Is(err, staterr.ErrBadSignature) {
		t.Fatalf("expected bad_signature, got %v", err)
	}
}

func TestApplyRejectsCoreNotEngaged(t *testing.T) {
	s := state.New(1)
	in := Input{Assurances: []Assurance{{ValidatorIndex: 0, Bitfield: []bool{true}}}}
	_, err := Apply(s, in, newKappa(3), alwaysValid)
	if !staterr.Is(err, staterr.ErrCoreNotEngaged) {
		t.Fatalf("expected core_not_engaged, got %v", err)
	}
}

func TestApplyPromotesAtSupermajority(t *testing.T) {
	s := state.New(1)
	s.AvailAssignments[0] = &state.AvailAssignment{Timeout: 100}

	kappa := newKappa(3) // threshold = floor(2*3/3)+1 = 3
	in := Input{
		Assurances: []Assurance{
			{ValidatorIndex: 0, Bitfield: []bool{true}},
			{ValidatorIndex: 1, Bitfield: []bool{true}},
			{ValidatorIndex: 2, Bitfield: []bool{true}},
		},
	}
	out, err := Apply(s, in, kappa, alwaysValid)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out.Reported) != 1 || out.Reported[0] != 0 {
		t.Fatalf("Reported = %v, want [0]", out.Reported)
	}
}

func TestApplyBelowThresholdNotReported(t *testing.T) {
	s := state.New(1)
	s.AvailAssignments[0] = &state.AvailAssignment{Timeout: 100}

	kappa := newKappa(3)
	in := Input{
		Assurances: []Assurance{
			{ValidatorIndex: 0, Bitfield: []bool{true}},
		},
	}
	out, err := Apply(s, in, kappa, alwaysValid)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out.Reported) != 0 {
		t.Fatal("single assurance should not clear supermajority for 3 validators")
	}
}
