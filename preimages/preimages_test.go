package preimages

import (
	"testing"

	"github.com/jamnode/jam/crypto"
	"github.com/jamnode/jam/state"
	"github.com/jamnode/jam/staterr"
)

func solicit(s *state.State, requester uint32, blob []byte) {
	acc := s.Account(requester)
	digest := crypto.Blake2b256Hash(blob)
	key := state.LookupMetaKey{Hash: digest, Length: uint32(len(blob))}
	acc.LookupMeta[key] = nil
}

func TestApplyAdmitsSolicitedPreimage(t *testing.T) {
	s := state.New(1)
	blob := []byte("hello")
	solicit(s, 1, blob)

	err := Apply(s, Input{Slot: 10, Preimages: []Item{{Requester: 1, Blob: blob}}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	acc := s.Account(1)
	digest := crypto.Blake2b256Hash(blob)
	if _, ok := acc.Preimages[digest]; !ok {
		t.Fatal("preimage should be stored under its hash")
	}
	if acc.ProvidedCount != 1 || acc.ProvidedSize != uint64(len(blob)) {
		t.Fatal("provided stats should be updated")
	}
}

func TestApplyRejectsUnsolicited(t *testing.T) {
	s := state.New(1)
	s.Account(1) // exists, but no lookup_meta entry

	err := Apply(s, Input{Preimages: []Item{{Requester: 1, Blob: []byte("x")}}})
	if !staterr.Is(err, staterr.ErrPreimageUnneeded) {
		t.Fatalf("expected preimage_unneeded, got %v", err)
	}
}

func TestApplyRejectsUnsortedRequesters(t *testing.T) {
	s := state.New(1)
	solicit(s, 1, []byte("a"))
	solicit(s, 2, []byte("b"))

	err := Apply(s, Input{Preimages: []Item{
		{Requester: 2, Blob: []byte("b")},
		{Requester: 1, Blob: []byte("a")},
	}})
	if !staterr.Is(err, staterr.ErrPreimagesNotSortedUnique) {
		t.Fatalf("expected preimages_not_sorted_unique, got %v", err)
	}
}

func TestApplyRejectsDuplicateHash(t *testing.T) {
	s := state.New(1)
	solicit(s, 1, []byte("a"))

	err := Apply(s, Input{Preimages: []Item{
		{Requester: 1, Blob: []byte("a")},
		{Requester: 1, Blob: []byte("a")},
	}})
	if !staterr.Is(err, staterr.ErrPreimagesNotSortedUnique) {
		t.Fatalf("expected preimages_not_sorted_unique, got %v", err)
	}
}

func TestApplyLeavesStateUnchangedOnFailure(t *testing.T) {
	s := state.New(1)
	solicit(s, 1, []byte("a"))

	_ = Apply(s, Input{Preimages: []Item{
		{Requester: 1, Blob: []byte("a")},
		{Requester: 1, Blob: []byte("a")},
	}})

	if len(s.Account(1).Preimages) != 0 {
		t.Fatal("state should be unchanged after a validation failure")
	}
}
