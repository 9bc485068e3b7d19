package orchestrator

import (
	"testing"

	"github.com/jamnode/jam/state"
)

func TestHistoryStoreRoundTrip(t *testing.T) {
	store, err := openHistoryStore(t.TempDir())
	if err != nil {
		t.Fatalf("openHistoryStore: %v", err)
	}
	defer store.Close()

	s := state.New(1)
	s.Tau = 5
	if err := store.PutSnapshot(s); err != nil {
		t.Fatalf("PutSnapshot: %v", err)
	}

	got, err := store.SnapshotAt(5)
	if err != nil {
		t.Fatalf("SnapshotAt: %v", err)
	}
	if got == nil || got.Tau != 5 {
		t.Fatalf("SnapshotAt(5) = %+v, want Tau=5", got)
	}
}

func TestHistoryStoreMissingSlotReturnsNil(t *testing.T) {
	store, err := openHistoryStore(t.TempDir())
	if err != nil {
		t.Fatalf("openHistoryStore: %v", err)
	}
	defer store.Close()

	got, err := store.SnapshotAt(99)
	if err != nil {
		t.Fatalf("SnapshotAt: %v", err)
	}
	if got != nil {
		t.Fatalf("SnapshotAt(99) = %+v, want nil", got)
	}
}
