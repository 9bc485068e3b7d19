package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/jamnode/jam/state"
)

// historyStore archives a canonical-state snapshot after every block that
// commits, keyed by slot. The flock-guarded JSON document in stateFileName
// remains the single source of truth an Orchestrator loads from on
// restart; this store exists alongside it so the node can answer "what
// was canonical state at slot N" without replaying the whole chain --
// the embedded-KV-store half of the canonical-state document the node
// keeps, next to flock's atomic-rewrite half.
type historyStore struct {
	db *pebble.DB
}

func openHistoryStore(dir string) (*historyStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: open history store: %w", err)
	}
	return &historyStore{db: db}, nil
}

func (h *historyStore) Close() error { return h.db.Close() }

func snapshotKey(slot uint64) []byte {
	return []byte(fmt.Sprintf("snapshot/%020d", slot))
}

func (h *historyStore) PutSnapshot(s *state.State) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal snapshot: %w", err)
	}
	return h.db.Set(snapshotKey(s.Tau), raw, pebble.Sync)
}

func (h *historyStore) SnapshotAt(slot uint64) (*state.State, error) {
	raw, closer, err := h.db.Get(snapshotKey(slot))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("orchestrator: read snapshot: %w", err)
	}
	defer closer.Close()

	s := &state.State{}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("orchestrator: decode snapshot: %w", err)
	}
	return s, nil
}
