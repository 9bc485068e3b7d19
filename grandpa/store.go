package grandpa

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/jamnode/jam/types"
)

// VoteStore persists every vote an Engine sends or receives, plus the
// finalized pointer, in a pebble key-value store so a restarted node
// recovers both without needing any peer's help -- the same role the
// teacher's original_source/ counterpart gives a SQLite file.
//
// Keys are structured so a round+stage's votes are a contiguous range:
// "vote/{round:020d}/{stage}/{voter_hex}" -> json(SignedVote)
// "finalized" -> json({hash, height})
type VoteStore struct {
	db *pebble.DB
}

// OpenVoteStore opens (creating if absent) a pebble database at dir.
func OpenVoteStore(dir string) (*VoteStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("grandpa: open vote store: %w", err)
	}
	return &VoteStore{db: db}, nil
}

// Close releases the underlying pebble handle.
func (s *VoteStore) Close() error {
	return s.db.Close()
}

func voteKey(round uint64, stage Stage, voter types.Ed25519Pub) []byte {
	return []byte(fmt.Sprintf("vote/%020d/%s/%s", round, stage, voter.Hex()))
}

func roundStagePrefix(round uint64, stage Stage) []byte {
	return []byte(fmt.Sprintf("vote/%020d/%s/", round, stage))
}

// PutVote persists a single vote, keyed so it never collides with a
// different voter's vote in the same round/stage (a later write from the
// same voter in the same round/stage overwrites its own prior vote,
// which matches "only my latest opinion counts").
func (s *VoteStore) PutVote(v SignedVote) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("grandpa: marshal vote: %w", err)
	}
	return s.db.Set(voteKey(v.Vote.Round, v.Vote.Stage, v.Voter), raw, pebble.Sync)
}

// VotesForRound returns every distinct voter's vote recorded for round
// and stage, in key order.
func (s *VoteStore) VotesForRound(round uint64, stage Stage) ([]SignedVote, error) {
	prefix := roundStagePrefix(round, stage)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: append(append([]byte{}, prefix...), 0xff),
	})
	if err != nil {
		return nil, fmt.Errorf("grandpa: iterate votes: %w", err)
	}
	defer iter.Close()

	var votes []SignedVote
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var v SignedVote
		if err := json.Unmarshal(iter.Value(), &v); err != nil {
			return nil, fmt.Errorf("grandpa: decode vote: %w", err)
		}
		votes = append(votes, v)
	}
	return votes, nil
}

type finalizedRecord struct {
	Hash   types.Hash `json:"hash"`
	Height uint64     `json:"height"`
}

const finalizedKey = "finalized"

// SaveFinalized records the current finalized block pointer.
func (s *VoteStore) SaveFinalized(hash types.Hash, height uint64) error {
	raw, err := json.Marshal(finalizedRecord{Hash: hash, Height: height})
	if err != nil {
		return fmt.Errorf("grandpa: marshal finalized: %w", err)
	}
	return s.db.Set([]byte(finalizedKey), raw, pebble.Sync)
}

// LoadFinalized returns the previously-saved finalized pointer, or the
// zero hash and height 0 if none has been recorded yet (genesis).
func (s *VoteStore) LoadFinalized() (types.Hash, uint64, error) {
	raw, closer, err := s.db.Get([]byte(finalizedKey))
	if err != nil {
		if err == pebble.ErrNotFound {
			return types.Hash{}, 0, nil
		}
		return types.Hash{}, 0, fmt.Errorf("grandpa: read finalized: %w", err)
	}
	defer closer.Close()

	var rec finalizedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return types.Hash{}, 0, fmt.Errorf("grandpa: decode finalized: %w", err)
	}
	return rec.Hash, rec.Height, nil
}
