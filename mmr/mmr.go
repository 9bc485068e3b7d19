// Package mmr implements an append-only Merkle Mountain Range used to
// accumulate the accumulate roots of the chain's recent blocks. Peaks are
// combined with keccak-256; there is no sha-256 fallback mode.
package mmr

import (
	"github.com/jamnode/jam/crypto"
	"github.com/jamnode/jam/state"
	"github.com/jamnode/jam/types"
)

// Append adds leaf to the MMR and returns the updated structure. The
// original mmr is not mutated.
//
// The append rule: hash the leaf, then walk peak heights from 0 upward;
// while the peak at the current height is occupied, combine it with the
// running hash via keccak256(peak || running) and clear that peak; place
// the final running hash at the first free height.
func Append(m state.MMR, leaf types.Hash) state.MMR {
	out := m.Clone()
	out.Count++

	running := leaf
	height := 0
	for {
		if height >= len(out.Peaks) {
			out.Peaks = append(out.Peaks, nil)
		}
		if out.Peaks[height] == nil {
			h := running
			out.Peaks[height] = &h
			return out
		}
		running = crypto.Keccak256Hash(out.Peaks[height][:], running[:])
		out.Peaks[height] = nil
		height++
	}
}

// Root folds all peaks into a single commitment by hashing them together
// from the highest occupied peak down to the lowest, skipping absent
// peaks. An empty MMR has the zero-hash root.
func Root(m state.MMR) types.Hash {
	var acc types.Hash
	first := true
	for i := len(m.Peaks) - 1; i >= 0; i-- {
		p := m.Peaks[i]
		if p == nil {
			continue
		}
		if first {
			acc = *p
			first = false
			continue
		}
		acc = crypto.Keccak256Hash(acc[:], p[:])
	}
	return acc
}

// Peaks returns the concatenated bytes of every peak slot in
// low-to-high order, substituting the zero hash for absent peaks. This is
// the encoding consumed when folding the MMR into a history-entry's
// state root (spec §4.5).
func Peaks(m state.MMR) []byte {
	buf := make([]byte, 0, len(m.Peaks)*types.HashLength)
	var zero types.Hash
	for _, p := range m.Peaks {
		if p == nil {
			buf = append(buf, zero[:]...)
		} else {
			buf = append(buf, p[:]...)
		}
	}
	return buf
}
