package crypto

import (
	"github.com/jamnode/jam/types"
	"golang.org/x/crypto/blake2b"
)

// Blake2b256 calculates the 32-byte Blake2b-256 hash of the concatenation of
// the given byte slices. This is the hash used for preimage lookups, the
// state trie, and MMR peaks (spec §3, §4.7).
func Blake2b256(data ...[]byte) []byte {
	h, _ := blake2b.New256(nil)
	for _, b := range data {
		h.Write(b)
	}
	return h.Sum(nil)
}

// Blake2b256Hash calculates Blake2b-256 and returns it as a types.Hash.
func Blake2b256Hash(data ...[]byte) types.Hash {
	return types.BytesToHash(Blake2b256(data...))
}
