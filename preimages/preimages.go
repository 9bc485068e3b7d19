// Package preimages implements the C7 state-transition function: admitting
// solicited preimage blobs into service accounts.
package preimages

import (
	"github.com/jamnode/jam/crypto"
	"github.com/jamnode/jam/log"
	"github.com/jamnode/jam/metrics"
	"github.com/jamnode/jam/state"
	"github.com/jamnode/jam/staterr"
)

var logger = log.Default().Module("preimages")

// Item is a single submitted preimage.
type Item struct {
	Requester uint32
	Blob      []byte
}

// Input is the per-block input to the preimages STF.
type Input struct {
	Slot      uint64
	Preimages []Item
}

// Apply validates and admits preimages into s. On the first invalid or
// out-of-order item it returns an error and leaves s unmodified; on an
// unneeded (unsolicited) preimage it returns preimage_unneeded, also
// leaving s unmodified, per the input convention.
func Apply(s *state.State, in Input) error {
	if err := checkSortedUnique(in.Preimages); err != nil {
		return err
	}

	for _, item := range in.Preimages {
		acc := s.Accounts[item.Requester]
		if acc == nil {
			return staterr.ErrPreimageUnneeded
		}
		digest := crypto.Blake2b256Hash(item.Blob)
		key := state.LookupMetaKey{Hash: digest, Length: uint32(len(item.Blob))}
		if _, solicited := acc.LookupMeta[key]; !solicited {
			return staterr.ErrPreimageUnneeded
		}
	}

	for _, item := range in.Preimages {
		acc := s.Account(item.Requester)
		digest := crypto.Blake2b256Hash(item.Blob)
		key := state.LookupMetaKey{Hash: digest, Length: uint32(len(item.Blob))}

		acc.Preimages[digest] = item.Blob
		acc.LookupMeta[key] = append(acc.LookupMeta[key], in.Slot)
		acc.ProvidedCount++
		acc.ProvidedSize += uint64(len(item.Blob))
	}

	if n := len(in.Preimages); n > 0 {
		metrics.PreimagesProvided.Add(int64(n))
		logger.Info("preimages admitted", "count", n)
	}
	return nil
}

// checkSortedUnique enforces strict ascending order by (requester, hash(blob))
// with no duplicates.
func checkSortedUnique(items []Item) error {
	for i := 1; i < len(items); i++ {
		prev, cur := items[i-1], items[i]
		if cur.Requester < prev.Requester {
			return staterr.ErrPreimagesNotSortedUnique
		}
		if cur.Requester > prev.Requester {
			continue
		}
		prevHash := crypto.Blake2b256Hash(prev.Blob)
		curHash := crypto.Blake2b256Hash(cur.Blob)
		if !prevHash.Less(curHash) {
			return staterr.ErrPreimagesNotSortedUnique
		}
	}
	return nil
}
