// Package assurances implements the C6 state-transition function: tallying
// per-core availability assurances and promoting work-reports once they
// clear supermajority.
package assurances

import (
	"github.com/jamnode/jam/crypto"
	"github.com/jamnode/jam/log"
	"github.com/jamnode/jam/metrics"
	"github.com/jamnode/jam/state"
	"github.com/jamnode/jam/staterr"
	"github.com/jamnode/jam/types"
)

var logger = log.Default().Module("assurances")

// Assurance is a single validator's per-core availability bitfield.
type Assurance struct {
	ValidatorIndex uint16
	Bitfield       []bool // indexed by core
	Signature      types.Ed25519Sig
	Anchor         types.Hash
}

// Input is the per-block input to the assurances STF.
type Input struct {
	Parent     types.Hash
	Slot       uint64
	Assurances []Assurance
}

// Output carries the set of cores whose reports cleared supermajority.
type Output struct {
	Reported []uint16 // core indices
}

// VerifyFunc checks an assurance's signature over its canonical payload.
type VerifyFunc func(pub types.Ed25519Pub, msg []byte, sig types.Ed25519Sig) bool

// Apply validates assurances and tallies per-core support. It first
// sweeps stale avail_assignments, then either returns an empty report set
// (no assurances) or validates and tallies each one, returning the first
// validation error with no partial state mutation.
func Apply(s *state.State, in Input, kappa []state.ValidatorRecord, verify VerifyFunc) (Output, error) {
	sweepStale(s, in.Slot)

	if len(in.Assurances) == 0 {
		return Output{Reported: nil}, nil
	}

	if err := validate(s, in, kappa, verify); err != nil {
		return Output{}, err
	}

	tally := make(map[uint16]int)
	for _, a := range in.Assurances {
		for core, set := range a.Bitfield {
			if set {
				tally[uint16(core)]++
			}
		}
	}

	threshold := (2*len(kappa))/3 + 1
	var reported []uint16
	for core, count := range tally {
		if count >= threshold {
			reported = append(reported, core)
		}
	}

	metrics.AssurancesProcessed.Add(int64(len(in.Assurances)))
	if len(reported) > 0 {
		metrics.CoresReported.Add(int64(len(reported)))
		logger.Info("cores cleared availability supermajority", "cores", reported)
	}
	return Output{Reported: reported}, nil
}

func sweepStale(s *state.State, slot uint64) {
	for i, a := range s.AvailAssignments {
		if a != nil && a.Timeout < slot {
			s.AvailAssignments[i] = nil
		}
	}
}

func validate(s *state.State, in Input, kappa []state.ValidatorRecord, verify VerifyFunc) error {
	var lastIndex int64 = -1
	for _, a := range in.Assurances {
		if !(a.Anchor == in.Parent || (a.Anchor.IsZero() && in.Parent.IsZero())) {
			return staterr.ErrBadAttestationParent
		}
		if int(a.ValidatorIndex) >= len(kappa) {
			return staterr.ErrBadValidatorIndex
		}
		if int64(a.ValidatorIndex) <= lastIndex {
			return staterr.ErrNotSortedOrUniqueAssurers
		}
		lastIndex = int64(a.ValidatorIndex)

		payload := canonicalPayload(a)
		pub := kappa[a.ValidatorIndex].Ed25519
		if !verify(pub, payload, a.Signature) {
			return staterr.ErrBadSignature
		}

		for core, set := range a.Bitfield {
			if !set {
				continue
			}
			if core >= len(s.AvailAssignments) || s.AvailAssignments[core] == nil {
				return staterr.ErrCoreNotEngaged
			}
		}
	}
	return nil
}

func canonicalPayload(a Assurance) []byte {
	buf := make([]byte, 0, 32+len(a.Bitfield))
	buf = append(buf, a.Anchor[:]...)
	for _, set := range a.Bitfield {
		if set {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	return buf
}

// DefaultVerify wires crypto.Ed25519Verify as the VerifyFunc.
func DefaultVerify(pub types.Ed25519Pub, msg []byte, sig types.Ed25519Sig) bool {
	return crypto.Ed25519Verify(pub, msg, sig)
}
