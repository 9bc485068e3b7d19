// Package disputes implements the C9 state-transition function: processing
// verdicts, culprits, and faults, demoting disputed work-reports, and
// maintaining the sorted offender set.
package disputes

import (
	"github.com/jamnode/jam/log"
	"github.com/jamnode/jam/metrics"
	"github.com/jamnode/jam/state"
	"github.com/jamnode/jam/types"
)

var logger = log.Default().Module("disputes")

// Vote is a single validator's judgment within a verdict.
type Vote struct {
	Validator types.Ed25519Pub
	Bad       bool
}

// Verdict carries the judgment rendered against a disputed work-report.
type Verdict struct {
	TargetDigest types.Hash
	Age          uint64
	Votes        []Vote
}

// Offender is a culprit or fault report naming an offending validator key.
type Offender struct {
	Key types.Ed25519Pub
}

// Input is the per-block input to the disputes STF.
type Input struct {
	Verdicts []Verdict
	Culprits []Offender
	Faults   []Offender
}

// Output carries the offenders_mark produced this block.
type Output struct {
	OffendersMark []types.Ed25519Pub
}

// Apply processes verdicts, culprits, and faults against s.
//
// A super-majority "bad" verdict demotes its target out of rho/omega into
// psi.Bad, keeping it in xi (bookkeeping only) if already finalized.
// Culprits and faults each contribute their key to the sorted, deduplicated
// offenders set; every key touched this block is reported in
// offenders_mark.
func Apply(s *state.State, in Input, validatorCount int) Output {
	threshold := validatorCount*2/3 + 1
	marked := make(map[types.Ed25519Pub]struct{})

	for _, v := range in.Verdicts {
		badVotes := 0
		for _, vote := range v.Votes {
			if vote.Bad {
				badVotes++
			}
		}
		if badVotes < threshold {
			continue
		}

		delete(s.Rho, v.TargetDigest)
		delete(s.Omega, v.TargetDigest)
		s.Psi.MarkBad(v.TargetDigest, "verdict_supermajority_bad")
		metrics.VerdictsProcessed.Inc()
		logger.Info("verdict demoted report to psi.Bad", "digest", v.TargetDigest.Hex())

		if _, finalized := s.Xi[v.TargetDigest]; finalized {
			// Late dispute against an already-finalized report: retained in
			// xi as a historical fact, no further state change required.
			continue
		}
	}

	for _, c := range in.Culprits {
		s.Psi.AddOffender(c.Key)
		marked[c.Key] = struct{}{}
	}
	for _, f := range in.Faults {
		s.Psi.AddOffender(f.Key)
		marked[f.Key] = struct{}{}
	}

	out := Output{OffendersMark: make([]types.Ed25519Pub, 0, len(marked))}
	for _, k := range s.Psi.Offenders {
		if _, ok := marked[k]; ok {
			out.OffendersMark = append(out.OffendersMark, k)
		}
	}
	if len(out.OffendersMark) > 0 {
		metrics.OffendersRecorded.Add(int64(len(out.OffendersMark)))
		logger.Warn("offenders recorded this block", "count", len(out.OffendersMark))
	}
	return out
}
