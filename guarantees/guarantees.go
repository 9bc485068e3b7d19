// Package guarantees implements the C5 state-transition function: work-report
// admission and validation, promotion from rho to the omega accumulation
// queue, and topological accumulation processing.
package guarantees

import (
	"sort"

	"github.com/jamnode/jam/crypto"
	"github.com/jamnode/jam/log"
	"github.com/jamnode/jam/metrics"
	"github.com/jamnode/jam/state"
	"github.com/jamnode/jam/staterr"
	"github.com/jamnode/jam/types"
)

var logger = log.Default().Module("guarantees")

// Oracle invokes the accumulation logic for a single work-report against
// the service state, applying its effects to s directly and returning a
// non-nil error if accumulation fails.
type Oracle interface {
	Accumulate(s *state.State, report state.WorkReport) error
}

// Input is the per-block input to the guarantees STF.
type Input struct {
	CurrentSlot  uint64
	Reports      []state.WorkReport
	CurrDigests  []types.Hash // digests already produced earlier in this block
	EngagedCores map[uint16]struct{}
}

// Apply runs the guarantees STF: signature/context/dependency validation,
// rho admission, supermajority promotion to omega, timeout eviction, and
// topological accumulation.
func Apply(s *state.State, in Input, guarantorCount int, oracle Oracle) {
	for _, r := range in.Reports {
		processReport(s, in, r, guarantorCount)
	}

	evictTimedOut(s, in.CurrentSlot)
	processAccumulationQueue(s, oracle)

	metrics.ReportsPending.Set(int64(len(s.Rho)))
	metrics.ReportsQueued.Set(int64(len(s.Omega)))
}

func processReport(s *state.State, in Input, r state.WorkReport, guarantorCount int) {
	digest := r.Digest(crypto.Blake2b256Hash)

	if !crypto.Ed25519Verify(r.GuarantorPublicKey, r.SignedPayload(), r.GuarantorSignature) {
		s.Psi.MarkBad(digest, staterr.ErrBadSignature.Code())
		s.Psi.AddOffender(r.GuarantorPublicKey)
		logger.Warn("rejected report with bad signature", "digest", digest.Hex())
		return
	}

	if reason := validateContext(s, in, r, digest); reason != "" {
		s.Psi.MarkBad(digest, reason)
		logger.Warn("rejected report", "digest", digest.Hex(), "reason", reason)
		return
	}

	pending, exists := s.Rho[digest]
	if !exists {
		pending = &state.PendingReport{
			Report:             r,
			ReceivedSignatures: make(map[types.Ed25519Pub]struct{}),
			SubmissionSlot:     in.CurrentSlot,
		}
		s.Rho[digest] = pending
	}
	pending.ReceivedSignatures[r.GuarantorPublicKey] = struct{}{}

	threshold := (guarantorCount*2 + 2) / 3 // ceil(guarantorCount * 2/3)
	if len(pending.ReceivedSignatures) >= threshold {
		delete(s.Rho, digest)
		s.Omega[digest] = &state.QueuedReport{Report: pending.Report, Status: state.AccumReady}
		logger.Info("report promoted to accumulation queue", "digest", digest.Hex())
	}
}

// validateContext runs the spec §4.2 step-2 checks in order and returns the
// wire-facing reason for the first one that fails, or "" if all pass.
func validateContext(s *state.State, in Input, r state.WorkReport, digest types.Hash) string {
	if in.CurrentSlot < r.Context.AnchorSlot || in.CurrentSlot-r.Context.AnchorSlot > state.AnchorMaxAgeSlots {
		return staterr.ErrAnchorNotRecent.Code()
	}
	if !isGuarantor(s, r.GuarantorPublicKey) {
		return staterr.ErrWrongAssignment.Code()
	}
	if in.CurrentSlot < r.Slot {
		return staterr.ErrFutureReportSlot.Code()
	}
	if in.CurrentSlot-r.Slot > state.ReportTimeoutSlots {
		return staterr.ErrReportBeforeLastRotation.Code()
	}
	if len(r.Context.Prerequisites) > state.MaxDependencies {
		return staterr.ErrTooManyDependencies.Code()
	}
	for _, dep := range r.Context.Prerequisites {
		if !depSatisfied(s, in, dep) {
			return staterr.ErrDependencyMissing.Code()
		}
	}
	if _, engaged := in.EngagedCores[r.CoreIndex]; engaged {
		return staterr.ErrWrongAssignment.Code()
	}
	var totalGas uint64
	for _, res := range r.Results {
		totalGas += res.AccumulateGas
		if res.AccumulateGas < state.MinServiceItemGas {
			return staterr.ErrServiceItemGasTooLow.Code()
		}
	}
	if totalGas > state.MaxWorkReportGas {
		return staterr.ErrTooHighWorkReportGas.Code()
	}
	if _, done := s.Xi[digest]; done {
		return staterr.ErrDuplicatePackageInRecentHistory.Code()
	}
	return ""
}

// isGuarantor reports whether pub belongs to the current or previous
// epoch's guarantor set (spec §4.2 step 2: "assigned guarantor must be in
// current or previous epoch's guarantor set").
func isGuarantor(s *state.State, pub types.Ed25519Pub) bool {
	for _, v := range s.Kappa {
		if v.Ed25519 == pub {
			return true
		}
	}
	for _, v := range s.Lambda {
		if v.Ed25519 == pub {
			return true
		}
	}
	return false
}

func depSatisfied(s *state.State, in Input, dep types.Hash) bool {
	if _, ok := s.Xi[dep]; ok {
		return true
	}
	if _, ok := s.Rho[dep]; ok {
		return true
	}
	for _, d := range in.CurrDigests {
		if d == dep {
			return true
		}
	}
	return false
}

func evictTimedOut(s *state.State, currentSlot uint64) {
	for digest, p := range s.Rho {
		if currentSlot-p.SubmissionSlot > state.ReportTimeoutSlots {
			delete(s.Rho, digest)
			s.Psi.MarkBad(digest, staterr.ErrTimedOut.Code())
			logger.Warn("report timed out in rho", "digest", digest.Hex())
		}
	}
}

// processAccumulationQueue walks omega in a Kahn's-algorithm topological
// order restricted to entries whose dependencies are already resolved,
// breaking ties by ascending digest, and invokes the oracle on each ready
// entry in turn.
func processAccumulationQueue(s *state.State, oracle Oracle) {
	digests := make([]types.Hash, 0, len(s.Omega))
	for d, q := range s.Omega {
		if q.Status == state.AccumReady {
			digests = append(digests, d)
		}
	}
	sort.Slice(digests, func(i, j int) bool { return digests[i].Less(digests[j]) })

	resolved := make(map[types.Hash]struct{})
	for changed := true; changed; {
		changed = false
		for _, d := range digests {
			if _, done := resolved[d]; done {
				continue
			}
			q := s.Omega[d]
			if !allDepsResolved(s, q.Report, resolved) {
				continue
			}
			resolved[d] = struct{}{}
			changed = true

			q.Status = state.AccumProcessing
			if err := oracle.Accumulate(s, q.Report); err != nil {
				delete(s.Omega, d)
				s.Psi.MarkBad(d, staterr.ErrAccumulationFailed.Code())
				s.Psi.AddOffender(q.Report.GuarantorPublicKey)
				metrics.ReportsFailed.Inc()
				logger.Warn("accumulation failed", "digest", d.Hex(), "err", err)
				continue
			}
			delete(s.Omega, d)
			s.Xi[d] = struct{}{}
			metrics.ReportsAccumulated.Inc()
			logger.Info("report accumulated", "digest", d.Hex())
		}
	}
}

func allDepsResolved(s *state.State, r state.WorkReport, resolved map[types.Hash]struct{}) bool {
	for _, dep := range r.Context.Prerequisites {
		if _, ok := s.Xi[dep]; ok {
			continue
		}
		if _, ok := resolved[dep]; ok {
			continue
		}
		return false
	}
	return true
}
