// Package orchestrator implements the C12 block-processing pipeline: the
// single-threaded sequential application of every extrinsic STF against a
// pre-state, producing a post-state and a summary of what each STF did.
// It is the one component that knows the fixed order
// safrole -> guarantees -> assurances -> preimages -> history -> disputes,
// and is shared by both the RPC import path (Service, below) and the block
// builder, which dry-runs the same pipeline after sealing a header, to fill
// in its state root.
package orchestrator

import (
	"fmt"
	"time"

	"github.com/jamnode/jam/assurances"
	"github.com/jamnode/jam/crypto"
	"github.com/jamnode/jam/disputes"
	"github.com/jamnode/jam/guarantees"
	"github.com/jamnode/jam/history"
	"github.com/jamnode/jam/metrics"
	"github.com/jamnode/jam/preimages"
	"github.com/jamnode/jam/safrole"
	"github.com/jamnode/jam/state"
	"github.com/jamnode/jam/trie"
	"github.com/jamnode/jam/types"
)

// stageMetrics records each STF stage's per-call duration, tagged by stage
// name, so a slow safrole ticket batch or a disputes pile-up shows up as a
// distinct latency distribution rather than a single blended
// chain.block_process_ms figure.
var stageMetrics = metrics.NewMetricsCollector(metrics.CollectorConfig{EnableHistograms: true})

// StageLatencyPercentile returns the percentile (0-100) of observed
// durations, in milliseconds, for the named STF stage (one of "safrole",
// "guarantees", "assurances", "preimages", "history", "disputes").
func StageLatencyPercentile(stage string, percentile float64) float64 {
	return stageMetrics.HistogramPercentile("orchestrator.stage."+stage+"_ms", percentile)
}

func recordStage(stage string, start time.Time) {
	stageMetrics.RecordHistogram("orchestrator.stage."+stage+"_ms", float64(time.Since(start).Milliseconds()))
}

// Header is the subset of block-header fields the pipeline reads or
// produces. Seal and the root fields are absent on a block still being
// built and present on one being imported.
type Header struct {
	ParentHash     types.Hash      `json:"parent_hash"`
	Slot           uint64          `json:"slot"`
	VRFOutput      types.Hash      `json:"vrf_output"`
	Seal           []byte          `json:"seal,omitempty"`
	ExtrinsicsRoot types.Hash      `json:"extrinsics_root,omitempty"`
	StateRoot      types.Hash      `json:"state_root,omitempty"`
	OffendersMark  []types.Ed25519Pub `json:"offenders_mark,omitempty"`
}

// Extrinsic bundles the per-STF input lists carried by a block.
type Extrinsic struct {
	Tickets    []state.Ticket          `json:"tickets,omitempty"`
	Preimages  []preimages.Item        `json:"preimages,omitempty"`
	Guarantees []state.WorkReport      `json:"guarantees,omitempty"`
	Assurances []assurances.Assurance  `json:"assurances,omitempty"`
	Verdicts   []disputes.Verdict      `json:"verdicts,omitempty"`
	Culprits   []disputes.Offender     `json:"culprits,omitempty"`
	Faults     []disputes.Offender     `json:"faults,omitempty"`
}

// BlockDoc is the wire shape of a block as submitted to process-block or
// produced by the block builder.
type BlockDoc struct {
	Header    Header    `json:"header"`
	Extrinsic Extrinsic `json:"extrinsic"`
}

// Flow summarizes what the pipeline did this block, returned alongside the
// post-state so a caller can see epoch/ticket marks and newly recorded
// offenders without re-deriving them from the state diff.
type Flow struct {
	EpochMark     *safrole.EpochMark `json:"epoch_mark,omitempty"`
	TicketsMark   []state.TicketMark `json:"tickets_mark,omitempty"`
	CoresReported []uint16           `json:"cores_reported,omitempty"`
	OffendersMark []types.Ed25519Pub `json:"offenders_mark,omitempty"`
}

// Deps bundles the pipeline's external dependencies: the ring-VRF service
// client used by Safrole, the accumulation oracle used by guarantees, and
// the chain-wide counts used for supermajority thresholds.
type Deps struct {
	Verifier       safrole.RingVerifier
	Committer      safrole.RingCommitter
	Oracle         guarantees.Oracle
	AssureVerify   assurances.VerifyFunc
	GuarantorCount int
	ValidatorCount int
}

// Apply runs the full extrinsic STF pipeline against a clone of pre,
// leaving pre itself untouched. On the first hard validation/runtime error
// from safrole, assurances, or preimages, it returns that error and a nil
// post-state: none of the block's effects are kept, matching the "ok|err"
// shape of the process-block endpoint. guarantees and disputes never fail
// the whole block; they record rejections per-item against psi instead.
func Apply(pre *state.State, doc BlockDoc, deps Deps) (*state.State, Flow, error) {
	post, err := cloneState(pre)
	if err != nil {
		return nil, Flow{}, fmt.Errorf("orchestrator: clone state: %w", err)
	}

	var flow Flow

	stageStart := time.Now()
	safroleOut, err := safrole.Apply(post, safrole.Input{
		Slot:    doc.Header.Slot,
		HV:      doc.Header.VRFOutput,
		Tickets: doc.Extrinsic.Tickets,
	}, deps.Verifier, deps.Committer)
	recordStage("safrole", stageStart)
	if err != nil {
		return nil, Flow{}, fmt.Errorf("orchestrator: safrole: %w", err)
	}
	flow.EpochMark = safroleOut.EpochMark
	flow.TicketsMark = safroleOut.TicketsMark

	stageStart = time.Now()
	engagedCores := engagedCoreSet(post)
	guarantees.Apply(post, guarantees.Input{
		CurrentSlot:  doc.Header.Slot,
		Reports:      doc.Extrinsic.Guarantees,
		CurrDigests:  nil,
		EngagedCores: engagedCores,
	}, deps.GuarantorCount, deps.Oracle)
	recordStage("guarantees", stageStart)

	stageStart = time.Now()
	assureOut, err := assurances.Apply(post, assurances.Input{
		Parent:     doc.Header.ParentHash,
		Slot:       doc.Header.Slot,
		Assurances: doc.Extrinsic.Assurances,
	}, post.Kappa, deps.AssureVerify)
	recordStage("assurances", stageStart)
	if err != nil {
		return nil, Flow{}, fmt.Errorf("orchestrator: assurances: %w", err)
	}
	flow.CoresReported = assureOut.Reported

	stageStart = time.Now()
	err = preimages.Apply(post, preimages.Input{
		Slot:      doc.Header.Slot,
		Preimages: doc.Extrinsic.Preimages,
	})
	recordStage("preimages", stageStart)
	if err != nil {
		return nil, Flow{}, fmt.Errorf("orchestrator: preimages: %w", err)
	}

	stageStart = time.Now()
	reported := reportedItemsFor(assureOut.Reported, post)
	history.Apply(post, history.Input{
		HeaderHash:      HeaderHash(doc.Header),
		ParentStateRoot: lastStateRoot(pre),
		AccumulateRoot:  computeAccumulateRoot(reported),
		WorkPackages:    reported,
	})
	recordStage("history", stageStart)

	stageStart = time.Now()
	disputesOut := disputes.Apply(post, disputes.Input{
		Verdicts: doc.Extrinsic.Verdicts,
		Culprits: doc.Extrinsic.Culprits,
		Faults:   doc.Extrinsic.Faults,
	}, deps.ValidatorCount)
	recordStage("disputes", stageStart)
	flow.OffendersMark = disputesOut.OffendersMark

	return post, flow, nil
}

// engagedCoreSet returns the set of core indices currently holding a
// pending availability assignment, used by guarantees to reject a report
// for a core that is already engaged.
func engagedCoreSet(s *state.State) map[uint16]struct{} {
	engaged := make(map[uint16]struct{})
	for core, a := range s.AvailAssignments {
		if a != nil {
			engaged[uint16(core)] = struct{}{}
		}
	}
	return engaged
}

// reportedItemsFor builds the history STF's work-package list from the
// core indices that cleared availability this block.
func reportedItemsFor(cores []uint16, s *state.State) []state.ReportedItem {
	items := make([]state.ReportedItem, 0, len(cores))
	for _, core := range cores {
		a := s.AvailAssignments[core]
		if a == nil {
			continue
		}
		items = append(items, state.ReportedItem{
			Hash: a.Report.Digest(crypto.Blake2b256Hash),
		})
	}
	return items
}

// lastStateRoot returns the state root recorded against beta's current
// tip, or the zero hash for a chain with no history yet (genesis).
func lastStateRoot(s *state.State) types.Hash {
	if len(s.Beta) == 0 {
		return types.Hash{}
	}
	return s.Beta[len(s.Beta)-1].StateRoot
}

// computeAccumulateRoot hashes the canonical encoding of this block's
// reported work-package hashes, giving history.Input.AccumulateRoot a
// value derived the same way as the MMR entries it folds into.
func computeAccumulateRoot(items []state.ReportedItem) types.Hash {
	encoded := make([][]byte, 0, len(items))
	for _, it := range items {
		encoded = append(encoded, it.Hash.Bytes())
	}
	return trie.HashCanonical(encoded)
}

// HeaderHash hashes the header's canonical, seal-less fields: a produced
// block's header_hash must be stable whether computed before or after
// sealing, so the seal itself is excluded. Exported so callers outside
// the package (the block builder, when recording a just-built candidate
// with GRANDPA) can compute the same identifier this pipeline uses.
func HeaderHash(h Header) types.Hash {
	return trie.HashCanonical([][]byte{
		h.ParentHash.Bytes(),
		uint64Bytes(h.Slot),
		h.VRFOutput.Bytes(),
	})
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
