// Package state defines the canonical protocol state shared by every STF:
// Safrole, guarantees, assurances, preimages, history, and disputes all
// read a pre-state of this shape and produce a post-state of this shape.
package state

import (
	"fmt"
	"sort"

	"github.com/jamnode/jam/types"
)

// Protocol parameters (spec §3, "E, Y, N").
const (
	DefaultEpochLength           = 600 // E: slots per epoch
	DefaultTicketSubmissionCut   = 500 // Y: ticket-submission cutoff phase
	DefaultTicketAttemptsPerNode = 2   // N: per-validator ticket attempts

	AnchorMaxAgeSlots   = 14
	ReportTimeoutSlots  = 5
	MaxDependencies     = 8
	MaxWorkReportGas    = 3_500_000_000
	MinServiceItemGas   = 10_000
	MaxBetaLength       = 8
)

// Params bundles the fixed protocol parameters carried in canonical state.
type Params struct {
	EpochLength           uint32
	TicketSubmissionCut   uint32
	TicketAttemptsPerNode uint8
}

// DefaultParams returns the standard JAM-style protocol parameters.
func DefaultParams() Params {
	return Params{
		EpochLength:           DefaultEpochLength,
		TicketSubmissionCut:   DefaultTicketSubmissionCut,
		TicketAttemptsPerNode: DefaultTicketAttemptsPerNode,
	}
}

// ValidatorRecord is a validator's fixed-length key bundle (spec §3).
type ValidatorRecord struct {
	Bandersnatch types.BandersnatchPub
	Ed25519      types.Ed25519Pub
	BLS          types.BLSPub
	Metadata     [128]byte
}

// IsPadding reports whether this record is a zeroed offender-padding entry.
func (v ValidatorRecord) IsPadding() bool {
	return v.Ed25519.IsZero() && v.Bandersnatch.IsZero()
}

// Ticket is a submitted entropy-contributing ticket (spec §3). Signer
// records the bandersnatch key of the submitting validator; it rides
// alongside the ring-VRF proof rather than being recovered from it, so the
// block builder can later identify the winning submitter of a ticketed
// slot without a separate key-recovery scheme.
type Ticket struct {
	Index      uint8
	Randomness types.Hash
	Proof      []byte
	Signer     types.BandersnatchPub
}

// TicketMark is a ticket projected to {id, attempt} for header marks.
// Signer additionally records the bandersnatch key of the validator whose
// attempt won this slot, so the block builder can determine local
// leadership for ticketed slots without a separate key-recovery scheme.
type TicketMark struct {
	ID      types.Hash
	Attempt uint8
	Signer  types.BandersnatchPub
}

// SealKeys is gamma_s: either a fully-ticketed sequence or a fallback key
// sequence, never both.
type SealKeys struct {
	Tickets []TicketMark // set when fully ticketed
	Keys    []types.BandersnatchPub // set on fallback
}

// Ticketed reports whether this epoch's seal keys came from tickets.
func (s SealKeys) Ticketed() bool { return len(s.Tickets) > 0 }

// BadEntry is a psi.Bad record: a rejected report digest together with the
// specific reason it was recorded (spec §4.2 step 2: "record in psi_B with
// the specific reason").
type BadEntry struct {
	Reason string
}

// DisputeLedger is psi: disjoint report/validator-key classifications.
type DisputeLedger struct {
	Good      map[types.Hash]struct{}
	Bad       map[types.Hash]BadEntry
	Wonky     map[types.Hash]struct{}
	Offenders []types.Ed25519Pub // unique, sorted
}

// NewDisputeLedger returns an empty dispute ledger.
func NewDisputeLedger() DisputeLedger {
	return DisputeLedger{
		Good:  make(map[types.Hash]struct{}),
		Bad:   make(map[types.Hash]BadEntry),
		Wonky: make(map[types.Hash]struct{}),
	}
}

// MarkBad records digest as bad with the given reason. An existing entry
// for the same digest is not overwritten — the first recorded reason wins.
func (d *DisputeLedger) MarkBad(digest types.Hash, reason string) {
	if _, exists := d.Bad[digest]; exists {
		return
	}
	d.Bad[digest] = BadEntry{Reason: reason}
}

// AddOffender inserts key into the offenders set, keeping it sorted and
// deduplicated (invariant 5).
func (d *DisputeLedger) AddOffender(key types.Ed25519Pub) {
	i := sort.Search(len(d.Offenders), func(i int) bool { return !d.Offenders[i].Less(key) })
	if i < len(d.Offenders) && d.Offenders[i] == key {
		return
	}
	d.Offenders = append(d.Offenders, types.Ed25519Pub{})
	copy(d.Offenders[i+1:], d.Offenders[i:])
	d.Offenders[i] = key
}

// WorkResult is one service-call result within a work-report.
type WorkResult struct {
	ServiceID     uint32
	PayloadHash   types.Hash
	AccumulateGas uint64
	Result        []byte
}

// WorkContext carries the anchoring/prerequisite metadata of a work-report.
type WorkContext struct {
	Anchor           types.Hash
	AnchorSlot       uint64
	LookupAnchor     types.Hash
	LookupAnchorSlot uint64
	Prerequisites    []types.Hash
}

// WorkReport is the opaque work-report payload (spec §3), addressable by
// the fields the STFs need.
type WorkReport struct {
	PackageHash        types.Hash
	Context            WorkContext
	CoreIndex          uint16
	AuthorizerHash      types.Hash
	Results            []WorkResult
	SegmentRootLookup   []types.Hash
	GuarantorPublicKey types.Ed25519Pub
	GuarantorSignature types.Ed25519Sig
	Slot               uint64
}

// Digest is the canonical id used in rho/omega/xi/psi, computed as
// blake2b-256 of the report's canonical encoding.
func (r *WorkReport) Digest(hashFn func(...[]byte) types.Hash) types.Hash {
	return hashFn(r.canonicalBytes())
}

func (r *WorkReport) canonicalBytes() []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, r.PackageHash[:]...)
	buf = append(buf, r.Context.Anchor[:]...)
	buf = append(buf, r.Context.LookupAnchor[:]...)
	var coreBuf [2]byte
	coreBuf[0] = byte(r.CoreIndex)
	coreBuf[1] = byte(r.CoreIndex >> 8)
	buf = append(buf, coreBuf[:]...)
	buf = append(buf, r.AuthorizerHash[:]...)
	for _, res := range r.Results {
		buf = append(buf, res.PayloadHash[:]...)
	}
	return buf
}

// SignedPayload is the canonical byte serialization signed by the guarantor
// (the report with signature fields excluded).
func (r *WorkReport) SignedPayload() []byte {
	return r.canonicalBytes()
}

// PendingReport is a rho entry: a report awaiting guarantor supermajority.
type PendingReport struct {
	Report            WorkReport
	ReceivedSignatures map[types.Ed25519Pub]struct{}
	SubmissionSlot    uint64
}

// AccumStatus is the lifecycle state of an omega entry.
type AccumStatus int

const (
	AccumPending AccumStatus = iota
	AccumReady
	AccumProcessing
)

// QueuedReport is an omega entry.
type QueuedReport struct {
	Report WorkReport
	Status AccumStatus
}

// AvailAssignment is a per-core availability assignment.
type AvailAssignment struct {
	Report  WorkReport
	Timeout uint64
}

// ReportedItem names a work-report included in a beta entry.
type ReportedItem struct {
	Hash        types.Hash
	ExportsRoot types.Hash
}

// MMR mirrors spec §3's Merkle Mountain Range representation.
type MMR struct {
	Peaks []*types.Hash // nil entry = absent peak at that height
	Count uint64
}

// Clone returns a deep copy of the MMR.
func (m MMR) Clone() MMR {
	peaks := make([]*types.Hash, len(m.Peaks))
	for i, p := range m.Peaks {
		if p != nil {
			h := *p
			peaks[i] = &h
		}
	}
	return MMR{Peaks: peaks, Count: m.Count}
}

// BetaEntry is one entry of the recent-block history chain.
type BetaEntry struct {
	HeaderHash types.Hash
	StateRoot  types.Hash
	MMR        MMR
	Reported   []ReportedItem
}

// LookupMetaKey identifies a solicited-preimage slot.
type LookupMetaKey struct {
	Hash   types.Hash
	Length uint32
}

// MarshalText implements encoding.TextMarshaler, letting LookupMetaKey
// serve as a JSON map key for ServiceAccount.LookupMeta.
func (k LookupMetaKey) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%s:%d", k.Hash.Hex(), k.Length)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *LookupMetaKey) UnmarshalText(text []byte) error {
	var hexHash string
	if _, err := fmt.Sscanf(string(text), "%[^:]:%d", &hexHash, &k.Length); err != nil {
		return fmt.Errorf("lookup meta key: %w", err)
	}
	k.Hash = types.HexToHash(hexHash)
	return nil
}

// ServiceAccount is an entry of the accounts map.
type ServiceAccount struct {
	Preimages  map[types.Hash][]byte
	LookupMeta map[LookupMetaKey][]uint64 // slots at which it was provided

	ProvidedCount uint64
	ProvidedSize  uint64
}

// NewServiceAccount returns an empty service account.
func NewServiceAccount() *ServiceAccount {
	return &ServiceAccount{
		Preimages:  make(map[types.Hash][]byte),
		LookupMeta: make(map[LookupMetaKey][]uint64),
	}
}

// ValidatorStats is a per-validator activity counter bundle.
type ValidatorStats struct {
	BlocksProduced   uint64
	TicketsSubmitted uint64
	ReportsGuaranteed uint64
	Assurances       uint64
}

// State is the canonical protocol state (spec §3).
type State struct {
	Tau uint64 // current timeslot

	Eta [4]types.Hash // entropy accumulators

	Iota    []ValidatorRecord // next-epoch candidate set
	GammaK  []ValidatorRecord // staged set for upcoming epoch
	Kappa   []ValidatorRecord // active set
	Lambda  []ValidatorRecord // previous-epoch set

	GammaA []Ticket   // submitted tickets for next epoch
	GammaS SealKeys   // seal-key sequence for current epoch
	GammaZ types.Hash // ring-VRF commitment for gamma_k

	Psi             DisputeLedger
	PostOffenders   []types.Ed25519Pub

	Rho   map[types.Hash]*PendingReport
	Omega map[types.Hash]*QueuedReport
	Xi    map[types.Hash]struct{} // finalized report digests

	AvailAssignments []*AvailAssignment // indexed by core

	Beta []BetaEntry

	Accounts   map[uint32]*ServiceAccount
	Statistics map[types.Ed25519Pub]*ValidatorStats

	Params Params
}

// New returns a zero-valued canonical state with the given number of cores
// and default protocol parameters.
func New(numCores int) *State {
	return &State{
		Psi:              NewDisputeLedger(),
		Rho:              make(map[types.Hash]*PendingReport),
		Omega:            make(map[types.Hash]*QueuedReport),
		Xi:               make(map[types.Hash]struct{}),
		AvailAssignments: make([]*AvailAssignment, numCores),
		Accounts:         make(map[uint32]*ServiceAccount),
		Statistics:       make(map[types.Ed25519Pub]*ValidatorStats),
		Params:           DefaultParams(),
	}
}

// Epoch returns the epoch index for timeslot tau under the current params.
func (s *State) Epoch(tau uint64) uint64 {
	return tau / uint64(s.Params.EpochLength)
}

// SlotPhase returns tau's phase within its epoch.
func (s *State) SlotPhase(tau uint64) uint64 {
	return tau % uint64(s.Params.EpochLength)
}

// Account returns (creating if absent) the service account for serviceID.
func (s *State) Account(serviceID uint32) *ServiceAccount {
	acc, ok := s.Accounts[serviceID]
	if !ok {
		acc = NewServiceAccount()
		s.Accounts[serviceID] = acc
	}
	return acc
}

// StatsFor returns (creating if absent) the stats bundle for a validator key.
func (s *State) StatsFor(key types.Ed25519Pub) *ValidatorStats {
	st, ok := s.Statistics[key]
	if !ok {
		st = &ValidatorStats{}
		s.Statistics[key] = st
	}
	return st
}
