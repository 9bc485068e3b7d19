package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/jamnode/jam/guarantees"
	"github.com/jamnode/jam/log"
	"github.com/jamnode/jam/metrics"
	"github.com/jamnode/jam/state"
	"github.com/jamnode/jam/types"
)

var logger = log.Default().Module("orchestrator")

const stateFileName = "canonical.json"

// Config configures an Orchestrator's persistence and STF dependencies.
type Config struct {
	// StateDir is the directory holding the canonical-state document and
	// its lock file.
	StateDir string

	// NumCores is the number of execution cores the chain runs with,
	// used only when no canonical-state document exists yet (genesis).
	NumCores int

	Deps Deps
}

// Orchestrator owns the node's canonical state and drives the extrinsic
// STF pipeline against it, persisting the result after every block that
// commits. It implements rpc.Backend (ProcessBlock, Authorize) and
// node.Service (Name, Start, Stop) without importing either package,
// keeping the dependency arrow pointing inward from node/rpc to here.
type Orchestrator struct {
	mu       sync.Mutex
	cfg      Config
	state    *state.State
	lockPath  string
	lock      *flock.Flock
	history   *historyStore
	blockRate *metrics.Meter
}

// New loads the canonical-state document from cfg.StateDir if one exists,
// or creates a fresh genesis state otherwise, and acquires the directory's
// lock file for the lifetime of the Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.StateDir == "" {
		return nil, fmt.Errorf("orchestrator: state dir must not be empty")
	}

	o := &Orchestrator{
		cfg:      cfg,
		lockPath: filepath.Join(cfg.StateDir, ".lock"),
	}

	o.lock = flock.New(o.lockPath)
	locked, err := o.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: lock state dir: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("orchestrator: state dir %s is locked by another process", cfg.StateDir)
	}

	s, err := loadState(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = state.New(cfg.NumCores)
	}
	o.state = s

	historyDir := filepath.Join(cfg.StateDir, "history")
	if err := os.MkdirAll(historyDir, 0700); err != nil {
		return nil, fmt.Errorf("orchestrator: create history dir: %w", err)
	}
	h, err := openHistoryStore(historyDir)
	if err != nil {
		return nil, err
	}
	o.history = h
	o.blockRate = metrics.NewMeter()

	return o, nil
}

// BlockRate1m returns the 1-minute moving average of blocks committed per
// second, for operators watching chain liveness.
func (o *Orchestrator) BlockRate1m() float64 {
	return o.blockRate.Rate1()
}

// SnapshotAt returns the canonical-state snapshot archived for slot, or
// nil if no block has committed at that slot.
func (o *Orchestrator) SnapshotAt(slot uint64) (*state.State, error) {
	return o.history.SnapshotAt(slot)
}

// Name implements node.Service.
func (o *Orchestrator) Name() string { return "orchestrator" }

// Start implements node.Service. The canonical state is already loaded by
// New; Start exists so the orchestrator participates in the node's
// lifecycle ordering.
func (o *Orchestrator) Start() error {
	logger.Info("orchestrator ready", "tau", o.State().Tau)
	return nil
}

// Stop implements node.Service: flushes the current state to disk and
// releases the directory lock.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := saveState(o.cfg.StateDir, o.state); err != nil {
		logger.Error("failed to persist state on shutdown", "err", err)
	}
	if err := o.history.Close(); err != nil {
		logger.Error("failed to close history store", "err", err)
	}
	return o.lock.Unlock()
}

// State returns a snapshot of the current canonical state. Callers that
// need to mutate state (the block builder, when assembling a candidate
// block) should clone it rather than writing through this pointer.
func (o *Orchestrator) State() *state.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// ProcessBlock implements rpc.Backend: it runs the STF pipeline against
// the current canonical state and, only if every hard-failing STF
// succeeds, commits the result to memory and to the on-disk document.
func (o *Orchestrator) ProcessBlock(raw json.RawMessage) (json.RawMessage, error) {
	var doc BlockDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("malformed block: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	timer := metrics.NewTimer(metrics.BlockProcessTime)
	start := o.state.Tau
	post, flow, err := Apply(o.state, doc, o.cfg.Deps)
	timer.Stop()
	if err != nil {
		return nil, err
	}

	if err := saveState(o.cfg.StateDir, post); err != nil {
		return nil, fmt.Errorf("orchestrator: persist post-state: %w", err)
	}
	if err := o.history.PutSnapshot(post); err != nil {
		return nil, fmt.Errorf("orchestrator: archive snapshot: %w", err)
	}
	o.state = post
	o.blockRate.Mark(1)

	metrics.ChainHeight.Set(int64(post.Tau))
	logger.Info("block processed", "slot", post.Tau, "prev_slot", start)

	postRaw, err := json.Marshal(post)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: marshal post-state: %w", err)
	}
	flowRaw, err := json.Marshal(flow)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: marshal flow: %w", err)
	}

	resp := struct {
		PostState json.RawMessage `json:"post_state"`
		Flow      json.RawMessage `json:"flow"`
	}{PostState: postRaw, Flow: flowRaw}
	return json.Marshal(resp)
}

// authorizePayload is the shape of an authorize request's payload this
// orchestrator understands: a request to mark a core as authorized for a
// service at the current slot.
type authorizePayload struct {
	Nonce  uint64 `json:"nonce"`
	Action string `json:"action"`
	Core   uint16 `json:"core,omitempty"`
}

// Authorize implements rpc.Backend: it grants authorization only to keys
// already seated in the active or previous-epoch guarantor set, the same
// membership check the guarantees STF applies to incoming reports.
func (o *Orchestrator) Authorize(pub types.Ed25519Pub, payload json.RawMessage) (json.RawMessage, error) {
	var p authorizePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("malformed authorize payload: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if !isValidatorKey(o.state, pub) {
		return nil, fmt.Errorf("unknown_authority")
	}

	logger.Info("authorized", "action", p.Action, "core", p.Core, "pub", pub.Hex())

	out := struct {
		Granted bool   `json:"granted"`
		Action  string `json:"action"`
		AtSlot  uint64 `json:"at_slot"`
	}{Granted: true, Action: p.Action, AtSlot: o.state.Tau}
	return json.Marshal(out)
}

func isValidatorKey(s *state.State, pub types.Ed25519Pub) bool {
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

func loadState(dir string) (*state.State, error) {
	path := filepath.Join(dir, stateFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("orchestrator: read state file: %w", err)
	}
	s := &state.State{}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("orchestrator: decode state file: %w", err)
	}
	return s, nil
}

// saveState writes s to dir/canonical.json via a temp-file-and-rename, so a
// crash mid-write never leaves a truncated document behind.
func saveState(dir string, s *state.State) error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	final := filepath.Join(dir, stateFileName)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// DefaultOracle is a bookkeeping-only stand-in for real service-code
// execution: it records that a service's work was accumulated without
// running any PVM code. Supplying a richer Oracle is left to whatever
// wires a real service-execution environment in.
type DefaultOracle struct{}

// Accumulate implements guarantees.Oracle by recording the report's
// results against the service accounts' provided counters, without
// executing any service code -- a bookkeeping-only PVM stand-in.
func (DefaultOracle) Accumulate(s *state.State, report state.WorkReport) error {
	for _, res := range report.Results {
		acc := s.Account(res.ServiceID)
		acc.ProvidedCount++
		acc.ProvidedSize += uint64(len(res.Result))
	}
	return nil
}

var _ guarantees.Oracle = DefaultOracle{}
