package orchestrator

import (
	"encoding/json"
	"testing"

	"github.com/jamnode/jam/assurances"
	"github.com/jamnode/jam/state"
	"github.com/jamnode/jam/types"
)

type fakeVerifier struct{}

func (fakeVerifier) BatchVerify(types.Hash, []state.ValidatorRecord, types.Hash, []state.Ticket) ([]types.Hash, error) {
	return nil, nil
}

type fakeCommitter struct{}

func (fakeCommitter) Commit([]state.ValidatorRecord) (types.Hash, error) { return types.Hash{}, nil }

type fakeOracle struct{}

func (fakeOracle) Accumulate(s *state.State, report state.WorkReport) error { return nil }

func testDeps() Deps {
	return Deps{
		Verifier:       fakeVerifier{},
		Committer:      fakeCommitter{},
		Oracle:         fakeOracle{},
		AssureVerify:   func(types.Ed25519Pub, []byte, types.Ed25519Sig) bool { return true },
		GuarantorCount: 3,
		ValidatorCount: 3,
	}
}

func TestApplyAdvancesSlotWithEmptyExtrinsic(t *testing.T) {
	pre := state.New(2)
	doc := BlockDoc{Header: Header{Slot: 1, ParentHash: types.Hash{}}}

	post, flow, err := Apply(pre, doc, testDeps())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if post.Tau != 1 {
		t.Fatalf("post.Tau = %d, want 1", post.Tau)
	}
	if pre.Tau != 0 {
		t.Fatal("Apply must not mutate the pre-state")
	}
	if len(post.Beta) != 1 {
		t.Fatalf("expected one history entry, got %d", len(post.Beta))
	}
	_ = flow
}

func TestApplyRejectsNonIncreasingSlot(t *testing.T) {
	pre := state.New(2)
	pre.Tau = 5
	doc := BlockDoc{Header: Header{Slot: 5}}

	if _, _, err := Apply(pre, doc, testDeps()); err == nil {
		t.Fatal("expected an error for a non-increasing slot")
	}
}

func TestApplyPropagatesAssuranceFailure(t *testing.T) {
	pre := state.New(2)
	doc := BlockDoc{
		Header: Header{Slot: 1},
		Extrinsic: Extrinsic{
			Assurances: []assurances.Assurance{{ValidatorIndex: 0, Bitfield: []bool{true, true}}},
		},
	}
	deps := testDeps()
	deps.AssureVerify = func(types.Ed25519Pub, []byte, types.Ed25519Sig) bool { return false }

	if _, _, err := Apply(pre, doc, deps); err == nil {
		t.Fatal("expected assurances STF to reject an unverifiable assurance")
	}
}

func TestOrchestratorProcessBlockPersists(t *testing.T) {
	dir := t.TempDir()
	o, err := New(Config{StateDir: dir, NumCores: 2, Deps: testDeps()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { o.Stop() })

	block := BlockDoc{Header: Header{Slot: 1}}
	raw, _ := json.Marshal(block)

	resp, err := o.ProcessBlock(raw)
	if err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}

	var decoded struct {
		PostState json.RawMessage `json:"post_state"`
		Flow      json.RawMessage `json:"flow"`
	}
	if err := json.Unmarshal(resp, &decoded); err != nil {
		t.Fatalf("Unmarshal response: %v", err)
	}
	var post state.State
	if err := json.Unmarshal(decoded.PostState, &post); err != nil {
		t.Fatalf("Unmarshal post_state: %v", err)
	}
	if post.Tau != 1 {
		t.Fatalf("post_state.Tau = %d, want 1", post.Tau)
	}
	if o.State().Tau != 1 {
		t.Fatalf("orchestrator did not commit the new state, Tau = %d", o.State().Tau)
	}
}

func TestApplyRecordsStageLatency(t *testing.T) {
	pre := state.New(2)
	doc := BlockDoc{Header: Header{Slot: 1}}
	if _, _, err := Apply(pre, doc, testDeps()); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := StageLatencyPercentile("safrole", 50); got < 0 {
		t.Fatalf("StageLatencyPercentile(safrole, 50) = %v, want >= 0", got)
	}
}

func TestOrchestratorTracksBlockRate(t *testing.T) {
	dir := t.TempDir()
	o, err := New(Config{StateDir: dir, NumCores: 2, Deps: testDeps()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { o.Stop() })

	if rate := o.BlockRate1m(); rate != 0 {
		t.Fatalf("BlockRate1m() before any block = %v, want 0", rate)
	}

	block := BlockDoc{Header: Header{Slot: 1}}
	raw, _ := json.Marshal(block)
	if _, err := o.ProcessBlock(raw); err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}
	if o.blockRate.Count() != 1 {
		t.Fatalf("blockRate.Count() = %d, want 1", o.blockRate.Count())
	}
}

func TestOrchestratorReloadsPersistedState(t *testing.T) {
	dir := t.TempDir()
	deps := testDeps()

	o1, err := New(Config{StateDir: dir, NumCores: 2, Deps: deps})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	block := BlockDoc{Header: Header{Slot: 3}}
	raw, _ := json.Marshal(block)
	if _, err := o1.ProcessBlock(raw); err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}
	if err := o1.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	o2, err := New(Config{StateDir: dir, NumCores: 2, Deps: deps})
	if err != nil {
		t.Fatalf("second New: %v", err)
	}
	defer o2.Stop()

	if o2.State().Tau != 3 {
		t.Fatalf("reloaded state.Tau = %d, want 3", o2.State().Tau)
	}
}

func TestAuthorizeRejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()
	o, err := New(Config{StateDir: dir, NumCores: 2, Deps: testDeps()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer o.Stop()

	var pub types.Ed25519Pub
	pub[0] = 1
	if _, err := o.Authorize(pub, json.RawMessage(`{"nonce":1,"action":"authorize_core"}`)); err == nil {
		t.Fatal("expected unknown_authority for a key not in kappa/lambda")
	}
}

func TestAuthorizeAcceptsSeatedValidator(t *testing.T) {
	dir := t.TempDir()
	o, err := New(Config{StateDir: dir, NumCores: 2, Deps: testDeps()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer o.Stop()

	var pub types.Ed25519Pub
	pub[0] = 7
	o.state.Kappa = append(o.state.Kappa, state.ValidatorRecord{Ed25519: pub})

	out, err := o.Authorize(pub, json.RawMessage(`{"nonce":1,"action":"authorize_core","core":2}`))
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	var decoded struct {
		Granted bool `json:"granted"`
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.Granted {
		t.Fatal("expected granted=true for a seated validator")
	}
}
