package blockbuilder

import (
	"testing"

	"github.com/jamnode/jam/state"
	"github.com/jamnode/jam/types"
)

func pub(b byte) types.BandersnatchPub {
	var p types.BandersnatchPub
	p[0] = b
	return p
}

func TestIsLeaderSimpleModuloPicksKappaSlot(t *testing.T) {
	s := &state.State{Kappa: []state.ValidatorRecord{
		{Bandersnatch: pub(1)},
		{Bandersnatch: pub(2)},
		{Bandersnatch: pub(3)},
	}}
	l := Leader{Mode: SimpleModulo, Self: pub(2)}

	if !l.IsLeader(s, 1) {
		t.Fatalf("expected pub(2) to lead slot 1 (slot 1 mod a 3-validator kappa)")
	}
	if l.IsLeader(s, 0) {
		t.Fatalf("did not expect pub(2) to lead slot 0")
	}
}

func TestIsLeaderSimpleModuloEmptyKappa(t *testing.T) {
	s := &state.State{}
	l := Leader{Mode: SimpleModulo, Self: pub(1)}
	if l.IsLeader(s, 5) {
		t.Fatalf("expected no leader with empty kappa")
	}
}

func TestIsLeaderGammaSTicketed(t *testing.T) {
	s := &state.State{Params: state.DefaultParams(), GammaS: state.SealKeys{Tickets: []state.TicketMark{
		{Signer: pub(1)},
		{Signer: pub(2)},
	}}}
	l := Leader{Mode: GammaS, Self: pub(2)}
	if !l.IsLeader(s, 1) {
		t.Fatalf("expected pub(2) to lead slot 1 via ticketed gamma_s")
	}
}

func TestIsLeaderGammaSFallbackKeys(t *testing.T) {
	s := &state.State{Params: state.DefaultParams(), GammaS: state.SealKeys{Keys: []types.BandersnatchPub{pub(1), pub(2)}}}
	l := Leader{Mode: GammaS, Self: pub(1)}
	if !l.IsLeader(s, 0) {
		t.Fatalf("expected pub(1) to lead slot 0 via fallback gamma_s keys")
	}
	if l.IsLeader(s, 1) {
		t.Fatalf("did not expect pub(1) to lead slot 1")
	}
}
