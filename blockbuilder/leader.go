// Package blockbuilder implements C10: deciding whether the local
// validator is the current slot's leader, and if so assembling, dry-
// running, and sealing a candidate block.
package blockbuilder

import (
	"github.com/jamnode/jam/state"
	"github.com/jamnode/jam/types"
)

// SelectorMode picks how a slot's leader is determined. GammaS is the
// production rule (the epoch's actual ticketed-or-fallback seal-key
// sequence); SimpleModulo is the M2-parity rule used by lighter test
// harnesses that have no ring-VRF service available to populate gamma_s.
type SelectorMode string

const (
	SimpleModulo SelectorMode = "simple_modulo"
	GammaS       SelectorMode = "gamma_s"
)

// Leader decides slot leadership for one local validator identity.
type Leader struct {
	Mode SelectorMode
	Self types.BandersnatchPub
}

// IsLeader reports whether Self is the leader for slot under s.
func (l Leader) IsLeader(s *state.State, slot uint64) bool {
	if l.Mode == SimpleModulo {
		if len(s.Kappa) == 0 {
			return false
		}
		return s.Kappa[slot%uint64(len(s.Kappa))].Bandersnatch == l.Self
	}

	phase := int(s.SlotPhase(slot))

	if s.GammaS.Ticketed() {
		if len(s.GammaS.Tickets) == 0 {
			return false
		}
		return s.GammaS.Tickets[phase%len(s.GammaS.Tickets)].Signer == l.Self
	}
	if len(s.GammaS.Keys) == 0 {
		return false
	}
	return s.GammaS.Keys[phase%len(s.GammaS.Keys)] == l.Self
}
