package blockbuilder

import "github.com/jamnode/jam/types"

// Sealer produces an IETF-VRF seal signature and VRF output over a
// candidate block's pre-seal bytes. bandersnatch.Client implements this
// through its Sign method against the external ring-VRF service; the
// interface keeps Builder a pure function of its inputs in tests, the
// same seam safrole uses for RingVerifier/RingCommitter.
type Sealer interface {
	Sign(handle string, message []byte) (signature []byte, vrfOutput types.Hash, err error)
}
