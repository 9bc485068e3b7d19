package crypto

import (
	stded25519 "crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/jamnode/jam/types"
)

// GenerateEd25519Key creates a new ed25519 keypair. Key-generation ceremonies
// for production validator onboarding are out of scope; this exists for test
// harnesses and local development nodes.
func GenerateEd25519Key() (types.Ed25519Pub, stded25519.PrivateKey, error) {
	pub, priv, err := stded25519.GenerateKey(rand.Reader)
	if err != nil {
		return types.Ed25519Pub{}, nil, fmt.Errorf("crypto: generate ed25519 key: %w", err)
	}
	var p types.Ed25519Pub
	copy(p[:], pub)
	return p, priv, nil
}

// Ed25519Sign signs msg with priv and returns the 64-byte signature.
func Ed25519Sign(priv stded25519.PrivateKey, msg []byte) types.Ed25519Sig {
	var s types.Ed25519Sig
	copy(s[:], stded25519.Sign(priv, msg))
	return s
}

// Ed25519Verify reports whether sig is a valid signature by pub over msg.
func Ed25519Verify(pub types.Ed25519Pub, msg []byte, sig types.Ed25519Sig) bool {
	return stded25519.Verify(pub[:], msg, sig[:])
}
