package main

import (
	stded25519 "crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jamnode/jam/types"
)

// validatorKeyFile is the on-disk shape of a validator's key material:
// an ed25519 signing key (for guarantees/assurances/GRANDPA votes) and a
// Bandersnatch public key identifying this validator's seat in kappa,
// plus the ring-VRF prover handle the external Bandersnatch service
// issued for it.
type validatorKeyFile struct {
	Ed25519Priv     string `json:"ed25519_priv"`
	BandersnatchPub string `json:"bandersnatch_pub"`
	ProverHandle    string `json:"prover_handle"`
}

// validatorKey is a loaded, parsed validatorKeyFile.
type validatorKey struct {
	Ed25519Pub      types.Ed25519Pub
	Ed25519Priv     stded25519.PrivateKey
	BandersnatchPub types.BandersnatchPub
	ProverHandle    string
}

// loadValidatorKey reads and decodes a validator key file at path. A node
// with no ValidatorKeyPath configured runs in observer mode and never
// calls this.
func loadValidatorKey(path string) (*validatorKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read validator key file: %w", err)
	}

	var kf validatorKeyFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return nil, fmt.Errorf("decode validator key file: %w", err)
	}

	priv, err := decodeHex(kf.Ed25519Priv)
	if err != nil {
		return nil, fmt.Errorf("decode ed25519_priv: %w", err)
	}
	if len(priv) != stded25519.PrivateKeySize {
		return nil, fmt.Errorf("ed25519_priv must be %d bytes, got %d", stded25519.PrivateKeySize, len(priv))
	}

	var bpub types.BandersnatchPub
	if err := bpub.UnmarshalText([]byte(kf.BandersnatchPub)); err != nil {
		return nil, fmt.Errorf("decode bandersnatch_pub: %w", err)
	}

	var epub types.Ed25519Pub
	copy(epub[:], stded25519.PrivateKey(priv).Public().(stded25519.PublicKey))

	return &validatorKey{
		Ed25519Pub:      epub,
		Ed25519Priv:     priv,
		BandersnatchPub: bpub,
		ProverHandle:    kf.ProverHandle,
	}, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}
