// Package types defines the primitive byte-string types shared by every
// component of the node: hashes, public keys, and signatures.
package types

import (
	"encoding/hex"
	"fmt"
)

const (
	HashLength      = 32
	Ed25519PubLen   = 32
	Ed25519SigLen   = 64
	BandersnatchLen = 32
	BLSPubLen       = 144
)

// Hash is a 32-byte opaque hash (blake2b-256 or keccak-256 depending on the
// component that produced it).
type Hash [HashLength]byte

// BytesToHash converts bytes to Hash, left-padding if shorter than 32 bytes.
func BytesToHash(b []byte) Hash {
	var h Hash
	h.SetBytes(b)
	return h
}

// HexToHash converts a hex string to Hash.
func HexToHash(s string) Hash {
	return BytesToHash(fromHex(s))
}

// Bytes returns the byte representation of the hash.
func (h Hash) Bytes() []byte { return h[:] }

// Hex returns the hex string representation of the hash.
func (h Hash) Hex() string { return fmt.Sprintf("0x%x", h[:]) }

// SetBytes sets the hash from a byte slice, left-padding if necessary.
func (h *Hash) SetBytes(b []byte) {
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
}

// IsZero returns whether the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String implements fmt.Stringer.
func (h Hash) String() string { return h.Hex() }

// MarshalText implements encoding.TextMarshaler, giving Hash a hex-string
// JSON representation instead of an array of 32 numbers. This also makes
// Hash usable as a JSON object key, which the dispute ledger and report
// queues rely on.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.Hex()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	*h = HexToHash(string(text))
	return nil
}

// Less reports whether h sorts strictly before o, used for the
// strictly-ascending ordering invariants on recorded offenders and reported
// package hashes.
func (h Hash) Less(o Hash) bool {
	for i := range h {
		if h[i] != o[i] {
			return h[i] < o[i]
		}
	}
	return false
}

// Ed25519Pub is a 32-byte ed25519 public key, used for guarantor, assurer,
// and GRANDPA voter identities.
type Ed25519Pub [Ed25519PubLen]byte

func (p Ed25519Pub) Bytes() []byte { return p[:] }
func (p Ed25519Pub) Hex() string   { return fmt.Sprintf("0x%x", p[:]) }
func (p Ed25519Pub) IsZero() bool  { return p == Ed25519Pub{} }

// MarshalText implements encoding.TextMarshaler; see Hash.MarshalText.
func (p Ed25519Pub) MarshalText() ([]byte, error) { return []byte(p.Hex()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Ed25519Pub) UnmarshalText(text []byte) error {
	copy(p[:], fromHex(string(text)))
	return nil
}

// Less gives Ed25519Pub a total order, used to keep offender sets and
// validator key lists in canonical sorted order.
func (p Ed25519Pub) Less(o Ed25519Pub) bool {
	for i := range p {
		if p[i] != o[i] {
			return p[i] < o[i]
		}
	}
	return false
}

// Ed25519Sig is a 64-byte ed25519 signature.
type Ed25519Sig [Ed25519SigLen]byte

func (s Ed25519Sig) Bytes() []byte { return s[:] }
func (s Ed25519Sig) Hex() string   { return fmt.Sprintf("0x%x", s[:]) }

// MarshalText implements encoding.TextMarshaler; see Hash.MarshalText.
func (s Ed25519Sig) MarshalText() ([]byte, error) { return []byte(s.Hex()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Ed25519Sig) UnmarshalText(text []byte) error {
	copy(s[:], fromHex(string(text)))
	return nil
}

// BandersnatchPub is a 32-byte Bandersnatch public key, consumed only
// through the external ring-VRF RPC surface; this node never performs
// Bandersnatch curve arithmetic itself.
type BandersnatchPub [BandersnatchLen]byte

func (p BandersnatchPub) Bytes() []byte { return p[:] }
func (p BandersnatchPub) Hex() string   { return fmt.Sprintf("0x%x", p[:]) }
func (p BandersnatchPub) IsZero() bool  { return p == BandersnatchPub{} }

// MarshalText implements encoding.TextMarshaler; see Hash.MarshalText.
func (p BandersnatchPub) MarshalText() ([]byte, error) { return []byte(p.Hex()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *BandersnatchPub) UnmarshalText(text []byte) error {
	copy(p[:], fromHex(string(text)))
	return nil
}

// BLSPub is an opaque BLS public key carried in validator records but never
// interpreted by this node.
type BLSPub [BLSPubLen]byte

func (p BLSPub) Bytes() []byte { return p[:] }

// fromHex decodes a hex string, stripping optional "0x" prefix.
func fromHex(s string) []byte {
	if has0xPrefix(s) {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, _ := hex.DecodeString(s)
	return b
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
