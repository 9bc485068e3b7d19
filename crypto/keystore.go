package crypto

import (
	stded25519 "crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/jamnode/jam/types"
)

// KeystoreConfig holds configuration for the keystore.
type KeystoreConfig struct {
	ScryptN int // CPU/memory cost parameter (default: 262144)
	ScryptR int // block size parameter (default: 8)
	ScryptP int // parallelization parameter (default: 1)
	KeyDir  string
}

// DefaultKeystoreConfig returns a KeystoreConfig with standard defaults.
func DefaultKeystoreConfig() KeystoreConfig {
	return KeystoreConfig{
		ScryptN: 262144,
		ScryptR: 8,
		ScryptP: 1,
		KeyDir:  "keystore",
	}
}

// EncryptedKey holds the encrypted key material and associated metadata for
// a validator's ed25519 signing key.
type EncryptedKey struct {
	PublicKey  types.Ed25519Pub
	ID         string // UUID v4
	Version    int    // always 3
	CipherText []byte
	IV         []byte
	Salt       []byte
	MAC        []byte
}

// Keystore manages encrypted ed25519 private keys (thread-safe). It does not
// implement a key-generation ceremony; keys are supplied by the caller
// (operator tooling, test harness) and only their encryption at rest is the
// keystore's concern.
type Keystore struct {
	mu     sync.RWMutex
	config KeystoreConfig
	keys   map[types.Ed25519Pub]*EncryptedKey
}

// NewKeystore creates a new Keystore with the given configuration.
// Zero-valued config fields are replaced with defaults.
func NewKeystore(config KeystoreConfig) *Keystore {
	if config.ScryptN == 0 {
		config.ScryptN = 262144
	}
	if config.ScryptR == 0 {
		config.ScryptR = 8
	}
	if config.ScryptP == 0 {
		config.ScryptP = 1
	}
	if config.KeyDir == "" {
		config.KeyDir = "keystore"
	}
	return &Keystore{
		config: config,
		keys:   make(map[types.Ed25519Pub]*EncryptedKey),
	}
}

// StoreKey encrypts an ed25519 private key with the given passphrase and
// stores it, keyed by its public key.
func (ks *Keystore) StoreKey(privateKey stded25519.PrivateKey, passphrase string) (*EncryptedKey, error) {
	if len(privateKey) != stded25519.PrivateKeySize {
		return nil, errors.New("keystore: private key must be 64 bytes (ed25519)")
	}

	var pub types.Ed25519Pub
	copy(pub[:], privateKey.Public().(stded25519.PublicKey))

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("keystore: failed to generate salt: %w", err)
	}
	iv := make([]byte, 16)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("keystore: failed to generate IV: %w", err)
	}

	uuid, err := generateUUIDv4()
	if err != nil {
		return nil, fmt.Errorf("keystore: failed to generate UUID: %w", err)
	}

	derivedKey := deriveKey([]byte(passphrase), salt, ks.config.ScryptN)
	cipherText := ctrEncrypt(privateKey, derivedKey[:16], iv)
	mac := Blake2b256(derivedKey[16:32], cipherText)

	ek := &EncryptedKey{
		PublicKey:  pub,
		ID:         uuid,
		Version:    3,
		CipherText: cipherText,
		IV:         iv,
		Salt:       salt,
		MAC:        mac,
	}

	ks.mu.Lock()
	ks.keys[pub] = ek
	ks.mu.Unlock()

	return ek, nil
}

// LoadKey decrypts and returns the private key for the given public key.
func (ks *Keystore) LoadKey(pub types.Ed25519Pub, passphrase string) (stded25519.PrivateKey, error) {
	ks.mu.RLock()
	ek, ok := ks.keys[pub]
	ks.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("keystore: key not found for public key %s", pub.Hex())
	}

	derivedKey := deriveKey([]byte(passphrase), ek.Salt, ks.config.ScryptN)

	expectedMAC := Blake2b256(derivedKey[16:32], ek.CipherText)
	if !keystoreBytesEqual(expectedMAC, ek.MAC) {
		return nil, errors.New("keystore: wrong passphrase (MAC mismatch)")
	}

	privateKey := ctrEncrypt(ek.CipherText, derivedKey[:16], ek.IV)
	return stded25519.PrivateKey(privateKey), nil
}

// HasKey returns true if a key exists for the given public key.
func (ks *Keystore) HasKey(pub types.Ed25519Pub) bool {
	ks.mu.RLock()
	_, ok := ks.keys[pub]
	ks.mu.RUnlock()
	return ok
}

// ListKeys returns all public keys stored in the keystore.
func (ks *Keystore) ListKeys() []types.Ed25519Pub {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	pubs := make([]types.Ed25519Pub, 0, len(ks.keys))
	for pub := range ks.keys {
		pubs = append(pubs, pub)
	}
	return pubs
}

// DeleteKey removes the key for the given public key.
func (ks *Keystore) DeleteKey(pub types.Ed25519Pub) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if _, ok := ks.keys[pub]; !ok {
		return fmt.Errorf("keystore: key not found for public key %s", pub.Hex())
	}
	delete(ks.keys, pub)
	return nil
}

// ChangePassphrase re-encrypts the key under a new passphrase.
func (ks *Keystore) ChangePassphrase(pub types.Ed25519Pub, oldPass, newPass string) error {
	privateKey, err := ks.LoadKey(pub, oldPass)
	if err != nil {
		return err
	}

	ks.mu.Lock()
	delete(ks.keys, pub)
	ks.mu.Unlock()

	_, err = ks.StoreKey(privateKey, newPass)
	return err
}

// deriveKey performs simplified scrypt-like key derivation: iteratively
// hashing Blake2b256(passphrase + salt) for n/1024 rounds (clamped to
// 1..4096). Returns a 32-byte derived key.
func deriveKey(passphrase, salt []byte, n int) []byte {
	// Use a reduced iteration count based on scryptN to keep it fast.
	// Real scrypt would use memory-hard iterations; we simplify for
	// the purpose of this implementation.
	iterations := n / 1024
	if iterations < 1 {
		iterations = 1
	}
	if iterations > 4096 {
		iterations = 4096
	}

	key := Blake2b256(passphrase, salt)
	for i := 1; i < iterations; i++ {
		key = Blake2b256(key, salt)
	}
	return key
}

// ctrEncrypt performs AES-128-CTR-like encryption using XOR with a key
// stream derived from Blake2b256(key + iv + counter) for each 32-byte block.
func ctrEncrypt(data, key, iv []byte) []byte {
	result := make([]byte, len(data))
	counter := make([]byte, 8)

	for offset := 0; offset < len(data); offset += 32 {
		binary.BigEndian.PutUint64(counter, uint64(offset/32))
		stream := Blake2b256(key, iv, counter)

		end := offset + 32
		if end > len(data) {
			end = len(data)
		}
		for i := offset; i < end; i++ {
			result[i] = data[i] ^ stream[i-offset]
		}
	}
	return result
}

// generateUUIDv4 generates a random UUID v4 string.
func generateUUIDv4() (string, error) {
	var uuid [16]byte
	if _, err := rand.Read(uuid[:]); err != nil {
		return "", err
	}
	uuid[6] = (uuid[6] & 0x0f) | 0x40
	uuid[8] = (uuid[8] & 0x3f) | 0x80

	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		uuid[0:4], uuid[4:6], uuid[6:8], uuid[8:10], uuid[10:16]), nil
}

// keystoreBytesEqual compares two byte slices in constant-ish time.
func keystoreBytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
