// Package trie implements the canonical binary radix Merkle trie used for
// the protocol state root. Keys are fixed at 31 bytes (the chapter/service
// key construction of the state serialization); traversal walks bits
// MSB-first (bit 0 = left, bit 1 = right), and every node — leaf or
// branch — is encoded into a fixed 64-byte blob before being hashed with
// blake2b-256.
package trie

import (
	"github.com/jamnode/jam/crypto"
	"github.com/jamnode/jam/types"
)

// KeyLength is the fixed width, in bytes, of a state trie key.
const KeyLength = 31

// Key is a 31-byte state trie key (see state_key_constructor in the state
// serialization: top-level fields, service accounts, and service storage
// items are all folded into this fixed width).
type Key [KeyLength]byte

// zeroHash is the hash of an empty subtree.
var zeroHash = types.Hash{}

const (
	headEmbeddedLeaf byte = 0b01000000
	headHashedLeaf   byte = 0b11000000
	embeddedLenMask  byte = 0x3F
)

// binaryNode is either a leaf or a branch in the binary radix trie.
type binaryNode struct {
	left  *binaryNode
	right *binaryNode

	isLeaf bool
	key    Key
	value  []byte

	hash  types.Hash
	dirty bool
}

// Trie is a binary radix Merkle trie keyed by fixed 31-byte keys.
type Trie struct {
	root *binaryNode
}

// New creates a new, empty state trie.
func New() *Trie {
	return &Trie{}
}

// Get retrieves the value associated with key. Returns ErrNotFound if absent.
func (t *Trie) Get(key Key) ([]byte, error) {
	n := t.root
	for depth := 0; n != nil; depth++ {
		if n.isLeaf {
			if n.key == key {
				return n.value, nil
			}
			return nil, ErrNotFound
		}
		if getBit(key, depth) == 0 {
			n = n.left
		} else {
			n = n.right
		}
	}
	return nil, ErrNotFound
}

// Put inserts or updates a key-value pair. If value is empty, the key is
// deleted (empty values are never stored — an absent key and an empty value
// are indistinguishable in the state model).
func (t *Trie) Put(key Key, value []byte) {
	if len(value) == 0 {
		t.Delete(key)
		return
	}
	t.root = insertBinary(t.root, key, value, 0)
}

func insertBinary(n *binaryNode, key Key, value []byte, depth int) *binaryNode {
	if n == nil {
		return &binaryNode{isLeaf: true, key: key, value: copyBytes(value), dirty: true}
	}

	if n.isLeaf {
		if n.key == key {
			n.value = copyBytes(value)
			n.dirty = true
			return n
		}
		return splitLeaf(n, key, value, depth)
	}

	n.dirty = true
	if getBit(key, depth) == 0 {
		n.left = insertBinary(n.left, key, value, depth+1)
	} else {
		n.right = insertBinary(n.right, key, value, depth+1)
	}
	return n
}

// splitLeaf creates branch nodes until the existing and new keys diverge,
// then places each as a leaf.
func splitLeaf(existing *binaryNode, newKey Key, newValue []byte, depth int) *binaryNode {
	existBit := getBit(existing.key, depth)
	newBit := getBit(newKey, depth)

	if existBit == newBit {
		child := splitLeaf(existing, newKey, newValue, depth+1)
		branch := &binaryNode{dirty: true}
		if existBit == 0 {
			branch.left = child
		} else {
			branch.right = child
		}
		return branch
	}

	newLeaf := &binaryNode{isLeaf: true, key: newKey, value: copyBytes(newValue), dirty: true}
	existing.dirty = true
	branch := &binaryNode{dirty: true}
	if existBit == 0 {
		branch.left = existing
		branch.right = newLeaf
	} else {
		branch.left = newLeaf
		branch.right = existing
	}
	return branch
}

// Delete removes a key from the trie. No-op if the key is absent.
func (t *Trie) Delete(key Key) {
	t.root = deleteBinary(t.root, key, 0)
}

func deleteBinary(n *binaryNode, key Key, depth int) *binaryNode {
	if n == nil {
		return nil
	}
	if n.isLeaf {
		if n.key == key {
			return nil
		}
		return n
	}

	if getBit(key, depth) == 0 {
		n.left = deleteBinary(n.left, key, depth+1)
	} else {
		n.right = deleteBinary(n.right, key, depth+1)
	}
	n.dirty = true

	if n.left == nil && n.right == nil {
		return nil
	}
	if n.left == nil && n.right.isLeaf {
		return n.right
	}
	if n.right == nil && n.left.isLeaf {
		return n.left
	}
	return n
}

// Root computes the blake2b-256 Merkle root of the trie. An empty trie
// returns the zero hash.
func (t *Trie) Root() types.Hash {
	if t.root == nil {
		return zeroHash
	}
	return hashBinaryNode(t.root)
}

// hashBinaryNode computes a node's hash by building its canonical 64-byte
// encoding (§4.7) and hashing that blob with blake2b-256.
func hashBinaryNode(n *binaryNode) types.Hash {
	if n == nil {
		return zeroHash
	}
	if !n.dirty && n.hash != zeroHash {
		return n.hash
	}

	node := encodeNode(n)
	h := crypto.Blake2b256Hash(node[:])

	n.hash = h
	n.dirty = false
	return h
}

// nodeBlob is the fixed 64-byte on-disk/on-wire encoding of a trie node.
type nodeBlob [64]byte

// encodeNode produces the 64-byte encoding of a leaf or branch node.
func encodeNode(n *binaryNode) nodeBlob {
	var blob nodeBlob
	if n.isLeaf {
		if len(n.value) <= 32 {
			blob[0] = headEmbeddedLeaf | (byte(len(n.value)) & embeddedLenMask)
			copy(blob[1:1+KeyLength], n.key[:])
			copy(blob[1+KeyLength:], n.value) // right-padded with zeros
		} else {
			blob[0] = headHashedLeaf
			copy(blob[1:1+KeyLength], n.key[:])
			vh := crypto.Blake2b256(n.value)
			copy(blob[1+KeyLength:], vh)
		}
		return blob
	}

	leftHash := hashBinaryNode(n.left)
	rightHash := hashBinaryNode(n.right)
	blob[0] = leftHash[0] & 0x7F
	copy(blob[1:32], leftHash[1:])
	copy(blob[32:64], rightHash[:])
	return blob
}

// Len returns the number of key-value pairs in the trie.
func (t *Trie) Len() int {
	return countBinaryLeaves(t.root)
}

func countBinaryLeaves(n *binaryNode) int {
	if n == nil {
		return 0
	}
	if n.isLeaf {
		return 1
	}
	return countBinaryLeaves(n.left) + countBinaryLeaves(n.right)
}

// Empty returns true if the trie has no entries.
func (t *Trie) Empty() bool {
	return t.root == nil
}

// getBit returns the bit at position pos in a 31-byte key (MSB first).
// pos 0 is the most significant bit of byte 0.
func getBit(k Key, pos int) byte {
	byteIdx := pos / 8
	bitIdx := 7 - (pos % 8)
	if byteIdx >= KeyLength {
		return 0
	}
	return (k[byteIdx] >> uint(bitIdx)) & 1
}

func copyBytes(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
