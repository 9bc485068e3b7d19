package trie

import (
	"encoding/binary"
	"errors"

	"github.com/jamnode/jam/crypto"
	"github.com/jamnode/jam/types"
)

// ErrNotFound is returned when a lookup key is absent from the trie.
var ErrNotFound = errors.New("trie: key not found")

// ChapterKey builds the 31-byte key for a top-level state field
// (state_key_constructor, chapter form): [chapter_index, 0*30].
func ChapterKey(chapterIndex byte) Key {
	var k Key
	k[0] = chapterIndex
	return k
}

// serviceAccountChapter is the reserved chapter index for service accounts.
const serviceAccountChapter = 255

// ServiceAccountKey builds the 31-byte key for a service account entry:
// [255, le32(service_index), 0*26].
func ServiceAccountKey(serviceIndex uint32) Key {
	var k Key
	k[0] = serviceAccountChapter
	binary.LittleEndian.PutUint32(k[1:5], serviceIndex)
	return k
}

// ServiceStorageKey builds the 31-byte key for a service storage item:
// le32(service_index) || blake2b(key), truncated/padded to 31 bytes.
func ServiceStorageKey(serviceIndex uint32, storageKey []byte) Key {
	var k Key
	binary.LittleEndian.PutUint32(k[0:4], serviceIndex)
	digest := crypto.Blake2b256(storageKey)
	copy(k[4:], digest) // truncates digest to the remaining 27 bytes
	return k
}

// EncodeCanonical produces a length-prefixed binary encoding of a sequence
// of opaque byte items: for each item, a little-endian uint32 length
// followed by the item's bytes. This is the pinned pre-hash encoding for
// extrinsics_root and similar canonical-list digests (resolves the
// serialization ambiguity left open by the source material, which used
// sorted-key JSON).
func EncodeCanonical(items [][]byte) []byte {
	size := 0
	for _, it := range items {
		size += 4 + len(it)
	}
	buf := make([]byte, 0, size)
	var lenBuf [4]byte
	for _, it := range items {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(it)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, it...)
	}
	return buf
}

// HashCanonical returns blake2b-256 of the canonical encoding of items.
func HashCanonical(items [][]byte) types.Hash {
	return crypto.Blake2b256Hash(EncodeCanonical(items))
}
