// signature_cache.go implements an LRU cache for signature verification
// results.
//
// Ed25519 verification runs on every guarantee, assurance, and GRANDPA
// vote the node ingests. Caching verification results keyed by
// (signer || signature || message hash) avoids redundant work when the same
// signed message is re-validated — e.g. a guarantee seen again after a block
// it was already checked against gets superseded, or a GRANDPA vote is
// rebroadcast during catch-up.
//
// The cache is fully concurrent-safe and exposes hit/miss counters for
// observability.
package crypto

import (
	"sync"
	"sync/atomic"

	"github.com/jamnode/jam/types"
)

// DefaultSigCacheSize is the default number of entries in the signature cache.
const DefaultSigCacheSize = 4096

// SigCacheEntry holds a cached verification result.
type SigCacheEntry struct {
	// Signer is the ed25519 public key that produced the signature.
	Signer types.Ed25519Pub

	// Valid indicates whether the signature verified successfully.
	Valid bool
}

// sigCacheNode is a doubly-linked list node for the LRU eviction list.
type sigCacheNode struct {
	key  types.Hash
	val  SigCacheEntry
	prev *sigCacheNode
	next *sigCacheNode
}

// SignatureCache is a concurrent-safe LRU cache for signature verification
// results. Keys are derived from the concatenation of signer, signature, and
// message hash to ensure uniqueness.
type SignatureCache struct {
	mu       sync.RWMutex
	capacity int
	items    map[types.Hash]*sigCacheNode

	// Doubly-linked list: head is most recently used, tail is least.
	head *sigCacheNode
	tail *sigCacheNode

	// Atomic hit/miss counters for observability.
	hits   atomic.Int64
	misses atomic.Int64
}

// NewSignatureCache creates a new signature verification cache with the given
// maximum number of entries. If capacity <= 0, DefaultSigCacheSize is used.
func NewSignatureCache(capacity int) *SignatureCache {
	if capacity <= 0 {
		capacity = DefaultSigCacheSize
	}
	return &SignatureCache{
		capacity: capacity,
		items:    make(map[types.Hash]*sigCacheNode, capacity),
	}
}

// SigCacheKey derives a deterministic cache key from a signer, signature,
// and message hash: Blake2b256(signer || sig || msgHash).
func SigCacheKey(signer types.Ed25519Pub, sig types.Ed25519Sig, msgHash types.Hash) types.Hash {
	return Blake2b256Hash(signer[:], sig[:], msgHash[:])
}

// Get looks up a cached verification result. Returns the entry and true if
// found, or a zero entry and false on cache miss.
func (c *SignatureCache) Get(key types.Hash) (SigCacheEntry, bool) {
	c.mu.RLock()
	node, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return SigCacheEntry{}, false
	}

	// Promote to head (most recently used). Requires write lock.
	c.mu.Lock()
	c.moveToHead(node)
	c.mu.Unlock()

	c.hits.Add(1)
	return node.val, true
}

// Add inserts a verification result into the cache. If the cache is at
// capacity, the least recently used entry is evicted.
func (c *SignatureCache) Add(key types.Hash, entry SigCacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.items[key]; ok {
		existing.val = entry
		c.moveToHead(existing)
		return
	}

	node := &sigCacheNode{key: key, val: entry}
	c.items[key] = node
	c.pushHead(node)

	if len(c.items) > c.capacity {
		c.evictTail()
	}
}

// Contains checks whether a key exists in the cache without updating the
// LRU order. Useful for fast existence checks.
func (c *SignatureCache) Contains(key types.Hash) bool {
	c.mu.RLock()
	_, ok := c.items[key]
	c.mu.RUnlock()
	return ok
}

// Len returns the number of entries currently in the cache.
func (c *SignatureCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Hits returns the number of cache hits since creation.
func (c *SignatureCache) Hits() int64 {
	return c.hits.Load()
}

// Misses returns the number of cache misses since creation.
func (c *SignatureCache) Misses() int64 {
	return c.misses.Load()
}

// HitRate returns the cache hit rate as a fraction [0, 1]. Returns 0 if no
// lookups have been performed.
func (c *SignatureCache) HitRate() float64 {
	h := c.hits.Load()
	m := c.misses.Load()
	total := h + m
	if total == 0 {
		return 0
	}
	return float64(h) / float64(total)
}

// Purge removes all entries from the cache and resets counters.
func (c *SignatureCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[types.Hash]*sigCacheNode, c.capacity)
	c.head = nil
	c.tail = nil
	c.hits.Store(0)
	c.misses.Store(0)
}

// Remove deletes a single entry from the cache. Returns true if the key was
// present and removed.
func (c *SignatureCache) Remove(key types.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeNode(node)
	delete(c.items, key)
	return true
}

// --- internal linked-list operations (caller must hold c.mu) ---

// pushHead inserts a node at the head of the LRU list.
func (c *SignatureCache) pushHead(node *sigCacheNode) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

// removeNode unlinks a node from the doubly-linked list.
func (c *SignatureCache) removeNode(node *sigCacheNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
	node.prev = nil
	node.next = nil
}

// moveToHead moves an existing node to the head of the list.
func (c *SignatureCache) moveToHead(node *sigCacheNode) {
	if c.head == node {
		return // already at head
	}
	c.removeNode(node)
	c.pushHead(node)
}

// evictTail removes the least recently used (tail) node.
func (c *SignatureCache) evictTail() {
	if c.tail == nil {
		return
	}
	evicted := c.tail
	c.removeNode(evicted)
	delete(c.items, evicted.key)
}
