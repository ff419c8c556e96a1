// Package skymap implements a striped, lock-partitioned concurrent hash
// index (spec §4.5), used both for the global namespace and as the
// primary-key index of each model.
package skymap

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// KeyHasher produces the 64-bit hash used for shard selection and bucket
// lookup. The BuildHasher in the original is ahash; xxhash is the
// idiomatic Go substitute (see DESIGN.md).
type KeyHasher[K any] func(key K) uint64

const wordBits = 64

// nextPow2 returns the smallest power of two >= n (n >= 1).
func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// shardCount computes S = next_pow2(num_cpus * 8), matching spec §4.5.
func shardCount(numCPU int) int {
	return nextPow2(numCPU * 8)
}

type entry[K comparable, V any] struct {
	key  K
	val  V
	hash uint64
}

type shard[K comparable, V any] struct {
	mu      sync.RWMutex
	buckets map[uint64]entry[K, V] // keyed by full hash; collisions resolved via key equality scan below
	byKey   map[K]uint64          // key -> hash, for O(1) key lookup within the shard
}

func newShard[K comparable, V any]() *shard[K, V] {
	return &shard[K, V]{
		buckets: make(map[uint64]entry[K, V]),
		byKey:   make(map[K]uint64),
	}
}

// Map is a striped concurrent hash map. A given key resides in exactly one
// shard; shard locks are leaf locks and this type never nests two of them
// (spec §4.5 invariants).
type Map[K comparable, V any] struct {
	hasher  KeyHasher[K]
	shards  []*shard[K, V]
	log2S   uint
}

// New builds a Map sized for numCPU logical CPUs, using hasher for key
// hashing.
func New[K comparable, V any](numCPU int, hasher KeyHasher[K]) *Map[K, V] {
	if numCPU < 1 {
		numCPU = 1
	}
	s := shardCount(numCPU)
	log2 := 0
	for (1 << log2) < s {
		log2++
	}
	m := &Map[K, V]{hasher: hasher, log2S: uint(log2)}
	m.shards = make([]*shard[K, V], s)
	for i := range m.shards {
		m.shards[i] = newShard[K, V]()
	}
	return m
}

// NewStringMap is a convenience constructor for string-keyed maps using
// xxhash.
func NewStringMap[V any](numCPU int) *Map[string, V] {
	return New[string, V](numCPU, func(k string) uint64 {
		return xxhash.Sum64String(k)
	})
}

func (m *Map[K, V]) shardFor(hash uint64) *shard[K, V] {
	// Mix high bits into the shard index so short-range key sequences
	// don't correlate with shard placement (spec §4.5).
	idx := (hash << 7) >> (wordBits - m.log2S)
	return m.shards[idx]
}

// Ref is the result of Get: a copy of the value taken under the owning
// shard's read lock. The lock is released before Get returns, so a Ref does
// not hold it and later writes to the key are not reflected in Value.
type Ref[V any] struct {
	Value V
	Found bool
}

// Get looks up key, returning its value and whether it was present.
func (m *Map[K, V]) Get(key K) Ref[V] {
	hash := m.hasher(key)
	sh := m.shardFor(hash)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	h, ok := sh.byKey[key]
	if !ok {
		return Ref[V]{}
	}
	e := sh.buckets[h]
	return Ref[V]{Value: e.val, Found: true}
}

// Insert inserts key->val only if key is absent. Returns true if inserted.
func (m *Map[K, V]) Insert(key K, val V) bool {
	hash := m.hasher(key)
	sh := m.shardFor(hash)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, exists := sh.byKey[key]; exists {
		return false
	}
	sh.byKey[key] = hash
	sh.buckets[hash] = entry[K, V]{key: key, val: val, hash: hash}
	return true
}

// Upsert replaces key's value if present, else inserts it. Returns the
// previous value and whether one existed.
func (m *Map[K, V]) Upsert(key K, val V) (prev V, existed bool) {
	hash := m.hasher(key)
	sh := m.shardFor(hash)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if h, ok := sh.byKey[key]; ok {
		prev = sh.buckets[h].val
		existed = true
	}
	sh.byKey[key] = hash
	sh.buckets[hash] = entry[K, V]{key: key, val: val, hash: hash}
	return prev, existed
}

// Remove removes key, returning its value and whether it was present.
func (m *Map[K, V]) Remove(key K) (val V, existed bool) {
	hash := m.hasher(key)
	sh := m.shardFor(hash)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if h, ok := sh.byKey[key]; ok {
		val = sh.buckets[h].val
		delete(sh.byKey, key)
		delete(sh.buckets, h)
		return val, true
	}
	return val, false
}

// RemoveIf atomically removes key if pred(currentValue) holds, under the
// shard's single write lock.
func (m *Map[K, V]) RemoveIf(key K, pred func(V) bool) (removed bool) {
	hash := m.hasher(key)
	sh := m.shardFor(hash)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	h, ok := sh.byKey[key]
	if !ok {
		return false
	}
	if !pred(sh.buckets[h].val) {
		return false
	}
	delete(sh.byKey, key)
	delete(sh.buckets, h)
	return true
}

// EntryHandle is a write-locked handle on a single key's slot, valid until
// Release is called. It mirrors the Rust Occupied/Vacant entry API.
type EntryHandle[K comparable, V any] struct {
	sh      *shard[K, V]
	key     K
	hash    uint64
	present bool
	val     V
	done    bool
}

// Entry write-locks key's shard and returns a handle for inspecting or
// installing its value. Callers must call Release exactly once.
func (m *Map[K, V]) Entry(key K) *EntryHandle[K, V] {
	hash := m.hasher(key)
	sh := m.shardFor(hash)
	sh.mu.Lock()
	h := &EntryHandle[K, V]{sh: sh, key: key, hash: hash}
	if existingHash, ok := sh.byKey[key]; ok {
		h.present = true
		h.val = sh.buckets[existingHash].val
	}
	return h
}

// Present reports whether the key already existed when the entry was
// opened.
func (h *EntryHandle[K, V]) Present() bool { return h.present }

// Value returns the current value (only meaningful if Present()).
func (h *EntryHandle[K, V]) Value() V { return h.val }

// Set installs v as the key's value.
func (h *EntryHandle[K, V]) Set(v V) {
	h.sh.byKey[h.key] = h.hash
	h.sh.buckets[h.hash] = entry[K, V]{key: h.key, val: v, hash: h.hash}
	h.val = v
	h.present = true
}

// Release unlocks the shard. Safe to call multiple times.
func (h *EntryHandle[K, V]) Release() {
	if h.done {
		return
	}
	h.done = true
	h.sh.mu.Unlock()
}

// Clear empties every shard.
func (m *Map[K, V]) Clear() {
	for _, sh := range m.shards {
		sh.mu.Lock()
		sh.buckets = make(map[uint64]entry[K, V])
		sh.byKey = make(map[K]uint64)
		sh.mu.Unlock()
	}
}

// Len returns the total element count across all shards. Not snapshot
// consistent under concurrent mutation, per spec §4.5.
func (m *Map[K, V]) Len() int {
	total := 0
	for _, sh := range m.shards {
		sh.mu.RLock()
		total += len(sh.byKey)
		sh.mu.RUnlock()
	}
	return total
}

// Capacity returns the number of shards; exposed for parity with the
// original API, not a limit on the number of entries.
func (m *Map[K, V]) Capacity() int {
	return len(m.shards)
}

// IsEmpty reports whether the map has no entries.
func (m *Map[K, V]) IsEmpty() bool { return m.Len() == 0 }

// ForEach iterates every (key, value) pair across all shards. Iteration is
// not snapshot-consistent: it takes each shard's lock in turn and observes
// that shard's state at the time it is visited (spec §4.5).
func (m *Map[K, V]) ForEach(fn func(K, V) bool) {
	for _, sh := range m.shards {
		sh.mu.RLock()
		cont := true
		for k, h := range sh.byKey {
			if !fn(k, sh.buckets[h].val) {
				cont = false
				break
			}
		}
		sh.mu.RUnlock()
		if !cont {
			return
		}
	}
}
