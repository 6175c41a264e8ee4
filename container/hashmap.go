package container

import "iter"

// Integer is the key constraint for HashMap. Keys are used as their own
// hash, so they must already be well distributed (handles, ids).
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Bucket status, stored in the low two bits of the metadata byte.
const (
	bucketEmpty uint8 = iota
	bucketFilled
	bucketRemoved
)

const (
	statusMask = 0x3
	tagShift   = 2
	tagMask    = 0x3F
)

// Bucket is one HashMap entry. It is exported so callers can hand the map
// an Allocator[Bucket[K, V]].
type Bucket[K Integer, V any] struct {
	meta  uint8 // tag<<2 | status
	key   K
	value V
}

func (b *Bucket[K, V]) status() uint8 { return b.meta & statusMask }

func hashTag[K Integer](k K) uint8 { return uint8(uint64(k) & tagMask) }

// HashMap is an open addressing hash table with linear probing.
//
// The home bucket of a key is key % capacity and its tag is key & 0x3F.
// Removed buckets are tombstoned so probes for other keys still pass
// through them.
type HashMap[K Integer, V any] struct {
	buckets    *Array[Bucket[K, V]]
	size       int
	tombstones int
}

// NewHashMap creates an empty map. A nil allocator means the Go heap.
func NewHashMap[K Integer, V any](alloc Allocator[Bucket[K, V]]) *HashMap[K, V] {
	return &HashMap[K, V]{buckets: NewArray(alloc)}
}

func (m *HashMap[K, V]) home(k K) int {
	return int(uint64(k) % uint64(m.buckets.Len()))
}

// find returns the bucket index holding k, or -1.
func (m *HashMap[K, V]) find(k K) int {
	n := m.buckets.Len()
	if n == 0 || m.size == 0 {
		return -1
	}
	tag := hashTag(k)
	i := m.home(k)
	for range n {
		b := m.buckets.Ptr(i)
		switch b.status() {
		case bucketEmpty:
			return -1
		case bucketFilled:
			if b.meta>>tagShift == tag && b.key == k {
				return i
			}
		}
		i++
		if i == n {
			i = 0
		}
	}
	return -1
}

// Insert stores v under k, replacing any existing value. It returns false
// only when growing the table failed.
func (m *HashMap[K, V]) Insert(k K, v V) bool {
	if i := m.find(k); i >= 0 {
		m.buckets.Ptr(i).value = v
		return true
	}
	if n := m.buckets.Len(); (m.size+m.tombstones)*3 >= n*2 {
		// Grow only while live keys fill at least half the load limit.
		// Below that the trigger came from tombstones, and rehashing at
		// the same size clears them.
		capacity := n
		if m.size*3 >= n {
			capacity = growCapacity(n, m.size+1)
		}
		if !m.rehash(capacity) {
			return false
		}
	}
	m.place(k, v)
	return true
}

// place puts a key known to be absent into the first free bucket.
func (m *HashMap[K, V]) place(k K, v V) {
	n := m.buckets.Len()
	i := m.home(k)
	for {
		b := m.buckets.Ptr(i)
		switch b.status() {
		case bucketEmpty:
			b.meta, b.key, b.value = hashTag(k)<<tagShift|bucketFilled, k, v
			m.size++
			return
		case bucketRemoved:
			b.meta, b.key, b.value = hashTag(k)<<tagShift|bucketFilled, k, v
			m.size++
			m.tombstones--
			return
		}
		i++
		if i == n {
			i = 0
		}
	}
}

func (m *HashMap[K, V]) rehash(capacity int) bool {
	if capacity < m.size {
		capacity = m.size
	}
	next := NewArray(m.buckets.allocator())
	if !next.Resize(capacity) {
		return false
	}
	old := m.buckets
	m.buckets = next
	m.size = 0
	m.tombstones = 0
	for _, b := range old.Slice() {
		if b.status() == bucketFilled {
			m.place(b.key, b.value)
		}
	}
	old.Free()
	return true
}

// Has reports whether k is present.
func (m *HashMap[K, V]) Has(k K) bool { return m.find(k) >= 0 }

// Get returns the value stored under k.
func (m *HashMap[K, V]) Get(k K) (V, bool) {
	if i := m.find(k); i >= 0 {
		return m.buckets.Ptr(i).value, true
	}
	var zero V
	return zero, false
}

// Lookup returns the value stored under k, or def.
func (m *HashMap[K, V]) Lookup(k K, def V) V {
	if i := m.find(k); i >= 0 {
		return m.buckets.Ptr(i).value
	}
	return def
}

// Remove tombstones the bucket holding k.
func (m *HashMap[K, V]) Remove(k K) bool {
	i := m.find(k)
	if i < 0 {
		return false
	}
	var zero V
	b := m.buckets.Ptr(i)
	b.meta = b.meta&^statusMask | bucketRemoved
	b.value = zero
	m.size--
	m.tombstones++
	return true
}

// All iterates filled buckets in bucket order. Inserting during iteration
// invalidates it.
func (m *HashMap[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for i := range m.buckets.Len() {
			b := m.buckets.Ptr(i)
			if b.status() != bucketFilled {
				continue
			}
			if !yield(b.key, b.value) {
				return
			}
		}
	}
}

// Len returns the number of stored keys.
func (m *HashMap[K, V]) Len() int { return m.size }

// Cap returns the bucket count.
func (m *HashMap[K, V]) Cap() int { return m.buckets.Len() }

// Clear empties every bucket and keeps the table size.
func (m *HashMap[K, V]) Clear() {
	clear(m.buckets.Slice())
	m.size = 0
	m.tombstones = 0
}

// Free releases the bucket storage.
func (m *HashMap[K, V]) Free() {
	m.buckets.Free()
	m.size = 0
	m.tombstones = 0
}
