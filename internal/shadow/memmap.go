package shadow

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"shadowprobe/internal/shadowval"
)

// DefaultBuckets is the chained hash table's default bucket count. The
// original keys by address mod a large prime; here the bucket index comes
// from an xxhash digest of the address instead (see DESIGN.md), so any
// power of two works and the usual mask-instead-of-modulo trick applies.
const DefaultBuckets = 1 << 16

// memEntry is one 4-byte-unit slot in the memory-shadow map's chain.
type memEntry struct {
	addr uint64
	val  *shadowval.Value
	next *memEntry
}

// MemoryMap is spec.md's MS: a chained hash table keyed by guest memory
// address, mapping to an optional shadow value per 4-byte unit.
type MemoryMap struct {
	buckets []*memEntry
	pool    *shadowval.Pool
}

// NewMemoryMap returns an empty memory-shadow map with DefaultBuckets
// buckets.
func NewMemoryMap(pool *shadowval.Pool) *MemoryMap {
	return &MemoryMap{buckets: make([]*memEntry, DefaultBuckets), pool: pool}
}

func bucketHash(addr uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], addr)
	return xxhash.Sum64(b[:])
}

func (m *MemoryMap) bucketIndex(addr uint64) int {
	return int(bucketHash(addr) % uint64(len(m.buckets)))
}

// BucketAddr returns a pointer to the bucket's head-entry slot, the fast
// in-IR first-bucket probe spec.md's design notes require: the
// instrumenter can emit a direct load of *bucketAddr and compare its addr
// field before falling through to the general Get/Set path on a miss or
// collision.
func (m *MemoryMap) BucketAddr(addr uint64) **memEntry {
	idx := m.bucketIndex(addr)
	return &m.buckets[idx]
}

// Get returns the shadow value at addr for one 4-byte unit, or nil.
func (m *MemoryMap) Get(addr uint64) *shadowval.Value {
	for e := m.buckets[m.bucketIndex(addr)]; e != nil; e = e.next {
		if e.addr == addr {
			return e.val
		}
	}
	return nil
}

// FastProbe implements the in-IR first-bucket probe. An exact address
// match at the bucket's head returns its value with ok=true; an empty
// bucket is a confirmed miss and returns nil with ok=true. Only a
// head-entry collision returns ok=false, so the caller falls through to
// Get.
func (m *MemoryMap) FastProbe(addr uint64) (val *shadowval.Value, ok bool) {
	head := *m.BucketAddr(addr)
	if head == nil {
		return nil, true // empty bucket: a confirmed miss, no fallthrough needed
	}
	if head.addr == addr {
		return head.val, true
	}
	return nil, false // collision: fall through to Get
}

// Set installs sv at addr for one 4-byte unit, disowning any previous
// occupant before owning sv (spec §5's disown-precedes-install rule). A
// self-store (sv already occupying addr) is a no-op, matching
// RegisterMap.Set's guard against recycling a refcount-1 box out from
// under the slot it still occupies.
func (m *MemoryMap) Set(addr uint64, sv *shadowval.Value) {
	if sv == nil {
		m.Clear(addr)
		return
	}
	idx := m.bucketIndex(addr)
	for e := m.buckets[idx]; e != nil; e = e.next {
		if e.addr == addr {
			prev := e.val
			if prev == sv {
				return
			}
			if prev != nil {
				m.pool.Disown(prev)
			}
			m.pool.Own(sv)
			e.val = sv
			return
		}
	}
	m.pool.Own(sv)
	m.buckets[idx] = &memEntry{addr: addr, val: sv, next: m.buckets[idx]}
}

// Clear removes any shadow at addr, disowning it if present.
func (m *MemoryMap) Clear(addr uint64) {
	idx := m.bucketIndex(addr)
	var prev *memEntry
	for e := m.buckets[idx]; e != nil; e = e.next {
		if e.addr == addr {
			if e.val != nil {
				m.pool.Disown(e.val)
			}
			if prev == nil {
				m.buckets[idx] = e.next
			} else {
				prev.next = e.next
			}
			return
		}
		prev = e
	}
}

// GetRange / SetRange / ClearRange operate over size consecutive 4-byte
// units starting at addr, the granularity Load/Store instructions actually
// need (spec §3's MS is "per 4-byte unit"; multi-byte accesses touch
// several units).
func (m *MemoryMap) GetRange(addr uint64, size int) []*shadowval.Value {
	units := size / 4
	if units == 0 {
		units = 1
	}
	out := make([]*shadowval.Value, units)
	for i := 0; i < units; i++ {
		out[i] = m.Get(addr + uint64(i*4))
	}
	return out
}

func (m *MemoryMap) SetRange(addr uint64, vals []*shadowval.Value) {
	for i, v := range vals {
		m.Set(addr+uint64(i*4), v)
	}
}

func (m *MemoryMap) ClearRange(addr uint64, size int) {
	units := size / 4
	if units == 0 {
		units = 1
	}
	for i := 0; i < units; i++ {
		m.Clear(addr + uint64(i*4))
	}
}
