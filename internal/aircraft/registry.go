// Package aircraft implements the hashed, arena-backed aircraft registry:
// one entry per tracked ICAO address, created lazily on first qualifying
// message and reaped by the tracker's periodic stale sweep.
//
// The reference decoder keeps aircraft in a pointer-chased hash table with
// a cyclic `next` field; per the arena design note this is realized here as
// a contiguous slice plus uint32 indices, so the whole registry is a couple
// of flat allocations instead of thousands of small ones.
package aircraft

import (
	"sync"

	"acars_parser/internal/modes"
)

// defaultBuckets matches the reference decoder's default aircraft hash
// table size (2^20 entries); Registry.Count rarely approaches it, but the
// load factor has to stay low for the chained hash table to behave.
const defaultBuckets = 1 << 20

// maxLoadFactor is how oversubscribed the table may become (entries per
// bucket) before GetOrCreate refuses to create new aircraft rather than
// let chain lengths grow unbounded.
const maxLoadFactor = 8

// FieldValidity tracks one field's provenance: who last wrote it, when,
// and whether it has aged past the "stale"/expired thresholds.
type FieldValidity struct {
	Source            modes.Source
	LastSource        modes.Source
	Updated           int64 // unix millis
	NextReduceForward int64
	Stale             bool
}

// Aircraft is one tracked ICAO address. Every exported *Valid field pairs
// with the value field(s) it governs.
type Aircraft struct {
	next uint32 // arena index, 0 == end of chain

	ICAO     uint32
	AddrType modes.AddrType
	Seen     int64 // unix millis of last message, any kind

	Callsign      string
	CallsignValid FieldValidity

	Squawk      uint16
	SquawkValid FieldValidity

	BaroAlt      int
	BaroAltValid FieldValidity
	GeomAlt      int
	GeomAltValid FieldValidity

	Lat, Lon     float64
	PosSurface   bool
	PositionValid FieldValidity
	NIC, Rc      int

	GroundSpeed      float64
	GroundSpeedValid FieldValidity
	Track            float64
	TrackValid       FieldValidity

	HeadingTrue      float64
	HeadingTrueValid FieldValidity
	TAS              float64
	TASValid         FieldValidity
	IAS              float64
	IASValid         FieldValidity
	Mach             float64
	MachValid        FieldValidity
	BaroRate         float64
	BaroRateValid    FieldValidity
	GeomRate         float64
	GeomRateValid    FieldValidity

	// NICSuppA is the NIC supplement-A bit last reported in this
	// aircraft's ME 31 operational status message; it refines the NIC/Rc
	// lookup for every position message decoded afterward.
	NICSuppA      int
	NICSuppAValid bool

	PosReliableOdd, PosReliableEven int

	CPREven, CPROdd     modes.CPRField
	CPREvenTime, CPROddTime int64
	CPREvenValid, CPROddValid bool

	Wind struct {
		Speed, Dir float64
		Valid      bool
		Updated    int64
	}
	OAT struct {
		Value   float64
		Valid   bool
		Updated int64
	}

	Trace *Trace
}

// Trace is a forward reference to the per-aircraft position history owned
// by package trace; kept as an opaque pointer here to avoid an import
// cycle (trace needs to reference Aircraft fields when deciding whether to
// save a point).
type Trace struct {
	Opaque interface{}
}

// Registry is the fixed-bucket hash table of tracked aircraft.
type Registry struct {
	mu      sync.RWMutex
	buckets []uint32 // 1-based arena index into arena, 0 == empty
	arena   []Aircraft
	free    []uint32 // free-list of reclaimed arena slots (1-based)
	count   int
}

func New() *Registry {
	return NewWithBuckets(defaultBuckets)
}

// NewWithBuckets creates a registry with a caller-chosen bucket count,
// rounded up to the next power of two (the hash/bucket mask requires it).
// buckets <= 0 selects defaultBuckets.
func NewWithBuckets(buckets int) *Registry {
	if buckets <= 0 {
		buckets = defaultBuckets
	}
	n := 1
	for n < buckets {
		n <<= 1
	}
	return &Registry{
		buckets: make([]uint32, n),
		arena:   make([]Aircraft, 1, 1024), // index 0 reserved as nil
	}
}

func hash(addr uint32) uint32 {
	h := uint64(addr)
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return uint32(h)
}

func (r *Registry) bucket(addr uint32) uint32 {
	return hash(addr) & uint32(len(r.buckets)-1)
}

// Get returns the aircraft for addr, or nil if not tracked.
func (r *Registry) Get(addr uint32) *Aircraft {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.find(addr)
}

func (r *Registry) find(addr uint32) *Aircraft {
	idx := r.buckets[r.bucket(addr)]
	for idx != 0 {
		a := &r.arena[idx]
		if a.ICAO == addr {
			return a
		}
		idx = a.next
	}
	return nil
}

// GetOrCreate returns the existing aircraft for addr, creating a new one
// if none exists. created reports whether a new entry was allocated. If
// the table is already more than maxLoadFactor times oversubscribed,
// GetOrCreate refuses to create a new entry and returns (nil, false)
// instead of letting hash chains grow without bound.
func (r *Registry) GetOrCreate(addr uint32, now int64) (a *Aircraft, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a := r.find(addr); a != nil {
		return a, false
	}
	if r.count >= maxLoadFactor*len(r.buckets) {
		return nil, false
	}

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
		r.arena[idx] = Aircraft{}
	} else {
		r.arena = append(r.arena, Aircraft{})
		idx = uint32(len(r.arena) - 1)
	}

	b := r.bucket(addr)
	r.arena[idx].ICAO = addr
	r.arena[idx].Seen = now
	r.arena[idx].next = r.buckets[b]
	r.buckets[b] = idx
	r.count++
	return &r.arena[idx], true
}

// Count returns the number of live aircraft.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Destroy unlinks addr and returns its arena slot to the free list.
func (r *Registry) Destroy(addr uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.bucket(addr)
	idx := r.buckets[b]
	var prev uint32
	for idx != 0 {
		a := &r.arena[idx]
		if a.ICAO == addr {
			if prev == 0 {
				r.buckets[b] = a.next
			} else {
				r.arena[prev].next = a.next
			}
			r.arena[idx] = Aircraft{}
			r.free = append(r.free, idx)
			r.count--
			return
		}
		prev = idx
		idx = a.next
	}
}

// ForEach calls fn for every live aircraft. fn must not call Destroy or
// GetOrCreate on the same registry (the stale sweep instead collects
// addresses to destroy and does so after ForEach returns).
func (r *Registry) ForEach(fn func(*Aircraft)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.buckets {
		idx := r.buckets[i]
		for idx != 0 {
			fn(&r.arena[idx])
			idx = r.arena[idx].next
		}
	}
}

// HeadingKnown reports whether the aircraft's true heading is currently
// known (distinct from ground track, which comes from GPS rather than the
// compass).
func (a *Aircraft) HeadingKnown() bool { return a.HeadingTrueValid.Source != modes.SourceInvalid }
