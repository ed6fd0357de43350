// Package trace maintains each aircraft's compressed position history: a
// growing ring of recent points, periodically frozen into zstd-compressed
// chunks once it reaches its configured maximum, per §4.8.
package trace

import (
	"bytes"
	"math"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Point is one saved trace sample. Ring.Add flags every 4th point as Wide,
// mirroring the reference decoder's fourState packing without needing an
// explicit bit-packed struct in Go; it does not clear Callsign/Squawk on
// the other points. writePoint lays out each record by hand when a chunk
// is frozen; the in-memory ring keeps plain structs.
type Point struct {
	Time     time.Time
	Lat, Lon float64
	AltFt    int
	GS       float64
	Track    float64
	OnGround bool

	Wide     bool
	Callsign string
	Squawk   uint16
}

const maxRingPoints = 4096

// Ring is one aircraft's live (uncompressed) trace tail plus any chunks
// already frozen and compressed.
type Ring struct {
	mu     sync.Mutex
	points []Point
	chunks [][]byte // zstd-compressed encoded Point slices, oldest first
	turnDensity float64
	lastWide    int
}

func NewRing() *Ring {
	return &Ring{turnDensity: 4.5}
}

// ShouldSave implements the save policy of §4.8: altitude/speed/heading
// deltas, air/ground transitions, squawk 7700, and a periodic keepalive.
func ShouldSave(prev, next Point, maxElapsed time.Duration) bool {
	if prev.Time.IsZero() {
		return true
	}
	elapsed := next.Time.Sub(prev.Time)
	if elapsed < time.Second && int(prev.Lat*1e5) == int(next.Lat*1e5) && int(prev.Lon*1e5) == int(next.Lon*1e5) {
		return false
	}
	if abs(next.AltFt-prev.AltFt) >= 125 {
		return true
	}
	speedThreshold := 5.0
	if next.AltFt > 10000 {
		speedThreshold = 10.0
	}
	if absFloat(next.GS-prev.GS) > speedThreshold {
		return true
	}
	if next.OnGround != prev.OnGround {
		return true
	}
	if next.Squawk == 7700 {
		return true
	}
	if elapsed >= maxElapsed {
		return true
	}
	if headingChangeSignificant(prev, next, elapsed) {
		return true
	}
	return false
}

func headingChangeSignificant(prev, next Point, elapsed time.Duration) bool {
	dTrack := absFloat(normalizeDeg(next.Track - prev.Track))
	if next.OnGround {
		d := greatCircleApprox(prev.Lat, prev.Lon, next.Lat, next.Lon)
		return d*dTrack > 250
	}
	return elapsed.Seconds()*dTrack*4.5 > 100
}

func normalizeDeg(d float64) float64 {
	for d > 180 {
		d -= 360
	}
	for d < -180 {
		d += 360
	}
	return d
}

func greatCircleApprox(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := lat2 - lat1
	dLon := lon2 - lon1
	return (dLat*dLat + dLon*dLon) * 60 // rough nm approximation for threshold purposes
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// MaxElapsed returns the periodic-keepalive interval for airborne vs.
// surface aircraft.
func MaxElapsed(onGround bool) time.Duration {
	if onGround {
		return 2 * time.Minute
	}
	return 30 * time.Second
}

// Add appends a point to the ring (after the caller has already applied
// ShouldSave), marking every 4th point "wide", and freezes the ring into a
// new compressed chunk once it reaches maxRingPoints.
func (r *Ring) Add(p Point) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastWide++
	if r.lastWide >= 4 {
		p.Wide = true
		r.lastWide = 0
	}
	r.points = append(r.points, p)

	if len(r.points) >= maxRingPoints {
		r.freeze()
	}
}

// freeze compresses the current ring into a chunk and clears it. Caller
// must hold r.mu.
func (r *Ring) freeze() {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return
	}
	for _, p := range r.points {
		writePoint(enc, p)
	}
	enc.Close()
	r.chunks = append(r.chunks, buf.Bytes())
	r.points = r.points[:0]
}

func writePoint(w *zstd.Encoder, p Point) {
	var rec [32]byte
	putFloat32(rec[0:4], float32(p.Lat))
	putFloat32(rec[4:8], float32(p.Lon))
	putInt32(rec[8:12], int32(p.AltFt))
	putFloat32(rec[12:16], float32(p.GS))
	putFloat32(rec[16:20], float32(p.Track))
	if p.OnGround {
		rec[20] = 1
	}
	if p.Wide {
		rec[20] |= 2
	}
	putInt32(rec[24:28], int32(p.Squawk))
	w.Write(rec[:])
}

func putFloat32(b []byte, v float32) {
	putUint32(b, math.Float32bits(v))
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putInt32(b []byte, v int32) { putUint32(b, uint32(v)) }

// Chunks returns the currently frozen compressed chunks, for archival.
func (r *Ring) Chunks() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.chunks))
	copy(out, r.chunks)
	return out
}

// Live returns the uncompressed tail not yet frozen into a chunk.
func (r *Ring) Live() []Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Point, len(r.points))
	copy(out, r.points)
	return out
}
