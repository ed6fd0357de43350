package trace

import (
	"testing"
	"time"
)

func TestShouldSaveAltitudeDelta(t *testing.T) {
	base := time.Now()
	prev := Point{Time: base, AltFt: 10000}
	next := Point{Time: base.Add(time.Second), AltFt: 10200}
	if !ShouldSave(prev, next, MaxElapsed(false)) {
		t.Fatal("200ft altitude delta should trigger a save")
	}
}

func TestShouldSaveDropsDuplicate(t *testing.T) {
	base := time.Now()
	p := Point{Time: base, Lat: 10, Lon: 20, AltFt: 5000}
	next := p
	next.Time = base.Add(500 * time.Millisecond)
	if ShouldSave(p, next, MaxElapsed(false)) {
		t.Fatal("near-duplicate point within 1s should not be saved")
	}
}

func TestShouldSaveKeepaliveAfterMaxElapsed(t *testing.T) {
	base := time.Now()
	prev := Point{Time: base, Lat: 10, Lon: 20, AltFt: 5000}
	next := Point{Time: base.Add(31 * time.Second), Lat: 10, Lon: 20, AltFt: 5000}
	if !ShouldSave(prev, next, MaxElapsed(false)) {
		t.Fatal("expected periodic keepalive save after max_elapsed")
	}
}

func TestRingFreezesAfterLimit(t *testing.T) {
	r := NewRing()
	for i := 0; i < maxRingPoints; i++ {
		r.Add(Point{Time: time.Now(), Lat: 1, Lon: 2})
	}
	if len(r.Chunks()) == 0 {
		t.Fatal("expected the ring to freeze a chunk once it reached its limit")
	}
	if len(r.Live()) != 0 {
		t.Fatal("expected the live tail to be empty right after a freeze")
	}
}
