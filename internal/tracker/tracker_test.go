package tracker

import (
	"testing"
	"time"

	"acars_parser/internal/modes"
)

func TestUpdateFromMessageCreatesAircraft(t *testing.T) {
	tr := New(DefaultConfig(), Callbacks{})
	mm := &modes.Message{
		AddrIcao:      0xA835AF,
		AddrType:      modes.AddrAdsbIcao,
		Source:        modes.SourceAdsb,
		RecvTime:      time.Now(),
		CallsignValid: true,
		Callsign:      "UAL123",
	}
	a := tr.UpdateFromMessage(mm)
	if a.Callsign != "UAL123" {
		t.Fatalf("Callsign = %q, want UAL123", a.Callsign)
	}
	if tr.Registry().Count() != 1 {
		t.Fatalf("expected exactly one tracked aircraft")
	}
}

func TestLowerSourceCannotOverwriteFreshHigherSource(t *testing.T) {
	tr := New(DefaultConfig(), Callbacks{})
	now := time.Now()

	tr.UpdateFromMessage(&modes.Message{
		AddrIcao: 1, Source: modes.SourceAdsb, RecvTime: now,
		SquawkValid: true, Squawk: 1200,
	})
	a := tr.UpdateFromMessage(&modes.Message{
		AddrIcao: 1, Source: modes.SourceMlat, RecvTime: now.Add(time.Second),
		SquawkValid: true, Squawk: 7700,
	})
	if a.Squawk != 1200 {
		t.Fatalf("Squawk = %d, want 1200 (mlat should not overwrite fresh adsb)", a.Squawk)
	}
}

func TestHigherSourceOverwritesLowerSource(t *testing.T) {
	tr := New(DefaultConfig(), Callbacks{})
	now := time.Now()

	tr.UpdateFromMessage(&modes.Message{
		AddrIcao: 1, Source: modes.SourceMlat, RecvTime: now,
		SquawkValid: true, Squawk: 1200,
	})
	a := tr.UpdateFromMessage(&modes.Message{
		AddrIcao: 1, Source: modes.SourceAdsb, RecvTime: now.Add(time.Second),
		SquawkValid: true, Squawk: 7700,
	})
	if a.Squawk != 7700 {
		t.Fatalf("Squawk = %d, want 7700 (higher source should always win)", a.Squawk)
	}
}

func TestGlobalPositionAcceptance(t *testing.T) {
	tr := New(DefaultConfig(), Callbacks{})
	now := time.Now()

	even := encodeTestFrame(42.257, -8.633, false)
	odd := encodeTestFrame(42.257, -8.633, true)

	tr.UpdateFromMessage(&modes.Message{
		AddrIcao: 0xA835AF, Source: modes.SourceAdsb, RecvTime: now,
		CPRValid: true, CPR: even, NIC: 8, Rc: 186,
	})
	a := tr.UpdateFromMessage(&modes.Message{
		AddrIcao: 0xA835AF, Source: modes.SourceAdsb, RecvTime: now.Add(time.Second),
		CPRValid: true, CPR: odd, NIC: 8, Rc: 186,
	})

	if a.PositionValid.Source == modes.SourceInvalid {
		t.Fatal("expected a position to be accepted")
	}
	if absFloat(a.Lat-42.257) > 0.05 || absFloat(a.Lon-(-8.633)) > 0.05 {
		t.Fatalf("decoded position = (%v, %v), want near (42.257, -8.633)", a.Lat, a.Lon)
	}
	if a.PosReliableOdd < 1 || a.PosReliableEven < 2 {
		t.Fatalf("reliability counters = (%d, %d), want at least (1, 2)", a.PosReliableOdd, a.PosReliableEven)
	}
}

// TestSpeedCheckRejectsImplausibleJump covers the S4 scenario: a position
// the aircraft could not plausibly have reached since its last accepted
// fix is rejected, marked pos_bad, and both CPR halves are invalidated so
// a later, slower-arriving pair doesn't get stitched to the rejected one.
func TestSpeedCheckRejectsImplausibleJump(t *testing.T) {
	tr := New(DefaultConfig(), Callbacks{})
	now := time.Now()

	even := encodeTestFrame(42.257, -8.633, false)
	odd := encodeTestFrame(42.257, -8.633, true)
	tr.UpdateFromMessage(&modes.Message{
		AddrIcao: 0xA835AF, Source: modes.SourceAdsb, RecvTime: now,
		CPRValid: true, CPR: even, NIC: 8, Rc: 186,
	})
	a := tr.UpdateFromMessage(&modes.Message{
		AddrIcao: 0xA835AF, Source: modes.SourceAdsb, RecvTime: now.Add(time.Second),
		CPRValid: true, CPR: odd, NIC: 8, Rc: 186,
	})
	if a.PositionValid.Source == modes.SourceInvalid {
		t.Fatal("expected the initial position to be accepted")
	}

	// ~5.5km away is well inside CPR's own plausible-range check, but a
	// couple of seconds is nowhere near enough time to cover it even at
	// the tracker's generous no-known-speed default ceiling.
	jumpEven := encodeTestFrame(42.307, -8.633, false)
	jumpOdd := encodeTestFrame(42.307, -8.633, true)
	mm1 := &modes.Message{
		AddrIcao: 0xA835AF, Source: modes.SourceAdsb, RecvTime: now.Add(2 * time.Second),
		CPRValid: true, CPR: jumpEven, NIC: 8, Rc: 186,
	}
	tr.UpdateFromMessage(mm1)
	mm2 := &modes.Message{
		AddrIcao: 0xA835AF, Source: modes.SourceAdsb, RecvTime: now.Add(3 * time.Second),
		CPRValid: true, CPR: jumpOdd, NIC: 8, Rc: 186,
	}
	tr.UpdateFromMessage(mm2)

	if !mm2.PosBad {
		t.Fatal("expected the implausible jump to be marked pos_bad")
	}
	if absFloat(a.Lat-42.257) > 0.05 || absFloat(a.Lon-(-8.633)) > 0.05 {
		t.Fatalf("position should not have moved to the rejected fix, got (%v, %v)", a.Lat, a.Lon)
	}
	if a.CPREvenValid || a.CPROddValid {
		t.Fatal("expected both CPR halves to be invalidated after a speed-check rejection")
	}
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// encodeTestFrame mirrors cpr_test.go's encode helper without importing
// the cpr package's test file (unexported).
func encodeTestFrame(lat, lon float64, odd bool) modes.CPRField {
	const scale = float64(1 << 17)
	dlat := 360.0 / 60.0
	if odd {
		dlat = 360.0 / 59.0
	}
	y := uint32(int64(modFloor(scale*modFloat(lat, dlat)/dlat+0.5)) & 0x1ffff)

	ni := 59
	if odd {
		ni = 58
	}
	dlon := 360.0 / float64(ni)
	x := uint32(int64(modFloor(scale*modFloat(lon, dlon)/dlon+0.5)) & 0x1ffff)

	return modes.CPRField{Lat: y, Lon: x, Odd: odd, Surface: false}
}

func modFloat(a, b float64) float64 {
	m := a
	for m < 0 {
		m += b
	}
	for m >= b {
		m -= b
	}
	return m
}

func modFloor(v float64) float64 {
	i := float64(int64(v))
	if v < 0 && i != v {
		i--
	}
	return i
}
