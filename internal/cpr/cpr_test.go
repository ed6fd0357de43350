package cpr

import (
	"math"
	"testing"
)

// encode mirrors the receiver-side encoding of CPR so tests can round-trip
// known positions without depending on real captured frames.
func encode(lat, lon float64, odd, surface bool) Frame {
	dlat0, dlat1 := airDlat0, airDlat1
	if surface {
		dlat0, dlat1 = sfcDlat0, sfcDlat1
	}
	dlat := dlat0
	if odd {
		dlat = dlat1
	}
	scale := float64(1 << 17)

	yz := math.Floor(scale*mod2(lat, dlat)/dlat + 0.5)
	y := uint32(int64(yz) & 0x1ffff)

	ni := nl(lat)
	if odd {
		ni = maxInt(ni-1, 1)
	}
	dlon := 360.0 / float64(ni)
	xz := math.Floor(scale*mod2(lon, dlon)/dlon + 0.5)
	x := uint32(int64(xz) & 0x1ffff)

	return Frame{Lat: y, Lon: x, Odd: odd, Surface: surface}
}

func TestGlobalAirborneRoundTrip(t *testing.T) {
	cases := []LatLon{
		{Lat: 42.257, Lon: -8.633},
		{Lat: 51.5, Lon: -0.12},
		{Lat: -33.87, Lon: 151.21},
	}
	for _, want := range cases {
		even := encode(want.Lat, want.Lon, false, false)
		odd := encode(want.Lat, want.Lon, true, false)

		got, err := DecodeGlobal(even, odd, nil, 0)
		if err != nil {
			t.Fatalf("DecodeGlobal(%v): %v", want, err)
		}
		if math.Abs(got.Lat-want.Lat) > 0.01 || math.Abs(got.Lon-want.Lon) > 0.01 {
			t.Errorf("DecodeGlobal(%v) = %v, want within 0.01deg", want, got)
		}
	}
}

func TestGlobalRangeCheckRejectsFarPosition(t *testing.T) {
	want := LatLon{Lat: 42.257, Lon: -8.633}
	even := encode(want.Lat, want.Lon, false, false)
	odd := encode(want.Lat, want.Lon, true, false)

	ref := LatLon{Lat: 0, Lon: 0} // thousands of NM away
	_, err := DecodeGlobal(even, odd, &ref, 100)
	if err != ErrBadData {
		t.Fatalf("expected ErrBadData, got %v", err)
	}
}

func TestLocalDecodeNearReference(t *testing.T) {
	want := LatLon{Lat: 42.257, Lon: -8.633}
	f := encode(want.Lat, want.Lon, false, false)
	ref := LatLon{Lat: 42.2, Lon: -8.7}

	got, err := DecodeLocal(f, ref, 360)
	if err != nil {
		t.Fatalf("DecodeLocal: %v", err)
	}
	if math.Abs(got.Lat-want.Lat) > 0.01 || math.Abs(got.Lon-want.Lon) > 0.01 {
		t.Errorf("DecodeLocal = %v, want %v", got, want)
	}
}
