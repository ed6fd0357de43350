// Package cpr decodes Compact Position Reporting (CPR) encoded latitude
// and longitude pairs per ICAO Annex 10 / Doc 9871 Appendix C, the scheme
// used by Mode S extended squitter airborne and surface position messages.
//
// CPR halves an aircraft's position into even- and odd-frame fragments; a
// global decode needs one of each within a bounded time window, a local
// decode needs only one fragment plus a nearby reference position.
package cpr

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

var (
	ErrSkipped  = errors.New("cpr: insufficient input or zone boundary crossed")
	ErrBadData  = errors.New("cpr: decoded position failed a plausibility check")
	ErrNoRef    = errors.New("cpr: local decode requires a reference position")
)

// Frame is one CPR-encoded half position.
type Frame struct {
	Lat, Lon uint32 // 17-bit raw values
	Odd      bool
	Surface  bool
}

type LatLon struct {
	Lat, Lon float64
}

const (
	airDlat0 = 360.0 / 60.0
	airDlat1 = 360.0 / 59.0
	sfcDlat0 = 90.0 / 60.0
	sfcDlat1 = 90.0 / 59.0
)

func nl(lat float64) int {
	if lat == 0 {
		return 59
	}
	if lat == 87 || lat == -87 {
		return 2
	}
	if lat > 87 || lat < -87 {
		return 1
	}
	a := 1 - math.Cos(math.Pi/30)
	b := math.Cos(math.Pi / 180 * math.Abs(lat))
	b = b * b
	v := math.Floor(2 * math.Pi / math.Acos(1-a/b))
	return int(v)
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// DecodeGlobal combines an even and an odd CPR frame captured from the
// same aircraft into an unambiguous global position. ref, when non-nil, is
// used only for the surface variant (which needs a receiver- or
// aircraft-relative quadrant disambiguation) and for the post-decode range
// check.
func DecodeGlobal(even, odd Frame, ref *LatLon, maxRangeNM float64) (LatLon, error) {
	if even.Surface != odd.Surface {
		return LatLon{}, ErrSkipped
	}
	surface := even.Surface

	dlat0, dlat1 := airDlat0, airDlat1
	scale := float64(1 << 17)
	if surface {
		dlat0, dlat1 = sfcDlat0, sfcDlat1
	}

	j := int(math.Floor((59*float64(even.Lat) - 60*float64(odd.Lat)) / scale + 0.5))

	latEven := dlat0 * (float64(mod(j, 60)) + float64(even.Lat)/scale)
	latOdd := dlat1 * (float64(mod(j, 59)) + float64(odd.Lat)/scale)
	if surface {
		// surface CPR only covers +/-90; resolve the quadrant using ref.
		if ref != nil {
			latEven = resolveSurfaceLat(latEven, ref.Lat)
			latOdd = resolveSurfaceLat(latOdd, ref.Lat)
		}
	} else {
		if latEven >= 270 {
			latEven -= 360
		}
		if latOdd >= 270 {
			latOdd -= 360
		}
	}

	nlEven := nl(latEven)
	nlOdd := nl(latOdd)
	if nlEven != nlOdd {
		return LatLon{}, ErrSkipped
	}

	var lat float64
	var lon float64
	niLat := nlEven
	if niLat == 0 {
		niLat = 1
	}
	m := int(math.Floor((float64(even.Lon)*float64(niLat-1) - float64(odd.Lon)*float64(niLat))/scale + 0.5))

	nEven := maxInt(niLat, 1)
	nOdd := maxInt(niLat-1, 1)

	if !odd.Odd {
		// even is actually the most recent: decode using even longitude.
		lat = latEven
		lon = (360.0 / float64(nEven)) * (float64(mod(m, nEven)) + float64(even.Lon)/scale)
	} else {
		lat = latOdd
		lon = (360.0 / float64(nOdd)) * (float64(mod(m, nOdd)) + float64(odd.Lon)/scale)
	}

	if !surface {
		if lon > 180 {
			lon -= 360
		}
	} else if ref != nil {
		lon = resolveSurfaceLon(lon, ref.Lon)
	}

	pos := LatLon{Lat: lat, Lon: lon}
	if ref != nil && maxRangeNM > 0 {
		if err := rangeCheck(pos, *ref, maxRangeNM); err != nil {
			return LatLon{}, err
		}
	}
	return pos, nil
}

// DecodeLocal recovers a position from a single CPR frame using a nearby
// reference position, valid only while the true position is known to lie
// within one CPR zone of ref (rangeLimitNM bounds that, per the "local CPR"
// design in §4.4).
func DecodeLocal(f Frame, ref LatLon, rangeLimitNM float64) (LatLon, error) {
	dlat0, dlat1 := airDlat0, airDlat1
	if f.Surface {
		dlat0, dlat1 = sfcDlat0, sfcDlat1
	}
	scale := float64(1 << 17)

	dlat := dlat0
	if f.Odd {
		dlat = dlat1
	}
	j := int(math.Floor(ref.Lat/dlat)) + int(math.Floor(0.5+mod2(ref.Lat, dlat)/dlat-float64(f.Lat)/scale))
	lat := dlat * (float64(j) + float64(f.Lat)/scale)

	ni := nl(lat)
	if f.Odd {
		ni = maxInt(ni-1, 1)
	}
	dlon := 360.0 / float64(ni)

	m := int(math.Floor(ref.Lon/dlon)) + int(math.Floor(0.5+mod2(ref.Lon, dlon)/dlon-float64(f.Lon)/scale))
	lon := dlon * (float64(m) + float64(f.Lon)/scale)

	pos := LatLon{Lat: lat, Lon: lon}
	if err := rangeCheck(pos, ref, rangeLimitNM); err != nil {
		return LatLon{}, err
	}
	return pos, nil
}

func mod2(a, b float64) float64 {
	m := math.Mod(a, b)
	if m < 0 {
		m += b
	}
	return m
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func resolveSurfaceLat(lat, refLat float64) float64 {
	for lat-refLat > 45 {
		lat -= 90
	}
	for lat-refLat < -45 {
		lat += 90
	}
	return lat
}

func resolveSurfaceLon(lon, refLon float64) float64 {
	for lon-refLon > 90 {
		lon -= 180
	}
	for lon-refLon < -90 {
		lon += 180
	}
	return lon
}

// rangeCheck rejects a decoded position implausibly far from ref, using
// great-circle distance.
func rangeCheck(pos, ref LatLon, maxRangeNM float64) error {
	if maxRangeNM <= 0 {
		return nil
	}
	d := geo.Distance(orb.Point{ref.Lon, ref.Lat}, orb.Point{pos.Lon, pos.Lat})
	const nmInMeters = 1852.0
	if d/nmInMeters > maxRangeNM {
		return ErrBadData
	}
	return nil
}
