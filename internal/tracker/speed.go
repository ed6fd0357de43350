package tracker

import (
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"acars_parser/internal/aircraft"
	"acars_parser/internal/cpr"
	"acars_parser/internal/modes"
)

const nmInMeters = 1852.0

// speedCheck rejects a proposed position that the aircraft could not
// plausibly have reached since its last accepted position, given its last
// known speed (or a conservative default) inflated for the age of that
// speed measurement, per §4.7.
func (t *Tracker) speedCheck(a *aircraft.Aircraft, pos cpr.LatLon, mm *modes.Message, now int64) bool {
	if a.PositionValid.Source == modes.SourceInvalid {
		return true // nothing to compare against yet
	}

	elapsed := time.Duration(now-a.PositionValid.Updated) * time.Millisecond
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}

	// the speed ceiling is inflated by the age of the speed measurement
	// plausibleMaxSpeedKt picks; with none, the position age stands in.
	speedAge := elapsed
	switch {
	case a.GroundSpeedValid.Source != modes.SourceInvalid:
		speedAge = time.Duration(now-a.GroundSpeedValid.Updated) * time.Millisecond
	case a.TAS > 0:
		speedAge = time.Duration(now-a.TASValid.Updated) * time.Millisecond
	case a.IAS > 0:
		speedAge = time.Duration(now-a.IASValid.Updated) * time.Millisecond
	}
	speed := plausibleMaxSpeedKt(a, mm, speedAge)

	base := 0.0
	if a.PosSurface {
		base = 100 // meters
	}

	limitMeters := base + speed*(nmInMeters/3600.0)*elapsed.Seconds()

	d := geo.Distance(orb.Point{a.Lon, a.Lat}, orb.Point{pos.Lon, pos.Lat})

	if d <= limitMeters {
		return true
	}

	// a proposed position roughly opposite the tracked heading is almost
	// certainly a decode artifact rather than a real maneuver; don't count
	// it against reliability, just drop it silently.
	if a.TrackValid.Source != modes.SourceInvalid {
		bearing := initialBearing(a.Lat, a.Lon, pos.Lat, pos.Lon)
		diff := math.Abs(normalizeAngle(bearing - a.Track))
		if diff > 170 {
			mm.PosIgnore = true
		}
	}

	return false
}

// plausibleMaxSpeedKt derives a speed ceiling from the last known ground
// speed (falling back to TAS, IAS, or a generous default), inflated by a
// third and by the age of that speed fix, and clamped to sane bounds.
func plausibleMaxSpeedKt(a *aircraft.Aircraft, mm *modes.Message, elapsed time.Duration) float64 {
	base := 0.0
	switch {
	case a.GroundSpeedValid.Source != modes.SourceInvalid:
		base = a.GroundSpeed
	case a.TAS > 0:
		base = a.TAS
	case a.IAS > 0:
		base = a.IAS
	default:
		if a.PosSurface {
			base = 150
		} else {
			base = 900
		}
	}

	inflated := base*(4.0/3.0) + elapsed.Seconds()*2 // age inflation

	min, max := 200.0, 2400.0
	if a.PosSurface {
		min, max = 20.0, 150.0
	}
	if mm.Source == modes.SourceMlat || mm.Source == modes.SourceIndirect {
		max = 2400
	}
	if inflated < min {
		inflated = min
	}
	if inflated > max {
		inflated = max
	}
	return inflated
}

func initialBearing(lat1, lon1, lat2, lon2 float64) float64 {
	φ1 := lat1 * math.Pi / 180
	φ2 := lat2 * math.Pi / 180
	Δλ := (lon2 - lon1) * math.Pi / 180
	y := math.Sin(Δλ) * math.Cos(φ2)
	x := math.Cos(φ1)*math.Sin(φ2) - math.Sin(φ1)*math.Cos(φ2)*math.Cos(Δλ)
	θ := math.Atan2(y, x) * 180 / math.Pi
	return normalizeAngle(θ)
}

func normalizeAngle(a float64) float64 {
	for a > 180 {
		a -= 360
	}
	for a < -180 {
		a += 360
	}
	return a
}
