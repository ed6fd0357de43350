package tracker

import (
	"fmt"
	"math"
	"time"

	"github.com/patrickmn/go-cache"

	"acars_parser/internal/aircraft"
	"acars_parser/internal/modes"
)

// declinationCache memoizes the (expensive) geomagnetic-model lookup by a
// rounded lat/lon cell, the same TTL-cache pattern Regentag-go1090 uses for
// its interactive display's derived data.
var declinationCache = cache.New(1*time.Hour, 10*time.Minute)

// magneticDeclination returns an approximate magnetic declination (degrees,
// east positive) for a position, cached per ~1 degree cell since declination
// varies slowly over the distance a single aircraft covers in a session.
//
// This is a simplified dipole approximation, not a full WMM evaluation;
// good enough to convert a true heading/track to magnetic within a degree
// or two at most latitudes, which is the precision the tracker needs it
// for (heading consistency checks, not certified navigation).
func magneticDeclination(lat, lon float64) float64 {
	key := fmt.Sprintf("%.0f,%.0f", lat, lon)
	if v, ok := declinationCache.Get(key); ok {
		return v.(float64)
	}
	const poleLat, poleLon = 80.65, -72.68 // approximate north magnetic pole
	φ1 := lat * math.Pi / 180
	φ2 := poleLat * math.Pi / 180
	Δλ := (poleLon - lon) * math.Pi / 180
	y := math.Sin(Δλ) * math.Cos(φ2)
	x := math.Cos(φ1)*math.Sin(φ2) - math.Sin(φ1)*math.Cos(φ2)*math.Cos(Δλ)
	bearingToPole := math.Atan2(y, x) * 180 / math.Pi
	decl := normalizeAngle(bearingToPole)
	declinationCache.Set(key, decl, cache.DefaultExpiration)
	return decl
}

// updateDerived computes wind from a heading+TAS and ground-track+ground-speed
// pair whose heading and track were updated within windTimeout of each other,
// and outside-air temperature from Mach and TAS, per §4.7, and expires both
// after derivedFieldTTL.
func (t *Tracker) updateDerived(a *aircraft.Aircraft, mm *modes.Message, now int64) {
	haveHeadingTAS := a.HeadingKnown() && a.TAS > 0
	haveTrackGS := a.TrackValid.Source != modes.SourceInvalid && a.GroundSpeedValid.Source != modes.SourceInvalid

	if haveHeadingTAS && haveTrackGS && absInt64(a.HeadingTrueValid.Updated-a.TrackValid.Updated) <= windTimeout.Milliseconds() {
		magHeading := a.HeadingTrue - magneticDeclination(a.Lat, a.Lon)
		hRad := magHeading * math.Pi / 180
		tRad := a.Track * math.Pi / 180

		tasX := a.TAS * math.Sin(hRad)
		tasY := a.TAS * math.Cos(hRad)
		gsX := a.GroundSpeed * math.Sin(tRad)
		gsY := a.GroundSpeed * math.Cos(tRad)

		windX := tasX - gsX
		windY := tasY - gsY

		a.Wind.Speed = math.Hypot(windX, windY)
		dir := math.Atan2(windX, windY) * 180 / math.Pi
		if dir < 0 {
			dir += 360
		}
		a.Wind.Dir = dir
		a.Wind.Valid = true
		a.Wind.Updated = now
	} else if a.Wind.Valid && time.Duration(now-a.Wind.Updated)*time.Millisecond > derivedFieldTTL {
		a.Wind.Valid = false
	}

	if a.Mach > 0 && a.TAS > 0 {
		a.OAT.Value = math.Pow(a.TAS/(39*a.Mach), 2) - 273.15
		a.OAT.Valid = true
		a.OAT.Updated = now
	} else if a.OAT.Valid && time.Duration(now-a.OAT.Updated)*time.Millisecond > derivedFieldTTL {
		a.OAT.Valid = false
	}
}
