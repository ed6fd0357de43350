// Package tracker maintains per-aircraft state from a stream of decoded
// Mode S messages: the data-source priority lattice, validity aging,
// global/local CPR position acceptance with a speed-plausibility check,
// and the reliability counters that gate when a position is considered
// good enough to expose downstream.
//
// The locking and change-notification shape is grounded on the teacher's
// internal/state.Tracker: one RWMutex-guarded map (here, an
// aircraft.Registry) plus callback hooks fired on first-seen and on
// meaningful field changes.
package tracker

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"acars_parser/internal/aircraft"
	"acars_parser/internal/cpr"
	"acars_parser/internal/icaofilter"
	"acars_parser/internal/modes"
)

const (
	staleAfter       = 15 * time.Second
	defaultExpireAt  = 30 * time.Second
	jaeroExpireAt    = 33 * time.Minute
	roughExpireAt    = 2 * time.Minute
	sbsInhibit       = 60 * time.Second
	jaeroInhibit     = 600 * time.Second
	windTimeout      = 2500 * time.Millisecond
	derivedFieldTTL  = 60 * time.Second
)

// Config holds the tunables referenced throughout §4 of the specification.
// It is loaded once (internal/config) and handed to the tracker by value;
// nothing in this package mutates it.
type Config struct {
	FilterPersistence int     // default 8
	JSONReliable      int     // default 2
	MaxRangeNM        float64 // 0 == unlimited
	NfixCRC           int
	UserLat, UserLon  float64
	HaveUserLocation  bool
	RegistryBuckets   int // 0 == aircraft.defaultBuckets (2^20)
}

func DefaultConfig() Config {
	return Config{FilterPersistence: 8, JSONReliable: 2, NfixCRC: 2}
}

// Callbacks mirror the teacher's on-change hook fields, adapted from
// flight-state change notification to aircraft-state change notification.
type Callbacks struct {
	OnNewAircraft    func(a *aircraft.Aircraft)
	OnPositionChange func(a *aircraft.Aircraft)
	OnIdentChange    func(a *aircraft.Aircraft) // callsign or squawk changed
}

type Tracker struct {
	mu       sync.Mutex // serializes all field updates; matches the single global trackLock
	cfg      Config
	registry *aircraft.Registry
	filter   *icaofilter.Filter
	cb       Callbacks
	log      *logrus.Logger
}

func New(cfg Config, cb Callbacks) *Tracker {
	t := &Tracker{
		cfg:      cfg,
		registry: aircraft.NewWithBuckets(cfg.RegistryBuckets),
		filter:   icaofilter.New(time.Now().Unix()),
		cb:       cb,
		log:      logrus.StandardLogger(),
	}
	modes.SetICAOFilter(t.filter)
	return t
}

func unixMillis(t time.Time) int64 { return t.UnixNano() / int64(time.Millisecond) }

// acceptData implements §3's data-source lattice rule: a write is accepted
// if its source ranks at or above the field's current source, or the
// current value is already stale. SBS and JAERO, the two lowest-rate/
// least-trustworthy feed sources, are additionally inhibited from taking
// over a stale field until sbsInhibit/jaeroInhibit respectively have passed
// since the field's last update, so a brief gap in a stronger feed does not immediately
// hand the field to a weaker one.
func acceptData(v *aircraft.FieldValidity, source modes.Source, now int64) bool {
	if source >= v.Source {
		return true
	}
	if !v.Stale {
		return false
	}
	switch source {
	case modes.SourceSBS:
		return now-v.Updated >= sbsInhibit.Milliseconds()
	case modes.SourceJaero:
		return now-v.Updated >= jaeroInhibit.Milliseconds()
	default:
		return true
	}
}

func applyAccept(v *aircraft.FieldValidity, source modes.Source, now int64) {
	if source == modes.SourcePrio {
		source = modes.SourceAdsb
	}
	v.Source = source
	if source > v.LastSource {
		v.LastSource = source
	}
	v.Updated = now
	v.Stale = false
}

// UpdateFromMessage is the tracker's single entry point: every accepted
// message from any source (radio demod or a framed feed) flows through
// here under the global lock.
func (t *Tracker) UpdateFromMessage(mm *modes.Message) *aircraft.Aircraft {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := unixMillis(mm.RecvTime)

	switch mm.DF {
	case 11:
		// An all-call reply is only trustworthy once its ICAO address has
		// itself been seen broadcasting (squitter DF17/18 or a prior
		// all-call); an address never seen before is typically a CRC
		// false-positive and is dropped rather than seeded into the
		// filter and the registry.
		if !t.filter.Test(mm.AddrIcao) {
			return nil
		}
		t.filter.Add(mm.AddrIcao)
	case 17, 18:
		t.filter.Add(mm.AddrIcao)
	default:
		if mm.DF != 0 && mm.AddrIcao != 0 && !t.filter.Test(mm.AddrIcao) {
			return nil
		}
	}

	a, created := t.registry.GetOrCreate(mm.AddrIcao, now)
	if a == nil {
		// table is oversubscribed past maxLoadFactor; refuse rather than
		// let hash chains grow unbounded.
		t.log.WithField("icao", mm.AddrIcao).Warn("aircraft registry oversubscribed, dropping message")
		return nil
	}
	a.Seen = now
	if created {
		a.AddrType = mm.AddrType
		if t.cb.OnNewAircraft != nil {
			t.cb.OnNewAircraft(a)
		}
	}

	identChanged := false

	if mm.CallsignValid && acceptData(&a.CallsignValid, mm.Source, now) {
		if a.Callsign != mm.Callsign {
			identChanged = true
		}
		a.Callsign = mm.Callsign
		applyAccept(&a.CallsignValid, mm.Source, now)
	}
	if mm.SquawkValid && acceptData(&a.SquawkValid, mm.Source, now) {
		if a.Squawk != mm.Squawk {
			identChanged = true
		}
		a.Squawk = mm.Squawk
		applyAccept(&a.SquawkValid, mm.Source, now)
	}
	if mm.BaroAltValid && acceptData(&a.BaroAltValid, mm.Source, now) {
		a.BaroAlt = mm.BaroAlt
		applyAccept(&a.BaroAltValid, mm.Source, now)
	}
	if mm.GeomAltValid && acceptData(&a.GeomAltValid, mm.Source, now) {
		a.GeomAlt = mm.GeomAlt
		applyAccept(&a.GeomAltValid, mm.Source, now)
	}
	if mm.GroundSpeedValid && acceptData(&a.GroundSpeedValid, mm.Source, now) {
		a.GroundSpeed = mm.GroundSpeed
		applyAccept(&a.GroundSpeedValid, mm.Source, now)
	}
	if mm.TrackValid && acceptData(&a.TrackValid, mm.Source, now) {
		a.Track = mm.Track
		applyAccept(&a.TrackValid, mm.Source, now)
	}
	if mm.HeadingValid && acceptData(&a.HeadingTrueValid, mm.Source, now) {
		a.HeadingTrue = mm.Heading
		applyAccept(&a.HeadingTrueValid, mm.Source, now)
	}
	if mm.TASValid && acceptData(&a.TASValid, mm.Source, now) {
		a.TAS = mm.TAS
		applyAccept(&a.TASValid, mm.Source, now)
	}
	if mm.IASValid && acceptData(&a.IASValid, mm.Source, now) {
		a.IAS = mm.IAS
		applyAccept(&a.IASValid, mm.Source, now)
	}
	if mm.MachValid && acceptData(&a.MachValid, mm.Source, now) {
		a.Mach = mm.Mach
		applyAccept(&a.MachValid, mm.Source, now)
	}
	if mm.BaroRateValid && acceptData(&a.BaroRateValid, mm.Source, now) {
		a.BaroRate = mm.BaroRate
		applyAccept(&a.BaroRateValid, mm.Source, now)
	}
	if mm.GeomRateValid && acceptData(&a.GeomRateValid, mm.Source, now) {
		a.GeomRate = mm.GeomRate
		applyAccept(&a.GeomRateValid, mm.Source, now)
	}
	if mm.NICSuppAValid {
		a.NICSuppA = mm.NICSuppA
		a.NICSuppAValid = true
	}

	if mm.CPRValid {
		t.onPositionMessage(a, mm, now)
	} else if mm.DirectPosValid && acceptData(&a.PositionValid, mm.Source, now) {
		// SBS-1 feeds hand us an already-resolved lat/lon; skip CPR
		// entirely and the speed check along with it, since SBS has no
		// raw frame to re-derive NIC/Rc from.
		a.Lat, a.Lon = mm.DirectLat, mm.DirectLon
		applyAccept(&a.PositionValid, mm.Source, now)
		if t.cb.OnPositionChange != nil {
			t.cb.OnPositionChange(a)
		}
	}

	t.updateDerived(a, mm, now)

	if identChanged && t.cb.OnIdentChange != nil {
		t.cb.OnIdentChange(a)
	}

	return a
}

// onPositionMessage implements §4.7's CPR acceptance flow: stash the raw
// half, attempt a global decode when both halves are fresh enough,
// otherwise fall back to a local decode; either way a successful decode
// must still pass the speed check before it updates the aircraft.
func (t *Tracker) onPositionMessage(a *aircraft.Aircraft, mm *modes.Message, now int64) {
	if a.NICSuppAValid {
		// the position message's own NIC/Rc was decoded with suppA=0
		// (decode time has no per-aircraft state); refine it now that the
		// aircraft's own NIC supplement-A bit, from an earlier ME 31
		// operational status message, is known.
		nic, rc := modes.NICRc(mm.ME, a.NICSuppA)
		mm.NIC, mm.Rc = nic, int(rc)
		mm.CPR.NIC, mm.CPR.Rc = nic, rc
	}
	f := cpr.Frame{Lat: mm.CPR.Lat, Lon: mm.CPR.Lon, Odd: mm.CPR.Odd, Surface: mm.CPR.Surface}

	if f.Odd {
		a.CPROdd = mm.CPR
		a.CPROddTime = now
		a.CPROddValid = true
	} else {
		a.CPREven = mm.CPR
		a.CPREvenTime = now
		a.CPREvenValid = true
	}

	window := 10 * time.Second
	if f.Surface {
		window = 25 * time.Second
		if a.GroundSpeedValid.Source != modes.SourceInvalid && a.GroundSpeed <= 25 {
			window = 50 * time.Second
		}
	}

	var pos cpr.LatLon
	var ok bool

	if a.CPREvenValid && a.CPROddValid && absInt64(a.CPREvenTime-a.CPROddTime) <= window.Milliseconds() {
		even := cpr.Frame{Lat: a.CPREven.Lat, Lon: a.CPREven.Lon, Odd: false, Surface: a.CPREven.Surface}
		odd := cpr.Frame{Lat: a.CPROdd.Lat, Lon: a.CPROdd.Lon, Odd: true, Surface: a.CPROdd.Surface}

		var ref *cpr.LatLon
		if a.PositionValid.Source != modes.SourceInvalid {
			r := cpr.LatLon{Lat: a.Lat, Lon: a.Lon}
			ref = &r
		} else if t.cfg.HaveUserLocation {
			r := cpr.LatLon{Lat: t.cfg.UserLat, Lon: t.cfg.UserLon}
			ref = &r
		}

		p, err := cpr.DecodeGlobal(even, odd, ref, t.cfg.MaxRangeNM)
		if err == nil {
			pos, ok = p, true
		} else if err == cpr.ErrBadData {
			mm.PosBad = true
			a.CPREvenValid, a.CPROddValid = false, false
			return
		}
	}

	if !ok && a.PositionValid.Source != modes.SourceInvalid {
		ref := cpr.LatLon{Lat: a.Lat, Lon: a.Lon}
		p, err := cpr.DecodeLocal(f, ref, localRangeLimit(t.cfg.MaxRangeNM))
		if err == nil {
			pos, ok = p, true
			mm.CPRRelative = true
		} else if err == cpr.ErrBadData {
			mm.PosBad = true
			return
		}
	}

	if !ok {
		return
	}

	if !t.speedCheck(a, pos, mm, now) {
		mm.PosBad = true
		a.CPREvenValid, a.CPROddValid = false, false
		if !mm.PosIgnore {
			if a.PosReliableOdd > 0 {
				a.PosReliableOdd--
			}
			if a.PosReliableEven > 0 {
				a.PosReliableEven--
			}
		}
		return
	}

	a.Lat, a.Lon = pos.Lat, pos.Lon
	a.PosSurface = f.Surface
	a.NIC, a.Rc = mm.NIC, mm.Rc
	applyAccept(&a.PositionValid, mm.Source, now)

	if a.PosReliableOdd == 0 {
		a.PosReliableOdd = 1
	}
	if a.PosReliableEven == 0 {
		a.PosReliableEven = 1
	}
	if !f.Odd {
		bumpReliability(&a.PosReliableEven, t.cfg.FilterPersistence)
	} else {
		bumpReliability(&a.PosReliableOdd, t.cfg.FilterPersistence)
	}

	if t.cb.OnPositionChange != nil {
		t.cb.OnPositionChange(a)
	}
}

func localRangeLimit(maxRangeNM float64) float64 {
	switch {
	case maxRangeNM <= 0:
		return 360
	case maxRangeNM <= 180:
		return maxRangeNM
	case maxRangeNM <= 360:
		return 360 - maxRangeNM
	default:
		return 0
	}
}

func bumpReliability(counter *int, max int) {
	if *counter < max {
		*counter++
	}
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// PositionExposed reports whether an aircraft's position is reliable
// enough to hand to downstream JSON/binary consumers (§4.7 reliability
// gate). The gate is bypassed (always true) for every position source
// ranked at or below SourceJaero in the lattice, not only JAERO.
func PositionExposed(a *aircraft.Aircraft, jsonReliable int) bool {
	if a.PositionValid.Source <= modes.SourceJaero {
		return true
	}
	odd, even := a.PosReliableOdd, a.PosReliableEven
	if odd > even {
		odd, even = even, odd
	}
	return odd >= jsonReliable
}

// Upkeep runs the periodic stale sweep: ages every field's validity per
// its source-specific expiry and destroys aircraft that have not been
// seen in a long time.
func (t *Tracker) Upkeep(now time.Time) {
	t.mu.Lock()
	nowMs := unixMillis(now)
	t.filter.Expire(now.Unix())

	var toDestroy []uint32
	t.registry.ForEach(func(a *aircraft.Aircraft) {
		ageField(&a.CallsignValid, nowMs)
		ageField(&a.SquawkValid, nowMs)
		ageField(&a.BaroAltValid, nowMs)
		ageField(&a.GeomAltValid, nowMs)
		ageField(&a.GroundSpeedValid, nowMs)
		ageField(&a.TrackValid, nowMs)
		ageField(&a.PositionValid, nowMs)
		ageField(&a.HeadingTrueValid, nowMs)
		ageField(&a.TASValid, nowMs)
		ageField(&a.IASValid, nowMs)
		ageField(&a.MachValid, nowMs)
		ageField(&a.BaroRateValid, nowMs)
		ageField(&a.GeomRateValid, nowMs)

		if nowMs-a.Seen > (24 * time.Hour).Milliseconds() {
			toDestroy = append(toDestroy, a.ICAO)
		}
	})
	t.mu.Unlock()

	for _, addr := range toDestroy {
		t.registry.Destroy(addr)
	}
}

func ageField(v *aircraft.FieldValidity, nowMs int64) {
	if v.Source == modes.SourceInvalid {
		return
	}
	age := time.Duration(nowMs-v.Updated) * time.Millisecond
	if age > staleAfter {
		v.Stale = true
	}
	expiry := defaultExpireAt
	switch v.Source {
	case modes.SourceJaero:
		expiry = jaeroExpireAt
	case modes.SourceIndirect, modes.SourceModeAC:
		expiry = roughExpireAt
	}
	if age > expiry {
		v.Source = modes.SourceInvalid
	}
}

// Registry exposes the underlying aircraft table for read-only iteration
// by stats/fanout/snapshot code.
func (t *Tracker) Registry() *aircraft.Registry { return t.registry }
