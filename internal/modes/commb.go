package modes

import (
	"math"

	"acars_parser/internal/bitutil"
)

// commBDecoder is one candidate BDS register decoder. Score inspects the
// raw MB bytes and returns 0 or less if the payload is definitively not
// this BDS (decodeCommB skips any score <= 0), or a positive plausibility
// score otherwise (reserved-bit violations and
// internal inconsistencies reduce the score). Apply is only invoked on the
// single best-scoring, non-ambiguous decoder, and actually writes decoded
// fields onto the message.
//
// This mirrors the teacher's parser registry (name/priority/dispatch) but
// generalizes label-based routing to a best-score-wins vote, since an
// incoming Comm-B payload carries no self-identifying label the way ACARS
// free text does.
type commBDecoder struct {
	format CommBFormat
	score  func(mb [7]byte) int
	apply  func(mb [7]byte, m *Message)
}

var commBDecoders = []commBDecoder{
	{CommBEmptyResponse, scoreEmptyResponse, applyEmptyResponse},
	{CommBDatalinkCaps, scoreBDS10, applyBDS10},
	{CommBGICB, scoreBDS17, applyBDS17},
	{CommBAircraftIdent, scoreBDS20, applyBDS20},
	{CommBACASRA, scoreBDS30, applyBDS30},
	{CommBVerticalIntent, scoreBDS40, applyBDS40},
	{CommBMet, scoreBDS44, applyBDS44},
	{CommBTrackTurn, scoreBDS50, applyBDS50},
	{CommBHeadingSpeed, scoreBDS60, applyBDS60},
}

// decodeCommB scores mb against every registered BDS decoder and applies
// the unambiguous winner, following readsb's decodeCommB: every candidate
// is scored first (without mutating the message), then only the single
// best decoder (if the best score is not tied) is asked to actually store
// its fields.
func decodeCommB(mb [7]byte, m *Message) {
	bestScore := -1
	bestIdx := -1
	ambiguous := false
	for i, d := range commBDecoders {
		s := d.score(mb)
		if s <= 0 {
			continue
		}
		switch {
		case s > bestScore:
			bestScore = s
			bestIdx = i
			ambiguous = false
		case s == bestScore:
			ambiguous = true
		}
	}
	if bestIdx < 0 {
		return
	}
	if ambiguous {
		m.CommBFormat = CommBAmbiguous
		return
	}
	commBDecoders[bestIdx].apply(mb, m)
}

func mbBits(mb [7]byte) []byte { return mb[:] }

func scoreEmptyResponse(mb [7]byte) int {
	for _, b := range mb {
		if b != 0 {
			return 0
		}
	}
	return 56
}

func applyEmptyResponse(mb [7]byte, m *Message) {
	m.CommBFormat = CommBEmptyResponse
}

func scoreBDS10(mb [7]byte) int {
	if mb[0] != 0x10 {
		return 0
	}
	b := mbBits(mb)
	// bits 10-14 are reserved-zero in the datalink capability report.
	if bitutil.Bits(b, 10, 14) != 0 {
		return 0
	}
	return 50
}

func applyBDS10(mb [7]byte, m *Message) {
	m.CommBFormat = CommBDatalinkCaps
}

func scoreBDS17(mb [7]byte) int {
	b := mbBits(mb)
	// GICB capability bitmap: bits 1-17 are capability flags. ES-capable
	// aircraft consistently set several of the low-numbered bits together;
	// an all-zero or single-bit pattern is weakly plausible, a dense
	// contiguous-looking run scores higher.
	v := bitutil.Bits(b, 1, 17)
	if v == 0 {
		return 1
	}
	set := popcount17(v)
	score := 10 + set*2
	if score > 40 {
		score = 40
	}
	return score
}

func popcount17(v uint32) int {
	n := 0
	for i := 0; i < 17; i++ {
		if v&(1<<uint(i)) != 0 {
			n++
		}
	}
	return n
}

func applyBDS17(mb [7]byte, m *Message) {
	m.CommBFormat = CommBGICB
}

func scoreBDS20(mb [7]byte) int {
	if mb[0] != 0x20 {
		return 0
	}
	b := mbBits(mb)
	score := 1
	valid := 0
	for i := 0; i < 8; i++ {
		c := byte(bitutil.Bits(b, 9+6*i, 14+6*i))
		if c < byte(len(aisCharset)) && aisCharset[c] != '?' {
			valid++
		}
	}
	score += valid * 6
	return score
}

func applyBDS20(mb [7]byte, m *Message) {
	b := mbBits(mb)
	buf := make([]byte, 0, 8)
	for i := 0; i < 8; i++ {
		c := byte(bitutil.Bits(b, 9+6*i, 14+6*i))
		buf = append(buf, aisCharset[c])
	}
	m.Callsign = trimTrailingSpace(string(buf))
	m.CallsignValid = true
	m.CommBFormat = CommBAircraftIdent
}

func trimTrailingSpace(s string) string {
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}

func scoreBDS30(mb [7]byte) int {
	b := mbBits(mb)
	if bitutil.Bit(b, 1) != 1 {
		return 0 // ARA/RAT/MTE only meaningful when an active RA is reported
	}
	ara := bitutil.Bits(b, 2, 15)
	rat := bitutil.Bit(b, 16)
	mte := bitutil.Bit(b, 17)
	tti := bitutil.Bits(b, 55, 56)
	score := 30
	if ara == 0 && rat == 0 && mte == 0 {
		score -= 10
	}
	if tti == 2 {
		score -= 40 // reserved combination
	}
	return score
}

func applyBDS30(mb [7]byte, m *Message) {
	b := mbBits(mb)
	m.ARA = bitutil.Bits(b, 2, 15)
	m.RAT = bitutil.Bit(b, 16) == 1
	m.MTE = bitutil.Bit(b, 17) == 1
	m.TTI = int(bitutil.Bits(b, 55, 56))
	if m.TTI == 1 {
		// TTI=01: bits 39..54 carry a 16-bit truncated threat address;
		// recover the full 24-bit ICAO address from the filter.
		partial := bitutil.Bits(b, 39, 54)
		if addr, ok := lookupThreatAddr(partial); ok {
			m.ThreatAddr = addr
			m.ThreatAddrValid = true
		}
	}
	m.CommBFormat = CommBACASRA
}

func scoreBDS40(mb [7]byte) int {
	b := mbBits(mb)
	score := 0
	if bitutil.Bit(b, 1) == 1 {
		mcp := bitutil.Bits(b, 2, 13)
		if mcp > 0 && mcp <= 3126 { // 16ft steps up to ~50000ft
			score += 15
		} else {
			score -= 10
		}
	}
	if bitutil.Bit(b, 14) == 1 {
		fms := bitutil.Bits(b, 15, 26)
		if fms > 0 && fms <= 3126 {
			score += 15
		} else {
			score -= 10
		}
	}
	if bitutil.Bit(b, 27) == 1 {
		qnh := bitutil.Bits(b, 28, 39)
		mb_ := float64(qnh) * 0.1
		if mb_ >= 800 && mb_ <= 1200 {
			score += 10
		} else {
			score -= 10
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

func applyBDS40(mb [7]byte, m *Message) {
	b := mbBits(mb)
	if bitutil.Bit(b, 1) == 1 {
		m.MCPAlt = int(bitutil.Bits(b, 2, 13)) * 16
		m.MCPAltValid = true
	}
	if bitutil.Bit(b, 14) == 1 {
		m.FMSAlt = int(bitutil.Bits(b, 15, 26)) * 16
		m.FMSAltValid = true
	}
	if bitutil.Bit(b, 27) == 1 {
		m.QNH = float64(bitutil.Bits(b, 28, 39)) * 0.1
		m.QNHValid = true
	}
	m.CommBFormat = CommBVerticalIntent
}

func scoreBDS44(mb [7]byte) int {
	b := mbBits(mb)
	score := 0
	if bitutil.Bit(b, 1) == 1 { // wind speed/direction valid
		speed := bitutil.Bits(b, 2, 9)
		dir := bitutil.Bits(b, 10, 18)
		if speed <= 250 && dir <= 511 {
			score += 15
		}
	}
	if bitutil.Bit(b, 19) == 1 { // static air temperature valid
		raw := int(bitutil.Bits(b, 20, 29))
		sat := float64(raw) * 0.25
		if sat > -80 && sat < 60 {
			score += 15
		} else {
			score -= 10
		}
	}
	if bitutil.Bit(b, 30) == 1 { // static pressure valid
		pressure := bitutil.Bits(b, 31, 41)
		// a plausible static pressure report adds to the score instead of
		// being unconditionally rejected.
		if pressure > 0 {
			score += 10
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

func applyBDS44(mb [7]byte, m *Message) {
	b := mbBits(mb)
	if bitutil.Bit(b, 1) == 1 {
		m.WindSpeed = float64(bitutil.Bits(b, 2, 9))
		m.WindDir = float64(bitutil.Bits(b, 10, 18)) * (180.0 / 256.0)
		m.WindValid = true
	}
	if bitutil.Bit(b, 19) == 1 {
		raw := int(bitutil.Bits(b, 20, 29))
		m.SAT = float64(raw) * 0.25
		m.SATValid = true
	}
	if bitutil.Bit(b, 30) == 1 {
		m.StaticPressure = float64(bitutil.Bits(b, 31, 41))
		m.StaticPressureValid = true
	}
	m.CommBFormat = CommBMet
}

func scoreBDS50(mb [7]byte) int {
	b := mbBits(mb)
	score := 0
	var roll, turnRate float64
	haveRoll, haveTurn := false, false
	if bitutil.Bit(b, 1) == 1 {
		sign := bitutil.Bit(b, 2)
		mag := float64(bitutil.Bits(b, 3, 11)) * (45.0 / 256.0)
		if sign == 1 {
			mag = -mag
		}
		if mag >= -90 && mag <= 90 {
			score += 10
			roll = mag
			haveRoll = true
		} else {
			score -= 10
		}
	}
	if bitutil.Bit(b, 12) == 1 {
		track := float64(bitutil.Bits(b, 14, 23)) * (90.0 / 512.0)
		if bitutil.Bit(b, 13) == 1 {
			track = -track
		}
		if track >= -180 && track <= 180 {
			score += 10
		}
	}
	if bitutil.Bit(b, 24) == 1 {
		gs := float64(bitutil.Bits(b, 25, 34)) * 2
		if gs >= 50 && gs <= 700 {
			score += 10
		} else {
			score -= 10
		}
	}
	if bitutil.Bit(b, 35) == 1 {
		sign := bitutil.Bit(b, 36)
		mag := float64(bitutil.Bits(b, 37, 45)) * (8.0 / 256.0)
		if sign == 1 {
			mag = -mag
		}
		turnRate = mag
		haveTurn = true
		if math.Abs(mag) <= 16 {
			score += 10
		} else {
			score -= 10
		}
	}
	if haveRoll && haveTurn {
		// roll and turn-rate should be roughly consistent for a coordinated
		// turn; a large disagreement is a sign this isn't really BDS 5,0.
		if math.Abs(roll) > 5 && (roll > 0) != (turnRate > 0) {
			score -= 15
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

func applyBDS50(mb [7]byte, m *Message) {
	b := mbBits(mb)
	if bitutil.Bit(b, 1) == 1 {
		sign := bitutil.Bit(b, 2)
		mag := float64(bitutil.Bits(b, 3, 11)) * (45.0 / 256.0)
		if sign == 1 {
			mag = -mag
		}
		m.Roll = mag
		m.RollValid = true
	}
	if bitutil.Bit(b, 12) == 1 {
		track := float64(bitutil.Bits(b, 14, 23)) * (90.0 / 512.0)
		if bitutil.Bit(b, 13) == 1 {
			track = -track
		}
		m.Track = track
		m.TrackValid = true
	}
	if bitutil.Bit(b, 24) == 1 {
		m.GroundSpeed = float64(bitutil.Bits(b, 25, 34)) * 2
		m.GroundSpeedValid = true
	}
	if bitutil.Bit(b, 35) == 1 {
		sign := bitutil.Bit(b, 36)
		mag := float64(bitutil.Bits(b, 37, 45)) * (8.0 / 256.0)
		if sign == 1 {
			mag = -mag
		}
		m.TurnRate = mag
		m.TurnRateValid = true
	}
	m.CommBFormat = CommBTrackTurn
}

func scoreBDS60(mb [7]byte) int {
	b := mbBits(mb)
	score := 0
	var baroRate, inertialRate float64
	haveBaro, haveInertial := false, false
	if bitutil.Bit(b, 1) == 1 {
		raw := float64(bitutil.Bits(b, 3, 11)) * (90.0 / 512.0)
		if bitutil.Bit(b, 2) == 1 {
			raw = -raw
		}
		if raw >= -180 && raw <= 180 {
			score += 10
		}
	}
	if bitutil.Bit(b, 13) == 1 {
		ias := bitutil.Bits(b, 14, 23)
		if ias <= 1023 {
			score += 10
		}
	}
	if bitutil.Bit(b, 24) == 1 {
		mach := float64(bitutil.Bits(b, 25, 34)) * 0.004
		if mach >= 0 && mach <= 1 {
			score += 10
		}
	}
	if bitutil.Bit(b, 35) == 1 {
		sign := bitutil.Bit(b, 36)
		mag := float64(bitutil.Bits(b, 37, 45)) * 32
		if sign == 1 {
			mag = -mag
		}
		baroRate = mag
		haveBaro = true
		score += 10
	}
	if bitutil.Bit(b, 46) == 1 {
		sign := bitutil.Bit(b, 47)
		mag := float64(bitutil.Bits(b, 48, 56)) * 32
		if sign == 1 {
			mag = -mag
		}
		inertialRate = mag
		haveInertial = true
		score += 10
	}
	if haveBaro && haveInertial && math.Abs(baroRate-inertialRate) > 2000 {
		score -= 15
	}
	if score < 0 {
		score = 0
	}
	return score
}

func applyBDS60(mb [7]byte, m *Message) {
	b := mbBits(mb)
	if bitutil.Bit(b, 1) == 1 {
		raw := float64(bitutil.Bits(b, 3, 11)) * (90.0 / 512.0)
		if bitutil.Bit(b, 2) == 1 {
			raw = -raw
		}
		m.Heading = raw
		m.HeadingValid = true
	}
	if bitutil.Bit(b, 13) == 1 {
		m.IAS = float64(bitutil.Bits(b, 14, 23))
		m.IASValid = true
	}
	if bitutil.Bit(b, 24) == 1 {
		m.Mach = float64(bitutil.Bits(b, 25, 34)) * 0.004
		m.MachValid = true
	}
	if bitutil.Bit(b, 35) == 1 {
		sign := bitutil.Bit(b, 36)
		mag := float64(bitutil.Bits(b, 37, 45)) * 32
		if sign == 1 {
			mag = -mag
		}
		m.BaroRate = mag
		m.BaroRateValid = true
	}
	if bitutil.Bit(b, 46) == 1 {
		sign := bitutil.Bit(b, 47)
		mag := float64(bitutil.Bits(b, 48, 56)) * 32
		if sign == 1 {
			mag = -mag
		}
		m.GeomRate = mag
		m.GeomRateValid = true
	}
	m.CommBFormat = CommBHeadingSpeed
}
