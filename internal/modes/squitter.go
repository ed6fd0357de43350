package modes

import (
	"math"
	"strings"

	"acars_parser/internal/bitutil"
)

const aisCharset = "?ABCDEFGHIJKLMNOPQRSTUVWXYZ????? ???????????????0123456789??????"

// decodeExtendedSquitter dispatches a DF17/18 7-byte ME field to the
// appropriate sub-decoder by its 5-bit type code.
func decodeExtendedSquitter(me []byte, m *Message) {
	m.ME = int(me[0] >> 3)
	switch {
	case m.ME >= 1 && m.ME <= 4:
		decodeIdentification(me, m)
	case m.ME >= 5 && m.ME <= 8:
		decodeSurfacePosition(me, m)
	case (m.ME >= 9 && m.ME <= 18) || (m.ME >= 20 && m.ME <= 22):
		decodeAirbornePosition(me, m)
	case m.ME == 19:
		decodeAirborneVelocity(me, m)
	case m.ME == 28:
		decodeAircraftStatus(me, m)
	case m.ME == 29:
		decodeTargetState(me, m)
	case m.ME == 31:
		decodeOperationalStatus(me, m)
	}
}

func decodeIdentification(me []byte, m *Message) {
	var sb strings.Builder
	// 8 six-bit characters packed across bits 9..56 of the ME field.
	v := uint64(me[0])<<48 | uint64(me[1])<<40 | uint64(me[2])<<32 | uint64(me[3])<<24 | uint64(me[4])<<16 | uint64(me[5])<<8 | uint64(me[6])
	for i := 0; i < 8; i++ {
		shift := uint(42 - 6*i)
		c := (v >> shift) & 0x3f
		sb.WriteByte(aisCharset[c])
	}
	m.Callsign = strings.TrimRight(sb.String(), " ")
	m.CallsignValid = true
}

func decodeSurfacePosition(me []byte, m *Message) {
	m.OnGround = true
	m.OnGroundValid = true

	movement := int(bitutil.Bits(me, 6, 12))
	if movement > 0 && movement < 125 {
		m.GroundSpeed = surfaceMovementToSpeed(movement)
		m.GroundSpeedValid = true
	}
	headingStatus := bitutil.Bit(me, 13)
	if headingStatus == 1 {
		raw := bitutil.Bits(me, 14, 20)
		m.Track = float64(raw) * (360.0 / 128.0)
		m.TrackValid = true
	}

	fflag := bitutil.Bit(me, 22) == 1
	latRaw := bitutil.Bits(me, 23, 39)
	lonRaw := bitutil.Bits(me, 40, 56)
	nic, rc := NICRc(m.ME, 0)
	m.CPR = CPRField{Lat: latRaw, Lon: lonRaw, Odd: fflag, Surface: true, NIC: nic, Rc: rc}
	m.CPRValid = true
	m.NIC, m.Rc = nic, int(rc)
}

func surfaceMovementToSpeed(movement int) float64 {
	switch {
	case movement == 1:
		return 0
	case movement <= 8:
		return 0.125 * float64(movement-1)
	case movement <= 12:
		return 1 + 0.25*float64(movement-9)
	case movement <= 38:
		return 2 + 0.5*float64(movement-13)
	case movement <= 93:
		return 15 + float64(movement-39)
	case movement <= 108:
		return 70 + 2*float64(movement-94)
	case movement <= 123:
		return 100 + 5*float64(movement-109)
	default:
		return 175
	}
}

func decodeAirbornePosition(me []byte, m *Message) {
	m.OnGroundValid = true
	m.OnGround = false

	altCode := bitutil.Bits(me, 9, 20)
	// AC12 has no M bit; re-inserting it as 0 gives the AC13 layout that
	// decode13BitAltitude reads.
	ac13 := ((altCode & 0x0fc0) << 1) | (altCode & 0x003f)
	if m.ME >= 20 {
		// GNSS height ME types carry altitude in 5ft steps, no Q/M bit.
		if altCode != 0 {
			m.GeomAlt = int(altCode) * 5
			m.GeomAltValid = true
		}
	} else if alt, ok := decode13BitAltitude(ac13); ok {
		m.BaroAlt = alt
		m.BaroAltValid = true
	}

	fflag := bitutil.Bit(me, 22) == 1
	latRaw := bitutil.Bits(me, 23, 39)
	lonRaw := bitutil.Bits(me, 40, 56)
	nic, rc := NICRc(m.ME, 0)
	m.CPR = CPRField{Lat: latRaw, Lon: lonRaw, Odd: fflag, Surface: false, NIC: nic, Rc: rc}
	m.CPRValid = true
	m.NIC, m.Rc = nic, int(rc)
}

func decodeAirborneVelocity(me []byte, m *Message) {
	subtype := int(bitutil.Bits(me, 6, 8))
	switch subtype {
	case 1, 2: // ground speed
		ewSign := bitutil.Bit(me, 14)
		ewVel := int(bitutil.Bits(me, 15, 24)) - 1
		nsSign := bitutil.Bit(me, 25)
		nsVel := int(bitutil.Bits(me, 26, 35)) - 1
		if ewVel < 0 || nsVel < 0 {
			break
		}
		scale := 1.0
		if subtype == 2 {
			scale = 4.0
		}
		ew := float64(ewVel) * scale
		if ewSign == 1 {
			ew = -ew
		}
		ns := float64(nsVel) * scale
		if nsSign == 1 {
			ns = -ns
		}
		m.GroundSpeed = math.Hypot(ew, ns)
		m.GroundSpeedValid = true
		track := math.Atan2(ew, ns) * 180 / math.Pi
		if track < 0 {
			track += 360
		}
		m.Track = track
		m.TrackValid = true
	case 3, 4: // airspeed
		headingStatus := bitutil.Bit(me, 14)
		if headingStatus == 1 {
			raw := bitutil.Bits(me, 15, 24)
			m.Heading = float64(raw) * (360.0 / 1024.0)
			m.HeadingValid = true
		}
		airspeedType := bitutil.Bit(me, 25) // 0 = IAS, 1 = TAS
		speed := int(bitutil.Bits(me, 26, 35))
		if speed > 0 {
			scale := 1.0
			if subtype == 4 {
				scale = 4.0
			}
			if airspeedType == 1 {
				m.TAS = float64(speed-1) * scale
				m.TASValid = true
			} else {
				m.IAS = float64(speed-1) * scale
				m.IASValid = true
			}
		}
	}

	vrSource := bitutil.Bit(me, 37) // 0 = GNSS, 1 = barometric
	vrSign := bitutil.Bit(me, 38)
	vr := int(bitutil.Bits(me, 39, 47))
	if vr > 0 {
		rate := float64(vr-1) * 64
		if vrSign == 1 {
			rate = -rate
		}
		if vrSource == 1 {
			m.BaroRate = rate
			m.BaroRateValid = true
		} else {
			m.GeomRate = rate
			m.GeomRateValid = true
		}
	}
}

func decodeAircraftStatus(me []byte, m *Message) {
	subtype := int(bitutil.Bits(me, 6, 8))
	if subtype == 1 {
		field := bitutil.Bits(me, 14, 25)
		a := (field & 0xe00) >> 9
		b := (field & 0x0e0) >> 6
		c := (field & 0x0038) >> 3
		d := field & 0x0007
		sq := uint16(gillhamOctal(a))*1000 + uint16(gillhamOctal(b))*100 + uint16(gillhamOctal(c))*10 + uint16(gillhamOctal(d))
		m.Squawk = sq
		m.SquawkValid = true
	}
	m.Emergency = int(bitutil.Bits(me, 9, 11))
}

func gillhamOctal(v uint32) uint32 { return v } // status squitter squawk subfield is plain octal, not gray-coded

// decodeTargetState decodes ME type 29 (target state & status), subtype 1
// (the only subtype defined by DO-260B): the selected altitude (MCP/FCU or
// FMS) and QNH. The vertical-mode bits are not decoded.
func decodeTargetState(me []byte, m *Message) {
	subtype := bitutil.Bits(me, 6, 8)
	if subtype != 1 {
		return
	}
	altType := bitutil.Bit(me, 10)
	altRaw := bitutil.Bits(me, 11, 20)
	if altRaw != 0 {
		alt := int(altRaw)*32 - 1000
		if altType == 1 {
			m.FMSAlt = alt
			m.FMSAltValid = true
		} else {
			m.MCPAlt = alt
			m.MCPAltValid = true
		}
		m.TargetAlt = alt
		m.TargetAltValid = true
	}
	if bitutil.Bit(me, 21) == 1 {
		qnhRaw := bitutil.Bits(me, 22, 30)
		m.QNH = 800 + float64(qnhRaw)*0.8
		m.QNHValid = true
	}
}

// decodeOperationalStatus decodes ME type 31 (aircraft operational
// status): the ADS-B version number and the NIC supplement-A bit, whose
// value refines every subsequent position message's NIC/Rc lookup
// (bit position differs between the airborne, subtype 0, and surface,
// subtype 1, report).
func decodeOperationalStatus(me []byte, m *Message) {
	subtype := bitutil.Bits(me, 6, 8)
	m.ADSBVersion = int(bitutil.Bits(me, 41, 43))
	m.ADSBVersionValid = true
	switch subtype {
	case 0: // airborne
		m.NICSuppA = int(bitutil.Bit(me, 45))
		m.NICSuppAValid = true
	case 1: // surface
		m.NICSuppA = int(bitutil.Bit(me, 38))
		m.NICSuppAValid = true
	}
}
