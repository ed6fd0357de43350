package modes

import (
	"errors"
	"time"

	"acars_parser/internal/bitutil"
	"acars_parser/internal/crc"
)

var ErrShortFrame = errors.New("modes: frame too short for declared DF")

// Decode parses a raw Mode S frame (already length-correct for its DF) into
// a Message. source describes how the caller obtained/trusts this frame
// (radio demod vs. a framed feed). A CRC repair from the tables crc.Init
// last built is applied only if it flips at most nfixCRC bits (0 disables
// repair).
func Decode(raw []byte, recvTime time.Time, source Source, nfixCRC int) (*Message, error) {
	if len(raw) < 2 {
		return nil, ErrShortFrame
	}
	df := int(raw[0] >> 3)
	bits := FrameBits(df)
	need := bits / 8
	if len(raw) < need {
		return nil, ErrShortFrame
	}
	frame := append([]byte(nil), raw[:need]...)

	syn := crc.Checksum(frame, bits)
	corrected := 0
	if syn != 0 && nfixCRC > 0 {
		if info := crc.Diagnose(syn, bits); info != nil && len(info.Bits) <= nfixCRC {
			crc.Fix(frame, info)
			corrected = len(info.Bits)
			syn = 0
		}
	}

	m := &Message{
		Raw:           frame,
		Bits:          bits,
		RecvTime:      recvTime,
		DF:            df,
		Source:        source,
		CorrectedBits: corrected,
	}

	switch df {
	case 0: // short air-air surveillance
		decodeAltitude13(frame, m, 20, 32)
		m.Alert = bitutil.Bit(frame, 14) == 1
	case 4, 20: // altitude reply / Comm-B altitude reply
		decodeAltitude13(frame, m, 20, 32)
		if df == 20 {
			copy(m.MB[:], frame[4:11])
			m.MBValid = true
			decodeCommB(m.MB, m)
		}
	case 5, 21: // identity reply / Comm-B identity reply
		decodeSquawk13(frame, m)
		if df == 21 {
			copy(m.MB[:], frame[4:11])
			m.MBValid = true
			decodeCommB(m.MB, m)
		}
	case 11: // all-call reply
		m.AddrIcao = bitutil.Bits(frame, 9, 32)
		m.CA = int(bitutil.Bits(frame, 6, 8))
		m.AddrType = AddrModeS
	case 16: // long air-air surveillance (ACAS RA may be embedded)
		decodeAltitude13(frame, m, 20, 32)
	case 17, 18: // extended squitter / TIS-B
		m.AddrIcao = bitutil.Bits(frame, 9, 32)
		if df == 17 {
			m.AddrType = AddrAdsbIcao
		} else {
			m.AddrType = AddrTisbIcao
		}
		m.CA = int(bitutil.Bits(frame, 6, 8))
		decodeExtendedSquitter(frame[4:11], m)
	case 24: // Comm-D (seldom carries useful data for tracking)
	}

	return m, nil
}

func decodeAltitude13(frame []byte, m *Message, first, last int) {
	field := bitutil.Bits(frame, first, last)
	alt, ok := decode13BitAltitude(field)
	if ok {
		m.BaroAlt = alt
		m.BaroAltValid = true
	}
}

// decode13BitAltitude interprets the 13-bit altitude field used by DF0/4/16/20,
// handling the M-bit (metric, unsupported/rare, treated as invalid) and the
// Q-bit (25ft increments) encoding. Legacy Gillham-coded (100ft, gray-code)
// altitudes without the Q-bit set are rare on modern equipage and are
// reported invalid rather than gray-decoded.
func decode13BitAltitude(field uint32) (int, bool) {
	if field == 0 {
		return 0, false
	}
	mBit := (field>>6)&1 == 1
	if mBit {
		return 0, false // metric altitude, not used operationally
	}
	qBit := (field>>4)&1 == 1
	if !qBit {
		return 0, false
	}
	n := ((field & 0x1f80) >> 2) | ((field & 0x20) >> 1) | (field & 0xf)
	return int(n)*25 - 1000, true
}

func decodeSquawk13(frame []byte, m *Message) {
	field := bitutil.Bits(frame, 20, 32)
	// Gillham decode for the 4x3-bit A/B/C/D identity code.
	hundreds := gillhamDigit((field >> 12) & 0x7)
	tens := gillhamDigit((field >> 8) & 0x7)
	unitsB := gillhamDigit((field >> 4) & 0x7)
	units := gillhamDigit(field & 0x7)
	if hundreds < 0 || tens < 0 || unitsB < 0 || units < 0 {
		return
	}
	sq := uint16(hundreds)*1000 + uint16(tens)*100 + uint16(unitsB)*10 + uint16(units)
	m.Squawk = sq
	m.SquawkValid = true
}

// gillhamDigit decodes one 3-bit Gillham A/B/C/D subfield to a 0-7 octal
// digit; returns -1 for invalid (non-gray-code) patterns.
func gillhamDigit(bits uint32) int {
	table := map[uint32]int{
		0b000: 0, 0b001: 1, 0b011: 2, 0b010: 3,
		0b110: 4, 0b111: 5, 0b101: 6, 0b100: 7,
	}
	if v, ok := table[bits&0x7]; ok {
		return v
	}
	return -1
}

