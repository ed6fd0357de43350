// Package demod implements the 2.4MHz-sample-rate Mode S demodulator:
// preamble search over raw magnitude samples, 5-phase PPM slicing, and
// per-candidate scoring to pick the best of several phase alignments
// before handing the result on to modes.Decode. It is an alternative
// ingest path to the byte-framed feeds in internal/frame, for callers
// that own an SDR front end instead of a Beast/raw/SBS network feed.
package demod

import (
	"context"

	"acars_parser/internal/bitutil"
	"acars_parser/internal/crc"
	"acars_parser/internal/frame"
	"acars_parser/internal/modes"
)

const (
	preambleUs  = 8  // microseconds of preamble before data starts
	shortMsgLen = 7  // bytes, DF 0/4/5/11
	longMsgLen  = 14 // bytes, everything else
)

// SampleBuffer is one block of 2.4MHz magnitude samples handed to the
// demodulator. It has no overlap region of its own: a message straddling
// a block boundary is only found if the caller repeats the tail of the
// previous block at the start of Data.
type SampleBuffer struct {
	Data     []uint16
	SampleTS uint64
}

// Stats accumulates per-call demodulator outcomes. The caller folds these
// into the shared stats.Stats counters (RecordPreamble et al.) rather than
// this package depending on stats directly.
type Stats struct {
	Preambles           int64
	Accepted            int64
	RejectedUnknownICAO int64
	RejectedBad         int64
	SignalPowerSum      float64
	SignalPowerSamples  int64
	NoisePowerSum       float64
	NoisePowerSamples   int64
	PeakSignalPower     float64
	StrongSignalCount   int64
}

// Demodulator holds no per-call state beyond its running Stats; a single
// instance may be reused across SampleBuffers from the same source.
type Demodulator struct {
	Stats Stats
}

func New() *Demodulator {
	return &Demodulator{}
}

// slicePhase{0..4} correlate a short run of samples against the expected
// shape of a 0.5us-per-symbol PPM pulse sampled at 2.4MHz (2.4 samples per
// symbol), one function per sub-sample phase offset. A positive result
// means bit 1, i.e. the pulse leads its slot; non-positive means bit 0.
func slicePhase0(m []uint16) int { return 5*int(m[0]) - 3*int(m[1]) - 2*int(m[2]) }
func slicePhase1(m []uint16) int { return 4*int(m[0]) - int(m[1]) - 3*int(m[2]) }
func slicePhase2(m []uint16) int { return 3*int(m[0]) + int(m[1]) - 4*int(m[2]) }
func slicePhase3(m []uint16) int { return 2*int(m[0]) + 3*int(m[1]) - 5*int(m[2]) }
func slicePhase4(m []uint16) int { return int(m[0]) + 5*int(m[1]) - 5*int(m[2]) - int(m[3]) }

func bitOf(score int, mask byte) byte {
	if score > 0 {
		return mask
	}
	return 0
}

// decodeByte slices one data byte starting at m[base] under the given
// sub-sample phase (0..4), returning the byte, the phase the next byte
// starts at, the sample index the next byte starts at, and whether enough
// samples remained to slice it at all.
func decodeByte(m []uint16, base, phase int) (b byte, nextPhase, nextBase int, ok bool) {
	if base+21 > len(m) {
		return 0, phase, base, false
	}
	switch phase {
	case 0:
		b = bitOf(slicePhase0(m[base:]), 0x80) |
			bitOf(slicePhase2(m[base+2:]), 0x40) |
			bitOf(slicePhase4(m[base+4:]), 0x20) |
			bitOf(slicePhase1(m[base+7:]), 0x10) |
			bitOf(slicePhase3(m[base+9:]), 0x08) |
			bitOf(slicePhase0(m[base+12:]), 0x04) |
			bitOf(slicePhase2(m[base+14:]), 0x02) |
			bitOf(slicePhase4(m[base+16:]), 0x01)
		return b, 1, base + 19, true
	case 1:
		b = bitOf(slicePhase1(m[base:]), 0x80) |
			bitOf(slicePhase3(m[base+2:]), 0x40) |
			bitOf(slicePhase0(m[base+5:]), 0x20) |
			bitOf(slicePhase2(m[base+7:]), 0x10) |
			bitOf(slicePhase4(m[base+9:]), 0x08) |
			bitOf(slicePhase1(m[base+12:]), 0x04) |
			bitOf(slicePhase3(m[base+14:]), 0x02) |
			bitOf(slicePhase0(m[base+17:]), 0x01)
		return b, 2, base + 19, true
	case 2:
		b = bitOf(slicePhase2(m[base:]), 0x80) |
			bitOf(slicePhase4(m[base+2:]), 0x40) |
			bitOf(slicePhase1(m[base+5:]), 0x20) |
			bitOf(slicePhase3(m[base+7:]), 0x10) |
			bitOf(slicePhase0(m[base+10:]), 0x08) |
			bitOf(slicePhase2(m[base+12:]), 0x04) |
			bitOf(slicePhase4(m[base+14:]), 0x02) |
			bitOf(slicePhase1(m[base+17:]), 0x01)
		return b, 3, base + 19, true
	case 3:
		b = bitOf(slicePhase3(m[base:]), 0x80) |
			bitOf(slicePhase0(m[base+3:]), 0x40) |
			bitOf(slicePhase2(m[base+5:]), 0x20) |
			bitOf(slicePhase4(m[base+7:]), 0x10) |
			bitOf(slicePhase1(m[base+10:]), 0x08) |
			bitOf(slicePhase3(m[base+12:]), 0x04) |
			bitOf(slicePhase0(m[base+15:]), 0x02) |
			bitOf(slicePhase2(m[base+17:]), 0x01)
		return b, 4, base + 19, true
	default: // 4
		b = bitOf(slicePhase4(m[base:]), 0x80) |
			bitOf(slicePhase1(m[base+3:]), 0x40) |
			bitOf(slicePhase3(m[base+5:]), 0x20) |
			bitOf(slicePhase0(m[base+8:]), 0x10) |
			bitOf(slicePhase2(m[base+10:]), 0x08) |
			bitOf(slicePhase4(m[base+12:]), 0x04) |
			bitOf(slicePhase1(m[base+15:]), 0x02) |
			bitOf(slicePhase3(m[base+17:]), 0x01)
		return b, 0, base + 20, true
	}
}

// scoreModesMessage grades a candidate decode: a clean or correctable CRC
// scores positive (longer, cleaner frames score higher so the best of
// several tried phases wins). A DF11/17/18 frame whose CRC didn't validate
// scores 1 if the ICAO filter recently saw its address and -1 if it did
// not (an unknown-ICAO rejection); anything else scores -2 as garbage.
// There is no published reference scorer for the 2.4MHz demodulator to
// port; this heuristic is grounded on the same CRC/filter machinery the
// rest of the decoder already uses (internal/crc, modes.KnownICAO).
func scoreModesMessage(msg []byte, validBits int) int {
	if len(msg) == 0 {
		return -2
	}
	df := int(msg[0] >> 3)
	bits := modes.FrameBits(df)
	if validBits < bits {
		return -2
	}
	body := msg[:bits/8]
	syn := crc.Checksum(body, bits)
	if syn == 0 {
		return bits
	}
	if info := crc.Diagnose(syn, bits); info != nil {
		return bits - 10*len(info.Bits)
	}
	switch df {
	case 11, 17, 18:
		addr := bitutil.Bits(body, 9, 32)
		if modes.KnownICAO(addr) {
			return 1
		}
		return -1
	default:
		return -2
	}
}

// Demodulate scans buf for Mode S preambles, tries every plausible
// sub-sample phase alignment for each, and returns one Candidate per
// preamble that scored as a real message.
func (d *Demodulator) Demodulate(ctx context.Context, buf *SampleBuffer) []*frame.Candidate {
	m := buf.Data
	mlen := len(m)
	var out []*frame.Candidate

	var signalPowerSum, noisePowerSum uint64
	var signalLen int
	var peakSignalPower float64

	scratch := make([]byte, longMsgLen)
	var bestBuf [longMsgLen]byte

	for j := 0; j+19 < mlen; j++ {
		if ctx.Err() != nil {
			break
		}
		p := m[j:]
		if len(p) < 19 {
			break
		}

		if !(p[0] < p[1] && p[12] > p[13]) {
			continue
		}

		var high, baseSignal, baseNoise uint32
		switch {
		case p[1] > p[2] && p[2] < p[3] && p[3] > p[4] && p[8] < p[9] && p[9] > p[10] && p[10] < p[11]:
			high = (uint32(p[1]) + uint32(p[3]) + uint32(p[9]) + uint32(p[11]) + uint32(p[12])) / 4
			baseSignal = uint32(p[1]) + uint32(p[3]) + uint32(p[9])
			baseNoise = uint32(p[5]) + uint32(p[6]) + uint32(p[7])
		case p[1] > p[2] && p[2] < p[3] && p[3] > p[4] && p[8] < p[9] && p[9] > p[10] && p[11] < p[12]:
			high = (uint32(p[1]) + uint32(p[3]) + uint32(p[9]) + uint32(p[12])) / 4
			baseSignal = uint32(p[1]) + uint32(p[3]) + uint32(p[9]) + uint32(p[12])
			baseNoise = uint32(p[5]) + uint32(p[6]) + uint32(p[7]) + uint32(p[8])
		case p[1] > p[2] && p[2] < p[3] && p[4] > p[5] && p[8] < p[9] && p[10] > p[11] && p[11] < p[12]:
			high = (uint32(p[1]) + uint32(p[3]) + uint32(p[4]) + uint32(p[9]) + uint32(p[10]) + uint32(p[12])) / 4
			baseSignal = uint32(p[1]) + uint32(p[12])
			baseNoise = uint32(p[6]) + uint32(p[7])
		case p[1] > p[2] && p[3] < p[4] && p[4] > p[5] && p[9] < p[10] && p[10] > p[11] && p[11] < p[12]:
			high = (uint32(p[1]) + uint32(p[4]) + uint32(p[10]) + uint32(p[12])) / 4
			baseSignal = uint32(p[1]) + uint32(p[4]) + uint32(p[10]) + uint32(p[12])
			baseNoise = uint32(p[5]) + uint32(p[6]) + uint32(p[7]) + uint32(p[8])
		case p[2] > p[3] && p[3] < p[4] && p[4] > p[5] && p[9] < p[10] && p[10] > p[11] && p[11] < p[12]:
			high = (uint32(p[1]) + uint32(p[2]) + uint32(p[4]) + uint32(p[10]) + uint32(p[12])) / 4
			baseSignal = uint32(p[4]) + uint32(p[10]) + uint32(p[12])
			baseNoise = uint32(p[6]) + uint32(p[7]) + uint32(p[8])
		default:
			continue
		}

		if baseSignal*2 < 3*baseNoise {
			continue
		}
		if uint32(p[5]) >= high || uint32(p[6]) >= high || uint32(p[7]) >= high || uint32(p[8]) >= high ||
			uint32(p[14]) >= high || uint32(p[15]) >= high || uint32(p[16]) >= high || uint32(p[17]) >= high ||
			uint32(p[18]) >= high {
			continue
		}

		d.Stats.Preambles++

		bestScore := -2
		bestLen := 0

		for tryPhase := 4; tryPhase <= 8; tryPhase++ {
			base := j + preambleUs*19/8 + tryPhase/5
			phase := tryPhase % 5
			bytelen := longMsgLen
			pos := base
			i := 0
			for ; i < bytelen; i++ {
				b, nextPhase, nextPos, ok := decodeByte(m, pos, phase)
				if !ok {
					bytelen = i
					break
				}
				scratch[i] = b
				phase, pos = nextPhase, nextPos
				if i == 0 {
					switch b >> 3 {
					case 0, 4, 5, 11:
						bytelen = shortMsgLen
					case 16, 17, 18, 20, 21, 24:
						// long frame, bytelen stays longMsgLen
					default:
						bytelen = 1 // reject quickly, no valid DF
					}
				}
			}
			if bytelen < shortMsgLen {
				continue
			}

			score := scoreModesMessage(scratch[:bytelen], bytelen*8)
			if score > bestScore {
				bestScore = score
				bestLen = bytelen
				copy(bestBuf[:], scratch[:bytelen])
			}
		}

		switch {
		case bestScore > 0:
			payload := append([]byte(nil), bestBuf[:bestLen]...)
			out = append(out, &frame.Candidate{
				Payload:  payload,
				SampleTS: buf.SampleTS + uint64(j),
				Signal:   float64(high) / 65535.0,
				Source:   modes.SourceModeS,
			})
			d.Stats.Accepted++
			if float64(high)/65535.0 > 0.50119 {
				d.Stats.StrongSignalCount++
			}
		case bestScore == -1:
			d.Stats.RejectedUnknownICAO++
		default:
			d.Stats.RejectedBad++
		}

		signalPowerSum += uint64(baseSignal) * uint64(baseSignal)
		noisePowerSum += uint64(baseNoise) * uint64(baseNoise)
		signalLen++
		if sigP := float64(high) * float64(high) / 65535.0 / 65535.0; sigP > peakSignalPower {
			peakSignalPower = sigP
		}
	}

	if signalLen > 0 {
		d.Stats.SignalPowerSum += float64(signalPowerSum) / 65535.0 / 65535.0
		d.Stats.SignalPowerSamples += int64(signalLen)
		d.Stats.NoisePowerSum += float64(noisePowerSum) / 65535.0 / 65535.0
		d.Stats.NoisePowerSamples += int64(signalLen)
	}
	if peakSignalPower > d.Stats.PeakSignalPower {
		d.Stats.PeakSignalPower = peakSignalPower
	}

	return out
}
