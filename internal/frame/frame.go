// Package frame turns the three documented external wire formats (Beast
// binary, raw AVR ASCII, SBS-1 CSV) into candidate Mode S byte payloads,
// tagging each with the data source it implies. It performs framing only:
// callers are responsible for reading bytes from wherever they came from
// (TCP connection, file, stdin) before handing them here.
package frame

import (
	"bufio"
	"encoding/hex"
	"errors"
	"io"
	"strconv"
	"strings"

	"acars_parser/internal/modes"
)

var ErrIncomplete = errors.New("frame: incomplete frame")

// Candidate is one framed payload ready for modes.Decode, plus the metadata
// the wire format itself carried (timestamp, signal level, source).
type Candidate struct {
	Payload     []byte
	SampleTS    uint64
	Signal      float64
	Source      modes.Source
}

// BeastReader decodes the Beast binary protocol: 0x1a, type byte, 6-byte
// timestamp, 1-byte signal, payload, with 0x1a byte-stuffing throughout
// the timestamp/signal/payload region.
type BeastReader struct {
	r *bufio.Reader
}

func NewBeastReader(r io.Reader) *BeastReader {
	return &BeastReader{r: bufio.NewReader(r)}
}

func (b *BeastReader) Next() (*Candidate, error) {
	for {
		marker, err := b.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if marker != 0x1a {
			continue
		}
		typ, err := b.r.ReadByte()
		if err != nil {
			return nil, err
		}
		var payloadLen int
		switch typ {
		case '1':
			payloadLen = 2
		case '2':
			payloadLen = 7
		case '3':
			payloadLen = 14
		default:
			continue
		}

		body, err := b.readStuffed(6 + 1 + payloadLen)
		if err != nil {
			return nil, err
		}

		ts := uint64(0)
		for i := 0; i < 6; i++ {
			ts = (ts << 8) | uint64(body[i])
		}
		signal := float64(body[6]) / 255.0
		payload := append([]byte(nil), body[7:]...)

		return &Candidate{Payload: payload, SampleTS: ts, Signal: signal, Source: modes.SourceModeS}, nil
	}
}

// readStuffed reads exactly n logical bytes, undoing 0x1a 0x1a -> 0x1a
// stuffing.
func (b *BeastReader) readStuffed(n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		c, err := b.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if c == 0x1a {
			next, err := b.r.ReadByte()
			if err != nil {
				return nil, err
			}
			if next != 0x1a {
				return nil, ErrIncomplete
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// RawReader decodes the raw AVR ASCII format: "*<hex>;" per line, with an
// optional "@<timestamp-hex>" prefix.
type RawReader struct {
	sc *bufio.Scanner
}

func NewRawReader(r io.Reader) *RawReader {
	return &RawReader{sc: bufio.NewScanner(r)}
}

func (rr *RawReader) Next() (*Candidate, error) {
	for rr.sc.Scan() {
		line := strings.TrimSpace(rr.sc.Text())
		if line == "" {
			continue
		}
		var ts uint64
		if strings.HasPrefix(line, "@") {
			end := strings.IndexByte(line, '*')
			if end < 0 {
				continue
			}
			tsHex := line[1:end]
			if v, err := strconv.ParseUint(tsHex, 16, 64); err == nil {
				ts = v
			}
			line = line[end:]
		}
		if !strings.HasPrefix(line, "*") || !strings.HasSuffix(line, ";") {
			continue
		}
		payload, err := hex.DecodeString(line[1 : len(line)-1])
		if err != nil || len(payload) == 0 {
			continue
		}
		return &Candidate{Payload: payload, SampleTS: ts, Source: modes.SourceModeS}, nil
	}
	if err := rr.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// SBSReader decodes BaseStation/SBS-1 CSV lines. It does not produce a
// Mode S byte payload (SBS is a pre-decoded text protocol); instead it
// directly emits the subset of modes.Message fields SBS can carry, with
// Source = SourceSBS, for the tracker to merge per the data-source
// lattice's SBS-inhibition rule.
type SBSReader struct {
	sc *bufio.Scanner
}

func NewSBSReader(r io.Reader) *SBSReader {
	return &SBSReader{sc: bufio.NewScanner(r)}
}

// Next returns the next decoded SBS message, or io.EOF.
func (s *SBSReader) Next() (*modes.Message, error) {
	for s.sc.Scan() {
		line := strings.TrimSpace(s.sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 22 || fields[0] != "MSG" {
			continue
		}
		m := &modes.Message{Source: modes.SourceSBS, AddrType: modes.AddrOther}
		if icao, err := strconv.ParseUint(fields[4], 16, 32); err == nil {
			m.AddrIcao = uint32(icao)
		}
		if cs := strings.TrimSpace(fields[10]); cs != "" {
			m.Callsign = cs
			m.CallsignValid = true
		}
		if alt := strings.TrimSpace(fields[11]); alt != "" {
			if v, err := strconv.Atoi(alt); err == nil {
				m.BaroAlt = v
				m.BaroAltValid = true
			}
		}
		if gs := strings.TrimSpace(fields[12]); gs != "" {
			if v, err := strconv.ParseFloat(gs, 64); err == nil {
				m.GroundSpeed = v
				m.GroundSpeedValid = true
			}
		}
		if trk := strings.TrimSpace(fields[13]); trk != "" {
			if v, err := strconv.ParseFloat(trk, 64); err == nil {
				m.Track = v
				m.TrackValid = true
			}
		}
		if lat := strings.TrimSpace(fields[14]); lat != "" {
			if latv, err1 := strconv.ParseFloat(lat, 64); err1 == nil {
				if lon, err2 := strconv.ParseFloat(strings.TrimSpace(fields[15]), 64); err2 == nil {
					m.DirectLat = latv
					m.DirectLon = lon
					m.DirectPosValid = true
				}
			}
		}
		if sq := strings.TrimSpace(fields[17]); sq != "" {
			if v, err := strconv.ParseUint(sq, 10, 16); err == nil {
				m.Squawk = uint16(v)
				m.SquawkValid = true
			}
		}
		return m, nil
	}
	if err := s.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
