package frame

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"acars_parser/internal/modes"
)

func TestBeastReaderShortFrame(t *testing.T) {
	payload := []byte{0x8d, 0x48, 0x40, 0xd6, 0x20, 0x2c, 0xcb}
	var buf bytes.Buffer
	buf.WriteByte(0x1a)
	buf.WriteByte('2')
	for i := 0; i < 6; i++ {
		buf.WriteByte(byte(i + 1))
	}
	buf.WriteByte(0xc8) // signal
	buf.Write(payload)

	rd := NewBeastReader(&buf)
	c, err := rd.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !bytes.Equal(c.Payload, payload) {
		t.Errorf("Payload = %x, want %x", c.Payload, payload)
	}
	if c.SampleTS != 0x010203040506 {
		t.Errorf("SampleTS = %x, want 0x010203040506", c.SampleTS)
	}
	if c.Source != modes.SourceModeS {
		t.Errorf("Source = %v, want SourceModeS", c.Source)
	}
}

func TestBeastReaderUndoesStuffing(t *testing.T) {
	// A payload byte that is itself 0x1a must appear doubled on the wire.
	payload := []byte{0x1a, 0x00}
	var buf bytes.Buffer
	buf.WriteByte(0x1a)
	buf.WriteByte('1')
	for i := 0; i < 6; i++ {
		buf.WriteByte(0x00)
	}
	buf.WriteByte(0x00) // signal
	buf.WriteByte(0x1a)
	buf.WriteByte(0x1a) // stuffed 0x1a
	buf.WriteByte(0x00)

	rd := NewBeastReader(&buf)
	c, err := rd.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !bytes.Equal(c.Payload, payload) {
		t.Errorf("Payload = %x, want %x", c.Payload, payload)
	}
}

func TestBeastReaderSkipsGarbageBeforeMarker(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xff, 0x00})
	buf.WriteByte(0x1a)
	buf.WriteByte('1')
	for i := 0; i < 6; i++ {
		buf.WriteByte(0x00)
	}
	buf.WriteByte(0x00)
	buf.Write([]byte{0xaa, 0xbb})

	rd := NewBeastReader(&buf)
	c, err := rd.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !bytes.Equal(c.Payload, []byte{0xaa, 0xbb}) {
		t.Errorf("Payload = %x, want aabb", c.Payload)
	}
}

func TestRawReaderPlainFrame(t *testing.T) {
	rd := NewRawReader(strings.NewReader("*8d4840d6202ccb00000000;\n"))
	c, err := rd.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := []byte{0x8d, 0x48, 0x40, 0xd6, 0x20, 0x2c, 0xcb, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(c.Payload, want) {
		t.Errorf("Payload = %x, want %x", c.Payload, want)
	}
}

func TestRawReaderTimestampPrefix(t *testing.T) {
	rd := NewRawReader(strings.NewReader("@00112233445566*8d4840d6;\n"))
	c, err := rd.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if c.SampleTS != 0x00112233445566 {
		t.Errorf("SampleTS = %x, want 0x00112233445566", c.SampleTS)
	}
	want := []byte{0x8d, 0x48, 0x40, 0xd6}
	if !bytes.Equal(c.Payload, want) {
		t.Errorf("Payload = %x, want %x", c.Payload, want)
	}
}

func TestRawReaderSkipsMalformedLines(t *testing.T) {
	rd := NewRawReader(strings.NewReader("garbage\n*zz;\n*8d4840d6;\n"))
	c, err := rd.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := []byte{0x8d, 0x48, 0x40, 0xd6}
	if !bytes.Equal(c.Payload, want) {
		t.Errorf("Payload = %x, want %x", c.Payload, want)
	}
}

func TestRawReaderEOF(t *testing.T) {
	rd := NewRawReader(strings.NewReader(""))
	if _, err := rd.Next(); err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func sbsLine(fields ...string) string {
	base := make([]string, 22)
	for i := range base {
		base[i] = ""
	}
	copy(base, fields)
	return strings.Join(base, ",")
}

func TestSBSReaderParsesPosition(t *testing.T) {
	line := sbsLine("MSG", "3", "1", "1", "A1B2C3", "1", "", "", "", "",
		"UAL123", "35000", "450", "270", "51.5", "-0.1", "", "1200")
	rd := NewSBSReader(strings.NewReader(line + "\n"))

	m, err := rd.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if m.AddrIcao != 0xa1b2c3 {
		t.Errorf("AddrIcao = %x, want a1b2c3", m.AddrIcao)
	}
	if m.Callsign != "UAL123" {
		t.Errorf("Callsign = %q, want UAL123", m.Callsign)
	}
	if !m.DirectPosValid || m.DirectLat != 51.5 || m.DirectLon != -0.1 {
		t.Errorf("direct position = (%v valid=%v, %v), want (51.5 valid=true, -0.1)", m.DirectLat, m.DirectPosValid, m.DirectLon)
	}
	if !m.BaroAltValid || m.BaroAlt != 35000 {
		t.Errorf("BaroAlt = %d valid=%v, want 35000 valid=true", m.BaroAlt, m.BaroAltValid)
	}
	if !m.SquawkValid || m.Squawk != 1200 {
		t.Errorf("Squawk = %d valid=%v, want 1200 valid=true", m.Squawk, m.SquawkValid)
	}
	if m.Source != modes.SourceSBS {
		t.Errorf("Source = %v, want SourceSBS", m.Source)
	}
}

func TestSBSReaderSkipsNonMessageLines(t *testing.T) {
	rd := NewSBSReader(strings.NewReader("SEL,1,1\n" + sbsLine("MSG", "3", "1", "1", "ABCDEF") + "\n"))
	m, err := rd.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if m.AddrIcao != 0xabcdef {
		t.Errorf("AddrIcao = %x, want abcdef", m.AddrIcao)
	}
}

func TestSBSReaderEOF(t *testing.T) {
	rd := NewSBSReader(strings.NewReader(""))
	if _, err := rd.Next(); err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}
