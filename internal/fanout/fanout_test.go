package fanout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"acars_parser/internal/aircraft"
)

func TestSummarize(t *testing.T) {
	a := &aircraft.Aircraft{
		ICAO:       0xa1b2c3,
		Callsign:   "UAL123",
		Squawk:     1200,
		Lat:        51.5,
		Lon:        -0.1,
		BaroAlt:    35000,
		GroundSpeed: 450,
		Track:      270,
	}
	s := Summarize(a)
	if s.ICAO != "a1b2c3" {
		t.Errorf("ICAO = %q, want a1b2c3", s.ICAO)
	}
	if s.Callsign != "UAL123" || s.Squawk != 1200 || s.AltFt != 35000 {
		t.Errorf("unexpected summary: %+v", s)
	}
}

type fakeSink struct {
	published int
	failNext  bool
	closed    bool
}

func (f *fakeSink) Publish(_ context.Context, _ Event) error {
	f.published++
	if f.failNext {
		f.failNext = false
		return errors.New("boom")
	}
	return nil
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

func TestDispatcherFanOutAndFailureIsolation(t *testing.T) {
	good := &fakeSink{}
	bad := &fakeSink{failNext: true}

	d := NewDispatcher(nil, good, bad)
	d.Publish(context.Background(), Event{Kind: "message", Time: time.Now(), ICAO: 0x1})

	if good.published != 1 || bad.published != 1 {
		t.Fatalf("expected both sinks to receive the event, got good=%d bad=%d", good.published, bad.published)
	}

	// A second publish should still reach the previously-failing sink: one
	// sink's error must never stop the dispatcher from trying the others.
	d.Publish(context.Background(), Event{Kind: "message", Time: time.Now(), ICAO: 0x2})
	if good.published != 2 || bad.published != 2 {
		t.Fatalf("expected dispatcher to keep publishing after a sink failure, got good=%d bad=%d", good.published, bad.published)
	}

	d.Close()
	if !good.closed || !bad.closed {
		t.Error("expected Close to close every sink")
	}
}

func TestJSONSinkEncodesEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONSink(json.NewEncoder(&buf))

	ev := Event{Kind: "position", Time: time.Now(), ICAO: 0xabcdef}
	if err := sink.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Kind != "position" || decoded.ICAO != 0xabcdef {
		t.Errorf("decoded event mismatch: %+v", decoded)
	}
}
