// Package fanout dispatches tracker output to downstream collaborators:
// every decoded message plus new-aircraft/position/ident change
// notifications, over pluggable sinks (NATS, AMQP, or a caller-supplied
// JSON encoder). It does no rate reduction and builds no registry
// snapshots.
//
// The best-effort, never-block-on-a-slow-sink posture mirrors
// billglover-go-adsb-console's RabbitMQ publisher and the teacher's NATS
// wrapper format, generalized from "ACARS message out" to "decoded event
// out".
package fanout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"acars_parser/internal/aircraft"
	"acars_parser/internal/modes"
)

// Event is what a sink receives: either a reduced-rate raw message or a
// change notification derived from the tracker's view of an aircraft.
type Event struct {
	Kind      string // "message", "new", "position", "ident"
	Time      time.Time
	ICAO      uint32
	Message   *modes.Message  `json:",omitempty"`
	Aircraft  *AircraftSummary `json:",omitempty"`
}

// AircraftSummary is the JSON-friendly projection of an aircraft.Aircraft
// used for change notifications and snapshots.
type AircraftSummary struct {
	ICAO     string  `json:"icao"`
	Callsign string  `json:"callsign,omitempty"`
	Squawk   uint16  `json:"squawk,omitempty"`
	Lat      float64 `json:"lat,omitempty"`
	Lon      float64 `json:"lon,omitempty"`
	AltFt    int     `json:"alt_baro,omitempty"`
	GS       float64 `json:"gs,omitempty"`
	Track    float64 `json:"track,omitempty"`
	OnGround bool    `json:"on_ground,omitempty"`
}

func Summarize(a *aircraft.Aircraft) *AircraftSummary {
	return &AircraftSummary{
		ICAO:     hex6(a.ICAO),
		Callsign: a.Callsign,
		Squawk:   a.Squawk,
		Lat:      a.Lat,
		Lon:      a.Lon,
		AltFt:    a.BaroAlt,
		GS:       a.GroundSpeed,
		Track:    a.Track,
		OnGround: a.PosSurface,
	}
}

func hex6(v uint32) string {
	const digits = "0123456789abcdef"
	b := make([]byte, 6)
	for i := 5; i >= 0; i-- {
		b[i] = digits[v&0xf]
		v >>= 4
	}
	return string(b)
}

// Sink receives fan-out events. Implementations must not block the
// tracker's goroutine for long; a slow sink should buffer internally.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Dispatcher holds zero or more configured sinks and forwards events to
// all of them, logging (never propagating) per-sink failures.
type Dispatcher struct {
	sinks []Sink
	log   *logrus.Entry
}

func NewDispatcher(log *logrus.Entry, sinks ...Sink) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{sinks: sinks, log: log}
}

func (d *Dispatcher) Publish(ctx context.Context, ev Event) {
	for _, s := range d.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			d.log.WithError(err).WithField("kind", ev.Kind).Warn("fanout sink publish failed")
		}
	}
}

func (d *Dispatcher) Close() {
	for _, s := range d.sinks {
		if err := s.Close(); err != nil {
			d.log.WithError(err).Warn("fanout sink close failed")
		}
	}
}

// JSONSink writes newline-delimited JSON events through a json.Encoder.
// cmd/readsb-core does not install it; buildSinks there only adds the
// NATS and AMQP sinks.
type jsonEncoder interface {
	Encode(v interface{}) error
}

type JSONSink struct {
	enc jsonEncoder
}

func NewJSONSink(enc *json.Encoder) *JSONSink {
	return &JSONSink{enc: enc}
}

func (j *JSONSink) Publish(_ context.Context, ev Event) error {
	return j.enc.Encode(ev)
}

func (j *JSONSink) Close() error { return nil }
