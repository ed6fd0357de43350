package fanout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSSink publishes change-notification events as JSON on a per-feed
// subject, realizing the "message bus fan-out" domain dependency: the
// teacher's go.mod already required nats.go for its NATS message wrapper
// format without ever dialing a connection; this sink actually uses it.
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

func NewNATSSink(url, subject string) (*NATSSink, error) {
	nc, err := nats.Connect(url, nats.Name("readsb-core"), nats.ReconnectWait(time.Second))
	if err != nil {
		return nil, err
	}
	return &NATSSink{nc: nc, subject: subject}, nil
}

func (s *NATSSink) Publish(_ context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.nc.Publish(s.subject, b)
}

func (s *NATSSink) Close() error {
	s.nc.Drain()
	return nil
}
